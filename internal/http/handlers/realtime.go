package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/geocoder89/devicewatch/internal/http/middlewares"
	"github.com/geocoder89/devicewatch/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// DevicePublisher is the relay when Redis is configured, otherwise the hub.
type DevicePublisher interface {
	Publish(ctx context.Context, deviceID, eventType string, data any) error
}

type RealtimeHandler struct {
	hub       *realtime.Hub
	publisher DevicePublisher
	upgrader  websocket.Upgrader
}

// NewRealtimeHandler accepts upgrades only from allowedOrigins, or from
// same-origin requests when the list is empty.
func NewRealtimeHandler(hub *realtime.Hub, publisher DevicePublisher, allowedOrigins []string) *RealtimeHandler {
	allowed := middlewares.OriginSet(allowedOrigins)

	return &RealtimeHandler{
		hub:       hub,
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if len(allowed) == 0 {
					return origin == "http://"+r.Host || origin == "https://"+r.Host
				}
				return middlewares.OriginAllowed(allowed, origin)
			},
		},
	}
}

// Socket upgrades a guarded request and serves it until the peer leaves.
func (h *RealtimeHandler) Socket(ctx *gin.Context) {
	userID, _ := middlewares.UserIDFromContext(ctx)

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// upgrader already wrote the HTTP error
		return
	}

	h.hub.ServeConn(conn, userID)
}

type PublishDeviceEventRequest struct {
	Type string `json:"type" binding:"omitempty,max=64"`
	Data any    `json:"data"`
}

// PublishDeviceEvent lets operators push a device event into its room.
func (h *RealtimeHandler) PublishDeviceEvent(ctx *gin.Context) {
	deviceID := ctx.Param("id")

	var req PublishDeviceEventRequest
	if !BindJSON(ctx, &req) {
		return
	}

	err := h.publisher.Publish(ctx.Request.Context(), deviceID, req.Type, req.Data)
	if err != nil {
		if errors.Is(err, realtime.ErrInvalidDeviceID) {
			RespondBadRequest(ctx, "Invalid device id", gin.H{"deviceId": deviceID})
			return
		}
		RespondInternal(ctx, "Could not publish device event")
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"deviceId": deviceID,
		"room":     realtime.RoomName(deviceID),
	})
}

// Stats reports live connection counts for this process.
func (h *RealtimeHandler) Stats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"clients": h.hub.ClientCount()})
}
