package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

// Client is one realtime connection. The hub owns its send channel.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, sendBuffer),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() string {
	return c.userID
}

// Serve registers c and pumps until the peer goes away. It blocks on the
// read side; writes run on their own goroutine.
func (c *Client) Serve() {
	c.hub.Register(c)
	go c.writePump()
	c.readPump()
}

// ServeConn wraps an upgraded connection for an authenticated user and
// serves it.
func (h *Hub) ServeConn(conn *websocket.Conn, userID string) {
	NewClient(h, conn, userID).Serve()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Error("realtime set read deadline failed", "conn_id", c.id, "err", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("realtime unexpected close", "conn_id", c.id, "err", err)
			}
			return
		}

		c.handle(payload)
	}
}

func (c *Client) handle(payload []byte) {
	var in inbound
	if err := json.Unmarshal(payload, &in); err != nil {
		c.reply(Message{Type: MessageTypeError, Error: "malformed message"})
		return
	}

	switch in.Type {
	case MessageTypeJoinDevice, MessageTypeLeaveDevice:
		id := string(in.DeviceID)
		if err := validateDeviceID(id); err != nil {
			c.reply(Message{Type: MessageTypeError, DeviceID: id, Error: err.Error()})
			return
		}

		if in.Type == MessageTypeJoinDevice {
			room, _ := c.hub.Join(c, id)
			c.reply(Message{Type: MessageTypeJoined, Room: room, DeviceID: id})
			return
		}

		room := c.hub.Leave(c, id)
		c.reply(Message{Type: MessageTypeLeft, Room: room, DeviceID: id})

	case MessageTypePing:
		c.reply(Message{Type: MessageTypePong})

	default:
		c.reply(Message{Type: MessageTypeError, Error: "unknown message type"})
	}
}

func (c *Client) reply(msg Message) {
	if !c.hub.send(c, msg) {
		c.hub.log.Debug("realtime reply dropped", "conn_id", c.id, "type", msg.Type)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if !ok {
				// hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.hub.log.Debug("realtime write failed", "conn_id", c.id, "err", err)
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
