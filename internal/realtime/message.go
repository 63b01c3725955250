package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// Client to server
const (
	MessageTypeJoinDevice  = "join-device"
	MessageTypeLeaveDevice = "leave-device"
	MessageTypePing        = "ping"
)

// Server to client
const (
	MessageTypeJoined       = "joined"
	MessageTypeLeft         = "left"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
	MessageTypeDeviceUpdate = "device-update"
)

const roomPrefix = "device-"

var (
	ErrInvalidDeviceID = errors.New("invalid device id")

	deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// Message is the envelope for everything written to a connection.
type Message struct {
	Type     string `json:"type"`
	Room     string `json:"room,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

type inbound struct {
	Type     string   `json:"type"`
	DeviceID DeviceID `json:"deviceId"`
}

// DeviceID accepts either a JSON string or a JSON number.
type DeviceID string

func (d *DeviceID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = DeviceID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return ErrInvalidDeviceID
	}
	*d = DeviceID(n.String())
	return nil
}

// RoomName maps a device id to its room, device-{id}.
func RoomName(deviceID string) string {
	return roomPrefix + deviceID
}

func validateDeviceID(id string) error {
	if !deviceIDPattern.MatchString(id) {
		return ErrInvalidDeviceID
	}
	return nil
}
