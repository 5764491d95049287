package ws

import (
	"github.com/appleblox/gamewatch/internal/rules"
	"github.com/appleblox/gamewatch/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgEvents   MessageType = "events"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Current  session.Session   `json:"current"`
	Sessions []session.Session `json:"sessions"`
}

// EventsPayload carries bus events in publish order.
type EventsPayload struct {
	Events []rules.Event `json:"events"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
