// Package bus provides the in-process publish/subscribe hub and the message
// types shared by every component: inbound messages from channels, outbound
// replies from the agent, and lifecycle events.
//
// Three topics exist: inbound, outbound, and event. Delivery to a subscriber
// preserves publish order within a topic; there is no ordering across topics.
package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind represents the kind of a lifecycle event.
type EventKind string

const (
	EventConnect    EventKind = "connect"    // a channel adapter came up
	EventDisconnect EventKind = "disconnect" // a channel adapter went away
	EventError      EventKind = "error"      // a channel or executor failure
)

// InboundMessage represents one user (or scheduler-synthesized) turn received
// from a channel. It is created once and never mutated.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	SenderID  string            `json:"sender_id"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents the agent's reply to be delivered by the
// matching channel adapter.
type OutboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Event represents a connect/disconnect/error lifecycle signal.
type Event struct {
	Kind      EventKind `json:"kind"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Fatal     bool      `json:"fatal,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInboundMessage creates an InboundMessage stamped with the current time.
func NewInboundMessage(channel, chatID, senderID, content string) InboundMessage {
	return InboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewOutboundMessage creates an OutboundMessage stamped with the current time.
func NewOutboundMessage(channel, chatID, content string) OutboundMessage {
	return OutboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(kind EventKind, channel, chatID, detail string) Event {
	return Event{
		Kind:      kind,
		Channel:   channel,
		ChatID:    chatID,
		Detail:    detail,
		Timestamp: time.Now(),
	}
}

// SessionKey returns the conversation key for this message, "channel:chat".
func (m InboundMessage) SessionKey() string {
	return SessionKey(m.Channel, m.ChatID)
}

// SessionKey returns the conversation key for this message, "channel:chat".
func (m OutboundMessage) SessionKey() string {
	return SessionKey(m.Channel, m.ChatID)
}

// SessionKey returns the conversation key for this event. Events without a
// chat id return an empty key and never match a conversation.
func (e Event) SessionKey() string {
	if e.ChatID == "" {
		return ""
	}
	return SessionKey(e.Channel, e.ChatID)
}

// SessionKey builds the conversation key for a channel and chat id.
func SessionKey(channel, chatID string) string {
	return fmt.Sprintf("%s:%s", channel, chatID)
}

// ToJSON serializes the InboundMessage to JSON bytes.
func (m *InboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes the InboundMessage from JSON bytes.
func (m *InboundMessage) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

// ToJSON serializes the OutboundMessage to JSON bytes.
func (m *OutboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes the OutboundMessage from JSON bytes.
func (m *OutboundMessage) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}
