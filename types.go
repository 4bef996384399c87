package campuschat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError is returned when the campus service answers with an error payload.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("campus api %d: %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("campus api %d: %s", e.Status, e.Message)
}

// Role identifies which side of a mentorship the local user is on.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
)

// Valid reports whether r is a role the campus service understands.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleMentor
}

// Actor is the local user driving a chat session.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// ============================================================================
// Conversations
// ============================================================================

// ConversationKind distinguishes direct threads from forums.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindForum  ConversationKind = "forum"
)

// UnmarshalJSON accepts the service's "dm" spelling for direct threads.
func (k *ConversationKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(s) {
	case "dm", "direct", "":
		*k = KindDirect
	case "forum":
		*k = KindForum
	default:
		*k = ConversationKind(s)
	}
	return nil
}

// Conversation is a direct message thread or forum visible to the actor.
type Conversation struct {
	ID              ID               `json:"id"`
	Name            string           `json:"name"`
	Kind            ConversationKind `json:"type"`
	LastMessage     string           `json:"last_message"`
	LastMessageTime *time.Time       `json:"-"`
	UnreadCount     int              `json:"unread_count"`
	ProfileImage    string           `json:"profile_image,omitempty"`
}

func (c *Conversation) UnmarshalJSON(data []byte) error {
	type plain Conversation
	aux := struct {
		*plain
		LastMessageTime string `json:"last_message_time"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.LastMessageTime = parseTime(aux.LastMessageTime)
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	return nil
}

func (c Conversation) MarshalJSON() ([]byte, error) {
	type plain Conversation
	aux := struct {
		plain
		LastMessageTime string `json:"last_message_time,omitempty"`
	}{plain: plain(c)}
	if c.LastMessageTime != nil {
		aux.LastMessageTime = c.LastMessageTime.Format(time.RFC3339Nano)
	}
	return json.Marshal(aux)
}

// ID is an opaque identifier. The service emits integers; we keep strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Mentor is a mentor a student can open a direct conversation with.
type Mentor struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// ============================================================================
// Messages
// ============================================================================

// DeliveryStatus tracks an own message through the delivery ticks.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Message is one chat line in a conversation.
type Message struct {
	ConversationID string         `json:"conversation_id" yaml:"conversation_id"`
	SenderName     string         `json:"sender_name" yaml:"sender_name"`
	Body           string         `json:"message" yaml:"message"`
	Timestamp      string         `json:"timestamp" yaml:"timestamp"`
	IsOwn          bool           `json:"is_own" yaml:"is_own"`
	Status         DeliveryStatus `json:"status,omitempty" yaml:"status,omitempty"`
	ClientID       string         `json:"client_id,omitempty" yaml:"client_id,omitempty"`
}

// Key returns the identity key and whether the message carries one.
func (m Message) Key() (MessageKey, bool) {
	if m.Timestamp == "" || m.SenderName == "" {
		return MessageKey{}, false
	}
	return MessageKey{Timestamp: m.Timestamp, Sender: m.SenderName}, true
}

// Time parses the message timestamp. Zero if absent or malformed.
func (m Message) Time() time.Time {
	if t := parseTime(m.Timestamp); t != nil {
		return *t
	}
	return time.Time{}
}

// MessageKey deduplicates messages within a conversation.
type MessageKey struct {
	Timestamp string
	Sender    string
}

// historyMessage is a message as returned by the history endpoint, which
// uses either "content" or "message" for the body.
type historyMessage struct {
	Content    string         `json:"content"`
	Message    string         `json:"message"`
	SenderName string         `json:"sender_name"`
	Timestamp  string         `json:"timestamp"`
	IsOwn      bool           `json:"is_own"`
	Status     DeliveryStatus `json:"status"`
}

func (h historyMessage) toMessage(conversationID string) Message {
	body := h.Content
	if body == "" {
		body = h.Message
	}
	status := h.Status
	if status == "" {
		status = StatusDelivered
	}
	return Message{
		ConversationID: conversationID,
		SenderName:     h.SenderName,
		Body:           body,
		Timestamp:      h.Timestamp,
		IsOwn:          h.IsOwn,
		Status:         status,
	}
}

// ============================================================================
// Real-time frames
// ============================================================================

// OutboundFrame is written to the chat socket when sending.
type OutboundFrame struct {
	Message    string         `json:"message"`
	SenderType Role           `json:"sender_type"`
	SenderID   string         `json:"sender_id"`
	Status     DeliveryStatus `json:"status"`
	ClientID   string         `json:"client_id,omitempty"`
}

// InboundFrame is a chat event pushed by the server. Error frames carry
// Error/Detail instead of a message.
type InboundFrame struct {
	Message    *string        `json:"message"`
	SenderName string         `json:"sender_name"`
	Timestamp  string         `json:"timestamp"`
	IsOwn      bool           `json:"is_own"`
	Status     DeliveryStatus `json:"status,omitempty"`
	ClientID   string         `json:"client_id,omitempty"`
	Error      string         `json:"error,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

// FrameError is a server-side error frame delivered over the socket.
type FrameError struct {
	Code   string
	Detail string
}

func (e *FrameError) Error() string {
	if e.Detail == "" {
		return "chat socket: " + e.Code
	}
	return "chat socket: " + e.Code + ": " + e.Detail
}

// ============================================================================
// Helpers
// ============================================================================

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
