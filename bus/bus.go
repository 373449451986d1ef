// Package bus defines the narrow message-bus adapter the moderation engine
// uses to receive chat events and apply side effects (sending, deleting,
// restricting). The engine is transport-agnostic; concrete chat platform
// clients implement Bus.
package bus

import (
	"context"
	"fmt"
)

// EventKind is a closed set of inbound event types.
type EventKind string

const (
	EventMessage  EventKind = "message"
	EventJoin     EventKind = "join"
	EventLeave    EventKind = "leave"
	EventCallback EventKind = "callback"
)

// Member role within a chat, as reported by the transport or the permissions
// table. Creator and Admin and Mod are all "authorized" for moderation flows.
type Role string

const (
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
	RoleMod     Role = "mod"
	RoleMember  Role = "member"
	RoleNone    Role = ""
)

// Authorized indicates whether the role may run moderation flows.
func (r Role) Authorized() bool {
	switch r {
	case RoleCreator, RoleAdmin, RoleMod:
		return true
	}
	return false
}

// Capability names a member permission which can be granted or revoked.
type Capability string

const (
	CapSendMessages Capability = "send_messages"
)

// Event is a single inbound chat event. Fields are populated depending on
// Kind: MessageID and Text for messages, Data for callbacks. UserID is the
// sender for messages and callbacks, and the joining/leaving member for join
// and leave events.
type Event struct {
	Kind      EventKind `json:"kind"`
	EventID   string    `json:"event_id,omitempty"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	MessageID string    `json:"message_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Data      string    `json:"data,omitempty"`
}

func (e *Event) Validate() error {
	if e.ChatID == "" || e.UserID == "" {
		return fmt.Errorf("event missing chat or user identifier")
	}
	switch e.Kind {
	case EventMessage:
		if e.MessageID == "" {
			return fmt.Errorf("message event missing message identifier")
		}
	case EventCallback:
		if e.Data == "" {
			return fmt.Errorf("callback event missing data")
		}
	case EventJoin, EventLeave:
		// no extra fields required
	default:
		return fmt.Errorf("unexpected event kind: %s", e.Kind)
	}
	return nil
}

// Inline button attached to an outbound message. Pressing it produces a
// callback event carrying Data.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// SendOpts carries optional parameters for SendMessage.
type SendOpts struct {
	// message ID to reply to, if the transport supports threading
	ReplyTo string
	// rows of inline buttons
	Buttons [][]Button
}

// Bus is the outbound side of the transport adapter.
type Bus interface {
	SendMessage(ctx context.Context, chatID, text string, opts *SendOpts) (string, error)
	DeleteMessage(ctx context.Context, chatID, messageID string) error
	RestrictUser(ctx context.Context, chatID, userID string, cap Capability, allowed bool) error
	BanUser(ctx context.Context, chatID, userID string) error
	KickUser(ctx context.Context, chatID, userID string) error
	GetMemberRole(ctx context.Context, chatID, userID string) (Role, error)
}
