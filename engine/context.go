package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/settings"
)

// The primary interface exposed to rules. All other contexts derive from
// this "base" struct.
type BaseContext struct {
	// Actual golang "context.Context", if needed for timeouts etc
	Ctx context.Context
	// Any errors encountered while processing methods on this struct (or
	// sub-types) get rolled up in this nullable field
	Err error
	// slog logger handle, with event-specific structured fields
	// pre-populated. Pointer, but expected to never be nil.
	Logger *slog.Logger

	engine  *Engine // NOTE: pointer, but expected never to be nil
	effects *Effects
}

// MessageContext is the per-message processing context handed to every
// pipeline rule.
type MessageContext struct {
	BaseContext

	ChatID    string
	UserID    string
	MessageID string
	Text      string
	Now       time.Time
}

type JoinContext struct {
	BaseContext

	ChatID string
	UserID string
	Now    time.Time
}

type LeaveContext struct {
	BaseContext

	ChatID string
	UserID string
	Now    time.Time
}

type CallbackContext struct {
	BaseContext

	ChatID    string
	UserID    string
	MessageID string
	Data      string
	Now       time.Time
}

func newBaseContext(ctx context.Context, eng *Engine, logger *slog.Logger) BaseContext {
	return BaseContext{
		Ctx:     ctx,
		Err:     nil,
		Logger:  logger,
		engine:  eng,
		effects: &Effects{},
	}
}

func NewMessageContext(ctx context.Context, eng *Engine, evt bus.Event, now time.Time) MessageContext {
	return MessageContext{
		BaseContext: newBaseContext(ctx, eng, eng.Logger.With("chat", evt.ChatID, "user", evt.UserID, "msg", evt.MessageID)),
		ChatID:      evt.ChatID,
		UserID:      evt.UserID,
		MessageID:   evt.MessageID,
		Text:        evt.Text,
		Now:         now,
	}
}

func NewJoinContext(ctx context.Context, eng *Engine, evt bus.Event, now time.Time) JoinContext {
	return JoinContext{
		BaseContext: newBaseContext(ctx, eng, eng.Logger.With("chat", evt.ChatID, "user", evt.UserID)),
		ChatID:      evt.ChatID,
		UserID:      evt.UserID,
		Now:         now,
	}
}

func NewLeaveContext(ctx context.Context, eng *Engine, evt bus.Event, now time.Time) LeaveContext {
	return LeaveContext{
		BaseContext: newBaseContext(ctx, eng, eng.Logger.With("chat", evt.ChatID, "user", evt.UserID)),
		ChatID:      evt.ChatID,
		UserID:      evt.UserID,
		Now:         now,
	}
}

func NewCallbackContext(ctx context.Context, eng *Engine, evt bus.Event, now time.Time) CallbackContext {
	return CallbackContext{
		BaseContext: newBaseContext(ctx, eng, eng.Logger.With("chat", evt.ChatID, "user", evt.UserID)),
		ChatID:      evt.ChatID,
		UserID:      evt.UserID,
		MessageID:   evt.MessageID,
		Data:        evt.Data,
		Now:         now,
	}
}

// request external state via engine (indirect) ======

// GetCount reads a moderation counter.
func (c *BaseContext) GetCount(name, val, period string) int {
	out, err := c.engine.Counters.GetCount(c.Ctx, name, val, period)
	if err != nil {
		if c.Err == nil {
			c.Err = err
		}
		return 0
	}
	return out
}

// IsAuthorized reports whether the user may run moderation flows in the
// chat: a role in the permissions table, or an admin-equivalent role reported
// by the transport. Lookup failures deny rather than allow.
func (c *BaseContext) IsAuthorized(chatID, userID string) bool {
	role, err := c.engine.Settings.GetRole(c.Ctx, chatID, userID)
	if err != nil {
		c.Logger.Warn("permissions lookup failed", "err", err)
	} else if role.Authorized() {
		return true
	}
	role, err = c.engine.Bus.GetMemberRole(c.Ctx, chatID, userID)
	if err != nil {
		c.Logger.Warn("member role lookup failed", "err", err)
		return false
	}
	return role.Authorized()
}

// FloodPolicy returns the chat's flood policy: nil when the feature is off
// (no row), and the fail-safe default when the settings read errors out. A
// broken settings store must tighten moderation, not disable it.
func (c *MessageContext) FloodPolicy() *settings.FloodPolicy {
	pol, err := c.engine.Settings.GetFloodPolicy(c.Ctx, c.ChatID)
	if err != nil {
		c.Logger.Warn("flood policy read failed, enforcing default policy", "err", err)
		return settings.DefaultFloodPolicy(c.ChatID)
	}
	return pol
}

// ChatFlags returns the chat's feature toggles, zero-valued when absent or
// unreadable.
func (c *BaseContext) ChatFlags(chatID string) *settings.ChatFlags {
	f, err := c.engine.Settings.GetChatFlags(c.Ctx, chatID)
	if err != nil {
		c.Logger.Warn("chat flags read failed", "err", err)
		return &settings.ChatFlags{ChatID: chatID}
	}
	if f == nil {
		return &settings.ChatFlags{ChatID: chatID}
	}
	return f
}

// update effects (indirect) ======

func (c *BaseContext) Increment(name, val string) {
	c.effects.Increment(name, val)
}

func (c *BaseContext) IncrementDistinct(name, bucket, val string) {
	c.effects.IncrementDistinct(name, bucket, val)
}
