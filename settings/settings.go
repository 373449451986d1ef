// Package settings owns per-chat moderation configuration: flood policy,
// blacklist and trigger rules, captcha policy, greetings, feature flags, and
// the permissions table. The engine holds no authoritative copy of any of
// this; it reads through a cache-fronted Store.
package settings

import (
	"context"
	"time"

	"github.com/warden-social/warden/bus"
)

// Enforcement response applied when a user exceeds the flood threshold.
type FloodAction string

const (
	FloodActionDelete FloodAction = "delete"
	FloodActionMute   FloodAction = "mute"
	FloodActionBan    FloodAction = "ban"
)

type CaptchaType string

const (
	CaptchaTypeMath  CaptchaType = "math"
	CaptchaTypeText  CaptchaType = "text"
	CaptchaTypeImage CaptchaType = "image"
)

type CaptchaDifficulty string

const (
	CaptchaEasy   CaptchaDifficulty = "easy"
	CaptchaMedium CaptchaDifficulty = "medium"
	CaptchaHard   CaptchaDifficulty = "hard"
)

type CaptchaFailAction string

const (
	CaptchaFailKick CaptchaFailAction = "kick"
	CaptchaFailMute CaptchaFailAction = "mute"
)

// Documented defaults, used when no row exists or a read fails on the
// moderation path.
const (
	DefaultFloodLimit           = 5
	DefaultCaptchaTimeLimitSecs = 300
)

// At most one FloodPolicy row per chat; chat ID is the primary key.
type FloodPolicy struct {
	ChatID    string `gorm:"primaryKey"`
	Enabled   bool
	Limit     int
	Action    FloodAction
	UpdatedAt time.Time
}

// DefaultFloodPolicy is the fail-safe policy: when a settings read errors out
// mid-pipeline the engine enforces this rather than skipping the check.
func DefaultFloodPolicy(chatID string) *FloodPolicy {
	return &FloodPolicy{
		ChatID:  chatID,
		Enabled: true,
		Limit:   DefaultFloodLimit,
		Action:  FloodActionDelete,
	}
}

type BlacklistEntry struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    string `gorm:"index"`
	Pattern   string
	IsRegex   bool
	CreatedAt time.Time
}

type Trigger struct {
	ID        uint   `gorm:"primaryKey"`
	ChatID    string `gorm:"index"`
	Keyword   string
	Response  string
	IsRegex   bool
	CreatedAt time.Time
}

type CaptchaPolicy struct {
	ChatID        string `gorm:"primaryKey"`
	Enabled       bool
	Type          CaptchaType
	Difficulty    CaptchaDifficulty
	TimeLimitSecs int
	FailAction    CaptchaFailAction
	UpdatedAt     time.Time
}

func DefaultCaptchaPolicy(chatID string) *CaptchaPolicy {
	return &CaptchaPolicy{
		ChatID:        chatID,
		Enabled:       false,
		Type:          CaptchaTypeMath,
		Difficulty:    CaptchaEasy,
		TimeLimitSecs: DefaultCaptchaTimeLimitSecs,
		FailAction:    CaptchaFailKick,
	}
}

func (p *CaptchaPolicy) TimeLimit() time.Duration {
	if p.TimeLimitSecs <= 0 {
		return DefaultCaptchaTimeLimitSecs * time.Second
	}
	return time.Duration(p.TimeLimitSecs) * time.Second
}

type Greeting struct {
	ChatID         string `gorm:"primaryKey"`
	WelcomeEnabled bool
	WelcomeText    string
	LeaveEnabled   bool
	LeaveText      string
	UpdatedAt      time.Time
}

// Per-chat feature toggles that don't warrant their own policy table.
type ChatFlags struct {
	ChatID           string `gorm:"primaryKey"`
	ArchiveEnabled   bool
	ArchiveChannelID string
	LinkLockEnabled  bool
	Language         string
	UpdatedAt        time.Time
}

// Permission records a moderation role granted within a chat, supplementing
// whatever the transport reports.
type Permission struct {
	ChatID    string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	Role      bus.Role
	UpdatedAt time.Time
}

// Store is the settings persistence interface. Getters for single-row
// policies return (nil, nil) when no row exists; the caller applies
// documented defaults. List methods return rules in insertion order.
type Store interface {
	GetFloodPolicy(ctx context.Context, chatID string) (*FloodPolicy, error)
	PutFloodPolicy(ctx context.Context, pol *FloodPolicy) error

	ListBlacklist(ctx context.Context, chatID string) ([]BlacklistEntry, error)
	AddBlacklistEntry(ctx context.Context, entry *BlacklistEntry) error
	RemoveBlacklistEntry(ctx context.Context, chatID, pattern string) (bool, error)

	ListTriggers(ctx context.Context, chatID string) ([]Trigger, error)
	AddTrigger(ctx context.Context, trig *Trigger) error
	UpdateTriggerResponse(ctx context.Context, chatID, keyword, response string) (bool, error)
	RemoveTrigger(ctx context.Context, chatID, keyword string) (bool, error)

	GetCaptchaPolicy(ctx context.Context, chatID string) (*CaptchaPolicy, error)
	PutCaptchaPolicy(ctx context.Context, pol *CaptchaPolicy) error

	GetGreeting(ctx context.Context, chatID string) (*Greeting, error)
	PutGreeting(ctx context.Context, g *Greeting) error

	GetChatFlags(ctx context.Context, chatID string) (*ChatFlags, error)
	PutChatFlags(ctx context.Context, f *ChatFlags) error

	GetRole(ctx context.Context, chatID, userID string) (bus.Role, error)
	SetRole(ctx context.Context, chatID, userID string, role bus.Role) error
}
