// Package pending tracks ephemeral multi-step admin operations: an admin
// picks an action ("add trigger"), the engine parks an Operation here, and
// the next free-text message from an authorized user is consumed as input.
// Operations expire and are lost on restart by design.
package pending

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Kind enumerates the multi-step operations. The set is closed: the engine's
// input router switches over it exhaustively, so an unhandled kind is a
// compile-visible gap rather than a silently dropped string key.
type Kind int

const (
	KindNone Kind = iota
	KindSetWelcome
	KindSetLeave
	KindAddTrigger
	KindEditTriggerKeyword
	KindEditTriggerResponse
	KindRemoveTrigger
	KindAddBlacklist
	KindRemoveBlacklist
	KindSetFloodLimit
	KindSetCaptchaPolicy
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSetWelcome:
		return "set-welcome"
	case KindSetLeave:
		return "set-leave"
	case KindAddTrigger:
		return "add-trigger"
	case KindEditTriggerKeyword:
		return "edit-trigger-keyword"
	case KindEditTriggerResponse:
		return "edit-trigger-response"
	case KindRemoveTrigger:
		return "remove-trigger"
	case KindAddBlacklist:
		return "add-blacklist"
	case KindRemoveBlacklist:
		return "remove-blacklist"
	case KindSetFloodLimit:
		return "set-flood-limit"
	case KindSetCaptchaPolicy:
		return "set-captcha-policy"
	}
	return "unknown"
}

// DefaultTTL is how long an operation waits for its next input.
const DefaultTTL = 300 * time.Second

// SweepInterval is how often expired operations are collected eagerly.
const SweepInterval = 60 * time.Second

// Operation is a single in-flight multi-step flow. Fields collected in
// earlier steps accumulate in Fields (two-step flows transition Kind rather
// than adding states). ExpiresAt is absolute and is not extended by failed
// validation attempts.
type Operation struct {
	Kind      Kind
	Fields    map[string]string
	ExpiresAt time.Time
}

func (op *Operation) Expired(now time.Time) bool {
	return now.After(op.ExpiresAt)
}

// Store holds at most one Operation per key. Admin flows key by chat ID,
// enforcing the one-flow-per-chat invariant; captcha-adjacent flows key by
// chat+user. Expiry is enforced lazily on Get and eagerly by Sweep.
type Store struct {
	ops    *xsync.MapOf[string, *Operation]
	ttl    time.Duration
	logger *slog.Logger
}

func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ops:    xsync.NewMapOf[string, *Operation](),
		ttl:    ttl,
		logger: logger,
	}
}

// ChatKey is the store key for per-chat admin flows.
func ChatKey(chatID string) string { return chatID }

// UserKey is the store key for per-(chat,user) flows.
func UserKey(chatID, userID string) string { return chatID + "/" + userID }

// Get returns a snapshot of the live operation for the key, deleting it if it
// has expired. Stored operations are never mutated in place: the snapshot is
// the caller's to write, and Advance publishes it back, so two messages racing
// on the same key each work on private state.
func (s *Store) Get(key string, now time.Time) (*Operation, bool) {
	op, ok := s.ops.Load(key)
	if !ok {
		return nil, false
	}
	if op.Expired(now) {
		s.ops.Delete(key)
		return nil, false
	}
	cp := *op
	cp.Fields = maps.Clone(op.Fields)
	return &cp, true
}

// Begin replaces any prior operation under the key with a fresh one carrying
// the default TTL. Like Get, it returns a snapshot rather than the stored
// operation.
func (s *Store) Begin(key string, kind Kind, now time.Time) *Operation {
	op := &Operation{
		Kind:      kind,
		Fields:    make(map[string]string),
		ExpiresAt: now.Add(s.ttl),
	}
	s.ops.Store(key, op)
	cp := *op
	cp.Fields = maps.Clone(op.Fields)
	return &cp
}

// Advance publishes the caller's snapshot under the next step's kind,
// preserving the original expiry. Last writer wins when inputs race.
func (s *Store) Advance(key string, op *Operation, next Kind) {
	op.Kind = next
	s.ops.Store(key, op)
}

// Delete consumes the operation, on completion or cancellation.
func (s *Store) Delete(key string) {
	s.ops.Delete(key)
}

// Sweep removes expired operations. Returns the number removed. Expiry does
// not notify anyone; the next interaction simply finds no operation.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	s.ops.Range(func(k string, op *Operation) bool {
		if op.Expired(now) {
			s.ops.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Run sweeps on a fixed interval until the context is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(time.Now()); n > 0 {
				s.logger.Debug("swept expired pending operations", "count", n)
			}
		}
	}
}

// Len reports the number of live operations (including not-yet-swept expired
// ones).
func (s *Store) Len() int {
	return s.ops.Size()
}
