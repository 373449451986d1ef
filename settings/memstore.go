package settings

import (
	"context"
	"sync"

	"github.com/warden-social/warden/bus"
)

// MemStore is an in-memory Store for tests and small deployments.
type MemStore struct {
	mu          sync.Mutex
	flood       map[string]FloodPolicy
	blacklist   map[string][]BlacklistEntry
	triggers    map[string][]Trigger
	captcha     map[string]CaptchaPolicy
	greetings   map[string]Greeting
	flags       map[string]ChatFlags
	permissions map[string]bus.Role
	nextID      uint

	// when set, every method returns this error; used to test fail-safe paths
	FailWith error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		flood:       make(map[string]FloodPolicy),
		blacklist:   make(map[string][]BlacklistEntry),
		triggers:    make(map[string][]Trigger),
		captcha:     make(map[string]CaptchaPolicy),
		greetings:   make(map[string]Greeting),
		flags:       make(map[string]ChatFlags),
		permissions: make(map[string]bus.Role),
	}
}

func (s *MemStore) GetFloodPolicy(ctx context.Context, chatID string) (*FloodPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	pol, ok := s.flood[chatID]
	if !ok {
		return nil, nil
	}
	return &pol, nil
}

func (s *MemStore) PutFloodPolicy(ctx context.Context, pol *FloodPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.flood[pol.ChatID] = *pol
	return nil
}

func (s *MemStore) ListBlacklist(ctx context.Context, chatID string) ([]BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]BlacklistEntry, len(s.blacklist[chatID]))
	copy(out, s.blacklist[chatID])
	return out, nil
}

func (s *MemStore) AddBlacklistEntry(ctx context.Context, entry *BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.nextID++
	entry.ID = s.nextID
	s.blacklist[entry.ChatID] = append(s.blacklist[entry.ChatID], *entry)
	return nil
}

func (s *MemStore) RemoveBlacklistEntry(ctx context.Context, chatID, pattern string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return false, s.FailWith
	}
	entries := s.blacklist[chatID]
	for i, e := range entries {
		if e.Pattern == pattern {
			s.blacklist[chatID] = append(entries[:i:i], entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListTriggers(ctx context.Context, chatID string) ([]Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]Trigger, len(s.triggers[chatID]))
	copy(out, s.triggers[chatID])
	return out, nil
}

func (s *MemStore) AddTrigger(ctx context.Context, trig *Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.nextID++
	trig.ID = s.nextID
	s.triggers[trig.ChatID] = append(s.triggers[trig.ChatID], *trig)
	return nil
}

func (s *MemStore) UpdateTriggerResponse(ctx context.Context, chatID, keyword, response string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return false, s.FailWith
	}
	trigs := s.triggers[chatID]
	for i := range trigs {
		if trigs[i].Keyword == keyword {
			trigs[i].Response = response
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) RemoveTrigger(ctx context.Context, chatID, keyword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return false, s.FailWith
	}
	trigs := s.triggers[chatID]
	for i, t := range trigs {
		if t.Keyword == keyword {
			s.triggers[chatID] = append(trigs[:i:i], trigs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) GetCaptchaPolicy(ctx context.Context, chatID string) (*CaptchaPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	pol, ok := s.captcha[chatID]
	if !ok {
		return nil, nil
	}
	return &pol, nil
}

func (s *MemStore) PutCaptchaPolicy(ctx context.Context, pol *CaptchaPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.captcha[pol.ChatID] = *pol
	return nil
}

func (s *MemStore) GetGreeting(ctx context.Context, chatID string) (*Greeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	g, ok := s.greetings[chatID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *MemStore) PutGreeting(ctx context.Context, g *Greeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.greetings[g.ChatID] = *g
	return nil
}

func (s *MemStore) GetChatFlags(ctx context.Context, chatID string) (*ChatFlags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	f, ok := s.flags[chatID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (s *MemStore) PutChatFlags(ctx context.Context, f *ChatFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.flags[f.ChatID] = *f
	return nil
}

func (s *MemStore) GetRole(ctx context.Context, chatID, userID string) (bus.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return bus.RoleNone, s.FailWith
	}
	return s.permissions[chatID+"/"+userID], nil
}

func (s *MemStore) SetRole(ctx context.Context, chatID, userID string, role bus.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.permissions[chatID+"/"+userID] = role
	return nil
}
