// Package filters implements chat-scoped blacklist and trigger matching.
// Rule lists are cached per chat after first load, together with their
// compiled patterns; the cache is invalidation-based only, so an admin's
// change is live for the very next message. All rule mutations go through
// this package so validation and invalidation can't be bypassed.
package filters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/warden-social/warden/settings"
)

// Rule field limits, enforced at add time.
const (
	MaxPatternLen  = 100
	MaxResponseLen = 1000
)

// ErrInvalidRule marks a user-supplied rule that failed validation. Always
// recoverable; the caller reports it and re-prompts.
var ErrInvalidRule = errors.New("invalid rule")

type compiledPattern struct {
	literal string // lowercased, for substring match
	re      *regexp.Regexp
}

func compile(pattern string, isRegex bool) (compiledPattern, error) {
	if isRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return compiledPattern{}, fmt.Errorf("%w: pattern does not compile: %v", ErrInvalidRule, err)
		}
		return compiledPattern{re: re}, nil
	}
	return compiledPattern{literal: strings.ToLower(pattern)}, nil
}

// matches reports whether the pattern occurs anywhere in text,
// case-insensitive. Literal patterns are substring matches, never whole-word.
func (p compiledPattern) matches(text string) bool {
	if p.re != nil {
		return p.re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), p.literal)
}

type compiledRule struct {
	pattern  compiledPattern
	response string // triggers only
	source   string // original pattern text
}

type chatRules struct {
	mu sync.Mutex

	blacklist       []compiledRule
	blacklistLoaded bool
	triggers        []compiledRule
	triggersLoaded  bool
}

// Checker matches message text against a chat's blacklist and trigger rules.
type Checker struct {
	store  settings.Store
	rules  *xsync.MapOf[string, *chatRules]
	logger *slog.Logger
}

func NewChecker(store settings.Store, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		store:  store,
		rules:  xsync.NewMapOf[string, *chatRules](),
		logger: logger,
	}
}

func (c *Checker) entry(chatID string) *chatRules {
	cr, _ := c.rules.LoadOrCompute(chatID, func() *chatRules {
		return &chatRules{}
	})
	return cr
}

// Invalidate drops the chat's cached rules. Called after every rule mutation;
// also safe to call if the underlying tables were changed out of band.
func (c *Checker) Invalidate(chatID string) {
	c.rules.Delete(chatID)
}

func (c *Checker) loadBlacklist(ctx context.Context, chatID string, cr *chatRules) error {
	if cr.blacklistLoaded {
		return nil
	}
	entries, err := c.store.ListBlacklist(ctx, chatID)
	if err != nil {
		return err
	}
	rules := make([]compiledRule, 0, len(entries))
	for _, e := range entries {
		p, err := compile(e.Pattern, e.IsRegex)
		if err != nil {
			// can only happen if an invalid pattern reached the store out of
			// band; skip it rather than poisoning the whole list
			c.logger.Warn("skipping stored blacklist pattern that does not compile", "chat", chatID, "pattern", e.Pattern)
			continue
		}
		rules = append(rules, compiledRule{pattern: p, source: e.Pattern})
	}
	cr.blacklist = rules
	cr.blacklistLoaded = true
	return nil
}

func (c *Checker) loadTriggers(ctx context.Context, chatID string, cr *chatRules) error {
	if cr.triggersLoaded {
		return nil
	}
	trigs, err := c.store.ListTriggers(ctx, chatID)
	if err != nil {
		return err
	}
	rules := make([]compiledRule, 0, len(trigs))
	for _, t := range trigs {
		p, err := compile(t.Keyword, t.IsRegex)
		if err != nil {
			c.logger.Warn("skipping stored trigger keyword that does not compile", "chat", chatID, "keyword", t.Keyword)
			continue
		}
		rules = append(rules, compiledRule{pattern: p, response: t.Response, source: t.Keyword})
	}
	cr.triggers = rules
	cr.triggersLoaded = true
	return nil
}

// MatchBlacklist reports whether any blacklist rule matches the text.
// First-match-wins in insertion order.
func (c *Checker) MatchBlacklist(ctx context.Context, chatID, text string) (bool, string, error) {
	cr := c.entry(chatID)
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if err := c.loadBlacklist(ctx, chatID, cr); err != nil {
		return false, "", err
	}
	for _, r := range cr.blacklist {
		if r.pattern.matches(text) {
			return true, r.source, nil
		}
	}
	return false, "", nil
}

// MatchTrigger returns the response of the first trigger whose keyword
// matches the text, or "" when none match.
func (c *Checker) MatchTrigger(ctx context.Context, chatID, text string) (string, bool, error) {
	cr := c.entry(chatID)
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if err := c.loadTriggers(ctx, chatID, cr); err != nil {
		return "", false, err
	}
	for _, r := range cr.triggers {
		if r.pattern.matches(text) {
			return r.response, true, nil
		}
	}
	return "", false, nil
}

// AddBlacklist validates and stores a new blacklist rule. Invalid regex
// patterns are rejected here and never stored.
func (c *Checker) AddBlacklist(ctx context.Context, chatID, pattern string, isRegex bool) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}
	if len(pattern) > MaxPatternLen {
		return fmt.Errorf("%w: pattern longer than %d characters", ErrInvalidRule, MaxPatternLen)
	}
	if _, err := compile(pattern, isRegex); err != nil {
		return err
	}
	if err := c.store.AddBlacklistEntry(ctx, &settings.BlacklistEntry{
		ChatID:  chatID,
		Pattern: pattern,
		IsRegex: isRegex,
	}); err != nil {
		return err
	}
	c.Invalidate(chatID)
	return nil
}

func (c *Checker) RemoveBlacklist(ctx context.Context, chatID, pattern string) (bool, error) {
	found, err := c.store.RemoveBlacklistEntry(ctx, chatID, pattern)
	if err != nil {
		return false, err
	}
	if found {
		c.Invalidate(chatID)
	}
	return found, nil
}

// AddTrigger validates and stores a new trigger rule.
func (c *Checker) AddTrigger(ctx context.Context, chatID, keyword, response string, isRegex bool) error {
	if keyword == "" || response == "" {
		return fmt.Errorf("%w: keyword and response must both be non-empty", ErrInvalidRule)
	}
	if len(keyword) > MaxPatternLen {
		return fmt.Errorf("%w: keyword longer than %d characters", ErrInvalidRule, MaxPatternLen)
	}
	if len(response) > MaxResponseLen {
		return fmt.Errorf("%w: response longer than %d characters", ErrInvalidRule, MaxResponseLen)
	}
	if _, err := compile(keyword, isRegex); err != nil {
		return err
	}
	if err := c.store.AddTrigger(ctx, &settings.Trigger{
		ChatID:   chatID,
		Keyword:  keyword,
		Response: response,
		IsRegex:  isRegex,
	}); err != nil {
		return err
	}
	c.Invalidate(chatID)
	return nil
}

func (c *Checker) UpdateTriggerResponse(ctx context.Context, chatID, keyword, response string) (bool, error) {
	if response == "" {
		return false, fmt.Errorf("%w: response must be non-empty", ErrInvalidRule)
	}
	if len(response) > MaxResponseLen {
		return false, fmt.Errorf("%w: response longer than %d characters", ErrInvalidRule, MaxResponseLen)
	}
	found, err := c.store.UpdateTriggerResponse(ctx, chatID, keyword, response)
	if err != nil {
		return false, err
	}
	if found {
		c.Invalidate(chatID)
	}
	return found, nil
}

func (c *Checker) RemoveTrigger(ctx context.Context, chatID, keyword string) (bool, error) {
	found, err := c.store.RemoveTrigger(ctx, chatID, keyword)
	if err != nil {
		return false, err
	}
	if found {
		c.Invalidate(chatID)
	}
	return found, nil
}
