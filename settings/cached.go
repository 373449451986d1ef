package settings

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/cachestore"
)

// Cache namespaces, one per feature table.
const (
	cacheFlood    = "flood"
	cacheCaptcha  = "captcha"
	cacheGreeting = "greeting"
	cacheFlags    = "flags"
	cacheRole     = "role"
)

// Cached fronts a Store with a read-through cache for the single-row policy
// tables. Absent rows are cached too ("null"), so chats with default config
// don't hammer the store on every message.
//
// Every mutation writes to the store first and only then purges the cache
// entry. A reader racing the purge may see the old value, but once the write
// has been acknowledged no subsequent read observes stale config.
//
// Rule lists (blacklist, triggers) are not cached here; the filters package
// owns those together with their compiled patterns.
type Cached struct {
	inner  Store
	cache  cachestore.CacheStore
	logger *slog.Logger
}

var _ Store = (*Cached)(nil)

func NewCached(inner Store, cache cachestore.CacheStore, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, cache: cache, logger: logger}
}

func getCached[T any](ctx context.Context, c *Cached, name, key string, load func(context.Context) (*T, error)) (*T, error) {
	raw, err := c.cache.Get(ctx, name, key)
	if err != nil {
		c.logger.Warn("settings cache read failed", "name", name, "key", key, "err", err)
	} else if raw == "null" {
		return nil, nil
	} else if raw != "" {
		var v T
		if jerr := json.Unmarshal([]byte(raw), &v); jerr == nil {
			return &v, nil
		}
		c.logger.Warn("settings cache entry corrupt, reloading", "name", name, "key", key)
	}

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err == nil {
		if serr := c.cache.Set(ctx, name, key, string(b)); serr != nil {
			c.logger.Warn("settings cache write failed", "name", name, "key", key, "err", serr)
		}
	}
	return v, nil
}

func (c *Cached) purge(ctx context.Context, name, key string) {
	if err := c.cache.Purge(ctx, name, key); err != nil {
		c.logger.Warn("settings cache purge failed", "name", name, "key", key, "err", err)
	}
}

func (c *Cached) GetFloodPolicy(ctx context.Context, chatID string) (*FloodPolicy, error) {
	return getCached(ctx, c, cacheFlood, chatID, func(ctx context.Context) (*FloodPolicy, error) {
		return c.inner.GetFloodPolicy(ctx, chatID)
	})
}

func (c *Cached) PutFloodPolicy(ctx context.Context, pol *FloodPolicy) error {
	if err := c.inner.PutFloodPolicy(ctx, pol); err != nil {
		return err
	}
	c.purge(ctx, cacheFlood, pol.ChatID)
	return nil
}

func (c *Cached) ListBlacklist(ctx context.Context, chatID string) ([]BlacklistEntry, error) {
	return c.inner.ListBlacklist(ctx, chatID)
}

func (c *Cached) AddBlacklistEntry(ctx context.Context, entry *BlacklistEntry) error {
	return c.inner.AddBlacklistEntry(ctx, entry)
}

func (c *Cached) RemoveBlacklistEntry(ctx context.Context, chatID, pattern string) (bool, error) {
	return c.inner.RemoveBlacklistEntry(ctx, chatID, pattern)
}

func (c *Cached) ListTriggers(ctx context.Context, chatID string) ([]Trigger, error) {
	return c.inner.ListTriggers(ctx, chatID)
}

func (c *Cached) AddTrigger(ctx context.Context, trig *Trigger) error {
	return c.inner.AddTrigger(ctx, trig)
}

func (c *Cached) UpdateTriggerResponse(ctx context.Context, chatID, keyword, response string) (bool, error) {
	return c.inner.UpdateTriggerResponse(ctx, chatID, keyword, response)
}

func (c *Cached) RemoveTrigger(ctx context.Context, chatID, keyword string) (bool, error) {
	return c.inner.RemoveTrigger(ctx, chatID, keyword)
}

func (c *Cached) GetCaptchaPolicy(ctx context.Context, chatID string) (*CaptchaPolicy, error) {
	return getCached(ctx, c, cacheCaptcha, chatID, func(ctx context.Context) (*CaptchaPolicy, error) {
		return c.inner.GetCaptchaPolicy(ctx, chatID)
	})
}

func (c *Cached) PutCaptchaPolicy(ctx context.Context, pol *CaptchaPolicy) error {
	if err := c.inner.PutCaptchaPolicy(ctx, pol); err != nil {
		return err
	}
	c.purge(ctx, cacheCaptcha, pol.ChatID)
	return nil
}

func (c *Cached) GetGreeting(ctx context.Context, chatID string) (*Greeting, error) {
	return getCached(ctx, c, cacheGreeting, chatID, func(ctx context.Context) (*Greeting, error) {
		return c.inner.GetGreeting(ctx, chatID)
	})
}

func (c *Cached) PutGreeting(ctx context.Context, g *Greeting) error {
	if err := c.inner.PutGreeting(ctx, g); err != nil {
		return err
	}
	c.purge(ctx, cacheGreeting, g.ChatID)
	return nil
}

func (c *Cached) GetChatFlags(ctx context.Context, chatID string) (*ChatFlags, error) {
	return getCached(ctx, c, cacheFlags, chatID, func(ctx context.Context) (*ChatFlags, error) {
		return c.inner.GetChatFlags(ctx, chatID)
	})
}

func (c *Cached) PutChatFlags(ctx context.Context, f *ChatFlags) error {
	if err := c.inner.PutChatFlags(ctx, f); err != nil {
		return err
	}
	c.purge(ctx, cacheFlags, f.ChatID)
	return nil
}

func (c *Cached) GetRole(ctx context.Context, chatID, userID string) (bus.Role, error) {
	role, err := getCached(ctx, c, cacheRole, chatID+"/"+userID, func(ctx context.Context) (*bus.Role, error) {
		r, err := c.inner.GetRole(ctx, chatID, userID)
		if err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return bus.RoleNone, err
	}
	if role == nil {
		return bus.RoleNone, nil
	}
	return *role, nil
}

func (c *Cached) SetRole(ctx context.Context, chatID, userID string, role bus.Role) error {
	if err := c.inner.SetRole(ctx, chatID, userID, role); err != nil {
		return err
	}
	c.purge(ctx, cacheRole, chatID+"/"+userID)
	return nil
}
