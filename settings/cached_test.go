package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warden-social/warden/cachestore"
)

func TestCachedFloodPolicy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	inner := NewMemStore()
	cached := NewCached(inner, cachestore.NewMemCacheStore(100, time.Hour), nil)

	// absent row reads as nil, and the miss is cached
	pol, err := cached.GetFloodPolicy(ctx, "chat1")
	assert.NoError(err)
	assert.Nil(pol)

	// negative entry must not mask a later write
	assert.NoError(cached.PutFloodPolicy(ctx, &FloodPolicy{
		ChatID:  "chat1",
		Enabled: true,
		Limit:   3,
		Action:  FloodActionMute,
	}))
	pol, err = cached.GetFloodPolicy(ctx, "chat1")
	assert.NoError(err)
	assert.NotNil(pol)
	assert.Equal(3, pol.Limit)
	assert.Equal(FloodActionMute, pol.Action)

	// update visible immediately after acknowledgement
	assert.NoError(cached.PutFloodPolicy(ctx, &FloodPolicy{
		ChatID:  "chat1",
		Enabled: true,
		Limit:   10,
		Action:  FloodActionDelete,
	}))
	pol, err = cached.GetFloodPolicy(ctx, "chat1")
	assert.NoError(err)
	assert.Equal(10, pol.Limit)
}

func TestCachedServesFromCache(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	inner := NewMemStore()
	cached := NewCached(inner, cachestore.NewMemCacheStore(100, time.Hour), nil)

	assert.NoError(cached.PutCaptchaPolicy(ctx, &CaptchaPolicy{
		ChatID:        "chat1",
		Enabled:       true,
		Type:          CaptchaTypeMath,
		Difficulty:    CaptchaEasy,
		TimeLimitSecs: 60,
		FailAction:    CaptchaFailKick,
	}))

	// warm the cache, then break the inner store; reads should still succeed
	pol, err := cached.GetCaptchaPolicy(ctx, "chat1")
	assert.NoError(err)
	assert.NotNil(pol)

	inner.FailWith = errors.New("store down")
	pol, err = cached.GetCaptchaPolicy(ctx, "chat1")
	assert.NoError(err)
	assert.NotNil(pol)
	assert.Equal(60, pol.TimeLimitSecs)
}

func TestCachedRoles(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	inner := NewMemStore()
	cached := NewCached(inner, cachestore.NewMemCacheStore(100, time.Hour), nil)

	role, err := cached.GetRole(ctx, "chat1", "user1")
	assert.NoError(err)
	assert.False(role.Authorized())

	assert.NoError(cached.SetRole(ctx, "chat1", "user1", "admin"))
	role, err = cached.GetRole(ctx, "chat1", "user1")
	assert.NoError(err)
	assert.True(role.Authorized())
}
