package filters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warden-social/warden/settings"
)

func TestBlacklistLiteralSubstring(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewChecker(settings.NewMemStore(), nil)
	assert.NoError(c.AddBlacklist(ctx, "chat1", "spam", false))

	hit, pattern, err := c.MatchBlacklist(ctx, "chat1", "buy spam now")
	assert.NoError(err)
	assert.True(hit)
	assert.Equal("spam", pattern)

	// case-insensitive, substring not whole-word
	hit, _, err = c.MatchBlacklist(ctx, "chat1", "SPAMMER alert")
	assert.NoError(err)
	assert.True(hit)

	hit, _, err = c.MatchBlacklist(ctx, "chat1", "clean message")
	assert.NoError(err)
	assert.False(hit)

	// other chats unaffected
	hit, _, err = c.MatchBlacklist(ctx, "chat2", "buy spam now")
	assert.NoError(err)
	assert.False(hit)
}

func TestBlacklistFirstMatchOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewChecker(settings.NewMemStore(), nil)
	assert.NoError(c.AddBlacklist(ctx, "chat1", "abc", false))
	assert.NoError(c.AddBlacklist(ctx, "chat1", "ABC DEF", false))

	hit, pattern, err := c.MatchBlacklist(ctx, "chat1", "xx ABC yy")
	assert.NoError(err)
	assert.True(hit)
	assert.Equal("abc", pattern)
}

func TestBlacklistRegexSearchAnywhere(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewChecker(settings.NewMemStore(), nil)
	assert.NoError(c.AddBlacklist(ctx, "chat1", `fr[e3]e\s+money`, true))

	hit, _, err := c.MatchBlacklist(ctx, "chat1", "get your FR3E  MONEY here")
	assert.NoError(err)
	assert.True(hit)

	hit, _, err = c.MatchBlacklist(ctx, "chat1", "free lunch")
	assert.NoError(err)
	assert.False(hit)
}

func TestInvalidRegexRejectedAtAddTime(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store := settings.NewMemStore()
	c := NewChecker(store, nil)

	err := c.AddBlacklist(ctx, "chat1", "[unclosed", true)
	assert.ErrorIs(err, ErrInvalidRule)

	// nothing stored
	entries, err := store.ListBlacklist(ctx, "chat1")
	assert.NoError(err)
	assert.Empty(entries)
}

func TestTriggerMatchAndInvalidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewChecker(settings.NewMemStore(), nil)
	assert.NoError(c.AddTrigger(ctx, "chat1", "hello", "Hi there!", false))

	resp, ok, err := c.MatchTrigger(ctx, "chat1", "say hello please")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("Hi there!", resp)

	// cache invalidated on edit, new response live immediately
	found, err := c.UpdateTriggerResponse(ctx, "chat1", "hello", "Howdy!")
	assert.NoError(err)
	assert.True(found)
	resp, ok, err = c.MatchTrigger(ctx, "chat1", "hello again")
	assert.NoError(err)
	assert.True(ok)
	assert.Equal("Howdy!", resp)

	// and on removal
	found, err = c.RemoveTrigger(ctx, "chat1", "hello")
	assert.NoError(err)
	assert.True(found)
	_, ok, err = c.MatchTrigger(ctx, "chat1", "hello once more")
	assert.NoError(err)
	assert.False(ok)
}

func TestTriggerValidation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewChecker(settings.NewMemStore(), nil)

	assert.ErrorIs(c.AddTrigger(ctx, "chat1", "", "resp", false), ErrInvalidRule)
	assert.ErrorIs(c.AddTrigger(ctx, "chat1", "kw", "", false), ErrInvalidRule)

	long := make([]byte, MaxPatternLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(c.AddTrigger(ctx, "chat1", string(long), "resp", false), ErrInvalidRule)
	assert.ErrorIs(c.AddTrigger(ctx, "chat1", "(bad", "resp", true), ErrInvalidRule)
}

func TestBlacklistRemoveInvalidates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewChecker(settings.NewMemStore(), nil)
	assert.NoError(c.AddBlacklist(ctx, "chat1", "spam", false))

	hit, _, err := c.MatchBlacklist(ctx, "chat1", "spam here")
	assert.NoError(err)
	assert.True(hit)

	found, err := c.RemoveBlacklist(ctx, "chat1", "spam")
	assert.NoError(err)
	assert.True(found)

	hit, _, err = c.MatchBlacklist(ctx, "chat1", "spam here")
	assert.NoError(err)
	assert.False(hit)
}
