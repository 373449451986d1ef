package pending

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoreLifecycle(t *testing.T) {
	assert := assert.New(t)

	s := NewStore(DefaultTTL, nil)
	now := time.Now()

	_, ok := s.Get(ChatKey("chat1"), now)
	assert.False(ok)

	op := s.Begin(ChatKey("chat1"), KindAddTrigger, now)
	assert.Equal(KindAddTrigger, op.Kind)

	got, ok := s.Get(ChatKey("chat1"), now.Add(time.Second))
	assert.True(ok)
	assert.Equal(op, got)

	s.Delete(ChatKey("chat1"))
	_, ok = s.Get(ChatKey("chat1"), now.Add(2*time.Second))
	assert.False(ok)
}

func TestStoreExpiryBoundary(t *testing.T) {
	assert := assert.New(t)

	s := NewStore(DefaultTTL, nil)
	now := time.Now()
	s.Begin(ChatKey("chat1"), KindSetWelcome, now)

	// present just inside the window, gone just past it
	_, ok := s.Get(ChatKey("chat1"), now.Add(299*time.Second))
	assert.True(ok)
	_, ok = s.Get(ChatKey("chat1"), now.Add(301*time.Second))
	assert.False(ok)

	// lazy expiry removed it for real
	assert.Equal(0, s.Len())
}

func TestStoreBeginReplaces(t *testing.T) {
	assert := assert.New(t)

	s := NewStore(DefaultTTL, nil)
	now := time.Now()

	s.Begin(ChatKey("chat1"), KindAddTrigger, now)
	s.Begin(ChatKey("chat1"), KindSetWelcome, now.Add(time.Second))

	op, ok := s.Get(ChatKey("chat1"), now.Add(2*time.Second))
	assert.True(ok)
	assert.Equal(KindSetWelcome, op.Kind)
	assert.Equal(1, s.Len())
}

func TestStoreAdvanceKeepsExpiry(t *testing.T) {
	assert := assert.New(t)

	s := NewStore(DefaultTTL, nil)
	now := time.Now()

	op := s.Begin(ChatKey("chat1"), KindEditTriggerKeyword, now)
	expires := op.ExpiresAt
	op.Fields["keyword"] = "hello"
	s.Advance(ChatKey("chat1"), op, KindEditTriggerResponse)

	got, ok := s.Get(ChatKey("chat1"), now.Add(time.Second))
	assert.True(ok)
	assert.Equal(KindEditTriggerResponse, got.Kind)
	assert.Equal("hello", got.Fields["keyword"])
	assert.Equal(expires, got.ExpiresAt)
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	assert := assert.New(t)

	s := NewStore(DefaultTTL, nil)
	now := time.Now()
	s.Begin(ChatKey("chat1"), KindEditTriggerKeyword, now)

	a, ok := s.Get(ChatKey("chat1"), now)
	assert.True(ok)
	b, ok := s.Get(ChatKey("chat1"), now)
	assert.True(ok)

	// writes stay private until Advance publishes them
	a.Fields["keyword"] = "ping"
	a.Kind = KindEditTriggerResponse
	assert.Empty(b.Fields)
	assert.Equal(KindEditTriggerKeyword, b.Kind)

	c, ok := s.Get(ChatKey("chat1"), now)
	assert.True(ok)
	assert.Empty(c.Fields)

	s.Advance(ChatKey("chat1"), a, KindEditTriggerResponse)
	d, ok := s.Get(ChatKey("chat1"), now.Add(time.Second))
	assert.True(ok)
	assert.Equal(KindEditTriggerResponse, d.Kind)
	assert.Equal("ping", d.Fields["keyword"])
}

func TestStoreConcurrentInput(t *testing.T) {
	assert := assert.New(t)

	s := NewStore(DefaultTTL, nil)
	now := time.Now()
	s.Begin(ChatKey("chat1"), KindEditTriggerKeyword, now)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				op, ok := s.Get(ChatKey("chat1"), now)
				if !ok {
					return
				}
				op.Fields["keyword"] = strconv.Itoa(n)
				s.Advance(ChatKey("chat1"), op, KindEditTriggerResponse)
			}
		}(i)
	}
	wg.Wait()

	op, ok := s.Get(ChatKey("chat1"), now)
	assert.True(ok)
	assert.Equal(KindEditTriggerResponse, op.Kind)
	assert.NotEmpty(op.Fields["keyword"])
}

func TestStoreSweep(t *testing.T) {
	assert := assert.New(t)

	s := NewStore(DefaultTTL, nil)
	now := time.Now()

	s.Begin(ChatKey("chat1"), KindAddTrigger, now)
	s.Begin(UserKey("chat2", "user1"), KindSetFloodLimit, now.Add(200*time.Second))
	assert.Equal(2, s.Len())

	removed := s.Sweep(now.Add(301 * time.Second))
	assert.Equal(1, removed)
	assert.Equal(1, s.Len())

	_, ok := s.Get(UserKey("chat2", "user1"), now.Add(302*time.Second))
	assert.True(ok)
}

func TestKindStrings(t *testing.T) {
	assert := assert.New(t)
	for k := KindNone; k <= KindSetCaptchaPolicy; k++ {
		assert.NotEqual("unknown", k.String())
	}
}
