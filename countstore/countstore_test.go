package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, "blacklist-hit", "chat1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, "blacklist-hit", "chat1"))
	assert.NoError(cs.Increment(ctx, "blacklist-hit", "chat1"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, "blacklist-hit", "chat1", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCountDistinct(ctx, "flood-violators", "chat1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, "flood-violators", "chat1", "user1"))
	assert.NoError(cs.IncrementDistinct(ctx, "flood-violators", "chat1", "user1"))
	c, err = cs.GetCountDistinct(ctx, "flood-violators", "chat1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, "flood-violators", "chat1", "user2"))
	assert.NoError(cs.IncrementDistinct(ctx, "flood-violators", "chat1", "user3"))
	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, "flood-violators", "chat1", period)
		assert.NoError(err)
		assert.Equal(3, c)
	}
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// Increment two different counters from four goroutines while two more
	// read. Run with `-race`; final values must equal the sum of all writes.
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
		wg.Done()
	}
	fnRead := func(name, val string, times int) {
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(4)
	go fnInc("flood-violation", "chat1", 10)
	go fnInc("flood-violation", "chat1", 10)
	go fnRead("flood-violation", "chat1", 10)
	go fnInc("blacklist-hit", "chat2", 6)
	go fnInc("blacklist-hit", "chat2", 6)
	go fnRead("blacklist-hit", "chat2", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, "flood-violation", "chat1", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, "blacklist-hit", "chat2", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)

	c, err = cs.GetCountDistinct(ctx, "flood-violation", "flood-violation", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}
