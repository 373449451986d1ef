package bus

import (
	"context"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// RateLimited wraps a Bus and throttles outbound sends per chat, so a burst
// of trigger responses or notices can't trip the platform's own flood
// control. Deletes and restrictions are not throttled; delaying enforcement
// would be worse than delaying chatter.
type RateLimited struct {
	inner    Bus
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

var _ Bus = (*RateLimited)(nil)

func NewRateLimited(inner Bus, perChatPerSec float64, burst int) *RateLimited {
	return &RateLimited{
		inner:    inner,
		limiters: expirable.NewLRU[string, *rate.Limiter](10_000, nil, 0),
		limit:    rate.Limit(perChatPerSec),
		burst:    burst,
	}
}

func (b *RateLimited) limiterFor(chatID string) *rate.Limiter {
	if lim, ok := b.limiters.Get(chatID); ok {
		return lim
	}
	lim := rate.NewLimiter(b.limit, b.burst)
	b.limiters.Add(chatID, lim)
	return lim
}

func (b *RateLimited) SendMessage(ctx context.Context, chatID, text string, opts *SendOpts) (string, error) {
	if err := b.limiterFor(chatID).Wait(ctx); err != nil {
		return "", err
	}
	return b.inner.SendMessage(ctx, chatID, text, opts)
}

func (b *RateLimited) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	return b.inner.DeleteMessage(ctx, chatID, messageID)
}

func (b *RateLimited) RestrictUser(ctx context.Context, chatID, userID string, cap Capability, allowed bool) error {
	return b.inner.RestrictUser(ctx, chatID, userID, cap, allowed)
}

func (b *RateLimited) BanUser(ctx context.Context, chatID, userID string) error {
	return b.inner.BanUser(ctx, chatID, userID)
}

func (b *RateLimited) KickUser(ctx context.Context, chatID, userID string) error {
	return b.inner.KickUser(ctx, chatID, userID)
}

func (b *RateLimited) GetMemberRole(ctx context.Context, chatID, userID string) (Role, error) {
	return b.inner.GetMemberRole(ctx, chatID, userID)
}
