package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/captcha"
	"github.com/warden-social/warden/countstore"
	"github.com/warden-social/warden/filters"
	"github.com/warden-social/warden/flood"
	"github.com/warden-social/warden/i18n"
	"github.com/warden-social/warden/pending"
	"github.com/warden-social/warden/settings"
)

// interval between eager captcha-expiry sweeps
const captchaSweepInterval = 30 * time.Second

// runtime for executing moderation rules, managing ephemeral state, and
// applying side effects through the message bus.
//
// NOTE: all fields must be populated before the first Process call; several
// are pointer types but must not be nil.
type Engine struct {
	Logger     *slog.Logger
	Rules      RuleSet
	Settings   settings.Store
	Flood      *flood.Limiter
	Filters    *filters.Checker
	Pending    *pending.Store
	Captcha    *captcha.Verifier
	Counters   countstore.CountStore
	Bus        bus.Bus
	Translator i18n.Translator
}

// ProcessEvent dispatches one inbound event to the matching entrypoint.
// De-duplication per event ID is the caller's responsibility; processing
// itself is idempotent only with respect to distinct events.
func (eng *Engine) ProcessEvent(ctx context.Context, evt bus.Event) error {
	if err := evt.Validate(); err != nil {
		return err
	}
	switch evt.Kind {
	case bus.EventMessage:
		return eng.ProcessMessage(ctx, evt)
	case bus.EventJoin:
		return eng.ProcessJoin(ctx, evt)
	case bus.EventLeave:
		return eng.ProcessLeave(ctx, evt)
	case bus.EventCallback:
		return eng.ProcessCallback(ctx, evt)
	}
	return fmt.Errorf("unexpected event kind: %s", evt.Kind)
}

func (eng *Engine) ProcessMessage(ctx context.Context, evt bus.Event) error {
	eventProcessCount.WithLabelValues("message").Inc()
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		eventProcessDuration.WithLabelValues("message").Observe(duration.Seconds())
	}()
	// similar to an HTTP server, we want to recover any panics from rule execution
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("moderation event execution exception", "err", r, "chat", evt.ChatID, "user", evt.UserID)
		}
	}()

	c := NewMessageContext(ctx, eng, evt, time.Now())
	c.Logger.Debug("processing message")
	if err := eng.Rules.CallMessageRules(&c); err != nil {
		eventErrorCount.WithLabelValues("message").Inc()
		return err
	}
	if c.Err != nil {
		c.Logger.Warn("encountered error during rule execution", "err", c.Err)
	}
	if err := eng.persistMessageEffects(&c); err != nil {
		eventErrorCount.WithLabelValues("message").Inc()
		return err
	}
	return eng.persistCounters(ctx, c.effects)
}

func (eng *Engine) ProcessJoin(ctx context.Context, evt bus.Event) error {
	eventProcessCount.WithLabelValues("join").Inc()
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		eventProcessDuration.WithLabelValues("join").Observe(duration.Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("moderation event execution exception", "err", r, "chat", evt.ChatID, "user", evt.UserID)
		}
	}()

	c := NewJoinContext(ctx, eng, evt, time.Now())
	c.Logger.Debug("processing join")
	if err := eng.Rules.CallJoinRules(&c); err != nil {
		eventErrorCount.WithLabelValues("join").Inc()
		return err
	}
	if err := eng.persistSharedEffects(ctx, c.Logger, c.ChatID, c.UserID, c.effects); err != nil {
		eventErrorCount.WithLabelValues("join").Inc()
		return err
	}
	return eng.persistCounters(ctx, c.effects)
}

func (eng *Engine) ProcessLeave(ctx context.Context, evt bus.Event) error {
	eventProcessCount.WithLabelValues("leave").Inc()
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("moderation event execution exception", "err", r, "chat", evt.ChatID, "user", evt.UserID)
		}
	}()

	c := NewLeaveContext(ctx, eng, evt, time.Now())
	c.Logger.Debug("processing leave")
	if err := eng.Rules.CallLeaveRules(&c); err != nil {
		eventErrorCount.WithLabelValues("leave").Inc()
		return err
	}
	if err := eng.persistSharedEffects(ctx, c.Logger, c.ChatID, c.UserID, c.effects); err != nil {
		eventErrorCount.WithLabelValues("leave").Inc()
		return err
	}
	return eng.persistCounters(ctx, c.effects)
}

func (eng *Engine) ProcessCallback(ctx context.Context, evt bus.Event) error {
	eventProcessCount.WithLabelValues("callback").Inc()
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("moderation event execution exception", "err", r, "chat", evt.ChatID, "user", evt.UserID)
		}
	}()

	c := NewCallbackContext(ctx, eng, evt, time.Now())
	c.Logger.Debug("processing callback")
	if err := eng.Rules.CallCallbackRules(&c); err != nil {
		eventErrorCount.WithLabelValues("callback").Inc()
		return err
	}
	if err := eng.persistSharedEffects(ctx, c.Logger, c.ChatID, c.UserID, c.effects); err != nil {
		eventErrorCount.WithLabelValues("callback").Inc()
		return err
	}
	return eng.persistCounters(ctx, c.effects)
}

// ExpireCaptcha applies the fail action for a challenge whose timer ran out.
// Invoked from the background sweep, not from event processing.
func (eng *Engine) ExpireCaptcha(ctx context.Context, ch *captcha.Challenge) {
	logger := eng.Logger.With("chat", ch.ChatID, "user", ch.UserID)
	logger.Info("captcha expired", "failAction", ch.FailAction)
	captchaOutcomeCount.WithLabelValues("expired").Inc()

	if ch.PromptMessageID != "" {
		if err := eng.Bus.DeleteMessage(ctx, ch.ChatID, ch.PromptMessageID); err != nil {
			logger.Warn("failed to delete captcha prompt", "err", err)
		}
	}
	// a muted joiner simply stays muted
	if ch.FailAction == settings.CaptchaFailKick {
		if err := eng.Bus.KickUser(ctx, ch.ChatID, ch.UserID); err != nil {
			logger.Error("failed to kick unverified user", "err", err)
		}
		actionCount.WithLabelValues("kick").Inc()
	}
	text := eng.Translator.Translate(ctx, "captcha.failed", ch.ChatID, map[string]string{"user": ch.UserID})
	if _, err := eng.Bus.SendMessage(ctx, ch.ChatID, text, nil); err != nil {
		logger.Warn("failed to send captcha failure notice", "err", err)
	}
	if err := eng.Counters.Increment(ctx, "captcha-outcome", "expired"); err != nil {
		logger.Warn("failed to increment counter", "err", err)
	}
}

// RunSweeps drives all background expiry loops until the context is
// cancelled. Run it on its own goroutine.
func (eng *Engine) RunSweeps(ctx context.Context) {
	go eng.Pending.Run(ctx)
	go eng.Flood.Run(ctx, flood.Span)
	eng.Captcha.Run(ctx, captchaSweepInterval, eng.ExpireCaptcha)
}
