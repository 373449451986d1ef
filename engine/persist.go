package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/captcha"
)

// persistMessageEffects executes the collected side effects for a message
// event, in a fixed order: archive copy, delete original, member actions,
// notices, then trigger replies. Transport failures are logged per effect and
// the remaining effects still run; the first failure is returned.
func (eng *Engine) persistMessageEffects(c *MessageContext) error {
	ctx := c.Ctx
	eff := c.effects
	var firstErr error

	if eff.ArchiveTo != "" {
		if _, err := eng.Bus.SendMessage(ctx, eff.ArchiveTo, c.Text, nil); err != nil {
			c.Logger.Error("failed to archive message", "channel", eff.ArchiveTo, "err", err)
			firstErr = fmt.Errorf("archiving message: %w", err)
		} else {
			actionCount.WithLabelValues("archive").Inc()
		}
	}
	if eff.DeleteOriginal {
		if err := eng.Bus.DeleteMessage(ctx, c.ChatID, c.MessageID); err != nil {
			c.Logger.Error("failed to delete message", "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("deleting message: %w", err)
			}
		} else {
			actionCount.WithLabelValues("delete").Inc()
		}
	}
	if err := eng.applyMemberEffects(ctx, c.Logger, c.ChatID, c.UserID, eff); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := eng.sendNotices(ctx, c.Logger, c.ChatID, eff); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, reply := range eff.Replies {
		if _, err := eng.Bus.SendMessage(ctx, c.ChatID, reply, &bus.SendOpts{ReplyTo: c.MessageID}); err != nil {
			c.Logger.Error("failed to send reply", "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("sending reply: %w", err)
			}
		}
	}
	return firstErr
}

// persistSharedEffects executes effects for join, leave, and callback events,
// which have no original message to archive or delete.
func (eng *Engine) persistSharedEffects(ctx context.Context, logger *slog.Logger, chatID, userID string, eff *Effects) error {
	var firstErr error

	if err := eng.applyMemberEffects(ctx, logger, chatID, userID, eff); err != nil {
		firstErr = err
	}
	if eff.DeletePrompt != nil && eff.DeletePrompt.PromptMessageID != "" {
		if err := eng.Bus.DeleteMessage(ctx, chatID, eff.DeletePrompt.PromptMessageID); err != nil {
			logger.Warn("failed to delete captcha prompt", "err", err)
		}
	}
	if eff.CaptchaPrompt != nil {
		if err := eng.sendCaptchaPrompt(ctx, logger, eff.CaptchaPrompt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := eng.sendNotices(ctx, logger, chatID, eff); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, reply := range eff.Replies {
		if _, err := eng.Bus.SendMessage(ctx, chatID, reply, nil); err != nil {
			logger.Error("failed to send message", "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("sending message: %w", err)
			}
		}
	}
	return firstErr
}

func (eng *Engine) applyMemberEffects(ctx context.Context, logger *slog.Logger, chatID, userID string, eff *Effects) error {
	var firstErr error

	if eff.RestrictSend != nil {
		if err := eng.Bus.RestrictUser(ctx, chatID, userID, bus.CapSendMessages, *eff.RestrictSend); err != nil {
			logger.Error("failed to change send restriction", "allowed", *eff.RestrictSend, "err", err)
			firstErr = fmt.Errorf("restricting user: %w", err)
		} else if *eff.RestrictSend {
			actionCount.WithLabelValues("unmute").Inc()
		} else {
			actionCount.WithLabelValues("mute").Inc()
		}
	}
	if eff.Ban {
		if err := eng.Bus.BanUser(ctx, chatID, userID); err != nil {
			logger.Error("failed to ban user", "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("banning user: %w", err)
			}
		} else {
			actionCount.WithLabelValues("ban").Inc()
		}
	}
	if eff.Kick {
		if err := eng.Bus.KickUser(ctx, chatID, userID); err != nil {
			logger.Error("failed to kick user", "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("kicking user: %w", err)
			}
		} else {
			actionCount.WithLabelValues("kick").Inc()
		}
	}
	return firstErr
}

func (eng *Engine) sendNotices(ctx context.Context, logger *slog.Logger, chatID string, eff *Effects) error {
	var firstErr error
	for _, ref := range eff.Notices {
		text := eng.Translator.Translate(ctx, ref.Key, chatID, ref.Params)
		if _, err := eng.Bus.SendMessage(ctx, chatID, text, nil); err != nil {
			logger.Error("failed to send notice", "key", ref.Key, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("sending notice: %w", err)
			}
		}
	}
	return firstErr
}

// sendCaptchaPrompt sends the challenge with its answer options as inline
// buttons, then records the prompt's message ID so it can be deleted on
// resolution.
func (eng *Engine) sendCaptchaPrompt(ctx context.Context, logger *slog.Logger, ch *captcha.Challenge) error {
	text := eng.Translator.Translate(ctx, "captcha.prompt", ch.ChatID, map[string]string{
		"user":     ch.UserID,
		"question": ch.Question,
	})
	buttons := make([][]bus.Button, 0, 2)
	row := make([]bus.Button, 0, 2)
	for _, opt := range ch.Options {
		row = append(row, bus.Button{Label: opt, Data: CallbackDataPrefix + opt})
		if len(row) == 2 {
			buttons = append(buttons, row)
			row = make([]bus.Button, 0, 2)
		}
	}
	if len(row) > 0 {
		buttons = append(buttons, row)
	}
	msgID, err := eng.Bus.SendMessage(ctx, ch.ChatID, text, &bus.SendOpts{Buttons: buttons})
	if err != nil {
		logger.Error("failed to send captcha prompt", "err", err)
		return fmt.Errorf("sending captcha prompt: %w", err)
	}
	eng.Captcha.SetPrompt(ch.ChatID, ch.UserID, msgID)
	return nil
}

func (eng *Engine) persistCounters(ctx context.Context, eff *Effects) error {
	for _, ref := range eff.CounterIncrements {
		if err := eng.Counters.Increment(ctx, ref.Name, ref.Val); err != nil {
			return err
		}
	}
	for _, ref := range eff.CounterDistinctIncrements {
		if err := eng.Counters.IncrementDistinct(ctx, ref.Name, ref.Bucket, ref.Val); err != nil {
			return err
		}
	}
	return nil
}
