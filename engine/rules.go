package engine

import (
	"regexp"
	"strings"

	"github.com/warden-social/warden/captcha"
	"github.com/warden-social/warden/pending"
	"github.com/warden-social/warden/settings"
)

var _ MessageRuleFunc = ArchiveMessageRule

// ArchiveMessageRule copies the message into the chat's archive channel when
// archiving is enabled. It never marks the event handled; enforcement rules
// still run after it.
func ArchiveMessageRule(c *MessageContext) error {
	flags := c.ChatFlags(c.ChatID)
	if flags.ArchiveEnabled && flags.ArchiveChannelID != "" {
		c.effects.Archive(flags.ArchiveChannelID)
	}
	return nil
}

var _ MessageRuleFunc = FloodMessageRule

// FloodMessageRule enforces the chat's flood policy. The message is always
// recorded in the sender's rate window, including messages that themselves
// trigger enforcement.
func FloodMessageRule(c *MessageContext) error {
	pol := c.FloodPolicy()
	if pol == nil || !pol.Enabled {
		return nil
	}
	if !c.engine.Flood.Observe(c.ChatID, c.UserID, pol.Limit, c.Now) {
		return nil
	}
	c.Logger.Info("flood limit exceeded", "limit", pol.Limit, "action", pol.Action)
	c.effects.MarkDeleteOriginal()
	switch pol.Action {
	case settings.FloodActionMute:
		c.effects.MuteSender()
	case settings.FloodActionBan:
		c.effects.BanSender()
	}
	c.effects.Notice("flood.notice", map[string]string{"user": c.UserID, "action": string(pol.Action)})
	c.Increment("flood-hit", string(pol.Action))
	c.effects.SetHandled()
	return nil
}

var _ MessageRuleFunc = BlacklistMessageRule

func BlacklistMessageRule(c *MessageContext) error {
	hit, pattern, err := c.engine.Filters.MatchBlacklist(c.Ctx, c.ChatID, c.Text)
	if err != nil {
		c.Logger.Warn("blacklist rules unavailable", "err", err)
		return nil
	}
	if !hit {
		return nil
	}
	c.Logger.Info("blacklist_hit", "pattern", pattern)
	c.effects.MarkDeleteOriginal()
	c.effects.Notice("blacklist.notice", nil)
	c.Increment("blacklist-hit", c.ChatID)
	c.effects.SetHandled()
	return nil
}

var _ MessageRuleFunc = TriggerMessageRule

func TriggerMessageRule(c *MessageContext) error {
	resp, ok, err := c.engine.Filters.MatchTrigger(c.Ctx, c.ChatID, c.Text)
	if err != nil {
		c.Logger.Warn("trigger rules unavailable", "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	c.effects.Reply(resp)
	c.effects.SetHandled()
	return nil
}

var linkPattern = regexp.MustCompile(`(?i)(?:https?://|www\.|t\.me/)\S+`)

var _ MessageRuleFunc = LinkLockMessageRule

func LinkLockMessageRule(c *MessageContext) error {
	flags := c.ChatFlags(c.ChatID)
	if !flags.LinkLockEnabled {
		return nil
	}
	if !linkPattern.MatchString(c.Text) {
		return nil
	}
	c.Logger.Info("link lock violation")
	c.effects.MarkDeleteOriginal()
	c.effects.Notice("linklock.notice", nil)
	c.Increment("linklock-hit", c.ChatID)
	c.effects.SetHandled()
	return nil
}

var _ MessageRuleFunc = PendingInputMessageRule

// PendingInputMessageRule routes free text into the chat's pending admin
// operation. Commands are left for the command rule so /cancel still works
// while an operation is open. Unauthorized input is ignored without touching
// the operation.
func PendingInputMessageRule(c *MessageContext) error {
	if strings.HasPrefix(c.Text, "/") {
		return nil
	}
	op, ok := c.engine.Pending.Get(pending.ChatKey(c.ChatID), c.Now)
	if !ok {
		return nil
	}
	if !c.IsAuthorized(c.ChatID, c.UserID) {
		return nil
	}
	c.handleOperationInput(op)
	c.effects.SetHandled()
	return nil
}

var _ JoinRuleFunc = CaptchaJoinRule

// CaptchaJoinRule gates new members behind a challenge when the chat's
// captcha policy is enabled: mute on entry, send the prompt with answer
// buttons, and record the challenge for later resolution.
func CaptchaJoinRule(c *JoinContext) error {
	pol, err := c.engine.Settings.GetCaptchaPolicy(c.Ctx, c.ChatID)
	if err != nil {
		c.Logger.Warn("captcha policy read failed", "err", err)
		return nil
	}
	if pol == nil || !pol.Enabled {
		return nil
	}
	ch := c.engine.Captcha.Issue(c.ChatID, c.UserID, pol, c.Now)
	c.effects.MuteSender()
	c.effects.CaptchaPrompt = ch
	c.Increment("captcha-issued", c.ChatID)
	c.effects.SetHandled()
	return nil
}

var _ JoinRuleFunc = WelcomeJoinRule

func WelcomeJoinRule(c *JoinContext) error {
	g, err := c.engine.Settings.GetGreeting(c.Ctx, c.ChatID)
	if err != nil {
		c.Logger.Warn("greeting read failed", "err", err)
		return nil
	}
	if g == nil || !g.WelcomeEnabled {
		return nil
	}
	if g.WelcomeText == "" {
		c.effects.Notice("welcome.default", map[string]string{"user": c.UserID})
		return nil
	}
	c.effects.Reply(strings.ReplaceAll(g.WelcomeText, "{user}", c.UserID))
	return nil
}

var _ LeaveRuleFunc = CaptchaLeaveRule

// CaptchaLeaveRule drops any open challenge when the member leaves, so a
// later timeout sweep does not kick a user who is already gone.
func CaptchaLeaveRule(c *LeaveContext) error {
	ch, ok := c.engine.Captcha.Cancel(c.ChatID, c.UserID)
	if ok && ch.PromptMessageID != "" {
		c.effects.DeletePrompt = ch
	}
	return nil
}

var _ LeaveRuleFunc = FarewellLeaveRule

func FarewellLeaveRule(c *LeaveContext) error {
	g, err := c.engine.Settings.GetGreeting(c.Ctx, c.ChatID)
	if err != nil {
		c.Logger.Warn("greeting read failed", "err", err)
		return nil
	}
	if g == nil || !g.LeaveEnabled || g.LeaveText == "" {
		return nil
	}
	c.effects.Reply(strings.ReplaceAll(g.LeaveText, "{user}", c.UserID))
	return nil
}

// CallbackDataPrefix marks callback payloads carrying a captcha answer.
const CallbackDataPrefix = "captcha:"

var _ CallbackRuleFunc = CaptchaCallbackRule

func CaptchaCallbackRule(c *CallbackContext) error {
	if !strings.HasPrefix(c.Data, CallbackDataPrefix) {
		return nil
	}
	answer := strings.TrimPrefix(c.Data, CallbackDataPrefix)
	outcome, ch := c.engine.Captcha.Resolve(c.ChatID, c.UserID, answer, c.Now)
	c.Logger.Info("captcha answer", "outcome", outcome.String())
	captchaOutcomeCount.WithLabelValues(outcome.String()).Inc()
	c.Increment("captcha-outcome", outcome.String())
	switch outcome {
	case captcha.OutcomeCorrect:
		c.effects.DeletePrompt = ch
		c.effects.UnmuteSender()
		c.effects.Notice("captcha.passed", map[string]string{"user": c.UserID})
	case captcha.OutcomeIncorrect:
		c.effects.Notice("captcha.wrong", nil)
	case captcha.OutcomeExpired:
		c.effects.DeletePrompt = ch
		c.applyCaptchaFail(ch)
	}
	c.effects.SetHandled()
	return nil
}

// applyCaptchaFail applies the challenge's fail action and the failure
// notice. A muted user stays muted; kick additionally removes them.
func (c *BaseContext) applyCaptchaFail(ch *captcha.Challenge) {
	if ch.FailAction == settings.CaptchaFailKick {
		c.effects.KickSender()
	}
	c.effects.Notice("captcha.failed", map[string]string{"user": ch.UserID})
}
