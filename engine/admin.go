package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/warden-social/warden/filters"
	"github.com/warden-social/warden/pending"
	"github.com/warden-social/warden/settings"
)

// Bounds on admin-supplied numeric settings.
const (
	MinFloodLimit         = 1
	MaxFloodLimit         = 100
	MinCaptchaTimeSecs    = 30
	MaxCaptchaTimeSecs    = 3600
	regexKeywordPrefix    = "re:"
	disableSettingKeyword = "off"
)

// commandKinds maps a slash command to the pending operation it opens and the
// prompt sent back to the admin. The operation kinds themselves form a closed
// enum; see handleOperationInput.
var commandKinds = map[string]struct {
	kind   pending.Kind
	prompt string
}{
	"/setwelcome":      {pending.KindSetWelcome, "admin.prompt.welcome"},
	"/setleave":        {pending.KindSetLeave, "admin.prompt.leave"},
	"/addtrigger":      {pending.KindAddTrigger, "admin.prompt.trigger"},
	"/edittrigger":     {pending.KindEditTriggerKeyword, "admin.prompt.keyword"},
	"/removetrigger":   {pending.KindRemoveTrigger, "admin.prompt.remove"},
	"/addblacklist":    {pending.KindAddBlacklist, "admin.prompt.blacklist"},
	"/removeblacklist": {pending.KindRemoveBlacklist, "admin.prompt.remove"},
	"/setflood":        {pending.KindSetFloodLimit, "admin.prompt.flood"},
	"/setcaptcha":      {pending.KindSetCaptchaPolicy, "admin.prompt.captcha"},
}

var _ MessageRuleFunc = AdminCommandMessageRule

// AdminCommandMessageRule opens multi-step admin flows. Unknown slash
// commands fall through unhandled (the transport may route them elsewhere);
// known commands from non-admins get a denial notice. Opening a command while
// another operation is pending replaces it.
func AdminCommandMessageRule(c *MessageContext) error {
	if !strings.HasPrefix(c.Text, "/") {
		return nil
	}
	cmd := strings.ToLower(strings.Fields(c.Text)[0])
	if cmd != "/cancel" {
		if _, known := commandKinds[cmd]; !known {
			return nil
		}
	}
	if !c.IsAuthorized(c.ChatID, c.UserID) {
		c.effects.Notice("admin.denied", nil)
		c.effects.SetHandled()
		return nil
	}
	if cmd == "/cancel" {
		c.engine.Pending.Delete(pending.ChatKey(c.ChatID))
		c.effects.Notice("admin.cancelled", nil)
		c.effects.SetHandled()
		return nil
	}
	entry := commandKinds[cmd]
	c.engine.Pending.Begin(pending.ChatKey(c.ChatID), entry.kind, c.Now)
	c.effects.Notice(entry.prompt, nil)
	c.Increment("admin-command", cmd)
	c.effects.SetHandled()
	return nil
}

// handleOperationInput consumes one free-text message as input for the chat's
// pending operation. The switch over operation kinds is exhaustive; adding a
// kind without a case here is a bug, caught by the default branch.
//
// Outcome contract: validation failure re-prompts and leaves the operation
// (and its expiry) intact; store failure likewise keeps the operation so the
// admin may retry; success and not-found are terminal.
func (c *MessageContext) handleOperationInput(op *pending.Operation) {
	key := pending.ChatKey(c.ChatID)
	text := strings.TrimSpace(c.Text)

	switch op.Kind {
	case pending.KindSetWelcome:
		c.saveGreeting(key, text, true)
	case pending.KindSetLeave:
		c.saveGreeting(key, text, false)
	case pending.KindAddTrigger:
		c.saveNewTrigger(key, text)
	case pending.KindEditTriggerKeyword:
		// a plain keyword reply matches its own trigger upstream and never
		// reaches here; such triggers are edited by remove + re-add. Regex
		// patterns that don't match their own text edit in place.
		if text == "" {
			c.effects.Notice("admin.invalid", map[string]string{"reason": "keyword must be non-empty"})
			return
		}
		op.Fields["keyword"] = strings.TrimPrefix(text, regexKeywordPrefix)
		c.engine.Pending.Advance(key, op, pending.KindEditTriggerResponse)
		c.effects.Notice("admin.prompt.response", map[string]string{"keyword": op.Fields["keyword"]})
	case pending.KindEditTriggerResponse:
		c.saveTriggerResponse(key, op.Fields["keyword"], text)
	case pending.KindRemoveTrigger:
		found, err := c.engine.Filters.RemoveTrigger(c.Ctx, c.ChatID, strings.TrimPrefix(text, regexKeywordPrefix))
		c.finishRemoval(key, found, err)
	case pending.KindAddBlacklist:
		pat, isRegex := splitRegexPrefix(text)
		err := c.engine.Filters.AddBlacklist(c.Ctx, c.ChatID, pat, isRegex)
		c.finishMutation(key, err)
	case pending.KindRemoveBlacklist:
		found, err := c.engine.Filters.RemoveBlacklist(c.Ctx, c.ChatID, strings.TrimPrefix(text, regexKeywordPrefix))
		c.finishRemoval(key, found, err)
	case pending.KindSetFloodLimit:
		c.saveFloodPolicy(key, text)
	case pending.KindSetCaptchaPolicy:
		c.saveCaptchaPolicy(key, text)
	default:
		c.Logger.Error("unhandled pending operation kind", "kind", op.Kind.String())
		c.engine.Pending.Delete(key)
	}
}

func splitRegexPrefix(text string) (string, bool) {
	if strings.HasPrefix(text, regexKeywordPrefix) {
		return strings.TrimPrefix(text, regexKeywordPrefix), true
	}
	return text, false
}

// finishMutation reports a filters mutation outcome: invalid input
// re-prompts, store failure re-prompts, success closes the operation.
func (c *MessageContext) finishMutation(key string, err error) {
	if errors.Is(err, filters.ErrInvalidRule) {
		c.effects.Notice("admin.invalid", map[string]string{"reason": err.Error()})
		return
	}
	if err != nil {
		c.Logger.Error("settings write failed", "err", err)
		c.effects.Notice("admin.error", nil)
		return
	}
	c.engine.Pending.Delete(key)
	c.effects.Notice("admin.saved", nil)
}

func (c *MessageContext) finishRemoval(key string, found bool, err error) {
	if err != nil {
		c.Logger.Error("settings write failed", "err", err)
		c.effects.Notice("admin.error", nil)
		return
	}
	c.engine.Pending.Delete(key)
	if !found {
		c.effects.Notice("admin.notfound", nil)
		return
	}
	c.effects.Notice("admin.removed", nil)
}

func (c *MessageContext) saveGreeting(key, text string, welcome bool) {
	if text == "" || len(text) > filters.MaxResponseLen {
		c.effects.Notice("admin.invalid", map[string]string{"reason": fmt.Sprintf("text must be 1 to %d characters", filters.MaxResponseLen)})
		return
	}
	g, err := c.engine.Settings.GetGreeting(c.Ctx, c.ChatID)
	if err == nil {
		if g == nil {
			g = &settings.Greeting{ChatID: c.ChatID}
		}
		if welcome {
			g.WelcomeEnabled = true
			g.WelcomeText = text
		} else {
			g.LeaveEnabled = true
			g.LeaveText = text
		}
		err = c.engine.Settings.PutGreeting(c.Ctx, g)
	}
	c.finishMutation(key, err)
}

func (c *MessageContext) saveNewTrigger(key, text string) {
	keyword, response, found := strings.Cut(text, "|")
	if !found {
		c.effects.Notice("admin.invalid", map[string]string{"reason": "expected keyword|response"})
		return
	}
	keyword = strings.TrimSpace(keyword)
	response = strings.TrimSpace(response)
	keyword, isRegex := splitRegexPrefix(keyword)
	err := c.engine.Filters.AddTrigger(c.Ctx, c.ChatID, keyword, response, isRegex)
	c.finishMutation(key, err)
}

func (c *MessageContext) saveTriggerResponse(key, keyword, response string) {
	found, err := c.engine.Filters.UpdateTriggerResponse(c.Ctx, c.ChatID, keyword, response)
	if errors.Is(err, filters.ErrInvalidRule) {
		c.effects.Notice("admin.invalid", map[string]string{"reason": err.Error()})
		return
	}
	if err != nil {
		c.Logger.Error("settings write failed", "err", err)
		c.effects.Notice("admin.error", nil)
		return
	}
	c.engine.Pending.Delete(key)
	if !found {
		c.effects.Notice("admin.notfound", nil)
		return
	}
	c.effects.Notice("admin.saved", nil)
}

func (c *MessageContext) saveFloodPolicy(key, text string) {
	if strings.EqualFold(text, disableSettingKeyword) {
		err := c.engine.Settings.PutFloodPolicy(c.Ctx, &settings.FloodPolicy{ChatID: c.ChatID, Enabled: false})
		c.finishMutation(key, err)
		return
	}
	fields := strings.Fields(text)
	if len(fields) != 2 {
		c.effects.Notice("admin.invalid", map[string]string{"reason": "expected <messages-per-minute> <delete|mute|ban>"})
		return
	}
	limit, err := strconv.Atoi(fields[0])
	if err != nil || limit < MinFloodLimit || limit > MaxFloodLimit {
		c.effects.Notice("admin.invalid", map[string]string{"reason": fmt.Sprintf("limit must be %d to %d", MinFloodLimit, MaxFloodLimit)})
		return
	}
	var action settings.FloodAction
	switch strings.ToLower(fields[1]) {
	case string(settings.FloodActionDelete):
		action = settings.FloodActionDelete
	case string(settings.FloodActionMute):
		action = settings.FloodActionMute
	case string(settings.FloodActionBan):
		action = settings.FloodActionBan
	default:
		c.effects.Notice("admin.invalid", map[string]string{"reason": "action must be delete, mute, or ban"})
		return
	}
	err = c.engine.Settings.PutFloodPolicy(c.Ctx, &settings.FloodPolicy{
		ChatID:  c.ChatID,
		Enabled: true,
		Limit:   limit,
		Action:  action,
	})
	c.finishMutation(key, err)
}

func (c *MessageContext) saveCaptchaPolicy(key, text string) {
	if strings.EqualFold(text, disableSettingKeyword) {
		err := c.engine.Settings.PutCaptchaPolicy(c.Ctx, &settings.CaptchaPolicy{ChatID: c.ChatID, Enabled: false})
		c.finishMutation(key, err)
		return
	}
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) != 4 {
		c.effects.Notice("admin.invalid", map[string]string{"reason": "expected <math|text|image> <easy|medium|hard> <seconds> <kick|mute>"})
		return
	}
	var ctype settings.CaptchaType
	switch fields[0] {
	case string(settings.CaptchaTypeMath), string(settings.CaptchaTypeText), string(settings.CaptchaTypeImage):
		ctype = settings.CaptchaType(fields[0])
	default:
		c.effects.Notice("admin.invalid", map[string]string{"reason": "type must be math, text, or image"})
		return
	}
	var diff settings.CaptchaDifficulty
	switch fields[1] {
	case string(settings.CaptchaEasy), string(settings.CaptchaMedium), string(settings.CaptchaHard):
		diff = settings.CaptchaDifficulty(fields[1])
	default:
		c.effects.Notice("admin.invalid", map[string]string{"reason": "difficulty must be easy, medium, or hard"})
		return
	}
	secs, err := strconv.Atoi(fields[2])
	if err != nil || secs < MinCaptchaTimeSecs || secs > MaxCaptchaTimeSecs {
		c.effects.Notice("admin.invalid", map[string]string{"reason": fmt.Sprintf("seconds must be %d to %d", MinCaptchaTimeSecs, MaxCaptchaTimeSecs)})
		return
	}
	var fail settings.CaptchaFailAction
	switch fields[3] {
	case string(settings.CaptchaFailKick), string(settings.CaptchaFailMute):
		fail = settings.CaptchaFailAction(fields[3])
	default:
		c.effects.Notice("admin.invalid", map[string]string{"reason": "fail action must be kick or mute"})
		return
	}
	err = c.engine.Settings.PutCaptchaPolicy(c.Ctx, &settings.CaptchaPolicy{
		ChatID:        c.ChatID,
		Enabled:       true,
		Type:          ctype,
		Difficulty:    diff,
		TimeLimitSecs: secs,
		FailAction:    fail,
	})
	c.finishMutation(key, err)
}
