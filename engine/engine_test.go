package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/settings"
)

func msgEvent(chatID, userID, messageID, text string) bus.Event {
	return bus.Event{
		Kind:      bus.EventMessage,
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		Text:      text,
	}
}

func TestEngineBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m1", "hello everyone")))
	assert.Empty(rec.Sent)
	assert.Empty(rec.Deleted)

	assert.Error(eng.ProcessEvent(ctx, bus.Event{Kind: "bogus", ChatID: "c1", UserID: "u1"}))
}

func TestFloodEnforcement(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Settings.PutFloodPolicy(ctx, &settings.FloodPolicy{
		ChatID:  "c1",
		Enabled: true,
		Limit:   3,
		Action:  settings.FloodActionMute,
	}))

	for i := 1; i <= 3; i++ {
		assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", fmt.Sprintf("m%d", i), "hi")))
	}
	assert.Empty(rec.Deleted)

	// fourth message within the window trips the limit
	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m4", "hi")))
	if assert.Len(rec.Deleted, 1) {
		assert.Equal("m4", rec.Deleted[0].MessageID)
	}
	if assert.Len(rec.Restricted, 1) {
		assert.Equal("u1", rec.Restricted[0].UserID)
		assert.False(rec.Restricted[0].Allowed)
	}
	if assert.Len(rec.Sent, 1) {
		assert.Contains(rec.Sent[0].Text, "too fast")
	}

	// other users in the same chat are unaffected
	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u2", "m5", "hi")))
	assert.Len(rec.Deleted, 1)
}

func TestFloodBanAction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Settings.PutFloodPolicy(ctx, &settings.FloodPolicy{
		ChatID:  "c1",
		Enabled: true,
		Limit:   1,
		Action:  settings.FloodActionBan,
	}))

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m1", "hi")))
	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m2", "hi")))
	if assert.Len(rec.Banned, 1) {
		assert.Equal("u1", rec.Banned[0].UserID)
	}
	assert.Len(rec.Deleted, 1)
}

func TestBlacklistDeletes(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Filters.AddBlacklist(ctx, "c1", "spam", false))

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m1", "buy SPAM now")))
	if assert.Len(rec.Deleted, 1) {
		assert.Equal("m1", rec.Deleted[0].MessageID)
	}
	if assert.Len(rec.Sent, 1) {
		assert.Contains(rec.Sent[0].Text, "blacklist")
	}

	// clean message in the same chat passes
	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m2", "buy eggs now")))
	assert.Len(rec.Deleted, 1)
}

func TestTriggerReply(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Filters.AddTrigger(ctx, "c1", "hello", "Hi there!", false))

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m1", "say hello please")))
	assert.Empty(rec.Deleted)
	if assert.Len(rec.Sent, 1) {
		assert.Equal("Hi there!", rec.Sent[0].Text)
		assert.Equal("m1", rec.Sent[0].ReplyTo)
	}
}

func TestBlacklistWinsOverTrigger(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Filters.AddBlacklist(ctx, "c1", "spam", false))
	assert.NoError(eng.Filters.AddTrigger(ctx, "c1", "spam", "gotcha", false))

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m1", "spam")))
	assert.Len(rec.Deleted, 1)
	if assert.Len(rec.Sent, 1) {
		assert.NotEqual("gotcha", rec.Sent[0].Text)
	}
}

func TestLinkLock(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Settings.PutChatFlags(ctx, &settings.ChatFlags{
		ChatID:          "c1",
		LinkLockEnabled: true,
	}))

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m1", "check https://example.com/deal out")))
	if assert.Len(rec.Deleted, 1) {
		assert.Equal("m1", rec.Deleted[0].MessageID)
	}
	if assert.Len(rec.Sent, 1) {
		assert.Contains(rec.Sent[0].Text, "Links")
	}

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m2", "no links here")))
	assert.Len(rec.Deleted, 1)
}

func TestArchiveDoesNotShortCircuit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Settings.PutChatFlags(ctx, &settings.ChatFlags{
		ChatID:           "c1",
		ArchiveEnabled:   true,
		ArchiveChannelID: "arch",
	}))
	assert.NoError(eng.Filters.AddTrigger(ctx, "c1", "hello", "Hi there!", false))

	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m1", "hello")))
	assert.Len(rec.Sent, 2)
	assert.Equal("arch", rec.Sent[0].ChatID)
	assert.Equal("hello", rec.Sent[0].Text)
	assert.Equal("Hi there!", rec.Sent[1].Text)
}

func TestFailSafeFloodDefault(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	store := eng.Settings.(*settings.MemStore)
	store.FailWith = errors.New("settings store down")

	// with the store broken, the default policy (limit 5, delete) applies
	for i := 1; i <= 5; i++ {
		assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", fmt.Sprintf("m%d", i), "hi")))
	}
	assert.Empty(rec.Deleted)
	assert.NoError(eng.ProcessMessage(ctx, msgEvent("c1", "u1", "m6", "hi")))
	if assert.Len(rec.Deleted, 1) {
		assert.Equal("m6", rec.Deleted[0].MessageID)
	}
	assert.Empty(rec.Banned)
	assert.Empty(rec.Restricted)
}

func TestCaptchaJoinFlow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Settings.PutCaptchaPolicy(ctx, &settings.CaptchaPolicy{
		ChatID:        "c1",
		Enabled:       true,
		Type:          settings.CaptchaTypeMath,
		Difficulty:    settings.CaptchaEasy,
		TimeLimitSecs: 300,
		FailAction:    settings.CaptchaFailKick,
	}))

	assert.NoError(eng.ProcessJoin(ctx, bus.Event{Kind: bus.EventJoin, ChatID: "c1", UserID: "u1"}))
	assert.Equal(1, eng.Captcha.Size())
	if assert.Len(rec.Restricted, 1) {
		assert.False(rec.Restricted[0].Allowed)
	}
	prompt := rec.LastSent()
	if !assert.NotNil(prompt) {
		return
	}
	assert.Len(prompt.Buttons, 2)

	var options []string
	for _, row := range prompt.Buttons {
		for _, b := range row {
			options = append(options, b.Data)
		}
	}
	assert.Len(options, 4)

	// try every option; exactly one resolves the challenge
	passed := 0
	for _, data := range options {
		assert.NoError(eng.ProcessCallback(ctx, bus.Event{
			Kind: bus.EventCallback, ChatID: "c1", UserID: "u1", Data: data,
		}))
		for _, r := range rec.Restricted {
			if r.Allowed {
				passed++
			}
		}
		if passed > 0 {
			break
		}
	}
	assert.Equal(1, passed)
	assert.Equal(0, eng.Captcha.Size())

	// prompt message got cleaned up
	if assert.Len(rec.Deleted, 1) {
		assert.Equal(prompt.MessageID, rec.Deleted[0].MessageID)
	}
}

func TestCaptchaExpiryKick(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Settings.PutCaptchaPolicy(ctx, &settings.CaptchaPolicy{
		ChatID:        "c1",
		Enabled:       true,
		Type:          settings.CaptchaTypeMath,
		Difficulty:    settings.CaptchaEasy,
		TimeLimitSecs: 300,
		FailAction:    settings.CaptchaFailKick,
	}))
	assert.NoError(eng.ProcessJoin(ctx, bus.Event{Kind: bus.EventJoin, ChatID: "c1", UserID: "u1"}))
	prompt := rec.LastSent()

	expired := eng.Captcha.SweepExpired(time.Now().Add(400 * time.Second))
	if !assert.Len(expired, 1) {
		return
	}
	eng.ExpireCaptcha(ctx, expired[0])

	if assert.Len(rec.Kicked, 1) {
		assert.Equal("u1", rec.Kicked[0].UserID)
	}
	assert.Contains(rec.LastSent().Text, "did not pass")
	if assert.NotNil(prompt) && assert.Len(rec.Deleted, 1) {
		assert.Equal(prompt.MessageID, rec.Deleted[0].MessageID)
	}
}

func TestWelcomeAndLeave(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	rec := eng.Bus.(*bus.Recorder)
	assert.NoError(eng.Settings.PutGreeting(ctx, &settings.Greeting{
		ChatID:         "c1",
		WelcomeEnabled: true,
		WelcomeText:    "Hey {user}, read the rules!",
		LeaveEnabled:   true,
		LeaveText:      "Bye {user}.",
	}))

	assert.NoError(eng.ProcessJoin(ctx, bus.Event{Kind: bus.EventJoin, ChatID: "c1", UserID: "u1"}))
	if assert.Len(rec.Sent, 1) {
		assert.Equal("Hey u1, read the rules!", rec.Sent[0].Text)
	}
	assert.Empty(rec.Restricted)

	assert.NoError(eng.ProcessLeave(ctx, bus.Event{Kind: bus.EventLeave, ChatID: "c1", UserID: "u1"}))
	assert.Equal("Bye u1.", rec.LastSent().Text)
}

func TestLeaveCancelsCaptcha(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	assert.NoError(eng.Settings.PutCaptchaPolicy(ctx, &settings.CaptchaPolicy{
		ChatID:     "c1",
		Enabled:    true,
		Type:       settings.CaptchaTypeMath,
		Difficulty: settings.CaptchaEasy,
		FailAction: settings.CaptchaFailKick,
	}))
	assert.NoError(eng.ProcessJoin(ctx, bus.Event{Kind: bus.EventJoin, ChatID: "c1", UserID: "u1"}))
	assert.Equal(1, eng.Captcha.Size())

	assert.NoError(eng.ProcessLeave(ctx, bus.Event{Kind: bus.EventLeave, ChatID: "c1", UserID: "u1"}))
	assert.Equal(0, eng.Captcha.Size())
	assert.Empty(eng.Captcha.SweepExpired(time.Now().Add(time.Hour)))
}

func TestConcurrentProcessing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng := EngineTestFixture()
	assert.NoError(eng.Settings.PutFloodPolicy(ctx, &settings.FloodPolicy{
		ChatID:  "c1",
		Enabled: true,
		Limit:   1000,
		Action:  settings.FloodActionDelete,
	}))
	assert.NoError(eng.Filters.AddTrigger(ctx, "c1", "ping", "pong", false))

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				evt := msgEvent("c1", fmt.Sprintf("u%d", g), fmt.Sprintf("m%d-%d", g, i), "just chatting")
				_ = eng.ProcessMessage(ctx, evt)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
