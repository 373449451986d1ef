// Package captcha issues join-time verification challenges and resolves
// answers. At most one live challenge per (chat, user); re-issuing overwrites
// the prior one. A wrong answer never fails the user outright; the policy's
// fail action only applies on timeout (retry-until-expiry).
package captcha

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/warden-social/warden/settings"
)

type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeCorrect
	OutcomeIncorrect
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not-found"
	case OutcomeCorrect:
		return "correct"
	case OutcomeIncorrect:
		return "incorrect"
	case OutcomeExpired:
		return "expired"
	}
	return "unknown"
}

// Challenge is a live verification puzzle. Options always holds exactly four
// distinct strings, with Answer among them exactly once.
type Challenge struct {
	ChatID     string
	UserID     string
	Question   string
	Answer     string
	Options    []string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	FailAction settings.CaptchaFailAction
	// message carrying the challenge prompt, recorded so it can be deleted
	// once the challenge resolves
	PromptMessageID string
}

func (ch *Challenge) Expired(now time.Time) bool {
	return now.After(ch.ExpiresAt)
}

// Verifier owns all live challenges, partitioned per (chat, user).
type Verifier struct {
	challenges *xsync.MapOf[string, *Challenge]
	logger     *slog.Logger
}

func NewVerifier(logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		challenges: xsync.NewMapOf[string, *Challenge](),
		logger:     logger,
	}
}

func key(chatID, userID string) string {
	return chatID + "/" + userID
}

// Issue creates and registers a challenge per the chat's captcha policy,
// replacing any prior challenge for the same user.
func (v *Verifier) Issue(chatID, userID string, pol *settings.CaptchaPolicy, now time.Time) *Challenge {
	var question, answer string
	var options []string
	switch pol.Type {
	case settings.CaptchaTypeText:
		question, answer, options = textChallenge()
	case settings.CaptchaTypeImage:
		question, answer, options = glyphChallenge()
	default:
		question, answer, options = mathChallenge(pol.Difficulty)
	}
	ch := &Challenge{
		ChatID:     chatID,
		UserID:     userID,
		Question:   question,
		Answer:     answer,
		Options:    options,
		IssuedAt:   now,
		ExpiresAt:  now.Add(pol.TimeLimit()),
		FailAction: pol.FailAction,
	}
	v.challenges.Store(key(chatID, userID), ch)
	return ch
}

// SetPrompt records the ID of the sent challenge message. The stored
// challenge is replaced with a copy, never written through, so a concurrent
// Resolve sees either no prompt ID or the full one.
func (v *Verifier) SetPrompt(chatID, userID, messageID string) {
	v.challenges.Compute(key(chatID, userID), func(old *Challenge, loaded bool) (*Challenge, bool) {
		if !loaded {
			return nil, true
		}
		cp := *old
		cp.PromptMessageID = messageID
		return &cp, false
	})
}

// Resolve checks a submitted answer. Correct and Expired both consume the
// challenge; Incorrect leaves it live so the user can retry until expiry.
// The returned Challenge is non-nil except for NotFound.
func (v *Verifier) Resolve(chatID, userID, submitted string, now time.Time) (Outcome, *Challenge) {
	k := key(chatID, userID)
	ch, ok := v.challenges.Load(k)
	if !ok {
		return OutcomeNotFound, nil
	}
	if ch.Expired(now) {
		v.challenges.Delete(k)
		return OutcomeExpired, ch
	}
	if strings.EqualFold(strings.TrimSpace(submitted), ch.Answer) {
		v.challenges.Delete(k)
		return OutcomeCorrect, ch
	}
	return OutcomeIncorrect, ch
}

// Cancel discards the user's challenge, e.g. when they leave the chat before
// answering.
func (v *Verifier) Cancel(chatID, userID string) (*Challenge, bool) {
	k := key(chatID, userID)
	ch, ok := v.challenges.Load(k)
	if !ok {
		return nil, false
	}
	v.challenges.Delete(k)
	return ch, true
}

// SweepExpired removes and returns all expired challenges so the caller can
// apply their fail actions.
func (v *Verifier) SweepExpired(now time.Time) []*Challenge {
	var out []*Challenge
	v.challenges.Range(func(k string, ch *Challenge) bool {
		if ch.Expired(now) {
			v.challenges.Delete(k)
			out = append(out, ch)
		}
		return true
	})
	return out
}

// Run sweeps on a fixed interval, invoking onExpire for each timed-out
// challenge, until the context is done.
func (v *Verifier) Run(ctx context.Context, interval time.Duration, onExpire func(context.Context, *Challenge)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ch := range v.SweepExpired(time.Now()) {
				onExpire(ctx, ch)
			}
		}
	}
}

// Size reports the number of live challenges.
func (v *Verifier) Size() int {
	return v.challenges.Size()
}

func operandRange(d settings.CaptchaDifficulty) (int, int) {
	switch d {
	case settings.CaptchaMedium:
		return 10, 50
	case settings.CaptchaHard:
		return 10, 99
	default:
		return 1, 10
	}
}

func mathChallenge(d settings.CaptchaDifficulty) (string, string, []string) {
	lo, hi := operandRange(d)
	a := lo + rand.IntN(hi-lo+1)
	b := lo + rand.IntN(hi-lo+1)
	sum := a + b

	// three distractors: sum±delta and an unrelated value, regenerating any
	// that collide so all four options stay distinct
	used := map[int]bool{sum: true}
	pick := func(gen func() int) int {
		for {
			c := gen()
			if c >= 1 && !used[c] {
				used[c] = true
				return c
			}
		}
	}
	delta := 1 + rand.IntN(4)
	d1 := pick(func() int { return sum + delta + rand.IntN(3) })
	d2 := pick(func() int {
		// small sums may leave no room below 1; go above d1's band instead
		if c := sum - delta - rand.IntN(3); c >= 1 {
			return c
		}
		return sum + delta + 3 + rand.IntN(3)
	})
	d3 := pick(func() int { return 2 + rand.IntN(2*hi) })

	options := []string{
		strconv.Itoa(sum),
		strconv.Itoa(d1),
		strconv.Itoa(d2),
		strconv.Itoa(d3),
	}
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})

	question := strconv.Itoa(a) + " + " + strconv.Itoa(b) + " = ?"
	return question, strconv.Itoa(sum), options
}

type wordPuzzle struct {
	question string
	answer   string
	wrong    [3]string
}

var wordPuzzles = []wordPuzzle{
	{"Which of these is a color?", "blue", [3]string{"seven", "table", "run"}},
	{"Which of these is an animal?", "horse", [3]string{"cloud", "spoon", "green"}},
	{"Which of these is a number?", "twelve", [3]string{"apple", "chair", "fast"}},
	{"Which of these can fly?", "sparrow", [3]string{"hammer", "carrot", "boot"}},
	{"Which of these is a fruit?", "pear", [3]string{"brick", "violin", "north"}},
}

func textChallenge() (string, string, []string) {
	p := wordPuzzles[rand.IntN(len(wordPuzzles))]
	options := []string{p.answer, p.wrong[0], p.wrong[1], p.wrong[2]}
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return p.question, p.answer, options
}

type glyph struct {
	glyph string
	name  string
}

var glyphs = []glyph{
	{"🐱", "cat"},
	{"🐶", "dog"},
	{"🍎", "apple"},
	{"🌲", "tree"},
	{"🚗", "car"},
	{"🌙", "moon"},
	{"⚽", "ball"},
}

func glyphChallenge() (string, string, []string) {
	i := rand.IntN(len(glyphs))
	correct := glyphs[i]

	used := map[int]bool{i: true}
	options := []string{correct.name}
	for len(options) < 4 {
		j := rand.IntN(len(glyphs))
		if used[j] {
			continue
		}
		used[j] = true
		options = append(options, glyphs[j].name)
	}
	rand.Shuffle(len(options), func(a, b int) {
		options[a], options[b] = options[b], options[a]
	})
	return "What is this? " + correct.glyph, correct.name, options
}
