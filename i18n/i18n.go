// Package i18n provides the translation lookup the engine uses for
// user-facing notices. The engine itself is locale-agnostic: it passes a key
// and parameters and sends whatever string comes back.
package i18n

import (
	"context"
	"strings"
)

type Translator interface {
	// Translate renders the template registered under key for the chat's
	// language, substituting {param} placeholders. Unknown keys render as the
	// key itself so a missing string is visible rather than silent.
	Translate(ctx context.Context, key, chatID string, params map[string]string) string
}

// LanguageFor reports a chat's language preference; wired to the settings
// store in production, fixed in tests.
type LanguageFunc func(ctx context.Context, chatID string) string

// Catalog is a map-backed Translator.
type Catalog struct {
	strings  map[string]map[string]string // lang -> key -> template
	langFor  LanguageFunc
	fallback string
}

var _ Translator = (*Catalog)(nil)

func NewCatalog(strings map[string]map[string]string, langFor LanguageFunc, fallback string) *Catalog {
	if fallback == "" {
		fallback = "en"
	}
	return &Catalog{strings: strings, langFor: langFor, fallback: fallback}
}

func (c *Catalog) Translate(ctx context.Context, key, chatID string, params map[string]string) string {
	lang := c.fallback
	if c.langFor != nil {
		if l := c.langFor(ctx, chatID); l != "" {
			lang = l
		}
	}
	tmpl, ok := c.strings[lang][key]
	if !ok {
		tmpl, ok = c.strings[c.fallback][key]
	}
	if !ok {
		return key
	}
	for k, v := range params {
		tmpl = strings.ReplaceAll(tmpl, "{"+k+"}", v)
	}
	return tmpl
}

// DefaultCatalog returns the built-in English strings.
func DefaultCatalog(langFor LanguageFunc) *Catalog {
	return NewCatalog(map[string]map[string]string{
		"en": {
			"flood.notice":            "{user} is sending messages too fast. Action: {action}.",
			"blacklist.notice":        "Message removed: it matched this chat's blacklist.",
			"linklock.notice":         "Links are not allowed in this chat.",
			"captcha.prompt":          "Welcome {user}! Please solve this to join the conversation: {question}",
			"captcha.wrong":           "That's not it, try again.",
			"captcha.passed":          "Thanks {user}, you're verified!",
			"captcha.failed":          "{user} did not pass verification in time.",
			"welcome.default":         "Welcome, {user}!",
			"admin.denied":            "Only chat admins can do that.",
			"admin.prompt.welcome":    "Send the new welcome text.",
			"admin.prompt.leave":      "Send the new leave text.",
			"admin.prompt.trigger":    "Send the new trigger as: keyword|response (prefix keyword with re: for regex).",
			"admin.prompt.keyword":    "Which trigger keyword do you want to edit?",
			"admin.prompt.response":   "Send the new response for {keyword}.",
			"admin.prompt.remove":     "Which entry should be removed?",
			"admin.prompt.blacklist":  "Send the pattern to blacklist (prefix with re: for regex).",
			"admin.prompt.flood":      "Send the new flood limit as: <messages-per-minute> <delete|mute|ban>.",
			"admin.prompt.captcha":    "Send the captcha policy as: <math|text|image> <easy|medium|hard> <seconds> <kick|mute>, or 'off'.",
			"admin.cancelled":         "Okay, cancelled.",
			"admin.saved":             "Saved.",
			"admin.removed":           "Removed.",
			"admin.notfound":          "No such entry.",
			"admin.invalid":           "That doesn't look right: {reason}. Try again.",
			"admin.error":             "Something went wrong saving that. Try again later.",
		},
	}, langFor, "en")
}
