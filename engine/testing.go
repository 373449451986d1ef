package engine

import (
	"log/slog"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/captcha"
	"github.com/warden-social/warden/countstore"
	"github.com/warden-social/warden/filters"
	"github.com/warden-social/warden/flood"
	"github.com/warden-social/warden/i18n"
	"github.com/warden-social/warden/pending"
	"github.com/warden-social/warden/settings"
)

// EngineTestFixture assembles a fully in-memory engine with the default rule
// set and a bus.Recorder transport. Tests reach the recorder and the settings
// store through the engine's fields (type-asserting Bus and Settings).
func EngineTestFixture() Engine {
	logger := slog.Default()
	store := settings.NewMemStore()
	eng := Engine{
		Logger:     logger,
		Rules:      DefaultRules(),
		Settings:   store,
		Flood:      flood.NewLimiter(logger),
		Filters:    filters.NewChecker(store, logger),
		Pending:    pending.NewStore(pending.DefaultTTL, logger),
		Captcha:    captcha.NewVerifier(logger),
		Counters:   countstore.NewMemCountStore(),
		Bus:        bus.NewRecorder(),
		Translator: i18n.DefaultCatalog(nil),
	}
	return eng
}
