package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warden-social/warden/bus"
	"github.com/warden-social/warden/cachestore"
	"github.com/warden-social/warden/captcha"
	"github.com/warden-social/warden/countstore"
	"github.com/warden-social/warden/engine"
	"github.com/warden-social/warden/filters"
	"github.com/warden-social/warden/flood"
	"github.com/warden-social/warden/i18n"
	"github.com/warden-social/warden/pending"
	"github.com/warden-social/warden/settings"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "warden",
		Usage:   "chat moderation daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/warden/warden.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL; if empty, counters and caches are in-process",
			EnvVars: []string{"WARDEN_REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "transport-host",
			Usage:   "method, hostname, and port of the chat transport sidecar",
			Value:   "http://localhost:8400",
			EnvVars: []string{"WARDEN_TRANSPORT_HOST"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the event ingest API",
			Value:   ":3999",
			EnvVars: []string{"WARDEN_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"WARDEN_METRICS_LISTEN"},
		},
		&cli.Float64Flag{
			Name:    "send-rate-limit",
			Usage:   "max outbound messages per second, per chat",
			Value:   1.0,
			EnvVars: []string{"WARDEN_SEND_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			slog.Info("setting up trace exporter", "endpoint", ep)
			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				log.Fatal("failed to create trace exporter", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					slog.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("warden"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		db, err := settings.OpenDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}
		gormStore, err := settings.NewGormStore(db)
		if err != nil {
			return err
		}

		var cache cachestore.CacheStore
		var counters countstore.CountStore
		if redisURL := cctx.String("redis-url"); redisURL != "" {
			csh, err := cachestore.NewRedisCacheStore(redisURL, 30*time.Minute)
			if err != nil {
				return fmt.Errorf("initializing redis cachestore: %w", err)
			}
			cache = csh
			cnt, err := countstore.NewRedisCountStore(redisURL)
			if err != nil {
				return fmt.Errorf("initializing redis countstore: %w", err)
			}
			counters = cnt
		} else {
			cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
			counters = countstore.NewMemCountStore()
		}

		store := settings.NewCached(gormStore, cache, logger)
		transport := bus.NewRateLimited(
			bus.NewWebhookBus(cctx.String("transport-host")),
			cctx.Float64("send-rate-limit"), 3,
		)
		langFor := func(ctx context.Context, chatID string) string {
			flags, err := store.GetChatFlags(ctx, chatID)
			if err != nil || flags == nil {
				return ""
			}
			return flags.Language
		}

		eng := &engine.Engine{
			Logger:     logger,
			Rules:      engine.DefaultRules(),
			Settings:   store,
			Flood:      flood.NewLimiter(logger),
			Filters:    filters.NewChecker(store, logger),
			Pending:    pending.NewStore(pending.DefaultTTL, logger),
			Captcha:    captcha.NewVerifier(logger),
			Counters:   counters,
			Bus:        transport,
			Translator: i18n.DefaultCatalog(langFor),
		}

		srv := NewServer(eng, logger)

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()
		go eng.RunSweeps(ctx)

		if err := srv.Run(ctx, cctx.String("bind")); err != nil {
			return fmt.Errorf("failed to run moderation service: %w", err)
		}
		return nil
	},
}
