// Command golem is an IRC bot bridging Twitch EventSub stream notifications
// into IRC channels. It:
//   - Loads configuration and initializes structured logging.
//   - Keeps EventSub subscriptions reconciled against the watched streams.
//   - Receives and authenticates webhook deliveries, announcing stream
//     online/offline transitions in the configured channels.
//   - Runs chat plugins (jokes, republican calendar, crypto rates) on the
//     same connection.
//   - Exposes a minimal HTTP server with the webhook endpoint, /healthz and
//     /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nicklaw5/helix/v2"

	"github.com/geekingfrog/golem/bot"
	"github.com/geekingfrog/golem/config"
	"github.com/geekingfrog/golem/db"
	"github.com/geekingfrog/golem/plugins/calendar"
	"github.com/geekingfrog/golem/plugins/cryptocoin"
	"github.com/geekingfrog/golem/plugins/joke"
	"github.com/geekingfrog/golem/server"
	"github.com/geekingfrog/golem/telemetry"
	"github.com/geekingfrog/golem/twitch"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfgPath := os.Getenv("GOLEM_CONFIG")
	if cfgPath == "" {
		cfgPath = "golem.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("golem", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence is optional: without a DSN the crypto plugin still answers
	// with the spot rate, just without historical variation.
	var rates cryptocoin.RateStore
	if cfg.DatabaseDSN != "" {
		database, err := db.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer database.Close()
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("migrations failed", slog.Any("err", err))
			os.Exit(1)
		}
		rates = db.NewRateStore(database)
	} else {
		slog.Warn("no database configured, crypto rate history disabled")
		rates = noopRateStore{}
	}

	tokens := twitch.NewTokenSource(cfg.Twitch.ClientID, cfg.Twitch.ClientSecret)
	helixClient, err := helix.NewClient(&helix.Options{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
	})
	if err != nil {
		slog.Error("helix client init failed", slog.Any("err", err))
		os.Exit(1)
	}

	events := make(chan twitch.StreamEvent, 64)
	revocations := make(chan twitch.Revocation, 16)
	registrar := twitch.NewRegistrar(helixClient, tokens, cfg.Twitch, revocations)
	webhook := twitch.NewWebhookHandler(cfg.Twitch.WebhookSecret, events, revocations)
	twitchPlugin := twitch.NewPlugin(cfg.Twitch, helixClient, registrar, events)

	go func() {
		addr := cfg.Twitch.BindAddr
		slog.Info("starting webhook server", slog.String("addr", addr))
		if err := server.Start(ctx, addr, server.NewMux(cfg.WebhookPath(), webhook)); err != nil {
			slog.Error("webhook server exited", slog.Any("err", err))
		}
	}()

	b := bot.New(cfg.IRC, cfg.BlacklistedUsers,
		twitchPlugin,
		joke.New(),
		calendar.New(),
		cryptocoin.New(rates),
	)
	b.CTCPTime = func() string { return calendar.TimeString(time.Now()) }

	slog.Info("starting golem",
		slog.String("server", cfg.IRC.Server),
		slog.String("nick", cfg.IRC.Nickname),
		slog.Int("watched_streams", len(cfg.Twitch.WatchedStreams)))
	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("bot exited", slog.Any("err", err))
		os.Exit(1)
	}
}

// noopRateStore keeps the crypto plugin functional without persistence.
type noopRateStore struct{}

func (noopRateStore) Insert(ctx context.Context, pair string, rate float64, observedAt time.Time) error {
	return nil
}

func (noopRateStore) LatestBefore(ctx context.Context, pair string, cutoff time.Time) (*db.Rate, error) {
	return nil, db.ErrNoRate
}
