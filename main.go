// Command matsuri-archive is the main entrypoint for the danmaku archive API
// and background workers. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the subtitle sync job when a replay series is configured.
//   - Exposes the HTTP API: recorder webhook, archive read endpoints,
//     admin operations, /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ayase-lab/matsuri-archive/biliapi"
	"github.com/ayase-lab/matsuri-archive/blrecapi"
	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/config"
	"github.com/ayase-lab/matsuri-archive/db"
	"github.com/ayase-lab/matsuri-archive/server"
	"github.com/ayase-lab/matsuri-archive/subtitle"
	"github.com/ayase-lab/matsuri-archive/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

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
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("matsuri-archive", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Capture pipeline: normalizer + merger + recorder client
	merger := clip.NewMerger(database, clip.Extractor{Keywords: cfg.HighlightKeywords, Window: cfg.HighlightWindow}, cfg.RevenueDecimals)
	var recorder *blrecapi.Client
	if cfg.RecorderBaseURL != "" {
		recorder = &blrecapi.Client{BaseURL: cfg.RecorderBaseURL}
	} else {
		slog.Info("recorder client disabled (BLREC_BASE_URL not set); channel refresh is skipped")
	}
	pipeline := clip.NewPipeline(database, merger, recorder)

	// Subtitle sync: pairs clips with official replays and imports CC tracks
	var syncer *subtitle.Syncer
	if err := cfg.ValidateSubtitleReady(); err == nil {
		syncer = subtitle.NewSyncer(database, &biliapi.Client{}, cfg.BiliUID, cfg.BiliSeriesID)
		go subtitle.StartSyncJob(ctx, syncer, cfg.SubtitleSyncEvery)
	} else {
		slog.Info("subtitle sync disabled", slog.Any("reason", err))
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server
	mux := server.NewMux(ctx, database, pipeline, merger, syncer)
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, mux); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
