// Package server exposes the HTTP API: the recorder webhook, the archive read
// endpoints used by the frontend, admin operations, health probes and metrics.
// It injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/subtitle"
	"github.com/ayase-lab/matsuri-archive/telemetry"
)

// NewMux returns the HTTP handler with all routes. The provided context bounds
// background work spawned by handlers (webhook capture processing, rate
// limiter cleanup).
func NewMux(ctx context.Context, db *sql.DB, pipeline *clip.Pipeline, merger *clip.Merger, syncer *subtitle.Syncer) http.Handler {
	authCfg := loadAuthConfig()
	rateLimiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	handlers := NewHandlers(ctx, db, pipeline, merger, syncer)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	// Recorder webhook
	mux.HandleFunc("POST /rec", handlers.HandleRecorderWebhook)

	// Health and readiness endpoints
	mux.HandleFunc("GET /healthz", handlers.HandleHealthz)
	mux.HandleFunc("GET /readyz", handlers.HandleReadyz)
	mux.HandleFunc("GET /status", handlers.HandleStatus)

	// Archive read endpoints
	mux.HandleFunc("GET /{$}", handlers.HandleIndex)
	mux.HandleFunc("GET /channel/", handlers.HandleChannelList)
	mux.HandleFunc("GET /channel/{uid}", handlers.HandleChannelByUID)
	mux.HandleFunc("GET /channel/{uid}/clips", handlers.HandleChannelClips)
	mux.HandleFunc("GET /clip/{id}", handlers.HandleClipByID)
	mux.HandleFunc("GET /clip/{id}/comments", handlers.HandleClipComments)

	// Admin endpoints
	mux.HandleFunc("POST /admin/clip/{id}/refresh", handlers.HandleAdminClipRefresh)
	mux.HandleFunc("DELETE /admin/clip/{id}", handlers.HandleAdminClipDelete)
	mux.HandleFunc("POST /admin/subtitle/sync", handlers.HandleAdminSubtitleSync)

	// Admin endpoints get auth plus rate limiting; everything else is public.
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			adminAuth(rateLimitMiddleware(mux, rateLimiter), authCfg).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		// Start tracing span if enabled
		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		// Capture status code via custom ResponseWriter
		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		// Record HTTP status in span
		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
		if wrappedWriter.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrappedWriter.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
