// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/subtitle"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db       *sql.DB
	ctx      context.Context
	pipeline *clip.Pipeline
	merger   *clip.Merger
	syncer   *subtitle.Syncer
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// syncer may be nil when subtitle sync is not configured.
func NewHandlers(ctx context.Context, db *sql.DB, pipeline *clip.Pipeline, merger *clip.Merger, syncer *subtitle.Syncer) *Handlers {
	return &Handlers{
		db:       db,
		ctx:      ctx,
		pipeline: pipeline,
		merger:   merger,
		syncer:   syncer,
	}
}

// writeData writes the {"status": 0, "data": ...} envelope the frontend consumes.
func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": 0, "data": data}); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "detail": detail})
}
