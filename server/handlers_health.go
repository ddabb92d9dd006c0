package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/db"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"schema", func() error {
			var one int
			err := h.db.QueryRowContext(r.Context(), "SELECT 1 FROM clips LIMIT 1").Scan(&one)
			if err != nil && err != sql.ErrNoRows {
				return err
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// HandleStatus reports archive totals for quick operational inspection.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var clips, comments, channels, live int
	if err := h.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM clips),
		(SELECT COUNT(1) FROM comments),
		(SELECT COUNT(1) FROM channels),
		(SELECT COUNT(1) FROM channels WHERE is_live)`).Scan(&clips, &comments, &channels, &live); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	status := map[string]any{
		"clips":         clips,
		"comments":      comments,
		"channels":      channels,
		"live_channels": live,
	}
	if lastSync, err := db.GetKVTime(ctx, h.db, "subtitle_last_sync"); err == nil && !lastSync.IsZero() {
		status["subtitle_last_sync"] = clip.ToMillis(lastSync)
	}
	writeData(w, status)
}
