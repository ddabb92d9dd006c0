package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/telemetry"
)

// HandleAdminClipRefresh recomputes a clip's aggregate from its stored
// records, discarding whatever the incremental merges accumulated.
func (h *Handlers) HandleAdminClipRefresh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "admin"))

	c, err := h.merger.Refresh(r.Context(), id)
	if errors.Is(err, clip.ErrClipNotFound) {
		writeError(w, http.StatusNotFound, "Clip not found.")
		return
	}
	if err != nil {
		logger.Error("clip refresh failed", slog.String("clip_id", id), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	logger.Info("clip refreshed", slog.String("clip_id", id), slog.Int("comments", c.CommentCount))
	writeData(w, map[string]any{"clip_id": id, "comment_count": c.CommentCount})
}

// HandleAdminClipDelete removes a clip and its records.
func (h *Handlers) HandleAdminClipDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "admin"))

	err := h.merger.Delete(r.Context(), id)
	if errors.Is(err, clip.ErrClipNotFound) {
		writeError(w, http.StatusNotFound, "Clip not found.")
		return
	}
	if err != nil {
		logger.Error("clip delete failed", slog.String("clip_id", id), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	logger.Info("clip deleted", slog.String("clip_id", id))
	writeData(w, map[string]any{"clip_id": id, "deleted": true})
}

// HandleAdminSubtitleSync triggers a subtitle sync pass out of schedule.
// With clip_id and bvid query parameters it imports one clip from a known
// replay video instead of running series pairing.
func (h *Handlers) HandleAdminSubtitleSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "subtitle sync not configured")
		return
	}
	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "admin"))

	clipID := r.URL.Query().Get("clip_id")
	bvid := r.URL.Query().Get("bvid")
	if clipID != "" && bvid != "" {
		err := h.syncer.SyncClip(r.Context(), clipID, bvid)
		if errors.Is(err, clip.ErrClipNotFound) {
			writeError(w, http.StatusNotFound, "Clip not found.")
			return
		}
		if err != nil {
			logger.Error("subtitle import failed", slog.String("clip_id", clipID), slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "subtitle import failed")
			return
		}
		writeData(w, map[string]any{"clip_id": clipID, "bvid": bvid})
		return
	}

	forced := r.URL.Query().Get("forced") == "1"
	if err := h.syncer.SyncAll(r.Context(), forced); err != nil {
		logger.Error("subtitle sync failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "subtitle sync failed")
		return
	}
	writeData(w, map[string]any{"forced": forced})
}
