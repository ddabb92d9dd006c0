package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/telemetry"
)

// recorderEvent is the envelope blrec posts to the webhook.
type recorderEvent struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Type string `json:"type"`
	Data struct {
		RoomID   int64  `json:"room_id"`
		Path     string `json:"path"`
		RoomInfo struct {
			RoomID int64 `json:"room_id"`
			UID    int64 `json:"uid"`
		} `json:"room_info"`
	} `json:"data"`
}

func (e *recorderEvent) roomID() int64 {
	if e.Data.RoomID != 0 {
		return e.Data.RoomID
	}
	return e.Data.RoomInfo.RoomID
}

// HandleRecorderWebhook ingests recorder lifecycle events. Live began/ended
// flip the channel's live flag; a completed danmaku file triggers capture
// processing. Processing runs in the background so a large capture can't
// outlive the response write timeout; the recorder only needs the ack.
func (h *Handlers) HandleRecorderWebhook(w http.ResponseWriter, r *http.Request) {
	var ev recorderEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}
	logger := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "webhook"))
	logger.Info("recorder event", slog.String("type", ev.Type), slog.Int64("room_id", ev.roomID()))

	switch ev.Type {
	case "LiveBeganEvent":
		h.markLiveAsync(ev.roomID(), true)
	case "LiveEndedEvent":
		h.markLiveAsync(ev.roomID(), false)
	case "DanmakuFileCompletedEvent", "RawDanmakuFileCompletedEvent":
		notice := clip.CaptureNotice{RoomID: ev.roomID(), Path: ev.Data.Path, EndedAt: parseEventDate(ev.Date)}
		go func() {
			if _, err := h.pipeline.ProcessCapture(h.ctx, notice); err != nil {
				slog.Error("capture processing failed", slog.String("component", "webhook"),
					slog.String("path", notice.Path), slog.Any("err", err))
			}
		}()
	default:
		logger.Debug("ignored recorder event", slog.String("type", ev.Type))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "Mua~"})
}

// parseEventDate reads the event's wall-clock timestamp. The recorder writes
// "2006-01-02 15:04:05.999999-07:00"; the backfill tool posts RFC3339. Zero
// when neither parses, which lets the pipeline fall back to record times.
func parseEventDate(s string) time.Time {
	if t, err := clip.ParseRecorderTime(s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

func (h *Handlers) markLiveAsync(roomID int64, live bool) {
	go func() {
		if err := h.pipeline.MarkLive(h.ctx, roomID, live); err != nil {
			slog.Warn("live status update failed", slog.String("component", "webhook"),
				slog.Int64("room_id", roomID), slog.Any("err", err))
		}
	}()
}
