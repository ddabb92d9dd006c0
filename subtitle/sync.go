// Package subtitle pairs archived clips with their official replay uploads
// and imports the replay's CC subtitles as synthetic comment records, so the
// translated lines scroll alongside the original chat.
package subtitle

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayase-lab/matsuri-archive/biliapi"
	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/db"
	"github.com/ayase-lab/matsuri-archive/telemetry"
)

// musicThreshold separates sung lines from spoken ones in the CC track.
const musicThreshold = 0.2

const lastSyncKey = "subtitle_last_sync"

// Syncer walks the recent clips of a streamer and imports subtitles for any
// clip whose official replay upload can be found in the configured series.
type Syncer struct {
	DB       *sql.DB
	Catalog  *biliapi.Client
	UID      int64
	SeriesID int64
	MaxClips int
	Loc      *time.Location
}

func NewSyncer(dbc *sql.DB, catalog *biliapi.Client, uid, seriesID int64) *Syncer {
	return &Syncer{DB: dbc, Catalog: catalog, UID: uid, SeriesID: seriesID, MaxClips: 10, Loc: time.Local}
}

type candidate struct {
	ClipID    string
	Title     string
	StartTime time.Time
}

// SyncAll runs one pass: recent clips without subtitles are matched against
// the replay series by exact title and imported. With forced set, clips that
// already have subtitles are re-imported too.
func (s *Syncer) SyncAll(ctx context.Context, forced bool) error {
	if telemetry.SubtitleSyncRuns != nil {
		telemetry.SubtitleSyncRuns.Inc()
	}
	logger := slog.Default().With(slog.String("component", "subtitle"))

	clips, err := s.recentClips(ctx)
	if err != nil {
		return err
	}
	var pending []candidate
	for _, c := range clips {
		if !forced {
			has, err := clip.HasSynthetic(ctx, s.DB, c.ClipID)
			if err != nil {
				return err
			}
			if has {
				continue
			}
		}
		pending = append(pending, c)
	}
	if len(pending) == 0 {
		logger.Debug("all recent clips already have subtitles", slog.Int("checked", len(clips)))
		return nil
	}

	archives, err := s.Catalog.ListSeriesVideos(ctx, s.UID, s.SeriesID, 1, s.MaxClips)
	if err != nil {
		return err
	}
	for _, c := range pending {
		if err := s.syncClip(ctx, c, archives); err != nil {
			logger.Warn("subtitle import failed", slog.String("clip_id", c.ClipID), slog.Any("err", err))
		}
	}
	if err := db.SetKVTime(ctx, s.DB, lastSyncKey, time.Now()); err != nil {
		logger.Warn("record sync time", slog.Any("err", err))
	}
	return nil
}

// SyncClip imports subtitles for a single clip from a known replay video,
// bypassing series pairing. Used by the admin endpoint.
func (s *Syncer) SyncClip(ctx context.Context, clipID, bvid string) error {
	c, err := s.lookupClip(ctx, clipID)
	if err != nil {
		return err
	}
	return s.importFrom(ctx, *c, bvid)
}

func (s *Syncer) syncClip(ctx context.Context, c candidate, archives []biliapi.Archive) error {
	want := clip.ReplayTitle(c.Title, c.StartTime, s.Loc)
	for _, a := range archives {
		if a.Title == want {
			slog.Debug("clip matched replay", slog.String("component", "subtitle"),
				slog.String("clip_id", c.ClipID), slog.String("bvid", a.BVID))
			return s.importFrom(ctx, c, a.BVID)
		}
	}
	slog.Warn("no replay paired", slog.String("component", "subtitle"),
		slog.String("clip_id", c.ClipID), slog.String("wanted_title", want))
	return nil
}

func (s *Syncer) importFrom(ctx context.Context, c candidate, bvid string) error {
	info, err := s.Catalog.GetVideoInfo(ctx, bvid)
	if err != nil {
		return err
	}

	// Subtitle timestamps restart at zero in every video part; accumulate
	// part durations so multi-part replays line up with the live timeline.
	var lines []biliapi.SubtitleLine
	var offset float64
	for _, page := range info.Pages {
		pageLines, err := s.Catalog.GetSubtitles(ctx, bvid, page.CID)
		if err != nil {
			return err
		}
		for _, l := range pageLines {
			l.From += offset
			l.To += offset
			lines = append(lines, l)
		}
		offset += float64(page.Duration)
	}
	if len(lines) == 0 {
		return nil
	}

	recs := buildRecords(c, info.Owner.Name, info.Owner.MID, lines)
	if err := clip.AddSynthetic(ctx, s.DB, recs); err != nil {
		return err
	}
	if telemetry.SubtitlesImported != nil {
		telemetry.SubtitlesImported.Add(float64(len(recs)))
	}
	slog.Info("subtitles imported", slog.String("component", "subtitle"),
		slog.String("clip_id", c.ClipID), slog.String("bvid", bvid), slog.Int("lines", len(recs)))
	return nil
}

// buildRecords turns subtitle lines into synthetic records attributed to the
// replay uploader. Sung lines get the note prefix, spoken lines the speaker
// prefix, matching how they render in the played-back chat.
func buildRecords(c candidate, owner string, ownerUID int64, lines []biliapi.SubtitleLine) []clip.Record {
	recs := make([]clip.Record, 0, len(lines))
	for _, l := range lines {
		var text string
		if l.Music > musicThreshold {
			text = fmt.Sprintf("♪: 【%s】", l.Content)
		} else {
			text = fmt.Sprintf("主播: 【%s】", l.Content)
		}
		t := text
		recs = append(recs, clip.Record{
			ClipID:    c.ClipID,
			Time:      c.StartTime.Add(time.Duration(l.From * float64(time.Second))),
			Username:  owner,
			UserID:    ownerUID,
			Text:      &t,
			Synthetic: true,
		})
	}
	return recs
}

func (s *Syncer) recentClips(ctx context.Context) ([]candidate, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT clip_id, title, start_time FROM clips
		WHERE uid=$1 ORDER BY start_time DESC LIMIT $2`, s.UID, s.MaxClips)
	if err != nil {
		return nil, fmt.Errorf("list recent clips: %w", err)
	}
	defer rows.Close()
	var out []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.ClipID, &c.Title, &c.StartTime); err != nil {
			return nil, fmt.Errorf("scan recent clip: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Syncer) lookupClip(ctx context.Context, clipID string) (*candidate, error) {
	var c candidate
	err := s.DB.QueryRowContext(ctx, `SELECT clip_id, title, start_time FROM clips
		WHERE clip_id=$1`, clipID).Scan(&c.ClipID, &c.Title, &c.StartTime)
	if err == sql.ErrNoRows {
		return nil, clip.ErrClipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup clip %s: %w", clipID, err)
	}
	return &c, nil
}

// StartSyncJob runs SyncAll on an interval until ctx is cancelled. The first
// pass runs immediately so a restart doesn't wait a full interval.
func StartSyncJob(ctx context.Context, s *Syncer, interval time.Duration) {
	slog.Info("subtitle sync job starting", slog.Duration("interval", interval),
		slog.Int64("uid", s.UID), slog.Int64("series_id", s.SeriesID))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if err := s.SyncAll(ctx, false); err != nil {
		slog.Warn("subtitle sync", slog.Any("err", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("subtitle sync job stopped")
			return
		case <-ticker.C:
			if err := s.SyncAll(ctx, false); err != nil {
				slog.Warn("subtitle sync", slog.Any("err", err))
			}
		}
	}
}
