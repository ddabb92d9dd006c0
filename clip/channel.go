package clip

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ayase-lab/matsuri-archive/blrecapi"
	"github.com/ayase-lab/matsuri-archive/telemetry"
)

// RefreshChannel recomputes a streamer's channel row from the stored clips
// of their room plus the recorder's current live status. Channel state is
// always derived by re-scan, never incremented, so it self-heals alongside
// the clips it summarizes.
func RefreshChannel(ctx context.Context, dbc *sql.DB, data *blrecapi.RoomData, isLive bool) error {
	roomID := data.RoomInfo.RoomID

	var totalClips, totalComments int
	var lastLive sql.NullTime
	err := dbc.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(comment_count),0), MAX(start_time)
		FROM clips WHERE room_id=$1`, roomID).Scan(&totalClips, &totalComments, &lastLive)
	if err != nil {
		return fmt.Errorf("scan channel stats: %w", err)
	}
	var lastCount int
	if totalClips > 0 {
		err = dbc.QueryRowContext(ctx, `SELECT comment_count FROM clips WHERE room_id=$1
			ORDER BY start_time DESC LIMIT 1`, roomID).Scan(&lastCount)
		if err != nil {
			return fmt.Errorf("scan last clip count: %w", err)
		}
	}

	_, err = dbc.ExecContext(ctx, `INSERT INTO channels (room_id, uid, name, face, is_live,
		last_comment_count, last_live, total_clips, total_comments, hidden, archive, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE,FALSE,NOW())
		ON CONFLICT (room_id) DO UPDATE SET
			uid=EXCLUDED.uid, name=EXCLUDED.name, face=EXCLUDED.face, is_live=EXCLUDED.is_live,
			last_comment_count=EXCLUDED.last_comment_count, last_live=EXCLUDED.last_live,
			total_clips=EXCLUDED.total_clips, total_comments=EXCLUDED.total_comments, updated_at=NOW()`,
		roomID, data.UserInfo.UID, data.UserInfo.Name, data.UserInfo.Face, isLive,
		lastCount, lastLive, totalClips, totalComments)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}

	var live int
	if err := dbc.QueryRowContext(ctx, `SELECT COUNT(1) FROM channels WHERE is_live`).Scan(&live); err == nil {
		telemetry.SetLiveChannels(live)
	}
	slog.Debug("channel refreshed", slog.String("component", "channel"),
		slog.Int64("room_id", roomID), slog.Bool("is_live", isLive), slog.Int("total_clips", totalClips))
	return nil
}
