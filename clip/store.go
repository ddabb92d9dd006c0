package clip

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// SQL access for clip aggregates and comment records. Column layout lives in
// db.Migrate; everything here is keyed by clip_id.

func getClip(ctx context.Context, dbc *sql.DB, id string) (*Clip, error) {
	row := dbc.QueryRowContext(ctx, `SELECT clip_id, room_id, uid, streamer_name, title, cover,
		start_time, end_time, comment_count, gift_revenue, superchat_revenue, total_revenue,
		comment_density, peak_viewers, highlights
		FROM clips WHERE clip_id=$1`, id)
	var c Clip
	var highlights []byte
	err := row.Scan(&c.ID, &c.RoomID, &c.UID, &c.StreamerName, &c.Title, &c.Cover,
		&c.StartTime, &c.EndTime, &c.CommentCount, &c.GiftRevenue, &c.SuperchatRevenue, &c.TotalRevenue,
		&c.CommentDensity, &c.PeakViewers, &highlights)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clip %s: %w", id, err)
	}
	if len(highlights) > 0 {
		if err := json.Unmarshal(highlights, &c.Highlights); err != nil {
			return nil, fmt.Errorf("decode highlights for %s: %w", id, err)
		}
	}
	return &c, nil
}

func upsertClip(ctx context.Context, q queryer, c *Clip) error {
	highlights, err := json.Marshal(c.Highlights)
	if err != nil {
		return fmt.Errorf("encode highlights: %w", err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO clips (clip_id, room_id, uid, streamer_name, title, cover,
		start_time, end_time, comment_count, gift_revenue, superchat_revenue, total_revenue,
		comment_density, peak_viewers, highlights, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
		ON CONFLICT (clip_id) DO UPDATE SET
			room_id=EXCLUDED.room_id, uid=EXCLUDED.uid, streamer_name=EXCLUDED.streamer_name,
			title=EXCLUDED.title, cover=EXCLUDED.cover,
			start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
			comment_count=EXCLUDED.comment_count, gift_revenue=EXCLUDED.gift_revenue,
			superchat_revenue=EXCLUDED.superchat_revenue, total_revenue=EXCLUDED.total_revenue,
			comment_density=EXCLUDED.comment_density, peak_viewers=EXCLUDED.peak_viewers,
			highlights=EXCLUDED.highlights, updated_at=NOW()`,
		c.ID, c.RoomID, c.UID, c.StreamerName, c.Title, c.Cover,
		c.StartTime, c.EndTime, c.CommentCount, c.GiftRevenue, c.SuperchatRevenue, c.TotalRevenue,
		c.CommentDensity, c.PeakViewers, highlights)
	if err != nil {
		return fmt.Errorf("upsert clip %s: %w", c.ID, err)
	}
	return nil
}

// setClipOwner stamps a clip with the streamer identity the recorder knows.
// The header only carries the room number; uid and cover come from the API.
func setClipOwner(ctx context.Context, dbc *sql.DB, id string, uid int64, cover string) error {
	_, err := dbc.ExecContext(ctx, `UPDATE clips SET uid=$1, cover=$2, updated_at=NOW() WHERE clip_id=$3`,
		uid, cover, id)
	if err != nil {
		return fmt.Errorf("set clip owner %s: %w", id, err)
	}
	return nil
}

// AddSynthetic bulk-inserts externally sourced records (subtitle imports) for
// a clip. Synthetic records never participate in aggregate recomputation.
func AddSynthetic(ctx context.Context, dbc *sql.DB, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := dbc.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin synthetic insert: %w", err)
	}
	if err := insertRecords(ctx, tx, recs); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit synthetic insert: %w", err)
	}
	return nil
}

// HasSynthetic reports whether a clip already carries synthetic records.
func HasSynthetic(ctx context.Context, dbc *sql.DB, clipID string) (bool, error) {
	var exists bool
	err := dbc.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM comments WHERE clip_id=$1 AND is_synthetic)`, clipID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check synthetic for %s: %w", clipID, err)
	}
	return exists, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecords(ctx context.Context, tx *sql.Tx, recs []Record) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO comments (clip_id, ts, username, user_id,
		medal_name, medal_level, guard_level, text, superchat_price, gift_name, gift_price, gift_num, is_synthetic)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`)
	if err != nil {
		return fmt.Errorf("prepare insert comments: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			slog.Warn("failed to close prepared statement", slog.Any("err", err))
		}
	}()
	for i := range recs {
		r := &recs[i]
		if _, err := stmt.ExecContext(ctx, r.ClipID, r.Time, r.Username, r.UserID,
			nullStr(r.MedalName), nullInt(r.MedalLevel), nullInt(r.GuardLevel), nullStr(r.Text),
			nullDec(r.SuperchatPrice), nullStr(r.GiftName), nullDec(r.GiftPrice), nullInt(r.GiftNum),
			r.Synthetic); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
	}
	return nil
}

// recordExists performs the full field-equality lookup the duplicate-segment
// check relies on.
func recordExists(ctx context.Context, dbc *sql.DB, r *Record) (bool, error) {
	var n int
	err := dbc.QueryRowContext(ctx, `SELECT COUNT(1) FROM comments
		WHERE clip_id=$1 AND ts=$2 AND username=$3 AND user_id=$4
		AND medal_name IS NOT DISTINCT FROM $5 AND medal_level IS NOT DISTINCT FROM $6
		AND guard_level IS NOT DISTINCT FROM $7 AND text IS NOT DISTINCT FROM $8
		AND superchat_price IS NOT DISTINCT FROM $9 AND gift_name IS NOT DISTINCT FROM $10
		AND gift_price IS NOT DISTINCT FROM $11 AND gift_num IS NOT DISTINCT FROM $12
		AND is_synthetic=$13`,
		r.ClipID, r.Time, r.Username, r.UserID,
		nullStr(r.MedalName), nullInt(r.MedalLevel), nullInt(r.GuardLevel), nullStr(r.Text),
		nullDec(r.SuperchatPrice), nullStr(r.GiftName), nullDec(r.GiftPrice), nullInt(r.GiftNum),
		r.Synthetic).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup record: %w", err)
	}
	return n > 0, nil
}

// ListRecords returns every stored record of a clip in time order, including
// synthetic ones.
func ListRecords(ctx context.Context, dbc *sql.DB, clipID string) ([]Record, error) {
	rows, err := dbc.QueryContext(ctx, `SELECT clip_id, ts, username, user_id,
		medal_name, medal_level, guard_level, text, superchat_price, gift_name, gift_price, gift_num, is_synthetic
		FROM comments WHERE clip_id=$1 ORDER BY ts ASC`, clipID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var medalName, giftName, text sql.NullString
		var medalLevel, guardLevel, giftNum sql.NullInt64
		var scPrice, giftPrice decimal.NullDecimal
		if err := rows.Scan(&r.ClipID, &r.Time, &r.Username, &r.UserID,
			&medalName, &medalLevel, &guardLevel, &text, &scPrice, &giftName, &giftPrice, &giftNum,
			&r.Synthetic); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.MedalName = strPtr(medalName)
		r.MedalLevel = intPtr(medalLevel)
		r.GuardLevel = intPtr(guardLevel)
		r.Text = strPtr(text)
		r.SuperchatPrice = decPtr(scPrice)
		r.GiftName = strPtr(giftName)
		r.GiftPrice = decPtr(giftPrice)
		r.GiftNum = intPtr(giftNum)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullDec(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *p, Valid: true}
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func decPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
