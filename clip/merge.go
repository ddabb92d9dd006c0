package clip

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayase-lab/matsuri-archive/telemetry"
)

// Merger reconciles normalized segments with the stored session aggregate.
// All read-modify-write cycles for one clip id are serialized through a
// keyed lock; different clips merge in parallel.
type Merger struct {
	DB        *sql.DB
	Extractor Extractor
	Places    int32

	locks *clipLocks
}

// NewMerger returns a Merger using the given highlight configuration and
// revenue precision.
func NewMerger(dbc *sql.DB, ext Extractor, places int32) *Merger {
	return &Merger{DB: dbc, Extractor: ext, Places: places, locks: newClipLocks()}
}

// MergeResult reports what a segment merge did.
type MergeResult struct {
	Clip      *Clip
	Inserted  int
	Duplicate bool
	Empty     bool
}

// MergeSegment folds one normalized segment into the stored aggregate for
// its clip id, creating the aggregate on first contact. Record insertion and
// the aggregate update commit in a single transaction; a failing segment
// never leaves a partially-updated aggregate behind.
func (m *Merger) MergeSegment(ctx context.Context, sum *Summary, hdr *Header, endTime time.Time) (*MergeResult, error) {
	defer telemetry.ObserveSince(telemetry.MergeDuration, time.Now())
	logger := slog.Default().With(slog.String("component", "clip_merge"), slog.String("clip_id", sum.ClipID))

	for i := range sum.Records {
		if err := sum.Records[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	release := m.locks.acquire(sum.ClipID)
	defer release()

	// An empty segment is not an error; the caller still refreshes
	// live-status side effects.
	last := sum.Last()
	if last == nil {
		logger.Info("segment produced no records; skipping merge")
		existing, err := getClip(ctx, m.DB, sum.ClipID)
		if err != nil {
			return nil, err
		}
		return &MergeResult{Clip: existing, Empty: true}, nil
	}

	dup, err := recordExists(ctx, m.DB, last)
	if err != nil {
		return nil, err
	}
	if dup {
		logger.Info("segment already ingested; skipping", slog.Int("records", len(sum.Records)))
		existing, err := getClip(ctx, m.DB, sum.ClipID)
		if err != nil {
			return nil, err
		}
		return &MergeResult{Clip: existing, Duplicate: true}, nil
	}

	seg := sum.Aggregate(hdr, endTime, m.Extractor, m.Places)
	existing, err := getClip(ctx, m.DB, sum.ClipID)
	if err != nil {
		return nil, err
	}
	next := seg
	if existing != nil {
		next = combine(existing, seg, m.Places)
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge tx: %w", err)
	}
	if err := upsertClip(ctx, tx, next); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := insertRecords(ctx, tx, sum.Records); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge tx: %w", err)
	}
	if existing == nil {
		logger.Info("clip created", slog.Int("records", len(sum.Records)), slog.Int("comments", next.CommentCount))
	} else {
		logger.Info("segment merged", slog.Int("records", len(sum.Records)), slog.Int("comments", next.CommentCount))
	}
	return &MergeResult{Clip: next, Inserted: len(sum.Records)}, nil
}

// combine folds a fresh segment aggregate into the stored one. The time
// bracket widens to the extremes, counts and revenues are summed with the
// fixed truncation applied at the boundary, density is recomputed from the
// combined totals, and highlight windows are concatenated per segment
// (windows stay anchored to each segment's own first comment; the manual
// refresh path realigns globally because it re-reads every record).
func combine(existing, seg *Clip, places int32) *Clip {
	out := *existing
	// Latest header wins for descriptive metadata.
	out.StreamerName = seg.StreamerName
	out.Title = seg.Title

	if seg.StartTime.Before(out.StartTime) {
		out.StartTime = seg.StartTime
	}
	if seg.EndTime.After(out.EndTime) {
		out.EndTime = seg.EndTime
	}
	out.CommentCount = existing.CommentCount + seg.CommentCount
	out.GiftRevenue = TruncateTo(existing.GiftRevenue.Add(seg.GiftRevenue), places)
	out.SuperchatRevenue = TruncateTo(existing.SuperchatRevenue.Add(seg.SuperchatRevenue), places)
	out.TotalRevenue = TruncateTo(out.GiftRevenue.Add(out.SuperchatRevenue), places)
	out.CommentDensity = density(out.CommentCount, out.StartTime, out.EndTime)
	if seg.PeakViewers > out.PeakViewers {
		out.PeakViewers = seg.PeakViewers
	}
	out.Highlights = append(append([]HighlightWindow{}, existing.Highlights...), seg.Highlights...)
	return &out
}

// Refresh recomputes a clip's aggregate from scratch out of its stored
// records, discarding the incremental sums. It exists to repair drift after
// partial failures and realigns the highlight timeline globally.
func (m *Merger) Refresh(ctx context.Context, clipID string) (*Clip, error) {
	release := m.locks.acquire(clipID)
	defer release()

	existing, err := getClip(ctx, m.DB, clipID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("refresh %s: %w", clipID, ErrClipNotFound)
	}
	recs, err := ListRecords(ctx, m.DB, clipID)
	if err != nil {
		return nil, err
	}

	next := *existing
	next.CommentCount = 0
	next.GiftRevenue = decimal.Zero
	next.SuperchatRevenue = decimal.Zero
	var chats []ChatLine
	for i := range recs {
		r := &recs[i]
		if r.Synthetic {
			continue
		}
		switch {
		case r.GiftName != nil:
			if r.GiftPrice != nil && r.GiftNum != nil {
				next.GiftRevenue = next.GiftRevenue.Add(r.GiftPrice.Mul(decimal.NewFromInt(int64(*r.GiftNum))))
			}
		case r.SuperchatPrice != nil:
			next.CommentCount++
			next.SuperchatRevenue = next.SuperchatRevenue.Add(*r.SuperchatPrice)
		default:
			next.CommentCount++
			if r.Text != nil {
				chats = append(chats, ChatLine{Time: r.Time, Text: *r.Text})
			}
		}
	}
	next.GiftRevenue = TruncateTo(next.GiftRevenue, m.Places)
	next.SuperchatRevenue = TruncateTo(next.SuperchatRevenue, m.Places)
	next.TotalRevenue = TruncateTo(next.GiftRevenue.Add(next.SuperchatRevenue), m.Places)
	next.CommentDensity = density(next.CommentCount, next.StartTime, next.EndTime)
	next.Highlights = m.Extractor.Timeline(chats)

	if err := upsertClip(ctx, m.DB, &next); err != nil {
		return nil, err
	}
	slog.Info("clip refreshed", slog.String("component", "clip_merge"), slog.String("clip_id", clipID),
		slog.Int("records", len(recs)), slog.Int("comments", next.CommentCount))
	return &next, nil
}

// Delete removes a clip and all of its records.
func (m *Merger) Delete(ctx context.Context, clipID string) error {
	release := m.locks.acquire(clipID)
	defer release()

	existing, err := getClip(ctx, m.DB, clipID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("delete %s: %w", clipID, ErrClipNotFound)
	}
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE clip_id=$1`, clipID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE clip_id=$1`, clipID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete clip: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	slog.Info("clip deleted", slog.String("component", "clip_merge"), slog.String("clip_id", clipID))
	return nil
}

// GetClip loads a stored aggregate; nil without error when absent.
func GetClip(ctx context.Context, dbc *sql.DB, id string) (*Clip, error) {
	return getClip(ctx, dbc, id)
}
