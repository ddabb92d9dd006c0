package clip

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayase-lab/matsuri-archive/blrecapi"
	"github.com/ayase-lab/matsuri-archive/telemetry"
)

// CaptureNotice describes a finished capture segment reported by the
// recorder. Path points at the raw jsonl event log; the danmaku XML export
// is expected as a sibling file with the same stem.
type CaptureNotice struct {
	RoomID  int64
	Path    string
	EndedAt time.Time
}

// Pipeline ties the capture parsers, the merger and the recorder client
// together into the path a webhook notification travels.
type Pipeline struct {
	DB       *sql.DB
	Merger   *Merger
	Recorder *blrecapi.Client
}

func NewPipeline(dbc *sql.DB, m *Merger, rec *blrecapi.Client) *Pipeline {
	return &Pipeline{DB: dbc, Merger: m, Recorder: rec}
}

// ProcessCapture ingests one finished segment end to end: parse the header,
// normalize events (raw jsonl when present, XML export otherwise), merge the
// segment into its clip and refresh the owning channel. The channel refresh
// is best effort; a recorder API outage never loses comment data.
func (p *Pipeline) ProcessCapture(ctx context.Context, n CaptureNotice) (*MergeResult, error) {
	defer telemetry.ObserveSince(telemetry.ProcessDuration, time.Now())

	xmlPath := strings.TrimSuffix(n.Path, filepath.Ext(n.Path)) + ".xml"

	hf, err := os.Open(xmlPath)
	if err != nil {
		telemetry.ParseFailures.Inc()
		return nil, fmt.Errorf("open header %s: %w", xmlPath, err)
	}
	hdr, err := ParseHeader(hf)
	hf.Close()
	if err != nil {
		telemetry.ParseFailures.Inc()
		return nil, fmt.Errorf("parse header %s: %w", xmlPath, err)
	}
	clipID := ID(hdr.RoomID, hdr.LiveStart)

	sum, err := p.parseSegment(n.Path, xmlPath, hdr, clipID)
	if err != nil {
		telemetry.ParseFailures.Inc()
		return nil, err
	}

	endTime := hdr.RecordStart
	if !n.EndedAt.IsZero() {
		endTime = n.EndedAt
	} else if last := sum.Last(); last != nil {
		endTime = last.Time
	}

	res, err := p.Merger.MergeSegment(ctx, sum, hdr, endTime)
	if err != nil {
		return nil, err
	}
	switch {
	case res.Empty:
		telemetry.SegmentsEmpty.Inc()
	case res.Duplicate:
		telemetry.SegmentsDuplicate.Inc()
	default:
		telemetry.SegmentsProcessed.Inc()
		telemetry.CommentsIngested.Add(float64(len(sum.Records)))
	}
	slog.Info("capture processed", slog.String("component", "ingest"),
		slog.String("clip_id", clipID), slog.Int64("room_id", hdr.RoomID),
		slog.Int("records", len(sum.Records)),
		slog.Bool("duplicate", res.Duplicate), slog.Bool("empty", res.Empty))

	if p.Recorder != nil {
		if err := p.refreshOwner(ctx, hdr.RoomID, clipID); err != nil {
			slog.Warn("channel refresh failed", slog.String("component", "ingest"),
				slog.Int64("room_id", hdr.RoomID), slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// parseSegment picks the normalization strategy. The raw jsonl log is
// preferred because it carries income totals and viewer counts; the XML
// export only exists as a fallback for captures recorded without raw mode.
func (p *Pipeline) parseSegment(rawPath, xmlPath string, hdr *Header, clipID string) (*Summary, error) {
	if rf, err := os.Open(rawPath); err == nil {
		defer rf.Close()
		sum, err := ParseEventLog(rf, clipID)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", rawPath, err)
		}
		return sum, nil
	}
	xf, err := os.Open(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", xmlPath, err)
	}
	defer xf.Close()
	sum, err := ParseExport(xf, hdr, clipID, p.Merger.Places)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", xmlPath, err)
	}
	return sum, nil
}

func (p *Pipeline) refreshOwner(ctx context.Context, roomID int64, clipID string) error {
	data, err := p.Recorder.GetRoomData(ctx, roomID)
	if err != nil {
		return err
	}
	if err := setClipOwner(ctx, p.DB, clipID, data.UserInfo.UID, data.RoomInfo.Cover); err != nil {
		return err
	}
	return RefreshChannel(ctx, p.DB, data, data.IsLive())
}

// MarkLive flips the channel's live flag when the recorder reports a stream
// beginning or ending, creating the channel row on first sight.
func (p *Pipeline) MarkLive(ctx context.Context, roomID int64, live bool) error {
	if p.Recorder == nil {
		return nil
	}
	data, err := p.Recorder.GetRoomData(ctx, roomID)
	if err != nil {
		return err
	}
	return RefreshChannel(ctx, p.DB, data, live)
}
