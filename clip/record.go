// Package clip implements the event-log normalization and session-aggregation
// engine: parsing raw recorder captures into typed comment/transaction records,
// merging recording segments into per-session aggregates, and deriving the
// keyword highlight timeline used by the frontend energy graph.
package clip

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one normalized chat message, gift, superchat, or guard purchase.
// Exactly one payload shape is populated: plain chat (Text only), gift
// (GiftName/GiftPrice/GiftNum), or superchat (SuperchatPrice + Text).
type Record struct {
	ClipID         string
	Time           time.Time
	Username       string
	UserID         int64
	MedalName      *string
	MedalLevel     *int
	GuardLevel     *int
	Text           *string
	SuperchatPrice *decimal.Decimal
	GiftName       *string
	GiftPrice      *decimal.Decimal
	GiftNum        *int
	Synthetic      bool
}

// Validate rejects records whose payload shape is ambiguous.
func (r *Record) Validate() error {
	if r.SuperchatPrice != nil && r.GiftName != nil {
		return ErrInvalidRecord
	}
	return nil
}

// ChatLine is the minimal view of a plain chat message kept aside for
// highlight extraction (gifts and superchats are excluded).
type ChatLine struct {
	Time time.Time
	Text string
}

// Summary is the normalizer output for one capture segment, regardless of
// which parsing strategy produced it.
type Summary struct {
	ClipID           string
	Records          []Record
	PlainChats       []ChatLine
	CommentCount     int
	GiftRevenue      decimal.Decimal
	SuperchatRevenue decimal.Decimal
	TotalRevenue     decimal.Decimal
	Viewers          int
}

// Last returns the last record produced by the normalizer, used by the
// merger for duplicate-segment detection. Nil for an empty segment.
func (s *Summary) Last() *Record {
	if len(s.Records) == 0 {
		return nil
	}
	return &s.Records[len(s.Records)-1]
}

// Header carries the session metadata extracted from the capture's companion
// header document.
type Header struct {
	RoomID       int64
	StreamerName string
	Title        string
	RecordStart  time.Time
	LiveStart    time.Time
}

// Clip is the session aggregate, addressed by the deterministic clip id.
type Clip struct {
	ID               string
	RoomID           int64
	UID              int64
	StreamerName     string
	Title            string
	Cover            string
	StartTime        time.Time
	EndTime          time.Time
	CommentCount     int
	GiftRevenue      decimal.Decimal
	SuperchatRevenue decimal.Decimal
	TotalRevenue     decimal.Decimal
	CommentDensity   float64
	PeakViewers      int
	Highlights       []HighlightWindow
}

// Aggregate builds a fresh Clip from this segment alone, ready to be stored
// as-is for a first segment or combined with a stored aggregate otherwise.
// Revenues are truncated to the configured precision here so that both
// parsing strategies converge before any merge arithmetic.
func (s *Summary) Aggregate(hdr *Header, endTime time.Time, ext Extractor, places int32) *Clip {
	c := &Clip{
		ID:               s.ClipID,
		RoomID:           hdr.RoomID,
		StreamerName:     hdr.StreamerName,
		Title:            hdr.Title,
		StartTime:        hdr.LiveStart,
		EndTime:          endTime,
		CommentCount:     s.CommentCount,
		GiftRevenue:      TruncateTo(s.GiftRevenue, places),
		SuperchatRevenue: TruncateTo(s.SuperchatRevenue, places),
		PeakViewers:      s.Viewers,
		Highlights:       ext.Timeline(s.PlainChats),
	}
	c.TotalRevenue = TruncateTo(c.GiftRevenue.Add(c.SuperchatRevenue), places)
	c.CommentDensity = density(c.CommentCount, c.StartTime, c.EndTime)
	return c
}

// density computes comments per minute over the bracket; zero when the
// bracket is degenerate.
func density(count int, start, end time.Time) float64 {
	minutes := end.Sub(start).Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(count) / minutes
}
