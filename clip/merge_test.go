package clip_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ayase-lab/matsuri-archive/clip"
	"github.com/ayase-lab/matsuri-archive/testutil"
)

func testHeader(start time.Time) *clip.Header {
	return &clip.Header{
		RoomID:       21919321,
		StreamerName: "絆愛",
		Title:        "雑談枠",
		RecordStart:  start,
		LiveStart:    start,
	}
}

func parseSegment(t *testing.T, clipID, jsonl string) *clip.Summary {
	t.Helper()
	sum, err := clip.ParseEventLog(strings.NewReader(jsonl), clipID)
	if err != nil {
		t.Fatalf("parse segment: %v", err)
	}
	return sum
}

func TestMergeSegmentLifecycle(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	merger := clip.NewMerger(database, clip.DefaultExtractor(), 1)

	start := time.Date(2025, 4, 2, 4, 0, 0, 0, time.UTC)
	hdr := testHeader(start)
	clipID := clip.ID(hdr.RoomID, hdr.LiveStart)

	seg1 := strings.Join([]string{
		`{"cmd":"WATCHED_CHANGE","data":{"num":100}}`,
		`{"cmd":"DANMU_MSG","info":[[0,1,25,16777215,1743566401000],"草",[1,"alpha"],[]]}`,
		`{"cmd":"SEND_GIFT","data":{"timestamp":1743566410,"uid":2,"uname":"beta","giftName":"辣条","num":1,"price":100,"total_coin":100}}`,
	}, "\n")

	res, err := merger.MergeSegment(ctx, parseSegment(t, clipID, seg1), hdr, start.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if res.Duplicate || res.Empty || res.Inserted != 2 {
		t.Fatalf("unexpected first merge result: %+v", res)
	}
	if res.Clip.CommentCount != 1 || res.Clip.PeakViewers != 100 {
		t.Errorf("first aggregate: %+v", res.Clip)
	}
	if !res.Clip.GiftRevenue.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("gift revenue = %s", res.Clip.GiftRevenue)
	}

	// Replaying the same segment must be a no-op.
	res, err = merger.MergeSegment(ctx, parseSegment(t, clipID, seg1), hdr, start.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("duplicate merge: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("expected duplicate detection, got %+v", res)
	}
	if res.Clip.CommentCount != 1 {
		t.Errorf("duplicate merge changed the aggregate: %+v", res.Clip)
	}

	// A later segment of the same broadcast folds in.
	seg2 := strings.Join([]string{
		`{"cmd":"WATCHED_CHANGE","data":{"num":250}}`,
		`{"cmd":"DANMU_MSG","info":[[0,1,25,16777215,1743570001000],"哈哈",[3,"gamma"],[]]}`,
		`{"cmd":"SUPER_CHAT_MESSAGE","send_time":1743570002000,"data":{"uid":4,"price":30000,"message":"nice","user_info":{"uname":"delta"}}}`,
	}, "\n")
	res, err = merger.MergeSegment(ctx, parseSegment(t, clipID, seg2), hdr, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if res.Clip.CommentCount != 3 {
		t.Errorf("combined comment count = %d", res.Clip.CommentCount)
	}
	if !res.Clip.SuperchatRevenue.Equal(decimal.RequireFromString("30")) {
		t.Errorf("combined superchat revenue = %s", res.Clip.SuperchatRevenue)
	}
	if !res.Clip.TotalRevenue.Equal(decimal.RequireFromString("30.1")) {
		t.Errorf("combined total revenue = %s", res.Clip.TotalRevenue)
	}
	if res.Clip.PeakViewers != 250 {
		t.Errorf("combined peak viewers = %d", res.Clip.PeakViewers)
	}
	if !res.Clip.EndTime.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("combined end time = %v", res.Clip.EndTime)
	}

	stored, err := clip.GetClip(ctx, database, clipID)
	if err != nil {
		t.Fatalf("get clip: %v", err)
	}
	if stored == nil || stored.CommentCount != 3 {
		t.Fatalf("stored aggregate = %+v", stored)
	}

	recs, err := clip.ListRecords(ctx, database, clipID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("stored records = %d, want 4", len(recs))
	}
}

func TestMergeSegmentEmpty(t *testing.T) {
	database := testutil.SetupTestDB(t)
	merger := clip.NewMerger(database, clip.DefaultExtractor(), 1)
	start := time.Date(2025, 4, 2, 4, 0, 0, 0, time.UTC)
	hdr := testHeader(start)
	clipID := clip.ID(hdr.RoomID, hdr.LiveStart)

	sum := parseSegment(t, clipID, `{"cmd":"WATCHED_CHANGE","data":{"num":5}}`)
	res, err := merger.MergeSegment(context.Background(), sum, hdr, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !res.Empty || res.Clip != nil {
		t.Errorf("expected empty result without a stored clip, got %+v", res)
	}
}

func TestMergeRefreshRealigns(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	merger := clip.NewMerger(database, clip.DefaultExtractor(), 1)
	start := time.Date(2025, 4, 2, 4, 0, 0, 0, time.UTC)
	hdr := testHeader(start)
	clipID := clip.ID(hdr.RoomID, hdr.LiveStart)

	seg := strings.Join([]string{
		`{"cmd":"DANMU_MSG","info":[[0,1,25,16777215,1743566401000],"草",[1,"alpha"],[]]}`,
		`{"cmd":"SEND_GIFT","data":{"timestamp":1743566410,"uid":2,"uname":"beta","giftName":"辣条","num":2,"price":100,"total_coin":150}}`,
		`{"cmd":"SUPER_CHAT_MESSAGE","send_time":1743566420000,"data":{"uid":4,"price":30000,"message":"nice","user_info":{"uname":"delta"}}}`,
	}, "\n")
	if _, err := merger.MergeSegment(ctx, parseSegment(t, clipID, seg), hdr, start.Add(time.Hour)); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Synthetic records must be invisible to the recompute.
	text := "主播: 【字幕】"
	if err := clip.AddSynthetic(ctx, database, []clip.Record{{
		ClipID: clipID, Time: start, Username: "subtitle", Text: &text, Synthetic: true,
	}}); err != nil {
		t.Fatalf("add synthetic: %v", err)
	}

	got, err := merger.Refresh(ctx, clipID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got.CommentCount != 2 {
		t.Errorf("refreshed comment count = %d, want chat+superchat only", got.CommentCount)
	}
	// The stored records carry no total_coin, so the recompute falls back to
	// unit price * count: 0.1 * 2 = 0.2.
	if !got.GiftRevenue.Equal(decimal.RequireFromString("0.2")) {
		t.Errorf("refreshed gift revenue = %s", got.GiftRevenue)
	}
	if !got.SuperchatRevenue.Equal(decimal.RequireFromString("30")) {
		t.Errorf("refreshed superchat revenue = %s", got.SuperchatRevenue)
	}
	if !got.TotalRevenue.Equal(decimal.RequireFromString("30.2")) {
		t.Errorf("refreshed total revenue = %s", got.TotalRevenue)
	}

	has, err := clip.HasSynthetic(ctx, database, clipID)
	if err != nil {
		t.Fatalf("has synthetic: %v", err)
	}
	if !has {
		t.Errorf("expected synthetic marker after import")
	}
}

func TestMergeDelete(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	merger := clip.NewMerger(database, clip.DefaultExtractor(), 1)
	start := time.Date(2025, 4, 2, 4, 0, 0, 0, time.UTC)
	hdr := testHeader(start)
	clipID := clip.ID(hdr.RoomID, hdr.LiveStart)

	seg := `{"cmd":"DANMU_MSG","info":[[0,1,25,16777215,1743566401000],"草",[1,"alpha"],[]]}`
	if _, err := merger.MergeSegment(ctx, parseSegment(t, clipID, seg), hdr, start.Add(time.Minute)); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := merger.Delete(ctx, clipID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	stored, err := clip.GetClip(ctx, database, clipID)
	if err != nil {
		t.Fatalf("get clip: %v", err)
	}
	if stored != nil {
		t.Errorf("clip still present after delete")
	}
	recs, err := clip.ListRecords(ctx, database, clipID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records still present after delete")
	}
}
