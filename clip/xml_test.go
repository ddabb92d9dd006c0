package clip

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const sampleHeader = `<?xml version="1.0" encoding="utf-8"?>
<i>
  <BililiveRecorderRecordInfo>
    <room_id>21919321</room_id>
    <user_name>絆愛</user_name>
    <room_title>雑談枠</room_title>
    <record_start_time>2025-04-02T12:00:24+08:00</record_start_time>
    <live_start_time>2025-04-02T12:00:00+08:00</live_start_time>
  </BililiveRecorderRecordInfo>
</i>`

func TestParseHeader(t *testing.T) {
	hdr, err := ParseHeader(strings.NewReader(sampleHeader))
	if err != nil {
		t.Fatalf("ParseHeader returned error: %v", err)
	}
	if hdr.RoomID != 21919321 {
		t.Errorf("room id = %d", hdr.RoomID)
	}
	if hdr.StreamerName != "絆愛" || hdr.Title != "雑談枠" {
		t.Errorf("unexpected metadata: %q %q", hdr.StreamerName, hdr.Title)
	}
	wantLive := time.Date(2025, 4, 2, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))
	if !hdr.LiveStart.Equal(wantLive) {
		t.Errorf("live start = %v, want %v", hdr.LiveStart, wantLive)
	}
	if !hdr.RecordStart.Equal(wantLive.Add(24 * time.Second)) {
		t.Errorf("record start = %v", hdr.RecordStart)
	}
}

func TestParseHeaderMissingField(t *testing.T) {
	broken := strings.ReplaceAll(sampleHeader, "room_id", "room")
	_, err := ParseHeader(strings.NewReader(broken))
	if !errors.Is(err, ErrHeaderUnparseable) {
		t.Fatalf("expected ErrHeaderUnparseable, got %v", err)
	}
}

func TestParseHeaderBadTime(t *testing.T) {
	broken := strings.ReplaceAll(sampleHeader, "2025-04-02T12:00:00+08:00", "yesterday")
	_, err := ParseHeader(strings.NewReader(broken))
	if !errors.Is(err, ErrHeaderUnparseable) {
		t.Fatalf("expected ErrHeaderUnparseable, got %v", err)
	}
}

func TestParseExport(t *testing.T) {
	hdr := &Header{
		RoomID:      21919321,
		RecordStart: time.Date(2025, 4, 2, 4, 0, 0, 0, time.UTC),
		LiveStart:   time.Date(2025, 4, 2, 4, 0, 0, 0, time.UTC),
	}
	doc := `<i>
  <d p="3.5,1,25,16777215,1743566403500,0,abc,0" uid="11" user="alpha">草ｗｗｗ</d>
  <gift ts="10.0" uid="22" user="beta" giftname="辣条" giftcount="3" price="100"/>
  <sc ts="20.25" uid="33" user="gamma" price="50000">がんばれ</sc>
  <guard ts="30.0" uid="44" user="delta" giftname="提督" count="1" price="1998000"/>
</i>`
	sum, err := ParseExport(strings.NewReader(doc), hdr, "clip-x", 1)
	if err != nil {
		t.Fatalf("ParseExport returned error: %v", err)
	}
	if len(sum.Records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(sum.Records))
	}
	chat := sum.Records[0]
	if !chat.Time.Equal(hdr.RecordStart.Add(3500 * time.Millisecond)) {
		t.Errorf("chat time not offset from record start: %v", chat.Time)
	}
	if chat.Text == nil || *chat.Text != "草ｗｗｗ" {
		t.Errorf("unexpected chat text: %v", chat.Text)
	}
	sc := sum.Records[2]
	if !sc.Time.Equal(hdr.RecordStart.Add(20250 * time.Millisecond)) {
		t.Errorf("superchat time = %v", sc.Time)
	}
	if sum.CommentCount != 2 {
		t.Errorf("comment count = %d, want chat+superchat", sum.CommentCount)
	}
	// 0.1*3 + 1998.0*1 = 1998.3 gift; 50.0 superchat; truncated to 1 place.
	if !sum.GiftRevenue.Equal(decimal.RequireFromString("1998.3")) {
		t.Errorf("gift revenue = %s", sum.GiftRevenue)
	}
	if !sum.SuperchatRevenue.Equal(decimal.RequireFromString("50")) {
		t.Errorf("superchat revenue = %s", sum.SuperchatRevenue)
	}
	if !sum.TotalRevenue.Equal(decimal.RequireFromString("2048.3")) {
		t.Errorf("total revenue = %s", sum.TotalRevenue)
	}
}

func TestParseExportTruncatesImmediately(t *testing.T) {
	hdr := &Header{RecordStart: time.Unix(0, 0)}
	// 0.155 * 1 gift; one decimal place keeps 0.1, never 0.2.
	doc := `<i><gift ts="1" uid="1" user="a" giftname="g" giftcount="1" price="155"/></i>`
	sum, err := ParseExport(strings.NewReader(doc), hdr, "clip-x", 1)
	if err != nil {
		t.Fatalf("ParseExport returned error: %v", err)
	}
	if !sum.GiftRevenue.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("gift revenue = %s, want truncation toward zero", sum.GiftRevenue)
	}
}

func TestParseExportMalformed(t *testing.T) {
	hdr := &Header{RecordStart: time.Unix(0, 0)}
	doc := `<i><d p="abc,1" uid="1" user="a">hi</d></i>`
	_, err := ParseExport(strings.NewReader(doc), hdr, "clip-x", 1)
	if !errors.Is(err, ErrMalformedCapture) {
		t.Fatalf("expected ErrMalformedCapture, got %v", err)
	}
}
