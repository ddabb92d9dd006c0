package clip

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const danmuLine = `{"cmd":"DANMU_MSG","info":[[0,1,25,16777215,1743566424000,0,0,"",0,0,0],"草草草",[123456,"ayase_fan",0,0,0,10000,1,""],[21,"粉丝团",987654,"streamer",0,"",0,6,null,null,0,0,0,"#FFFFFF",0,0,{"type":0},0,0,1],[0,0],null,0,0,null,null,0,105]}`

func TestParseEventLogDanmu(t *testing.T) {
	sum, err := ParseEventLog(strings.NewReader(danmuLine), "clip-1")
	if err != nil {
		t.Fatalf("ParseEventLog returned error: %v", err)
	}
	if len(sum.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sum.Records))
	}
	rec := sum.Records[0]
	if rec.Time.UnixMilli() != 1743566424000 {
		t.Errorf("expected timestamp from meta[4], got %d", rec.Time.UnixMilli())
	}
	if rec.Text == nil || *rec.Text != "草草草" {
		t.Errorf("unexpected text: %v", rec.Text)
	}
	if rec.UserID != 123456 || rec.Username != "ayase_fan" {
		t.Errorf("unexpected sender: %d %q", rec.UserID, rec.Username)
	}
	if rec.MedalLevel == nil || *rec.MedalLevel != 21 {
		t.Errorf("expected medal level 21, got %v", rec.MedalLevel)
	}
	if rec.MedalName == nil || *rec.MedalName != "粉丝团" {
		t.Errorf("expected medal name, got %v", rec.MedalName)
	}
	if rec.GuardLevel == nil || *rec.GuardLevel != 0 {
		t.Errorf("expected guard level 0, got %v", rec.GuardLevel)
	}
	if sum.CommentCount != 1 {
		t.Errorf("expected comment count 1, got %d", sum.CommentCount)
	}
	if len(sum.PlainChats) != 1 {
		t.Errorf("expected chat line kept for highlights, got %d", len(sum.PlainChats))
	}
}

func TestParseEventLogDanmuShortBadge(t *testing.T) {
	// A badge array too short for the guard-level slot is ignored entirely.
	line := `{"cmd":"DANMU_MSG","info":[[0,1,25,16777215,1743566424000],"hi",[1,"viewer"],[21,"badge"]]}`
	sum, err := ParseEventLog(strings.NewReader(line), "clip-1")
	if err != nil {
		t.Fatalf("ParseEventLog returned error: %v", err)
	}
	rec := sum.Records[0]
	if rec.MedalLevel != nil || rec.MedalName != nil || rec.GuardLevel != nil {
		t.Errorf("expected no badge fields from short badge array, got %v %v %v",
			rec.MedalLevel, rec.MedalName, rec.GuardLevel)
	}
}

func TestParseEventLogGiftRevenue(t *testing.T) {
	// total_coin is the reported income; combo promotions make price*num too big.
	line := `{"cmd":"SEND_GIFT","data":{"timestamp":1743566430,"uid":42,"uname":"giver","giftName":"辣条","num":10,"price":100,"total_coin":500,"medal_info":{"medal_name":"团","medal_level":5,"guard_level":3}}}`
	sum, err := ParseEventLog(strings.NewReader(line), "clip-1")
	if err != nil {
		t.Fatalf("ParseEventLog returned error: %v", err)
	}
	want := decimal.RequireFromString("0.5")
	if !sum.GiftRevenue.Equal(want) {
		t.Errorf("gift revenue = %s, want %s", sum.GiftRevenue, want)
	}
	if !sum.TotalRevenue.Equal(want) {
		t.Errorf("total revenue = %s, want %s", sum.TotalRevenue, want)
	}
	if sum.CommentCount != 0 {
		t.Errorf("gifts must not count as comments, got %d", sum.CommentCount)
	}
	rec := sum.Records[0]
	if rec.GiftName == nil || *rec.GiftName != "辣条" {
		t.Errorf("unexpected gift name: %v", rec.GiftName)
	}
	if rec.GiftPrice == nil || !rec.GiftPrice.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("unexpected gift unit price: %v", rec.GiftPrice)
	}
	if rec.GiftNum == nil || *rec.GiftNum != 10 {
		t.Errorf("unexpected gift num: %v", rec.GiftNum)
	}
	if rec.MedalName == nil || *rec.MedalName != "团" || rec.GuardLevel == nil || *rec.GuardLevel != 3 {
		t.Errorf("medal info not applied: %v %v", rec.MedalName, rec.GuardLevel)
	}
	if rec.Time.Unix() != 1743566430 {
		t.Errorf("gift timestamp should be epoch seconds, got %d", rec.Time.Unix())
	}
}

func TestParseEventLogSuperchat(t *testing.T) {
	line := `{"cmd":"SUPER_CHAT_MESSAGE","send_time":1743566440123,"data":{"uid":7,"price":30000,"message":"応援してます","user_info":{"uname":"patron"}}}`
	sum, err := ParseEventLog(strings.NewReader(line), "clip-1")
	if err != nil {
		t.Fatalf("ParseEventLog returned error: %v", err)
	}
	if sum.CommentCount != 1 {
		t.Errorf("superchats count as comments, got %d", sum.CommentCount)
	}
	want := decimal.RequireFromString("30")
	if !sum.SuperchatRevenue.Equal(want) {
		t.Errorf("superchat revenue = %s, want %s", sum.SuperchatRevenue, want)
	}
	rec := sum.Records[0]
	if rec.SuperchatPrice == nil || !rec.SuperchatPrice.Equal(want) {
		t.Errorf("unexpected superchat price: %v", rec.SuperchatPrice)
	}
	if rec.Time.UnixMilli() != 1743566440123 {
		t.Errorf("superchat send_time should be epoch millis, got %d", rec.Time.UnixMilli())
	}
	if len(sum.PlainChats) != 0 {
		t.Errorf("superchats must not feed the highlight timeline")
	}
}

func TestParseEventLogGuardBuy(t *testing.T) {
	line := `{"cmd":"GUARD_BUY","data":{"start_time":1743566450,"uid":9,"username":"captain","gift_name":"舰长","num":2,"price":198000}}`
	sum, err := ParseEventLog(strings.NewReader(line), "clip-1")
	if err != nil {
		t.Fatalf("ParseEventLog returned error: %v", err)
	}
	// 198.000 * 2, no separate income field on this command.
	want := decimal.RequireFromString("396")
	if !sum.GiftRevenue.Equal(want) {
		t.Errorf("guard revenue = %s, want %s", sum.GiftRevenue, want)
	}
	if sum.CommentCount != 0 {
		t.Errorf("guard purchases must not count as comments")
	}
}

func TestParseEventLogViewersLastWriteWins(t *testing.T) {
	lines := strings.Join([]string{
		`{"cmd":"WATCHED_CHANGE","data":{"num":120}}`,
		`{"cmd":"WATCHED_CHANGE","data":{"num":95}}`,
	}, "\n")
	sum, err := ParseEventLog(strings.NewReader(lines), "clip-1")
	if err != nil {
		t.Fatalf("ParseEventLog returned error: %v", err)
	}
	if sum.Viewers != 95 {
		t.Errorf("viewers = %d, want last write 95", sum.Viewers)
	}
}

func TestParseEventLogSkipsUnknownAndBlank(t *testing.T) {
	lines := strings.Join([]string{
		`{"cmd":"INTERACT_WORD","data":{}}`,
		``,
		`   `,
		danmuLine,
	}, "\n")
	sum, err := ParseEventLog(strings.NewReader(lines), "clip-1")
	if err != nil {
		t.Fatalf("ParseEventLog returned error: %v", err)
	}
	if len(sum.Records) != 1 {
		t.Errorf("expected only the chat record, got %d", len(sum.Records))
	}
}

func TestParseEventLogMalformedLine(t *testing.T) {
	lines := strings.Join([]string{
		`{"cmd":"WATCHED_CHANGE","data":{"num":10}}`,
		`{not json`,
	}, "\n")
	_, err := ParseEventLog(strings.NewReader(lines), "clip-1")
	if !errors.Is(err, ErrMalformedCapture) {
		t.Fatalf("expected ErrMalformedCapture, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should report the failing line: %v", err)
	}
}

func TestParseEventLogDanmuTooFewFields(t *testing.T) {
	line := `{"cmd":"DANMU_MSG","info":[[0],"text"]}`
	_, err := ParseEventLog(strings.NewReader(line), "clip-1")
	if !errors.Is(err, ErrMalformedCapture) {
		t.Fatalf("expected ErrMalformedCapture, got %v", err)
	}
}
