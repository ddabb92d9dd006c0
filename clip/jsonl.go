package clip

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// Strategy (a): the recorder's line-delimited event stream. Each line is an
// independent JSON object tagged with a protocol command; lines are
// dispatched on the tag and anything unknown is ignored. A line that is not
// well-formed JSON is a hard failure for the whole capture.

const (
	cmdWatchedChange = "WATCHED_CHANGE"
	cmdDanmu         = "DANMU_MSG"
	cmdGift          = "SEND_GIFT"
	cmdSuperchat     = "SUPER_CHAT_MESSAGE"
	cmdGuardBuy      = "GUARD_BUY"
)

type medalInfo struct {
	MedalName  string `json:"medal_name"`
	MedalLevel int    `json:"medal_level"`
	GuardLevel int    `json:"guard_level"`
}

// ParseEventLog normalizes a line-delimited capture into a Summary.
// Revenue totals are left untruncated here; the merger applies the rounding
// discipline when the segment crosses into the stored aggregate.
func ParseEventLog(r io.Reader, clipID string) (*Summary, error) {
	sum := &Summary{
		ClipID:           clipID,
		GiftRevenue:      decimal.Zero,
		SuperchatRevenue: decimal.Zero,
		TotalRevenue:     decimal.Zero,
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var env struct {
			Cmd string `json:"cmd"`
		}
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedCapture, lineNo, err)
		}
		var err error
		switch env.Cmd {
		case cmdWatchedChange:
			err = sum.parseWatched(line)
		case cmdDanmu:
			err = sum.parseDanmu(line)
		case cmdGift:
			err = sum.parseGift(line)
		case cmdSuperchat:
			err = sum.parseSuperchat(line)
		case cmdGuardBuy:
			err = sum.parseGuardBuy(line)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedCapture, lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return sum, nil
}

func (s *Summary) parseWatched(line string) error {
	var ev struct {
		Data struct {
			Num int `json:"num"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return err
	}
	// Running watcher total, last write wins.
	s.Viewers = ev.Data.Num
	return nil
}

// parseDanmu extracts a plain chat message from the protocol's positional
// info array: timestamp (ms) at info[0][4], text at info[1], sender id and
// name at info[2], optional badge triple at info[3].
func (s *Summary) parseDanmu(line string) error {
	var ev struct {
		Info []json.RawMessage `json:"info"`
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return err
	}
	if len(ev.Info) < 4 {
		return fmt.Errorf("danmu info has %d fields", len(ev.Info))
	}
	var meta []any
	if err := json.Unmarshal(ev.Info[0], &meta); err != nil {
		return err
	}
	if len(meta) < 5 {
		return fmt.Errorf("danmu meta has %d fields", len(meta))
	}
	ts, ok := asInt64(meta[4])
	if !ok {
		return fmt.Errorf("danmu timestamp not numeric")
	}
	var text string
	if err := json.Unmarshal(ev.Info[1], &text); err != nil {
		return err
	}
	var sender []any
	if err := json.Unmarshal(ev.Info[2], &sender); err != nil {
		return err
	}
	if len(sender) < 2 {
		return fmt.Errorf("danmu sender has %d fields", len(sender))
	}
	uid, _ := asInt64(sender[0])
	name, _ := sender[1].(string)

	rec := Record{
		ClipID:   s.ClipID,
		Time:     FromMillis(ts),
		Username: name,
		UserID:   uid,
		Text:     &text,
	}
	var badge []any
	if err := json.Unmarshal(ev.Info[3], &badge); err == nil && len(badge) > 10 {
		if lvl, ok := asInt64(badge[0]); ok {
			l := int(lvl)
			rec.MedalLevel = &l
		}
		if mn, ok := badge[1].(string); ok {
			rec.MedalName = &mn
		}
		if gl, ok := asInt64(badge[10]); ok {
			g := int(gl)
			rec.GuardLevel = &g
		}
	}
	s.Records = append(s.Records, rec)
	s.PlainChats = append(s.PlainChats, ChatLine{Time: rec.Time, Text: text})
	s.CommentCount++
	return nil
}

func (s *Summary) parseGift(line string) error {
	var ev struct {
		Data struct {
			Timestamp int64      `json:"timestamp"`
			UID       int64      `json:"uid"`
			Uname     string     `json:"uname"`
			GiftName  string     `json:"giftName"`
			Num       int        `json:"num"`
			Price     int64      `json:"price"`
			TotalCoin int64      `json:"total_coin"`
			MedalInfo *medalInfo `json:"medal_info"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return err
	}
	d := ev.Data
	price := minorUnits(d.Price)
	num := d.Num
	name := d.GiftName
	rec := Record{
		ClipID:    s.ClipID,
		Time:      FromSeconds(d.Timestamp),
		Username:  d.Uname,
		UserID:    d.UID,
		GiftName:  &name,
		GiftPrice: &price,
		GiftNum:   &num,
	}
	applyMedal(&rec, d.MedalInfo)
	s.Records = append(s.Records, rec)
	// The reported actual income, not price*num: promotional combo
	// multipliers make the naive product overstate revenue.
	income := minorUnits(d.TotalCoin)
	s.GiftRevenue = s.GiftRevenue.Add(income)
	s.TotalRevenue = s.TotalRevenue.Add(income)
	return nil
}

func (s *Summary) parseSuperchat(line string) error {
	var ev struct {
		SendTime int64 `json:"send_time"`
		Data     struct {
			UID      int64  `json:"uid"`
			Price    int64  `json:"price"`
			Message  string `json:"message"`
			UserInfo struct {
				Uname string `json:"uname"`
			} `json:"user_info"`
			MedalInfo *medalInfo `json:"medal_info"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return err
	}
	d := ev.Data
	price := minorUnits(d.Price)
	text := d.Message
	rec := Record{
		ClipID:         s.ClipID,
		Time:           FromMillis(ev.SendTime),
		Username:       d.UserInfo.Uname,
		UserID:         d.UID,
		Text:           &text,
		SuperchatPrice: &price,
	}
	applyMedal(&rec, d.MedalInfo)
	s.Records = append(s.Records, rec)
	s.CommentCount++
	s.SuperchatRevenue = s.SuperchatRevenue.Add(price)
	s.TotalRevenue = s.TotalRevenue.Add(price)
	return nil
}

// parseGuardBuy records a membership purchase as a gift-type record; unlike
// gifts there is no separate income field, so revenue is unit price * count.
func (s *Summary) parseGuardBuy(line string) error {
	var ev struct {
		Data struct {
			StartTime int64  `json:"start_time"`
			UID       int64  `json:"uid"`
			Username  string `json:"username"`
			GiftName  string `json:"gift_name"`
			Num       int    `json:"num"`
			Price     int64  `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return err
	}
	d := ev.Data
	price := minorUnits(d.Price)
	num := d.Num
	name := d.GiftName
	rec := Record{
		ClipID:    s.ClipID,
		Time:      FromSeconds(d.StartTime),
		Username:  d.Username,
		UserID:    d.UID,
		GiftName:  &name,
		GiftPrice: &price,
		GiftNum:   &num,
	}
	s.Records = append(s.Records, rec)
	income := price.Mul(decimal.NewFromInt(int64(num)))
	s.GiftRevenue = s.GiftRevenue.Add(income)
	s.TotalRevenue = s.TotalRevenue.Add(income)
	return nil
}

func applyMedal(rec *Record, m *medalInfo) {
	if m == nil {
		return
	}
	if m.MedalName != "" {
		name := m.MedalName
		lvl := m.MedalLevel
		rec.MedalName = &name
		rec.MedalLevel = &lvl
	}
	guard := m.GuardLevel
	rec.GuardLevel = &guard
}

// asInt64 coerces a decoded JSON value to int64.
func asInt64(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
