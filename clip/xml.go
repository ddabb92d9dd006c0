package clip

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy (b): a single exported tag document, produced post hoc when the
// live event feed was unavailable. It carries the same record kinds as the
// event stream but with timestamps relative to the recording start, and it
// doubles as the companion header document for both strategies.

// headerTags are the fields every capture's header must provide. The header
// is not guaranteed to be well-formed XML, so fields are extracted the same
// way the recorder ecosystem does: by tag-delimited text matching.
var headerTags = struct {
	roomID, userName, title, recordStart, liveStart *regexp.Regexp
}{
	roomID:      headerTag("room_id"),
	userName:    headerTag("user_name"),
	title:       headerTag("room_title"),
	recordStart: headerTag("record_start_time"),
	liveStart:   headerTag("live_start_time"),
}

func headerTag(name string) *regexp.Regexp {
	return regexp.MustCompile(`<` + name + `>(.*?)</` + name + `>`)
}

func headerField(re *regexp.Regexp, content string) (string, error) {
	m := re.FindStringSubmatch(content)
	if m == nil {
		return "", fmt.Errorf("%w: missing %s", ErrHeaderUnparseable, re.String())
	}
	return strings.TrimSpace(m[1]), nil
}

// ParseHeader extracts session metadata from the capture's companion header
// document. Any missing or malformed field fails the parse; session metadata
// is never guessed.
func ParseHeader(r io.Reader) (*Header, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	content := string(b)

	roomStr, err := headerField(headerTags.roomID, content)
	if err != nil {
		return nil, err
	}
	roomID, err := strconv.ParseInt(roomStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: room_id %q", ErrHeaderUnparseable, roomStr)
	}
	name, err := headerField(headerTags.userName, content)
	if err != nil {
		return nil, err
	}
	title, err := headerField(headerTags.title, content)
	if err != nil {
		return nil, err
	}
	recStr, err := headerField(headerTags.recordStart, content)
	if err != nil {
		return nil, err
	}
	recordStart, err := ParseHeaderTime(recStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeaderUnparseable, err)
	}
	liveStr, err := headerField(headerTags.liveStart, content)
	if err != nil {
		return nil, err
	}
	liveStart, err := ParseHeaderTime(liveStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHeaderUnparseable, err)
	}
	return &Header{
		RoomID:       roomID,
		StreamerName: name,
		Title:        title,
		RecordStart:  recordStart,
		LiveStart:    liveStart,
	}, nil
}

// ParseExport normalizes an exported tag document into a Summary. Relative
// timestamps are converted to absolute time against the recording start, and
// monetary totals are truncated immediately so this path lands on the same
// granularity as the event-stream path before the two are ever compared.
func ParseExport(r io.Reader, hdr *Header, clipID string, places int32) (*Summary, error) {
	sum := &Summary{
		ClipID:           clipID,
		GiftRevenue:      decimal.Zero,
		SuperchatRevenue: decimal.Zero,
		TotalRevenue:     decimal.Zero,
	}
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCapture, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "d":
			err = sum.exportDanmu(dec, se, hdr.RecordStart)
		case "gift":
			err = sum.exportGift(dec, se, hdr.RecordStart)
		case "sc":
			err = sum.exportSuperchat(dec, se, hdr.RecordStart)
		case "guard":
			err = sum.exportGuard(dec, se, hdr.RecordStart)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCapture, err)
		}
	}
	sum.GiftRevenue = TruncateTo(sum.GiftRevenue, places)
	sum.SuperchatRevenue = TruncateTo(sum.SuperchatRevenue, places)
	sum.TotalRevenue = TruncateTo(sum.TotalRevenue, places)
	return sum, nil
}

// exportDanmu reads a chat element. The first comma-separated field of the
// p attribute is the offset in seconds since recording start.
func (s *Summary) exportDanmu(dec *xml.Decoder, se xml.StartElement, start time.Time) error {
	var el struct {
		P    string `xml:"p,attr"`
		UID  int64  `xml:"uid,attr"`
		User string `xml:"user,attr"`
		Text string `xml:",chardata"`
	}
	if err := dec.DecodeElement(&el, &se); err != nil {
		return err
	}
	fields := strings.SplitN(el.P, ",", 2)
	rel, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return fmt.Errorf("chat offset %q: %v", el.P, err)
	}
	text := el.Text
	rec := Record{
		ClipID:   s.ClipID,
		Time:     relativeTime(start, rel),
		Username: el.User,
		UserID:   el.UID,
		Text:     &text,
	}
	s.Records = append(s.Records, rec)
	s.PlainChats = append(s.PlainChats, ChatLine{Time: rec.Time, Text: text})
	s.CommentCount++
	return nil
}

func (s *Summary) exportGift(dec *xml.Decoder, se xml.StartElement, start time.Time) error {
	var el struct {
		TS       float64 `xml:"ts,attr"`
		UID      int64   `xml:"uid,attr"`
		User     string  `xml:"user,attr"`
		GiftName string  `xml:"giftname,attr"`
		Count    int     `xml:"giftcount,attr"`
		Price    int64   `xml:"price,attr"`
	}
	if err := dec.DecodeElement(&el, &se); err != nil {
		return err
	}
	price := minorUnits(el.Price)
	name := el.GiftName
	num := el.Count
	s.Records = append(s.Records, Record{
		ClipID:    s.ClipID,
		Time:      relativeTime(start, el.TS),
		Username:  el.User,
		UserID:    el.UID,
		GiftName:  &name,
		GiftPrice: &price,
		GiftNum:   &num,
	})
	// The export carries no separate income field, so unit price * count
	// is the best available figure on this path.
	income := price.Mul(decimal.NewFromInt(int64(num)))
	s.GiftRevenue = s.GiftRevenue.Add(income)
	s.TotalRevenue = s.TotalRevenue.Add(income)
	return nil
}

func (s *Summary) exportSuperchat(dec *xml.Decoder, se xml.StartElement, start time.Time) error {
	var el struct {
		TS    float64 `xml:"ts,attr"`
		UID   int64   `xml:"uid,attr"`
		User  string  `xml:"user,attr"`
		Price int64   `xml:"price,attr"`
		Text  string  `xml:",chardata"`
	}
	if err := dec.DecodeElement(&el, &se); err != nil {
		return err
	}
	price := minorUnits(el.Price)
	text := el.Text
	s.Records = append(s.Records, Record{
		ClipID:         s.ClipID,
		Time:           relativeTime(start, el.TS),
		Username:       el.User,
		UserID:         el.UID,
		Text:           &text,
		SuperchatPrice: &price,
	})
	s.CommentCount++
	s.SuperchatRevenue = s.SuperchatRevenue.Add(price)
	s.TotalRevenue = s.TotalRevenue.Add(price)
	return nil
}

func (s *Summary) exportGuard(dec *xml.Decoder, se xml.StartElement, start time.Time) error {
	var el struct {
		TS       float64 `xml:"ts,attr"`
		UID      int64   `xml:"uid,attr"`
		User     string  `xml:"user,attr"`
		GiftName string  `xml:"giftname,attr"`
		Count    int     `xml:"count,attr"`
		Price    int64   `xml:"price,attr"`
	}
	if err := dec.DecodeElement(&el, &se); err != nil {
		return err
	}
	price := minorUnits(el.Price)
	name := el.GiftName
	num := el.Count
	s.Records = append(s.Records, Record{
		ClipID:    s.ClipID,
		Time:      relativeTime(start, el.TS),
		Username:  el.User,
		UserID:    el.UID,
		GiftName:  &name,
		GiftPrice: &price,
		GiftNum:   &num,
	})
	income := price.Mul(decimal.NewFromInt(int64(num)))
	s.GiftRevenue = s.GiftRevenue.Add(income)
	s.TotalRevenue = s.TotalRevenue.Add(income)
	return nil
}

func relativeTime(start time.Time, seconds float64) time.Time {
	return start.Add(time.Duration(seconds * float64(time.Second)))
}
