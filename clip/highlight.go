package clip

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Extractor derives the keyword-frequency timeline from a session's plain
// chat stream. Keyword vocabulary and window width are explicit
// configuration, not ambient state.
type Extractor struct {
	Keywords []string
	Window   time.Duration
}

// DefaultKeywords are the trigger substrings tracked for the energy graph:
// laughter, confusion, agreement and cheer markers.
var DefaultKeywords = []string{"草", "?", "？", "哈哈", "好好好", "牛蛙", "wase", "call", `/\`}

// DefaultExtractor returns an Extractor with the stock vocabulary and
// 60-second windows.
func DefaultExtractor() Extractor {
	return Extractor{Keywords: DefaultKeywords, Window: time.Minute}
}

// HighlightWindow is one fixed-width window of the timeline: its start
// instant plus an occurrence count per tracked keyword.
type HighlightWindow struct {
	Start  time.Time
	Counts map[string]int
}

// MarshalJSON flattens the window into the wire shape the frontend consumes:
// an object with a "time" epoch-millisecond field alongside one field per
// keyword.
func (w HighlightWindow) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(w.Counts)+1)
	for k, v := range w.Counts {
		m[k] = v
	}
	m["time"] = ToMillis(w.Start)
	return json.Marshal(m)
}

// UnmarshalJSON restores a window from its wire shape.
func (w *HighlightWindow) UnmarshalJSON(b []byte) error {
	var m map[string]json.Number
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	w.Counts = make(map[string]int, len(m))
	for k, v := range m {
		n, err := v.Int64()
		if err != nil {
			return err
		}
		if k == "time" {
			w.Start = FromMillis(n)
			continue
		}
		w.Counts[k] = int(n)
	}
	return nil
}

// Timeline windows the chat stream into fixed-width segments anchored at the
// first message's timestamp and counts keyword occurrences over the
// concatenated text of each window. Empty input yields an empty timeline;
// interior windows with no messages still appear with zero counts, but no
// trailing empty windows are emitted past the last message.
func (e Extractor) Timeline(chats []ChatLine) []HighlightWindow {
	if len(chats) == 0 {
		return nil
	}
	sorted := make([]ChatLine, len(chats))
	copy(sorted, chats)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	var out []HighlightWindow
	i := 0
	for start := sorted[0].Time; i < len(sorted); start = start.Add(e.Window) {
		end := start.Add(e.Window)
		var b strings.Builder
		for i < len(sorted) && sorted[i].Time.Before(end) {
			b.WriteString(sorted[i].Text)
			i++
		}
		text := b.String()
		counts := make(map[string]int, len(e.Keywords))
		for _, kw := range e.Keywords {
			counts[kw] = strings.Count(text, kw)
		}
		out = append(out, HighlightWindow{Start: start, Counts: counts})
	}
	return out
}
