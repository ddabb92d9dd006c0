package server

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayase-lab/matsuri-archive/clip"
)

// Read API for the archive frontend. Response field names and the epoch-ms
// timestamps are part of the frontend contract and do not follow the column
// names one to one.

func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html lang=\"zh-cn\"><head><title>matsuri-archive</title></head>" +
		"<body><h1>matsuri-archive API</h1></body></html>"))
}

type channelJSON struct {
	Name             string `json:"name"`
	BilibiliUID      int64  `json:"bilibili_uid"`
	BilibiliLiveRoom int64  `json:"bilibili_live_room"`
	IsLive           bool   `json:"is_live"`
	LastDanmu        int    `json:"last_danmu"`
	TotalClips       int    `json:"total_clips"`
	TotalDanmu       int    `json:"total_danmu"`
	Face             string `json:"face"`
	Hidden           bool   `json:"hidden"`
	Archive          bool   `json:"archive"`
	LastLive         *int64 `json:"last_live"`
}

const channelColumns = `name, uid, room_id, is_live, last_comment_count,
	total_clips, total_comments, face, hidden, archive, last_live`

func scanChannel(row interface{ Scan(...any) error }) (*channelJSON, error) {
	var c channelJSON
	var lastLive sql.NullTime
	err := row.Scan(&c.Name, &c.BilibiliUID, &c.BilibiliLiveRoom, &c.IsLive, &c.LastDanmu,
		&c.TotalClips, &c.TotalDanmu, &c.Face, &c.Hidden, &c.Archive, &lastLive)
	if err != nil {
		return nil, err
	}
	if lastLive.Valid {
		ms := clip.ToMillis(lastLive.Time)
		c.LastLive = &ms
	}
	return &c, nil
}

// HandleChannelList returns all channels.
func (h *Handlers) HandleChannelList(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `SELECT `+channelColumns+` FROM channels ORDER BY uid`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()
	out := []channelJSON{}
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeData(w, out)
}

// HandleChannelByUID returns one channel by streamer uid.
func (h *Handlers) HandleChannelByUID(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseInt(r.PathValue("uid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uid")
		return
	}
	row := h.db.QueryRowContext(r.Context(), `SELECT `+channelColumns+` FROM channels WHERE uid=$1`, uid)
	c, err := scanChannel(row)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Channel not found.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeData(w, c)
}

type clipJSON struct {
	ID          string          `json:"id"`
	BilibiliUID int64           `json:"bilibili_uid"`
	Title       string          `json:"title"`
	StartTime   int64           `json:"start_time"`
	EndTime     int64           `json:"end_time"`
	Cover       string          `json:"cover"`
	DanmuDens   float64         `json:"danmu_density"`
	TotalDanmu  int             `json:"total_danmu"`
	TotalGift   float64         `json:"total_gift"`
	TotalSC     float64         `json:"total_superchat"`
	TotalReward float64         `json:"total_reward"`
	Highlights  json.RawMessage `json:"highlights"`
	Views       int             `json:"views"`
}

// HandleChannelClips lists the clips of one streamer, newest first.
func (h *Handlers) HandleChannelClips(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseInt(r.PathValue("uid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uid")
		return
	}
	rows, err := h.db.QueryContext(r.Context(), `SELECT clip_id, uid, title, start_time, end_time,
		cover, comment_density, comment_count, gift_revenue::float8, superchat_revenue::float8,
		total_revenue::float8, highlights, peak_viewers
		FROM clips WHERE uid=$1 ORDER BY start_time DESC`, uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()
	out := []clipJSON{}
	for rows.Next() {
		c, err := scanClipJSON(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeData(w, out)
}

// HandleClipByID returns one clip aggregate.
func (h *Handlers) HandleClipByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	row := h.db.QueryRowContext(r.Context(), `SELECT clip_id, uid, title, start_time, end_time,
		cover, comment_density, comment_count, gift_revenue::float8, superchat_revenue::float8,
		total_revenue::float8, highlights, peak_viewers
		FROM clips WHERE clip_id=$1`, id)
	c, err := scanClipJSON(row)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Clip not found.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeData(w, c)
}

func scanClipJSON(row interface{ Scan(...any) error }) (*clipJSON, error) {
	var c clipJSON
	var start, end sql.NullTime
	var highlights []byte
	err := row.Scan(&c.ID, &c.BilibiliUID, &c.Title, &start, &end, &c.Cover,
		&c.DanmuDens, &c.TotalDanmu, &c.TotalGift, &c.TotalSC, &c.TotalReward, &highlights, &c.Views)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		c.StartTime = clip.ToMillis(start.Time)
	}
	if end.Valid {
		c.EndTime = clip.ToMillis(end.Time)
	}
	if len(highlights) > 0 {
		c.Highlights = json.RawMessage(highlights)
	} else {
		c.Highlights = json.RawMessage("[]")
	}
	return &c, nil
}

type commentJSON struct {
	Time           int64    `json:"time"`
	Username       string   `json:"username"`
	UserID         int64    `json:"user_id"`
	SuperchatPrice *float64 `json:"superchat_price"`
	GiftName       *string  `json:"gift_name"`
	GiftPrice      *float64 `json:"gift_price"`
	GiftNum        *int64   `json:"gift_num"`
	Text           *string  `json:"text"`
}

// HandleClipComments returns the chat timeline of a clip, gifts excluded.
// Merged clips never change their past comments, so the response is marked
// immutable for a year.
func (h *Handlers) HandleClipComments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rows, err := h.db.QueryContext(r.Context(), `SELECT ts, username, user_id, superchat_price::float8,
		gift_name, gift_price::float8, gift_num, text
		FROM comments WHERE clip_id=$1 AND gift_name IS NULL ORDER BY ts`, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	defer rows.Close()
	out := []commentJSON{}
	for rows.Next() {
		var c commentJSON
		var ts sql.NullTime
		var scPrice, giftPrice sql.NullFloat64
		var giftName, text sql.NullString
		var giftNum sql.NullInt64
		if err := rows.Scan(&ts, &c.Username, &c.UserID, &scPrice, &giftName, &giftPrice, &giftNum, &text); err != nil {
			writeError(w, http.StatusInternalServerError, "scan failed")
			return
		}
		if ts.Valid {
			c.Time = clip.ToMillis(ts.Time)
		}
		if scPrice.Valid {
			c.SuperchatPrice = &scPrice.Float64
		}
		if giftName.Valid {
			c.GiftName = &giftName.String
		}
		if giftPrice.Valid {
			c.GiftPrice = &giftPrice.Float64
		}
		if giftNum.Valid {
			c.GiftNum = &giftNum.Int64
		}
		if text.Valid {
			c.Text = &text.String
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	w.Header().Set("Cache-Control", "max-age=31536000")
	writeData(w, out)
}
