// Package biliapi contains minimal helpers to interact with Bilibili web APIs
// for official replay catalog listing and CC subtitle retrieval. All endpoints
// used here are public; no credential handling is needed.
package biliapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

const defaultBaseURL = "https://api.bilibili.com"

// Client provides the catalog and subtitle methods needed for replay pairing.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

// envelope is the common {code, message, data} wrapper of Bilibili responses.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) getJSON(ctx context.Context, url string, query map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bilibili api status %d: %s", resp.StatusCode, string(b))
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.Code != 0 {
		return fmt.Errorf("bilibili api code %d: %s", env.Code, env.Message)
	}
	return json.Unmarshal(env.Data, out)
}

// Archive is one entry of an official replay series.
type Archive struct {
	BVID  string `json:"bvid"`
	Title string `json:"title"`
}

// ListSeriesVideos lists the archives of a user's video series (the official
// replay collection), newest first.
func (c *Client) ListSeriesVideos(ctx context.Context, uid, seriesID int64, page, pageSize int) ([]Archive, error) {
	if pageSize <= 0 {
		pageSize = 10
	}
	var data struct {
		Archives []Archive `json:"archives"`
	}
	err := c.getJSON(ctx, c.base()+"/x/series/archives", map[string]string{
		"mid":       strconv.FormatInt(uid, 10),
		"series_id": strconv.FormatInt(seriesID, 10),
		"pn":        strconv.Itoa(page),
		"ps":        strconv.Itoa(pageSize),
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("list series %d: %w", seriesID, err)
	}
	return data.Archives, nil
}

// VideoInfo describes one replay video and its parts.
type VideoInfo struct {
	Title string `json:"title"`
	Owner struct {
		Name string `json:"name"`
		MID  int64  `json:"mid"`
	} `json:"owner"`
	Pages []VideoPage `json:"pages"`
}

// VideoPage is one part of a multi-part video. Duration is in seconds and
// offsets subtitle timestamps of the following parts.
type VideoPage struct {
	CID      int64 `json:"cid"`
	Duration int64 `json:"duration"`
}

// GetVideoInfo fetches title, owner and part list for a video.
func (c *Client) GetVideoInfo(ctx context.Context, bvid string) (*VideoInfo, error) {
	var info VideoInfo
	err := c.getJSON(ctx, c.base()+"/x/web-interface/view", map[string]string{"bvid": bvid}, &info)
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", bvid, err)
	}
	return &info, nil
}

// SubtitleLine is one CC subtitle entry. From/To are seconds relative to the
// start of the video part; Music marks sung lines.
type SubtitleLine struct {
	From    float64 `json:"from"`
	To      float64 `json:"to"`
	Content string  `json:"content"`
	Music   float64 `json:"music"`
}

// GetSubtitles returns the first CC subtitle track of one video part, or nil
// when the part has no subtitles.
func (c *Client) GetSubtitles(ctx context.Context, bvid string, cid int64) ([]SubtitleLine, error) {
	var data struct {
		Subtitle struct {
			Subtitles []struct {
				SubtitleURL string `json:"subtitle_url"`
			} `json:"subtitles"`
		} `json:"subtitle"`
	}
	err := c.getJSON(ctx, c.base()+"/x/player/v2", map[string]string{
		"bvid": bvid,
		"cid":  strconv.FormatInt(cid, 10),
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("get subtitle track %s/%d: %w", bvid, cid, err)
	}
	if len(data.Subtitle.Subtitles) == 0 {
		return nil, nil
	}
	url := data.Subtitle.Subtitles[0].SubtitleURL
	if len(url) >= 2 && url[:2] == "//" {
		url = "https:" + url
	}
	return c.fetchSubtitleBody(ctx, url)
}

func (c *Client) fetchSubtitleBody(ctx context.Context, url string) ([]SubtitleLine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subtitle body status %d", resp.StatusCode)
	}
	var body struct {
		Body []SubtitleLine `json:"body"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Body, nil
}
