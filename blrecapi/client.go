// Package blrecapi contains a minimal client for the recorder's task API,
// used to look up room and streamer metadata during ingestion.
package blrecapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Client talks to a blrec instance.
type Client struct {
	BaseURL    string // e.g. http://localhost:2233
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// RoomData is the recorder's per-task data payload.
type RoomData struct {
	UserInfo struct {
		UID  int64  `json:"uid"`
		Name string `json:"name"`
		Face string `json:"face"`
	} `json:"user_info"`
	RoomInfo struct {
		RoomID int64  `json:"room_id"`
		Title  string `json:"title"`
		Cover  string `json:"cover"`
	} `json:"room_info"`
	TaskStatus struct {
		RunningStatus string `json:"running_status"`
	} `json:"task_status"`
}

// IsLive reports whether the recorder considers the room live.
func (d *RoomData) IsLive() bool {
	return d.TaskStatus.RunningStatus != "waiting"
}

// GetRoomData fetches the recorder's data for one room.
func (c *Client) GetRoomData(ctx context.Context, roomID int64) (*RoomData, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("recorder base url empty")
	}
	url := fmt.Sprintf("%s/api/v1/tasks/%d/data", c.BaseURL, roomID)
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
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("recorder status %d: %s", resp.StatusCode, string(b))
	}
	var data RoomData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode room data: %w", err)
	}
	return &data, nil
}
