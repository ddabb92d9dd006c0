// Command backfill replays existing capture files against a running archive
// instance. It walks a directory tree for danmaku XML exports and posts a
// synthetic recorder event per capture to the /rec webhook, so historical
// recordings ingest through the same path as live ones. It can also trigger
// admin refresh/delete for a single clip.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayase-lab/matsuri-archive/clip"
)

func main() {
	var (
		dir        = flag.String("dir", "", "directory tree containing capture .xml/.jsonl files")
		serverURL  = flag.String("server", "http://localhost:8080", "archive API base URL")
		refreshID  = flag.String("refresh", "", "clip id to refresh instead of uploading")
		deleteID   = flag.String("delete", "", "clip id to delete instead of uploading")
		adminToken = flag.String("admin-token", os.Getenv("ADMIN_TOKEN"), "X-Admin-Token for admin endpoints")
	)
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	ctx := context.Background()
	base := strings.TrimRight(*serverURL, "/")

	switch {
	case *refreshID != "":
		if err := adminPost(ctx, base+"/admin/clip/"+*refreshID+"/refresh", http.MethodPost, *adminToken); err != nil {
			slog.Error("refresh failed", slog.Any("err", err))
			os.Exit(1)
		}
	case *deleteID != "":
		if err := adminPost(ctx, base+"/admin/clip/"+*deleteID, http.MethodDelete, *adminToken); err != nil {
			slog.Error("delete failed", slog.Any("err", err))
			os.Exit(1)
		}
	case *dir != "":
		if err := uploadAll(ctx, base, *dir); err != nil {
			slog.Error("backfill failed", slog.Any("err", err))
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// uploadAll finds every XML export under root (oldest first, so segments of a
// session merge in order) and posts one synthetic completion event each.
func uploadAll(ctx context.Context, base, root string) error {
	var captures []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".xml" {
			captures = append(captures, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(captures)
	slog.Info("captures found", slog.Int("count", len(captures)), slog.String("root", root))

	for _, xmlPath := range captures {
		f, err := os.Open(xmlPath)
		if err != nil {
			return err
		}
		hdr, err := clip.ParseHeader(f)
		f.Close()
		if err != nil {
			slog.Warn("skipping unparseable capture", slog.String("path", xmlPath), slog.Any("err", err))
			continue
		}
		info, err := os.Stat(xmlPath)
		if err != nil {
			return err
		}

		event := map[string]any{
			"id":   uuid.New().String(),
			"date": info.ModTime().Format(time.RFC3339Nano),
			"type": "RawDanmakuFileCompletedEvent",
			"data": map[string]any{
				"room_id": hdr.RoomID,
				"path":    strings.TrimSuffix(xmlPath, ".xml") + ".jsonl",
			},
		}
		if err := postJSON(ctx, base+"/rec", event); err != nil {
			return fmt.Errorf("upload %s: %w", xmlPath, err)
		}
		slog.Info("capture posted", slog.String("path", xmlPath),
			slog.Int64("room_id", hdr.RoomID), slog.String("title", hdr.Title))
	}
	return nil
}

func postJSON(ctx context.Context, url string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doRequest(req)
}

func adminPost(ctx context.Context, url, method, token string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	return doRequest(req)
}

func doRequest(req *http.Request) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
