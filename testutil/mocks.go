package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockAPIServer is a path-keyed test server for the recorder and catalog
// HTTP clients.
type MockAPIServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockAPIServer creates a new mock server; unregistered paths return 404.
func NewMockAPIServer(t *testing.T) *MockAPIServer {
	t.Helper()
	m := &MockAPIServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockJSON registers a handler that serves the given value as JSON.
func (m *MockAPIServer) MockJSON(path string, v any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}

// MockRoomData registers a recorder task-data response for one room.
func (m *MockAPIServer) MockRoomData(roomPath string, uid int64, name, runningStatus string) {
	m.MockJSON(roomPath, map[string]any{
		"user_info": map[string]any{"uid": uid, "name": name, "face": "https://i0.hdslb.com/face.jpg"},
		"room_info": map[string]any{"room_id": 92613, "title": "matsuri", "cover": "https://i0.hdslb.com/cover.jpg"},
		"task_status": map[string]any{
			"running_status": runningStatus,
		},
	})
}

// MockBiliEnvelope registers a Bilibili {code,message,data} response.
func (m *MockAPIServer) MockBiliEnvelope(path string, data any) {
	m.MockJSON(path, map[string]any{"code": 0, "message": "0", "data": data})
}
