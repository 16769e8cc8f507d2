package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*RoomManager, *httptest.Server) {
	t.Helper()
	m := NewRoomManager(testRoomConfig())
	srv := httptest.NewServer(NewMux(m))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readUntil 读取直到出现指定类型的消息
func readUntil(t *testing.T, ws *websocket.Conn, typ string, v any) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		var env envelope
		if json.Unmarshal(data, &env) == nil && env.Type == typ {
			if err := json.Unmarshal(data, v); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
			return
		}
	}
}

// readClose 读取直到连接关闭，返回关闭码
func readClose(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			t.Fatalf("expected a close frame, got %v", err)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Fatalf("Cache-Control = %q", got)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["version"] != "1.0.0" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSanitizeRoomID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"arena-1", "arena-1"},
		{"Room_42", "Room_42"},
		{"", "lobby"},
		{"../etc", "lobby"},
		{"has space", "lobby"},
		{strings.Repeat("a", 64), strings.Repeat("a", 64)},
		{strings.Repeat("a", 65), "lobby"},
	}
	for _, tt := range tests {
		if got := SanitizeRoomID(tt.in, "lobby"); got != tt.want {
			t.Fatalf("SanitizeRoomID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSocketRouteRequiresUpgrade(t *testing.T) {
	_, srv := newTestServer(t)
	for _, path := range []string{"/", "/ws", "/rooms/arena-1", "/rooms/arena-1/ws"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUpgradeRequired {
			t.Fatalf("%s: status = %d, want 426", path, resp.StatusCode)
		}
	}
}

func TestWebSocketReconnectClosesPriorSocket(t *testing.T) {
	m, srv := newTestServer(t)
	first := dial(t, srv, "/rooms/arena-1/ws")
	if err := first.WriteJSON(map[string]any{"type": "join", "name": "alice"}); err != nil {
		t.Fatal(err)
	}
	var joined JoinedMessage
	readUntil(t, first, "joined", &joined)
	if _, ok := m.Room("arena-1"); !ok {
		t.Fatalf("room should be created from the path")
	}

	second := dial(t, srv, "/rooms/arena-1/ws")
	if err := second.WriteJSON(map[string]any{
		"type": "join", "name": "alice", "playerId": joined.PlayerID, "reconnectToken": joined.ReconnectToken,
	}); err != nil {
		t.Fatal(err)
	}
	var again JoinedMessage
	readUntil(t, second, "joined", &again)
	if again.PlayerID != joined.PlayerID || !again.Reconnected {
		t.Fatalf("expected the same player, got %+v", again)
	}

	if code := readClose(t, first); code != ClosePolicyViolation {
		t.Fatalf("prior socket closed with %d, want 1008", code)
	}
}

func TestOversizeFrameClosesWith1009(t *testing.T) {
	_, srv := newTestServer(t)
	ws := dial(t, srv, "/ws")
	big := `{"type":"ping","ts":1,"pad":"` + strings.Repeat("x", 20*1024) + `"}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatal(err)
	}
	var e ErrorMessage
	readUntil(t, ws, "error", &e)
	if e.Reason != ReasonInvalidPayload {
		t.Fatalf("reason = %s", e.Reason)
	}
	if code := readClose(t, ws); code != CloseMessageTooBig {
		t.Fatalf("closed with %d, want 1009", code)
	}
}

func TestBinaryFramesAreDecodedAsJSON(t *testing.T) {
	_, srv := newTestServer(t)
	ws := dial(t, srv, "/")
	if err := ws.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"ping","ts":7}`)); err != nil {
		t.Fatal(err)
	}
	var pong PongMessage
	readUntil(t, ws, "pong", &pong)
	if pong.TS != 7 || pong.ServerTime == 0 {
		t.Fatalf("unexpected pong %+v", pong)
	}
}

func TestAdminConfigUpdatesRoom(t *testing.T) {
	m, srv := newTestServer(t)
	if _, err := m.GetOrCreateRoom("lobby"); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+"/admin/config?room=lobby", "application/json",
		strings.NewReader(`{"tickIntervalMs":100,"maxPlayers":4}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/admin/config?room=lobby")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var cur adminConfig
	if err := json.NewDecoder(resp.Body).Decode(&cur); err != nil {
		t.Fatal(err)
	}
	if *cur.TickIntervalMs != 100 || *cur.MaxPlayers != 4 {
		t.Fatalf("update not applied: tick=%d max=%d", *cur.TickIntervalMs, *cur.MaxPlayers)
	}

	resp, err = http.Post(srv.URL+"/admin/config?room=lobby", "application/json", strings.NewReader(`{"maxPlayers":0}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-positive values must be rejected, status = %d", resp.StatusCode)
	}
}

func TestMetricsForUnknownRoom(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics?room=nowhere")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
