package server

import (
	"net/http"
	"regexp"

	"github.com/gorilla/websocket"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SanitizeRoomID 非法的房间 id 回落到默认房间
func SanitizeRoomID(id, fallback string) string {
	if roomIDPattern.MatchString(id) {
		return id
	}
	return fallback
}

// HandleHealth 存活检查
func HandleHealth(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	}
}

func wsEntry(m *RoomManager, fromPath bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !websocket.IsWebSocketUpgrade(r) {
			w.Header().Set("Upgrade", "websocket")
			http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
			return
		}
		fallback := m.Config().Room.DefaultRoom
		id := fallback
		if fromPath {
			id = SanitizeRoomID(r.PathValue("id"), fallback)
		}
		HandleWS(m, id, w, r)
	}
}

// NewMux 全部 HTTP 路由
func NewMux(m *RoomManager) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HandleHealth(m.Config().Version))
	// 管理与监控接口
	mux.HandleFunc("GET /metrics", HandleMetrics(m))
	mux.HandleFunc("/admin/config", HandleAdminConfig(m))

	mux.HandleFunc("GET /{$}", wsEntry(m, false))
	mux.HandleFunc("GET /ws", wsEntry(m, false))
	mux.HandleFunc("GET /rooms/{id}", wsEntry(m, true))
	mux.HandleFunc("GET /rooms/{id}/ws", wsEntry(m, true))
	return mux
}
