package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// adminConfig 可热更新的房间规则；未给出的字段保持不变
type adminConfig struct {
	TickIntervalMs           *int64 `json:"tickIntervalMs,omitempty"`
	MaxMessagesPerConnection *int   `json:"maxMessagesPerConnection,omitempty"`
	RateLimitWindowMs        *int64 `json:"rateLimitWindowMs,omitempty"`
	RoundDurationMs          *int64 `json:"roundDurationMs,omitempty"`
	MaxPlayers               *int   `json:"maxPlayers,omitempty"`
	MinPlayers               *int   `json:"minPlayers,omitempty"`
	ReconnectWindowMs        *int64 `json:"reconnectWindowMs,omitempty"`
}

func ptr[T any](v T) *T { return &v }

func (r *Room) adminView() adminConfig {
	return adminConfig{
		TickIntervalMs:           ptr(r.sim.Config().TickInterval.Milliseconds()),
		MaxMessagesPerConnection: ptr(r.cfg.Room.MaxMessagesPerConnection),
		RateLimitWindowMs:        ptr(r.cfg.Room.RateLimitWindow.Milliseconds()),
		RoundDurationMs:          ptr(r.cfg.Room.RoundDuration.Milliseconds()),
		MaxPlayers:               ptr(r.cfg.Room.MaxPlayers),
		MinPlayers:               ptr(r.cfg.Room.MinPlayers),
		ReconnectWindowMs:        ptr(r.cfg.Room.ReconnectWindow.Milliseconds()),
	}
}

func positive[T int | int64](p *T) bool { return p == nil || *p > 0 }

func (c adminConfig) valid() bool {
	return positive(c.TickIntervalMs) && positive(c.MaxMessagesPerConnection) && positive(c.RateLimitWindowMs) &&
		positive(c.RoundDurationMs) && positive(c.MaxPlayers) && positive(c.MinPlayers) && positive(c.ReconnectWindowMs)
}

// applyAdmin 在房间 goroutine 中执行；已有连接的限流器一并更新
func (r *Room) applyAdmin(c adminConfig) {
	if c.TickIntervalMs != nil {
		r.sim.SetTickInterval(time.Duration(*c.TickIntervalMs) * time.Millisecond)
	}
	if c.MaxMessagesPerConnection != nil {
		r.cfg.Room.MaxMessagesPerConnection = *c.MaxMessagesPerConnection
		for _, cs := range r.conns {
			cs.limiter.SetLimit(*c.MaxMessagesPerConnection)
		}
	}
	if c.RateLimitWindowMs != nil {
		d := time.Duration(*c.RateLimitWindowMs) * time.Millisecond
		r.cfg.Room.RateLimitWindow.Duration = d
		r.global.SetWindow(d)
		for _, cs := range r.conns {
			cs.limiter.SetWindow(d)
		}
	}
	if c.RoundDurationMs != nil {
		r.cfg.Room.RoundDuration.Duration = time.Duration(*c.RoundDurationMs) * time.Millisecond
	}
	if c.MaxPlayers != nil {
		r.cfg.Room.MaxPlayers = *c.MaxPlayers
	}
	if c.MinPlayers != nil {
		r.cfg.Room.MinPlayers = *c.MinPlayers
	}
	if c.ReconnectWindowMs != nil {
		r.cfg.Room.ReconnectWindow.Duration = time.Duration(*c.ReconnectWindowMs) * time.Millisecond
	}
	r.sessions.SetLimits(r.cfg.Room.MaxPlayers, r.cfg.Room.ReconnectWindow.Duration)
	r.invalidateGame()
	now := r.clock.Now()
	r.scheduleCleanup(now)
	r.evaluateLifecycle(now)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleAdminConfig 提供房间配置的读取与更新（热更新基本规则）
// GET /admin/config?room=lobby  返回当前配置
// POST /admin/config?room=lobby 以 JSON 载荷更新部分字段
func HandleAdminConfig(m *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		roomID := SanitizeRoomID(req.URL.Query().Get("room"), m.Config().Room.DefaultRoom)
		room, err := m.GetOrCreateRoom(roomID)
		if err != nil {
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}

		switch req.Method {
		case http.MethodGet:
			var cur adminConfig
			if err := room.Do(req.Context(), func(r *Room) { cur = r.adminView() }); err != nil {
				http.Error(w, "room unavailable", http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, cur)
		case http.MethodPost:
			var body adminConfig
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if !body.valid() {
				http.Error(w, "values must be positive", http.StatusBadRequest)
				return
			}
			var cur adminConfig
			if err := room.Do(req.Context(), func(r *Room) {
				r.applyAdmin(body)
				cur = r.adminView()
			}); err != nil {
				http.Error(w, "room unavailable", http.StatusServiceUnavailable)
				return
			}
			Log.Infow("config updated", "room", roomID, "tickIntervalMs", *cur.TickIntervalMs,
				"maxMessagesPerConnection", *cur.MaxMessagesPerConnection, "maxPlayers", *cur.MaxPlayers)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": cur})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=lobby
func HandleMetrics(m *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		roomID := SanitizeRoomID(req.URL.Query().Get("room"), m.Config().Room.DefaultRoom)
		room, ok := m.Room(roomID)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		var tick uint64
		var phase Phase
		var players int
		if err := room.Do(req.Context(), func(r *Room) {
			tick, phase, players = r.tickSeq, r.phase, len(r.world.Players)
		}); err != nil {
			http.Error(w, "room unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"room":    roomID,
			"tick":    tick,
			"phase":   phase,
			"players": players,
			"metrics": room.Metrics().Snapshot(),
		})
	}
}
