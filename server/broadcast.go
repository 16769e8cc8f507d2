package server

import (
	"encoding/json"
	"time"

	"microarena/server/world"
)

// RosterEntry 大厅名单
type RosterEntry struct {
	PlayerID       string `json:"playerId"`
	Name           string `json:"name"`
	Connected      bool   `json:"connected"`
	PendingRemoval bool   `json:"pendingRemoval,omitempty"`
}

// GameState 房间摘要：阶段、回合、时间与名单；序列化结果被缓存
type GameState struct {
	Phase          Phase         `json:"phase"`
	RoundID        string        `json:"roundId,omitempty"`
	RoundNumber    int           `json:"roundNumber"`
	RoundStartedAt int64         `json:"roundStartedAt,omitempty"`
	RoundEndsAt    int64         `json:"roundEndsAt,omitempty"`
	CountdownEndAt int64         `json:"countdownEndsAt,omitempty"`
	MinPlayers     int           `json:"minPlayers"`
	MaxPlayers     int           `json:"maxPlayers"`
	Roster         []RosterEntry `json:"roster"`
}

// FullState 全量状态
type FullState struct {
	ServerTime int64              `json:"serverTime"`
	Game       json.RawMessage    `json:"game"`
	Players    []world.PlayerView `json:"players"`
	World      world.WorldView    `json:"world"`
	Ranking    []RankingEntry     `json:"ranking"`
}

// DiffState 自上次广播以来的变化
type DiffState struct {
	ServerTime            int64                     `json:"serverTime"`
	Game                  json.RawMessage           `json:"game,omitempty"`
	Players               []world.PlayerView        `json:"players,omitempty"`
	RemovedPlayers        []string                  `json:"removedPlayers,omitempty"`
	Microorganisms        []world.MicroorganismView `json:"microorganisms,omitempty"`
	RemovedMicroorganisms []string                  `json:"removedMicroorganisms,omitempty"`
	OrganicMatter         []world.OrganicMatterView `json:"organicMatter,omitempty"`
	RemovedOrganicMatter  []string                  `json:"removedOrganicMatter,omitempty"`
	RoomObjects           []world.RoomObjectView    `json:"roomObjects,omitempty"`
	StatusEvents          []world.StatusEvent       `json:"statusEvents,omitempty"`
	DamagePopups          []world.DamagePopup       `json:"damagePopups,omitempty"`
}

// invalidateGame 分数、名单或阶段变化后调用；下一次 diff 会携带新的摘要
func (r *Room) invalidateGame() {
	r.gameCache = nil
	r.gameChanged = true
}

func (r *Room) gameState() json.RawMessage {
	if r.gameCache != nil {
		return r.gameCache
	}
	g := GameState{
		Phase:          r.phase,
		RoundID:        r.roundID,
		RoundNumber:    r.roundNumber,
		RoundStartedAt: millis(r.roundStartedAt),
		RoundEndsAt:    millis(r.roundEndsAt),
		MinPlayers:     r.cfg.Room.MinPlayers,
		MaxPlayers:     r.cfg.Room.MaxPlayers,
		Roster:         make([]RosterEntry, 0, len(r.world.Players)),
	}
	if t, ok := r.alarms.At(AlarmWaitingStart); ok {
		g.CountdownEndAt = t.UnixMilli()
	}
	for _, id := range r.world.PlayerIDs() {
		p := r.world.Players[id]
		g.Roster = append(g.Roster, RosterEntry{PlayerID: p.ID, Name: p.Name, Connected: p.Connected, PendingRemoval: p.PendingRemoval})
	}
	b, err := json.Marshal(g)
	if err != nil {
		r.log.Errorw("encode game state failed", "err", err)
		return json.RawMessage("null")
	}
	r.gameCache = b
	return b
}

func (r *Room) playerViews(now time.Time) []world.PlayerView {
	out := make([]world.PlayerView, 0, len(r.world.Players))
	for _, id := range r.world.PlayerIDs() {
		out = append(out, world.ViewOfPlayer(r.world.Players[id], now))
	}
	return out
}

// fullState 世界视图每次重新计算
func (r *Room) fullState(now time.Time) json.RawMessage {
	b, err := json.Marshal(FullState{
		ServerTime: now.UnixMilli(),
		Game:       r.gameState(),
		Players:    r.playerViews(now),
		World:      world.ViewOfWorld(r.world, now),
		Ranking:    r.ranking.Get(r.world),
	})
	if err != nil {
		r.log.Errorw("encode full state failed", "err", err)
		return json.RawMessage("null")
	}
	return b
}

// broadcastFull 回合开始等时刻推送全量，并丢弃已累计的增量
func (r *Room) broadcastFull(now time.Time) {
	r.world.DiscardChanges()
	r.gameChanged = false
	r.broadcast(StateMessage{Type: "state", Mode: "full", State: r.fullState(now)}, nil)
}

// broadcastDiff 推送本 Tick 的变化；没有变化时不发送。返回是否有变化
func (r *Room) broadcastDiff(now time.Time) bool {
	ch := r.world.TakeChanges()
	if ch.Empty() && !r.gameChanged {
		return false
	}
	d := DiffState{
		ServerTime:            now.UnixMilli(),
		RemovedPlayers:        ch.RemovedPlayers,
		RemovedMicroorganisms: ch.RemovedMicroorganisms,
		RemovedOrganicMatter:  ch.RemovedOrganicMatter,
		StatusEvents:          ch.StatusEvents,
		DamagePopups:          ch.DamagePopups,
	}
	if r.gameChanged {
		d.Game = r.gameState()
		r.gameChanged = false
	}
	for _, id := range ch.Players {
		if p, ok := r.world.Players[id]; ok {
			d.Players = append(d.Players, world.ViewOfPlayer(p, now))
		}
	}
	for _, id := range ch.Microorganisms {
		if m, ok := r.world.Microorganisms[id]; ok {
			d.Microorganisms = append(d.Microorganisms, world.ViewOfMicroorganism(m, now))
		}
	}
	for _, id := range ch.OrganicMatter {
		if m, ok := r.world.OrganicMatter[id]; ok {
			d.OrganicMatter = append(d.OrganicMatter, world.ViewOfOrganicMatter(m))
		}
	}
	for _, id := range ch.RoomObjects {
		if o, ok := r.world.RoomObjects[id]; ok {
			d.RoomObjects = append(d.RoomObjects, world.ViewOfRoomObject(o))
		}
	}
	b, err := json.Marshal(d)
	if err != nil {
		r.log.Errorw("encode diff failed", "err", err)
		return true
	}
	r.broadcast(StateMessage{Type: "state", Mode: "diff", State: b}, nil)
	return true
}

func (r *Room) broadcastRanking() {
	r.broadcast(RankingMessage{Type: "ranking", Ranking: r.ranking.Get(r.world)}, nil)
}

// broadcast 序列化一次，发给所有已加入的连接（except 除外）
func (r *Room) broadcast(msg any, except Conn) {
	if len(r.sockets) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Errorw("encode broadcast failed", "err", err)
		return
	}
	for _, id := range r.world.PlayerIDs() {
		c, ok := r.sockets[id]
		if !ok || c == except {
			continue
		}
		r.deliver(c, b)
	}
}

func (r *Room) sendTo(c Conn, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Errorw("encode message failed", "err", err)
		return
	}
	r.deliver(c, b)
}

func (r *Room) deliver(c Conn, b []byte) {
	if c.Send(b) {
		r.metrics.IncSent()
		return
	}
	r.metrics.IncSendDropped()
}

func (r *Room) sendError(c Conn, reason Reason) {
	r.sendTo(c, ErrorMessage{Type: "error", Reason: reason})
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
