package server

import (
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"microarena/server/world"
)

// 玩家离开的原因
const (
	leftDisconnected = "disconnected"
	leftExpired      = "expired"
	leftInactive     = "inactive"
	leftDeath        = "death"
)

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// versionAllowed 未携带版本的客户端放行；携带了则必须不低于最低版本
func (r *Room) versionAllowed(version string) bool {
	floor := r.cfg.Room.MinClientVersion
	if floor == "" || version == "" {
		return true
	}
	v := canonicalVersion(version)
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, canonicalVersion(floor)) >= 0
}

func (r *Room) spawnPoint() world.Vec {
	return world.SpawnPosition(r.world, r.sim.Config(), r.rng)
}

func (r *Room) handleJoin(c Conn, cs *connState, m *JoinMessage, now time.Time) {
	if !r.versionAllowed(m.Version) {
		r.metrics.IncProtocolRejects()
		r.sendTo(c, UpgradeRequiredMessage{Type: "upgrade_required", MinVersion: r.cfg.Room.MinClientVersion})
		c.Close(ClosePolicyViolation, "upgrade_required")
		r.detach(c, now)
		return
	}
	// 同一连接换身份加入：原身份按断线处理
	if cs.playerID != "" && cs.playerID != m.PlayerID {
		prev := cs.playerID
		cs.playerID = ""
		if r.sockets[prev] == c {
			r.disconnectPlayer(prev, now)
		}
	}

	res, reason := r.sessions.Join(JoinRequest{Name: m.Name, PlayerID: m.PlayerID, ReconnectToken: m.ReconnectToken}, now, r.spawnPoint)
	if reason != "" {
		r.metrics.IncJoinRejects()
		r.log.Infow("join rejected", "reason", reason, "name", m.Name)
		r.sendError(c, reason)
		if reason == ReasonInvalidName || reason == ReasonRoomFull {
			c.Close(ClosePolicyViolation, string(reason))
			r.detach(c, now)
		}
		return
	}

	p := res.Player
	if prev, ok := r.sockets[p.ID]; ok && prev != c {
		r.sendError(prev, ReasonSessionTaken)
		prev.Close(ClosePolicyViolation, string(ReasonSessionTaken))
		delete(r.conns, prev)
	}
	r.sockets[p.ID] = c
	cs.playerID = p.ID

	if res.Reconnected {
		r.metrics.IncReconnects()
	} else {
		r.metrics.IncJoins()
	}
	r.log.Infow("player joined", "player", p.ID, "name", p.Name, "reconnected", res.Reconnected)
	r.rosterChanged(now)

	r.sendTo(c, JoinedMessage{
		Type:           "joined",
		PlayerID:       p.ID,
		ReconnectToken: res.Token,
		ReconnectUntil: now.Add(r.cfg.Room.ReconnectWindow.Duration).UnixMilli(),
		Reconnected:    res.Reconnected,
		State:          r.fullState(now),
		Ranking:        r.ranking.Get(r.world),
	})
	r.broadcast(PlayerJoinedMessage{Type: "player_joined", Player: world.ViewOfPlayer(p, now)}, c)
	r.evaluateLifecycle(now)
}

// detach 连接关闭；只有仍是该玩家当前连接时才让玩家离线
func (r *Room) detach(c Conn, now time.Time) {
	cs, ok := r.conns[c]
	if !ok {
		return
	}
	delete(r.conns, c)
	if cs.playerID != "" && r.sockets[cs.playerID] == c {
		r.disconnectPlayer(cs.playerID, now)
	}
}

func (r *Room) disconnectPlayer(id string, now time.Time) {
	delete(r.sockets, id)
	if _, ok := r.sessions.Disconnect(id, now); !ok {
		return
	}
	r.log.Infow("player disconnected", "player", id)
	r.broadcast(PlayerLeftMessage{Type: "player_left", PlayerID: id, Reason: leftDisconnected}, nil)
	r.rosterChanged(now)
	r.evaluateLifecycle(now)
}

// removePlayer 彻底移除；因不活跃移除时同时关闭连接，排队死亡的连接保持打开
func (r *Room) removePlayer(id, reason string, now time.Time) {
	if c, ok := r.sockets[id]; ok {
		delete(r.sockets, id)
		if cs, ok := r.conns[c]; ok {
			cs.playerID = ""
		}
		if reason == leftInactive {
			c.Close(CloseNormal, reason)
			delete(r.conns, c)
		}
	}
	if !r.sessions.Remove(id) {
		return
	}
	r.metrics.IncRemovals()
	r.log.Infow("player removed", "player", id, "reason", reason)
	r.broadcast(PlayerLeftMessage{Type: "player_left", PlayerID: id, Reason: reason}, nil)
	r.rosterChanged(now)
	r.evaluateLifecycle(now)
}

// queueDeath 生命归零：保留连接，等待重连窗口内复活，否则由清理闹钟移除
func (r *Room) queueDeath(p *world.Player, now time.Time) {
	if p.PendingRemoval {
		return
	}
	p.PendingRemoval = true
	p.RemovalAt = now.Add(r.cfg.Room.ReconnectWindow.Duration)
	p.Health.Current = 0
	p.Movement = world.Vec{}
	p.PendingAttack = nil
	p.Combat = world.CombatStatus{State: world.CombatDefeated, LastAttackAt: p.Combat.LastAttackAt}
	r.world.MarkPlayer(p.ID)
	r.log.Infow("player death queued", "player", p.ID, "removalAt", p.RemovalAt)
	r.invalidateGame()
	r.scheduleCleanup(now)
	r.markDirty(now)
}

// rosterChanged 名单或在线状态变化
func (r *Room) rosterChanged(now time.Time) {
	r.ranking.Invalidate()
	r.invalidateGame()
	r.scheduleCleanup(now)
	r.markDirty(now)
}

// scheduleCleanup 清理闹钟设在所有玩家中最早的截止时间
func (r *Room) scheduleCleanup(now time.Time) {
	var next time.Time
	for _, id := range r.world.PlayerIDs() {
		d := r.sessions.Deadline(r.world.Players[id], r.cfg.Room.InactivityTimeout.Duration)
		if d.IsZero() {
			continue
		}
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	if next.IsZero() {
		r.alarms.Clear(AlarmCleanup)
		return
	}
	if next.Before(now) {
		next = now
	}
	r.alarms.Set(AlarmCleanup, next)
}

// sweep 移除排队死亡到期、离线超过重连窗口、长时间不活跃的玩家
func (r *Room) sweep(now time.Time) {
	window := r.cfg.Room.ReconnectWindow.Duration
	inactivity := r.cfg.Room.InactivityTimeout.Duration
	ids := append([]string(nil), r.world.PlayerIDs()...)
	for _, id := range ids {
		p, ok := r.world.Players[id]
		if !ok {
			continue
		}
		switch {
		case p.PendingRemoval:
			if !now.Before(p.RemovalAt) {
				r.removePlayer(id, leftDeath, now)
			}
		case !p.Connected:
			if now.Sub(p.LastSeenAt) >= window {
				r.removePlayer(id, leftExpired, now)
			}
		case inactivity > 0 && now.Sub(p.LastActiveAt) >= inactivity:
			r.removePlayer(id, leftInactive, now)
		}
	}
	r.scheduleCleanup(now)
}
