package server

import (
	"time"

	"github.com/oklog/ulid/v2"

	"microarena/server/world"
)

// Phase 回合阶段
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseActive  Phase = "active"
	PhaseEnded   Phase = "ended"
)

const (
	endTimeUp    = "time_up"
	endAbandoned = "abandoned"
)

func (r *Room) connectedCount() int {
	n := 0
	for _, p := range r.world.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// evaluateLifecycle 名单变化后调用：决定倒计时、开局或放弃回合，并维护 Tick 闹钟
func (r *Room) evaluateLifecycle(now time.Time) {
	n := r.connectedCount()
	switch r.phase {
	case PhaseWaiting:
		need := r.cfg.Room.MinPlayers
		if need < 1 {
			need = 1
		}
		if n >= need {
			countdown := r.cfg.Room.StartCountdown.Duration
			if r.cfg.Room.MinPlayers <= 1 || countdown <= 0 {
				r.alarms.Clear(AlarmWaitingStart)
				r.startRound(now)
			} else if _, ok := r.alarms.At(AlarmWaitingStart); !ok {
				r.alarms.Set(AlarmWaitingStart, now.Add(countdown))
				r.log.Infow("countdown started", "players", n, "startsAt", now.Add(countdown))
				r.invalidateGame()
			}
		} else if _, ok := r.alarms.At(AlarmWaitingStart); ok {
			r.alarms.Clear(AlarmWaitingStart)
			r.log.Infow("countdown cancelled", "players", n)
			r.invalidateGame()
		}
	case PhaseActive:
		if n == 0 {
			r.endRound(now, endAbandoned)
		}
	}
	r.updateWorldTick(now)
}

// onCountdownDone 倒计时结束时人数仍足够才开局
func (r *Room) onCountdownDone(now time.Time) {
	if r.phase != PhaseWaiting {
		return
	}
	if r.connectedCount() < r.cfg.Room.MinPlayers {
		r.invalidateGame()
		return
	}
	r.startRound(now)
}

func (r *Room) startRound(now time.Time) {
	r.phase = PhaseActive
	r.roundID = ulid.Make().String()
	r.roundNumber++
	r.roundStartedAt = now
	r.roundEndsAt = now.Add(r.cfg.Room.RoundDuration.Duration)
	r.alarms.Clear(AlarmWaitingStart)
	r.alarms.Set(AlarmRoundEnd, r.roundEndsAt)
	r.log.Infow("round started", "round", r.roundID, "number", r.roundNumber, "endsAt", r.roundEndsAt)
	r.invalidateGame()
	r.broadcastFull(now)
	r.markDirty(now)
}

// endRound 结算：冻结攻击，推送最终状态与排行，并安排重置
func (r *Room) endRound(now time.Time, reason string) {
	if r.phase != PhaseActive {
		return
	}
	r.phase = PhaseEnded
	r.alarms.Clear(AlarmRoundEnd)
	r.alarms.Set(AlarmReset, now.Add(r.cfg.Room.ResetDelay.Duration))
	for _, id := range r.world.PlayerIDs() {
		p := r.world.Players[id]
		p.PendingAttack = nil
		p.Movement = world.Vec{}
		r.world.MarkPlayer(id)
	}
	r.log.Infow("round ended", "round", r.roundID, "reason", reason)
	r.invalidateGame()
	r.ranking.Invalidate()
	r.broadcastDiff(now)
	r.broadcastRanking()
	if err := r.forceFlush(now); err != nil {
		r.log.Warnw("flush after round end failed", "err", err)
	}
}

// resetRound 重新生成世界、重置所有玩家，回到等待阶段
func (r *Room) resetRound(now time.Time) {
	if r.phase != PhaseEnded {
		return
	}
	r.phase = PhaseWaiting
	r.roundID = ""
	r.roundStartedAt = time.Time{}
	r.roundEndsAt = time.Time{}
	r.alarms.Clear(AlarmReset)

	gen := world.Generate(r.sim.Config(), r.catalog, r.rng)
	r.world.RestoreWorld(gen.Snapshot())
	for _, id := range r.world.PlayerIDs() {
		p := r.world.Players[id]
		world.ResetPlayer(p, r.catalog, r.spawnPoint())
	}
	r.world.DiscardChanges()
	r.ranking.Invalidate()
	r.invalidateGame()
	r.gameChanged = false
	r.log.Infow("round reset", "players", len(r.world.Players))

	r.broadcast(ResetMessage{Type: "reset", State: r.fullState(now)}, nil)
	if err := r.forceFlush(now); err != nil {
		r.log.Warnw("flush after reset failed", "err", err)
	}
	r.scheduleCleanup(now)
	r.evaluateLifecycle(now)
}
