package server

import "time"

// onWorldTick 核心循环：推进世界 → 处理死亡 → 广播增量 → 登记下一次 Tick
func (r *Room) onWorldTick(now time.Time) {
	if r.connectedCount() == 0 {
		// 无人在线时停止推进，恢复后不追帧
		r.world.LastTickAt = time.Time{}
		return
	}
	start := time.Now()
	rep := r.sim.Step(r.world, now, r.phase == PhaseActive)
	r.tickSeq++

	for _, id := range rep.Deaths {
		if p, ok := r.world.Players[id]; ok {
			r.queueDeath(p, now)
		}
	}
	if rep.ScoreChanged {
		r.scoreChanged(now)
	}
	if r.broadcastDiff(now) {
		r.markDirty(now)
	}
	r.scheduleRNGFlush(now)
	r.metrics.AddTick(time.Since(start))

	r.alarms.Set(AlarmWorldTick, now.Add(r.sim.Config().TickInterval))
}

// updateWorldTick 有玩家在线时保持 Tick 闹钟，全部离线时取消
func (r *Room) updateWorldTick(now time.Time) {
	if r.connectedCount() == 0 {
		r.alarms.Clear(AlarmWorldTick)
		r.world.LastTickAt = time.Time{}
		return
	}
	if _, ok := r.alarms.At(AlarmWorldTick); !ok {
		r.world.LastTickAt = time.Time{}
		r.alarms.Set(AlarmWorldTick, now)
	}
}
