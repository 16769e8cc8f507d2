package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"microarena/server/store"
	"microarena/server/world"
)

const storageTimeout = 5 * time.Second

// roomRecord 回合元数据
type roomRecord struct {
	Phase          Phase     `msgpack:"phase"`
	RoundID        string    `msgpack:"roundId"`
	RoundNumber    int       `msgpack:"roundNumber"`
	RoundStartedAt time.Time `msgpack:"roundStartedAt"`
	RoundEndsAt    time.Time `msgpack:"roundEndsAt"`
	TickSeq        uint64    `msgpack:"tickSeq"`
	SavedAt        time.Time `msgpack:"savedAt"`
}

func (r *Room) storageCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storageTimeout)
}

// markDirty 快照延迟写入；已登记的刷盘时间不后移，持续变化时也能按时落盘
func (r *Room) markDirty(now time.Time) {
	r.snapshotDirty = true
	r.alarms.SetIfAbsent(AlarmSnapshotFlush, now.Add(r.cfg.Room.SnapshotDebounce.Duration))
}

func (r *Room) scheduleRNGFlush(now time.Time) {
	if r.rng.Dirty() {
		r.alarms.SetIfAbsent(AlarmRNGFlush, now.Add(r.cfg.Room.RNGDebounce.Duration))
	}
}

// flushSnapshot 写入玩家、世界与回合元数据；失败时保留脏标记并重新安排
func (r *Room) flushSnapshot(now time.Time) error {
	r.alarms.Clear(AlarmSnapshotFlush)
	if !r.snapshotDirty {
		return nil
	}
	ctx, cancel := r.storageCtx()
	defer cancel()
	err := multierr.Combine(
		store.PutValue(ctx, r.kv, store.KeyPlayers, r.world.PlayerRecords()),
		store.PutValue(ctx, r.kv, store.KeyWorld, r.world.Snapshot()),
		store.PutValue(ctx, r.kv, store.KeySnapshotState, r.record(now)),
	)
	if err != nil {
		r.metrics.IncPersistFailures()
		r.log.Warnw("snapshot flush failed", "err", err)
		r.alarms.Set(AlarmSnapshotFlush, now.Add(r.cfg.Room.SnapshotDebounce.Duration))
		return err
	}
	r.snapshotDirty = false
	return nil
}

func (r *Room) flushRNG(now time.Time) error {
	r.alarms.Clear(AlarmRNGFlush)
	if !r.rng.Dirty() {
		return nil
	}
	ctx, cancel := r.storageCtx()
	defer cancel()
	if err := store.PutValue(ctx, r.kv, store.KeyRNG, r.rng.State()); err != nil {
		r.metrics.IncPersistFailures()
		r.log.Warnw("rng flush failed", "err", err)
		r.alarms.Set(AlarmRNGFlush, now.Add(r.cfg.Room.RNGDebounce.Duration))
		return err
	}
	r.rng.MarkClean()
	return nil
}

func (r *Room) persistAlarms() {
	ctx, cancel := r.storageCtx()
	defer cancel()
	if err := store.PutValue(ctx, r.kv, store.KeyAlarms, r.alarms.Lifecycle()); err != nil {
		r.metrics.IncPersistFailures()
		r.log.Warnw("alarm persist failed", "err", err)
		return
	}
	r.alarms.MarkPersisted()
}

// forceFlush 回合结束、重置与停机时立即写入
func (r *Room) forceFlush(now time.Time) error {
	r.snapshotDirty = true
	return multierr.Append(r.flushSnapshot(now), r.flushRNG(now))
}

func (r *Room) record(now time.Time) roomRecord {
	return roomRecord{
		Phase:          r.phase,
		RoundID:        r.roundID,
		RoundNumber:    r.roundNumber,
		RoundStartedAt: r.roundStartedAt,
		RoundEndsAt:    r.roundEndsAt,
		TickSeq:        r.tickSeq,
		SavedAt:        now,
	}
}

// Load 从存储恢复房间；没有存档时生成新世界。必须在 Run 之前调用
func (r *Room) Load(ctx context.Context) error {
	now := r.clock.Now()

	var rngState map[string]uint32
	ok, err := store.GetValue(ctx, r.kv, store.KeyRNG, &rngState)
	if err != nil {
		return fmt.Errorf("load rng: %w", err)
	}
	if ok {
		r.rng.Restore(rngState)
		r.log.Debugw("rng restored", "streams", r.rng.Names())
	}

	var snap world.Snapshot
	ok, err = store.GetValue(ctx, r.kv, store.KeyWorld, &snap)
	if err != nil {
		return fmt.Errorf("load world: %w", err)
	}
	if ok {
		r.world.RestoreWorld(snap)
	} else {
		gen := world.Generate(r.sim.Config(), r.catalog, r.rng)
		r.world.RestoreWorld(gen.Snapshot())
		r.snapshotDirty = true
	}

	var players []world.Player
	if _, err := store.GetValue(ctx, r.kv, store.KeyPlayers, &players); err != nil {
		return fmt.Errorf("load players: %w", err)
	}
	// 重启后所有连接都已断开，玩家从现在开始计算重连窗口
	for i := range players {
		p := &players[i]
		p.Connected = false
		p.LastSeenAt = now
		p.Movement = world.Vec{}
		p.PendingAttack = nil
	}
	r.world.RestorePlayers(players)
	r.sessions.Reindex()

	var rec roomRecord
	ok, err = store.GetValue(ctx, r.kv, store.KeySnapshotState, &rec)
	if err != nil {
		return fmt.Errorf("load room state: %w", err)
	}
	if ok {
		r.phase = rec.Phase
		r.roundID = rec.RoundID
		r.roundNumber = rec.RoundNumber
		r.roundStartedAt = rec.RoundStartedAt
		r.roundEndsAt = rec.RoundEndsAt
		r.tickSeq = rec.TickSeq
	}
	if r.phase == "" {
		r.phase = PhaseWaiting
	}

	var saved map[string]int64
	if _, err := store.GetValue(ctx, r.kv, store.KeyAlarms, &saved); err != nil {
		return fmt.Errorf("load alarms: %w", err)
	}
	r.alarms.RestoreLifecycle(saved)

	r.world.DiscardChanges()
	r.ranking.Invalidate()
	r.invalidateGame()
	r.scheduleCleanup(now)
	if r.snapshotDirty {
		r.markDirty(now)
	}
	r.alarms.Rearm()
	r.log.Infow("room loaded", "phase", r.phase, "players", len(players), "round", r.roundNumber)
	return nil
}
