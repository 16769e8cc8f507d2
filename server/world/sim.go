package world

import (
	"math"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"microarena/server/combat"
	"microarena/server/content"
	"microarena/server/rng"
)

// TickReport 单次 Tick 的结果摘要，供房间 actor 决定后续动作
type TickReport struct {
	Elapsed      time.Duration
	Deaths       []string // 生命归零的玩家
	ScoreChanged bool
	Collected    int
	Respawned    int
	Hits         int
}

// Simulator 固定步长推进世界：移动 → NPC → 攻击 → 收集 → 重生
type Simulator struct {
	cfg     Config
	catalog *content.Catalog
	tables  combat.Tables
	rng     *rng.Manager
	respawn *RespawnScheduler
}

func NewSimulator(cfg Config, catalog *content.Catalog, tables combat.Tables, m *rng.Manager) *Simulator {
	return &Simulator{
		cfg:     cfg,
		catalog: catalog,
		tables:  tables,
		rng:     m,
		respawn: NewRespawnScheduler(cfg, m),
	}
}

func (s *Simulator) Config() Config { return s.cfg }

// SetTickInterval 热更新 Tick 间隔
func (s *Simulator) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.cfg.TickInterval = d
		if s.cfg.MaxTickDelta < d {
			s.cfg.MaxTickDelta = 4 * d
		}
	}
}

// Step 推进一次。active 为 false（等待/结算阶段）时只处理移动、NPC 与重生
func (s *Simulator) Step(st *State, now time.Time, active bool) TickReport {
	var rep TickReport
	dt := s.cfg.TickInterval
	if !st.LastTickAt.IsZero() {
		dt = now.Sub(st.LastTickAt)
	}
	// 软夹取：长时间停顿后不追帧
	if dt > s.cfg.MaxTickDelta {
		dt = s.cfg.MaxTickDelta
	}
	if dt < 0 {
		dt = 0
	}
	st.LastTickAt = now
	rep.Elapsed = dt
	st.SetPopupCap(s.cfg.MaxDamagePopupsPerTick)

	s.updateStatuses(st, now, dt, &rep)
	s.movePlayers(st, now, dt)
	s.stepMicroorganisms(st, now, dt, &rep)
	// 先生成到期的重生组，本 Tick 收集的资源只会进入尚未到期的组
	rep.Respawned = len(s.respawn.Process(st, now))
	s.processNPCRespawns(st, now)
	if active {
		s.resolveAttacks(st, now, &rep)
		s.collect(st, now, &rep)
	} else {
		for _, id := range st.PlayerIDs() {
			st.Players[id].PendingAttack = nil
		}
	}

	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		p.Health.Clamp()
		if p.Health.Current <= 0 && !p.PendingRemoval && p.Combat.State != CombatDefeated {
			p.Combat = CombatStatus{State: CombatDefeated, LastAttackAt: p.Combat.LastAttackAt}
			p.Movement = Vec{}
			rep.Deaths = append(rep.Deaths, id)
			st.MarkPlayer(id)
		}
	}
	return rep
}

// updateStatuses 清理过期状态，结算中毒伤害，补充冲刺次数
func (s *Simulator) updateStatuses(st *State, now time.Time, dt time.Duration, rep *TickReport) {
	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		before := len(p.StatusEffects)
		p.StatusEffects = combat.PruneExpired(p.StatusEffects, now)
		if len(p.StatusEffects) != before {
			st.MarkPlayer(id)
		}
		if stacks := combat.Stacks(p.StatusEffects, combat.StatusPoison, now); stacks > 0 && p.Alive() {
			if DamagePlayer(p, s.cfg.PoisonDamagePerSecond*float64(stacks)*dt.Seconds()) > 0 {
				st.MarkPlayer(id)
			}
		}
		s.rechargeDash(p, now)
	}
	for _, id := range sortedKeys(st.Microorganisms) {
		m := st.Microorganisms[id]
		m.StatusEffects = combat.PruneExpired(m.StatusEffects, now)
		if stacks := combat.Stacks(m.StatusEffects, combat.StatusPoison, now); stacks > 0 {
			m.Health.Current -= s.cfg.PoisonDamagePerSecond * float64(stacks) * dt.Seconds()
			m.Health.Clamp()
			st.MarkMicroorganism(id)
			if m.Health.Current <= 0 {
				s.killMicroorganism(st, m, nil, now, rep)
			}
		}
	}
}

func (s *Simulator) rechargeDash(p *Player, now time.Time) {
	arch, ok := s.catalog.Archetype(p.Archetype)
	if !ok || p.DashCharges >= arch.DashCharges || p.DashRechargeAt.IsZero() {
		return
	}
	if !now.Before(p.DashRechargeAt) {
		p.DashCharges++
		p.DashRechargeAt = time.Time{}
		if p.DashCharges < arch.DashCharges {
			p.DashRechargeAt = now.Add(s.cfg.DashCooldown)
		}
	}
}

// movePlayers 按最后一次校验过的移动向量积分；单 Tick 位移不超过 speed × tickInterval
func (s *Simulator) movePlayers(st *State, now time.Time, dt time.Duration) {
	step := dt
	if step > s.cfg.TickInterval {
		step = s.cfg.TickInterval
	}
	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		if !p.Active() || p.Movement.IsZero() {
			continue
		}
		if combat.Has(p.StatusEffects, combat.StatusStun, now) {
			continue
		}
		speed := effectiveSpeed(p.Attributes.Speed, p.StatusEffects, s.cfg, now)
		dir := p.Movement.ClampLen(1)
		target := p.Position.Add(dir.Scale(speed * step.Seconds()))
		next, moved := moveWithCollision(st, s.cfg, p.Position, target, s.cfg.PlayerRadius)
		if !moved {
			continue
		}
		p.Position = next
		p.Orientation = math.Atan2(dir.Y, dir.X)
		st.MarkPlayer(id)
	}
}

// collect 资源归属于本 Tick 中按 id 顺序第一个覆盖它的玩家
func (s *Simulator) collect(st *State, now time.Time, rep *TickReport) {
	if len(st.OrganicMatter) == 0 {
		return
	}
	matterIDs := sortedKeys(st.OrganicMatter)
	for _, pid := range st.PlayerIDs() {
		p := st.Players[pid]
		if !p.Active() {
			continue
		}
		for _, mid := range matterIDs {
			m, ok := st.OrganicMatter[mid]
			if !ok || p.Position.Dist(m.Position) > s.cfg.CollectionRadius {
				continue
			}
			s.award(p, m.Quantity)
			st.RemoveOrganicMatter(mid)
			s.respawn.Enqueue(st, *m, now)
			st.MarkPlayer(pid)
			rep.Collected++
			rep.ScoreChanged = true
		}
	}
}

func (s *Simulator) award(p *Player, quantity float64) {
	combo := p.Combo
	if combo < 1 || !finite(combo) {
		combo = 1
	}
	p.Score += int64(math.Round(quantity * s.cfg.ScoreMultiplier * combo))
	p.Energy += quantity * s.cfg.EnergyMultiplier
	p.XP += quantity * s.cfg.XPMultiplier
	p.Currency += quantity * s.cfg.CurrencyMultiplier
}

func (s *Simulator) processNPCRespawns(st *State, now time.Time) {
	if len(st.NPCRespawns) == 0 {
		return
	}
	kept := st.NPCRespawns[:0]
	var due []NPCRespawn
	for _, r := range st.NPCRespawns {
		if now.Before(r.RespawnAt) {
			kept = append(kept, r)
			continue
		}
		due = append(due, r)
	}
	st.NPCRespawns = kept
	sort.SliceStable(due, func(i, j int) bool { return due[i].RespawnAt.Before(due[j].RespawnAt) })
	for _, r := range due {
		if sp, ok := s.catalog.SpeciesByID(r.Species); ok {
			spawnMicroorganism(st, s.cfg, s.rng, sp)
		}
	}
}

func (s *Simulator) popup(st *State, pos Vec, value int, variant string, now time.Time) {
	st.AddPopup(DamagePopup{
		ID:        ulid.Make().String(),
		X:         pos.X,
		Y:         pos.Y,
		Value:     value,
		Variant:   variant,
		CreatedAt: now.UnixMilli(),
	})
}
