package server

import (
	"math"
	"time"

	"microarena/server/world"
)

// handleAction 动作只记录意图或更新计数，位置与伤害由下一次 Tick 权威计算
func (r *Room) handleAction(c Conn, cs *connState, m *ActionMessage, now time.Time) {
	if m.PlayerID == "" || m.PlayerID != cs.playerID {
		r.sendError(c, ReasonUnknownPlayer)
		return
	}
	p, ok := r.world.Players[m.PlayerID]
	if !ok {
		r.sendError(c, ReasonUnknownPlayer)
		return
	}
	p.LastSeenAt = now
	p.LastActiveAt = now

	active := r.phase == PhaseActive
	switch m.Payload.(type) {
	case *ScoreAction, *ComboAction, *DeathAction, *AttackAction, *EvolutionAction:
		if !active {
			r.sendError(c, ReasonGameNotActive)
			return
		}
	}
	if p.PendingRemoval {
		// 已阵亡的玩家只能通过重连复活
		return
	}

	switch a := m.Payload.(type) {
	case *ScoreAction:
		r.applyScore(p, a.Amount, now)
	case *ComboAction:
		r.applyCombo(p, a.Multiplier)
	case *DeathAction:
		r.queueDeath(p, now)
	case *AbilityAction:
		r.applyAbility(p, a.SkillID)
	case *MovementAction:
		r.applyMovement(p, a)
	case *AttackAction:
		r.applyAttack(p, a, now)
	case *EvolutionAction:
		r.applyEvolution(p, a.EvolutionID, now)
	case *ArchetypeAction:
		if active && p.ArchetypeChosen {
			r.sendError(c, ReasonGameNotActive)
			return
		}
		r.applyArchetype(p, a.ArchetypeID, active, now)
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// applyScore amount 夹在 [0, MaxScorePerAction] 后乘以连击倍率
func (r *Room) applyScore(p *world.Player, amount float64, now time.Time) {
	if !finite(amount) || amount <= 0 {
		return
	}
	amount = math.Min(amount, r.cfg.Room.MaxScorePerAction)
	p.Score += int64(math.Round(amount * math.Max(1, p.Combo)))
	r.world.MarkPlayer(p.ID)
	r.scoreChanged(now)
}

func (r *Room) applyCombo(p *world.Player, multiplier float64) {
	if !finite(multiplier) {
		return
	}
	p.Combo = math.Min(math.Max(multiplier, 1), math.Max(1, r.cfg.Room.MaxCombo))
	r.world.MarkPlayer(p.ID)
}

func (r *Room) applyAbility(p *world.Player, skillID string) {
	arch, ok := r.catalog.Archetype(p.Archetype)
	if !ok || !arch.HasSkill(skillID) {
		return
	}
	p.SelectedSkill = skillID
	r.world.MarkPlayer(p.ID)
}

// applyMovement 只保存归一化后的方向；客户端上报的位置仅作参考，不采纳
func (r *Room) applyMovement(p *world.Player, a *MovementAction) {
	if !a.Movement.Finite() {
		return
	}
	p.Movement = a.Movement.ClampLen(1)
	if a.Orientation != nil && finite(*a.Orientation) {
		p.Orientation = *a.Orientation
	}
	r.world.MarkPlayer(p.ID)
}

func (r *Room) applyAttack(p *world.Player, a *AttackAction, now time.Time) {
	switch a.Kind {
	case world.AttackBasic, world.AttackDash, world.AttackSkill:
	default:
		return
	}
	if !p.Alive() {
		return
	}
	intent := &world.AttackIntent{
		Kind:                  a.Kind,
		TargetPlayerID:        a.TargetPlayerID,
		TargetMicroorganismID: a.TargetMicroorganismID,
		TargetObjectID:        a.TargetObjectID,
		SubmittedAt:           now,
	}
	if a.ResultingHealth != nil && finite(*a.ResultingHealth) {
		hint := *a.ResultingHealth
		intent.ResultingHealth = &hint
	}
	p.PendingAttack = intent
}

// applyEvolution 消耗能量获得属性修正；同一进化只能获得一次
func (r *Room) applyEvolution(p *world.Player, id string, now time.Time) {
	evo, ok := r.catalog.Evolution(id)
	if !ok || p.Energy < evo.EnergyCost {
		return
	}
	for _, owned := range p.Evolutions {
		if owned == id {
			return
		}
	}
	p.Energy -= evo.EnergyCost
	p.Evolutions = append(p.Evolutions, id)
	world.RecomputeAttributes(p, r.catalog)
	if evo.MaxHealthBonus > 0 {
		p.Health.Current += evo.MaxHealthBonus
		p.Health.Clamp()
	}
	r.world.MarkPlayer(p.ID)
	r.markDirty(now)
}

func (r *Room) applyArchetype(p *world.Player, id string, active bool, now time.Time) {
	arch, ok := r.catalog.Archetype(id)
	if !ok {
		return
	}
	world.ApplyArchetype(p, arch, r.catalog)
	p.ArchetypeChosen = true
	if !active {
		p.Health.Current = p.Health.Max
	}
	r.world.MarkPlayer(p.ID)
	r.markDirty(now)
}

// scoreChanged 分数变化：排行失效并立即推送
func (r *Room) scoreChanged(now time.Time) {
	r.ranking.Invalidate()
	r.invalidateGame()
	r.broadcastRanking()
	r.markDirty(now)
}
