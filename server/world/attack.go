package world

import (
	"math"
	"time"

	"microarena/server/combat"
	"microarena/server/content"
)

// attackTarget 解析后的攻击目标
type attackTarget struct {
	player *Player
	npc    *Microorganism
	object *RoomObject
	pos    Vec
	radius float64
}

func (s *Simulator) resolveTarget(st *State, attacker *Player, in *AttackIntent) (attackTarget, bool) {
	switch {
	case in.TargetPlayerID != "":
		p, ok := st.Players[in.TargetPlayerID]
		if !ok || p.ID == attacker.ID || !eligiblePlayer(p) {
			return attackTarget{}, false
		}
		return attackTarget{player: p, pos: p.Position, radius: s.cfg.PlayerRadius}, true
	case in.TargetMicroorganismID != "":
		m, ok := st.Microorganisms[in.TargetMicroorganismID]
		if !ok || m.Health.Current <= 0 {
			return attackTarget{}, false
		}
		return attackTarget{npc: m, pos: m.Position, radius: s.cfg.MicroorganismRadius}, true
	case in.TargetObjectID != "":
		o, ok := st.RoomObjects[in.TargetObjectID]
		if !ok {
			return attackTarget{}, false
		}
		if _, ok := o.ObjectHealth(); !ok {
			return attackTarget{}, false
		}
		return attackTarget{object: o, pos: o.Position, radius: o.Radius}, true
	}
	return attackTarget{}, false
}

// inRange 结算时（而非提交时）的距离判定
func (s *Simulator) inRange(p *Player, t attackTarget) bool {
	return p.Position.Dist(t.pos)-t.radius <= p.Attributes.Range
}

// resolveAttacks 结算待处理的攻击意图；冷却未到的意图保留到 AttackIntentTTL 为止
func (s *Simulator) resolveAttacks(st *State, now time.Time, rep *TickReport) {
	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		in := p.PendingAttack
		if in == nil {
			continue
		}
		if !p.Active() || combat.Has(p.StatusEffects, combat.StatusStun, now) {
			p.PendingAttack = nil
			continue
		}
		if s.cfg.AttackIntentTTL > 0 && now.Sub(in.SubmittedAt) > s.cfg.AttackIntentTTL {
			p.PendingAttack = nil
			continue
		}
		var done bool
		switch in.Kind {
		case AttackBasic:
			done = s.basicAttack(st, p, in, now, rep)
		case AttackDash:
			done = s.dashAttack(st, p, in, now, rep)
		case AttackSkill:
			done = s.skillAttack(st, p, in, now, rep)
		default:
			done = true
		}
		if done {
			p.PendingAttack = nil
		}
	}
}

func (s *Simulator) basicAttack(st *State, p *Player, in *AttackIntent, now time.Time, rep *TickReport) bool {
	if !p.Combat.LastAttackAt.IsZero() && now.Sub(p.Combat.LastAttackAt) < s.cfg.BasicAttackCooldown {
		return false
	}
	t, ok := s.resolveTarget(st, p, in)
	if !ok || !s.inRange(p, t) {
		return true
	}
	s.hit(st, p, t, combat.Context{}, in.ResultingHealth, now, rep)
	s.markAttack(st, p, in, now)
	return true
}

// dashAttack 朝目标（或朝向）位移，接触时造成伤害、击退并施加 knockback 状态
func (s *Simulator) dashAttack(st *State, p *Player, in *AttackIntent, now time.Time, rep *TickReport) bool {
	if p.DashCharges <= 0 {
		return true
	}
	t, hasTarget := s.resolveTarget(st, p, in)
	dir := polar(p.Orientation, 1)
	if hasTarget {
		if d := t.pos.Sub(p.Position); !d.IsZero() {
			dir = d.Normalize()
		}
	}
	dist := s.cfg.DashDistance
	if hasTarget {
		// 停在攻击距离边缘，不穿过目标
		dist = math.Min(dist, math.Max(0, p.Position.Dist(t.pos)-t.radius-s.cfg.PlayerRadius))
	}
	if next, moved := moveWithCollision(st, s.cfg, p.Position, p.Position.Add(dir.Scale(dist)), s.cfg.PlayerRadius); moved {
		p.Position = next
	}
	p.Orientation = math.Atan2(dir.Y, dir.X)
	p.DashCharges--
	if p.DashRechargeAt.IsZero() {
		p.DashRechargeAt = now.Add(s.cfg.DashCooldown)
	}
	st.MarkPlayer(p.ID)

	if hasTarget && s.inRange(p, t) {
		s.hit(st, p, t, combat.Context{Power: s.cfg.DashPower}, in.ResultingHealth, now, rep)
		s.applyStatus(st, t, combat.StatusKnockback, 1, 1, s.cfg.DashStatusDuration, p.ID, now)
		s.knockback(st, t, dir)
	}
	s.markAttack(st, p, in, now)
	return true
}

func (s *Simulator) knockback(st *State, t attackTarget, dir Vec) {
	push := dir.Scale(s.cfg.DashKnockback)
	switch {
	case t.player != nil:
		if next, moved := moveWithCollision(st, s.cfg, t.player.Position, t.player.Position.Add(push), s.cfg.PlayerRadius); moved {
			t.player.Position = next
			st.MarkPlayer(t.player.ID)
		}
	case t.npc != nil:
		if next, moved := moveWithCollision(st, s.cfg, t.npc.Position, t.npc.Position.Add(push), s.cfg.MicroorganismRadius); moved {
			t.npc.Position = next
			st.MarkMicroorganism(t.npc.ID)
		}
	}
}

// skillAttack 当前选中技能：单体或范围伤害，施加技能状态并进入该技能冷却
func (s *Simulator) skillAttack(st *State, p *Player, in *AttackIntent, now time.Time, rep *TickReport) bool {
	skill, ok := s.catalog.Skill(p.SelectedSkill)
	if !ok {
		return true
	}
	if arch, ok := s.catalog.Archetype(p.Archetype); !ok || !arch.HasSkill(skill.ID) {
		return true
	}
	if until, ok := p.SkillCooldowns[skill.ID]; ok && now.Before(until) {
		return false
	}
	ctx := combat.Context{Element: skill.Element, Power: skill.Power}
	t, hasTarget := s.resolveTarget(st, p, in)
	if hasTarget && !s.inRange(p, t) {
		return true
	}

	if skill.Radius <= 0 {
		if !hasTarget {
			return true
		}
		s.hit(st, p, t, ctx, in.ResultingHealth, now, rep)
		s.applySkillStatus(st, t, skill, p.ID, now)
	} else {
		center := p.Position
		if hasTarget {
			center = t.pos
		}
		for _, target := range s.targetsInRadius(st, p, center, skill.Radius) {
			s.hit(st, p, target, ctx, nil, now, rep)
			s.applySkillStatus(st, target, skill, p.ID, now)
		}
	}
	if p.SkillCooldowns == nil {
		p.SkillCooldowns = make(map[string]time.Time)
	}
	p.SkillCooldowns[skill.ID] = now.Add(skill.Cooldown)
	s.markAttack(st, p, in, now)
	return true
}

func (s *Simulator) targetsInRadius(st *State, self *Player, center Vec, radius float64) []attackTarget {
	var out []attackTarget
	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		if p.ID == self.ID || !eligiblePlayer(p) {
			continue
		}
		if center.Dist(p.Position)-s.cfg.PlayerRadius <= radius {
			out = append(out, attackTarget{player: p, pos: p.Position, radius: s.cfg.PlayerRadius})
		}
	}
	for _, id := range sortedKeys(st.Microorganisms) {
		m := st.Microorganisms[id]
		if m.Health.Current > 0 && center.Dist(m.Position)-s.cfg.MicroorganismRadius <= radius {
			out = append(out, attackTarget{npc: m, pos: m.Position, radius: s.cfg.MicroorganismRadius})
		}
	}
	for _, id := range sortedKeys(st.RoomObjects) {
		o := st.RoomObjects[id]
		if _, ok := o.ObjectHealth(); ok && center.Dist(o.Position)-o.Radius <= radius {
			out = append(out, attackTarget{object: o, pos: o.Position, radius: o.Radius})
		}
	}
	return out
}

func (s *Simulator) applySkillStatus(st *State, t attackTarget, skill content.Skill, source string, now time.Time) {
	if skill.Status == "" || skill.StatusDuration <= 0 {
		return
	}
	s.applyStatus(st, t, skill.Status, skill.StatusStacks, skill.StatusMax, skill.StatusDuration, source, now)
}

func (s *Simulator) applyStatus(st *State, t attackTarget, tag string, stacks, maxStacks int, d time.Duration, source string, now time.Time) {
	expires := now.Add(d)
	switch {
	case t.player != nil:
		t.player.StatusEffects = combat.MergeStatusEffect(t.player.StatusEffects, tag, stacks, maxStacks, expires, source)
		st.MarkPlayer(t.player.ID)
		st.AddStatusEvent(StatusEvent{TargetID: t.player.ID, TargetKind: "player", Tag: tag, Stacks: combat.Stacks(t.player.StatusEffects, tag, now), ExpiresAt: expires.UnixMilli()})
	case t.npc != nil:
		if _, alive := st.Microorganisms[t.npc.ID]; !alive {
			return
		}
		t.npc.StatusEffects = combat.MergeStatusEffect(t.npc.StatusEffects, tag, stacks, maxStacks, expires, source)
		st.MarkMicroorganism(t.npc.ID)
		st.AddStatusEvent(StatusEvent{TargetID: t.npc.ID, TargetKind: "microorganism", Tag: tag, Stacks: combat.Stacks(t.npc.StatusEffects, tag, now), ExpiresAt: expires.UnixMilli()})
	}
}

// hit 结算一次伤害。客户端提交的 resultingHealth 只作参考：
// 夹在 [服务端计算结果, 当前生命] 之间，不可能比服务端算出的伤害更高
func (s *Simulator) hit(st *State, p *Player, t attackTarget, ctx combat.Context, hint *float64, now time.Time, rep *TickReport) {
	attacker := attackerOfPlayer(p, s.catalog)
	rep.Hits++
	switch {
	case t.player != nil:
		res := combat.ResolveDamage(attacker, defenderOfPlayer(t.player, s.catalog), ctx, s.tables)
		current := t.player.Health.Current
		result := current - float64(res.Damage)
		if hint != nil && finite(*hint) {
			result = math.Min(math.Max(*hint, result), current)
		}
		dealt := DamagePlayer(t.player, current-result)
		t.player.Combat.State = CombatEngaged
		st.MarkPlayer(t.player.ID)
		s.popup(st, t.pos, int(math.Round(dealt)), string(res.Relation), now)
		if !t.player.Alive() {
			p.Score += int64(math.Round(float64(s.cfg.KillScore) * math.Max(1, p.Combo)))
			rep.ScoreChanged = true
		}
	case t.npc != nil:
		res := combat.ResolveDamage(attacker, defenderOfNPC(t.npc), ctx, s.tables)
		t.npc.Health.Current -= float64(res.Damage)
		t.npc.Health.Clamp()
		st.MarkMicroorganism(t.npc.ID)
		s.popup(st, t.pos, res.Damage, string(res.Relation), now)
		if t.npc.Health.Current <= 0 {
			s.killMicroorganism(st, t.npc, p, now, rep)
		}
	case t.object != nil:
		health, ok := t.object.ObjectHealth()
		if !ok {
			return
		}
		res := combat.ResolveDamage(attacker, combat.Defender{}, ctx, s.tables)
		health = math.Max(0, health-float64(res.Damage))
		t.object.State["health"] = health
		if health <= 0 {
			t.object.State["destroyed"] = true
		}
		st.MarkRoomObject(t.object.ID)
		s.popup(st, t.pos, res.Damage, string(res.Relation), now)
	}
}

func (s *Simulator) markAttack(st *State, p *Player, in *AttackIntent, now time.Time) {
	p.Combat = CombatStatus{
		State:                 CombatAttacking,
		TargetPlayerID:        in.TargetPlayerID,
		TargetObjectID:        in.TargetObjectID,
		TargetMicroorganismID: in.TargetMicroorganismID,
		LastAttackAt:          now,
	}
	st.MarkPlayer(p.ID)
}
