package world

import (
	"math"
	"time"

	"microarena/server/combat"
	"microarena/server/content"
	"microarena/server/rng"
)

// npcTarget 敌对 NPC 的候选目标（玩家或其他种类的 NPC）
type npcTarget struct {
	player *Player
	npc    *Microorganism
	pos    Vec
	dist   float64
}

// eligiblePlayer 已击败、离线或排队移除的玩家不能成为目标
func eligiblePlayer(p *Player) bool { return p.Active() }

func (s *Simulator) nearestTarget(st *State, m *Microorganism, threat float64, includeNPCs bool) (npcTarget, bool) {
	var best npcTarget
	found := false
	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		if !eligiblePlayer(p) {
			continue
		}
		d := m.Position.Dist(p.Position)
		if d <= threat && (!found || d < best.dist) {
			best = npcTarget{player: p, pos: p.Position, dist: d}
			found = true
		}
	}
	if includeNPCs {
		for _, id := range sortedKeys(st.Microorganisms) {
			o := st.Microorganisms[id]
			if o.ID == m.ID || o.Species == m.Species || o.Health.Current <= 0 {
				continue
			}
			d := m.Position.Dist(o.Position)
			if d <= threat && (!found || d < best.dist) {
				best = npcTarget{npc: o, pos: o.Position, dist: d}
				found = true
			}
		}
	}
	return best, found
}

func (s *Simulator) stepMicroorganisms(st *State, now time.Time, dt time.Duration, rep *TickReport) {
	for _, id := range sortedKeys(st.Microorganisms) {
		m, ok := st.Microorganisms[id]
		if !ok || m.Health.Current <= 0 {
			continue
		}
		sp, ok := s.catalog.SpeciesByID(m.Species)
		if !ok {
			continue
		}
		stunned := combat.Has(m.StatusEffects, combat.StatusStun, now)
		speed := effectiveSpeed(m.Attributes.Speed, m.StatusEffects, s.cfg, now) * dt.Seconds()
		prevTarget := m.TargetID
		m.TargetID = ""

		switch m.Aggression {
		case content.AggressionHostile:
			t, found := s.nearestTarget(st, m, sp.ThreatRange, true)
			if !found {
				s.wander(st, m, speed, stunned)
				break
			}
			if t.player != nil {
				m.TargetID = t.player.ID
			} else {
				m.TargetID = t.npc.ID
			}
			reach := m.Attributes.Range + s.cfg.PlayerRadius
			if t.dist > reach {
				if !stunned {
					s.moveNPC(st, m, t.pos.Sub(m.Position).Normalize(), speed)
				}
				break
			}
			if !stunned && now.Sub(m.LastAttackAt) >= sp.AttackCooldown {
				m.LastAttackAt = now
				s.npcAttack(st, m, t, now, rep)
			}
		case content.AggressionSkittish:
			t, found := s.nearestTarget(st, m, sp.ThreatRange, false)
			if found && !stunned {
				away := m.Position.Sub(t.pos).Normalize()
				if away.IsZero() {
					away = Vec{X: 1}
				}
				s.moveNPC(st, m, away, speed)
				break
			}
			s.wander(st, m, speed, stunned)
		default:
			s.wander(st, m, speed, stunned)
		}
		if m.TargetID != prevTarget {
			st.MarkMicroorganism(id)
		}
	}
}

// wander 沿 microorganismWaypoint 流抽取的路点漫游
func (s *Simulator) wander(st *State, m *Microorganism, speed float64, stunned bool) {
	if stunned {
		return
	}
	if m.Waypoint == nil || m.Position.Dist(*m.Waypoint) < 8 {
		stream := s.rng.Stream(rng.StreamWaypoint)
		wp := clampToBounds(m.Position.Add(polar(stream.Range(0, 2*math.Pi), stream.Range(80, 300))), s.cfg, s.cfg.MicroorganismRadius)
		m.Waypoint = &wp
	}
	dir := m.Waypoint.Sub(m.Position)
	if dir.Len() < speed {
		speed = dir.Len()
	}
	if !s.moveNPC(st, m, dir.Normalize(), speed) {
		// 被障碍物挡住则下次换路点
		m.Waypoint = nil
	}
}

func (s *Simulator) moveNPC(st *State, m *Microorganism, dir Vec, dist float64) bool {
	if dir.IsZero() || dist <= 0 {
		m.Movement = Vec{}
		return false
	}
	next, moved := moveWithCollision(st, s.cfg, m.Position, m.Position.Add(dir.Scale(dist)), s.cfg.MicroorganismRadius)
	m.Movement = dir
	if !moved {
		return false
	}
	m.Position = next
	m.Orientation = math.Atan2(dir.Y, dir.X)
	st.MarkMicroorganism(m.ID)
	return true
}

// npcAttack NPC 命中玩家后给予短暂接触无敌，避免一次碰撞连续多次命中
func (s *Simulator) npcAttack(st *State, m *Microorganism, t npcTarget, now time.Time, rep *TickReport) {
	if t.player != nil {
		p := t.player
		if combat.Has(p.StatusEffects, combat.StatusInvulnerable, now) {
			return
		}
		res := combat.ResolveDamage(attackerOfNPC(m), defenderOfPlayer(p, s.catalog), combat.Context{}, s.tables)
		dealt := DamagePlayer(p, float64(res.Damage))
		expires := now.Add(s.cfg.ContactInvulnerability)
		p.StatusEffects = combat.MergeStatusEffect(p.StatusEffects, combat.StatusInvulnerable, 1, 1, expires, m.ID)
		st.AddStatusEvent(StatusEvent{TargetID: p.ID, TargetKind: "player", Tag: combat.StatusInvulnerable, Stacks: 1, ExpiresAt: expires.UnixMilli()})
		if p.Combat.State != CombatDefeated {
			p.Combat.State = CombatEngaged
		}
		st.MarkPlayer(p.ID)
		s.popup(st, p.Position, int(math.Round(dealt)), string(res.Relation), now)
		rep.Hits++
		return
	}
	o := t.npc
	res := combat.ResolveDamage(attackerOfNPC(m), defenderOfNPC(o), combat.Context{}, s.tables)
	o.Health.Current -= float64(res.Damage)
	o.Health.Clamp()
	st.MarkMicroorganism(o.ID)
	s.popup(st, o.Position, res.Damage, string(res.Relation), now)
	rep.Hits++
	if o.Health.Current <= 0 {
		s.killMicroorganism(st, o, nil, now, rep)
	}
}

// killMicroorganism 移除 NPC；由玩家击杀时发放经验、货币与分数，并排队重生
func (s *Simulator) killMicroorganism(st *State, m *Microorganism, killer *Player, now time.Time, rep *TickReport) {
	if _, ok := st.Microorganisms[m.ID]; !ok {
		return
	}
	st.RemoveMicroorganism(m.ID)
	st.NPCRespawns = append(st.NPCRespawns, NPCRespawn{Species: m.Species, RespawnAt: now.Add(s.cfg.NPCRespawnDelay)})
	if killer == nil {
		return
	}
	sp, ok := s.catalog.SpeciesByID(m.Species)
	if !ok {
		return
	}
	roll := s.rng.Stream(rng.StreamProgression).Range(0.8, 1.2)
	killer.XP += sp.XP
	killer.Currency += math.Round(sp.Currency * roll)
	killer.Score += int64(math.Round(float64(sp.Score) * math.Max(1, killer.Combo)))
	st.MarkPlayer(killer.ID)
	rep.ScoreChanged = true
}
