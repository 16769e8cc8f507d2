package world

import (
	"math"
	"time"

	"microarena/server/combat"
	"microarena/server/content"
	"microarena/server/rng"
)

// NewPlayer 以默认原型创建玩家（位置由调用方决定）
func NewPlayer(id, name string, catalog *content.Catalog, now time.Time) *Player {
	p := &Player{
		ID:             id,
		Name:           name,
		Combo:          1,
		SkillCooldowns: make(map[string]time.Time),
		Connected:      true,
		JoinedAt:       now,
		LastSeenAt:     now,
		LastActiveAt:   now,
		Combat:         CombatStatus{State: CombatIdle},
	}
	if arch, ok := catalog.Archetype(catalog.DefaultArchetype); ok {
		ApplyArchetype(p, arch, catalog)
		p.Health.Current = p.Health.Max
	}
	return p
}

// ApplyArchetype 切换原型：重置选中技能与冲刺次数，重算属性
func ApplyArchetype(p *Player, arch content.Archetype, catalog *content.Catalog) {
	p.Archetype = arch.ID
	p.DashCharges = arch.DashCharges
	p.SelectedSkill = ""
	if len(arch.Skills) > 0 {
		p.SelectedSkill = arch.Skills[0]
	}
	RecomputeAttributes(p, catalog)
}

// RecomputeAttributes 基础原型 + 进化修正；生命上限变化后重新夹取
func RecomputeAttributes(p *Player, catalog *content.Catalog) {
	arch, ok := catalog.Archetype(p.Archetype)
	if !ok {
		return
	}
	var mods combat.Modifiers
	maxHealth := arch.MaxHealth
	for _, id := range p.Evolutions {
		if evo, ok := catalog.Evolution(id); ok {
			mods = mods.Add(evo.Modifiers)
			maxHealth += evo.MaxHealthBonus
		}
	}
	p.Modifiers = mods
	p.Attributes = combat.DeriveAttributes(arch.Base, mods)
	p.Health.Max = maxHealth
	p.Health.Clamp()
}

// ResetPlayer 回合重置：恢复中性属性与位置，清空临时状态与队列
func ResetPlayer(p *Player, catalog *content.Catalog, pos Vec) {
	p.Score = 0
	p.Combo = 1
	p.Energy = 0
	p.XP = 0
	p.Currency = 0
	p.Evolutions = nil
	p.Movement = Vec{}
	p.Position = pos
	p.PendingAttack = nil
	p.StatusEffects = nil
	p.SkillCooldowns = make(map[string]time.Time)
	p.DashRechargeAt = time.Time{}
	p.Combat = CombatStatus{State: CombatIdle}
	p.PendingRemoval = false
	p.RemovalAt = time.Time{}
	if arch, ok := catalog.Archetype(p.Archetype); ok {
		ApplyArchetype(p, arch, catalog)
	}
	p.Health.Current = p.Health.Max
}

// Resurrect 排队死亡的玩家在重连窗口内恢复
func Resurrect(p *Player, pos Vec) {
	p.PendingRemoval = false
	p.RemovalAt = time.Time{}
	p.Health.Current = p.Health.Max
	p.Combo = 1
	p.Position = pos
	p.Movement = Vec{}
	p.Combat = CombatStatus{State: CombatIdle}
}

// SpawnPosition 从 playerSpawn 流抽取一个不在障碍物内的位置
func SpawnPosition(st *State, cfg Config, m *rng.Manager) Vec {
	s := m.Stream(rng.StreamPlayerSpawn)
	margin := cfg.PlayerRadius * 2
	var pos Vec
	for attempt := 0; attempt < 16; attempt++ {
		pos = Vec{X: s.Range(margin, cfg.Width-margin), Y: s.Range(margin, cfg.Height-margin)}
		if !blocked(st, pos, cfg.PlayerRadius) {
			return pos
		}
	}
	return pos
}

func defenderOfPlayer(p *Player, catalog *content.Catalog) combat.Defender {
	d := combat.Defender{Defense: p.Attributes.Defense}
	if arch, ok := catalog.Archetype(p.Archetype); ok {
		d.Element = arch.Element
		d.Stability = arch.Stability
		d.Resistances = arch.Resistances
	}
	return d
}

func attackerOfPlayer(p *Player, catalog *content.Catalog) combat.Attacker {
	a := combat.Attacker{Attack: p.Attributes.Attack, Combo: p.Combo}
	if arch, ok := catalog.Archetype(p.Archetype); ok {
		a.Element = arch.Element
		a.Penetration = arch.Penetration
	}
	return a
}

func defenderOfNPC(m *Microorganism) combat.Defender {
	return combat.Defender{Defense: m.Attributes.Defense, Stability: m.Stability, Element: m.Element}
}

func attackerOfNPC(m *Microorganism) combat.Attacker {
	return combat.Attacker{Attack: m.Attributes.Attack, Element: m.Element, Combo: 1}
}

// DamagePlayer 扣血并夹取，返回实际扣除量
func DamagePlayer(p *Player, amount float64) float64 {
	if amount <= 0 || !finite(amount) {
		return 0
	}
	before := p.Health.Current
	p.Health.Current -= amount
	p.Health.Clamp()
	return before - p.Health.Current
}

// effectiveSpeed 减速按层数递减，最低保留 20%
func effectiveSpeed(base float64, effects []combat.StatusEffect, cfg Config, now time.Time) float64 {
	stacks := combat.Stacks(effects, combat.StatusSlow, now)
	factor := math.Max(0.2, 1-cfg.SlowPerStack*float64(stacks))
	return base * factor
}
