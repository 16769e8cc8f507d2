package world

import (
	"time"

	"microarena/server/combat"
)

// 以下为下发给客户端的 JSON 视图；时间统一为毫秒时间戳

type CombatStatusView struct {
	State                 string `json:"state"`
	TargetPlayerID        string `json:"targetPlayerId,omitempty"`
	TargetObjectID        string `json:"targetObjectId,omitempty"`
	TargetMicroorganismID string `json:"targetMicroorganismId,omitempty"`
	LastAttackAt          int64  `json:"lastAttackAt,omitempty"`
}

type StatusEffectView struct {
	Tag       string `json:"tag"`
	Stacks    int    `json:"stacks"`
	ExpiresAt int64  `json:"expiresAt"`
}

type PlayerView struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Score          int64              `json:"score"`
	Combo          float64            `json:"combo"`
	Energy         float64            `json:"energy"`
	XP             float64            `json:"xp"`
	Currency       float64            `json:"currency"`
	Position       Vec                `json:"position"`
	Movement       Vec                `json:"movement"`
	Orientation    float64            `json:"orientation"`
	Health         Health             `json:"health"`
	Archetype      string             `json:"archetype"`
	Evolutions     []string           `json:"evolutions,omitempty"`
	Attributes     combat.Attributes  `json:"combatAttributes"`
	CombatStatus   CombatStatusView   `json:"combatStatus"`
	StatusEffects  []StatusEffectView `json:"statusEffects,omitempty"`
	SelectedSkill  string             `json:"selectedSkill,omitempty"`
	SkillCooldowns map[string]int64   `json:"skillCooldowns,omitempty"`
	DashCharges    int                `json:"dashCharges"`
	Connected      bool               `json:"connected"`
	PendingRemoval bool               `json:"pendingRemoval,omitempty"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func statusViews(list []combat.StatusEffect, now time.Time) []StatusEffectView {
	var out []StatusEffectView
	for _, e := range list {
		if now.Before(e.ExpiresAt) {
			out = append(out, StatusEffectView{Tag: e.Tag, Stacks: e.Stacks, ExpiresAt: e.ExpiresAt.UnixMilli()})
		}
	}
	return out
}

// ViewOfPlayer 玩家视图（不含重连令牌等私密字段）
func ViewOfPlayer(p *Player, now time.Time) PlayerView {
	v := PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		Score:       p.Score,
		Combo:       p.Combo,
		Energy:      p.Energy,
		XP:          p.XP,
		Currency:    p.Currency,
		Position:    p.Position,
		Movement:    p.Movement,
		Orientation: p.Orientation,
		Health:      p.Health,
		Archetype:   p.Archetype,
		Evolutions:  p.Evolutions,
		Attributes:  p.Attributes,
		CombatStatus: CombatStatusView{
			State:                 p.Combat.State,
			TargetPlayerID:        p.Combat.TargetPlayerID,
			TargetObjectID:        p.Combat.TargetObjectID,
			TargetMicroorganismID: p.Combat.TargetMicroorganismID,
			LastAttackAt:          millis(p.Combat.LastAttackAt),
		},
		StatusEffects:  statusViews(p.StatusEffects, now),
		SelectedSkill:  p.SelectedSkill,
		DashCharges:    p.DashCharges,
		Connected:      p.Connected,
		PendingRemoval: p.PendingRemoval,
	}
	for id, until := range p.SkillCooldowns {
		if now.Before(until) {
			if v.SkillCooldowns == nil {
				v.SkillCooldowns = make(map[string]int64)
			}
			v.SkillCooldowns[id] = until.UnixMilli()
		}
	}
	return v
}

type MicroorganismView struct {
	ID            string             `json:"id"`
	Species       string             `json:"species"`
	Aggression    string             `json:"aggression"`
	Position      Vec                `json:"position"`
	Movement      Vec                `json:"movement"`
	Orientation   float64            `json:"orientation"`
	Health        Health             `json:"health"`
	TargetID      string             `json:"targetId,omitempty"`
	StatusEffects []StatusEffectView `json:"statusEffects,omitempty"`
}

func ViewOfMicroorganism(m *Microorganism, now time.Time) MicroorganismView {
	return MicroorganismView{
		ID:            m.ID,
		Species:       m.Species,
		Aggression:    string(m.Aggression),
		Position:      m.Position,
		Movement:      m.Movement,
		Orientation:   m.Orientation,
		Health:        m.Health,
		TargetID:      m.TargetID,
		StatusEffects: statusViews(m.StatusEffects, now),
	}
}

type OrganicMatterView struct {
	ID        string   `json:"id"`
	Position  Vec      `json:"position"`
	Quantity  float64  `json:"quantity"`
	Nutrients []string `json:"nutrients,omitempty"`
}

func ViewOfOrganicMatter(m *OrganicMatter) OrganicMatterView {
	return OrganicMatterView{ID: m.ID, Position: m.Position, Quantity: m.Quantity, Nutrients: m.Nutrients}
}

type ObstacleView struct {
	ID         string `json:"id"`
	Position   Vec    `json:"position"`
	HalfExtent Vec    `json:"halfExtent"`
	Impassable bool   `json:"impassable"`
}

type RoomObjectView struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Position Vec            `json:"position"`
	State    map[string]any `json:"state"`
}

func ViewOfRoomObject(o *RoomObject) RoomObjectView {
	state := make(map[string]any, len(o.State))
	for k, v := range o.State {
		state[k] = v
	}
	return RoomObjectView{ID: o.ID, Kind: o.Kind, Position: o.Position, State: state}
}

// WorldView 世界全量视图
type WorldView struct {
	Microorganisms []MicroorganismView `json:"microorganisms"`
	OrganicMatter  []OrganicMatterView `json:"organicMatter"`
	Obstacles      []ObstacleView      `json:"obstacles"`
	RoomObjects    []RoomObjectView    `json:"roomObjects"`
}

// ViewOfWorld 全量世界视图（按 id 排序）
func ViewOfWorld(st *State, now time.Time) WorldView {
	v := WorldView{
		Microorganisms: make([]MicroorganismView, 0, len(st.Microorganisms)),
		OrganicMatter:  make([]OrganicMatterView, 0, len(st.OrganicMatter)),
		Obstacles:      make([]ObstacleView, 0, len(st.Obstacles)),
		RoomObjects:    make([]RoomObjectView, 0, len(st.RoomObjects)),
	}
	for _, id := range sortedKeys(st.Microorganisms) {
		v.Microorganisms = append(v.Microorganisms, ViewOfMicroorganism(st.Microorganisms[id], now))
	}
	for _, id := range sortedKeys(st.OrganicMatter) {
		v.OrganicMatter = append(v.OrganicMatter, ViewOfOrganicMatter(st.OrganicMatter[id]))
	}
	for _, id := range sortedKeys(st.Obstacles) {
		o := st.Obstacles[id]
		v.Obstacles = append(v.Obstacles, ObstacleView{ID: o.ID, Position: o.Position, HalfExtent: o.HalfExtent, Impassable: o.Impassable})
	}
	for _, id := range sortedKeys(st.RoomObjects) {
		v.RoomObjects = append(v.RoomObjects, ViewOfRoomObject(st.RoomObjects[id]))
	}
	return v
}
