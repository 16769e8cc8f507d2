package world

import (
	"time"

	"microarena/server/combat"
	"microarena/server/content"
)

// Health 生命值，Current 始终夹在 [0, Max]
type Health struct {
	Current float64 `json:"current" msgpack:"current"`
	Max     float64 `json:"max" msgpack:"max"`
}

// Clamp 夹取到合法区间
func (h *Health) Clamp() {
	if !finite(h.Max) || h.Max < 0 {
		h.Max = 0
	}
	if !finite(h.Current) || h.Current < 0 {
		h.Current = 0
	}
	if h.Current > h.Max {
		h.Current = h.Max
	}
}

// 战斗状态
const (
	CombatIdle      = "idle"
	CombatEngaged   = "engaged"
	CombatAttacking = "attacking"
	CombatDefeated  = "defeated"
)

// CombatStatus 玩家当前交战信息
type CombatStatus struct {
	State                 string    `msgpack:"state"`
	TargetPlayerID        string    `msgpack:"targetPlayerId"`
	TargetObjectID        string    `msgpack:"targetObjectId"`
	TargetMicroorganismID string    `msgpack:"targetMicroorganismId"`
	LastAttackAt          time.Time `msgpack:"lastAttackAt"`
}

// AttackKind 攻击类型
type AttackKind string

const (
	AttackBasic AttackKind = "basic"
	AttackDash  AttackKind = "dash"
	AttackSkill AttackKind = "skill"
)

// AttackIntent 客户端提交、等待下一 Tick 结算的攻击意图
type AttackIntent struct {
	Kind                  AttackKind `msgpack:"kind"`
	TargetPlayerID        string     `msgpack:"targetPlayerId"`
	TargetMicroorganismID string     `msgpack:"targetMicroorganismId"`
	TargetObjectID        string     `msgpack:"targetObjectId"`
	ResultingHealth       *float64   `msgpack:"resultingHealth"`
	SubmittedAt           time.Time  `msgpack:"submittedAt"`
}

// Player 服务端权威玩家状态
type Player struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`

	Score    int64   `msgpack:"score"`
	Combo    float64 `msgpack:"combo"`
	Energy   float64 `msgpack:"energy"`
	XP       float64 `msgpack:"xp"`
	Currency float64 `msgpack:"currency"`

	Position    Vec     `msgpack:"position"`
	Movement    Vec     `msgpack:"movement"`
	Orientation float64 `msgpack:"orientation"`
	Health      Health  `msgpack:"health"`

	Archetype       string            `msgpack:"archetype"`
	ArchetypeChosen bool              `msgpack:"archetypeChosen"`
	Evolutions      []string          `msgpack:"evolutions"`
	Modifiers       combat.Modifiers  `msgpack:"modifiers"`
	Attributes      combat.Attributes `msgpack:"attributes"`

	Combat        CombatStatus          `msgpack:"combat"`
	PendingAttack *AttackIntent         `msgpack:"pendingAttack"`
	StatusEffects []combat.StatusEffect `msgpack:"statusEffects"`

	SelectedSkill  string               `msgpack:"selectedSkill"`
	SkillCooldowns map[string]time.Time `msgpack:"skillCooldowns"`
	DashCharges    int                  `msgpack:"dashCharges"`
	DashRechargeAt time.Time            `msgpack:"dashRechargeAt"`

	Connected          bool      `msgpack:"connected"`
	JoinedAt           time.Time `msgpack:"joinedAt"`
	LastSeenAt         time.Time `msgpack:"lastSeenAt"`
	LastActiveAt       time.Time `msgpack:"lastActiveAt"`
	ReconnectTokenHash string    `msgpack:"reconnectTokenHash"`

	PendingRemoval bool      `msgpack:"pendingRemoval"`
	RemovalAt      time.Time `msgpack:"removalAt"`
}

// Alive 生命值大于 0
func (p *Player) Alive() bool { return p.Health.Current > 0 }

// Active 可参与模拟：在线、存活且未排队移除
func (p *Player) Active() bool {
	return p.Connected && !p.PendingRemoval && p.Alive()
}

// Microorganism NPC
type Microorganism struct {
	ID            string                `msgpack:"id"`
	Species       string                `msgpack:"species"`
	Aggression    content.Aggression    `msgpack:"aggression"`
	Element       combat.Element        `msgpack:"element"`
	Position      Vec                   `msgpack:"position"`
	Movement      Vec                   `msgpack:"movement"`
	Orientation   float64               `msgpack:"orientation"`
	Health        Health                `msgpack:"health"`
	Attributes    combat.Attributes     `msgpack:"attributes"`
	Stability     float64               `msgpack:"stability"`
	Waypoint      *Vec                  `msgpack:"waypoint"`
	TargetID      string                `msgpack:"targetId"`
	LastAttackAt  time.Time             `msgpack:"lastAttackAt"`
	StatusEffects []combat.StatusEffect `msgpack:"statusEffects"`
}

// OrganicMatter 可收集资源
type OrganicMatter struct {
	ID        string   `msgpack:"id"`
	ClusterID string   `msgpack:"clusterId"`
	Position  Vec      `msgpack:"position"`
	Quantity  float64  `msgpack:"quantity"`
	Nutrients []string `msgpack:"nutrients"`
}

// Obstacle 静态几何（中心 + 半边长）
type Obstacle struct {
	ID         string `msgpack:"id"`
	Position   Vec    `msgpack:"position"`
	HalfExtent Vec    `msgpack:"halfExtent"`
	Impassable bool   `msgpack:"impassable"`
}

// RoomObject 可被攻击的交互物件，State 为不透明属性包
type RoomObject struct {
	ID       string         `msgpack:"id"`
	Kind     string         `msgpack:"kind"`
	Position Vec            `msgpack:"position"`
	Radius   float64        `msgpack:"radius"`
	State    map[string]any `msgpack:"state"`
}

// Cluster 有机物簇，重生以簇为单位
type Cluster struct {
	ID     string  `msgpack:"id"`
	Center Vec     `msgpack:"center"`
	Radius float64 `msgpack:"radius"`
}

// RespawnGroup 同一簇内等待整体重生的一组资源
type RespawnGroup struct {
	ID        string          `msgpack:"id"`
	ClusterID string          `msgpack:"clusterId"`
	RespawnAt time.Time       `msgpack:"respawnAt"`
	Members   []OrganicMatter `msgpack:"members"`
}

// NPCRespawn 待重生的 NPC
type NPCRespawn struct {
	Species   string    `msgpack:"species"`
	RespawnAt time.Time `msgpack:"respawnAt"`
}

// DamagePopup 伤害飘字（仅用于客户端展示）
type DamagePopup struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Value     int     `json:"value"`
	Variant   string  `json:"variant"`
	CreatedAt int64   `json:"createdAt"`
}

// StatusEvent 状态效果施加事件
type StatusEvent struct {
	TargetID   string `json:"targetId"`
	TargetKind string `json:"targetKind"`
	Tag        string `json:"tag"`
	Stacks     int    `json:"stacks"`
	ExpiresAt  int64  `json:"expiresAt"`
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// ObjectHealth 物件的生命值（state["health"]）；没有该键则不可被攻击
func (o *RoomObject) ObjectHealth() (float64, bool) {
	if o.State == nil {
		return 0, false
	}
	if d, _ := o.State["destroyed"].(bool); d {
		return 0, false
	}
	return numberOf(o.State["health"])
}
