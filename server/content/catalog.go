// Package content 只读内容表：原型、技能、进化、微生物种类
// 核心逻辑只按 id 查表，从不修改。
package content

import (
	"sort"
	"time"

	"microarena/server/combat"
)

// Archetype 玩家原型
type Archetype struct {
	ID          string
	Element     combat.Element
	Base        combat.Attributes
	MaxHealth   float64
	Stability   float64
	Penetration float64
	Resistances map[combat.Element]float64
	Skills      []string
	DashCharges int
}

// HasSkill 原型是否拥有该技能
func (a Archetype) HasSkill(id string) bool {
	for _, s := range a.Skills {
		if s == id {
			return true
		}
	}
	return false
}

// Skill 技能配置
type Skill struct {
	ID             string
	Element        combat.Element
	Power          float64 // 伤害倍率
	Radius         float64 // >0 为范围技能
	Cooldown       time.Duration
	Status         string
	StatusStacks   int
	StatusMax      int
	StatusDuration time.Duration
}

// Evolution 进化：消耗能量换取属性修正
type Evolution struct {
	ID             string
	EnergyCost     float64
	Modifiers      combat.Modifiers
	MaxHealthBonus float64
}

// Aggression NPC 行为倾向
type Aggression string

const (
	AggressionHostile  Aggression = "hostile"
	AggressionNeutral  Aggression = "neutral"
	AggressionSkittish Aggression = "skittish"
)

// Species 微生物种类模板
type Species struct {
	ID             string
	Element        combat.Element
	Aggression     Aggression
	MaxHealth      float64
	Attributes     combat.Attributes
	Stability      float64
	ThreatRange    float64
	AttackCooldown time.Duration
	XP             float64
	Currency       float64
	Score          int64
}

// Catalog 全部内容表
type Catalog struct {
	Archetypes       map[string]Archetype
	Skills           map[string]Skill
	Evolutions       map[string]Evolution
	Species          map[string]Species
	DefaultArchetype string
}

func (c *Catalog) Archetype(id string) (Archetype, bool) {
	a, ok := c.Archetypes[id]
	return a, ok
}

func (c *Catalog) Skill(id string) (Skill, bool) {
	s, ok := c.Skills[id]
	return s, ok
}

func (c *Catalog) Evolution(id string) (Evolution, bool) {
	e, ok := c.Evolutions[id]
	return e, ok
}

func (c *Catalog) SpeciesByID(id string) (Species, bool) {
	s, ok := c.Species[id]
	return s, ok
}

// SpeciesIDs 以固定顺序返回，保证生成世界可复现
func (c *Catalog) SpeciesIDs() []string {
	ids := make([]string, 0, len(c.Species))
	for id := range c.Species {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Default 内置内容表
func Default() *Catalog {
	return &Catalog{
		DefaultArchetype: "amoeba",
		Archetypes: map[string]Archetype{
			"amoeba": {
				ID:          "amoeba",
				Element:     combat.ElementBio,
				Base:        combat.Attributes{Attack: 12, Defense: 4, Speed: 120, Range: 60},
				MaxHealth:   100,
				Stability:   0.6,
				Skills:      []string{"engulf", "spore_burst"},
				DashCharges: 2,
			},
			"bacillus": {
				ID:          "bacillus",
				Element:     combat.ElementAcid,
				Base:        combat.Attributes{Attack: 16, Defense: 2, Speed: 150, Range: 50},
				MaxHealth:   80,
				Stability:   0.4,
				Penetration: 3,
				Skills:      []string{"acid_spray"},
				DashCharges: 3,
			},
			"virion": {
				ID:          "virion",
				Element:     combat.ElementToxin,
				Base:        combat.Attributes{Attack: 10, Defense: 6, Speed: 110, Range: 90},
				MaxHealth:   110,
				Stability:   0.8,
				Resistances: map[combat.Element]float64{combat.ElementToxin: 0.3},
				Skills:      []string{"toxin_cloud", "engulf"},
				DashCharges: 1,
			},
		},
		Skills: map[string]Skill{
			"engulf": {
				ID: "engulf", Element: combat.ElementBio, Power: 1.6,
				Cooldown: 4 * time.Second,
				Status:   combat.StatusSlow, StatusStacks: 1, StatusMax: 3, StatusDuration: 2 * time.Second,
			},
			"spore_burst": {
				ID: "spore_burst", Element: combat.ElementBio, Power: 1.1, Radius: 120,
				Cooldown: 8 * time.Second,
			},
			"acid_spray": {
				ID: "acid_spray", Element: combat.ElementAcid, Power: 1.3, Radius: 80,
				Cooldown: 6 * time.Second,
				Status:   combat.StatusPoison, StatusStacks: 1, StatusMax: 5, StatusDuration: 3 * time.Second,
			},
			"toxin_cloud": {
				ID: "toxin_cloud", Element: combat.ElementToxin, Power: 0.9, Radius: 140,
				Cooldown: 10 * time.Second,
				Status:   combat.StatusPoison, StatusStacks: 2, StatusMax: 6, StatusDuration: 4 * time.Second,
			},
		},
		Evolutions: map[string]Evolution{
			"flagellum": {
				ID: "flagellum", EnergyCost: 30,
				Modifiers: combat.Modifiers{Percent: combat.Attributes{Speed: 0.15}},
			},
			"membrane": {
				ID: "membrane", EnergyCost: 40,
				Modifiers:      combat.Modifiers{Additive: combat.Attributes{Defense: 3}},
				MaxHealthBonus: 20,
			},
			"enzymes": {
				ID: "enzymes", EnergyCost: 50,
				Modifiers: combat.Modifiers{Additive: combat.Attributes{Attack: 4}, Percent: combat.Attributes{Range: 0.1}},
			},
		},
		Species: map[string]Species{
			"phage": {
				ID: "phage", Element: combat.ElementToxin, Aggression: AggressionHostile,
				MaxHealth:      40,
				Attributes:     combat.Attributes{Attack: 8, Defense: 2, Speed: 80, Range: 30},
				Stability:      0.5,
				ThreatRange:    220,
				AttackCooldown: 1200 * time.Millisecond,
				XP:             15, Currency: 4, Score: 50,
			},
			"diatom": {
				ID: "diatom", Element: combat.ElementHeat, Aggression: AggressionSkittish,
				MaxHealth:      25,
				Attributes:     combat.Attributes{Attack: 0, Defense: 1, Speed: 90, Range: 0},
				Stability:      0.3,
				ThreatRange:    160,
				AttackCooldown: time.Second,
				XP:             8, Currency: 2, Score: 20,
			},
			"rotifer": {
				ID: "rotifer", Element: combat.ElementAcid, Aggression: AggressionNeutral,
				MaxHealth:      60,
				Attributes:     combat.Attributes{Attack: 5, Defense: 4, Speed: 50, Range: 25},
				Stability:      0.7,
				ThreatRange:    0,
				AttackCooldown: 2 * time.Second,
				XP:             20, Currency: 6, Score: 60,
			},
		},
	}
}
