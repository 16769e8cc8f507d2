// Package combat 无状态的伤害结算与属性推导
package combat

import "math"

// Element 元素属性
type Element string

const (
	ElementNone  Element = ""
	ElementAcid  Element = "acid"
	ElementBio   Element = "bio"
	ElementToxin Element = "toxin"
	ElementHeat  Element = "heat"
)

// Relation 元素克制关系，决定客户端伤害飘字样式
type Relation string

const (
	RelationAdvantage    Relation = "advantage"
	RelationNeutral      Relation = "neutral"
	RelationDisadvantage Relation = "disadvantage"
)

// Band 乘区夹取范围
type Band struct {
	Min float64
	Max float64
}

func (b Band) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Tables 伤害常量（外部配置，核心只读）
type Tables struct {
	// Beats[a] 中的元素被 a 克制
	Beats                  map[Element][]Element
	AdvantageMultiplier    float64
	DisadvantageMultiplier float64
	AffinityBonus          float64
	StabilityCap           float64

	RelationBand    Band
	AffinityBand    Band
	ResistanceBand  Band
	SituationalBand Band
	ComboBand       Band

	MaxHitDamage float64
}

// DefaultTables 内置常量
func DefaultTables() Tables {
	return Tables{
		Beats: map[Element][]Element{
			ElementAcid:  {ElementBio},
			ElementBio:   {ElementToxin},
			ElementToxin: {ElementHeat},
			ElementHeat:  {ElementAcid},
		},
		AdvantageMultiplier:    1.5,
		DisadvantageMultiplier: 0.75,
		AffinityBonus:          1.1,
		StabilityCap:           0.6,
		RelationBand:           Band{Min: 0.5, Max: 2},
		AffinityBand:           Band{Min: 1, Max: 1.5},
		ResistanceBand:         Band{Min: 0.25, Max: 1.5},
		SituationalBand:        Band{Min: 0.5, Max: 2},
		ComboBand:              Band{Min: 1, Max: 5},
		MaxHitDamage:           500,
	}
}

// Attacker 攻击方参数
type Attacker struct {
	Attack      float64
	Penetration float64
	Element     Element // 攻击方自身（原型）元素
	Combo       float64
}

// Defender 防御方参数
type Defender struct {
	Defense     float64
	Stability   float64 // 0..1
	Element     Element
	Resistances map[Element]float64
}

// Context 本次攻击的元素与情境修正
type Context struct {
	Element     Element // 技能元素；为空时取攻击方元素
	Power       float64 // 技能倍率；0 视为 1
	Situational float64 // 0 视为 1
}

// Result 结算结果
type Result struct {
	Damage   int
	Relation Relation
}

// RelationOf 判定 attack 对 defend 的克制关系
func RelationOf(t Tables, attack, defend Element) Relation {
	if attack == ElementNone || defend == ElementNone || attack == defend {
		return RelationNeutral
	}
	for _, e := range t.Beats[attack] {
		if e == defend {
			return RelationAdvantage
		}
	}
	for _, e := range t.Beats[defend] {
		if e == attack {
			return RelationDisadvantage
		}
	}
	return RelationNeutral
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func orOne(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return v
}

// ResolveDamage 伤害公式：
// mitigated = max(base×(1−cap×stability), base−max(0, defense−penetration))
// total = 克制 × 亲和 × 抗性 × 情境 × 连击，各乘区先夹取再相乘
func ResolveDamage(a Attacker, d Defender, ctx Context, t Tables) Result {
	element := ctx.Element
	if element == ElementNone {
		element = a.Element
	}
	relation := RelationOf(t, element, d.Element)

	base := finite(a.Attack) * orOne(ctx.Power)
	if base <= 0 {
		return Result{Damage: 0, Relation: relation}
	}
	stability := math.Min(math.Max(finite(d.Stability), 0), 1)
	byStability := base * (1 - t.StabilityCap*stability)
	byDefense := base - math.Max(0, finite(d.Defense)-finite(a.Penetration))
	mitigated := math.Max(byStability, byDefense)

	relationMul := 1.0
	switch relation {
	case RelationAdvantage:
		relationMul = t.AdvantageMultiplier
	case RelationDisadvantage:
		relationMul = t.DisadvantageMultiplier
	}
	affinity := 1.0
	if a.Element != ElementNone && element == a.Element {
		affinity = t.AffinityBonus
	}
	resistance := 1 - finite(d.Resistances[element])

	total := t.RelationBand.clamp(relationMul) *
		t.AffinityBand.clamp(affinity) *
		t.ResistanceBand.clamp(resistance) *
		t.SituationalBand.clamp(orOne(ctx.Situational)) *
		t.ComboBand.clamp(orOne(a.Combo))

	raw := finite(mitigated * total)
	dmg := math.Round(math.Max(0, raw))
	if t.MaxHitDamage > 0 && dmg > t.MaxHitDamage {
		dmg = t.MaxHitDamage
	}
	return Result{Damage: int(dmg), Relation: relation}
}

// Attributes 战斗属性
type Attributes struct {
	Attack  float64 `json:"attack" msgpack:"attack"`
	Defense float64 `json:"defense" msgpack:"defense"`
	Speed   float64 `json:"speed" msgpack:"speed"`
	Range   float64 `json:"range" msgpack:"range"`
}

// Modifiers 进化带来的修正：先加法，后按百分比乘法（0.1 表示 ×1.1）
type Modifiers struct {
	Additive Attributes `json:"additive" msgpack:"additive"`
	Percent  Attributes `json:"percent" msgpack:"percent"`
}

// Add 叠加另一组修正
func (m Modifiers) Add(o Modifiers) Modifiers {
	return Modifiers{
		Additive: Attributes{
			Attack:  m.Additive.Attack + o.Additive.Attack,
			Defense: m.Additive.Defense + o.Additive.Defense,
			Speed:   m.Additive.Speed + o.Additive.Speed,
			Range:   m.Additive.Range + o.Additive.Range,
		},
		Percent: Attributes{
			Attack:  m.Percent.Attack + o.Percent.Attack,
			Defense: m.Percent.Defense + o.Percent.Defense,
			Speed:   m.Percent.Speed + o.Percent.Speed,
			Range:   m.Percent.Range + o.Percent.Range,
		},
	}
}

// DeriveAttributes (base + additive) × (1 + percent)，结果不小于 0
func DeriveAttributes(base Attributes, m Modifiers) Attributes {
	calc := func(b, add, pct float64) float64 {
		v := (b + add) * (1 + pct)
		if v < 0 || math.IsNaN(v) {
			return 0
		}
		return v
	}
	return Attributes{
		Attack:  calc(base.Attack, m.Additive.Attack, m.Percent.Attack),
		Defense: calc(base.Defense, m.Additive.Defense, m.Percent.Defense),
		Speed:   calc(base.Speed, m.Additive.Speed, m.Percent.Speed),
		Range:   calc(base.Range, m.Additive.Range, m.Percent.Range),
	}
}
