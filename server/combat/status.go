package combat

import "time"

// 状态效果标签
const (
	StatusSlow         = "slow"
	StatusStun         = "stun"
	StatusKnockback    = "knockback"
	StatusPoison       = "poison"
	StatusInvulnerable = "invulnerable"
)

// StatusEffect 带标签、可叠层、绝对过期时间的状态
type StatusEffect struct {
	Tag       string    `json:"tag" msgpack:"tag"`
	Stacks    int       `json:"stacks" msgpack:"stacks"`
	ExpiresAt time.Time `json:"-" msgpack:"expiresAt"`
	Source    string    `json:"source,omitempty" msgpack:"source"`
}

// MergeStatusEffect 同标签叠层（上限 maxStacks，<=0 表示不限）并刷新过期时间
func MergeStatusEffect(list []StatusEffect, tag string, stacks, maxStacks int, expiresAt time.Time, source string) []StatusEffect {
	if stacks < 1 {
		stacks = 1
	}
	for i := range list {
		if list[i].Tag != tag {
			continue
		}
		list[i].Stacks += stacks
		if maxStacks > 0 && list[i].Stacks > maxStacks {
			list[i].Stacks = maxStacks
		}
		list[i].ExpiresAt = expiresAt
		if source != "" {
			list[i].Source = source
		}
		return list
	}
	if maxStacks > 0 && stacks > maxStacks {
		stacks = maxStacks
	}
	return append(list, StatusEffect{Tag: tag, Stacks: stacks, ExpiresAt: expiresAt, Source: source})
}

// PruneExpired 原地移除已过期项
func PruneExpired(list []StatusEffect, now time.Time) []StatusEffect {
	out := list[:0]
	for _, e := range list {
		if now.Before(e.ExpiresAt) {
			out = append(out, e)
		}
	}
	for i := len(out); i < len(list); i++ {
		list[i] = StatusEffect{}
	}
	return out
}

// Stacks 未过期时的层数
func Stacks(list []StatusEffect, tag string, now time.Time) int {
	for _, e := range list {
		if e.Tag == tag && now.Before(e.ExpiresAt) {
			return e.Stacks
		}
	}
	return 0
}

// Has 是否带有未过期的 tag
func Has(list []StatusEffect, tag string, now time.Time) bool {
	return Stacks(list, tag, now) > 0
}
