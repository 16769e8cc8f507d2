package world

import "math"

// blocked 圆形(pos, radius) 是否与任一不可通行障碍物重叠（按外扩 AABB 近似）
func blocked(st *State, pos Vec, radius float64) bool {
	for _, o := range st.Obstacles {
		if !o.Impassable {
			continue
		}
		if math.Abs(pos.X-o.Position.X) < o.HalfExtent.X+radius &&
			math.Abs(pos.Y-o.Position.Y) < o.HalfExtent.Y+radius {
			return true
		}
	}
	return false
}

func clampToBounds(pos Vec, cfg Config, radius float64) Vec {
	pos.X = math.Min(math.Max(pos.X, radius), cfg.Width-radius)
	pos.Y = math.Min(math.Max(pos.Y, radius), cfg.Height-radius)
	return pos
}

// moveWithCollision 从 from 尝试移动到 to：整段受阻时按轴分离滑动，仍受阻则原地不动
func moveWithCollision(st *State, cfg Config, from, to Vec, radius float64) (Vec, bool) {
	to = clampToBounds(to, cfg, radius)
	if to == from {
		return from, false
	}
	if !blocked(st, to, radius) {
		return to, true
	}
	if slide := (Vec{X: to.X, Y: from.Y}); slide != from && !blocked(st, slide, radius) {
		return slide, true
	}
	if slide := (Vec{X: from.X, Y: to.Y}); slide != from && !blocked(st, slide, radius) {
		return slide, true
	}
	return from, false
}
