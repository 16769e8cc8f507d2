package world

import "math"

// Vec 二维向量
type Vec struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(f float64) Vec { return Vec{v.X * f, v.Y * f} }
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64 { return v.Sub(o).Len() }
func (v Vec) IsZero() bool { return v.X == 0 && v.Y == 0 }
func (v Vec) Finite() bool { return finite(v.X) && finite(v.Y) }
func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
func polar(angle, r float64) Vec { return Vec{math.Cos(angle) * r, math.Sin(angle) * r} }

// Normalize 单位向量；零向量返回零
func (v Vec) Normalize() Vec {
	l := v.Len()
	if l == 0 || !finite(l) {
		return Vec{}
	}
	return Vec{v.X / l, v.Y / l}
}

// ClampLen 长度上限
func (v Vec) ClampLen(max float64) Vec {
	l := v.Len()
	if !finite(l) {
		return Vec{}
	}
	if l > max {
		return v.Scale(max / l)
	}
	return v
}
