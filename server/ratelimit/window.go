// Package ratelimit 提供滑动窗口消息速率统计（单连接与房间全局共用）
package ratelimit

import (
	"math"
	"time"
)

// Window 滑动窗口计数器：只记录被接受的请求时间戳
// 时间戳追加到切片尾部，过期项从 head 前移剔除（均摊 O(1)）
type Window struct {
	limit  int
	window time.Duration
	stamps []time.Time
	head   int
}

// New 创建限流窗口；limit 小于 1 时按 1 处理
func New(limit int, window time.Duration) *Window {
	if limit < 1 {
		limit = 1
	}
	return &Window{limit: limit, window: window}
}

// Limit 当前窗口上限
func (w *Window) Limit() int { return w.limit }

// SetLimit 动态调整上限（房间全局计数随连接数变化）
func (w *Window) SetLimit(n int) {
	if n < 1 {
		n = 1
	}
	w.limit = n
}

// SetWindow 调整窗口长度（管理接口热更新）
func (w *Window) SetWindow(d time.Duration) {
	if d > 0 {
		w.window = d
	}
}

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	for w.head < len(w.stamps) && !w.stamps[w.head].After(cutoff) {
		w.head++
	}
	// head 越过一半时压缩，避免切片无限增长
	if w.head > 0 && w.head*2 >= len(w.stamps) {
		n := copy(w.stamps, w.stamps[w.head:])
		w.stamps = w.stamps[:n]
		w.head = 0
	}
}

// Count 窗口内已计入的请求数
func (w *Window) Count(now time.Time) int {
	w.prune(now)
	return len(w.stamps) - w.head
}

// Consume 尝试占用一个名额：有余量则记录并返回 true
func (w *Window) Consume(now time.Time) bool {
	w.prune(now)
	if len(w.stamps)-w.head >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// RetryAfter 距离最早一条计数消息离开窗口的时间；有余量时为 0
func (w *Window) RetryAfter(now time.Time) time.Duration {
	w.prune(now)
	if len(w.stamps)-w.head < w.limit {
		return 0
	}
	// 需要移出的条数：超出上限的部分 + 1
	idx := w.head + (len(w.stamps) - w.head - w.limit)
	wait := w.stamps[idx].Add(w.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}

// GlobalLimit 房间全局上限 = 连接数 × 单连接上限 × 余量系数，最小为 1
func GlobalLimit(connections, perConnection int, headroom float64) int {
	if connections < 0 || perConnection < 0 || headroom <= 0 || math.IsNaN(headroom) {
		return 1
	}
	n := int(math.Floor(float64(connections) * float64(perConnection) * headroom))
	if n < 1 {
		return 1
	}
	return n
}
