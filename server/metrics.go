package server

import (
	"sync/atomic"
	"time"
)

// RoomMetrics 房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount        int64 // Tick 次数
	TotalTickNs      int64 // Tick 累计耗时（纳秒）
	MessagesAccepted int64 // 通过限流与解码的客户端消息
	RateLimited      int64 // 被限流拒绝的消息
	ProtocolRejects  int64 // 因协议错误关闭的连接
	Joins            int64
	Reconnects       int64
	JoinRejects      int64
	Removals         int64 // 被移出房间的玩家
	MessagesSent     int64
	SendDropped      int64 // 发送队列已满被丢弃
	PersistFailures  int64
}

func (m *RoomMetrics) IncAccepted()        { atomic.AddInt64(&m.MessagesAccepted, 1) }
func (m *RoomMetrics) IncRateLimited()     { atomic.AddInt64(&m.RateLimited, 1) }
func (m *RoomMetrics) IncProtocolRejects() { atomic.AddInt64(&m.ProtocolRejects, 1) }
func (m *RoomMetrics) IncJoins()           { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncReconnects()      { atomic.AddInt64(&m.Reconnects, 1) }
func (m *RoomMetrics) IncJoinRejects()     { atomic.AddInt64(&m.JoinRejects, 1) }
func (m *RoomMetrics) IncRemovals()        { atomic.AddInt64(&m.Removals, 1) }
func (m *RoomMetrics) IncSent()            { atomic.AddInt64(&m.MessagesSent, 1) }
func (m *RoomMetrics) IncSendDropped()     { atomic.AddInt64(&m.SendDropped, 1) }
func (m *RoomMetrics) IncPersistFailures() { atomic.AddInt64(&m.PersistFailures, 1) }

func (m *RoomMetrics) AddTick(d time.Duration) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, d.Nanoseconds())
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":        tick,
		"avg_tick_ms":       avgMs,
		"messages_accepted": atomic.LoadInt64(&m.MessagesAccepted),
		"rate_limited":      atomic.LoadInt64(&m.RateLimited),
		"protocol_rejects":  atomic.LoadInt64(&m.ProtocolRejects),
		"joins":             atomic.LoadInt64(&m.Joins),
		"reconnects":        atomic.LoadInt64(&m.Reconnects),
		"join_rejects":      atomic.LoadInt64(&m.JoinRejects),
		"removals":          atomic.LoadInt64(&m.Removals),
		"messages_sent":     atomic.LoadInt64(&m.MessagesSent),
		"send_dropped":      atomic.LoadInt64(&m.SendDropped),
		"persist_failures":  atomic.LoadInt64(&m.PersistFailures),
	}
}
