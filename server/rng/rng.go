// Package rng 管理房间内按名称区分、相互独立的确定性随机数流
//
// 每条流的状态是一个 32 位整数，持久化后重启可继续同一序列，
// 便于重放与排查（例如有机物重生的位置和延迟）。
package rng

import (
	"hash/fnv"
	"sort"
)

// 房间使用的随机流名称
const (
	StreamOrganicRespawn = "organicMatterRespawn"
	StreamProgression    = "progression"
	StreamWaypoint       = "microorganismWaypoint"
	StreamPlayerSpawn    = "playerSpawn"
)

// Stream mulberry32 生成器
type Stream struct {
	state uint32
	owner *Manager
}

func (s *Stream) next() uint32 {
	s.state += 0x6D2B79F5
	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	if s.owner != nil {
		s.owner.dirty = true
	}
	return t ^ (t >> 14)
}

// Uint32 下一个 32 位值
func (s *Stream) Uint32() uint32 { return s.next() }

// Float64 返回 [0,1)
func (s *Stream) Float64() float64 {
	return float64(s.next()) / 4294967296.0
}

// Intn 返回 [0,n)；n<=0 时返回 0
func (s *Stream) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Float64() * float64(n))
}

// Range 返回 [min,max)
func (s *Stream) Range(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + s.Float64()*(max-min)
}

// State 当前内部状态（持久化用）
func (s *Stream) State() uint32 { return s.state }

// Manager 持有全部命名流，并跟踪是否有未持久化的推进
type Manager struct {
	seed    string
	streams map[string]*Stream
	dirty   bool
}

// NewManager 以房间种子创建；各流初始状态由 (seed, name) 哈希得到
func NewManager(seed string) *Manager {
	return &Manager{seed: seed, streams: make(map[string]*Stream)}
}

// DeriveSeed FNV-1a(seed + "/" + name)
func DeriveSeed(seed, name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write([]byte{'/'})
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// Stream 获取（必要时创建）命名流
func (m *Manager) Stream(name string) *Stream {
	if s, ok := m.streams[name]; ok {
		return s
	}
	s := &Stream{state: DeriveSeed(m.seed, name), owner: m}
	m.streams[name] = s
	m.dirty = true
	return s
}

// State 导出全部流状态
func (m *Manager) State() map[string]uint32 {
	out := make(map[string]uint32, len(m.streams))
	for name, s := range m.streams {
		out[name] = s.state
	}
	return out
}

// Restore 用持久化状态覆盖（未出现的流保持原状）
func (m *Manager) Restore(state map[string]uint32) {
	for name, v := range state {
		if s, ok := m.streams[name]; ok {
			s.state = v
			continue
		}
		m.streams[name] = &Stream{state: v, owner: m}
	}
	m.dirty = false
}

// Names 已知流名称（有序）
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.streams))
	for name := range m.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dirty 是否存在未持久化的推进
func (m *Manager) Dirty() bool { return m.dirty }

// MarkClean 持久化成功后调用
func (m *Manager) MarkClean() { m.dirty = false }
