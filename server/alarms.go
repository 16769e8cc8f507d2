package server

import (
	"sort"
	"time"
)

// AlarmKind 闹钟类型
type AlarmKind string

const (
	AlarmWaitingStart  AlarmKind = "waiting_start"
	AlarmRoundEnd      AlarmKind = "round_end"
	AlarmReset         AlarmKind = "reset"
	AlarmCleanup       AlarmKind = "cleanup"
	AlarmWorldTick     AlarmKind = "world_tick"
	AlarmSnapshotFlush AlarmKind = "snapshot_flush"
	AlarmRNGFlush      AlarmKind = "rng_flush"
)

// Lifecycle 生命周期闹钟需要持久化；Tick 与刷盘闹钟重启后从当前时刻重新开始
func (k AlarmKind) Lifecycle() bool {
	switch k {
	case AlarmWaitingStart, AlarmRoundEnd, AlarmReset, AlarmCleanup:
		return true
	}
	return false
}

// AlarmScheduler 把多个闹钟复用到 Clock 的单一唤醒上
type AlarmScheduler struct {
	clock Clock
	at    map[AlarmKind]time.Time
	armed time.Time
	// lifecycle 闹钟变化后待写入存储
	dirty bool
}

func NewAlarmScheduler(c Clock) *AlarmScheduler {
	return &AlarmScheduler{clock: c, at: make(map[AlarmKind]time.Time)}
}

// Set 设置（或覆盖）某类闹钟
func (a *AlarmScheduler) Set(kind AlarmKind, t time.Time) {
	if cur, ok := a.at[kind]; ok && cur.Equal(t) {
		return
	}
	a.at[kind] = t
	if kind.Lifecycle() {
		a.dirty = true
	}
}

// SetIfAbsent 已存在则保留原时间（用于防抖）
func (a *AlarmScheduler) SetIfAbsent(kind AlarmKind, t time.Time) {
	if _, ok := a.at[kind]; !ok {
		a.Set(kind, t)
	}
}

func (a *AlarmScheduler) Clear(kind AlarmKind) {
	if _, ok := a.at[kind]; !ok {
		return
	}
	delete(a.at, kind)
	if kind.Lifecycle() {
		a.dirty = true
	}
}

func (a *AlarmScheduler) At(kind AlarmKind) (time.Time, bool) {
	t, ok := a.at[kind]
	return t, ok
}

// Due 取出所有已到期的闹钟，按时间升序（同一时间按名称）
func (a *AlarmScheduler) Due(now time.Time) []AlarmKind {
	var due []AlarmKind
	for k, t := range a.at {
		if !t.After(now) {
			due = append(due, k)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		ti, tj := a.at[due[i]], a.at[due[j]]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return due[i] < due[j]
	})
	for _, k := range due {
		a.Clear(k)
	}
	return due
}

// Next 最早的闹钟
func (a *AlarmScheduler) Next() (AlarmKind, time.Time, bool) {
	var (
		kind AlarmKind
		next time.Time
	)
	for k, t := range a.at {
		if next.IsZero() || t.Before(next) || (t.Equal(next) && k < kind) {
			kind, next = k, t
		}
	}
	return kind, next, !next.IsZero()
}

// Rearm 只向 Clock 登记最早的时间；未变化时不重复登记
func (a *AlarmScheduler) Rearm() {
	kind, next, ok := a.Next()
	if !ok {
		if !a.armed.IsZero() {
			a.clock.Stop()
			a.armed = time.Time{}
		}
		return
	}
	if next.Equal(a.armed) {
		return
	}
	a.armed = next
	a.clock.ScheduleAt(next, string(kind))
}

// Fired Clock 唤醒后调用，之后的 Rearm 一定重新登记
func (a *AlarmScheduler) Fired() { a.armed = time.Time{} }

// Disarm 房间停止时释放定时器
func (a *AlarmScheduler) Disarm() {
	a.clock.Stop()
	a.armed = time.Time{}
}

// LifecycleDirty 生命周期闹钟是否有未持久化的变化
func (a *AlarmScheduler) LifecycleDirty() bool { return a.dirty }

func (a *AlarmScheduler) MarkPersisted() { a.dirty = false }

// Lifecycle 导出生命周期闹钟（毫秒时间戳）
func (a *AlarmScheduler) Lifecycle() map[string]int64 {
	out := make(map[string]int64)
	for k, t := range a.at {
		if k.Lifecycle() {
			out[string(k)] = t.UnixMilli()
		}
	}
	return out
}

// RestoreLifecycle 恢复持久化的生命周期闹钟；非生命周期类型忽略
func (a *AlarmScheduler) RestoreLifecycle(saved map[string]int64) {
	for k, ms := range saved {
		kind := AlarmKind(k)
		if kind.Lifecycle() {
			a.at[kind] = time.UnixMilli(ms)
		}
	}
	a.dirty = false
}
