package server

import (
	"sync"
	"time"
)

// Clock 房间唯一的唤醒源：同一时刻只登记一个唤醒时间
type Clock interface {
	Now() time.Time
	// ScheduleAt 替换之前登记的唤醒
	ScheduleAt(at time.Time, tag string)
	Stop()
}

// timerClock 基于单个 time.Timer；到期时调用 wake（投递到房间 inbox）
type timerClock struct {
	mu    sync.Mutex
	timer *time.Timer
	wake  func(tag string)
}

func NewTimerClock(wake func(tag string)) Clock {
	return &timerClock{wake: wake}
}

func (c *timerClock) Now() time.Time { return time.Now() }

func (c *timerClock) ScheduleAt(at time.Time, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	c.timer = time.AfterFunc(d, func() { c.wake(tag) })
}

func (c *timerClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
