package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"microarena/server/combat"
	"microarena/server/content"
	"microarena/server/ratelimit"
	"microarena/server/rng"
	"microarena/server/store"
	"microarena/server/world"
)

// ErrRoomClosed 房间已停止
var ErrRoomClosed = errors.New("room closed")

type eventKind int

const (
	evAttach eventKind = iota
	evFrame
	evClose
	evAlarm
	evCall
)

// event 房间 inbox 中的事件：帧、断开、闹钟、闭包调用共用一个队列
type event struct {
	kind eventKind
	conn Conn
	data []byte
	fn   func(*Room)
	done chan struct{}
}

// connState 单个连接的限流与绑定的玩家
type connState struct {
	limiter  *ratelimit.Window
	playerID string
}

// Room 房间 actor：全部状态只在 Run 的单一 goroutine 中读写
type Room struct {
	ID string

	cfg     Config
	log     *zap.SugaredLogger
	kv      store.Store
	clock   Clock
	catalog *content.Catalog
	rng     *rng.Manager
	world   *world.State
	sim     *world.Simulator

	sessions *SessionRegistry
	alarms   *AlarmScheduler
	ranking  *Ranking
	metrics  *RoomMetrics

	conns   map[Conn]*connState
	sockets map[string]Conn // 玩家 id → 当前唯一连接
	global  *ratelimit.Window

	phase          Phase
	roundID        string
	roundNumber    int
	roundStartedAt time.Time
	roundEndsAt    time.Time
	tickSeq        uint64

	snapshotDirty bool
	gameCache     json.RawMessage
	gameChanged   bool

	inbox   chan event
	stop    chan struct{}
	stopped chan struct{}
}

// NewRoom 创建房间；clock 为 nil 时使用真实定时器。调用方需先 Load 再 Run
func NewRoom(id string, cfg Config, kv store.Store, clock Clock) *Room {
	seed := cfg.Room.Seed
	if seed == "" {
		seed = id
	}
	r := &Room{
		ID:      id,
		cfg:     cfg,
		log:     Log.With("room", id),
		kv:      kv,
		catalog: content.Default(),
		rng:     rng.NewManager(seed),
		world:   world.NewState(),
		ranking: NewRanking(),
		metrics: &RoomMetrics{},
		conns:   make(map[Conn]*connState),
		sockets: make(map[string]Conn),
		global:  ratelimit.New(1, cfg.Room.RateLimitWindow.Duration),
		phase:   PhaseWaiting,
		inbox:   make(chan event, 256),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if clock == nil {
		clock = NewTimerClock(func(string) { r.post(event{kind: evAlarm}) })
	}
	r.clock = clock
	r.sim = world.NewSimulator(cfg.WorldSim(), r.catalog, combat.DefaultTables(), r.rng)
	r.world.SetPopupCap(r.sim.Config().MaxDamagePopupsPerTick)
	r.sessions = NewSessionRegistry(r.world, r.catalog, cfg.Room.MaxPlayers, cfg.Room.ReconnectWindow.Duration)
	r.alarms = NewAlarmScheduler(clock)
	return r
}

// Metrics 运行指标（原子计数，可在任意 goroutine 读取）
func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Run 处理 inbox 直到 ctx 结束或 Stop；退出前强制刷盘
func (r *Room) Run(ctx context.Context) {
	defer close(r.stopped)
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return
		case <-r.stop:
			r.shutdown()
			return
		case ev := <-r.inbox:
			r.dispatch(ev)
		}
	}
}

// Stop 请求停止；可重复调用
func (r *Room) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Done Run 退出后关闭
func (r *Room) Done() <-chan struct{} { return r.stopped }

func (r *Room) post(ev event) bool {
	select {
	case r.inbox <- ev:
		return true
	case <-r.stopped:
		return false
	}
}

// Attach 新连接进入房间
func (r *Room) Attach(c Conn) { r.post(event{kind: evAttach, conn: c}) }

// Deliver 投递一帧客户端数据
func (r *Room) Deliver(c Conn, data []byte) { r.post(event{kind: evFrame, conn: c, data: data}) }

// Disconnected 连接的读循环退出
func (r *Room) Disconnected(c Conn) { r.post(event{kind: evClose, conn: c}) }

// Do 在房间 goroutine 中执行 fn 并等待完成
func (r *Room) Do(ctx context.Context, fn func(*Room)) error {
	done := make(chan struct{})
	if !r.post(event{kind: evCall, fn: fn, done: done}) {
		return ErrRoomClosed
	}
	select {
	case <-done:
		return nil
	case <-r.stopped:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) dispatch(ev event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("room event panicked", "kind", ev.kind, "panic", rec, zap.Stack("stack"))
			if ev.done != nil {
				close(ev.done)
			}
		}
	}()
	now := r.clock.Now()
	switch ev.kind {
	case evAttach:
		r.attach(ev.conn)
	case evFrame:
		r.onFrame(ev.conn, ev.data, now)
	case evClose:
		r.detach(ev.conn, now)
	case evAlarm:
		r.onAlarm(now)
	case evCall:
		ev.fn(r)
		close(ev.done)
		ev.done = nil
	}
	r.settle()
}

// settle 每个事件之后：持久化变化过的生命周期闹钟，并重新登记最早的唤醒
func (r *Room) settle() {
	if r.alarms.LifecycleDirty() {
		r.persistAlarms()
	}
	r.alarms.Rearm()
}

func (r *Room) attach(c Conn) *connState {
	if cs, ok := r.conns[c]; ok {
		return cs
	}
	cs := &connState{limiter: ratelimit.New(r.cfg.Room.MaxMessagesPerConnection, r.cfg.Room.RateLimitWindow.Duration)}
	r.conns[c] = cs
	return cs
}

// reject 协议错误：回复原因并关闭连接
func (r *Room) reject(c Conn, reason Reason, code int, now time.Time) {
	r.metrics.IncProtocolRejects()
	r.sendError(c, reason)
	c.Close(code, string(reason))
	r.detach(c, now)
}

// onFrame 大小检查 → 限流 → 解码 → 分发
func (r *Room) onFrame(c Conn, data []byte, now time.Time) {
	cs := r.attach(c)
	if len(data) > r.cfg.Room.MaxClientMessageSize {
		r.reject(c, ReasonInvalidPayload, CloseMessageTooBig, now)
		return
	}

	r.global.SetLimit(ratelimit.GlobalLimit(len(r.conns), r.cfg.Room.MaxMessagesPerConnection, r.cfg.Room.GlobalRateHeadroom))
	// 两个窗口都有余量时才同时计数，被全局窗口拒绝的帧不占单连接名额
	if cs.limiter.Count(now) >= cs.limiter.Limit() {
		r.rateLimited(c, cs.limiter.RetryAfter(now))
		return
	}
	if !r.global.Consume(now) {
		r.rateLimited(c, r.global.RetryAfter(now))
		return
	}
	cs.limiter.Consume(now)

	if !utf8.Valid(data) {
		r.reject(c, ReasonInvalidPayload, CloseInvalidPayload, now)
		return
	}
	msg, err := DecodeClientMessage(data)
	if err != nil {
		r.log.Debugw("malformed frame", "err", err)
		r.reject(c, ReasonInvalidPayload, CloseInvalidPayload, now)
		return
	}
	r.metrics.IncAccepted()

	switch m := msg.(type) {
	case *JoinMessage:
		r.handleJoin(c, cs, m, now)
	case *ActionMessage:
		r.handleAction(c, cs, m, now)
	case *PingMessage:
		r.sendTo(c, PongMessage{Type: "pong", TS: m.TS, ServerTime: now.UnixMilli()})
	}
}

func (r *Room) rateLimited(c Conn, retry time.Duration) {
	r.metrics.IncRateLimited()
	ms := int64(math.Ceil(float64(retry) / float64(time.Millisecond)))
	if ms < 1 {
		ms = 1
	}
	r.sendTo(c, ErrorMessage{Type: "error", Reason: ReasonRateLimited, RetryAfterMs: ms})
}

// onAlarm 按时间升序处理所有到期闹钟
func (r *Room) onAlarm(now time.Time) {
	r.alarms.Fired()
	for _, kind := range r.alarms.Due(now) {
		switch kind {
		case AlarmWorldTick:
			r.onWorldTick(now)
		case AlarmWaitingStart:
			r.onCountdownDone(now)
		case AlarmRoundEnd:
			r.endRound(now, endTimeUp)
		case AlarmReset:
			r.resetRound(now)
		case AlarmCleanup:
			r.sweep(now)
		case AlarmSnapshotFlush:
			_ = r.flushSnapshot(now)
		case AlarmRNGFlush:
			_ = r.flushRNG(now)
		}
	}
}

func (r *Room) shutdown() {
	now := r.clock.Now()
	if err := r.forceFlush(now); err != nil {
		r.log.Errorw("final flush failed", "err", err)
	}
	if r.alarms.LifecycleDirty() {
		r.persistAlarms()
	}
	r.alarms.Disarm()
	for c := range r.conns {
		c.Close(CloseGoingAway, "server shutting down")
	}
	r.log.Infow("room stopped", "ticks", r.tickSeq)
}
