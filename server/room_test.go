package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"microarena/server/content"
	"microarena/server/store"
	"microarena/server/world"
)

type fakeClock struct {
	now       time.Time
	at        time.Time
	tag       string
	scheduled int
	stopped   bool
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) ScheduleAt(at time.Time, tag string) {
	c.at, c.tag = at, tag
	c.scheduled++
	c.stopped = false
}

func (c *fakeClock) Stop() { c.stopped = true }

type fakeConn struct {
	msgs   [][]byte
	closed bool
	code   int
	reason string
}

func (c *fakeConn) Send(b []byte) bool {
	if c.closed {
		return false
	}
	c.msgs = append(c.msgs, b)
	return true
}

func (c *fakeConn) Close(code int, reason string) {
	if c.closed {
		return
	}
	c.closed, c.code, c.reason = true, code, reason
}

func (c *fakeConn) types() []string {
	out := make([]string, 0, len(c.msgs))
	for _, b := range c.msgs {
		var env envelope
		_ = json.Unmarshal(b, &env)
		out = append(out, env.Type)
	}
	return out
}

// last 解码最近一条指定类型的消息
func (c *fakeConn) last(typ string, v any) bool {
	for i := len(c.msgs) - 1; i >= 0; i-- {
		var env envelope
		if err := json.Unmarshal(c.msgs[i], &env); err != nil || env.Type != typ {
			continue
		}
		return json.Unmarshal(c.msgs[i], v) == nil
	}
	return false
}

func (c *fakeConn) count(typ string) int {
	n := 0
	for _, t := range c.types() {
		if t == typ {
			n++
		}
	}
	return n
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRoomConfig() Config {
	cfg := DefaultConfig()
	cfg.World.Obstacles = 0
	cfg.World.RoomObjects = 0
	cfg.World.Clusters = 0
	cfg.World.Microorganisms = 0
	return cfg
}

func newTestRoom(t *testing.T, kv store.Store, mutate func(*Config)) (*Room, *fakeClock) {
	t.Helper()
	cfg := testRoomConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	if kv == nil {
		kv = store.NewMemory()
	}
	clk := &fakeClock{now: testStart}
	r := NewRoom("test-room", cfg, kv, clk)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("load room: %v", err)
	}
	return r, clk
}

func sendFrame(r *Room, c Conn, msg any) {
	b, _ := json.Marshal(msg)
	r.dispatch(event{kind: evFrame, conn: c, data: b})
}

func joinAs(t *testing.T, r *Room, c *fakeConn, name string) JoinedMessage {
	t.Helper()
	sendFrame(r, c, map[string]any{"type": "join", "name": name, "version": "1.2.0"})
	var j JoinedMessage
	if !c.last("joined", &j) {
		t.Fatalf("%s was not joined, got %v", name, c.types())
	}
	return j
}

func act(r *Room, c Conn, playerID string, action map[string]any) {
	sendFrame(r, c, map[string]any{"type": "action", "playerId": playerID, "action": action})
}

func advance(r *Room, clk *fakeClock, d time.Duration) {
	clk.now = clk.now.Add(d)
	r.dispatch(event{kind: evAlarm})
}

func lastError(t *testing.T, c *fakeConn) ErrorMessage {
	t.Helper()
	var e ErrorMessage
	if !c.last("error", &e) {
		t.Fatalf("expected an error message, got %v", c.types())
	}
	return e
}

func TestTwoPlayersJoinStartsRoundAfterCountdown(t *testing.T) {
	r, clk := newTestRoom(t, nil, nil)
	a, b := &fakeConn{}, &fakeConn{}

	joinAs(t, r, a, "alice")
	if _, ok := r.alarms.At(AlarmWaitingStart); ok {
		t.Fatalf("countdown must not start with a single player")
	}
	joinAs(t, r, b, "bob")
	if r.phase != PhaseWaiting {
		t.Fatalf("expected waiting during countdown, got %s", r.phase)
	}
	at, ok := r.alarms.At(AlarmWaitingStart)
	if !ok || !at.Equal(testStart.Add(5*time.Second)) {
		t.Fatalf("expected countdown alarm at +5s, got %v %v", at, ok)
	}

	advance(r, clk, 5*time.Second)

	if r.phase != PhaseActive {
		t.Fatalf("expected active round, got %s", r.phase)
	}
	if r.roundID == "" || r.roundNumber != 1 {
		t.Fatalf("unexpected round identity %q #%d", r.roundID, r.roundNumber)
	}
	if end, ok := r.alarms.At(AlarmRoundEnd); !ok || !end.Equal(clk.now.Add(3*time.Minute)) {
		t.Fatalf("expected round_end alarm, got %v %v", end, ok)
	}
	var st StateMessage
	if !a.last("state", &st) || st.Mode != "full" {
		t.Fatalf("expected full state on round start, got %v", a.types())
	}
}

func TestCountdownCancelledWhenPlayerLeaves(t *testing.T) {
	r, _ := newTestRoom(t, nil, nil)
	a, b := &fakeConn{}, &fakeConn{}
	joinAs(t, r, a, "alice")
	joinAs(t, r, b, "bob")

	r.dispatch(event{kind: evClose, conn: b})

	if _, ok := r.alarms.At(AlarmWaitingStart); ok {
		t.Fatalf("countdown should be cancelled below the minimum")
	}
	var left PlayerLeftMessage
	if !a.last("player_left", &left) || left.Reason != "disconnected" {
		t.Fatalf("expected player_left disconnected, got %v", a.types())
	}
}

func TestScoreWithComboUpdatesRanking(t *testing.T) {
	r, _ := newTestRoom(t, nil, func(c *Config) { c.Room.MinPlayers = 1 })
	a, b := &fakeConn{}, &fakeConn{}
	ja := joinAs(t, r, a, "alice")
	joinAs(t, r, b, "bob")
	if r.phase != PhaseActive {
		t.Fatalf("expected immediate start, got %s", r.phase)
	}

	act(r, a, ja.PlayerID, map[string]any{"type": "combo", "multiplier": 2})
	act(r, a, ja.PlayerID, map[string]any{"type": "score", "amount": 500})

	var rk RankingMessage
	if !b.last("ranking", &rk) {
		t.Fatalf("expected ranking broadcast, got %v", b.types())
	}
	if len(rk.Ranking) != 2 || rk.Ranking[0].PlayerID != ja.PlayerID || rk.Ranking[0].Score != 1000 {
		t.Fatalf("unexpected ranking %+v", rk.Ranking)
	}
}

func TestScoreIsClampedPerAction(t *testing.T) {
	r, _ := newTestRoom(t, nil, func(c *Config) { c.Room.MinPlayers = 1 })
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")

	act(r, a, ja.PlayerID, map[string]any{"type": "combo", "multiplier": 99})
	act(r, a, ja.PlayerID, map[string]any{"type": "score", "amount": 1e9})

	// 倍率夹到 10，单次分数夹到 1000
	if got := r.world.Players[ja.PlayerID].Score; got != 10000 {
		t.Fatalf("expected clamped score 10000, got %d", got)
	}
}

func TestScoreOutsideActiveRoundIsRejected(t *testing.T) {
	r, _ := newTestRoom(t, nil, nil)
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")

	act(r, a, ja.PlayerID, map[string]any{"type": "score", "amount": 10})

	if e := lastError(t, a); e.Reason != ReasonGameNotActive {
		t.Fatalf("expected game_not_active, got %s", e.Reason)
	}
	if a.closed {
		t.Fatalf("game_not_active must not close the socket")
	}
}

func TestCollectedClusterRespawnsOnlyAfterDelay(t *testing.T) {
	r, clk := newTestRoom(t, nil, func(c *Config) {
		c.Room.MinPlayers = 1
		c.World.Clusters = 1
		c.World.ClusterSize = 3
	})
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")
	p := r.world.Players[ja.PlayerID]
	if len(r.world.OrganicMatter) != 3 {
		t.Fatalf("expected 3 organic matter, got %d", len(r.world.OrganicMatter))
	}
	for _, m := range r.world.OrganicMatter {
		m.Position = p.Position
	}

	advance(r, clk, 0)

	if len(r.world.OrganicMatter) != 0 {
		t.Fatalf("expected the whole cluster collected, %d left", len(r.world.OrganicMatter))
	}
	if len(r.world.RespawnGroups) != 1 || len(r.world.RespawnGroups[0].Members) != 3 {
		t.Fatalf("expected one respawn group of 3, got %+v", r.world.RespawnGroups)
	}
	if p.Score <= 0 {
		t.Fatalf("collection should award score")
	}
	respawnAt := r.world.RespawnGroups[0].RespawnAt
	if !respawnAt.After(clk.now) {
		t.Fatalf("respawn must be delayed, respawnAt=%v now=%v", respawnAt, clk.now)
	}

	// 离开资源簇，避免重生后立刻再次被收集
	p.Position = world.Vec{X: 10, Y: 10}
	advance(r, clk, respawnAt.Sub(clk.now)-time.Millisecond)
	if len(r.world.OrganicMatter) != 0 {
		t.Fatalf("nothing may respawn before the delay elapses")
	}
	advance(r, clk, r.sim.Config().TickInterval)
	if len(r.world.OrganicMatter) != 3 {
		t.Fatalf("expected the whole group of 3 to respawn together, got %d", len(r.world.OrganicMatter))
	}
}

func TestNPCKillQueuesDeathAndReconnectRestores(t *testing.T) {
	r, clk := newTestRoom(t, nil, func(c *Config) { c.Room.MinPlayers = 1 })
	first := &fakeConn{}
	ja := joinAs(t, r, first, "alice")
	p := r.world.Players[ja.PlayerID]
	p.Position = world.Vec{X: 500, Y: 500}
	p.Health.Current = 1

	sp, _ := content.Default().SpeciesByID("phage")
	r.world.AddMicroorganism(&world.Microorganism{
		ID:         "mo-test",
		Species:    sp.ID,
		Aggression: sp.Aggression,
		Element:    sp.Element,
		Position:   world.Vec{X: 510, Y: 500},
		Health:     world.Health{Current: sp.MaxHealth, Max: sp.MaxHealth},
		Attributes: sp.Attributes,
		Stability:  sp.Stability,
	})

	advance(r, clk, 0)

	if !p.PendingRemoval || p.Health.Current != 0 {
		t.Fatalf("expected queued death, pending=%v health=%v", p.PendingRemoval, p.Health.Current)
	}
	if first.closed {
		t.Fatalf("socket must stay open after a queued death")
	}
	if at, ok := r.alarms.At(AlarmCleanup); !ok || at.After(clk.now.Add(30*time.Second)) {
		t.Fatalf("expected cleanup alarm within the reconnect window, got %v %v", at, ok)
	}

	clk.now = clk.now.Add(10 * time.Second)
	second := &fakeConn{}
	sendFrame(r, second, map[string]any{
		"type": "join", "name": "alice", "playerId": ja.PlayerID, "reconnectToken": ja.ReconnectToken,
	})
	var jb JoinedMessage
	if !second.last("joined", &jb) {
		t.Fatalf("reconnect failed, got %v", second.types())
	}
	if jb.PlayerID != ja.PlayerID || !jb.Reconnected {
		t.Fatalf("expected the same player id on reconnect, got %+v", jb)
	}
	if len(r.world.Players) != 1 {
		t.Fatalf("reconnect must not duplicate the player, have %d", len(r.world.Players))
	}
	if p.PendingRemoval || p.Health.Current != p.Health.Max {
		t.Fatalf("expected resurrection at full health, got %+v", p.Health)
	}
	if !first.closed || first.code != ClosePolicyViolation {
		t.Fatalf("prior socket should be closed with 1008, closed=%v code=%d", first.closed, first.code)
	}
	if jb.ReconnectToken == ja.ReconnectToken {
		t.Fatalf("reconnect token should rotate")
	}
}

func TestQueuedDeathRemovedAfterWindow(t *testing.T) {
	r, clk := newTestRoom(t, nil, func(c *Config) { c.Room.MinPlayers = 1 })
	a, b := &fakeConn{}, &fakeConn{}
	ja := joinAs(t, r, a, "alice")
	joinAs(t, r, b, "bob")

	act(r, a, ja.PlayerID, map[string]any{"type": "death"})
	if !r.world.Players[ja.PlayerID].PendingRemoval {
		t.Fatalf("expected queued death")
	}

	advance(r, clk, 30*time.Second)

	if _, ok := r.world.Players[ja.PlayerID]; ok {
		t.Fatalf("player should be removed after the reconnect window")
	}
	var left PlayerLeftMessage
	if !b.last("player_left", &left) || left.PlayerID != ja.PlayerID || left.Reason != "death" {
		t.Fatalf("expected player_left death, got %+v", left)
	}
	if a.closed {
		t.Fatalf("socket of a removed dead player stays open")
	}
}

func TestDisconnectedPlayerExpiresAfterWindow(t *testing.T) {
	r, clk := newTestRoom(t, nil, nil)
	a, b := &fakeConn{}, &fakeConn{}
	ja := joinAs(t, r, a, "alice")
	joinAs(t, r, b, "bob")

	r.dispatch(event{kind: evClose, conn: a})
	if r.world.Players[ja.PlayerID].Connected {
		t.Fatalf("expected player marked disconnected")
	}

	advance(r, clk, 29*time.Second)
	if _, ok := r.world.Players[ja.PlayerID]; !ok {
		t.Fatalf("player removed before the window elapsed")
	}
	advance(r, clk, time.Second)
	if _, ok := r.world.Players[ja.PlayerID]; ok {
		t.Fatalf("player should expire after the reconnect window")
	}
	var left PlayerLeftMessage
	if !b.last("player_left", &left) || left.Reason != "expired" {
		t.Fatalf("expected player_left expired, got %+v", left)
	}
}

func TestJoinFrameRejections(t *testing.T) {
	r, _ := newTestRoom(t, nil, func(c *Config) { c.Room.MaxPlayers = 2; c.Room.MinPlayers = 3 })
	joinAs(t, r, &fakeConn{}, "alice")

	tests := []struct {
		name   string
		msg    map[string]any
		reason Reason
		closed bool
	}{
		{"invalid name", map[string]any{"type": "join", "name": "a!"}, ReasonInvalidName, true},
		{"name taken", map[string]any{"type": "join", "name": "ALICE"}, ReasonNameTaken, false},
		{"unknown token", map[string]any{"type": "join", "name": "alice", "reconnectToken": "nope"}, ReasonNameTaken, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeConn{}
			sendFrame(r, c, tt.msg)
			if e := lastError(t, c); e.Reason != tt.reason {
				t.Fatalf("expected %s, got %s", tt.reason, e.Reason)
			}
			if c.closed != tt.closed {
				t.Fatalf("closed=%v, want %v", c.closed, tt.closed)
			}
		})
	}

	joinAs(t, r, &fakeConn{}, "zed")
	full := &fakeConn{}
	sendFrame(r, full, map[string]any{"type": "join", "name": "carol"})
	if e := lastError(t, full); e.Reason != ReasonRoomFull || !full.closed || full.code != ClosePolicyViolation {
		t.Fatalf("expected room_full with 1008, got %s closed=%v code=%d", e.Reason, full.closed, full.code)
	}
}

func TestWrongReconnectTokenIsRejected(t *testing.T) {
	r, _ := newTestRoom(t, nil, nil)
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")

	c := &fakeConn{}
	sendFrame(r, c, map[string]any{"type": "join", "name": "alice", "playerId": ja.PlayerID, "reconnectToken": "forged"})

	if e := lastError(t, c); e.Reason != ReasonInvalidToken {
		t.Fatalf("expected invalid_token, got %s", e.Reason)
	}
	if a.closed {
		t.Fatalf("a forged token must not take over the live socket")
	}
}

func TestOldClientVersionMustUpgrade(t *testing.T) {
	r, _ := newTestRoom(t, nil, nil)
	c := &fakeConn{}
	sendFrame(r, c, map[string]any{"type": "join", "name": "alice", "version": "0.9.3"})

	var up UpgradeRequiredMessage
	if !c.last("upgrade_required", &up) || up.MinVersion != "1.0.0" {
		t.Fatalf("expected upgrade_required, got %v", c.types())
	}
	if !c.closed || c.code != ClosePolicyViolation {
		t.Fatalf("expected close 1008, got closed=%v code=%d", c.closed, c.code)
	}
	if len(r.world.Players) != 0 {
		t.Fatalf("outdated client must not join")
	}
}

func TestFrameValidation(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		code int
	}{
		{"oversize", []byte(`{"type":"ping","ts":1,"pad":"` + strings.Repeat("x", 16*1024) + `"}`), CloseMessageTooBig},
		{"malformed json", []byte(`{"type":`), CloseInvalidPayload},
		{"unknown type", []byte(`{"type":"teleport"}`), CloseInvalidPayload},
		{"invalid utf8", []byte{'{', 0xff, '}'}, CloseInvalidPayload},
		{"unknown action", []byte(`{"type":"action","playerId":"x","action":{"type":"fly"}}`), CloseInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRoom(t, nil, nil)
			c := &fakeConn{}
			r.dispatch(event{kind: evFrame, conn: c, data: tt.data})
			if e := lastError(t, c); e.Reason != ReasonInvalidPayload {
				t.Fatalf("expected invalid_payload, got %s", e.Reason)
			}
			if !c.closed || c.code != tt.code {
				t.Fatalf("expected close %d, got closed=%v code=%d", tt.code, c.closed, c.code)
			}
		})
	}
}

func TestRateLimitedFramesReportRetryAfter(t *testing.T) {
	r, _ := newTestRoom(t, nil, func(c *Config) { c.Room.MaxMessagesPerConnection = 3 })
	c := &fakeConn{}
	for i := 0; i < 5; i++ {
		sendFrame(r, c, map[string]any{"type": "ping", "ts": i})
	}

	if got := c.count("pong"); got != 3 {
		t.Fatalf("expected 3 pongs, got %d", got)
	}
	e := lastError(t, c)
	if e.Reason != ReasonRateLimited || e.RetryAfterMs <= 0 {
		t.Fatalf("expected rate_limited with retryAfterMs > 0, got %+v", e)
	}
	if c.count("error") != 2 || c.closed {
		t.Fatalf("expected 2 rate_limited errors on an open socket, got %v", c.types())
	}
}

func TestGlobalRejectionKeepsConnectionBudget(t *testing.T) {
	r, _ := newTestRoom(t, nil, func(c *Config) {
		c.Room.MaxMessagesPerConnection = 3
		c.Room.GlobalRateHeadroom = 0.34
	})
	c := &fakeConn{}
	sendFrame(r, c, map[string]any{"type": "ping", "ts": 1})
	sendFrame(r, c, map[string]any{"type": "ping", "ts": 2})

	if c.count("pong") != 1 {
		t.Fatalf("expected the room-wide window to admit a single frame, got %v", c.types())
	}
	if e := lastError(t, c); e.Reason != ReasonRateLimited {
		t.Fatalf("expected rate_limited, got %s", e.Reason)
	}
	if got := r.conns[c].limiter.Count(r.clock.Now()); got != 1 {
		t.Fatalf("per-connection window counted %d frames, want 1", got)
	}
}

func TestActionFromUnboundSocketIsUnknownPlayer(t *testing.T) {
	r, _ := newTestRoom(t, nil, nil)
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")

	other := &fakeConn{}
	act(r, other, ja.PlayerID, map[string]any{"type": "movement", "movement": map[string]float64{"x": 1, "y": 0}})

	if e := lastError(t, other); e.Reason != ReasonUnknownPlayer {
		t.Fatalf("expected unknown_player, got %s", e.Reason)
	}
	if !r.world.Players[ja.PlayerID].Movement.IsZero() {
		t.Fatalf("another socket must not steer the player")
	}
}

func TestMovementIsNormalised(t *testing.T) {
	r, _ := newTestRoom(t, nil, nil)
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")
	p := r.world.Players[ja.PlayerID]
	pos := p.Position

	act(r, a, ja.PlayerID, map[string]any{
		"type":     "movement",
		"movement": map[string]float64{"x": 30, "y": 40},
		"position": map[string]float64{"x": 0, "y": 0},
	})

	if l := p.Movement.Len(); l < 0.999 || l > 1.001 {
		t.Fatalf("expected unit movement, got %v", p.Movement)
	}
	if p.Position != pos {
		t.Fatalf("client position must be ignored")
	}
}

func TestRoundEndsAndResets(t *testing.T) {
	r, clk := newTestRoom(t, nil, func(c *Config) { c.Room.MinPlayers = 1 })
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")
	act(r, a, ja.PlayerID, map[string]any{"type": "score", "amount": 10})

	advance(r, clk, 3*time.Minute)
	if r.phase != PhaseEnded {
		t.Fatalf("expected ended phase, got %s", r.phase)
	}
	if _, ok := r.alarms.At(AlarmReset); !ok {
		t.Fatalf("expected reset alarm")
	}

	advance(r, clk, 10*time.Second)
	if a.count("reset") != 1 {
		t.Fatalf("expected a reset broadcast, got %v", a.types())
	}
	if got := r.world.Players[ja.PlayerID].Score; got != 0 {
		t.Fatalf("score should reset, got %d", got)
	}
	// 单人房间重置后立即开始下一回合
	if r.phase != PhaseActive || r.roundNumber != 2 {
		t.Fatalf("expected round 2 active, got %s #%d", r.phase, r.roundNumber)
	}
}

func TestLoadRestoresPlayersAndRound(t *testing.T) {
	kv := store.NewMemory()
	r, clk := newTestRoom(t, kv, func(c *Config) { c.Room.MinPlayers = 1 })
	a := &fakeConn{}
	ja := joinAs(t, r, a, "alice")
	act(r, a, ja.PlayerID, map[string]any{"type": "score", "amount": 42})
	if err := r.forceFlush(clk.now); err != nil {
		t.Fatalf("flush: %v", err)
	}
	r.persistAlarms()

	restored, _ := newTestRoom(t, kv, func(c *Config) { c.Room.MinPlayers = 1 })
	p, ok := restored.world.Players[ja.PlayerID]
	if !ok {
		t.Fatalf("player not restored")
	}
	if p.Connected || p.Score != 42 {
		t.Fatalf("expected disconnected player with score 42, got connected=%v score=%d", p.Connected, p.Score)
	}
	if restored.phase != PhaseActive || restored.roundID != r.roundID {
		t.Fatalf("expected active round %s, got %s %s", r.roundID, restored.phase, restored.roundID)
	}
	if _, ok := restored.alarms.At(AlarmRoundEnd); !ok {
		t.Fatalf("round_end alarm should be restored")
	}

	c := &fakeConn{}
	sendFrame(restored, c, map[string]any{"type": "join", "name": "alice", "playerId": ja.PlayerID, "reconnectToken": ja.ReconnectToken})
	var j JoinedMessage
	if !c.last("joined", &j) || !j.Reconnected {
		t.Fatalf("expected reconnect after restart, got %v", c.types())
	}
}

func TestShutdownClosesSockets(t *testing.T) {
	r, clk := newTestRoom(t, nil, nil)
	a := &fakeConn{}
	joinAs(t, r, a, "alice")

	r.shutdown()

	if !a.closed || a.code != CloseGoingAway {
		t.Fatalf("expected close 1001, got closed=%v code=%d", a.closed, a.code)
	}
	if !clk.stopped {
		t.Fatalf("clock should be stopped")
	}
}

func TestRunProcessesCalls(t *testing.T) {
	r, _ := newTestRoom(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	var phase Phase
	if err := r.Do(context.Background(), func(r *Room) { phase = r.phase }); err != nil {
		t.Fatalf("do: %v", err)
	}
	if phase != PhaseWaiting {
		t.Fatalf("unexpected phase %s", phase)
	}
	cancel()
	<-r.Done()
	if err := r.Do(context.Background(), func(*Room) {}); err != ErrRoomClosed {
		t.Fatalf("expected ErrRoomClosed, got %v", err)
	}
}
