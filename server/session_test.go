package server

import (
	"testing"
	"time"

	"microarena/server/content"
	"microarena/server/world"
)

func newTestRegistry(max int) (*SessionRegistry, *world.State) {
	st := world.NewState()
	return NewSessionRegistry(st, content.Default(), max, 30*time.Second), st
}

func spawnAt(v world.Vec) func() world.Vec { return func() world.Vec { return v } }

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ab", false},
		{"abc", true},
		{"  abc  ", true},
		{"Zoë_the-3rd", true},
		{"with space", true},
		{"bad!name", false},
		{"abcdefghijklmnopqrstuvwxy", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidName(tt.name); got != tt.want {
			t.Fatalf("ValidName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsValidReconnect(t *testing.T) {
	token := "secret"
	base := func() *world.Player {
		return &world.Player{ReconnectTokenHash: hashToken(token), Connected: false, LastSeenAt: testStart}
	}
	tests := []struct {
		name  string
		setup func(p *world.Player)
		token string
		now   time.Time
		want  bool
	}{
		{"within window", nil, token, testStart.Add(30 * time.Second), true},
		{"after window", nil, token, testStart.Add(31 * time.Second), false},
		{"wrong token", nil, "other", testStart, false},
		{"empty token", nil, "", testStart, false},
		{"connected", func(p *world.Player) { p.Connected = true }, token, testStart.Add(time.Hour), true},
		{"queued death before removal", func(p *world.Player) {
			p.PendingRemoval, p.RemovalAt = true, testStart.Add(10*time.Second)
		}, token, testStart.Add(9 * time.Second), true},
		{"queued death at removal", func(p *world.Player) {
			p.PendingRemoval, p.RemovalAt = true, testStart.Add(10*time.Second)
		}, token, testStart.Add(10 * time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			if tt.setup != nil {
				tt.setup(p)
			}
			if got := isValidReconnect(p, tt.token, tt.now, 30*time.Second); got != tt.want {
				t.Fatalf("isValidReconnect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasCapacity(t *testing.T) {
	if !hasCapacity(1, 2) || hasCapacity(2, 2) || hasCapacity(3, 2) {
		t.Fatalf("capacity predicate is off by one")
	}
}

func TestJoinAndReconnect(t *testing.T) {
	s, st := newTestRegistry(4)
	res, reason := s.Join(JoinRequest{Name: "Alice"}, testStart, spawnAt(world.Vec{X: 1, Y: 1}))
	if reason != "" {
		t.Fatalf("join rejected: %s", reason)
	}
	if res.Reconnected || res.Token == "" || res.Player.Position != (world.Vec{X: 1, Y: 1}) {
		t.Fatalf("unexpected join result %+v", res)
	}
	if res.Player.ReconnectTokenHash == res.Token {
		t.Fatalf("token must be stored hashed")
	}

	if _, ok := s.Disconnect(res.Player.ID, testStart.Add(time.Second)); !ok {
		t.Fatalf("disconnect failed")
	}
	again, reason := s.Join(JoinRequest{Name: "alice", PlayerID: res.Player.ID, ReconnectToken: res.Token},
		testStart.Add(10*time.Second), spawnAt(world.Vec{X: 9, Y: 9}))
	if reason != "" {
		t.Fatalf("reconnect rejected: %s", reason)
	}
	if again.Player.ID != res.Player.ID || !again.Reconnected || len(st.Players) != 1 {
		t.Fatalf("reconnect should reuse the player, got %+v players=%d", again, len(st.Players))
	}
	if again.Player.Name != "Alice" {
		t.Fatalf("reconnect keeps the stored name, got %q", again.Player.Name)
	}
	if again.Player.Position != (world.Vec{X: 1, Y: 1}) {
		t.Fatalf("a living player keeps its position on reconnect")
	}

	// 名称 + 令牌也能接管
	byName, reason := s.Join(JoinRequest{Name: "ALICE", ReconnectToken: again.Token}, testStart.Add(11*time.Second), spawnAt(world.Vec{}))
	if reason != "" || byName.Player.ID != res.Player.ID {
		t.Fatalf("reconnect by name failed: %s", reason)
	}
}

func TestJoinRejections(t *testing.T) {
	s, _ := newTestRegistry(1)
	res, _ := s.Join(JoinRequest{Name: "alice"}, testStart, spawnAt(world.Vec{}))

	tests := []struct {
		name string
		req  JoinRequest
		want Reason
	}{
		{"invalid name", JoinRequest{Name: "x"}, ReasonInvalidName},
		{"name taken", JoinRequest{Name: "Alice"}, ReasonNameTaken},
		{"invalid token", JoinRequest{Name: "alice", PlayerID: res.Player.ID, ReconnectToken: "bad"}, ReasonInvalidToken},
		{"room full", JoinRequest{Name: "bob"}, ReasonRoomFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := s.Join(tt.req, testStart, spawnAt(world.Vec{})); got != tt.want {
				t.Fatalf("Join = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnknownPlayerIDJoinsAsNew(t *testing.T) {
	s, st := newTestRegistry(2)
	res, reason := s.Join(JoinRequest{Name: "alice", PlayerID: "01GONE", ReconnectToken: "stale"}, testStart, spawnAt(world.Vec{}))
	if reason != "" || res.Reconnected || res.Player.ID == "01GONE" || len(st.Players) != 1 {
		t.Fatalf("expected a fresh join, got %+v reason=%q", res, reason)
	}
}

func TestReconnectResurrectsQueuedDeath(t *testing.T) {
	s, _ := newTestRegistry(2)
	res, _ := s.Join(JoinRequest{Name: "alice"}, testStart, spawnAt(world.Vec{X: 1, Y: 1}))
	p := res.Player
	p.Health.Current = 0
	p.PendingRemoval = true
	p.RemovalAt = testStart.Add(30 * time.Second)
	p.Combo = 4

	again, reason := s.Join(JoinRequest{Name: "alice", PlayerID: p.ID, ReconnectToken: res.Token}, testStart.Add(5*time.Second), spawnAt(world.Vec{X: 7, Y: 7}))
	if reason != "" {
		t.Fatalf("reconnect rejected: %s", reason)
	}
	if again.Player.PendingRemoval || again.Player.Health.Current != again.Player.Health.Max || again.Player.Combo != 1 {
		t.Fatalf("expected resurrection, got %+v", again.Player)
	}
	if again.Player.Position != (world.Vec{X: 7, Y: 7}) {
		t.Fatalf("resurrected player should respawn")
	}
}

func TestRemoveFreesName(t *testing.T) {
	s, _ := newTestRegistry(1)
	res, _ := s.Join(JoinRequest{Name: "alice"}, testStart, spawnAt(world.Vec{}))
	if !s.Remove(res.Player.ID) {
		t.Fatalf("remove failed")
	}
	if _, reason := s.Join(JoinRequest{Name: "Alice"}, testStart, spawnAt(world.Vec{})); reason != "" {
		t.Fatalf("name should be free after removal, got %s", reason)
	}
}
