package server

import (
	"testing"

	"microarena/server/world"
)

func TestRankingBreaksTiesByLocaleAwareName(t *testing.T) {
	st := world.NewState()
	for _, p := range []struct {
		id, name string
		score    int64
	}{
		{"01A", "Zed", 50},
		{"01B", "émile", 50},
		{"01C", "Bob", 50},
		{"01D", "alice", 50},
		{"01E", "carol", 90},
		{"01F", "alice", 50},
	} {
		st.AddPlayer(&world.Player{ID: p.id, Name: p.name, Score: p.score})
	}

	got := NewRanking().Get(st)

	want := []string{"01E", "01D", "01F", "01C", "01B", "01A"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].PlayerID != id || got[i].Rank != i+1 {
			t.Fatalf("position %d = %s (rank %d), want %s", i, got[i].PlayerID, got[i].Rank, id)
		}
	}
}

func TestRankingIsCachedUntilInvalidated(t *testing.T) {
	st := world.NewState()
	p := &world.Player{ID: "01A", Name: "alice", Score: 1}
	st.AddPlayer(p)
	rk := NewRanking()
	rk.Get(st)

	p.Score = 99
	if rk.Get(st)[0].Score != 1 {
		t.Fatalf("ranking should be served from cache")
	}
	rk.Invalidate()
	if rk.Get(st)[0].Score != 99 {
		t.Fatalf("ranking should be rebuilt after invalidation")
	}
}
