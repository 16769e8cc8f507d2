package server

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"microarena/server/world"
)

// RankingEntry 排行榜条目
type RankingEntry struct {
	Rank      int    `json:"rank"`
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	Score     int64  `json:"score"`
	Connected bool   `json:"connected"`
}

// Ranking 惰性重算的排行榜：分数降序，同分按名称（en 排序规则），再按 id
type Ranking struct {
	collator *collate.Collator
	cached   []RankingEntry
	valid    bool
}

func NewRanking() *Ranking {
	return &Ranking{collator: collate.New(language.English)}
}

// Invalidate 分数或名单变化后调用
func (r *Ranking) Invalidate() { r.valid = false }

// Get 返回缓存的排行；调用方不得修改返回的切片
func (r *Ranking) Get(st *world.State) []RankingEntry {
	if r.valid {
		return r.cached
	}
	entries := make([]RankingEntry, 0, len(st.Players))
	for _, id := range st.PlayerIDs() {
		p := st.Players[id]
		entries = append(entries, RankingEntry{PlayerID: p.ID, Name: p.Name, Score: p.Score, Connected: p.Connected})
	}
	sort.SliceStable(entries, func(i, j int) bool { return r.less(entries[i], entries[j]) })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	r.cached = entries
	r.valid = true
	return entries
}

func (r *Ranking) less(a, b RankingEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := r.collator.CompareString(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return a.PlayerID < b.PlayerID
}
