package world

import (
	"math"
	"time"

	"microarena/server/rng"
)

// RespawnScheduler 有机物按簇分组重生：同组成员同时出现，不会部分出现
// 延迟与位置全部取自 organicMatterRespawn 流，重启后可复现
type RespawnScheduler struct {
	cfg Config
	rng *rng.Manager
}

func NewRespawnScheduler(cfg Config, m *rng.Manager) *RespawnScheduler {
	return &RespawnScheduler{cfg: cfg, rng: m}
}

func (r *RespawnScheduler) delay() time.Duration {
	lo, hi := r.cfg.RespawnDelayMin, r.cfg.RespawnDelayMax
	if hi <= lo {
		return lo
	}
	s := r.rng.Stream(rng.StreamOrganicRespawn)
	return lo + time.Duration(s.Float64()*float64(hi-lo))
}

// Enqueue 被收集的资源加入所属簇的待重生组
// 只有剩余时间不短于 RespawnDelayMin 的组可以加入，否则新建一组并抽取自己的延迟
func (r *RespawnScheduler) Enqueue(st *State, m OrganicMatter, now time.Time) *RespawnGroup {
	earliest := now.Add(r.cfg.RespawnDelayMin)
	for _, g := range st.RespawnGroups {
		if g.ClusterID == m.ClusterID && !g.RespawnAt.Before(earliest) {
			g.Members = append(g.Members, m)
			return g
		}
	}
	g := &RespawnGroup{
		ID:        st.NextID("respawn"),
		ClusterID: m.ClusterID,
		RespawnAt: now.Add(r.delay()),
		Members:   []OrganicMatter{m},
	}
	st.RespawnGroups = append(st.RespawnGroups, g)
	return g
}

// NextDue 最近一组的重生时间
func (r *RespawnScheduler) NextDue(st *State) (time.Time, bool) {
	var next time.Time
	for _, g := range st.RespawnGroups {
		if next.IsZero() || g.RespawnAt.Before(next) {
			next = g.RespawnAt
		}
	}
	return next, !next.IsZero()
}

// Process 到期 (now >= respawnAt) 的组整体生成，返回生成的资源
func (r *RespawnScheduler) Process(st *State, now time.Time) []*OrganicMatter {
	if next, ok := r.NextDue(st); !ok || now.Before(next) {
		return nil
	}
	var spawned []*OrganicMatter
	kept := st.RespawnGroups[:0]
	for _, g := range st.RespawnGroups {
		if now.Before(g.RespawnAt) {
			kept = append(kept, g)
			continue
		}
		spawned = append(spawned, r.spawnGroup(st, g)...)
	}
	for i := len(kept); i < len(st.RespawnGroups); i++ {
		st.RespawnGroups[i] = nil
	}
	st.RespawnGroups = kept
	return spawned
}

func (r *RespawnScheduler) spawnGroup(st *State, g *RespawnGroup) []*OrganicMatter {
	s := r.rng.Stream(rng.StreamOrganicRespawn)
	radius := r.cfg.ClusterRadius
	center := Vec{X: r.cfg.Width / 2, Y: r.cfg.Height / 2}
	if c, ok := st.Clusters[g.ClusterID]; ok {
		radius = c.Radius
		// 簇中心小幅漂移，避免在同一点蹲守
		center = c.Center.Add(polar(s.Range(0, 2*math.Pi), radius*0.5*s.Float64()))
		center = clampToBounds(center, r.cfg, radius)
	}
	out := make([]*OrganicMatter, 0, len(g.Members))
	for _, m := range g.Members {
		fresh := &OrganicMatter{
			ID:        st.NextID("om"),
			ClusterID: g.ClusterID,
			Position:  scatter(st, r.cfg, s, center, radius),
			Quantity:  m.Quantity,
			Nutrients: append([]string(nil), m.Nutrients...),
		}
		st.AddOrganicMatter(fresh)
		out = append(out, fresh)
	}
	return out
}
