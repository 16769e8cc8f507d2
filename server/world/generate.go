package world

import (
	"math"

	"microarena/server/content"
	"microarena/server/rng"
)

var nutrientKinds = []string{"carbon", "nitrogen", "phosphate", "lipid"}

// Generate 构建初始世界：障碍物按固定网格摆放，资源簇与 NPC 由确定性随机流生成
func Generate(cfg Config, catalog *content.Catalog, m *rng.Manager) *State {
	st := NewState()
	st.SetPopupCap(cfg.MaxDamagePopupsPerTick)
	placeObstacles(st, cfg)
	placeRoomObjects(st, cfg)

	stream := m.Stream(rng.StreamOrganicRespawn)
	for i := 0; i < cfg.Clusters; i++ {
		margin := cfg.ClusterRadius + cfg.PlayerRadius
		var center Vec
		for attempt := 0; attempt < 8; attempt++ {
			center = Vec{X: stream.Range(margin, cfg.Width-margin), Y: stream.Range(margin, cfg.Height-margin)}
			if !blocked(st, center, cfg.ClusterRadius) {
				break
			}
		}
		c := &Cluster{ID: st.NextID("cluster"), Center: center, Radius: cfg.ClusterRadius}
		st.Clusters[c.ID] = c
		for j := 0; j < cfg.ClusterSize; j++ {
			st.AddOrganicMatter(&OrganicMatter{
				ID:        st.NextID("om"),
				ClusterID: c.ID,
				Position:  scatter(st, cfg, stream, c.Center, c.Radius),
				Quantity:  math.Round(stream.Range(cfg.MatterQuantityMin, cfg.MatterQuantityMax+1)),
				Nutrients: []string{nutrientKinds[stream.Intn(len(nutrientKinds))]},
			})
		}
	}

	species := catalog.SpeciesIDs()
	if len(species) > 0 {
		for i := 0; i < cfg.Microorganisms; i++ {
			sp, _ := catalog.SpeciesByID(species[i%len(species)])
			spawnMicroorganism(st, cfg, m, sp)
		}
	}
	st.DiscardChanges()
	return st
}

// scatter 在圆内取一个不被障碍物阻挡的点
func scatter(st *State, cfg Config, s *rng.Stream, center Vec, radius float64) Vec {
	var pos Vec
	for attempt := 0; attempt < 6; attempt++ {
		angle := s.Range(0, 2*math.Pi)
		r := radius * math.Sqrt(s.Float64())
		pos = clampToBounds(center.Add(polar(angle, r)), cfg, cfg.PlayerRadius)
		if !blocked(st, pos, 4) {
			return pos
		}
	}
	return pos
}

func placeObstacles(st *State, cfg Config) {
	if cfg.Obstacles <= 0 {
		return
	}
	cols := int(math.Ceil(math.Sqrt(float64(cfg.Obstacles))))
	rows := (cfg.Obstacles + cols - 1) / cols
	cellW := cfg.Width / float64(cols)
	cellH := cfg.Height / float64(rows)
	for i := 0; i < cfg.Obstacles; i++ {
		col, row := i%cols, i/cols
		o := &Obstacle{
			ID:         st.NextID("obstacle"),
			Position:   Vec{X: cellW * (float64(col) + 0.5), Y: cellH * (float64(row) + 0.5)},
			HalfExtent: Vec{X: cellW * 0.08, Y: cellH * 0.08},
			Impassable: true,
		}
		st.Obstacles[o.ID] = o
	}
}

func placeRoomObjects(st *State, cfg Config) {
	for i := 0; i < cfg.RoomObjects; i++ {
		angle := 2 * math.Pi * float64(i) / float64(cfg.RoomObjects)
		pos := Vec{X: cfg.Width / 2, Y: cfg.Height / 2}.Add(polar(angle, math.Min(cfg.Width, cfg.Height)*0.3))
		o := &RoomObject{
			ID:       st.NextID("object"),
			Kind:     "nutrient_pod",
			Position: pos,
			Radius:   24,
			State:    map[string]any{"health": cfg.RoomObjectHealth, "maxHealth": cfg.RoomObjectHealth},
		}
		st.RoomObjects[o.ID] = o
	}
}

func spawnMicroorganism(st *State, cfg Config, m *rng.Manager, sp content.Species) *Microorganism {
	s := m.Stream(rng.StreamWaypoint)
	margin := cfg.MicroorganismRadius * 2
	var pos Vec
	for attempt := 0; attempt < 8; attempt++ {
		pos = Vec{X: s.Range(margin, cfg.Width-margin), Y: s.Range(margin, cfg.Height-margin)}
		if !blocked(st, pos, cfg.MicroorganismRadius) {
			break
		}
	}
	npc := &Microorganism{
		ID:         st.NextID("mo"),
		Species:    sp.ID,
		Aggression: sp.Aggression,
		Element:    sp.Element,
		Position:   pos,
		Health:     Health{Current: sp.MaxHealth, Max: sp.MaxHealth},
		Attributes: sp.Attributes,
		Stability:  sp.Stability,
	}
	st.AddMicroorganism(npc)
	return npc
}
