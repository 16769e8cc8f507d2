package world

import (
	"fmt"
	"sort"
	"time"
)

type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Changes 自上次广播以来的变更集合
type Changes struct {
	Players               []string
	RemovedPlayers        []string
	Microorganisms        []string
	RemovedMicroorganisms []string
	OrganicMatter         []string
	RemovedOrganicMatter  []string
	RoomObjects           []string
	StatusEvents          []StatusEvent
	DamagePopups          []DamagePopup
}

// Empty 没有任何变更
func (c Changes) Empty() bool {
	return len(c.Players) == 0 && len(c.RemovedPlayers) == 0 &&
		len(c.Microorganisms) == 0 && len(c.RemovedMicroorganisms) == 0 &&
		len(c.OrganicMatter) == 0 && len(c.RemovedOrganicMatter) == 0 &&
		len(c.RoomObjects) == 0 && len(c.StatusEvents) == 0 && len(c.DamagePopups) == 0
}

type changeLog struct {
	players        idSet
	removedPlayers idSet
	npcs           idSet
	removedNPCs    idSet
	matter         idSet
	removedMatter  idSet
	objects        idSet
	statusEvents   []StatusEvent
	popups         []DamagePopup
}

func newChangeLog() changeLog {
	return changeLog{
		players:        idSet{},
		removedPlayers: idSet{},
		npcs:           idSet{},
		removedNPCs:    idSet{},
		matter:         idSet{},
		removedMatter:  idSet{},
		objects:        idSet{},
	}
}

// State 世界权威实体表；只由房间 actor 修改
type State struct {
	Players        map[string]*Player
	Microorganisms map[string]*Microorganism
	OrganicMatter  map[string]*OrganicMatter
	Obstacles      map[string]*Obstacle
	RoomObjects    map[string]*RoomObject
	Clusters       map[string]*Cluster
	RespawnGroups  []*RespawnGroup
	NPCRespawns    []NPCRespawn
	NextEntity     uint64
	LastTickAt     time.Time

	changes    changeLog
	popupCap   int
	order      []string
	orderDirty bool
}

// NewState 空世界
func NewState() *State {
	return &State{
		Players:        make(map[string]*Player),
		Microorganisms: make(map[string]*Microorganism),
		OrganicMatter:  make(map[string]*OrganicMatter),
		Obstacles:      make(map[string]*Obstacle),
		RoomObjects:    make(map[string]*RoomObject),
		Clusters:       make(map[string]*Cluster),
		changes:        newChangeLog(),
		orderDirty:     true,
	}
}

// NextID 生成确定性的实体 id
func (s *State) NextID(prefix string) string {
	s.NextEntity++
	return fmt.Sprintf("%s-%d", prefix, s.NextEntity)
}

// AddPlayer 加入玩家并刷新有序缓存
func (s *State) AddPlayer(p *Player) {
	s.Players[p.ID] = p
	s.orderDirty = true
	s.MarkPlayer(p.ID)
}

// RemovePlayer 删除玩家
func (s *State) RemovePlayer(id string) {
	if _, ok := s.Players[id]; !ok {
		return
	}
	delete(s.Players, id)
	s.orderDirty = true
	delete(s.changes.players, id)
	s.changes.removedPlayers.add(id)
}

// PlayerIDs 按 id 升序（缓存，名单变化时重建）
func (s *State) PlayerIDs() []string {
	if s.orderDirty {
		s.order = s.order[:0]
		for id := range s.Players {
			s.order = append(s.order, id)
		}
		sort.Strings(s.order)
		s.orderDirty = false
	}
	return s.order
}

func (s *State) MarkPlayer(id string) { s.changes.players.add(id) }
func (s *State) MarkMicroorganism(id string) { s.changes.npcs.add(id) }
func (s *State) MarkOrganicMatter(id string) { s.changes.matter.add(id) }
func (s *State) MarkRoomObject(id string) { s.changes.objects.add(id) }

// AddMicroorganism 放入 NPC
func (s *State) AddMicroorganism(m *Microorganism) {
	s.Microorganisms[m.ID] = m
	delete(s.changes.removedNPCs, m.ID)
	s.MarkMicroorganism(m.ID)
}

// RemoveMicroorganism 移除 NPC
func (s *State) RemoveMicroorganism(id string) {
	delete(s.Microorganisms, id)
	delete(s.changes.npcs, id)
	s.changes.removedNPCs.add(id)
}

// AddOrganicMatter 放入资源
func (s *State) AddOrganicMatter(m *OrganicMatter) {
	s.OrganicMatter[m.ID] = m
	delete(s.changes.removedMatter, m.ID)
	s.MarkOrganicMatter(m.ID)
}

// RemoveOrganicMatter 移除资源
func (s *State) RemoveOrganicMatter(id string) {
	delete(s.OrganicMatter, id)
	delete(s.changes.matter, id)
	s.changes.removedMatter.add(id)
}

// SetPopupCap 每 Tick 伤害飘字上限
func (s *State) SetPopupCap(n int) { s.popupCap = n }

// AddPopup 超出上限后丢弃
func (s *State) AddPopup(p DamagePopup) bool {
	if s.popupCap > 0 && len(s.changes.popups) >= s.popupCap {
		return false
	}
	s.changes.popups = append(s.changes.popups, p)
	return true
}

// AddStatusEvent 记录状态施加事件
func (s *State) AddStatusEvent(e StatusEvent) {
	s.changes.statusEvents = append(s.changes.statusEvents, e)
}

// TakeChanges 取出并清空变更
func (s *State) TakeChanges() Changes {
	c := Changes{
		Players:               s.changes.players.sorted(),
		RemovedPlayers:        s.changes.removedPlayers.sorted(),
		Microorganisms:        s.changes.npcs.sorted(),
		RemovedMicroorganisms: s.changes.removedNPCs.sorted(),
		OrganicMatter:         s.changes.matter.sorted(),
		RemovedOrganicMatter:  s.changes.removedMatter.sorted(),
		RoomObjects:           s.changes.objects.sorted(),
		StatusEvents:          s.changes.statusEvents,
		DamagePopups:          s.changes.popups,
	}
	s.changes = newChangeLog()
	return c
}

// DiscardChanges 全量同步后丢弃累计的增量
func (s *State) DiscardChanges() { s.changes = newChangeLog() }

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Snapshot 持久化的世界表（玩家单独存放）
type Snapshot struct {
	Microorganisms []Microorganism `msgpack:"microorganisms"`
	OrganicMatter  []OrganicMatter `msgpack:"organicMatter"`
	Obstacles      []Obstacle      `msgpack:"obstacles"`
	RoomObjects    []RoomObject    `msgpack:"roomObjects"`
	Clusters       []Cluster       `msgpack:"clusters"`
	RespawnGroups  []RespawnGroup  `msgpack:"respawnGroups"`
	NPCRespawns    []NPCRespawn    `msgpack:"npcRespawns"`
	NextEntity     uint64          `msgpack:"nextEntity"`
}

// Snapshot 导出世界表
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{NextEntity: s.NextEntity, NPCRespawns: append([]NPCRespawn(nil), s.NPCRespawns...)}
	for _, id := range sortedKeys(s.Microorganisms) {
		snap.Microorganisms = append(snap.Microorganisms, *s.Microorganisms[id])
	}
	for _, id := range sortedKeys(s.OrganicMatter) {
		snap.OrganicMatter = append(snap.OrganicMatter, *s.OrganicMatter[id])
	}
	for _, id := range sortedKeys(s.Obstacles) {
		snap.Obstacles = append(snap.Obstacles, *s.Obstacles[id])
	}
	for _, id := range sortedKeys(s.RoomObjects) {
		snap.RoomObjects = append(snap.RoomObjects, *s.RoomObjects[id])
	}
	for _, id := range sortedKeys(s.Clusters) {
		snap.Clusters = append(snap.Clusters, *s.Clusters[id])
	}
	for _, g := range s.RespawnGroups {
		snap.RespawnGroups = append(snap.RespawnGroups, *g)
	}
	return snap
}

// RestoreWorld 用快照替换世界表（保留玩家）
func (s *State) RestoreWorld(snap Snapshot) {
	s.Microorganisms = make(map[string]*Microorganism, len(snap.Microorganisms))
	for i := range snap.Microorganisms {
		m := snap.Microorganisms[i]
		s.Microorganisms[m.ID] = &m
	}
	s.OrganicMatter = make(map[string]*OrganicMatter, len(snap.OrganicMatter))
	for i := range snap.OrganicMatter {
		m := snap.OrganicMatter[i]
		s.OrganicMatter[m.ID] = &m
	}
	s.Obstacles = make(map[string]*Obstacle, len(snap.Obstacles))
	for i := range snap.Obstacles {
		o := snap.Obstacles[i]
		s.Obstacles[o.ID] = &o
	}
	s.RoomObjects = make(map[string]*RoomObject, len(snap.RoomObjects))
	for i := range snap.RoomObjects {
		o := snap.RoomObjects[i]
		if o.State == nil {
			o.State = make(map[string]any)
		}
		s.RoomObjects[o.ID] = &o
	}
	s.Clusters = make(map[string]*Cluster, len(snap.Clusters))
	for i := range snap.Clusters {
		c := snap.Clusters[i]
		s.Clusters[c.ID] = &c
	}
	s.RespawnGroups = s.RespawnGroups[:0]
	for i := range snap.RespawnGroups {
		g := snap.RespawnGroups[i]
		s.RespawnGroups = append(s.RespawnGroups, &g)
	}
	s.NPCRespawns = append([]NPCRespawn(nil), snap.NPCRespawns...)
	s.NextEntity = snap.NextEntity
	s.changes = newChangeLog()
}

// PlayerRecords 导出玩家（持久化用）
func (s *State) PlayerRecords() []Player {
	out := make([]Player, 0, len(s.Players))
	for _, id := range s.PlayerIDs() {
		out = append(out, *s.Players[id])
	}
	return out
}

// RestorePlayers 用持久化记录替换玩家表
func (s *State) RestorePlayers(records []Player) {
	s.Players = make(map[string]*Player, len(records))
	for i := range records {
		p := records[i]
		if p.SkillCooldowns == nil {
			p.SkillCooldowns = make(map[string]time.Time)
		}
		s.Players[p.ID] = &p
	}
	s.orderDirty = true
}
