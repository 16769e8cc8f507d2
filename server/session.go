package server

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"

	"microarena/server/combat"
	"microarena/server/content"
	"microarena/server/world"
)

const (
	minNameLen = 3
	maxNameLen = 24
)

// JoinRequest join 消息中与身份有关的字段
type JoinRequest struct {
	Name           string
	PlayerID       string
	ReconnectToken string
}

// JoinResult 加入成功的结果；Token 为明文，只下发给本人
type JoinResult struct {
	Player      *world.Player
	Token       string
	Reconnected bool
}

// SessionRegistry 玩家身份、重连令牌、容量与名称唯一性
type SessionRegistry struct {
	st         *world.State
	catalog    *content.Catalog
	maxPlayers int
	window     time.Duration
	names      map[string]string // 折叠后的名称 → 玩家 id
	fold       cases.Caser
}

func NewSessionRegistry(st *world.State, catalog *content.Catalog, maxPlayers int, window time.Duration) *SessionRegistry {
	s := &SessionRegistry{
		st:         st,
		catalog:    catalog,
		maxPlayers: maxPlayers,
		window:     window,
		fold:       cases.Fold(),
	}
	s.Reindex()
	return s
}

// SetLimits 热更新容量与重连窗口
func (s *SessionRegistry) SetLimits(maxPlayers int, window time.Duration) {
	s.maxPlayers = maxPlayers
	s.window = window
}

// Reindex 从玩家表重建名称索引（加载持久化数据后调用）
func (s *SessionRegistry) Reindex() {
	s.names = make(map[string]string, len(s.st.Players))
	for _, id := range s.st.PlayerIDs() {
		s.names[s.nameKey(s.st.Players[id].Name)] = id
	}
}

func (s *SessionRegistry) nameKey(name string) string {
	return s.fold.String(strings.TrimSpace(name))
}

// ValidName 3–24 个字符，只允许字母、数字、空格、下划线和连字符
func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// isValidReconnect 令牌哈希匹配，且玩家仍在线或处于重连窗口内
func isValidReconnect(p *world.Player, token string, now time.Time, window time.Duration) bool {
	if p == nil || token == "" || p.ReconnectTokenHash == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(hashToken(token)), []byte(p.ReconnectTokenHash)) != 1 {
		return false
	}
	switch {
	case p.PendingRemoval:
		return now.Before(p.RemovalAt)
	case !p.Connected:
		return now.Sub(p.LastSeenAt) <= window
	}
	return true
}

// hasCapacity 名单（含可重连的离线玩家）未满
func hasCapacity(current, maxPlayers int) bool {
	return current < maxPlayers
}

// Join 校验名称与容量，创建新玩家或凭令牌重新接管已有玩家
// spawn 只在需要新位置时调用（新建或复活）
func (s *SessionRegistry) Join(req JoinRequest, now time.Time, spawn func() world.Vec) (JoinResult, Reason) {
	if !ValidName(req.Name) {
		return JoinResult{}, ReasonInvalidName
	}
	if req.PlayerID != "" {
		if p, ok := s.st.Players[req.PlayerID]; ok {
			if !isValidReconnect(p, req.ReconnectToken, now, s.window) {
				return JoinResult{}, ReasonInvalidToken
			}
			return s.reattach(p, now, spawn)
		}
		// 未知 id（例如已被清理）按新玩家处理
	}

	key := s.nameKey(req.Name)
	if id, ok := s.names[key]; ok {
		if p, ok := s.st.Players[id]; ok {
			if req.ReconnectToken != "" && isValidReconnect(p, req.ReconnectToken, now, s.window) {
				return s.reattach(p, now, spawn)
			}
			return JoinResult{}, ReasonNameTaken
		}
		delete(s.names, key)
	}

	if !hasCapacity(len(s.st.Players), s.maxPlayers) {
		return JoinResult{}, ReasonRoomFull
	}

	token, err := newToken()
	if err != nil {
		Log.Errorw("reconnect token generation failed", "err", err)
		return JoinResult{}, ReasonInvalidPayload
	}
	p := world.NewPlayer(ulid.Make().String(), strings.TrimSpace(req.Name), s.catalog, now)
	p.Position = spawn()
	p.ReconnectTokenHash = hashToken(token)
	s.st.AddPlayer(p)
	s.names[key] = p.ID
	return JoinResult{Player: p, Token: token}, ""
}

// reattach 接管：清除待结算攻击与过期状态，保留技能/冲刺冷却；排队死亡的玩家复活
func (s *SessionRegistry) reattach(p *world.Player, now time.Time, spawn func() world.Vec) (JoinResult, Reason) {
	token, err := newToken()
	if err != nil {
		Log.Errorw("reconnect token generation failed", "err", err, "player", p.ID)
		return JoinResult{}, ReasonInvalidPayload
	}
	p.PendingAttack = nil
	p.StatusEffects = combat.PruneExpired(p.StatusEffects, now)
	if p.PendingRemoval || !p.Alive() {
		world.Resurrect(p, spawn())
	}
	p.Connected = true
	p.LastSeenAt = now
	p.LastActiveAt = now
	p.ReconnectTokenHash = hashToken(token)
	s.st.MarkPlayer(p.ID)
	return JoinResult{Player: p, Token: token, Reconnected: true}, ""
}

// Disconnect 标记离线：清空移动向量、战斗目标与待结算攻击；返回可重连截止时间
func (s *SessionRegistry) Disconnect(id string, now time.Time) (time.Time, bool) {
	p, ok := s.st.Players[id]
	if !ok {
		return time.Time{}, false
	}
	p.Connected = false
	p.Movement = world.Vec{}
	p.PendingAttack = nil
	state := world.CombatIdle
	if p.Combat.State == world.CombatDefeated {
		state = world.CombatDefeated
	}
	p.Combat = world.CombatStatus{State: state, LastAttackAt: p.Combat.LastAttackAt}
	p.LastSeenAt = now
	s.st.MarkPlayer(id)
	return now.Add(s.window), true
}

// Remove 彻底删除玩家及其名称索引
func (s *SessionRegistry) Remove(id string) bool {
	p, ok := s.st.Players[id]
	if !ok {
		return false
	}
	if key := s.nameKey(p.Name); s.names[key] == id {
		delete(s.names, key)
	}
	s.st.RemovePlayer(id)
	return true
}

// Deadline 玩家被清理的时间：排队死亡/离线按重连窗口，在线按不活跃超时。
// inactivity <= 0 时在线玩家没有截止时间（返回零值）
func (s *SessionRegistry) Deadline(p *world.Player, inactivity time.Duration) time.Time {
	switch {
	case p.PendingRemoval:
		return p.RemovalAt
	case !p.Connected:
		return p.LastSeenAt.Add(s.window)
	case inactivity <= 0:
		return time.Time{}
	}
	return p.LastActiveAt.Add(inactivity)
}
