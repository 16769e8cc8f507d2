package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"microarena/server/world"
)

// Reason 协议错误原因
type Reason string

const (
	ReasonInvalidPayload Reason = "invalid_payload"
	ReasonInvalidName    Reason = "invalid_name"
	ReasonNameTaken      Reason = "name_taken"
	ReasonInvalidToken   Reason = "invalid_token"
	ReasonUnknownPlayer  Reason = "unknown_player"
	ReasonRoomFull       Reason = "room_full"
	ReasonGameNotActive  Reason = "game_not_active"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonSessionTaken   Reason = "session_taken"
)

// WebSocket 关闭码
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseInvalidPayload  = 1007
	ClosePolicyViolation = 1008
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011
)

// 客户端 → 服务端

type JoinMessage struct {
	Type           string `json:"type" jsonschema:"enum=join"`
	Name           string `json:"name"`
	PlayerID       string `json:"playerId,omitempty"`
	ReconnectToken string `json:"reconnectToken,omitempty"`
	Version        string `json:"version,omitempty"`
}

type ActionMessage struct {
	Type       string          `json:"type" jsonschema:"enum=action"`
	PlayerID   string          `json:"playerId"`
	ClientTime *int64          `json:"clientTime,omitempty"`
	Action     json.RawMessage `json:"action"`

	// Payload 为解码后的具体动作
	Payload Action `json:"-"`
}

type PingMessage struct {
	Type string `json:"type" jsonschema:"enum=ping"`
	TS   int64  `json:"ts"`
}

// Action 动作标签联合
type Action interface {
	ActionType() string
}

type ScoreAction struct {
	Amount float64 `json:"amount"`
}

type ComboAction struct {
	Multiplier float64 `json:"multiplier"`
}

type DeathAction struct{}

type AbilityAction struct {
	SkillID string `json:"skillId"`
}

type MovementAction struct {
	Movement    world.Vec  `json:"movement"`
	Position    *world.Vec `json:"position,omitempty"`
	Orientation *float64   `json:"orientation,omitempty"`
}

type AttackAction struct {
	Kind                  world.AttackKind `json:"kind" jsonschema:"enum=basic,enum=dash,enum=skill"`
	TargetPlayerID        string           `json:"targetPlayerId,omitempty"`
	TargetMicroorganismID string           `json:"targetMicroorganismId,omitempty"`
	TargetObjectID        string           `json:"targetObjectId,omitempty"`
	ResultingHealth       *float64         `json:"resultingHealth,omitempty"`
}

type EvolutionAction struct {
	EvolutionID string `json:"evolutionId"`
}

type ArchetypeAction struct {
	ArchetypeID string `json:"archetypeId"`
}

func (ScoreAction) ActionType() string     { return "score" }
func (ComboAction) ActionType() string     { return "combo" }
func (DeathAction) ActionType() string     { return "death" }
func (AbilityAction) ActionType() string   { return "ability" }
func (MovementAction) ActionType() string  { return "movement" }
func (AttackAction) ActionType() string    { return "attack" }
func (EvolutionAction) ActionType() string { return "evolution" }
func (ArchetypeAction) ActionType() string { return "archetype" }

// ActionTypes 全部动作类型及其结构（schema 导出用）
func ActionTypes() map[string]Action {
	return map[string]Action{
		"score":     &ScoreAction{},
		"combo":     &ComboAction{},
		"death":     &DeathAction{},
		"ability":   &AbilityAction{},
		"movement":  &MovementAction{},
		"attack":    &AttackAction{},
		"evolution": &EvolutionAction{},
		"archetype": &ArchetypeAction{},
	}
}

var errUnknownType = errors.New("unknown message type")

type envelope struct {
	Type string `json:"type"`
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}

// DecodeClientMessage 按 type 字段解码为具体消息；未知类型或格式错误一律失败
func DecodeClientMessage(data []byte) (any, error) {
	var env envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case "join":
		var m JoinMessage
		if err := strictUnmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode join: %w", err)
		}
		return &m, nil
	case "action":
		var m ActionMessage
		if err := strictUnmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode action: %w", err)
		}
		a, err := decodeAction(m.Action)
		if err != nil {
			return nil, err
		}
		m.Payload = a
		return &m, nil
	case "ping":
		var m PingMessage
		if err := strictUnmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode ping: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownType, env.Type)
}

func decodeAction(raw json.RawMessage) (Action, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing action")
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode action envelope: %w", err)
	}
	var a Action
	switch env.Type {
	case "score":
		a = &ScoreAction{}
	case "combo":
		a = &ComboAction{}
	case "death":
		a = &DeathAction{}
	case "ability":
		a = &AbilityAction{}
	case "movement":
		a = &MovementAction{}
	case "attack":
		a = &AttackAction{}
	case "evolution":
		a = &EvolutionAction{}
	case "archetype":
		a = &ArchetypeAction{}
	default:
		return nil, fmt.Errorf("%w: action %q", errUnknownType, env.Type)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, fmt.Errorf("decode %s action: %w", env.Type, err)
	}
	return a, nil
}

// 服务端 → 客户端

type JoinedMessage struct {
	Type           string          `json:"type"`
	PlayerID       string          `json:"playerId"`
	ReconnectToken string          `json:"reconnectToken"`
	ReconnectUntil int64           `json:"reconnectUntil"`
	Reconnected    bool            `json:"reconnected"`
	State          json.RawMessage `json:"state"`
	Ranking        []RankingEntry  `json:"ranking"`
}

type PlayerJoinedMessage struct {
	Type   string           `json:"type"`
	Player world.PlayerView `json:"player"`
}

type PlayerLeftMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type StateMessage struct {
	Type  string          `json:"type"`
	Mode  string          `json:"mode"`
	State json.RawMessage `json:"state"`
}

type RankingMessage struct {
	Type    string         `json:"type"`
	Ranking []RankingEntry `json:"ranking"`
}

type ResetMessage struct {
	Type  string          `json:"type"`
	State json.RawMessage `json:"state"`
}

type PongMessage struct {
	Type       string `json:"type"`
	TS         int64  `json:"ts"`
	ServerTime int64  `json:"serverTime"`
}

type ErrorMessage struct {
	Type         string `json:"type"`
	Reason       Reason `json:"reason"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
}

type UpgradeRequiredMessage struct {
	Type       string `json:"type"`
	MinVersion string `json:"minVersion"`
}
