package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"microarena/server/world"
)

// Duration 以字符串形式（"50ms"、"3m"）出现在 TOML 中
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dur(d time.Duration) Duration { return Duration{d} }

// RoomConfig 房间规则与限流参数
type RoomConfig struct {
	DefaultRoom       string   `toml:"default_room"`
	MaxPlayers        int      `toml:"max_players"`
	MinPlayers        int      `toml:"min_players"`
	StartCountdown    Duration `toml:"start_countdown"`
	RoundDuration     Duration `toml:"round_duration"`
	ResetDelay        Duration `toml:"reset_delay"`
	ReconnectWindow   Duration `toml:"reconnect_window"`
	InactivityTimeout Duration `toml:"inactivity_timeout"`

	MaxClientMessageSize     int      `toml:"max_client_message_size"`
	MaxMessagesPerConnection int      `toml:"max_messages_per_connection"`
	RateLimitWindow          Duration `toml:"rate_limit_window"`
	GlobalRateHeadroom       float64  `toml:"global_rate_headroom"`

	SnapshotDebounce Duration `toml:"snapshot_debounce"`
	RNGDebounce      Duration `toml:"rng_debounce"`

	MaxScorePerAction float64 `toml:"max_score_per_action"`
	MaxCombo          float64 `toml:"max_combo"`
	MinClientVersion  string  `toml:"min_client_version"`
	// Seed 为空时使用房间 id
	Seed string `toml:"seed"`
}

// WorldConfig 可在配置文件中覆盖的世界参数；其余取 world.DefaultConfig
type WorldConfig struct {
	Width                  float64  `toml:"width"`
	Height                 float64  `toml:"height"`
	TickInterval           Duration `toml:"tick_interval"`
	Obstacles              int      `toml:"obstacles"`
	RoomObjects            int      `toml:"room_objects"`
	Clusters               int      `toml:"clusters"`
	ClusterSize            int      `toml:"cluster_size"`
	RespawnDelayMin        Duration `toml:"respawn_delay_min"`
	RespawnDelayMax        Duration `toml:"respawn_delay_max"`
	Microorganisms         int      `toml:"microorganisms"`
	MaxDamagePopupsPerTick int      `toml:"max_damage_popups_per_tick"`
	ScoreMultiplier        float64  `toml:"score_multiplier"`
}

// LogConfig 日志输出；File 为空时写 stderr
type LogConfig struct {
	File       string `toml:"file"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// StorageConfig 持久化目录；为空时房间状态只保存在内存
type StorageConfig struct {
	Dir string `toml:"dir"`
}

// Config 服务全部配置
type Config struct {
	Addr    string        `toml:"addr"`
	Version string        `toml:"version"`
	Room    RoomConfig    `toml:"room"`
	World   WorldConfig   `toml:"world"`
	Log     LogConfig     `toml:"log"`
	Storage StorageConfig `toml:"storage"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	w := world.DefaultConfig()
	return Config{
		Addr:    ":8080",
		Version: "1.0.0",
		Room: RoomConfig{
			DefaultRoom:              "lobby",
			MaxPlayers:               16,
			MinPlayers:               2,
			StartCountdown:           dur(5 * time.Second),
			RoundDuration:            dur(3 * time.Minute),
			ResetDelay:               dur(10 * time.Second),
			ReconnectWindow:          dur(30 * time.Second),
			InactivityTimeout:        dur(5 * time.Minute),
			MaxClientMessageSize:     16 * 1024,
			MaxMessagesPerConnection: 30,
			RateLimitWindow:          dur(time.Second),
			GlobalRateHeadroom:       1.5,
			SnapshotDebounce:         dur(2 * time.Second),
			RNGDebounce:              dur(5 * time.Second),
			MaxScorePerAction:        1000,
			MaxCombo:                 10,
			MinClientVersion:         "1.0.0",
		},
		World: WorldConfig{
			Width:                  w.Width,
			Height:                 w.Height,
			TickInterval:           dur(w.TickInterval),
			Obstacles:              w.Obstacles,
			RoomObjects:            w.RoomObjects,
			Clusters:               w.Clusters,
			ClusterSize:            w.ClusterSize,
			RespawnDelayMin:        dur(w.RespawnDelayMin),
			RespawnDelayMax:        dur(w.RespawnDelayMax),
			Microorganisms:         w.Microorganisms,
			MaxDamagePopupsPerTick: w.MaxDamagePopupsPerTick,
			ScoreMultiplier:        w.ScoreMultiplier,
		},
		Log: LogConfig{
			File:       "microarena.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// LoadConfig 默认值之上叠加 TOML 文件；path 为空直接返回默认值
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		Log.Warnw("unknown config keys ignored", "file", path, "keys", fmt.Sprint(undecoded))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 拒绝会让房间无法运行的取值，一次报告全部问题
func (c Config) Validate() error {
	var err error
	check := func(ok bool, msg string) {
		if !ok {
			err = multierr.Append(err, errors.New(msg))
		}
	}
	check(c.Room.MaxPlayers >= 1, "room.max_players must be >= 1")
	check(c.Room.MaxClientMessageSize >= 64, "room.max_client_message_size must be >= 64")
	check(c.Room.MaxMessagesPerConnection >= 1, "room.max_messages_per_connection must be >= 1")
	check(c.Room.RateLimitWindow.Duration > 0, "room.rate_limit_window must be positive")
	check(c.World.TickInterval.Duration > 0, "world.tick_interval must be positive")
	check(c.World.RespawnDelayMax.Duration >= c.World.RespawnDelayMin.Duration,
		"world.respawn_delay_max must be >= respawn_delay_min")
	return err
}

// WorldSim 合成模拟器使用的 world.Config
func (c Config) WorldSim() world.Config {
	w := world.DefaultConfig()
	w.Width = c.World.Width
	w.Height = c.World.Height
	w.TickInterval = c.World.TickInterval.Duration
	if w.MaxTickDelta < 4*w.TickInterval {
		w.MaxTickDelta = 4 * w.TickInterval
	}
	w.Obstacles = c.World.Obstacles
	w.RoomObjects = c.World.RoomObjects
	w.Clusters = c.World.Clusters
	w.ClusterSize = c.World.ClusterSize
	w.RespawnDelayMin = c.World.RespawnDelayMin.Duration
	w.RespawnDelayMax = c.World.RespawnDelayMax.Duration
	w.Microorganisms = c.World.Microorganisms
	w.MaxDamagePopupsPerTick = c.World.MaxDamagePopupsPerTick
	w.ScoreMultiplier = c.World.ScoreMultiplier
	return w
}
