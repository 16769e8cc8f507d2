package world

import "time"

// Config 世界模拟参数
type Config struct {
	Width  float64
	Height float64

	PlayerRadius        float64
	MicroorganismRadius float64
	CollectionRadius    float64

	TickInterval time.Duration
	MaxTickDelta time.Duration

	BasicAttackCooldown    time.Duration
	AttackIntentTTL        time.Duration
	DashCooldown           time.Duration
	DashDistance           float64
	DashPower              float64
	DashKnockback          float64
	DashStatusDuration     time.Duration
	ContactInvulnerability time.Duration
	KillScore              int64

	Obstacles        int
	RoomObjects      int
	RoomObjectHealth float64

	Clusters          int
	ClusterSize       int
	ClusterRadius     float64
	MatterQuantityMin float64
	MatterQuantityMax float64
	RespawnDelayMin   time.Duration
	RespawnDelayMax   time.Duration

	Microorganisms  int
	NPCRespawnDelay time.Duration

	MaxDamagePopupsPerTick int

	ScoreMultiplier    float64
	EnergyMultiplier   float64
	XPMultiplier       float64
	CurrencyMultiplier float64

	SlowPerStack          float64
	PoisonDamagePerSecond float64
}

// DefaultConfig 默认世界参数
func DefaultConfig() Config {
	return Config{
		Width:                  2000,
		Height:                 2000,
		PlayerRadius:           20,
		MicroorganismRadius:    14,
		CollectionRadius:       40,
		TickInterval:           50 * time.Millisecond,
		MaxTickDelta:           200 * time.Millisecond,
		BasicAttackCooldown:    600 * time.Millisecond,
		AttackIntentTTL:        time.Second,
		DashCooldown:           3 * time.Second,
		DashDistance:           120,
		DashPower:              1.2,
		DashKnockback:          60,
		DashStatusDuration:     400 * time.Millisecond,
		ContactInvulnerability: 800 * time.Millisecond,
		KillScore:              100,
		Obstacles:              8,
		RoomObjects:            4,
		RoomObjectHealth:       150,
		Clusters:               10,
		ClusterSize:            6,
		ClusterRadius:          60,
		MatterQuantityMin:      1,
		MatterQuantityMax:      5,
		RespawnDelayMin:        8 * time.Second,
		RespawnDelayMax:        15 * time.Second,
		Microorganisms:         12,
		NPCRespawnDelay:        10 * time.Second,
		MaxDamagePopupsPerTick: 32,
		ScoreMultiplier:        10,
		EnergyMultiplier:       1,
		XPMultiplier:           2,
		CurrencyMultiplier:     0.5,
		SlowPerStack:           0.2,
		PoisonDamagePerSecond:  2,
	}
}
