package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"worldserver"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"worldserver"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"worldserver"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// JWT
	JWTSecret       string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry string `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry  string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server
	APIPort int    `env:"API_PORT" envDefault:"3200"`
	WorldID string `env:"WORLD_ID" envDefault:"midgard"`

	// Scheduler
	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"300ms"`
	SnapshotPeriod time.Duration `env:"SNAPSHOT_PERIOD" envDefault:"60s"`
	EventRetention int           `env:"EVENT_RETENTION_DAYS" envDefault:"14"`

	// Calendar. Day k starts at WORLD_EPOCH_MS + k*DAY_LENGTH_SECONDS;
	// a zero epoch anchors the calendar at process start.
	DayLengthSec int64 `env:"DAY_LENGTH_SECONDS" envDefault:"3600"`
	WorldEpochMs int64 `env:"WORLD_EPOCH_MS" envDefault:"0"`

	// Economy
	MiningYieldWood   int64 `env:"MINING_YIELD_WOOD" envDefault:"8"`
	MiningYieldStone  int64 `env:"MINING_YIELD_STONE" envDefault:"5"`
	MiningYieldGold   int64 `env:"MINING_YIELD_GOLD" envDefault:"2"`
	RecruitCostWood   int64 `env:"RECRUIT_COST_WOOD" envDefault:"30"`
	RecruitCostGold   int64 `env:"RECRUIT_COST_GOLD" envDefault:"10"`
	RecruitSecPerUnit int64 `env:"RECRUIT_SEC_PER_UNIT" envDefault:"30"`
	UpkeepGoldPerDay  int64 `env:"UPKEEP_GOLD_PER_DAY" envDefault:"5"`
	StartingWood      int64 `env:"STARTING_WOOD" envDefault:"200"`
	StartingStone     int64 `env:"STARTING_STONE" envDefault:"100"`
	StartingGold      int64 `env:"STARTING_GOLD" envDefault:"50"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or nonsensical configuration that must not
// run in production. Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.TickInterval < 50*time.Millisecond || c.TickInterval > time.Second {
		return fmt.Errorf("TICK_INTERVAL must be between 50ms and 1s, got %s", c.TickInterval)
	}
	if c.DayLengthSec < 60 {
		return fmt.Errorf("DAY_LENGTH_SECONDS must be at least 60, got %d", c.DayLengthSec)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
