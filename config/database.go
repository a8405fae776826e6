package config

import (
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"opsdesk"`
	Password string `env:"PASSWORD"                envDefault:"opsdesk"`
	Name     string `env:"NAME"                    envDefault:"opsdesk"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// SessionConfig controls persistence of the active session.
type SessionConfig struct {
	// SnapshotEnabled persists the active identity to Redis so a restart can restore it.
	SnapshotEnabled bool `env:"SESSION_SNAPSHOT_ENABLED" envDefault:"true"`
	// SnapshotKey is the Redis key holding the snapshot.
	SnapshotKey string `env:"SESSION_SNAPSHOT_KEY" envDefault:"opsdesk:session:default"`
	// SnapshotTTL bounds how long a saved session can be restored. Zero keeps it until logout.
	SnapshotTTL time.Duration `env:"SESSION_SNAPSHOT_TTL" envDefault:"720h"`
}

// Sanitize applies guardrails to session configuration values.
func (c *SessionConfig) Sanitize() {
	c.SnapshotKey = strings.TrimSpace(c.SnapshotKey)
	if c.SnapshotKey == "" {
		c.SnapshotKey = "opsdesk:session:default"
	}
	if c.SnapshotTTL < 0 {
		c.SnapshotTTL = 0
	}
}
