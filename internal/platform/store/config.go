package store

import (
	"time"

	"turnstile/internal/platform/config"
)

// Config aggregates per backend configuration
type Config struct {
	AppName string

	PG  PGConfig
	KV  KVConfig
	RDS RedisConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// Guard/boot knobs:
	ConnectRetries int           // default 20
	PingTimeout    time.Duration // default 3s
}

// KVConfig configures the embedded pebble store
type KVConfig struct {
	Enabled bool
	Path    string
	// InMemory keeps the database on a memory filesystem (tests, demos)
	InMemory bool
}

// RedisConfig configures redis connectivity
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ConfigFromEnv reads backend config under the STORE_ prefix of cfg
//
//	STORE_BACKEND=pg|kv  STORE_PG_DBURL  STORE_KV_PATH  STORE_REDIS_ADDR
func ConfigFromEnv(cfg config.Conf, appName string) Config {
	sc := cfg.Prefix("STORE_")
	backend := sc.MayEnum("BACKEND", "kv", "pg", "kv")

	out := Config{AppName: appName}
	switch backend {
	case "pg":
		pg := sc.Prefix("PG_")
		out.PG = PGConfig{
			Enabled:     true,
			URL:         pg.MustString("DBURL"),
			MaxConns:    int32(pg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs: pg.MayInt("SLOW_MS", 250),
			LogSQL:      pg.MayBool("LOG_SQL", false),
		}
	default:
		kv := sc.Prefix("KV_")
		out.KV = KVConfig{
			Enabled:  true,
			Path:     kv.MayString("PATH", "./data/turnstile"),
			InMemory: kv.MayBool("IN_MEMORY", false),
		}
	}

	rds := sc.Prefix("REDIS_")
	if addr := rds.MayString("ADDR", ""); addr != "" {
		out.RDS = RedisConfig{
			Enabled:  true,
			Addr:     addr,
			Password: rds.MayString("PASSWORD", ""),
			DB:       rds.MayInt("DB", 0),
		}
	}
	return out
}
