package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port                   int      `mapstructure:"port"`
		CorsAllowedOrigins     []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods     []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders     []string `mapstructure:"cors_allowed_headers"`
		ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		MaxConns int    `mapstructure:"max_conns"`
	} `mapstructure:"database"`

	Storage struct {
		// Driver is "postgres" or "memory".
		Driver string `mapstructure:"driver"`
	} `mapstructure:"storage"`

	JWT struct {
		Secret          string `mapstructure:"secret"`
		ExpirationHours int    `mapstructure:"expiration_hours"`
		Issuer          string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Redis struct {
		Addr            string `mapstructure:"addr"`
		Password        string `mapstructure:"password"`
		DB              int    `mapstructure:"db"`
		EventsChannel   string `mapstructure:"events_channel"`
		StatsTTLSeconds int    `mapstructure:"stats_ttl_seconds"`
	} `mapstructure:"redis"`

	Outbox struct {
		PollIntervalMs int `mapstructure:"poll_interval_ms"`
		BatchSize      int `mapstructure:"batch_size"`
		MaxAttempts    int `mapstructure:"max_attempts"`
	} `mapstructure:"outbox"`

	// ObjectStore is an S3-compatible bucket (R2, MinIO, S3) used to archive
	// supplier order sheets and as a fallback source for the JWT secret.
	ObjectStore struct {
		Enabled       bool   `mapstructure:"enabled"`
		Endpoint      string `mapstructure:"endpoint"`
		Region        string `mapstructure:"region"`
		Bucket        string `mapstructure:"bucket"`
		AccessKey     string `mapstructure:"access_key"`
		SecretKey     string `mapstructure:"secret_key"`
		JWTSecretKey  string `mapstructure:"jwt_secret_key"`
		ArchivePrefix string `mapstructure:"archive_prefix"`
	} `mapstructure:"object_store"`

	App struct {
		Timezone string `mapstructure:"timezone"`
		LogMode  string `mapstructure:"log_mode"`
	} `mapstructure:"app"`
}

// Load reads configs/config.yaml when present, applies defaults and then the
// environment overrides.
func Load() *Config {
	// Load .env file if exists (ignore error in production)
	godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		log.Printf("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("config unmarshal error: %v", err)
	}

	applyEnv(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "vendfleet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("jwt.expiration_hours", 24)
	v.SetDefault("jwt.issuer", "vendfleet-backend")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.events_channel", "material-requests")
	v.SetDefault("redis.stats_ttl_seconds", 60)
	v.SetDefault("outbox.poll_interval_ms", 1000)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 10)
	v.SetDefault("object_store.region", "auto")
	v.SetDefault("object_store.jwt_secret_key", "config/jwt_secret.txt")
	v.SetDefault("object_store.archive_prefix", "order-sheets")
	v.SetDefault("app.timezone", "Asia/Kolkata")
	v.SetDefault("app.log_mode", "dev")
}

func applyEnv(cfg *Config) {
	// Override database settings from DB_* environment variables
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	if key := os.Getenv("OBJECT_STORE_ACCESS_KEY"); key != "" {
		cfg.ObjectStore.AccessKey = key
	}
	if secret := os.Getenv("OBJECT_STORE_SECRET_KEY"); secret != "" {
		cfg.ObjectStore.SecretKey = secret
	}

	if mode := os.Getenv("LOG_MODE"); mode != "" {
		cfg.App.LogMode = mode
	}

	if cfg.JWT.Secret == "" || cfg.JWT.Secret == "${JWT_SECRET}" {
		cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	}
}

// DSN is the pgx connection string for the configured database.
func (c *Config) DSN() string {
	sslmode := c.Database.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return "postgres://" + c.Database.User + ":" + c.Database.Password + "@" +
		c.Database.Host + ":" + strconv.Itoa(c.Database.Port) + "/" + c.Database.Name +
		"?sslmode=" + sslmode
}

func (c *Config) OutboxInterval() time.Duration {
	return time.Duration(c.Outbox.PollIntervalMs) * time.Millisecond
}

func (c *Config) StatsTTL() time.Duration {
	return time.Duration(c.Redis.StatsTTLSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
