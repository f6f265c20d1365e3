package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/quotebridge-backend/internal/data/db"
	"github.com/yungbote/quotebridge-backend/internal/notify"
	"github.com/yungbote/quotebridge-backend/internal/platform/envutil"
	"github.com/yungbote/quotebridge-backend/internal/platform/gcp"
	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

// Config is read from an optional YAML file, then overridden by the environment.
type Config struct {
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
	Port        string `yaml:"port"`

	JWTSecretKey string `yaml:"jwt_secret_key"`

	DB DBConfig `yaml:"db"`

	Notify NotifyConfig `yaml:"notify"`

	Attachments AttachmentConfig `yaml:"attachments"`

	BatchFanoutConcurrency int `yaml:"batch_fanout_concurrency"`

	Worker WorkerConfig `yaml:"worker"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

type DBConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
	MaxConns   int    `yaml:"max_conns"`
}

type NotifyConfig struct {
	Sink         string `yaml:"sink"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`
	NATSURL      string `yaml:"nats_url"`
	NATSSubject  string `yaml:"nats_subject"`
	NATSStream   string `yaml:"nats_stream"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

type AttachmentConfig struct {
	Mode          string        `yaml:"mode"`
	Bucket        string        `yaml:"bucket"`
	EmulatorHost  string        `yaml:"emulator_host"`
	PublicBaseURL string        `yaml:"public_base_url"`
	URLTTL        time.Duration `yaml:"url_ttl"`
}

type WorkerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	RecoveryInterval   time.Duration `yaml:"recovery_interval"`
	RecoveryStaleAfter time.Duration `yaml:"recovery_stale_after"`
}

func defaultConfig() Config {
	return Config{
		ServiceName: "quotebridge",
		Environment: "development",
		Port:        "8080",
		DB: DBConfig{
			Driver:     db.DriverPostgres,
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Name:       "quotebridge",
			SSLMode:    "disable",
			SQLitePath: "quotebridge.db",
		},
		Notify: NotifyConfig{
			Sink:        notify.SinkLog,
			MaxAttempts: 10,
		},
		Attachments: AttachmentConfig{
			URLTTL: 15 * time.Minute,
		},
		BatchFanoutConcurrency: 4,
		Worker: WorkerConfig{
			Enabled:            true,
			OutboxPollInterval: 2 * time.Second,
			RecoveryInterval:   time.Minute,
			RecoveryStaleAfter: 5 * time.Minute,
		},
	}
}

// LoadConfig reads path (or CONFIG_FILE) when set, then applies environment overrides.
func LoadConfig(log *logger.Logger, path string) (Config, error) {
	cfg := defaultConfig()

	if strings.TrimSpace(path) == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServiceName = envutil.String("SERVICE_NAME", c.ServiceName)
	c.Environment = envutil.String("APP_ENV", c.Environment)
	c.Port = envutil.String("PORT", c.Port)
	c.JWTSecretKey = envutil.String("JWT_SECRET_KEY", c.JWTSecretKey)

	c.DB.Driver = envutil.String("DB_DRIVER", c.DB.Driver)
	c.DB.Host = envutil.String("POSTGRES_HOST", c.DB.Host)
	c.DB.Port = envutil.String("POSTGRES_PORT", c.DB.Port)
	c.DB.User = envutil.String("POSTGRES_USER", c.DB.User)
	c.DB.Password = envutil.String("POSTGRES_PASSWORD", c.DB.Password)
	c.DB.Name = envutil.String("POSTGRES_NAME", c.DB.Name)
	c.DB.SSLMode = envutil.String("POSTGRES_SSLMODE", c.DB.SSLMode)
	c.DB.SQLitePath = envutil.String("SQLITE_PATH", c.DB.SQLitePath)
	c.DB.MaxConns = envutil.Int("POSTGRES_MAX_CONNS", c.DB.MaxConns)

	c.Notify.Sink = envutil.String("NOTIFY_SINK", c.Notify.Sink)
	c.Notify.RedisAddr = envutil.String("REDIS_ADDR", c.Notify.RedisAddr)
	c.Notify.RedisChannel = envutil.String("REDIS_CHANNEL", c.Notify.RedisChannel)
	c.Notify.NATSURL = envutil.String("NATS_URL", c.Notify.NATSURL)
	c.Notify.NATSSubject = envutil.String("NATS_SUBJECT", c.Notify.NATSSubject)
	c.Notify.NATSStream = envutil.String("NATS_STREAM", c.Notify.NATSStream)
	c.Notify.MaxAttempts = envutil.Int("NOTIFY_MAX_ATTEMPTS", c.Notify.MaxAttempts)

	c.Attachments.Mode = envutil.String("ATTACHMENT_STORAGE_MODE", c.Attachments.Mode)
	c.Attachments.Bucket = envutil.String("ATTACHMENT_BUCKET", c.Attachments.Bucket)
	c.Attachments.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.Attachments.EmulatorHost)
	c.Attachments.PublicBaseURL = envutil.String("ATTACHMENT_PUBLIC_BASE_URL", c.Attachments.PublicBaseURL)
	c.Attachments.URLTTL = envutil.Duration("ATTACHMENT_URL_TTL", c.Attachments.URLTTL)

	c.BatchFanoutConcurrency = envutil.Int("BATCH_FANOUT_CONCURRENCY", c.BatchFanoutConcurrency)

	c.Worker.Enabled = envutil.Bool("WORKER_ENABLED", c.Worker.Enabled)
	c.Worker.OutboxPollInterval = envutil.Duration("OUTBOX_POLL_INTERVAL", c.Worker.OutboxPollInterval)
	c.Worker.RecoveryInterval = envutil.Duration("RECOVERY_INTERVAL", c.Worker.RecoveryInterval)
	c.Worker.RecoveryStaleAfter = envutil.Duration("RECOVERY_STALE_AFTER", c.Worker.RecoveryStaleAfter)

	c.MetricsEnabled = envutil.Bool("METRICS_ENABLED", c.MetricsEnabled)
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("invalid DB_DRIVER=%q (allowed: %q, %q)", c.DB.Driver, db.DriverPostgres, db.DriverSQLite)
	}
	if c.BatchFanoutConcurrency < 1 {
		return fmt.Errorf("BATCH_FANOUT_CONCURRENCY must be >= 1, got %d", c.BatchFanoutConcurrency)
	}
	if c.Worker.RecoveryStaleAfter <= 0 {
		return fmt.Errorf("RECOVERY_STALE_AFTER must be positive")
	}
	return nil
}

func (c Config) DBConfig() db.Config {
	return db.Config{
		Driver:           c.DB.Driver,
		PostgresHost:     c.DB.Host,
		PostgresPort:     c.DB.Port,
		PostgresUser:     c.DB.User,
		PostgresPassword: c.DB.Password,
		PostgresName:     c.DB.Name,
		PostgresSSLMode:  c.DB.SSLMode,
		SQLitePath:       c.DB.SQLitePath,
		MaxOpenConns:     c.DB.MaxConns,
	}
}

func (c Config) SinkConfig() notify.SinkConfig {
	return notify.SinkConfig{
		Kind:         c.Notify.Sink,
		RedisAddr:    c.Notify.RedisAddr,
		RedisChannel: c.Notify.RedisChannel,
		NATSURL:      c.Notify.NATSURL,
		NATSSubject:  c.Notify.NATSSubject,
		NATSStream:   c.Notify.NATSStream,
	}
}

func (c Config) AttachmentStoreConfig() gcp.AttachmentStoreConfig {
	return gcp.AttachmentStoreConfig{
		Mode:          gcp.StorageMode(strings.ToLower(strings.TrimSpace(c.Attachments.Mode))),
		Bucket:        c.Attachments.Bucket,
		EmulatorHost:  c.Attachments.EmulatorHost,
		PublicBaseURL: c.Attachments.PublicBaseURL,
	}
}
