package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresName     string
	PostgresSSLMode  string

	SQLitePath string

	MaxOpenConns int
	SlowQuery    time.Duration
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	ssl := c.PostgresSSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresName,
		ssl,
	)
}

type Service struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func NewService(logg *logger.Logger, cfg Config) (*Service, error) {
	serviceLog := logg.With("service", "LedgerStore")

	slow := cfg.SlowQuery
	if slow <= 0 {
		slow = time.Second
	}
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		gdb *gorm.DB
		err error
	)
	switch driver {
	case "", DriverPostgres:
		driver = DriverPostgres
		gdb, err = gorm.Open(postgres.Open(cfg.DSN()), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB, err := gdb.DB()
			if err != nil {
				return nil, err
			}
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
	case DriverSQLite:
		gdb, err = OpenSQLite(cfg.SQLitePath, gcfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (allowed: %q, %q)", cfg.Driver, DriverPostgres, DriverSQLite)
	}

	serviceLog.Info("Ledger store connected", "driver", driver)
	return &Service{db: gdb, driver: driver, log: serviceLog}, nil
}

// OpenSQLite opens an embedded store. SQLite has a single writer, so the pool is pinned
// to one connection and transactions serialize in the pool instead of failing with SQLITE_BUSY.
func OpenSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "quotebridge.db"
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=off&_busy_timeout=5000"
	}
	gdb, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Driver() string { return s.driver }

// Migrate creates tables and the raw-SQL indexes gorm tags cannot express.
func (s *Service) Migrate() error {
	s.log.Info("Running migrations...")
	if err := AutoMigrateAll(s.db); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if err := EnsureNegotiationIndexes(s.db); err != nil {
		return fmt.Errorf("ensure negotiation indexes: %w", err)
	}
	return nil
}

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
