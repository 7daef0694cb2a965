package config

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
)

type StoreDriver string

const (
	DriverFile   StoreDriver = "file"
	DriverSQLite StoreDriver = "sqlite"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":3000"`
	StaticDir string `env:"STATIC_DIR"`

	// Storage
	DataDir     string      `env:"DATA_DIR" envDefault:"data"`
	StoreDriver StoreDriver `env:"STORE_DRIVER" envDefault:"file"`

	// Telegram
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	RequireInitData  bool          `env:"REQUIRE_INIT_DATA" envDefault:"false"`
	InitDataMaxAge   time.Duration `env:"INIT_DATA_MAX_AGE" envDefault:"24h"`
	MiniAppURL       string        `env:"MINIAPP_URL"`
	AdminUserID      int64         `env:"ADMIN_USER"`

	// Jobs
	ReportCron string `env:"REPORT_CRON" envDefault:"0 21 * * *"`
	SweepCron  string `env:"SWEEP_CRON" envDefault:"@every 1h"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverFile, DriverSQLite:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.RequireInitData && c.TelegramBotToken == "" {
		return fmt.Errorf("REQUIRE_INIT_DATA needs TELEGRAM_BOT_TOKEN")
	}
	return nil
}

func (c *Config) UsersDir() string     { return filepath.Join(c.DataDir, "users") }
func (c *Config) SQLitePath() string   { return filepath.Join(c.DataDir, "state.db") }
func (c *Config) JournalPath() string  { return filepath.Join(c.DataDir, "journal.jsonl") }
func (c *Config) RegistryPath() string { return filepath.Join(c.DataDir, "registered.json") }
