package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pitlog/internal/storage"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`

	Store   Store
	Logging Logging

	// Delivery
	SendAttempts   int           `env:"SEND_ATTEMPTS" envDefault:"3"`
	SendRetryDelay time.Duration `env:"SEND_RETRY_DELAY" envDefault:"1s"`
	SendRatePerSec float64       `env:"SEND_RATE_PER_SEC" envDefault:"25"`

	// Daily digest, sent to AdminUserID
	DigestCron string `env:"DIGEST_CRON" envDefault:"0 21 * * *"`
}

// Store is the part of the configuration shared by every binary that reads records.
type Store struct {
	Backend         string `env:"STORE_BACKEND" envDefault:"xlsx"`
	DataDir         string `env:"DATA_DIR" envDefault:"data"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"data/pitlog.db"`
	SpreadsheetID   string `env:"SHEETS_SPREADSHEET_ID"`
	CredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE" envDefault:"credentials.json"`
	SessionsTable   string `env:"SESSIONS_TABLE" envDefault:"mechanics"`
	UsersTable      string `env:"USERS_TABLE" envDefault:"users"`
	Timezone        string `env:"TIMEZONE" envDefault:"UTC"`
}

type Logging struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

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

// ParseStore reads only the store and logging settings; the bot token is not needed.
func ParseStore() (*Store, *Logging, error) {
	var cfg struct {
		Store   Store
		Logging Logging
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, nil, err
	}
	return &cfg.Store, &cfg.Logging, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if c.SendAttempts < 1 {
		return fmt.Errorf("SEND_ATTEMPTS must be at least 1, got %d", c.SendAttempts)
	}
	return nil
}

// Location resolves TIMEZONE; record timestamps and the digest schedule use it.
func (c *Config) Location() (*time.Location, error) { return c.Store.Location() }

func (s Store) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", s.Timezone, err)
	}
	return loc, nil
}

func (s Store) validate() error {
	if _, err := s.Location(); err != nil {
		return err
	}
	switch storage.Backend(s.Backend) {
	case storage.BackendFile, storage.BackendSQLite:
		return nil
	case storage.BackendSheets:
		if s.SpreadsheetID == "" {
			return fmt.Errorf("SHEETS_SPREADSHEET_ID is required for the sheets backend")
		}
		return nil
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", s.Backend)
	}
}

func (s Store) Options() storage.Options {
	return storage.Options{
		Backend:         storage.Backend(s.Backend),
		Dir:             s.DataDir,
		SQLitePath:      s.SQLitePath,
		SpreadsheetID:   s.SpreadsheetID,
		CredentialsFile: s.CredentialsFile,
	}
}

// Logger builds the process logger. Output goes to stderr.
func (l Logging) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", l.Level, err)
	}
	var zc zap.Config
	switch strings.ToLower(l.Format) {
	case "json", "":
		zc = zap.NewProductionConfig()
	case "console", "text":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", l.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
