package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/raosunjoy/HomeChance-Lottery/internal/logger"
)

const minKeyLength = 32

type Config struct {
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"persistent.db"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile      string `env:"LOG_FILE"`
	LogErrorFile string `env:"LOG_ERROR_FILE"`
	LogConsole   bool   `env:"LOG_CONSOLE" envDefault:"true"`

	// hex encoded secrets
	ProgramKey string `env:"PROGRAM_KEY,required"`
	OracleKey  string `env:"ORACLE_KEY,required"`

	CharityAccount string `env:"CHARITY_ACCOUNT,required"`

	TrackerInterval time.Duration `env:"TRACKER_INTERVAL" envDefault:"5s"`
	TrackerBatch    int           `env:"TRACKER_BATCH" envDefault:"100"`

	// LedgerAdmin exposes the funding and account routes of the in-memory ledger.
	LedgerAdmin bool `env:"LEDGER_ADMIN" envDefault:"false"`
}

// Load reads the optional .env files, then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := c.ProgramKeyBytes(); err != nil {
		return err
	}
	if _, err := c.OracleKeyBytes(); err != nil {
		return err
	}
	if c.CharityAccount == "" {
		return errors.New("CHARITY_ACCOUNT is required")
	}
	if c.TrackerInterval <= 0 {
		return errors.New("TRACKER_INTERVAL must be positive")
	}
	if c.TrackerBatch <= 0 {
		return errors.New("TRACKER_BATCH must be positive")
	}
	return nil
}

func (c *Config) ProgramKeyBytes() ([]byte, error) {
	return decodeKey("PROGRAM_KEY", c.ProgramKey)
}

func (c *Config) OracleKeyBytes() ([]byte, error) {
	return decodeKey("ORACLE_KEY", c.OracleKey)
}

func (c *Config) Logger() logger.Configuration {
	return logger.Configuration{
		LogFile:   c.LogFile,
		ErrorFile: c.LogErrorFile,
		Level:     c.LogLevel,
		Console:   c.LogConsole,
	}
}

func decodeKey(name, value string) ([]byte, error) {
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex encoded: %w", name, err)
	}
	if len(key) < minKeyLength {
		return nil, fmt.Errorf("%s must decode to at least %d bytes", name, minKeyLength)
	}
	return key, nil
}
