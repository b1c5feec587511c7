package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
)

// Environment variables overriding the file configuration
const (
	EnvServerAddress  = "SERVER_ADDRESS"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
	EnvRawAddress     = "RAW_ADDRESS"
	EnvPrinterIndex   = "PRINTER_INDEX"
	EnvCodePage       = "PRINTER_CODEPAGE"
	EnvJobTimeout     = "JOB_TIMEOUT"
	EnvReleaseGrace   = "RELEASE_GRACE"
	EnvRateLimitRPS   = "RATE_LIMIT_RPS"
	EnvRateLimitBurst = "RATE_LIMIT_BURST"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Printer   PrinterConfig   `yaml:"printer"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RawAddress enables the raw TCP passthrough when set
	RawAddress string `yaml:"raw_address"`
}

type PrinterConfig struct {
	Index        int           `yaml:"index"`
	CodePage     string        `yaml:"code_page"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	ReleaseGrace time.Duration `yaml:"release_grace"`
}

// RateLimitConfig limits print requests per client. RPS 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "localhost:3001",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Printer: PrinterConfig{
			Index:        0,
			CodePage:     escpos.DefaultCodePage,
			JobTimeout:   10 * time.Second,
			ReleaseGrace: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 10,
		},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaults()
}

// Load reads the YAML file at configPath (skipped when empty or missing),
// applies environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(cfg, viper.New())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg from the environment. Values already in cfg act
// as viper defaults.
func applyEnv(cfg *Config, v *viper.Viper) {
	v.AutomaticEnv()

	v.SetDefault(EnvServerAddress, cfg.Server.Address)
	v.SetDefault(EnvAllowedOrigins, strings.Join(cfg.Server.AllowedOrigins, ","))
	v.SetDefault(EnvRawAddress, cfg.Server.RawAddress)
	v.SetDefault(EnvPrinterIndex, cfg.Printer.Index)
	v.SetDefault(EnvCodePage, cfg.Printer.CodePage)
	v.SetDefault(EnvJobTimeout, cfg.Printer.JobTimeout)
	v.SetDefault(EnvReleaseGrace, cfg.Printer.ReleaseGrace)
	v.SetDefault(EnvRateLimitRPS, cfg.RateLimit.RPS)
	v.SetDefault(EnvRateLimitBurst, cfg.RateLimit.Burst)

	cfg.Server.Address = v.GetString(EnvServerAddress)
	cfg.Server.AllowedOrigins = splitList(v.GetString(EnvAllowedOrigins))
	cfg.Server.RawAddress = v.GetString(EnvRawAddress)
	cfg.Printer.Index = v.GetInt(EnvPrinterIndex)
	cfg.Printer.CodePage = v.GetString(EnvCodePage)
	cfg.Printer.JobTimeout = v.GetDuration(EnvJobTimeout)
	cfg.Printer.ReleaseGrace = v.GetDuration(EnvReleaseGrace)
	cfg.RateLimit.RPS = v.GetFloat64(EnvRateLimitRPS)
	cfg.RateLimit.Burst = v.GetInt(EnvRateLimitBurst)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}

	if c.Printer.Index < 0 {
		return fmt.Errorf("printer index must be non-negative, got %d", c.Printer.Index)
	}

	if _, err := escpos.NewEncoder(c.Printer.CodePage); err != nil {
		return err
	}

	if c.Printer.JobTimeout <= 0 {
		return fmt.Errorf("job timeout must be positive")
	}

	if c.Printer.ReleaseGrace <= 0 {
		return fmt.Errorf("release grace must be positive")
	}

	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate limit rps must be non-negative")
	}

	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}

	return nil
}
