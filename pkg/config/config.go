package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/onesheet/pkg/retry"
	"github.com/joho/godotenv"
)

const (
	// FileName is the config file inside the config directory.
	FileName = "config.json"

	xdgAppName = "onesheet"

	defaultCalendar = "Timesheet"
)

// Duration is a time.Duration that reads and writes as a string like "1s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Plain numbers are milliseconds.
		var ms int64
		if nerr := json.Unmarshal(b, &ms); nerr != nil {
			return fmt.Errorf("invalid duration %s", string(b))
		}
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// RetryConfig is the persisted form of retry.Config.
type RetryConfig struct {
	MaxRetries        int      `json:"max_retries"`
	InitialDelay      Duration `json:"initial_delay"`
	MaxDelay          Duration `json:"max_delay"`
	BackoffMultiplier float64  `json:"backoff_multiplier"`
}

// Policy converts the persisted settings into a retry.Config.
func (r RetryConfig) Policy() retry.Config {
	return retry.Config{
		MaxRetries:        r.MaxRetries,
		InitialDelay:      r.InitialDelay.Duration,
		MaxDelay:          r.MaxDelay.Duration,
		BackoffMultiplier: r.BackoffMultiplier,
	}
}

type Config struct {
	APIBaseURL      string      `json:"api_base_url"`
	TeamID          string      `json:"team_id"`
	Calendar        string      `json:"calendar"`
	ExcludeWeekends bool        `json:"exclude_weekends"`
	RequestTimeout  Duration    `json:"request_timeout"`
	SubmitRate      float64     `json:"submit_rate"`
	Retry           RetryConfig `json:"retry"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	rc := retry.DefaultConfig()
	return &Config{
		Calendar:        defaultCalendar,
		ExcludeWeekends: true,
		RequestTimeout:  Duration{30 * time.Second},
		Retry: RetryConfig{
			MaxRetries:        rc.MaxRetries,
			InitialDelay:      Duration{rc.InitialDelay},
			MaxDelay:          Duration{rc.MaxDelay},
			BackoffMultiplier: rc.BackoffMultiplier,
		},
	}
}

// GraphQLEndpoint is the team's GraphQL URL.
func (c *Config) GraphQLEndpoint() string {
	return fmt.Sprintf("%s/project/api/project/team/%s/items/graphql", strings.TrimRight(c.APIBaseURL, "/"), c.TeamID)
}

// LoginEndpoint is the email/password login URL.
func (c *Config) LoginEndpoint() string {
	return strings.TrimRight(c.APIBaseURL, "/") + "/project/api/project/auth/login"
}

// Validate checks the settings needed to reach the API.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required (or set ONES_API_BASE_URL)")
	}
	if c.TeamID == "" {
		return fmt.Errorf("team_id is required (or set ONES_TEAM_ID)")
	}
	if c.SubmitRate < 0 {
		return fmt.Errorf("submit_rate must not be negative")
	}
	return nil
}

// Dir returns ~/.config/onesheet.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads the config file, then applies a .env file and environment
// overrides on top.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load for an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	// A missing .env file is normal.
	_ = godotenv.Load()
	applyEnv(cfg)

	if cfg.Calendar == "" {
		cfg.Calendar = defaultCalendar
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.APIBaseURL = getEnv("ONES_API_BASE_URL", cfg.APIBaseURL)
	cfg.TeamID = getEnv("ONES_TEAM_ID", cfg.TeamID)
	cfg.Calendar = getEnv("ONES_CALENDAR", cfg.Calendar)
	cfg.RequestTimeout.Duration = getEnvAsDuration("ONES_REQUEST_TIMEOUT", cfg.RequestTimeout.Duration)
	cfg.SubmitRate = getEnvAsFloat("ONES_SUBMIT_RATE", cfg.SubmitRate)
}

func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo is Save for an explicit path.
func SaveTo(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %v", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}
