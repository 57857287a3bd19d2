// Package config loads run settings: built-in defaults, then an optional
// YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/chriserin/gherkit/internal/failure"
)

type Settings struct {
	BaseURL     string `yaml:"base_url" env:"BASE_URL"`
	APIBaseURL  string `yaml:"api_base_url" env:"API_BASE_URL"`
	APIDataDir  string `yaml:"api_data_dir" env:"API_DATA_DIR"`
	ElementsDir string `yaml:"elements_dir" env:"ELEMENTS_DIR"`
	FeaturesDir string `yaml:"features_dir" env:"FEATURES_DIR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	Parallel    int    `yaml:"parallel" env:"PARALLEL"`

	Browser    Browser    `yaml:"browser"`
	Timeouts   Timeouts   `yaml:"timeouts"`
	Screenshot Screenshot `yaml:"screenshot"`
	Report     Report     `yaml:"report"`

	// Database is the connection used by "I connect to configured database".
	Database Database `yaml:"database"`
	// Databases holds named connections for "I connect to database NAME".
	Databases map[string]Database `yaml:"databases"`
}

type Browser struct {
	Headless  bool   `yaml:"headless" env:"HEADLESS"`
	Width     int    `yaml:"width" env:"VIEWPORT_WIDTH"`
	Height    int    `yaml:"height" env:"VIEWPORT_HEIGHT"`
	ExecPath  string `yaml:"exec_path" env:"CHROME_PATH"`
	UserAgent string `yaml:"user_agent" env:"USER_AGENT"`
}

// Timeouts are in milliseconds.
type Timeouts struct {
	DefaultMS    int `yaml:"default_ms" env:"DEFAULT_TIMEOUT"`
	NavigationMS int `yaml:"navigation_ms" env:"NAVIGATION_TIMEOUT"`
	ActionMS     int `yaml:"action_ms" env:"ACTION_TIMEOUT"`
}

func (t Timeouts) Default() time.Duration    { return time.Duration(t.DefaultMS) * time.Millisecond }
func (t Timeouts) Navigation() time.Duration { return time.Duration(t.NavigationMS) * time.Millisecond }
func (t Timeouts) Action() time.Duration     { return time.Duration(t.ActionMS) * time.Millisecond }

type Screenshot struct {
	OnFailure bool   `yaml:"on_failure" env:"SCREENSHOT_ON_FAILURE"`
	Dir       string `yaml:"dir" env:"SCREENSHOT_DIR"`
}

type Report struct {
	AllureDir   string `yaml:"allure_dir" env:"ALLURE_RESULTS_DIR"`
	HistoryPath string `yaml:"history_path" env:"HISTORY_DB"`
}

type Database struct {
	Type     string `yaml:"type" env:"DB_TYPE"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Name     string `yaml:"name" env:"DB_NAME"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE"`
	// DSN, when set, is passed to the driver as is.
	DSN string `yaml:"dsn" env:"DB_DSN"`
}

func Default() Settings {
	return Settings{
		APIDataDir:  "data/api",
		ElementsDir: "data/elements",
		FeaturesDir: "features",
		LogLevel:    "info",
		Parallel:    1,
		Browser: Browser{
			Headless: true,
			Width:    1920,
			Height:   1080,
		},
		Timeouts: Timeouts{
			DefaultMS:    30000,
			NavigationMS: 30000,
			ActionMS:     30000,
		},
		Screenshot: Screenshot{OnFailure: true, Dir: "screenshots"},
		Report: Report{
			AllureDir:   "allure-results",
			HistoryPath: ".gherkit/history.db",
		},
		Database: Database{Type: "sqlite", Name: ":memory:"},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and then with the environment.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, &failure.ConfigurationError{Source: path, Reason: err.Error()}
		}
	}
	if err := ParseEnv(&s); err != nil {
		return s, &failure.ConfigurationError{Source: "environment", Reason: err.Error()}
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// ParseEnv overlays environment variables onto target. Unset variables
// leave fields untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (s Settings) Validate() error {
	var problems []string
	if s.Parallel < 1 {
		problems = append(problems, "parallel must be at least 1")
	}
	if s.Timeouts.DefaultMS <= 0 || s.Timeouts.NavigationMS <= 0 || s.Timeouts.ActionMS <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if _, err := NormalizeDriver(s.Database.Type); err != nil {
		problems = append(problems, "database: "+err.Error())
	}
	for name, db := range s.Databases {
		if _, err := NormalizeDriver(db.Type); err != nil {
			problems = append(problems, fmt.Sprintf("databases.%s: %v", name, err))
		}
	}
	if len(problems) > 0 {
		return &failure.ConfigurationError{Source: "settings", Reason: strings.Join(problems, "; ")}
	}
	return nil
}

// APIBase returns the base URL for "I initialize API client with configured
// base URL", preferring API_BASE_URL over BASE_URL.
func (s Settings) APIBase() (string, error) {
	if s.APIBaseURL != "" {
		return s.APIBaseURL, nil
	}
	if s.BaseURL != "" {
		return s.BaseURL, nil
	}
	return "", errors.New("API base URL not configured, set API_BASE_URL or BASE_URL")
}

// ResolveDatabase finds the connection for name: a key of Databases first,
// then a driver type applied to the configured Database.
func (s Settings) ResolveDatabase(name string) (Database, error) {
	if db, ok := s.Databases[name]; ok {
		return db, nil
	}
	driver, err := NormalizeDriver(name)
	if err != nil {
		return Database{}, fmt.Errorf("unknown database %q: not a named connection or supported type", name)
	}
	db := s.Database
	if current, _ := NormalizeDriver(db.Type); current != driver {
		db = Database{Type: name}
		if driver == "sqlite" {
			db.Name = ":memory:"
		}
	}
	db.Type = name
	return db, nil
}

// NormalizeDriver maps a configured database type to a database/sql driver
// name.
func NormalizeDriver(dbType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql":
		return "postgres", nil
	case "":
		return "", errors.New("database type is empty")
	}
	return "", fmt.Errorf("unsupported database type %q", dbType)
}
