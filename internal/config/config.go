// Package config builds the single configuration value every glowctl command runs
// with.
//
// Values come from three places, in increasing precedence:
//   - built-in defaults
//   - the optional YAML file (.glowctl.yaml)
//   - the process environment, after .env.local/.env are loaded with godotenv
//
// The entry point calls Load once and passes the result down explicitly; nothing
// else in the module reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/samachi/glowctl/internal/registry"
)

const (
	DefaultAPIBaseURL = "https://opera.glownet.com"
	DefaultAppURL     = "http://localhost:3000"
)

// Config is the resolved configuration. Treat it as read-only after Load.
type Config struct {
	Version     int      `yaml:"version"`
	Defaults    Defaults `yaml:"defaults"`
	APIBaseURL  string   `yaml:"-"`
	APIKey      string   `yaml:"-"`
	AppURL      string   `yaml:"-"`
	DatabaseURL string   `yaml:"-"`
	LogLevel    string   `yaml:"-"`

	// EnvFiles lists the dotenv files that were found and loaded.
	EnvFiles []string `yaml:"-"`
}

// Defaults holds the tunables that may be set in the YAML file.
type Defaults struct {
	PerPage         int               `yaml:"per_page"`
	PageDelay       time.Duration     `yaml:"page_delay"`
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
	SettleDelay     time.Duration     `yaml:"settle_delay"`
	ActionDelay     time.Duration     `yaml:"action_delay"`
	Tolerance       float64           `yaml:"tolerance"`
	ScaleFactors    []float64         `yaml:"scale_factors"`
	TopupMultiplier int               `yaml:"topup_multiplier"`
	TopupGateway    string            `yaml:"topup_gateway"`
	RefundGateway   string            `yaml:"refund_gateway"`
	SummaryPath     string            `yaml:"summary_path"`
	VenueImages     []registry.Source `yaml:"venue_images"`
}

// ErrMissingAPIKey is returned by RequireAPIKey.
var ErrMissingAPIKey = errors.New("GLOWNET_API_KEY environment variable not set")

// Load reads the YAML file at path (a missing file means "all defaults"), loads
// the given dotenv files that exist, and overlays the environment.
func Load(path string, envFiles ...string) (*Config, error) {
	c, err := readFile(path)
	if err != nil {
		return nil, err
	}
	c.EnvFiles, err = loadEnv(envFiles)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// readFile decodes the YAML over the defaults, so a key set to 0 (page_delay: 0s)
// stays 0 while an absent key keeps its default.
func readFile(path string) (*Config, error) {
	c := Config{Version: 1, Defaults: defaultValues()}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	c.fillEmpty()
	return &c, nil
}

// loadEnv loads dotenv files without overriding variables already set, so the
// real environment always wins.
func loadEnv(files []string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("%s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

func defaultValues() Defaults {
	return Defaults{
		PerPage:         100,
		PageDelay:       100 * time.Millisecond,
		RequestTimeout:  30 * time.Second,
		SettleDelay:     time.Second,
		ActionDelay:     200 * time.Millisecond,
		Tolerance:       0.001,
		ScaleFactors:    []float64{1, 100},
		TopupMultiplier: 100,
		TopupGateway:    "samachi_stake_test",
		RefundGateway:   "samachi_settlement",
		SummaryPath:     "glownet_test_data_summary.json",
		VenueImages:     []registry.Source{{Type: "file", Path: "scripts/venue_images.json"}},
	}
}

// fillEmpty restores defaults for keys present but blank in the YAML. Numbers
// are left alone: zero is a real setting for delays and tolerance.
func (c *Config) fillEmpty() {
	def := defaultValues()
	if c.Version == 0 {
		c.Version = 1
	}
	d := &c.Defaults
	if len(d.ScaleFactors) == 0 {
		d.ScaleFactors = def.ScaleFactors
	}
	if d.TopupGateway == "" {
		d.TopupGateway = def.TopupGateway
	}
	if d.RefundGateway == "" {
		d.RefundGateway = def.RefundGateway
	}
	if d.SummaryPath == "" {
		d.SummaryPath = def.SummaryPath
	}
	if len(d.VenueImages) == 0 {
		d.VenueImages = def.VenueImages
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.APIBaseURL = strings.TrimRight(firstNonEmpty(getenv("GLOWNET_API_BASE_URL"), DefaultAPIBaseURL), "/")
	c.APIKey = getenv("GLOWNET_API_KEY")
	c.AppURL = strings.TrimRight(firstNonEmpty(getenv("NEXT_PUBLIC_APP_URL"), DefaultAppURL), "/")
	c.DatabaseURL = getenv("DATABASE_URL")
	c.LogLevel = firstNonEmpty(getenv("LOG_LEVEL"), "info")
}

func (c *Config) validate() error {
	d := c.Defaults
	switch {
	case d.PerPage < 1:
		return fmt.Errorf("defaults.per_page must be positive, got %d", d.PerPage)
	case d.PageDelay < 0:
		return fmt.Errorf("defaults.page_delay must not be negative, got %s", d.PageDelay)
	case d.RequestTimeout <= 0:
		return fmt.Errorf("defaults.request_timeout must be positive, got %s", d.RequestTimeout)
	case d.SettleDelay < 0:
		return fmt.Errorf("defaults.settle_delay must not be negative, got %s", d.SettleDelay)
	case d.ActionDelay < 0:
		return fmt.Errorf("defaults.action_delay must not be negative, got %s", d.ActionDelay)
	case d.Tolerance < 0:
		return fmt.Errorf("defaults.tolerance must not be negative, got %v", d.Tolerance)
	case d.TopupMultiplier < 1:
		return fmt.Errorf("defaults.topup_multiplier must be positive, got %d", d.TopupMultiplier)
	}
	for i, f := range d.ScaleFactors {
		if f <= 0 {
			return fmt.Errorf("defaults.scale_factors[%d] must be positive, got %v", i, f)
		}
	}
	return nil
}

// RequireAPIKey fails when no vendor API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Scales returns the configured scale factors as decimals.
func (c *Config) Scales() []decimal.Decimal {
	out := make([]decimal.Decimal, len(c.Defaults.ScaleFactors))
	for i, f := range c.Defaults.ScaleFactors {
		out[i] = decimal.NewFromFloat(f)
	}
	return out
}

// Tolerance returns the configured comparison epsilon as a decimal.
func (c *Config) Tolerance() decimal.Decimal {
	return decimal.NewFromFloat(c.Defaults.Tolerance)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
