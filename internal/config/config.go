package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/hg-alerts/internal/hostedgraphite"
)

// Setting keys
const (
	KeyEndpoint         = "endpoint"
	KeyTimeout          = "timeout"
	KeyDryRun           = "dry_run"
	KeyHistoryDB        = "history.db"
	KeyHistoryRetention = "history.retention"
	KeyNATSURL          = "nats.url"
	KeyDebug            = "debug"
)

// EnvPrefix prefixes every environment override, e.g. HGALERTS_ENDPOINT
const EnvPrefix = "HGALERTS"

var (
	// ErrInvalidEndpoint is returned when the endpoint is not an absolute http(s) URL
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidTimeout is returned for a non-positive timeout
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidAPIKey is returned for an API key with leading or trailing whitespace
	ErrInvalidAPIKey = errors.New("api key has leading or trailing whitespace")
)

// envKeys may be overridden from the environment. dry_run is left out so that a
// stray variable cannot turn a real run into one that creates nothing.
var envKeys = []string{
	KeyEndpoint,
	KeyTimeout,
	KeyHistoryDB,
	KeyHistoryRetention,
	KeyNATSURL,
	KeyDebug,
}

// Config holds the settings of a provisioning run
type Config struct {
	APIKey           string
	Endpoint         string
	Timeout          time.Duration
	DryRun           bool
	HistoryDB        string
	HistoryRetention time.Duration
	NATSURL          string
	Debug            bool
}

// New returns a viper instance with defaults and HGALERTS_* environment overrides
// for envKeys. No configuration file is read.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyEndpoint, hostedgraphite.DefaultEndpoint)
	v.SetDefault(KeyTimeout, hostedgraphite.DefaultTimeout)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyHistoryDB, "")
	v.SetDefault(KeyHistoryRetention, time.Duration(0))
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyDebug, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	return v
}

// Load reads the settings from v and validates them
func Load(v *viper.Viper, apiKey string) (*Config, error) {
	cfg := &Config{
		APIKey:           apiKey,
		Endpoint:         v.GetString(KeyEndpoint),
		Timeout:          v.GetDuration(KeyTimeout),
		DryRun:           v.GetBool(KeyDryRun),
		HistoryDB:        v.GetString(KeyHistoryDB),
		HistoryRetention: v.GetDuration(KeyHistoryRetention),
		NATSURL:          v.GetString(KeyNATSURL),
		Debug:            v.GetBool(KeyDebug),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for obvious mistakes
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return hostedgraphite.ErrMissingAPIKey
	}
	if strings.TrimSpace(c.APIKey) != c.APIKey {
		return ErrInvalidAPIKey
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.Endpoint)
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("history retention must not be negative: %s", c.HistoryRetention)
	}

	return nil
}
