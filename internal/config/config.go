package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/megasecretaria/megasecretaria/internal/assistant"
	"github.com/megasecretaria/megasecretaria/internal/contextwindow"
	"github.com/megasecretaria/megasecretaria/internal/llm"
	"github.com/megasecretaria/megasecretaria/internal/state"
)

// State store backends.
const (
	StateStoreMemory = "memory"
	StateStoreValkey = "valkey"
)

const (
	// DefaultTimezone is the zone calendar times are interpreted in.
	DefaultTimezone = "America/Sao_Paulo"

	// DefaultDatabasePath is the SQLite conversation history file.
	DefaultDatabasePath = "megasecretaria.db"

	// DefaultTokenFile is where the Google OAuth token is stored.
	DefaultTokenFile = "token.json"

	// DefaultCredentialsFile is the Google OAuth client secrets file.
	DefaultCredentialsFile = "credentials.json"

	// DefaultHistoryRetention is how long conversation turns are kept.
	DefaultHistoryRetention = 30 * 24 * time.Hour

	// DefaultPruneSchedule is the cron spec of the history pruner.
	DefaultPruneSchedule = "@daily"

	// DefaultAddr is the webhook listen address.
	DefaultAddr = ":8080"

	// DefaultMetricsAddr is the Prometheus listen address.
	DefaultMetricsAddr = ":9090"
)

// Config holds every setting of the serve command.
type Config struct {
	Addr        string
	TLSCertFile string
	TLSKeyFile  string

	Persona     string
	Designation string
	Timezone    string

	AllowedNumbers []string

	OpenAI    OpenAIConfig
	Evolution EvolutionConfig
	Google    GoogleConfig

	DatabasePath     string
	HistoryLimit     int
	TokenBudget      int
	HistoryRetention time.Duration
	PruneSchedule    string

	DuplicateWindow time.Duration
	PendingTTL      time.Duration

	StateStore string
	Valkey     state.ValkeyConfig

	MaxConcurrency int

	MetricsEnabled bool
	MetricsAddr    string
}

// OpenAIConfig holds the model settings.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// EvolutionConfig holds the WhatsApp gateway settings.
type EvolutionConfig struct {
	URL      string
	APIKey   string
	Instance string
}

// GoogleConfig holds the Google Calendar settings.
type GoogleConfig struct {
	CredentialsFile string
	ClientID        string
	ClientSecret    string
	TokenFile       string
	CalendarID      string
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		Addr:        DefaultAddr,
		Persona:     llm.DefaultPersona,
		Designation: llm.DefaultDesignation,
		Timezone:    DefaultTimezone,
		OpenAI: OpenAIConfig{
			Model: llm.DefaultModel,
		},
		Google: GoogleConfig{
			CredentialsFile: DefaultCredentialsFile,
			TokenFile:       DefaultTokenFile,
			CalendarID:      "primary",
		},
		DatabasePath:     DefaultDatabasePath,
		HistoryLimit:     assistant.DefaultHistoryLimit,
		TokenBudget:      contextwindow.DefaultBudget,
		HistoryRetention: DefaultHistoryRetention,
		PruneSchedule:    DefaultPruneSchedule,
		DuplicateWindow:  state.DefaultDuplicateWindow,
		PendingTTL:       state.DefaultPendingTTL,
		StateStore:       StateStoreMemory,
		Valkey: state.ValkeyConfig{
			KeyPrefix: state.DefaultKeyPrefix,
		},
		MaxConcurrency: assistant.DefaultMaxConcurrency,
		MetricsEnabled: true,
		MetricsAddr:    DefaultMetricsAddr,
	}
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration can start the assistant.
func (c *Config) Validate() error {
	var errs []error

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("missing OpenAI API key (OPENAI_API_KEY)"))
	}
	if c.Evolution.URL == "" {
		errs = append(errs, errors.New("missing Evolution API URL (EVOLUTION_API_URL)"))
	}
	if c.Evolution.APIKey == "" {
		errs = append(errs, errors.New("missing Evolution API key (EVOLUTION_API_KEY)"))
	}
	if c.Evolution.Instance == "" {
		errs = append(errs, errors.New("missing Evolution instance (EVOLUTION_INSTANCE)"))
	}
	if len(c.AllowedNumbers) == 0 {
		errs = append(errs, errors.New("at least one allowed phone number is required (ALLOWED_PHONE_NUMBERS)"))
	}
	if c.Google.TokenFile == "" {
		errs = append(errs, errors.New("missing Google token file (GOOGLE_TOKEN_FILE)"))
	}
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("missing database path (DATABASE_PATH)"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch c.StateStore {
	case StateStoreMemory:
	case StateStoreValkey:
		if c.Valkey.URL == "" {
			errs = append(errs, errors.New("missing Valkey URL for the valkey state store (VALKEY_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid state store %q, must be one of: memory, valkey", c.StateStore))
	}

	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit))
	}
	if c.TokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("token budget must be positive, got %d", c.TokenBudget))
	}
	if c.DuplicateWindow <= 0 {
		errs = append(errs, fmt.Errorf("duplicate window must be positive, got %s", c.DuplicateWindow))
	}
	if c.PendingTTL <= 0 {
		errs = append(errs, fmt.Errorf("pending TTL must be positive, got %s", c.PendingTTL))
	}
	if c.HistoryRetention < 0 {
		errs = append(errs, fmt.Errorf("history retention must not be negative, got %s", c.HistoryRetention))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("both TLS certificate and key files must be set"))
	}

	return errors.Join(errs...)
}

// ApplyEnv overlays the environment variables that are set.
// Values that fail to parse are reported, not ignored.
func (c *Config) ApplyEnv() error {
	var errs []error

	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")

	setString(&c.Evolution.URL, "EVOLUTION_API_URL")
	setString(&c.Evolution.APIKey, "EVOLUTION_API_KEY")
	setString(&c.Evolution.Instance, "EVOLUTION_INSTANCE")

	if v := os.Getenv("ALLOWED_PHONE_NUMBERS"); v != "" {
		c.AllowedNumbers = SplitList(v)
	} else if v := os.Getenv("ALLOWED_PHONE_NUMBER"); v != "" {
		c.AllowedNumbers = SplitList(v)
	}

	setString(&c.Google.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	setString(&c.Google.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Google.TokenFile, "GOOGLE_TOKEN_FILE")
	setString(&c.Google.CalendarID, "GOOGLE_CALENDAR_ID")

	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.PruneSchedule, "HISTORY_PRUNE_SCHEDULE")

	setString(&c.StateStore, "STATE_STORE_TYPE")
	setString(&c.Valkey.URL, "VALKEY_URL")
	setString(&c.Valkey.Password, "VALKEY_PASSWORD")
	setString(&c.Valkey.TLSCAFile, "VALKEY_TLS_CA_FILE")
	setString(&c.Valkey.KeyPrefix, "VALKEY_KEY_PREFIX")

	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.TLSCertFile, "TLS_CERT_FILE")
	setString(&c.TLSKeyFile, "TLS_KEY_FILE")

	errs = append(errs,
		setInt(&c.HistoryLimit, "HISTORY_LIMIT"),
		setInt(&c.TokenBudget, "HISTORY_TOKEN_BUDGET"),
		setInt(&c.Valkey.DB, "VALKEY_DB"),
		setInt(&c.MaxConcurrency, "MAX_CONCURRENCY"),
		setDuration(&c.DuplicateWindow, "DUPLICATE_WINDOW"),
		setDuration(&c.PendingTTL, "PENDING_TTL"),
		setDuration(&c.HistoryRetention, "HISTORY_RETENTION"),
		setBool(&c.Valkey.TLSEnabled, "VALKEY_TLS_ENABLED"),
		setBool(&c.MetricsEnabled, "METRICS_ENABLED"),
	)

	return errors.Join(errs...)
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
