package application

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-verity/internal/domain"
)

// Config is the process-wide configuration file. It is loaded once at
// startup and turned into an immutable domain.ProviderConfig per run by
// Resolve.
type Config struct {
	// Provider selects the inference capability: grounded or completion.
	Provider string `yaml:"provider" validate:"required,providername"`
	// Mode selects who sequences the pipeline: direct or delegated.
	Mode string `yaml:"mode" validate:"required,orchestrationmode"`
	// RateDelay is the pause before every inference call except the first.
	RateDelay time.Duration `yaml:"rate_delay" validate:"min=0,max=10m"`
	// CallTimeout bounds one inference call.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"min=0,max=30m"`

	Grounded   GroundedConfig   `yaml:"grounded"`
	Completion CompletionConfig `yaml:"completion"`
	Delegation DelegationConfig `yaml:"delegation"`
	Selector   SelectorConfig   `yaml:"selector"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
}

// GroundedConfig configures Gemini on Vertex AI with a Vertex AI Search
// datastore as the retrieval tool.
type GroundedConfig struct {
	Project  string `yaml:"project"`
	Location string `yaml:"location"`
	Model    string `yaml:"model"`
	// Datastore is the full Vertex AI Search datastore resource name.
	Datastore string `yaml:"datastore"`
}

// CompletionConfig configures the document intelligence + chat completion pair.
type CompletionConfig struct {
	LLMProvider string `yaml:"llm_provider" validate:"omitempty,oneof=openai azure_openai anthropic google"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url" validate:"omitempty,url"`
	APIKey      string `yaml:"api_key"`

	DocIntelEndpoint string `yaml:"docintel_endpoint" validate:"omitempty,url"`
	DocIntelKey      string `yaml:"docintel_key"`
	DocIntelModel    string `yaml:"docintel_model"`
}

// DelegationConfig names the external workflow engine for delegated mode.
type DelegationConfig struct {
	Kind    string   `yaml:"kind" validate:"omitempty,oneof=webhook kafka"`
	URL     string   `yaml:"url" validate:"omitempty,url"`
	Brokers []string `yaml:"brokers" validate:"omitempty,dive,hostname_port"`
	Topic   string   `yaml:"topic"`
}

// SelectorConfig bounds the content sent per requirement. Zero values take
// the defaults from domain.DefaultSelectorSettings.
type SelectorConfig struct {
	MaxFragments  int `yaml:"max_fragments" validate:"min=0,max=500"`
	FallbackChars int `yaml:"fallback_chars" validate:"min=0,max=1000000"`
	MaxKeywords   int `yaml:"max_keywords" validate:"min=0,max=20"`
	MinKeywordLen int `yaml:"min_keyword_len" validate:"min=0,max=50"`
}

// DatabaseConfig locates the Postgres system of record.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig enables the extraction lookaside cache when URL is set.
type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl" validate:"min=0"`
}

// StorageConfig selects where source document binaries live.
type StorageConfig struct {
	Backend string `yaml:"backend" validate:"omitempty,oneof=gcs filesystem"`
	Bucket  string `yaml:"bucket" validate:"required_if=Backend gcs"`
	Root    string `yaml:"root" validate:"required_if=Backend filesystem"`
}

// LogConfig controls the slog handler built by the entrypoints.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// ServerConfig configures the HTTP daemon.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
	// MaxConcurrentRuns caps independent runs executing at once.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" validate:"min=0,max=64"`
}

// Defaults applied before the file is decoded.
const (
	DefaultRateDelay   = 15 * time.Second
	DefaultCallTimeout = 120 * time.Second
	DefaultRedisTTL    = 7 * 24 * time.Hour
	DefaultLocation    = "us-central1"
	DefaultGroundModel = "gemini-2.0-flash"
)

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() *Config {
	sel := domain.DefaultSelectorSettings()
	return &Config{
		Provider:    string(domain.ProviderGrounded),
		Mode:        string(domain.ModeDirect),
		RateDelay:   DefaultRateDelay,
		CallTimeout: DefaultCallTimeout,
		Grounded: GroundedConfig{
			Location: DefaultLocation,
			Model:    DefaultGroundModel,
		},
		Completion: CompletionConfig{
			LLMProvider:   "openai",
			DocIntelModel: "prebuilt-layout",
		},
		Selector: SelectorConfig{
			MaxFragments:  sel.MaxFragments,
			FallbackChars: sel.FallbackChars,
			MaxKeywords:   sel.MaxKeywords,
			MinKeywordLen: sel.MinKeywordLen,
		},
		Redis:   RedisConfig{TTL: DefaultRedisTTL},
		Storage: StorageConfig{Backend: "filesystem", Root: "."},
		Log:     LogConfig{Level: "info", Format: "json"},
		Server:  ServerConfig{Addr: ":8080", MaxConcurrentRuns: 4},
	}
}

// configValidator is shared; validator.Validate caches struct metadata and
// is safe for concurrent use.
var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		panic(err)
	}
	return v
}

// LoadConfig reads a YAML file, applies environment overrides and validates
// the result. Failures are returned as *domain.ConfigurationError.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "path", Reason: "cannot read config file", Err: err}
	}
	return ParseConfig(data, os.Getenv)
}

// ParseConfig decodes YAML data over DefaultConfig, applies overrides from
// getenv and validates. Unknown keys are rejected.
func ParseConfig(data []byte, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, &domain.ConfigurationError{Field: "yaml", Reason: "decode failed", Err: err}
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct tag validation. The error names the first failing
// field and lists every failure.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		verr := domain.NewValidationError("config")
		for _, fe := range fieldErrs {
			verr.AddError(fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
		}
		fe := fieldErrs[0]
		return &domain.ConfigurationError{
			Field:  strings.TrimPrefix(fe.Namespace(), "Config."),
			Reason: fmt.Sprintf("failed %q validation (value %v)", fe.Tag(), fe.Value()),
			Err:    fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, verr),
		}
	}
	return &domain.ConfigurationError{Field: "config", Reason: "validation failed", Err: err}
}

// applyEnv overlays environment variables. Empty variables are ignored.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}

	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&cfg.Provider, "VERITY_PROVIDER")
	set(&cfg.Mode, "VERITY_ORCHESTRATION_MODE")
	set(&cfg.Database.URL, "VERITY_DATABASE_URL")
	set(&cfg.Redis.URL, "VERITY_REDIS_URL")
	set(&cfg.Grounded.Project, "GOOGLE_CLOUD_PROJECT")
	set(&cfg.Grounded.Datastore, "VERITY_DATASTORE")
	set(&cfg.Completion.DocIntelEndpoint, "AZURE_DOCINTEL_ENDPOINT")
	set(&cfg.Completion.DocIntelKey, "AZURE_DOCINTEL_KEY")
	set(&cfg.Delegation.URL, "VERITY_WEBHOOK_URL")

	if v := strings.TrimSpace(getenv("VERITY_RATE_DELAY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &domain.ConfigurationError{Field: "VERITY_RATE_DELAY", Reason: "not a duration", Err: err}
		}
		cfg.RateDelay = d
	}

	return nil
}

// Resolve produces the ProviderConfig for one run. A non-empty override
// replaces the configured provider. Unknown names and incomplete provider
// or delegation settings fail with *domain.ConfigurationError before any
// I/O happens.
func Resolve(cfg *Config, override string) (domain.ProviderConfig, error) {
	if cfg == nil {
		return domain.ProviderConfig{}, domain.NewConfigurationError("config", "no configuration loaded")
	}

	name := cfg.Provider
	if override = strings.TrimSpace(override); override != "" {
		name = override
	}

	provider := domain.ProviderName(strings.ToLower(name))
	if !provider.Valid() {
		return domain.ProviderConfig{}, domain.NewConfigurationError("provider",
			fmt.Sprintf("unrecognized provider %q", name))
	}

	mode := domain.OrchestrationMode(strings.ToLower(cfg.Mode))
	if !mode.Valid() {
		return domain.ProviderConfig{}, domain.NewConfigurationError("mode",
			fmt.Sprintf("unrecognized orchestration mode %q", cfg.Mode))
	}

	resolved := domain.ProviderConfig{
		Provider: provider,
		Mode:     mode,
		Grounded: domain.GroundedSettings{
			Project:   cfg.Grounded.Project,
			Location:  cfg.Grounded.Location,
			Model:     cfg.Grounded.Model,
			Datastore: cfg.Grounded.Datastore,
		},
		Completion: domain.CompletionSettings{
			LLMProvider:      cfg.Completion.LLMProvider,
			Model:            cfg.Completion.Model,
			BaseURL:          cfg.Completion.BaseURL,
			APIKey:           cfg.Completion.APIKey,
			DocIntelEndpoint: cfg.Completion.DocIntelEndpoint,
			DocIntelKey:      cfg.Completion.DocIntelKey,
			DocIntelModel:    cfg.Completion.DocIntelModel,
		},
		Delegation: domain.DelegationSettings{
			Kind:    cfg.Delegation.Kind,
			URL:     cfg.Delegation.URL,
			Brokers: append([]string(nil), cfg.Delegation.Brokers...),
			Topic:   cfg.Delegation.Topic,
		},
		Selector:    resolveSelector(cfg.Selector),
		RateDelay:   cfg.RateDelay,
		CallTimeout: cfg.CallTimeout,
	}
	if resolved.CallTimeout <= 0 {
		resolved.CallTimeout = DefaultCallTimeout
	}

	if err := checkProviderSettings(resolved); err != nil {
		return domain.ProviderConfig{}, err
	}
	return resolved, nil
}

func resolveSelector(c SelectorConfig) domain.SelectorSettings {
	s := domain.DefaultSelectorSettings()
	if c.MaxFragments > 0 {
		s.MaxFragments = c.MaxFragments
	}
	if c.FallbackChars > 0 {
		s.FallbackChars = c.FallbackChars
	}
	if c.MaxKeywords > 0 {
		s.MaxKeywords = c.MaxKeywords
	}
	if c.MinKeywordLen > 0 {
		s.MinKeywordLen = c.MinKeywordLen
	}
	return s
}

func checkProviderSettings(cfg domain.ProviderConfig) error {
	switch cfg.Provider {
	case domain.ProviderGrounded:
		if cfg.Grounded.Project == "" {
			return domain.NewConfigurationError("grounded.project", "grounded provider requires a Google Cloud project")
		}
		if cfg.Grounded.Datastore == "" {
			return domain.NewConfigurationError("grounded.datastore", "grounded provider requires a document store")
		}
	case domain.ProviderCompletion:
		if cfg.Completion.DocIntelEndpoint == "" {
			return domain.NewConfigurationError("completion.docintel_endpoint",
				"completion provider requires a document intelligence endpoint")
		}
	}

	if cfg.Mode == domain.ModeDelegated {
		switch cfg.Delegation.Kind {
		case "webhook":
			if cfg.Delegation.URL == "" {
				return domain.NewConfigurationError("delegation.url", "webhook delegation requires a URL")
			}
		case "kafka":
			if len(cfg.Delegation.Brokers) == 0 || cfg.Delegation.Topic == "" {
				return domain.NewConfigurationError("delegation.brokers", "kafka delegation requires brokers and a topic")
			}
		default:
			return domain.NewConfigurationError("delegation.kind", "delegated mode requires a webhook or kafka target")
		}
	}
	return nil
}
