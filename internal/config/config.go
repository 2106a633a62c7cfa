package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	// Language-model service. When LLM_BASE_URL is empty the server falls
	// back to EXTRACTOR_URL (self-hosted JSON service), then to the mock.
	LLMBaseURL   string        `mapstructure:"LLM_BASE_URL"`
	LLMModel     string        `mapstructure:"LLM_MODEL"`
	LLMAPIKey    string        `mapstructure:"LLM_API_KEY"`
	LLMTimeout   time.Duration `mapstructure:"LLM_TIMEOUT"`
	ExtractorURL string        `mapstructure:"EXTRACTOR_URL"`

	GeocodeURL     string `mapstructure:"GEOCODE_URL"`
	CountryDefault string `mapstructure:"COUNTRY_DEFAULT"`

	// Comma-separated building names known to the organization, used to
	// anchor location extraction.
	Buildings string `mapstructure:"BUILDINGS"`

	Policies Policies `mapstructure:",squash"`
}

// Policies makes the fail-open/fail-closed split explicit per operation
// instead of burying defaults in error handling.
type Policies struct {
	// Duplicate detection fails open: a scoring-service outage never blocks
	// case creation.
	DuplicateFailOpen bool `mapstructure:"DUPLICATE_FAIL_OPEN"`
	// Contact-info validation fails closed: triage completion is blocked
	// until name, email and phone are present.
	ContactInfoRequired bool    `mapstructure:"CONTACT_INFO_REQUIRED"`
	AutoMergeThreshold  float64 `mapstructure:"AUTO_MERGE_THRESHOLD"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "18s")
	v.SetDefault("COUNTRY_DEFAULT", "USA")
	v.SetDefault("DUPLICATE_FAIL_OPEN", true)
	v.SetDefault("CONTACT_INFO_REQUIRED", true)
	v.SetDefault("AUTO_MERGE_THRESHOLD", 0.90)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
