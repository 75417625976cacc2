package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string   `mapstructure:"PORT"`
	Env                  string   `mapstructure:"ENV"`
	AuthIssuer           string   `mapstructure:"AUTH_ISSUER"`
	AuthAudience         string   `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL          string   `mapstructure:"AUTH_JWKS_URL"`
	FoundryHost          string   `mapstructure:"FOUNDRY_HOST"`
	FoundryOntologyID    string   `mapstructure:"FOUNDRY_ONTOLOGY_ID"`
	FoundryClientID      string   `mapstructure:"FOUNDRY_CLIENT_ID"`
	FoundryClientSecret  string   `mapstructure:"FOUNDRY_CLIENT_SECRET"`
	FoundryTokenURL      string   `mapstructure:"FOUNDRY_TOKEN_URL"`
	CacheTTLSeconds      int      `mapstructure:"CACHE_TTL_SECONDS"`
	RateLimitRPS         float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int      `mapstructure:"RATE_LIMIT_BURST"`
	UpstreamRPS          float64  `mapstructure:"UPSTREAM_RPS"`
	UpstreamBurst        int      `mapstructure:"UPSTREAM_BURST"`
	CORSOrigins          []string `mapstructure:"CORS_ORIGINS"`
	AllowPatientOverride bool     `mapstructure:"ALLOW_PATIENT_OVERRIDE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("CACHE_TTL_SECONDS", 30)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("UPSTREAM_RPS", 50)
	v.SetDefault("UPSTREAM_BURST", 100)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ALLOW_PATIENT_OVERRIDE", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("FOUNDRY_HOST")
	v.BindEnv("FOUNDRY_ONTOLOGY_ID")
	v.BindEnv("FOUNDRY_CLIENT_ID")
	v.BindEnv("FOUNDRY_CLIENT_SECRET")
	v.BindEnv("FOUNDRY_TOKEN_URL")
	v.BindEnv("CACHE_TTL_SECONDS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("UPSTREAM_RPS")
	v.BindEnv("UPSTREAM_BURST")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ALLOW_PATIENT_OVERRIDE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.FoundryHost == "" {
		return nil, fmt.Errorf("FOUNDRY_HOST is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: JWT verification uses the dev signing key, not JWKS.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CacheTTL returns the normalized read-through cache TTL.
func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// TokenURL returns the OAuth token endpoint for the Foundry client
// credentials grant, defaulting to the multipass endpoint on FoundryHost.
func (c *Config) TokenURL() string {
	if c.FoundryTokenURL != "" {
		return c.FoundryTokenURL
	}
	return strings.TrimRight(c.FoundryHost, "/") + "/multipass/api/oauth2/token"
}

// Validate checks that the configuration is safe to run. Production requires
// real JWT verification (AUTH_ISSUER) and a complete Foundry client
// credentials configuration so the secondary transport can authenticate.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must be set in production; refusing to start without JWT verification")
	}
	if c.FoundryOntologyID == "" {
		return fmt.Errorf("FOUNDRY_ONTOLOGY_ID is required")
	}
	if c.IsProduction() {
		if c.FoundryClientID == "" {
			return fmt.Errorf("FOUNDRY_CLIENT_ID is required in production")
		}
		if c.FoundryClientSecret == "" {
			return fmt.Errorf("FOUNDRY_CLIENT_SECRET is required in production")
		}
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative, got %d", c.CacheTTLSeconds)
	}
	return nil
}
