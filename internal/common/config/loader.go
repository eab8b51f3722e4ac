// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like SUPABASE_SERVICE_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Booleans cannot be defaulted post-unmarshal.
	viper.SetDefault("provision.compensate_on_launch_failure", true)

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	// Direct override if still empty after expansion
	overrideEmptyConfig(&cfg)

	normalizeSupabaseURL(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Load .env from multiple possible locations
func loadEnvFile() {
	possiblePaths := []string{
		".env",          // Current directory
		"../.env",       // Parent directory
		"../../.env",    // Two levels up
		"../../../.env", // Three levels up
	}

	// Also try to find project root by looking for go.mod
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				fmt.Printf("✅ Loaded .env from: %s\n", path)
				return
			}
		}
	}

	fmt.Printf("⚠️  .env file not found in any location, using system environment variables\n")
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// Environment variable expansion for ${VAR} placeholders in YAML values
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion.
// Env names match the deployment environment of the original service.
func overrideEmptyConfig(cfg *Config) {
	// Profile store
	if cfg.Supabase.URL == "" {
		if val := os.Getenv("SUPABASE_URL"); val != "" {
			cfg.Supabase.URL = val
		}
	}
	if cfg.Supabase.ServiceKey == "" {
		if val := os.Getenv("SUPABASE_SERVICE_KEY"); val != "" {
			cfg.Supabase.ServiceKey = val
		}
	}

	// Embedding provider
	if cfg.OpenAI.APIKey == "" {
		if val := os.Getenv("OPENAI_KEY"); val != "" {
			cfg.OpenAI.APIKey = val
		}
	}

	// Compute launcher
	if cfg.Fly.APIToken == "" {
		if val := os.Getenv("FLY_API_TOKEN"); val != "" {
			cfg.Fly.APIToken = val
		}
	}
	if cfg.Fly.App == "" {
		if val := os.Getenv("FLY_APP"); val != "" {
			cfg.Fly.App = val
		}
	}
	if cfg.Fly.Region == "" {
		if val := os.Getenv("FLY_REGION"); val != "" {
			cfg.Fly.Region = val
		}
	}
	if cfg.Fly.Image == "" {
		if val := os.Getenv("GHCR_IMAGE"); val != "" {
			cfg.Fly.Image = val
		}
	}

	// Agent pass-through secrets
	if cfg.Agent.LiveKit.URL == "" {
		if val := os.Getenv("LIVEKIT_URL"); val != "" {
			cfg.Agent.LiveKit.URL = val
		}
	}
	if cfg.Agent.LiveKit.APIKey == "" {
		if val := os.Getenv("LIVEKIT_API_KEY"); val != "" {
			cfg.Agent.LiveKit.APIKey = val
		}
	}
	if cfg.Agent.LiveKit.APISecret == "" {
		if val := os.Getenv("LIVEKIT_API_SECRET"); val != "" {
			cfg.Agent.LiveKit.APISecret = val
		}
	}
	if cfg.Agent.Twilio.AccountSID == "" {
		if val := os.Getenv("TWILIO_ACCOUNT_SID"); val != "" {
			cfg.Agent.Twilio.AccountSID = val
		}
	}
	if cfg.Agent.Twilio.AuthToken == "" {
		if val := os.Getenv("TWILIO_AUTH_TOKEN"); val != "" {
			cfg.Agent.Twilio.AuthToken = val
		}
	}

	// Redis
	if cfg.Database.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Database.Redis.Address = val
		}
	}
}

// normalizeSupabaseURL keeps only the first element of a semicolon-separated
// URL list. Some deployments ship the pooler URL in the same variable.
func normalizeSupabaseURL(cfg *Config) {
	if idx := strings.Index(cfg.Supabase.URL, ";"); idx >= 0 {
		cfg.Supabase.URL = cfg.Supabase.URL[:idx]
	}
	cfg.Supabase.URL = strings.TrimSpace(cfg.Supabase.URL)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)
	normalizeSupabaseURL(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "clinic-provisioner"
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 90000
	}

	// Profile store defaults
	if cfg.Supabase.Table == "" {
		cfg.Supabase.Table = "dental-clinic-data"
	}
	if cfg.Supabase.Timeout == 0 {
		cfg.Supabase.Timeout = 10000
	}

	// Embedding provider defaults
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "text-embedding-3-small"
	}
	if cfg.OpenAI.Dimensions == 0 {
		cfg.OpenAI.Dimensions = 1536
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 30000
	}

	// Compute launcher defaults
	if cfg.Fly.BaseURL == "" {
		cfg.Fly.BaseURL = "https://api.machines.dev"
	}
	if cfg.Fly.Region == "" {
		cfg.Fly.Region = "iad"
	}
	if cfg.Fly.Timeout == 0 {
		cfg.Fly.Timeout = 30000
	}

	if len(cfg.Agent.Cmd) == 0 {
		cfg.Agent.Cmd = []string{"python", "agent.py", "dev"}
	}

	// Workflow defaults
	if cfg.Provision.Timeout == 0 {
		cfg.Provision.Timeout = 90000
	}
	if cfg.Provision.LockTTL == 0 {
		cfg.Provision.LockTTL = cfg.Provision.Timeout
	}

	// Elasticsearch URL fallback
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Audit.Index == "" {
		cfg.Audit.Index = "provision-events"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields. A missing value
// fails process startup, never a per-request call.
func validateConfig(cfg *Config) error {
	if cfg.Supabase.URL == "" {
		return fmt.Errorf("supabase.url is required")
	}
	if cfg.Supabase.ServiceKey == "" {
		return fmt.Errorf("supabase.service_key is required")
	}

	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if cfg.Fly.APIToken == "" {
		return fmt.Errorf("fly.api_token is required")
	}
	if cfg.Fly.App == "" {
		return fmt.Errorf("fly.app is required")
	}
	if cfg.Fly.Image == "" {
		return fmt.Errorf("fly.image is required")
	}

	if cfg.Agent.LiveKit.URL == "" {
		return fmt.Errorf("agent.livekit.url is required")
	}
	if cfg.Agent.LiveKit.APIKey == "" {
		return fmt.Errorf("agent.livekit.api_key is required")
	}
	if cfg.Agent.LiveKit.APISecret == "" {
		return fmt.Errorf("agent.livekit.api_secret is required")
	}
	if cfg.Agent.Twilio.AccountSID == "" {
		return fmt.Errorf("agent.twilio.account_sid is required")
	}
	if cfg.Agent.Twilio.AuthToken == "" {
		return fmt.Errorf("agent.twilio.auth_token is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Audit.Enabled {
		if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required when audit is enabled")
		}
	}

	if err := cfg.Alerts.Validate(); err != nil {
		return err
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
