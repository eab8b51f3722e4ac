// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Fly       FlyConfig       `mapstructure:"fly"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Provision ProvisionConfig `mapstructure:"provision"`
	Alerts    AlertConfig     `mapstructure:"alerts"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout"` // milliseconds
}

// SupabaseConfig holds the profile store connection settings.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
	Table      string `mapstructure:"table"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

// OpenAIConfig holds the embedding provider settings.
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
}

// FlyConfig holds the compute launcher settings.
type FlyConfig struct {
	APIToken string `mapstructure:"api_token"`
	App      string `mapstructure:"app"`
	Region   string `mapstructure:"region"`
	Image    string `mapstructure:"image"`
	BaseURL  string `mapstructure:"base_url"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// AgentConfig holds pass-through secrets injected into each launched
// agent instance. The provisioner never calls these services itself.
type AgentConfig struct {
	Cmd []string `mapstructure:"cmd"`

	LiveKit struct {
		URL       string `mapstructure:"url"`
		APIKey    string `mapstructure:"api_key"`
		APISecret string `mapstructure:"api_secret"`
	} `mapstructure:"livekit"`

	Twilio struct {
		AccountSID string `mapstructure:"account_sid"`
		AuthToken  string `mapstructure:"auth_token"`
	} `mapstructure:"twilio"`
}

type DatabaseConfig struct {
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// ProvisionConfig holds the workflow settings.
type ProvisionConfig struct {
	Timeout                   int  `mapstructure:"timeout"`  // milliseconds, whole workflow
	LockTTL                   int  `mapstructure:"lock_ttl"` // milliseconds, per-tenant lock
	CompensateOnLaunchFailure bool `mapstructure:"compensate_on_launch_failure"`
}

// AlertConfig holds settings for launch-failure remediation alerts.
type AlertConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// AuditConfig holds settings for the provisioning audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Validate checks that alert settings are complete when enabled.
func (a AlertConfig) Validate() error {
	if a.SNS.Enabled && a.SNS.TopicARN == "" {
		return fmt.Errorf("alerts.sns.topic_arn is required when alerts.sns.enabled is true")
	}
	return nil
}
