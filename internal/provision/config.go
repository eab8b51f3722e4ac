package provision

import (
	"fmt"
	"time"
)

type Config struct {
	// Whole-workflow deadline. Each remote call additionally carries its
	// client-level timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// Machine spec inputs.
	Image      string   `mapstructure:"image"`
	Region     string   `mapstructure:"region"`
	NamePrefix string   `mapstructure:"name_prefix"`
	AgentCmd   []string `mapstructure:"agent_cmd"`

	// BaseEnv is injected into every launched agent instance; the workflow
	// adds CLINIC_ID per launch.
	BaseEnv map[string]string `mapstructure:"-"`

	// Roll clinic status back to provisioning_failed when the launch fails
	// after the commit already went through.
	CompensateOnLaunchFailure bool `mapstructure:"compensate_on_launch_failure"`
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:                   90 * time.Second,
		LockTTL:                   90 * time.Second,
		Region:                    "iad",
		NamePrefix:                "dental-agent",
		AgentCmd:                  []string{"python", "agent.py", "dev"},
		CompensateOnLaunchFailure: true,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be positive")
	}
	if c.Image == "" {
		return fmt.Errorf("image is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.NamePrefix == "" {
		return fmt.Errorf("name_prefix is required")
	}
	return nil
}
