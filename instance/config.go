package instance

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is a static instance bootstrap file, loaded with LoadConfig. It
// names the instance plus the handful of knobs an operator reasonably
// wants to set without touching code, mirroring the teacher's
// integration_tests/framework/runner.go use of yaml.v3 for fixture config.
type Config struct {
	Name                string        `yaml:"name"`
	DefaultMaxQueueSize  int           `yaml:"default_max_queue_size"`
	DefaultIdleTimeout   time.Duration `yaml:"default_idle_timeout"`
	StatusMirrorEnabled  bool          `yaml:"status_mirror_enabled"`
	StatusMirrorPollSecs int           `yaml:"status_mirror_poll_seconds"`
}

// LoadConfig reads and parses a Config from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("instance: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("instance: parse config: %w", err)
	}
	if cfg.Name == "" {
		return Config{}, fmt.Errorf("instance: config missing required field name")
	}
	return cfg, nil
}

// StartFromConfig starts the instance named in cfg. Only Name is used: the
// queue and idle-timeout defaults and the status-mirror settings are not
// applied, and no status mirror is enabled.
func StartFromConfig(cfg Config) (*Handle, error) {
	return Start(cfg.Name)
}
