package loader

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	cfgpkg "github.com/veritime/attendance-service/internal/config"
)

// LoadConfig loads YAML config from file into cfgpkg.Config and applies
// defaults for every tunable that was left unset.
func LoadConfig(path string) (*cfgpkg.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg cfgpkg.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *cfgpkg.Config) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Geofence.FixTimeout == 0 {
		cfg.Geofence.FixTimeout = 30 * time.Second
	}
	if cfg.Geofence.FixMaxAge == 0 {
		cfg.Geofence.FixMaxAge = 60 * time.Second
	}
	if cfg.Biometric.DescriptorSize == 0 {
		cfg.Biometric.DescriptorSize = 128
	}
	if cfg.Biometric.DistanceThreshold == 0 {
		cfg.Biometric.DistanceThreshold = 0.6
	}
	if cfg.Biometric.MatchThreshold == 0 {
		cfg.Biometric.MatchThreshold = 70
	}
	if cfg.Capture.ProbeInterval == 0 {
		cfg.Capture.ProbeInterval = 300 * time.Millisecond
	}
	if cfg.Capture.ModelLoadTimeout == 0 {
		cfg.Capture.ModelLoadTimeout = 5 * time.Second
	}
	if cfg.Capture.ModelPollInterval == 0 {
		cfg.Capture.ModelPollInterval = 500 * time.Millisecond
	}
	if cfg.Capture.ModelPollAttempts == 0 {
		cfg.Capture.ModelPollAttempts = 60
	}
	if cfg.Credential.ChallengeSize == 0 {
		cfg.Credential.ChallengeSize = 32
	}
	if cfg.Credential.ChallengeTTL == 0 {
		cfg.Credential.ChallengeTTL = 5 * time.Minute
	}
	if cfg.Credential.PromptTimeout == 0 {
		cfg.Credential.PromptTimeout = 60 * time.Second
	}
}
