// Package aegisconfig loads the gateway's configuration from environment
// variables, grounded on the teacher's internal/infra/config.go LoadConfig:
// a viper instance with AutomaticEnv + SetEnvKeyReplacer + SetDefault,
// unmarshaled into a mapstructure-tagged struct. Only the env vars §6 names
// plus ambient logger settings are exposed — no config file, no database,
// auth, or Redis sections, since those concerns have no home in this spec.
package aegisconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the gateway's full runtime configuration.
type Config struct {
	Port               int           `mapstructure:"port"`
	PolicyDir          string        `mapstructure:"policy_dir"`
	OTelEndpoint       string        `mapstructure:"otel_endpoint"`
	DecisionRingSize   int           `mapstructure:"decision_ring_size"`
	ApprovalTTL        time.Duration `mapstructure:"-"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
}

// Load reads PORT, POLICY_DIR, OTEL_ENDPOINT, DECISION_RING_SIZE,
// APPROVAL_TTL_SECONDS (§6) plus LOG_LEVEL/LOG_FORMAT from the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// bind explicitly: AutomaticEnv alone only resolves env vars that are
	// already known to viper through a default or an explicit BindEnv.
	for _, key := range []string{
		"port", "policy_dir", "otel_endpoint", "decision_ring_size",
		"approval_ttl_seconds", "log_level", "log_format",
	} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ApprovalTTL = time.Duration(v.GetInt("approval_ttl_seconds")) * time.Second

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("policy_dir", "./policies")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("decision_ring_size", 50)
	v.SetDefault("approval_ttl_seconds", 900)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}
