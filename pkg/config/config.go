package config

import (
	"fmt"
	"os"
	"time"

	log "github.com/cloud-bulldozer/avap-bench/pkg/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config describes a benchmark run against the definition engine
type Config struct {
	Concurrency    int           `yaml:"concurrency,omitempty"`
	TotalRequests  int           `yaml:"total_requests,omitempty"`
	Target         string        `yaml:"target,omitempty"`
	AuthToken      string        `yaml:"auth_token,omitempty"`
	ThresholdRPS   float64       `yaml:"threshold_rps,omitempty"`
	Command        string        `yaml:"command,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	GlobalTimeout  time.Duration `yaml:"global_timeout,omitempty"`
	WaitReady      time.Duration `yaml:"wait_ready,omitempty"`
	Warmup         int           `yaml:"warmup,omitempty"`
	RequireCode    bool          `yaml:"require_code,omitempty"`
	SigningKey     string        `yaml:"signing_key,omitempty"`
	SkipSync       bool          `yaml:"skip_sync,omitempty"`
}

// Keys shared by the flag set, the environment and viper.
const (
	KeyConcurrency    = "concurrency"
	KeyTotalRequests  = "total-requests"
	KeyTarget         = "target"
	KeyAuthToken      = "auth-token"
	KeyThresholdRPS   = "threshold-rps"
	KeyCommand        = "command"
	KeyRequestTimeout = "request-timeout"
	KeyGlobalTimeout  = "global-timeout"
	KeyWaitReady      = "wait-ready"
	KeyWarmup         = "warmup"
	KeyRequireCode    = "require-code"
	KeySigningKey     = "signing-key"
	KeySkipSync       = "skip-sync"
)

// envNames maps viper keys to the environment variables CI pipelines set.
var envNames = map[string]string{
	KeyConcurrency:    "CONCURRENCY",
	KeyTotalRequests:  "TOTAL_REQUESTS",
	KeyTarget:         "TARGET",
	KeyAuthToken:      "AUTH_TOKEN",
	KeyThresholdRPS:   "PERFORMANCE_THRESHOLD_RPS",
	KeyCommand:        "COMMAND_NAME",
	KeyRequestTimeout: "REQUEST_TIMEOUT",
	KeyGlobalTimeout:  "GLOBAL_TIMEOUT",
	KeyWaitReady:      "WAIT_READY",
	KeyWarmup:         "WARMUP",
	KeyRequireCode:    "REQUIRE_CODE",
	KeySigningKey:     "SIGNING_KEY",
	KeySkipSync:       "SKIP_SYNC",
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	return Config{
		Concurrency:   50,
		TotalRequests: 10000,
		Target:        "localhost:50051",
		AuthToken:     "avap_secret_key_2026",
		ThresholdRPS:  2000,
		Command:       "if",
		WaitReady:     2 * time.Second,
	}
}

func validConfig(cfg Config) (bool, error) {
	if cfg.Concurrency < 1 {
		return false, fmt.Errorf("concurrency must be > 0")
	}
	if cfg.TotalRequests < 1 {
		return false, fmt.Errorf("total_requests must be > 0")
	}
	if len(cfg.Target) < 1 {
		return false, fmt.Errorf("target must not be empty")
	}
	if len(cfg.Command) < 1 {
		return false, fmt.Errorf("command must not be empty")
	}
	if cfg.ThresholdRPS < 0 {
		return false, fmt.Errorf("threshold_rps must be >= 0")
	}
	if cfg.RequestTimeout < 0 || cfg.GlobalTimeout < 0 || cfg.WaitReady < 0 {
		return false, fmt.Errorf("timeouts must be >= 0")
	}
	if cfg.Warmup < 0 {
		return false, fmt.Errorf("warmup must be >= 0")
	}
	return true, nil
}

// Validate checks a fully resolved configuration.
func Validate(cfg Config) error {
	_, err := validConfig(cfg)
	return err
}

// ParseConf will read in the benchmark profile. Keys missing from the file keep
// their default value.
// Returns Config struct
func ParseConf(fn string) (Config, error) {
	log.Infof("📒 Reading %s file. ", fn)
	cfg := Default()
	buf, err := os.ReadFile(fn)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(buf, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("in file %q: %v", fn, err)
	}
	ok, err := validConfig(cfg)
	if !ok {
		return cfg, fmt.Errorf("in file %q: %w", fn, err)
	}
	return cfg, nil
}

// Bind wires the flag set and the environment into v, using base for defaults.
func Bind(v *viper.Viper, flags *pflag.FlagSet, base Config) error {
	defaults := map[string]interface{}{
		KeyConcurrency:    base.Concurrency,
		KeyTotalRequests:  base.TotalRequests,
		KeyTarget:         base.Target,
		KeyAuthToken:      base.AuthToken,
		KeyThresholdRPS:   base.ThresholdRPS,
		KeyCommand:        base.Command,
		KeyRequestTimeout: base.RequestTimeout,
		KeyGlobalTimeout:  base.GlobalTimeout,
		KeyWaitReady:      base.WaitReady,
		KeyWarmup:         base.Warmup,
		KeyRequireCode:    base.RequireCode,
		KeySigningKey:     base.SigningKey,
		KeySkipSync:       base.SkipSync,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key, envNames[key]); err != nil {
			return err
		}
	}
	if flags != nil {
		for key := range defaults {
			if f := flags.Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FromViper resolves the final configuration from v and validates it.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Concurrency:    v.GetInt(KeyConcurrency),
		TotalRequests:  v.GetInt(KeyTotalRequests),
		Target:         v.GetString(KeyTarget),
		AuthToken:      v.GetString(KeyAuthToken),
		ThresholdRPS:   v.GetFloat64(KeyThresholdRPS),
		Command:        v.GetString(KeyCommand),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		GlobalTimeout:  v.GetDuration(KeyGlobalTimeout),
		WaitReady:      v.GetDuration(KeyWaitReady),
		Warmup:         v.GetInt(KeyWarmup),
		RequireCode:    v.GetBool(KeyRequireCode),
		SigningKey:     v.GetString(KeySigningKey),
		SkipSync:       v.GetBool(KeySkipSync),
	}
	if _, err := validConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Show Display the benchmark config
func Show(c Config) {
	log.Infof("🗒️  Target: %s | Workers: %d | Requests: %d | Budget: %.0f RPS", c.Target, c.Concurrency, c.TotalRequests, c.ThresholdRPS)
	if c.RequestTimeout > 0 {
		log.Debugf("Per call deadline %s", c.RequestTimeout)
	}
	if c.GlobalTimeout > 0 {
		log.Debugf("Batch deadline %s", c.GlobalTimeout)
	}
}
