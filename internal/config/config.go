package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

type (
	Config struct {
		Gateway      GatewayConfig            `yaml:"gateway"`
		Logging      LoggingConfig            `yaml:"logging"`
		Channels     map[string]ChannelConfig `yaml:"channels"`
		Answer       AnswerConfig             `yaml:"answer"`
		Coordination CoordinationConfig       `yaml:"coordination"`
		Escalation   EscalationConfig         `yaml:"escalation"`
		Learning     LearningConfig           `yaml:"learning"`
		Polling      PollingConfig            `yaml:"polling"`
	}

	GatewayConfig struct {
		Bind           string `yaml:"bind"`
		RequestTimeout int    `yaml:"request_timeout_sec"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	// ChannelConfig holds per-channel policy toggles (C12) and adapter-specific
	// settings. Config is a free-form map so each adapter (web/federated/
	// trading-app) can parse its own shape, mirroring the teacher's
	// per-channel `config map[string]interface{}` idiom.
	ChannelConfig struct {
		ID            string            `yaml:"-"`
		Type          string            `yaml:"type"` // web, federated, trading-app
		Enabled       bool              `yaml:"enabled"`
		AIGeneration  bool              `yaml:"ai_generation"`
		AutoResponse  bool              `yaml:"auto_response"`
		DefaultLang   string            `yaml:"default_lang"`
		SupportHandle string            `yaml:"support_handle"`
		Reactions     map[string]string `yaml:"reactions,omitempty"` // raw emoji -> "positive"|"negative"
		Config        map[string]any    `yaml:"config"`
	}

	AnswerConfig struct {
		BaseURL    string `yaml:"base_url"`
		APIKey     string `yaml:"api_key"`
		TimeoutSec int    `yaml:"timeout_sec"`
	}

	CoordinationConfig struct {
		Backend           string `yaml:"backend"` // memory, sqlite
		DBPath            string `yaml:"db_path"`
		DedupTTLSec       int    `yaml:"dedup_ttl_sec"`
		ThreadLockTTLSec  int    `yaml:"thread_lock_ttl_sec"`
		ThreadStateTTLSec int    `yaml:"thread_state_ttl_sec"`
		FollowupTTLSec    int    `yaml:"followup_ttl_sec"`
		CallTimeoutMillis int    `yaml:"call_timeout_millis"`
	}

	EscalationConfig struct {
		DBPath             string `yaml:"db_path"`
		ClaimTTLMinutes    int    `yaml:"claim_ttl_minutes"`
		AutoCloseHours     int    `yaml:"auto_close_hours"`
		RetentionDays      int    `yaml:"retention_days"`
		DeliveryMaxRetries int    `yaml:"delivery_max_retries"`
		SweepIntervalSec   int    `yaml:"sweep_interval_sec"`
	}

	LearningConfig struct {
		ThresholdHigh float64 `yaml:"threshold_high"`
		ThresholdLow  float64 `yaml:"threshold_low"`
		MinReviews    int     `yaml:"min_reviews"`
	}

	PollingConfig struct {
		IntervalSec int `yaml:"interval_sec"`
		BackoffSec  int `yaml:"backoff_sec"`
	}
)

// UpdateByName applies a typed config section update, used by ApplyWithCAS.
func (c *Config) UpdateByName(name string, value any) error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	normalizedName := strings.ToLower(strings.TrimSpace(name))
	if normalizedName == "" {
		return fmt.Errorf("name is required")
	}

	switch normalizedName {
	case "config":
		typed, ok := value.(*Config)
		if !ok || typed == nil {
			return fmt.Errorf("name 'config' requires *Config")
		}
		*c = *typed
	case "gateway":
		typed, ok := value.(*GatewayConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'gateway' requires *GatewayConfig")
		}
		c.Gateway = *typed
	case "logging":
		typed, ok := value.(*LoggingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'logging' requires *LoggingConfig")
		}
		c.Logging = *typed
	case "answer":
		typed, ok := value.(*AnswerConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'answer' requires *AnswerConfig")
		}
		c.Answer = *typed
	case "coordination":
		typed, ok := value.(*CoordinationConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'coordination' requires *CoordinationConfig")
		}
		c.Coordination = *typed
	case "escalation":
		typed, ok := value.(*EscalationConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'escalation' requires *EscalationConfig")
		}
		c.Escalation = *typed
	case "learning":
		typed, ok := value.(*LearningConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'learning' requires *LearningConfig")
		}
		c.Learning = *typed
	case "polling":
		typed, ok := value.(*PollingConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'polling' requires *PollingConfig")
		}
		c.Polling = *typed
	case "channels":
		typed, ok := value.(*map[string]ChannelConfig)
		if !ok || typed == nil {
			return fmt.Errorf("name 'channels' requires *map[string]ChannelConfig")
		}
		next := make(map[string]ChannelConfig, len(*typed))
		for k, v := range *typed {
			next[k] = v
		}
		c.Channels = next
	default:
		return fmt.Errorf("unsupported config name: %s", name)
	}

	return nil
}

// Clone performs a deep copy via a marshal/unmarshal round-trip.
func (c *Config) Clone() (*Config, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	raw, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var cloned Config
	if err := sonic.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("unmarshal config clone: %w", err)
	}

	return &cloned, nil
}

// Hash returns a stable content hash used for optimistic-concurrency config
// updates (ApplyWithCAS).
func (c *Config) Hash() string {
	json := sonic.Config{SortMapKeys: true, UseNumber: true}.Froze()
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
