package tradingapp

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/suppgw/gateway/internal/channel"
)

type Config struct {
	APIBaseURL  string // REST base URL for send/poll calls (required)
	APIKey      string // bearer token for REST calls (required)
	Mode        string // "poll" (default) or "ws"
	WSEndpoint  string // streaming endpoint (ws mode required)
	PollLimit   int    // max messages per poll_conversations call
}

func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("trading-app api_base_url cannot be empty")
	}
	if c.APIKey == "" {
		return errors.New("trading-app api_key cannot be empty")
	}
	if c.Mode != "poll" && c.Mode != "ws" {
		return fmt.Errorf("trading-app mode must be \"poll\" or \"ws\", got %q", c.Mode)
	}
	if c.Mode == "ws" && c.WSEndpoint == "" {
		return errors.New("trading-app ws_endpoint cannot be empty in ws mode")
	}
	return nil
}

func (c *Config) GetType() channel.Type {
	return channel.TradingApp
}

func ParseConfig(configMap map[string]any) (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = gconv.To[string](configMap["api_base_url"])
	cfg.APIKey = gconv.To[string](configMap["api_key"])

	cfg.Mode = gconv.To[string](configMap["mode"])
	if cfg.Mode == "" {
		cfg.Mode = "poll"
	}

	cfg.WSEndpoint = gconv.To[string](configMap["ws_endpoint"])

	cfg.PollLimit = gconv.To[int](configMap["poll_limit"])
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = 50
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trading-app config: %w", err)
	}
	return cfg, nil
}
