package web

import (
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/suppgw/gateway/internal/channel"
)

type Config struct {
	// APIKey is an optional bearer token for authenticating incoming requests.
	// When set, requests must include "Authorization: Bearer <api_key>".
	APIKey string
}

func (c *Config) Validate() error {
	return nil
}

func (c *Config) GetType() channel.Type {
	return channel.Web
}

func ParseConfig(configMap map[string]any) (*Config, error) {
	cfg := &Config{}
	cfg.APIKey = gconv.To[string](configMap["api_key"])

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid web config: %w", err)
	}
	return cfg, nil
}
