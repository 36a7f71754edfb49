package federated

import (
	"errors"
	"fmt"

	"github.com/bytedance/gg/gconv"

	"github.com/suppgw/gateway/internal/channel"
)

type Config struct {
	HomeServer    string // base URL of the federated chat server (required)
	AccessToken   string // bot account token used for send_message calls
	Mode          string // "webhook" (default) or "ws"
	SigningSecret string // HMAC secret verifying webhook payloads (webhook mode required)
	WSEndpoint    string // persistent-connection endpoint (ws mode required)
}

func (c *Config) Validate() error {
	if c.HomeServer == "" {
		return errors.New("federated home_server cannot be empty")
	}
	if c.AccessToken == "" {
		return errors.New("federated access_token cannot be empty")
	}
	if c.Mode != "webhook" && c.Mode != "ws" {
		return fmt.Errorf("federated mode must be \"webhook\" or \"ws\", got %q", c.Mode)
	}
	if c.Mode == "webhook" && c.SigningSecret == "" {
		return errors.New("federated signing_secret cannot be empty in webhook mode")
	}
	if c.Mode == "ws" && c.WSEndpoint == "" {
		return errors.New("federated ws_endpoint cannot be empty in ws mode")
	}
	return nil
}

func (c *Config) GetType() channel.Type {
	return channel.Federated
}

func ParseConfig(configMap map[string]any) (*Config, error) {
	cfg := &Config{}

	cfg.HomeServer = gconv.To[string](configMap["home_server"])
	cfg.AccessToken = gconv.To[string](configMap["access_token"])

	cfg.Mode = gconv.To[string](configMap["mode"])
	if cfg.Mode == "" {
		cfg.Mode = "webhook"
	}

	cfg.SigningSecret = gconv.To[string](configMap["signing_secret"])
	cfg.WSEndpoint = gconv.To[string](configMap["ws_endpoint"])

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid federated config: %w", err)
	}
	return cfg, nil
}
