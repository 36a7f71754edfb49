// Package policy implements the two per-channel policy services (C12): AI
// generation and auto-response. Both re-read configuration on every call so
// an admin toggle takes effect without a restart.
package policy

import (
	"github.com/suppgw/gateway/internal/channel"
	"github.com/suppgw/gateway/internal/config"
)

// Source is the subset of config.InstanceManager the policy services need.
type Source interface {
	Get() (*config.Config, error)
}

type AIGenerationPolicy struct {
	Config Source
}

func (p *AIGenerationPolicy) IsEnabled(channelID channel.Type) bool {
	cfg, ok := lookup(p.Config, channelID)
	return ok && cfg.AIGeneration
}

type AutoResponsePolicy struct {
	Config Source
}

func (p *AutoResponsePolicy) IsEnabled(channelID channel.Type) bool {
	cfg, ok := lookup(p.Config, channelID)
	return ok && cfg.AutoResponse
}

func lookup(source Source, channelID channel.Type) (config.ChannelConfig, bool) {
	cfg, err := source.Get()
	if err != nil || cfg == nil {
		return config.ChannelConfig{}, false
	}
	one, ok := cfg.Channels[string(channelID)]
	return one, ok
}

// Lookup returns the per-channel config the gateway pre/post hooks need,
// satisfying gateway.ChannelPolicyFunc.
func Lookup(source Source) func(channel.Type) (config.ChannelConfig, bool) {
	return func(channelID channel.Type) (config.ChannelConfig, bool) {
		return lookup(source, channelID)
	}
}
