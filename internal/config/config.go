// Package config loads the agent's TOML configuration file (spec.md
// §4.9/§4.13, C13), grounded on the teacher's BurntSushi/toml-based
// decode-into-Primitive-then-per-component-decode idiom.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration parses like Go's time.ParseDuration ("30s", "2m") rather
// than TOML's native types, so plugin authors write the same duration
// strings whether they're going into a TOML file or a CLI flag.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// AgentConfig is the top-level [agent] table.
type AgentConfig struct {
	WorkerThreads         int    `toml:"worker_threads"`
	PriorityWorkerThreads int    `toml:"priority_worker_threads"`
	SelfMetricsAddr       string `toml:"self_metrics_addr"`
}

// DefaultAgentConfig mirrors the zero-config defaults: one normal
// worker per CPU (communicated as 0, resolved by the scheduler),
// priority scheduling sized the same way, self-metrics on the loopback
// interface.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		WorkerThreads:         0,
		PriorityWorkerThreads: 0,
		SelfMetricsAddr:       "127.0.0.1:9090",
	}
}

// RawConfig is the whole decoded TOML file before any plugin-specific
// decoding happens; each [plugins.<name>] table stays an opaque
// toml.Primitive until DecodePlugin decodes it into that plugin's own
// Config struct, before the plugin's Metadata.Init is called.
type RawConfig struct {
	Agent   AgentConfig               `toml:"agent"`
	Plugins map[string]toml.Primitive `toml:"plugins"`
}

// Load reads and decodes path. The returned MetaData is retained so
// that per-plugin unknown-key detection (UnknownKeysFor) can run after
// every plugin table has been decoded.
func Load(path string) (*RawConfig, toml.MetaData, error) {
	raw := &RawConfig{Agent: DefaultAgentConfig()}
	meta, err := toml.DecodeFile(path, raw)
	if err != nil {
		return nil, toml.MetaData{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return raw, meta, nil
}

// DecodePlugin decodes one plugin's table into out, a pointer to that
// plugin's own Config struct.
func DecodePlugin(meta toml.MetaData, prim toml.Primitive, out any) error {
	return meta.PrimitiveDecode(prim, out)
}

// UnknownKeysFor returns the dotted paths of every key under
// plugins.<name> that PrimitiveDecode left undecoded — i.e. fields the
// plugin's Config struct doesn't know about. A non-empty result should
// fail that one plugin's init, not the whole agent (spec.md's
// per-plugin failure isolation extends to config errors).
func UnknownKeysFor(meta toml.MetaData, pluginName string) []string {
	var out []string
	for _, k := range meta.Undecoded() {
		if len(k) >= 2 && k[0] == "plugins" && k[1] == pluginName {
			out = append(out, k.String())
		}
	}
	return out
}
