package main

import (
	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/config"
	"github.com/sa-mf/alumet-agent/internal/plugin"
	"github.com/sa-mf/alumet-agent/plugins/aggregation"
	"github.com/sa-mf/alumet-agent/plugins/cgroupv2"
	"github.com/sa-mf/alumet-agent/plugins/fileoutput"
	"github.com/sa-mf/alumet-agent/plugins/otlpoutput"
)

// builtinPlugins lists every plugin Metadata compiled into this binary.
// A real distribution would load these from a plugin registry keyed by
// name; here the set is fixed at build time.
func builtinPlugins() []plugin.Metadata {
	return []plugin.Metadata{
		cgroupv2.Metadata,
		aggregation.Metadata,
		otlpoutput.Metadata,
		fileoutput.Metadata,
	}
}

// resolvePluginConfigs decodes each builtin plugin's [plugins.<name>]
// table, falling back to its default config when the table is absent.
// A plugin whose table contains unknown keys is skipped entirely (its
// own config error, isolated from the rest of the agent) rather than
// handed a partially-decoded struct.
func resolvePluginConfigs(raw *config.RawConfig, meta toml.MetaData, logger *zap.Logger) []struct {
	Metadata plugin.Metadata
	Config   any
} {
	var pairs []struct {
		Metadata plugin.Metadata
		Config   any
	}

	for _, md := range builtinPlugins() {
		cfg := md.DefaultConfig()
		if prim, ok := raw.Plugins[md.Name]; ok {
			if err := config.DecodePlugin(meta, prim, cfg); err != nil {
				logger.Error("failed to decode plugin config; skipping plugin",
					zap.String("plugin", md.Name), zap.Error(err))
				continue
			}
			if unknown := config.UnknownKeysFor(meta, md.Name); len(unknown) > 0 {
				logger.Error("plugin config has unknown keys; skipping plugin",
					zap.String("plugin", md.Name), zap.Strings("keys", unknown))
				continue
			}
		}
		if md.ConfigSchema != "" {
			validator, err := config.NewSchemaValidator(md.ConfigSchema)
			if err != nil {
				logger.Error("plugin config schema failed to compile; skipping plugin",
					zap.String("plugin", md.Name), zap.Error(err))
				continue
			}
			if err := validator.Validate(cfg); err != nil {
				logger.Error("plugin config failed schema validation; skipping plugin",
					zap.String("plugin", md.Name), zap.Error(err))
				continue
			}
		}
		pairs = append(pairs, struct {
			Metadata plugin.Metadata
			Config   any
		}{Metadata: md, Config: cfg})
	}
	return pairs
}
