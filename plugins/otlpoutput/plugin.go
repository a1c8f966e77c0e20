package otlpoutput

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/plugin"
)

const Name = "otlpoutput"

// Config is the plugin's [plugins.otlpoutput] table.
type Config struct {
	Endpoint string `toml:"endpoint" json:"endpoint"`
	Insecure bool   `toml:"insecure" json:"insecure"`
}

func defaultConfig() *Config {
	return &Config{Endpoint: "localhost:4318", Insecure: true}
}

// configSchema rejects an empty endpoint before the exporter is ever
// built, rather than letting otlpmetrichttp fail obscurely on its
// first export attempt.
const configSchema = `{
	"type": "object",
	"properties": {
		"endpoint": {"type": "string", "minLength": 1}
	},
	"required": ["endpoint"]
}`

var Metadata = plugin.Metadata{
	Name:          Name,
	Version:       "0.1.0",
	DefaultConfig: func() any { return defaultConfig() },
	ConfigSchema:  configSchema,
	Init: func(cfg any) (plugin.Plugin, error) {
		c, ok := cfg.(*Config)
		if !ok {
			c = defaultConfig()
		}
		return &Plugin{config: *c}, nil
	},
}

type Plugin struct {
	config Config
	output *Output
	logger *zap.Logger
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "0.1.0" }

// Start builds the exporter eagerly so a misconfigured endpoint fails
// this plugin's load rather than surfacing only on the first export.
func (p *Plugin) Start(ctx *plugin.StartContext) error {
	out, err := New(context.Background(), p.config.Endpoint, p.config.Insecure, ctx.Metrics())
	if err != nil {
		return err
	}
	p.output = out
	p.logger = ctx.Logger()
	_, err = ctx.AddOutput("otlp", out)
	return err
}

func (p *Plugin) PrePipelineStart(*plugin.PreStartContext) error   { return nil }
func (p *Plugin) PostPipelineStart(*plugin.PostStartContext) error { return nil }

func (p *Plugin) Stop() error {
	if p.output == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.output.exporter.Shutdown(ctx); err != nil {
		p.logger.Warn("otlp exporter shutdown failed", zap.Error(err))
	}
	return nil
}
