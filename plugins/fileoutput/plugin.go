package fileoutput

import (
	"os"

	"github.com/sa-mf/alumet-agent/internal/plugin"
)

const Name = "fileoutput"

// Config is the plugin's [plugins.fileoutput] table. An empty Path
// writes to stdout.
type Config struct {
	Path string `toml:"path"`
}

func defaultConfig() *Config {
	return &Config{}
}

var Metadata = plugin.Metadata{
	Name:          Name,
	Version:       "0.1.0",
	DefaultConfig: func() any { return defaultConfig() },
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
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "0.1.0" }

func (p *Plugin) Start(ctx *plugin.StartContext) error {
	var out *Output
	if p.config.Path == "" {
		out = NewWriter(os.Stdout, ctx.Metrics())
	} else {
		var err error
		out, err = NewFile(p.config.Path, ctx.Metrics())
		if err != nil {
			return err
		}
	}
	p.output = out
	_, err := ctx.AddOutput("file", out)
	return err
}

func (p *Plugin) PrePipelineStart(*plugin.PreStartContext) error   { return nil }
func (p *Plugin) PostPipelineStart(*plugin.PostStartContext) error { return nil }

func (p *Plugin) Stop() error {
	if p.output == nil {
		return nil
	}
	return p.output.Close()
}
