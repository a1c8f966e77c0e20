// Package cgroupv2 is a reference Source plugin measuring per-cgroup
// CPU time and memory usage from the cgroup v2 filesystem, with
// dynamic discovery of job cgroups appearing and disappearing under a
// job scheduler's cgroup tree (spec.md §4.9's dynamic source
// management, C17). Grounded on
// original_source/plugin-cgroupv2/src/oar3/probe.rs.
package cgroupv2

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/config"
	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
	"github.com/sa-mf/alumet-agent/internal/plugin"
	"github.com/sa-mf/alumet-agent/internal/watch"
)

const Name = "cgroupv2"

// Config is the plugin's [plugins.cgroupv2] table.
type Config struct {
	Interval   config.Duration `toml:"interval"`
	CgroupRoot string          `toml:"cgroup_root"`
}

func defaultConfig() *Config {
	return &Config{
		Interval:   config.Duration{Duration: time.Second},
		CgroupRoot: "/sys/fs/cgroup/oar",
	}
}

// Metadata is the entry the agent's plugin registry exposes.
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
	config  Config
	metrics metricIDs
	watcher *watch.Watcher
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "0.1.0" }

func (p *Plugin) Start(ctx *plugin.StartContext) error {
	var err error
	if p.metrics.cpuTotal, err = plugin.CreateMetric[uint64](ctx, "cgroup_cpu_time_total", measurement.Unit{Base: "usec"}, "Total CPU time consumed by the control group."); err != nil {
		return err
	}
	if p.metrics.cpuUserMode, err = plugin.CreateMetric[uint64](ctx, "cgroup_cpu_time_user_mode", measurement.Unit{Base: "usec"}, "CPU time consumed in user mode."); err != nil {
		return err
	}
	if p.metrics.cpuSystemMode, err = plugin.CreateMetric[uint64](ctx, "cgroup_cpu_time_system_mode", measurement.Unit{Base: "usec"}, "CPU time consumed in system mode."); err != nil {
		return err
	}
	if p.metrics.memAnon, err = plugin.CreateMetric[uint64](ctx, "cgroup_memory_anonymous", measurement.Unit{Base: "bytes"}, "Anonymous memory used by the control group."); err != nil {
		return err
	}
	if p.metrics.memFile, err = plugin.CreateMetric[uint64](ctx, "cgroup_memory_file", measurement.Unit{Base: "bytes"}, "Page-cache memory used by the control group."); err != nil {
		return err
	}
	if p.metrics.memKernel, err = plugin.CreateMetric[uint64](ctx, "cgroup_memory_kernel", measurement.Unit{Base: "bytes"}, "Kernel memory used by the control group."); err != nil {
		return err
	}
	if p.metrics.memPagetables, err = plugin.CreateMetric[uint64](ctx, "cgroup_memory_pagetables", measurement.Unit{Base: "bytes"}, "Page table memory used by the control group."); err != nil {
		return err
	}
	if p.metrics.memTotal, err = plugin.CreateMetric[uint64](ctx, "cgroup_memory_total", measurement.Unit{Base: "bytes"}, "Total memory used by the control group."); err != nil {
		return err
	}

	for _, dir := range existingCgroupDirs(p.config.CgroupRoot) {
		name := filepath.Base(dir)
		src := newSource(dir, p.metrics)
		if _, err := ctx.AddSource(name, pipeline.ClassBlocking, pipeline.AtInterval(p.config.Interval.Duration), src); err != nil {
			ctx.Logger().Warn("failed to add source for existing cgroup", zap.Error(err))
		}
	}
	return nil
}

func (p *Plugin) PrePipelineStart(*plugin.PreStartContext) error { return nil }

// PostPipelineStart installs the filesystem watcher that adds/removes
// sources as job cgroups come and go, reaching the running pipeline
// only through the control handle.
func (p *Plugin) PostPipelineStart(ctx *plugin.PostStartContext) error {
	control := ctx.ControlHandle()
	metrics := p.metrics
	interval := p.config.Interval.Duration

	w, err := watch.New(p.config.CgroupRoot, "cpu.stat",
		func(dir string) {
			name := filepath.Base(dir)
			_ = control.Send(pipeline.AddSourceMessage{
				Key:     pipeline.ElementKey{PluginName: Name, ElementName: name},
				Class:   pipeline.ClassBlocking,
				Trigger: pipeline.AtInterval(interval),
				Source:  newSource(dir, metrics),
			})
		},
		func(dir string) {
			name := filepath.Base(dir)
			_ = control.Send(pipeline.StopSourceMessage{Selector: pipeline.ByElementName(Name, name)})
		},
		ctx.Logger(),
	)
	if err != nil {
		ctx.Logger().Warn("cgroupv2 watcher unavailable; dynamic job discovery disabled", zap.Error(err))
		return nil
	}
	p.watcher = w
	w.Run()
	return nil
}

func (p *Plugin) Stop() error {
	if p.watcher != nil {
		p.watcher.Stop()
	}
	return nil
}

func existingCgroupDirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, "cpu.stat")); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
