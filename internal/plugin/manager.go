package plugin

import (
	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/eventbus"
	"github.com/sa-mf/alumet-agent/internal/logging"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
)

// entry tracks one plugin instance across its lifecycle so the manager
// can roll back and stop it independently of every other plugin.
type entry struct {
	name   string
	plugin Plugin
	ctx    *StartContext
	failed bool
	active bool // true once Start succeeded; Stop is only called on active plugins
}

// StartupReport summarises a full lifecycle run, the aggregate a
// caller (cmd/alumet-agent) logs and/or exposes over self-metrics.
// Report leaves Failed empty: plugin failures are only logged.
type StartupReport struct {
	Loaded     []string
	Failed     map[string]error
	Metrics    int
	Sources    int
	Transforms int
	Outputs    int
}

// Manager runs every configured plugin through
// init -> start -> pre_pipeline_start -> post_pipeline_start, isolating
// failures to the plugin that produced them (spec.md §4.9).
type Manager struct {
	metrics    *metricregistry.Registry
	sources    *pipeline.SourceRegistry
	transforms *pipeline.TransformRegistry
	outputs    *pipeline.OutputRegistry
	bus        *eventbus.Bus
	logger     *zap.Logger

	entries []*entry
}

func NewManager(metrics *metricregistry.Registry, sources *pipeline.SourceRegistry, transforms *pipeline.TransformRegistry, outputs *pipeline.OutputRegistry, bus *eventbus.Bus, logger *zap.Logger) *Manager {
	return &Manager{
		metrics:    metrics,
		sources:    sources,
		transforms: transforms,
		outputs:    outputs,
		bus:        bus,
		logger:     logger,
	}
}

// LoadAndStart runs init and start for every (metadata, cfg) pair.
// cfg is whatever internal/config decoded for that plugin (or
// metadata.DefaultConfig() if the plugin's table was absent). A
// failure at init or start is logged and leaves that plugin out of
// the active set; a start failure also rolls back only its own
// registrations. Every other plugin is unaffected.
func (m *Manager) LoadAndStart(pairs []struct {
	Metadata Metadata
	Config   any
}) {
	for _, p := range pairs {
		md, cfg := p.Metadata, p.Config
		pl, err := md.Init(cfg)
		if err != nil {
			m.logger.Error("plugin init failed", zap.String("plugin", md.Name), zap.Error(err))
			continue
		}

		pluginLogger := logging.ForPlugin(m.logger, md.Name)
		ctx := newStartContext(md.Name, m.metrics, m.sources, m.transforms, m.outputs, pluginLogger)
		e := &entry{name: md.Name, plugin: pl, ctx: ctx}

		if err := pl.Start(ctx); err != nil {
			m.logger.Error("plugin start failed; rolling back its registrations", zap.String("plugin", md.Name), zap.Error(err))
			ctx.rollback()
			continue
		}
		e.active = true
		m.entries = append(m.entries, e)
	}
}

// RunPreStart calls PrePipelineStart on every still-active plugin,
// after every plugin's Start has run so cross-plugin metric lookups
// see the full registry.
func (m *Manager) RunPreStart() {
	preCtx := &PreStartContext{metrics: m.metrics, logger: m.logger}
	for _, e := range m.entries {
		if !e.active {
			continue
		}
		if err := e.plugin.PrePipelineStart(preCtx); err != nil {
			m.logger.Error("plugin pre_pipeline_start failed; rolling back its registrations",
				zap.String("plugin", e.name), zap.Error(err))
			e.ctx.rollback()
			e.active = false
		}
	}
}

// RunPostStart calls PostPipelineStart on every still-active plugin,
// once the pipeline's control plane is running.
func (m *Manager) RunPostStart(control *pipeline.ControlHandle) {
	postCtx := &PostStartContext{control: control, bus: m.bus, logger: m.logger}
	for _, e := range m.entries {
		if !e.active {
			continue
		}
		if err := e.plugin.PostPipelineStart(postCtx); err != nil {
			m.logger.Error("plugin post_pipeline_start failed; rolling back its registrations",
				zap.String("plugin", e.name), zap.Error(err))
			e.ctx.rollback()
			e.active = false
		}
	}
}

// Report summarises the currently active plugin set.
func (m *Manager) Report() StartupReport {
	r := StartupReport{Failed: make(map[string]error), Metrics: m.metrics.Len()}
	for _, e := range m.entries {
		if e.active {
			r.Loaded = append(r.Loaded, e.name)
			r.Sources += len(e.ctx.addedSources)
			r.Transforms += len(e.ctx.addedTransforms)
			r.Outputs += len(e.ctx.addedOutputs)
		}
	}
	return r
}

// Stop calls Stop on every still-active plugin in reverse load order,
// logging but not stopping on individual errors.
func (m *Manager) Stop() {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if !e.active {
			continue
		}
		if err := e.plugin.Stop(); err != nil {
			m.logger.Error("plugin stop failed", zap.String("plugin", e.name), zap.Error(err))
		}
	}
}
