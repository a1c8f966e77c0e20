// Package plugin defines the plugin contract and the staged lifecycle
// that drives it (spec.md §4.9, C9), grounded on
// original_source/plugin-aggregation/src/lib.rs's AlumetPlugin trait
// (name/version/default_config/init/start/pre_pipeline_start/
// post_pipeline_start/stop).
package plugin

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/eventbus"
	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
)

// Plugin is implemented by every measurement source/transform/output
// bundle. Instances are produced by a Metadata.Init call, one per
// configured plugin entry.
type Plugin interface {
	Name() string
	Version() string
	// Start registers metrics, sources, transforms and outputs. Errors
	// here cause only this plugin's registrations to be rolled back;
	// other plugins keep loading (spec.md's per-plugin failure isolation).
	Start(ctx *StartContext) error
	// PrePipelineStart runs after every plugin's Start has completed,
	// with every other plugin's metrics already visible — this is where
	// a plugin looks up metrics declared by other plugins (the pattern
	// plugin-aggregation uses to resolve its configured metric names).
	PrePipelineStart(ctx *PreStartContext) error
	// PostPipelineStart runs once the pipeline is executing; it's the
	// only stage where a plugin can reach the control handle and the
	// event bus to react to runtime events.
	PostPipelineStart(ctx *PostStartContext) error
	Stop() error
}

// Metadata is how a plugin registers itself with the manager: a name,
// a version, a default configuration value, and a constructor that
// turns a decoded configuration into a live Plugin. cfg, as passed to
// Init, is whatever internal/config decoded the plugin's TOML table
// into — typically a pointer to the plugin's own Config struct.
type Metadata struct {
	Name          string
	Version       string
	DefaultConfig func() any
	Init          func(cfg any) (Plugin, error)
	// ConfigSchema is an optional JSON Schema string checked against the
	// decoded config before Init runs. Most plugins leave this empty:
	// struct decoding plus unknown-key detection already catches typos.
	// It's for constraints a struct tag can't express, e.g. "endpoint
	// must be a non-empty host:port".
	ConfigSchema string
}

// StartContext is the registration surface handed to Start. Every Add*
// call records the element's key so the manager can roll back this
// plugin's registrations in isolation if a later lifecycle stage fails.
type StartContext struct {
	pluginName string
	metrics    *metricregistry.Registry
	sources    *pipeline.SourceRegistry
	transforms *pipeline.TransformRegistry
	outputs    *pipeline.OutputRegistry
	logger     *zap.Logger

	addedSources    []pipeline.ElementKey
	addedTransforms []pipeline.ElementKey
	addedOutputs    []pipeline.ElementKey
}

func newStartContext(pluginName string, metrics *metricregistry.Registry, sources *pipeline.SourceRegistry, transforms *pipeline.TransformRegistry, outputs *pipeline.OutputRegistry, logger *zap.Logger) *StartContext {
	return &StartContext{
		pluginName: pluginName,
		metrics:    metrics,
		sources:    sources,
		transforms: transforms,
		outputs:    outputs,
		logger:     logger,
	}
}

func (c *StartContext) Logger() *zap.Logger { return c.logger }

// Metrics exposes the shared registry so an output plugin can resolve
// other plugins' metric names (e.g. for wire-format export) without
// waiting for PrePipelineStart.
func (c *StartContext) Metrics() *metricregistry.Registry { return c.metrics }

// AddSource registers a source under this plugin's namespace.
func (c *StartContext) AddSource(name string, class pipeline.Class, trigger pipeline.TriggerSpec, src pipeline.Source) (pipeline.RawID, error) {
	key := pipeline.ElementKey{PluginName: c.pluginName, ElementName: name}
	id, err := c.sources.Add(key, class, trigger, src)
	if err != nil {
		return 0, err
	}
	c.addedSources = append(c.addedSources, key)
	return id, nil
}

func (c *StartContext) AddTransform(name string, t pipeline.Transform) (pipeline.RawID, error) {
	key := pipeline.ElementKey{PluginName: c.pluginName, ElementName: name}
	id, err := c.transforms.Add(key, t)
	if err != nil {
		return 0, err
	}
	c.addedTransforms = append(c.addedTransforms, key)
	return id, nil
}

func (c *StartContext) AddOutput(name string, o pipeline.Output) (pipeline.RawID, error) {
	key := pipeline.ElementKey{PluginName: c.pluginName, ElementName: name}
	id, err := c.outputs.Add(key, o)
	if err != nil {
		return 0, err
	}
	c.addedOutputs = append(c.addedOutputs, key)
	return id, nil
}

func (c *StartContext) rollback() {
	for _, k := range c.addedSources {
		c.sources.Remove(k)
	}
	for _, k := range c.addedTransforms {
		c.transforms.Remove(k)
	}
	for _, k := range c.addedOutputs {
		c.outputs.Remove(k)
	}
}

// CreateMetric declares a new metric in the process-wide registry.
// Metrics are never rolled back: the metric namespace is global and
// append-only, matching the real implementation's metric registry
// (there is no remove_metric operation in spec.md).
func CreateMetric[T measurement.Value](c *StartContext, name string, unit measurement.Unit, description string) (measurement.TypedMetricId[T], error) {
	return metricregistry.CreateMetric[T](c.metrics, metricregistry.OnDuplicateError, name, unit, description)
}

// PreStartContext exposes read access to every metric declared by any
// plugin's Start, used to resolve cross-plugin metric references
// (plugin-aggregation's config.metrics lookups).
type PreStartContext struct {
	metrics *metricregistry.Registry
	logger  *zap.Logger
}

func (c *PreStartContext) Metrics() *metricregistry.Registry { return c.metrics }
func (c *PreStartContext) Logger() *zap.Logger                { return c.logger }

// PostStartContext is available once the pipeline is running: a
// control handle to reconfigure the pipeline, and the event bus to
// subscribe to runtime events (e.g. StartConsumerMeasurement).
type PostStartContext struct {
	control *pipeline.ControlHandle
	bus     *eventbus.Bus
	logger  *zap.Logger
}

func (c *PostStartContext) ControlHandle() *pipeline.ControlHandle { return c.control }
func (c *PostStartContext) EventBus() *eventbus.Bus                { return c.bus }
func (c *PostStartContext) Logger() *zap.Logger                     { return c.logger }

// LifecycleError records which stage of which plugin failed.
type LifecycleError struct {
	PluginName string
	Stage      string
	Err        error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("plugin %q failed during %s: %s", e.PluginName, e.Stage, e.Err)
}
func (e *LifecycleError) Unwrap() error { return e.Err }
