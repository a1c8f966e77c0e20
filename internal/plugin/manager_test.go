package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sa-mf/alumet-agent/internal/eventbus"
	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
)

type fakeSource struct{}

func (fakeSource) Poll(measurement.MeasurementAccumulator, measurement.Timestamp) error { return nil }

type goodPlugin struct{ name string }

func (p *goodPlugin) Name() string    { return p.name }
func (p *goodPlugin) Version() string { return "0.0.1" }
func (p *goodPlugin) Start(ctx *StartContext) error {
	_, err := ctx.AddSource("probe", pipeline.ClassNormal, pipeline.Manual(), fakeSource{})
	return err
}
func (p *goodPlugin) PrePipelineStart(*PreStartContext) error   { return nil }
func (p *goodPlugin) PostPipelineStart(*PostStartContext) error { return nil }
func (p *goodPlugin) Stop() error                               { return nil }

type failingStartPlugin struct{ name string }

func (p *failingStartPlugin) Name() string    { return p.name }
func (p *failingStartPlugin) Version() string { return "0.0.1" }
func (p *failingStartPlugin) Start(ctx *StartContext) error {
	if _, err := ctx.AddSource("probe", pipeline.ClassNormal, pipeline.Manual(), fakeSource{}); err != nil {
		return err
	}
	return errors.New("boom")
}
func (p *failingStartPlugin) PrePipelineStart(*PreStartContext) error   { return nil }
func (p *failingStartPlugin) PostPipelineStart(*PostStartContext) error { return nil }
func (p *failingStartPlugin) Stop() error                               { return nil }

func newTestManager() (*Manager, *pipeline.SourceRegistry) {
	metrics := metricregistry.New()
	sources := pipeline.NewSourceRegistry()
	transforms := pipeline.NewTransformRegistry()
	outputs := pipeline.NewOutputRegistry()
	bus := eventbus.New()
	m := NewManager(metrics, sources, transforms, outputs, bus, zap.NewNop())
	return m, sources
}

func TestFailingPluginDoesNotAffectOthers(t *testing.T) {
	m, sources := newTestManager()

	pairs := []struct {
		Metadata Metadata
		Config   any
	}{
		{Metadata: Metadata{Name: "good", Init: func(any) (Plugin, error) { return &goodPlugin{name: "good"}, nil }}},
		{Metadata: Metadata{Name: "bad", Init: func(any) (Plugin, error) { return &failingStartPlugin{name: "bad"}, nil }}},
	}
	m.LoadAndStart(pairs)

	_, ok := sources.Get(pipeline.ElementKey{PluginName: "good", ElementName: "probe"})
	require.True(t, ok)
	_, ok = sources.Get(pipeline.ElementKey{PluginName: "bad", ElementName: "probe"})
	require.False(t, ok, "failed plugin's registrations must be rolled back")

	report := m.Report()
	require.Equal(t, []string{"good"}, report.Loaded)
}

func TestInitFailureSkipsPlugin(t *testing.T) {
	m, _ := newTestManager()
	pairs := []struct {
		Metadata Metadata
		Config   any
	}{
		{Metadata: Metadata{Name: "bad-init", Init: func(any) (Plugin, error) { return nil, errors.New("bad config") }}},
	}
	m.LoadAndStart(pairs)
	require.Empty(t, m.Report().Loaded)
}

type subscribingPlugin struct {
	name string
	got  chan eventbus.StartConsumerMeasurement
}

func (p *subscribingPlugin) Name() string    { return p.name }
func (p *subscribingPlugin) Version() string { return "0.0.1" }
func (p *subscribingPlugin) Start(*StartContext) error               { return nil }
func (p *subscribingPlugin) PrePipelineStart(*PreStartContext) error { return nil }
func (p *subscribingPlugin) PostPipelineStart(ctx *PostStartContext) error {
	ch := ctx.EventBus().Subscribe()
	go func() { p.got <- <-ch }()
	return nil
}
func (p *subscribingPlugin) Stop() error { return nil }

func TestPostPipelineStartCanSubscribeToEventBus(t *testing.T) {
	metrics := metricregistry.New()
	sources := pipeline.NewSourceRegistry()
	transforms := pipeline.NewTransformRegistry()
	outputs := pipeline.NewOutputRegistry()
	bus := eventbus.New()
	m := NewManager(metrics, sources, transforms, outputs, bus, zap.NewNop())

	got := make(chan eventbus.StartConsumerMeasurement, 1)
	pl := &subscribingPlugin{name: "watcher", got: got}
	m.LoadAndStart([]struct {
		Metadata Metadata
		Config   any
	}{
		{Metadata: Metadata{Name: "watcher", Init: func(any) (Plugin, error) { return pl, nil }}},
	})
	m.RunPreStart()
	m.RunPostStart(nil)

	bus.Publish(eventbus.StartConsumerMeasurement{Consumers: []eventbus.ResourceConsumerRef{{PID: 42}}})

	select {
	case ev := <-got:
		require.Equal(t, 42, ev.Consumers[0].PID)
	case <-time.After(time.Second):
		t.Fatal("plugin never received the event it subscribed to")
	}
}
