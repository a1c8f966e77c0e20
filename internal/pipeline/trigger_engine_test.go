package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sa-mf/alumet-agent/internal/measurement"
)

type nopSource struct{}

func (nopSource) Poll(measurement.MeasurementAccumulator, measurement.Timestamp) error { return nil }

func TestNextAlignedNeverGoesBackward(t *testing.T) {
	epoch := time.Unix(1000, 0)
	interval := 100 * time.Millisecond

	next := nextAligned(epoch, interval, epoch.Add(250*time.Millisecond))
	require.Equal(t, epoch.Add(300*time.Millisecond), next)

	// Far behind (simulated long GC pause / busy host): still only the
	// next single boundary, never a backlog.
	next = nextAligned(epoch, interval, epoch.Add(10*time.Second))
	require.True(t, next.After(epoch.Add(10*time.Second)))
	require.Equal(t, epoch.Add(10*time.Second+100*time.Millisecond), next)
}

func TestTriggerEngineDispatchesOnGroup(t *testing.T) {
	registry := NewSourceRegistry()
	key := ElementKey{PluginName: "p", ElementName: "s"}
	_, err := registry.Add(key, ClassNormal, TriggerSpec{Kind: TriggerInterval, Interval: 10 * time.Millisecond}, nopSource{})
	require.NoError(t, err)

	calls := make(chan int, 8)
	engine := NewTriggerEngine(registry, func(entries []*sourceEntry, ts measurement.Timestamp) {
		calls <- len(entries)
	})
	defer engine.Shutdown()

	engine.EnsureGroup(10*time.Millisecond, ClassNormal)

	select {
	case n := <-calls:
		require.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("expected at least one dispatch")
	}
}

func TestTriggerManuallyWaitsForCompletion(t *testing.T) {
	registry := NewSourceRegistry()
	key := ElementKey{PluginName: "p", ElementName: "s"}
	_, err := registry.Add(key, ClassNormal, Manual(), nopSource{})
	require.NoError(t, err)

	finished := false
	engine := NewTriggerEngine(registry, func(entries []*sourceEntry, ts measurement.Timestamp) {
		time.Sleep(20 * time.Millisecond)
		finished = true
	})
	defer engine.Shutdown()

	engine.TriggerManually(func(k ElementKey) bool { return k == key })
	require.True(t, finished)
}

func TestDropGroupIfEmptyStopsTicker(t *testing.T) {
	registry := NewSourceRegistry()
	engine := NewTriggerEngine(registry, func(entries []*sourceEntry, ts measurement.Timestamp) {})
	engine.EnsureGroup(5*time.Millisecond, ClassNormal)
	engine.DropGroupIfEmpty(5*time.Millisecond, ClassNormal)

	engine.mu.Lock()
	_, exists := engine.groups[groupKey{interval: 5 * time.Millisecond, class: ClassNormal}]
	engine.mu.Unlock()
	require.False(t, exists)
}
