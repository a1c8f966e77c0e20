package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sa-mf/alumet-agent/internal/measurement"
)

type erroringSource struct{ err error }

func (s *erroringSource) Poll(acc measurement.MeasurementAccumulator, ts measurement.Timestamp) error {
	return s.err
}

func TestFatalPollErrorRemovesSource(t *testing.T) {
	exec := newTestExecutor()
	defer exec.Shutdown()

	key := ElementKey{PluginName: "p", ElementName: "s"}
	require.NoError(t, exec.AddSource(key, ClassNormal, Manual(), &erroringSource{err: FatalPollError(errors.New("gone"))}))

	exec.TriggerManually(func(k ElementKey) bool { return k == key })

	require.Eventually(t, func() bool {
		_, ok := exec.sources.Get(key)
		return !ok
	}, time.Second, time.Millisecond)
}

func TestRetryablePollErrorKeepsSource(t *testing.T) {
	exec := newTestExecutor()
	defer exec.Shutdown()

	key := ElementKey{PluginName: "p", ElementName: "s"}
	require.NoError(t, exec.AddSource(key, ClassNormal, Manual(), &erroringSource{err: RetryablePollError(errors.New("transient"))}))

	exec.TriggerManually(func(k ElementKey) bool { return k == key })
	time.Sleep(10 * time.Millisecond)

	_, ok := exec.sources.Get(key)
	require.True(t, ok)
}

type kindTransform struct{ err error }

func (t *kindTransform) Apply(buf *measurement.MeasurementBuffer, _ TransformContext) error {
	return t.err
}

func TestFatalTransformErrorDisablesTransform(t *testing.T) {
	exec := newTestExecutor()
	defer exec.Shutdown()

	key := ElementKey{PluginName: "p", ElementName: "t"}
	_, err := exec.transforms.Add(key, &kindTransform{err: FatalTransformError(errors.New("broken"))})
	require.NoError(t, err)

	buf := measurement.NewBuffer()
	buf.Push(measurement.MeasurementPoint{})
	exec.processBuffer(ElementKey{PluginName: "p", ElementName: "s"}, buf)

	for _, te := range exec.transforms.Chain() {
		require.NotEqual(t, key, te.key, "fatally-errored transform should no longer be in the enabled chain")
	}
}

func TestCanContinueTransformErrorKeepsChainRunning(t *testing.T) {
	exec := newTestExecutor()
	defer exec.Shutdown()

	out := &recordingOutput{}
	require.NoError(t, addManualOutput(exec, out))

	key := ElementKey{PluginName: "p", ElementName: "t"}
	_, err := exec.transforms.Add(key, &kindTransform{err: CanContinueError(errors.New("one point rejected"))})
	require.NoError(t, err)

	buf := measurement.NewBuffer()
	buf.Push(measurement.MeasurementPoint{})
	exec.processBuffer(ElementKey{PluginName: "p", ElementName: "s"}, buf)

	require.Equal(t, 1, out.seen)
}

func TestUnexpectedInputTransformErrorStopsChainForThisBuffer(t *testing.T) {
	exec := newTestExecutor()
	defer exec.Shutdown()

	out := &recordingOutput{}
	require.NoError(t, addManualOutput(exec, out))

	key := ElementKey{PluginName: "p", ElementName: "t"}
	_, err := exec.transforms.Add(key, &kindTransform{err: UnexpectedInputError(errors.New("wrong shape"))})
	require.NoError(t, err)

	buf := measurement.NewBuffer()
	buf.Push(measurement.MeasurementPoint{})
	exec.processBuffer(ElementKey{PluginName: "p", ElementName: "s"}, buf)

	require.Equal(t, 0, out.seen)
}

type erroringOutput struct{ err error }

func (o *erroringOutput) Write(*measurement.MeasurementBuffer) error { return o.err }
func (o *erroringOutput) Flush() error                               { return nil }

func TestFatalOutputErrorRemovesOutput(t *testing.T) {
	exec := newTestExecutor()
	defer exec.Shutdown()

	key := ElementKey{PluginName: "p", ElementName: "out"}
	_, err := exec.outputs.Add(key, &erroringOutput{err: FatalOutputError(errors.New("disk full"))})
	require.NoError(t, err)

	buf := measurement.NewBuffer()
	buf.Push(measurement.MeasurementPoint{})
	exec.processBuffer(ElementKey{PluginName: "p", ElementName: "s"}, buf)

	for _, oe := range exec.outputs.Snapshot() {
		require.NotEqual(t, key, oe.key)
	}
}

func TestRetryableOutputErrorWritesAgainOnce(t *testing.T) {
	exec := newTestExecutor()
	defer exec.Shutdown()

	calls := 0
	out := &countingOutput{write: func() error {
		calls++
		return RetryableOutputError(errors.New("temporary"))
	}}
	key := ElementKey{PluginName: "p", ElementName: "out"}
	_, err := exec.outputs.Add(key, out)
	require.NoError(t, err)

	buf := measurement.NewBuffer()
	buf.Push(measurement.MeasurementPoint{})
	exec.processBuffer(ElementKey{PluginName: "p", ElementName: "s"}, buf)

	require.Equal(t, 2, calls)
	found := false
	for _, oe := range exec.outputs.Snapshot() {
		if oe.key == key {
			found = true
		}
	}
	require.True(t, found, "a retryable error should not remove the output")
}

type countingOutput struct{ write func() error }

func (o *countingOutput) Write(*measurement.MeasurementBuffer) error { return o.write() }
func (o *countingOutput) Flush() error                               { return nil }
