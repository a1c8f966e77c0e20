package cgroupv2

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/metricregistry"
)

func writeStat(t *testing.T, dir, name string, values map[string]uint64) {
	t.Helper()
	var content string
	for k, v := range values {
		content += fmt.Sprintf("%s %d\n", k, v)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestMetrics(t *testing.T) metricIDs {
	reg := metricregistry.New()
	ids := metricIDs{}
	var err error
	ids.cpuTotal, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_cpu_time_total", measurement.Unit{Base: "usec"}, "")
	require.NoError(t, err)
	ids.cpuUserMode, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_cpu_time_user_mode", measurement.Unit{Base: "usec"}, "")
	require.NoError(t, err)
	ids.cpuSystemMode, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_cpu_time_system_mode", measurement.Unit{Base: "usec"}, "")
	require.NoError(t, err)
	ids.memAnon, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_memory_anonymous", measurement.Unit{Base: "bytes"}, "")
	require.NoError(t, err)
	ids.memFile, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_memory_file", measurement.Unit{Base: "bytes"}, "")
	require.NoError(t, err)
	ids.memKernel, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_memory_kernel", measurement.Unit{Base: "bytes"}, "")
	require.NoError(t, err)
	ids.memPagetables, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_memory_pagetables", measurement.Unit{Base: "bytes"}, "")
	require.NoError(t, err)
	ids.memTotal, err = metricregistry.CreateMetric[uint64](reg, metricregistry.OnDuplicateError, "cgroup_memory_total", measurement.Unit{Base: "bytes"}, "")
	require.NoError(t, err)
	return ids
}

// TestThreeSamplesSkipFirstTimeThenReportEqualDeltas mirrors spec.md
// §8 scenario 1: usage_usec sampled as {1000, 2000, 3000} over three
// ticks must report {skipped, 1000, 1000}.
func TestThreeSamplesSkipFirstTimeThenReportEqualDeltas(t *testing.T) {
	dir := t.TempDir()
	metrics := newTestMetrics(t)
	src := newSource(dir, metrics)

	samples := []uint64{1000, 2000, 3000}
	var cpuPointCounts []int
	for i, usage := range samples {
		writeStat(t, dir, "cpu.stat", map[string]uint64{"usage_usec": usage, "user_usec": usage / 2, "system_usec": usage / 2})
		writeStat(t, dir, "memory.stat", map[string]uint64{"anon": 10, "file": 20, "kernel_stack": 1, "slab": 2, "pagetables": 3})

		buf := measurement.NewBuffer()
		acc := measurement.NewAccumulator(buf)
		ts := measurement.NewTimestamp(time.Unix(0, 0).Add(time.Duration(i+1) * time.Second))
		require.NoError(t, src.Poll(acc, ts))

		cpu := 0
		buf.Iter(func(p measurement.MeasurementPoint) {
			if p.MetricID == metrics.cpuTotal.Raw() {
				cpu++
				v, _ := p.Value.AsU64()
				require.Equal(t, uint64(1000), v)
			}
		})
		cpuPointCounts = append(cpuPointCounts, cpu)
	}

	require.Equal(t, []int{0, 1, 1}, cpuPointCounts)
}

func TestMemoryMetricsAlwaysReported(t *testing.T) {
	dir := t.TempDir()
	metrics := newTestMetrics(t)
	src := newSource(dir, metrics)

	writeStat(t, dir, "cpu.stat", map[string]uint64{"usage_usec": 1, "user_usec": 1, "system_usec": 0})
	writeStat(t, dir, "memory.stat", map[string]uint64{"anon": 5, "file": 6, "kernel_stack": 1, "slab": 1, "pagetables": 2})

	buf := measurement.NewBuffer()
	acc := measurement.NewAccumulator(buf)
	require.NoError(t, src.Poll(acc, measurement.NewTimestamp(time.Unix(0, 0))))

	require.Equal(t, 5, buf.Len()) // 5 memory points, cpu skipped on first sample

	buf.Iter(func(p measurement.MeasurementPoint) {
		attr, ok := p.Attributes.Get("job_scoped")
		require.True(t, ok)
		require.Equal(t, false, attr.Interface())
	})
}

func TestJobConsumerDerivedFromOarParentDir(t *testing.T) {
	root := t.TempDir()
	oarDir := filepath.Join(root, "oar")
	require.NoError(t, os.Mkdir(oarDir, 0o755))
	jobDir := filepath.Join(oarDir, "42")
	require.NoError(t, os.Mkdir(jobDir, 0o755))

	consumer := consumerFor(jobDir)
	require.Equal(t, measurement.KindJob, consumer.Kind)
	require.Equal(t, "42", consumer.JobID)
}
