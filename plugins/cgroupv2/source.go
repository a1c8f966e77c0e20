package cgroupv2

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sa-mf/alumet-agent/internal/counterdiff"
	"github.com/sa-mf/alumet-agent/internal/measurement"
	"github.com/sa-mf/alumet-agent/internal/pipeline"
)

// metricIDs are the metrics declared once by the plugin and shared by
// every cgroup-scoped Source instance.
type metricIDs struct {
	cpuTotal      measurement.TypedMetricId[uint64]
	cpuUserMode   measurement.TypedMetricId[uint64]
	cpuSystemMode measurement.TypedMetricId[uint64]
	memAnon       measurement.TypedMetricId[uint64]
	memFile       measurement.TypedMetricId[uint64]
	memKernel     measurement.TypedMetricId[uint64]
	memPagetables measurement.TypedMetricId[uint64]
	memTotal      measurement.TypedMetricId[uint64]
}

// Source polls a single control group's cpu.stat and memory.stat,
// grounded on original_source/plugin-cgroupv2/src/oar3/probe.rs's
// CgroupV2prob::poll.
type Source struct {
	path     string
	consumer measurement.ResourceConsumer
	metrics  metricIDs

	cpuTotal  counterdiff.CounterDiff
	cpuUser   counterdiff.CounterDiff
	cpuSystem counterdiff.CounterDiff
}

// newSource builds a Source for path, a cgroupv2 directory containing
// cpu.stat and memory.stat. If path's parent directory is named "oar"
// (the job scheduler's per-job cgroup layout probe.rs was written
// against), the directory's basename becomes a Job resource consumer
// id instead of a plain control-group path, matching spec.md's
// supplemental Job{id} consumer variant.
func newSource(path string, metrics metricIDs) *Source {
	return &Source{
		path:      path,
		consumer:  consumerFor(path),
		metrics:   metrics,
		cpuTotal:  counterdiff.WithMaxValue(math.MaxUint64),
		cpuUser:   counterdiff.WithMaxValue(math.MaxUint64),
		cpuSystem: counterdiff.WithMaxValue(math.MaxUint64),
	}
}

func consumerFor(path string) measurement.ResourceConsumer {
	parent := filepath.Base(filepath.Dir(path))
	if parent == "oar" {
		return measurement.JobConsumer(filepath.Base(path))
	}
	return measurement.ControlGroupConsumer(path)
}

func (s *Source) Poll(acc measurement.MeasurementAccumulator, ts measurement.Timestamp) error {
	cpu, err := parseStatFile(filepath.Join(s.path, "cpu.stat"))
	if err != nil {
		return pipeline.RetryablePollError(fmt.Errorf("read cpu.stat: %w", err))
	}
	mem, err := parseStatFile(filepath.Join(s.path, "memory.stat"))
	if err != nil {
		return pipeline.RetryablePollError(fmt.Errorf("read memory.stat: %w", err))
	}

	resource := measurement.ControlGroupResource(s.path)
	jobScoped := s.consumer.Kind == measurement.KindJob

	tag := func(p measurement.MeasurementPoint) measurement.MeasurementPoint {
		return p.WithAttr("job_scoped", measurement.BoolAttr(jobScoped))
	}

	if delta, ok := s.cpuTotal.Update(cpu["usage_usec"]).AsOptionalDelta(); ok {
		acc.Push(tag(measurement.NewPoint(ts, s.metrics.cpuTotal, resource, s.consumer, delta)))
	}
	if delta, ok := s.cpuUser.Update(cpu["user_usec"]).AsOptionalDelta(); ok {
		acc.Push(tag(measurement.NewPoint(ts, s.metrics.cpuUserMode, resource, s.consumer, delta)))
	}
	if delta, ok := s.cpuSystem.Update(cpu["system_usec"]).AsOptionalDelta(); ok {
		acc.Push(tag(measurement.NewPoint(ts, s.metrics.cpuSystemMode, resource, s.consumer, delta)))
	}

	anon, file := mem["anon"], mem["file"]
	kernel := mem["kernel_stack"] + mem["slab"]
	pagetables := mem["pagetables"]
	acc.Push(tag(measurement.NewPoint(ts, s.metrics.memAnon, resource, s.consumer, anon)))
	acc.Push(tag(measurement.NewPoint(ts, s.metrics.memFile, resource, s.consumer, file)))
	acc.Push(tag(measurement.NewPoint(ts, s.metrics.memKernel, resource, s.consumer, kernel)))
	acc.Push(tag(measurement.NewPoint(ts, s.metrics.memPagetables, resource, s.consumer, pagetables)))
	acc.Push(tag(measurement.NewPoint(ts, s.metrics.memTotal, resource, s.consumer, anon+file+kernel+pagetables)))

	return nil
}

// parseStatFile reads a cgroupv2 "key value" stat file (cpu.stat,
// memory.stat) into a map; unknown keys are kept too, so callers can
// read only the fields they need.
func parseStatFile(path string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]uint64)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out[fields[0]] = value
	}
	return out, scanner.Err()
}
