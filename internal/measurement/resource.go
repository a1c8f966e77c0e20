package measurement

import "fmt"

// ResourceKind tags the variant held by a Resource or ResourceConsumer.
type ResourceKind uint8

const (
	KindLocalMachine ResourceKind = iota
	KindCPU
	KindControlGroup
	KindProcess
	KindJob
)

// Resource identifies the physical or logical thing a measurement was
// observed on: the whole machine, a CPU core/socket, or a control group.
type Resource struct {
	Kind   ResourceKind
	Socket uint32 // KindCPU
	Core   uint32 // KindCPU
	Path   string // KindControlGroup
}

func LocalMachine() Resource { return Resource{Kind: KindLocalMachine} }

func CPU(socket, core uint32) Resource {
	return Resource{Kind: KindCPU, Socket: socket, Core: core}
}

func ControlGroupResource(path string) Resource {
	return Resource{Kind: KindControlGroup, Path: path}
}

// IDString returns a stable, opaque identifier for the resource, used as
// part of the aggregation grouping key.
func (r Resource) IDString() string {
	switch r.Kind {
	case KindLocalMachine:
		return "local_machine"
	case KindCPU:
		return fmt.Sprintf("cpu:%d:%d", r.Socket, r.Core)
	case KindControlGroup:
		return "cgroup:" + r.Path
	default:
		return "unknown"
	}
}

// ResourceConsumer identifies who the resource is attributed to: a
// process, a control group, or an OAR-style job.
type ResourceConsumer struct {
	Kind ResourceKind
	PID  uint32 // KindProcess
	Path string // KindControlGroup
	JobID string // KindJob
}

func ProcessConsumer(pid uint32) ResourceConsumer {
	return ResourceConsumer{Kind: KindProcess, PID: pid}
}

func ControlGroupConsumer(path string) ResourceConsumer {
	return ResourceConsumer{Kind: KindControlGroup, Path: path}
}

func JobConsumer(jobID string) ResourceConsumer {
	return ResourceConsumer{Kind: KindJob, JobID: jobID}
}

func (c ResourceConsumer) IDString() string {
	switch c.Kind {
	case KindProcess:
		return fmt.Sprintf("process:%d", c.PID)
	case KindControlGroup:
		return "cgroup:" + c.Path
	case KindJob:
		return "job:" + c.JobID
	default:
		return "unknown"
	}
}
