// Package pipeline implements the runtime core of the agent: the
// source/transform/output registries, the trigger engine, the dual
// normal/priority scheduler, the executor that wires them together, and
// the control plane (spec.md §4.4-§4.7, C4-C8).
package pipeline

import "fmt"

// ElementKey uniquely names a source, transform or output: the plugin
// that registered it plus a name unique within that plugin.
type ElementKey struct {
	PluginName  string
	ElementName string
}

func (k ElementKey) String() string {
	return fmt.Sprintf("%s/%s", k.PluginName, k.ElementName)
}

// RawID is a stable identifier assigned at registration time, used by
// the control plane's ByTypedId selector and by scheduler bookkeeping.
type RawID uint64

// Class groups sources (and, by extension, the scheduler) by their
// timing/blocking contract (spec.md §4.3).
type Class uint8

const (
	ClassNormal Class = iota
	ClassBlocking
	ClassPriority
)

func (c Class) String() string {
	switch c {
	case ClassBlocking:
		return "blocking"
	case ClassPriority:
		return "priority"
	default:
		return "normal"
	}
}
