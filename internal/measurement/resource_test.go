package measurement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceIDStringIsStablePerKind(t *testing.T) {
	require.Equal(t, "local_machine", LocalMachine().IDString())
	require.Equal(t, "cpu:1:3", CPU(1, 3).IDString())
	require.Equal(t, "cgroup:/sys/fs/cgroup/foo", ControlGroupResource("/sys/fs/cgroup/foo").IDString())
}

func TestResourceConsumerIDStringIsStablePerKind(t *testing.T) {
	require.Equal(t, "process:1234", ProcessConsumer(1234).IDString())
	require.Equal(t, "cgroup:/sys/fs/cgroup/foo", ControlGroupConsumer("/sys/fs/cgroup/foo").IDString())
	require.Equal(t, "job:42", JobConsumer("42").IDString())
}
