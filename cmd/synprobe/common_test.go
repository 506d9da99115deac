package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kentik/synthetics-agent/internal/task"
)

func TestProbeFlagsNetwork(t *testing.T) {
	require.Equal(t, task.NetworkIPv4, (&probeFlags{ip4: true}).network())
	require.Equal(t, task.NetworkIPv6, (&probeFlags{ip6: true}).network())
	require.Equal(t, task.NetworkDual, (&probeFlags{}).network())
	require.Equal(t, task.NetworkDual, (&probeFlags{ip4: true, ip6: true}).network())
}

func TestResolveTargetLiteralIP(t *testing.T) {
	addr, err := resolveTarget(nil, "127.0.0.1", task.NetworkIPv4) //nolint:staticcheck // literal IP path never touches ctx
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", addr.String())
}
