package dashboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loopctl/internal/bus"
	"loopctl/internal/config"
	"loopctl/internal/memory"
	"loopctl/internal/tasks"
)

func TestNew_WiresRegistryMetricsHubAndServer(t *testing.T) {
	mem, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	cfg := config.Default()
	cfg.DashboardAddr = "127.0.0.1:0"

	d, err := New(mem.DB(), Deps{
		Tasks: tasks.New(mem, 0),
		Mem:   mem,
		Bus:   bus.New(),
	}, cfg)
	require.NoError(t, err)
	require.NotNil(t, d.Registry)
	require.NotNil(t, d.Metrics)
	require.NotNil(t, d.Hub)
	require.NotNil(t, d.Server)
}
