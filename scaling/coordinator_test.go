package scaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"energychain/config"
)

func testConfig() config.Scaling {
	return config.Scaling{
		Enabled:             true,
		MinShards:           1,
		MaxShards:           4,
		PerShardCapacityTPS: 100,
		ScaleUpWindows:      3,
		ScaleDownWindows:    3,
		CooldownWindows:     5,
	}
}

func TestCoordinatorScalesUpAfterSustainedHighLoad(t *testing.T) {
	c := NewCoordinator(testConfig(), nil)
	now := time.Unix(1000, 0)

	for i := 0; i < 2; i++ {
		require.Equal(t, Steady, c.Evaluate(Sample{TPS: 90}, now))
	}
	require.Equal(t, ScaleUp, c.Evaluate(Sample{TPS: 90}, now))
	require.Equal(t, uint32(2), c.Shards())
}

func TestCoordinatorDoesNotScaleUpOnTransientSpike(t *testing.T) {
	c := NewCoordinator(testConfig(), nil)
	now := time.Unix(1000, 0)

	require.Equal(t, Steady, c.Evaluate(Sample{TPS: 90}, now))
	require.Equal(t, Steady, c.Evaluate(Sample{TPS: 10}, now))
	require.Equal(t, Steady, c.Evaluate(Sample{TPS: 90}, now))
	require.Equal(t, uint32(1), c.Shards())
}

func TestCoordinatorScalesDownAfterSustainedLowLoad(t *testing.T) {
	cfg := testConfig()
	cfg.MinShards = 1
	c := NewCoordinator(cfg, nil)
	now := time.Unix(1000, 0)

	for i := 0; i < 2; i++ {
		require.Equal(t, Steady, c.Evaluate(Sample{TPS: 200}, now))
	}
	require.Equal(t, ScaleUp, c.Evaluate(Sample{TPS: 200}, now))
	require.Equal(t, uint32(2), c.Shards())

	for i := 0; i < 4; i++ {
		require.Equal(t, Steady, c.Evaluate(Sample{TPS: 1}, now), "cooldown must suppress scale-down until it elapses")
	}
	require.Equal(t, ScaleDown, c.Evaluate(Sample{TPS: 1}, now))
	require.Equal(t, uint32(1), c.Shards())
}

func TestCoordinatorNeverScalesBelowMinOrAboveMax(t *testing.T) {
	cfg := testConfig()
	cfg.MinShards = 1
	cfg.MaxShards = 1
	c := NewCoordinator(cfg, nil)
	now := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		c.Evaluate(Sample{TPS: 1000}, now)
	}
	require.Equal(t, uint32(1), c.Shards())
}

func TestCoordinatorDisabledIsAlwaysSteady(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCoordinator(cfg, nil)
	now := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		require.Equal(t, Steady, c.Evaluate(Sample{TPS: 1000}, now))
	}
	require.Equal(t, uint32(1), c.Shards())
}
