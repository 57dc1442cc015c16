package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default().ChainID, cfg.ChainID)
	require.FileExists(t, path)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ChainID, reloaded.ChainID)
	require.Equal(t, cfg.Consensus.RotationSize, reloaded.Consensus.RotationSize)
}

func TestValidateRejectsInconsistentGovernance(t *testing.T) {
	cfg := Default()
	cfg.Governance.PassThresholdBPS = 10001
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsZeroQuorum(t *testing.T) {
	cfg := Default()
	cfg.Governance.QuorumBPS = 0
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsZeroRotationSize(t *testing.T) {
	cfg := Default()
	cfg.Consensus.RotationSize = 0
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsBadScalingBounds(t *testing.T) {
	cfg := Default()
	cfg.Scaling.Enabled = true
	cfg.Scaling.MinShards = 4
	cfg.Scaling.MaxShards = 2
	require.Error(t, Validate(cfg))
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}
