package config

import "fmt"

// MinVotingPeriod is the floor on how short a governance voting window may
// be configured, mirroring the teacher's MinVotingPeriodSeconds guard.
var MinVotingPeriod = durationMin

const durationMin = 60 // seconds, compared via Governance.VotingPeriod

// Validate rejects a Config whose knobs would make the node misbehave
// rather than letting the inconsistency surface later as a runtime fault
// (grounded on the teacher's ValidateConfig).
func Validate(c Config) error {
	if c.Governance.QuorumBPS == 0 || c.Governance.QuorumBPS > 10000 {
		return fmt.Errorf("config: governance.QuorumBPS must be in (0, 10000]")
	}
	if c.Governance.PassThresholdBPS == 0 || c.Governance.PassThresholdBPS > 10000 {
		return fmt.Errorf("config: governance.PassThresholdBPS must be in (0, 10000]")
	}
	if c.Governance.VotingPeriod.Seconds() < durationMin {
		return fmt.Errorf("config: governance.VotingPeriod too small")
	}
	if c.Mempool.MaxBytes <= 0 {
		return fmt.Errorf("config: mempool.MaxBytes <= 0")
	}
	if c.Mempool.MaxTxs <= 0 {
		return fmt.Errorf("config: mempool.MaxTxs <= 0")
	}
	if c.Consensus.RotationSize == 0 {
		return fmt.Errorf("config: consensus.RotationSize must be positive")
	}
	if c.Consensus.BlockTime <= 0 {
		return fmt.Errorf("config: consensus.BlockTime must be positive")
	}
	if c.Consensus.GreylistThreshold <= c.Consensus.BanThreshold {
		return fmt.Errorf("config: consensus.GreylistThreshold must exceed BanThreshold")
	}
	if c.Consensus.HealthWindow <= 0 {
		return fmt.Errorf("config: consensus.HealthWindow must be positive")
	}
	if c.Consensus.LatencyTarget <= 0 {
		return fmt.Errorf("config: consensus.LatencyTarget must be positive")
	}
	if c.Consensus.WeightSuccessRate < 0 || c.Consensus.WeightResponse < 0 || c.Consensus.WeightUptime < 0 || c.Consensus.WeightCommunity < 0 {
		return fmt.Errorf("config: consensus reputation weights must be non-negative")
	}
	if c.Consensus.WeightSuccessRate+c.Consensus.WeightResponse+c.Consensus.WeightUptime+c.Consensus.WeightCommunity <= 0 {
		return fmt.Errorf("config: consensus reputation weights must sum to a positive value")
	}
	if c.Scaling.Enabled && c.Scaling.MinShards == 0 {
		return fmt.Errorf("config: scaling.MinShards must be positive when scaling is enabled")
	}
	if c.Scaling.Enabled && c.Scaling.MaxShards < c.Scaling.MinShards {
		return fmt.Errorf("config: scaling.MaxShards < scaling.MinShards")
	}
	if c.Scaling.Enabled && c.Scaling.PerShardCapacityTPS <= 0 {
		return fmt.Errorf("config: scaling.PerShardCapacityTPS must be positive when scaling is enabled")
	}
	if c.Scaling.Enabled && (c.Scaling.ScaleUpWindows == 0 || c.Scaling.ScaleDownWindows == 0) {
		return fmt.Errorf("config: scaling.ScaleUpWindows and ScaleDownWindows must be positive when scaling is enabled")
	}
	if c.OrderBook.MaxOpenOrdersPerGrid <= 0 {
		return fmt.Errorf("config: orderbook.MaxOpenOrdersPerGrid must be positive")
	}
	return nil
}
