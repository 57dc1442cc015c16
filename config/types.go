package config

import "time"

// Consensus controls the POA round-robin schedule (spec.md §4.3/§4.6) and
// the reputation weighting used by the Authority Registry (spec.md §4.9).
type Consensus struct {
	BlockTime         time.Duration `toml:"BlockTime"`
	ProposalTimeout   time.Duration `toml:"ProposalTimeout"`
	RotationSize      uint32        `toml:"RotationSize"`
	SkipThreshold     uint32        `toml:"SkipThreshold"`
	GreylistThreshold float64       `toml:"GreylistThreshold"`
	BanThreshold      float64       `toml:"BanThreshold"`
	ReputationDecay   float64       `toml:"ReputationDecay"`

	// HealthWindow is τ: an authority not seen within this window of now
	// is unhealthy regardless of reputation.
	HealthWindow time.Duration `toml:"HealthWindow"`
	// LatencyTarget is τ_latency, the response-time baseline the
	// response_score subfactor is normalized against.
	LatencyTarget time.Duration `toml:"LatencyTarget"`

	// Reputation subfactor weights (spec.md §4.9); need not sum to 1 but
	// conventionally do.
	WeightSuccessRate  float64 `toml:"WeightSuccessRate"`
	WeightResponse     float64 `toml:"WeightResponse"`
	WeightUptime       float64 `toml:"WeightUptime"`
	WeightCommunity    float64 `toml:"WeightCommunity"`
}

// Governance controls proposal/vote/tally policy (spec.md §4.9).
type Governance struct {
	QuorumBPS        uint32        `toml:"QuorumBPS"`
	PassThresholdBPS uint32        `toml:"PassThresholdBPS"`
	VotingPeriod     time.Duration `toml:"VotingPeriod"`
}

// Mempool controls transaction admission and eviction (spec.md §4.2).
type Mempool struct {
	MaxBytes      int64 `toml:"MaxBytes"`
	MaxTxs        int   `toml:"MaxTxs"`
	MaxPerAccount int   `toml:"MaxPerAccount"`
}

// OrderBook controls per-grid-location matching (spec.md §5).
type OrderBook struct {
	MaxOpenOrdersPerGrid int           `toml:"MaxOpenOrdersPerGrid"`
	DefaultExpiry        time.Duration `toml:"DefaultExpiry"`
}

// Scaling controls the adaptive shard-count advisory loop (spec.md §4.10).
// The coordinator samples every EvaluationWindow and compares observed TPS
// against PerShardCapacityTPS*shards: scale up at the 0.8 fraction
// sustained for ScaleUpWindows ticks, scale down at the 0.4 fraction
// sustained for ScaleDownWindows ticks, never firing an opposite event
// within CooldownWindows ticks of the last one.
type Scaling struct {
	Enabled             bool          `toml:"Enabled"`
	MinShards           uint32        `toml:"MinShards"`
	MaxShards           uint32        `toml:"MaxShards"`
	EvaluationWindow    time.Duration `toml:"EvaluationWindow"`
	PerShardCapacityTPS float64       `toml:"PerShardCapacityTPS"`
	ScaleUpWindows      uint32        `toml:"ScaleUpWindows"`
	ScaleDownWindows    uint32        `toml:"ScaleDownWindows"`
	CooldownWindows     uint32        `toml:"CooldownWindows"`
}

// Network controls the abstract peer-link boundary (spec.md §4.7).
type Network struct {
	ListenAddress  string   `toml:"ListenAddress"`
	BootstrapPeers []string `toml:"BootstrapPeers"`
	MaxPeers       int      `toml:"MaxPeers"`
}

// Storage controls the KvStore backend (spec.md §4.1 persistence).
type Storage struct {
	DataDir string `toml:"DataDir"`
}

// Keystore controls where and how the node's authority signing key is
// held (spec.md §4.1, adapted from the teacher's ValidatorKey handling).
type Keystore struct {
	Path       string `toml:"Path"`
	Passphrase string `toml:"Passphrase"`
}

// Config is the complete runtime configuration for an energychain node,
// loaded from a single TOML file (grounded on the teacher's config.Load).
type Config struct {
	ChainID    string     `toml:"ChainID"`
	Consensus  Consensus  `toml:"Consensus"`
	Governance Governance `toml:"Governance"`
	Mempool    Mempool    `toml:"Mempool"`
	OrderBook  OrderBook  `toml:"OrderBook"`
	Scaling    Scaling    `toml:"Scaling"`
	Network    Network    `toml:"Network"`
	Storage    Storage    `toml:"Storage"`
	Keystore   Keystore   `toml:"Keystore"`
}

// Default returns a Config populated with the node's out-of-the-box
// defaults, used by Load when no config file exists yet.
func Default() Config {
	return Config{
		ChainID: "energychain-devnet",
		Consensus: Consensus{
			BlockTime:         2 * time.Second,
			ProposalTimeout:   6 * time.Second,
			RotationSize:      4,
			SkipThreshold:      3,
			GreylistThreshold: 0.5,
			BanThreshold:      0.1,
			ReputationDecay:   0.9,
			HealthWindow:      30 * time.Second,
			LatencyTarget:     500 * time.Millisecond,
			WeightSuccessRate: 0.5,
			WeightResponse:    0.2,
			WeightUptime:      0.2,
			WeightCommunity:   0.1,
		},
		Governance: Governance{
			QuorumBPS:        3334,
			PassThresholdBPS: 6667,
			VotingPeriod:     24 * time.Hour,
		},
		Mempool: Mempool{
			MaxBytes:      32 << 20,
			MaxTxs:        10000,
			MaxPerAccount: 64,
		},
		OrderBook: OrderBook{
			MaxOpenOrdersPerGrid: 5000,
			DefaultExpiry:        1 * time.Hour,
		},
		Scaling: Scaling{
			Enabled:             true,
			MinShards:           1,
			MaxShards:           16,
			EvaluationWindow:    1 * time.Second,
			PerShardCapacityTPS: 250,
			ScaleUpWindows:      5,
			ScaleDownWindows:    10,
			CooldownWindows:     15,
		},
		Network: Network{
			ListenAddress:  ":6501",
			BootstrapPeers: []string{},
			MaxPeers:       64,
		},
		Storage: Storage{
			DataDir: "./energychain-data",
		},
		Keystore: Keystore{
			Path: "./energychain-data/keystore.json",
		},
	}
}
