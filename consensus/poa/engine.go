package poa

import (
	"fmt"

	"energychain/authority"
	cerrors "energychain/core/errors"
	"energychain/core/events"
	"energychain/core/types"
)

// Engine wraps the Authority Registry with the round-robin schedule and
// header validation pipeline of spec.md §4.8. It owns no persistent state
// of its own: every health/reputation fact it reads and writes lives in
// the registry.
type Engine struct {
	registry *authority.Registry
	theta    float64
	tau      int64
	sink     events.Sink
}

// NewEngine constructs a POA engine against registry, using theta as the
// minimum healthy reputation and tau (seconds) as the liveness window
// (spec.md §4.8's θ and τ, sourced from config.Consensus).
func NewEngine(registry *authority.Registry, theta float64, tau int64, sink events.Sink) *Engine {
	if sink == nil {
		sink = events.NoopSink{}
	}
	return &Engine{registry: registry, theta: theta, tau: tau, sink: sink}
}

// Expected returns the authority expected to propose targetHeight as of
// now, and how many unhealthy authorities the schedule skipped to reach
// it.
func (e *Engine) Expected(targetHeight uint64, now int64) (types.Authority, uint32, error) {
	active, err := e.registry.ListActive()
	if err != nil {
		return types.Authority{}, 0, err
	}
	return Expected(targetHeight, active, now, e.theta, e.tau)
}

// ValidateHeader checks a received block header against the schedule:
// the claimed proposer and recorded skip count must match what Expected
// independently recomputes for the header's height and timestamp, and the
// header's signature must verify against that proposer's public key
// (spec.md §8 "proposer-turn" testable property: block.proposer ==
// expected_authority(height, active_set_at_h-1, recorded_skips)).
func (e *Engine) ValidateHeader(header types.BlockHeader, now int64) error {
	expected, skips, err := e.Expected(header.Height, now)
	if err != nil {
		return cerrors.Wrap(cerrors.ConsensusFault, "no eligible proposer for height", err)
	}
	if header.Proposer != expected.Address {
		return cerrors.New(cerrors.ConsensusFault, fmt.Sprintf("unexpected proposer for height %d: want %s, got %s", header.Height, expected.Address, header.Proposer))
	}
	if header.Skips != skips {
		return cerrors.New(cerrors.ConsensusFault, fmt.Sprintf("skip count mismatch at height %d: want %d, got %d", header.Height, skips, header.Skips))
	}
	pub, err := expected.PubKey()
	if err != nil {
		return cerrors.Wrap(cerrors.ConsensusFault, "decode proposer public key", err)
	}
	msg, err := header.SigningBytes()
	if err != nil {
		return cerrors.Wrap(cerrors.Validation, "encode header for verification", err)
	}
	if !pub.Verify(msg, header.Signature) {
		return cerrors.New(cerrors.ConsensusFault, "invalid block signature")
	}
	return nil
}

// RecordMiss penalizes the authority expected at height for failing to
// produce a block before its proposal window elapsed (spec.md §4.8
// "ProposerAbsent... repeated misses degrade reputation via the Authority
// Registry"), and emits AuthorityMissed. The node orchestrator's tick loop
// calls this when a proposal deadline passes with no committed block.
func (e *Engine) RecordMiss(addr types.Authority, height uint64, now int64) error {
	if err := e.registry.RecordBlockMiss(addr.Address, height); err != nil {
		return err
	}
	e.sink.Emit(events.New(events.KindAuthorityMissed, unixTime(now), map[string]string{
		"authority": addr.Address.String(),
		"height":    fmt.Sprintf("%d", height),
	}))
	return nil
}
