// Package scaling is the Scaling Coordinator (C10): an advisory-only
// shard-count control loop (spec.md §4.10). It never partitions state
// itself — it only observes load samples every tick and emits
// ScaleUp/ScaleDown/Steady events for an operator or a future sharding
// component to act on. The teacher has no direct analog to a shard-count
// advisor; this package is grounded on the teacher's general control-loop
// shape (a ticked Sample/Evaluate/Act cycle, as seen in
// consensus/bft.Engine's round timer) generalized from a quorum-round
// timer to a threshold-and-hysteresis load evaluator, and is otherwise a
// standalone addition scoped tightly to spec.md §4.10's literal formula.
package scaling

import (
	"fmt"
	"time"

	"energychain/config"
	"energychain/core/events"
)

// Sample is one tick's worth of load observations (spec.md §4.10: "TPS,
// mempool depth, CPU%, memory, block latency").
type Sample struct {
	TPS            float64
	MempoolDepth   int
	CPUPercent     float64
	MemoryPercent  float64
	BlockLatencyMS float64
}

// Decision is the advisory verdict for one tick.
type Decision string

const (
	ScaleUp   Decision = "scale_up"
	ScaleDown Decision = "scale_down"
	Steady    Decision = "steady"
)

// Coordinator runs the shard-count advisory loop of spec.md §4.10: scale
// up when TPS exceeds 0.8*per_shard_capacity*shards for ScaleUpWindows
// consecutive ticks, scale down below the 0.4 fraction for
// ScaleDownWindows ticks, with a CooldownWindows-tick hysteresis that
// forbids firing an opposite event too soon after the last one.
type Coordinator struct {
	cfg    config.Scaling
	sink   events.Sink
	shards uint32

	aboveStreak uint32
	belowStreak uint32

	lastEventTick int64
	ticksSinceLastEvent uint32
	haveFiredOnce       bool
	lastDecision        Decision
}

// NewCoordinator starts a Coordinator at cfg.MinShards shards.
func NewCoordinator(cfg config.Scaling, sink events.Sink) *Coordinator {
	if sink == nil {
		sink = events.NoopSink{}
	}
	shards := cfg.MinShards
	if shards == 0 {
		shards = 1
	}
	return &Coordinator{cfg: cfg, sink: sink, shards: shards}
}

// Shards returns the coordinator's current advisory shard count.
func (c *Coordinator) Shards() uint32 {
	return c.shards
}

// Evaluate records one tick's sample and returns the resulting decision,
// mutating the advisory shard count and emitting a ScalingEvent whenever
// it changes (spec.md §4.10).
func (c *Coordinator) Evaluate(sample Sample, now time.Time) Decision {
	if !c.cfg.Enabled {
		return Steady
	}
	c.ticksSinceLastEvent++

	capacity := c.cfg.PerShardCapacityTPS * float64(c.shards)
	upThreshold := 0.8 * capacity
	downThreshold := 0.4 * capacity

	if sample.TPS > upThreshold {
		c.aboveStreak++
	} else {
		c.aboveStreak = 0
	}
	if sample.TPS < downThreshold {
		c.belowStreak++
	} else {
		c.belowStreak = 0
	}

	inCooldown := func(d Decision) bool {
		return c.haveFiredOnce && c.lastDecision != d && c.ticksSinceLastEvent < c.cfg.CooldownWindows
	}

	switch {
	case c.aboveStreak >= c.cfg.ScaleUpWindows && c.shards < c.cfg.MaxShards && !inCooldown(ScaleUp):
		c.shards++
		c.aboveStreak, c.belowStreak = 0, 0
		c.fire(ScaleUp, sample, now)
		return ScaleUp
	case c.belowStreak >= c.cfg.ScaleDownWindows && c.shards > c.cfg.MinShards && !inCooldown(ScaleDown):
		c.shards--
		c.aboveStreak, c.belowStreak = 0, 0
		c.fire(ScaleDown, sample, now)
		return ScaleDown
	default:
		return Steady
	}
}

func (c *Coordinator) fire(d Decision, sample Sample, now time.Time) {
	c.haveFiredOnce = true
	c.lastDecision = d
	c.ticksSinceLastEvent = 0
	c.sink.Emit(events.New(events.KindScalingEvent, now, map[string]string{
		"decision": string(d),
		"shards":   fmt.Sprintf("%d", c.shards),
		"tps":      fmt.Sprintf("%.2f", sample.TPS),
	}))
}
