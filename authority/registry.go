// Package authority is the Authority Registry & Governance component
// (C9): it exclusively owns the authority set and governance proposals
// (spec.md §3 "Ownership"), and is the only component that may transition
// an authority's health status or apply a passed proposal's effect.
// Grounded on the teacher's p2p.ReputationManager (EWMA decay, ban/grey
// threshold transitions), generalized from a generic peer score to the
// weighted multi-factor reputation formula of spec.md §4.9, and on
// native/governance's proposal/vote/tally lifecycle, generalized from
// deposit-gated param-change proposals to authority-set mutation votes.
package authority

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"energychain/core/types"
	"energychain/crypto"
	"energychain/storage"
)

// Weights bundles the reputation subfactor weights and health thresholds
// that spec.md §4.8/§4.9 say "come from config".
type Weights struct {
	Success    float64
	Response   float64
	Uptime     float64
	Community  float64
	LatencyCap int64 // τ_latency, in milliseconds
	Healthy    int64 // τ, in seconds: liveness window
	Theta      float64
	Greylist   float64
	Ban        float64
	Decay      float64 // EWMA smoothing factor for each subfactor update
}

// Registry owns every Authority record: the active validator set plus
// its reputation/health bookkeeping.
type Registry struct {
	mu      sync.Mutex
	store   *storage.KvStore
	weights Weights
}

// NewRegistry wraps store as the Authority Registry's persistence layer.
func NewRegistry(store *storage.KvStore, weights Weights) *Registry {
	return &Registry{store: store, weights: weights}
}

func (r *Registry) load(addr crypto.Address) (types.Authority, error) {
	raw, err := r.store.Get(storage.NamespaceAuthorities, addr.String())
	if err != nil {
		return types.Authority{}, err
	}
	var a types.Authority
	if err := json.Unmarshal(raw, &a); err != nil {
		return types.Authority{}, fmt.Errorf("authority: decode %s: %w", addr, err)
	}
	return a, nil
}

func (r *Registry) save(a types.Authority) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("authority: encode %s: %w", a.Address, err)
	}
	return r.store.Put(storage.NamespaceAuthorities, a.Address.String(), raw)
}

// Get returns a single authority's record.
func (r *Registry) Get(addr crypto.Address) (types.Authority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(addr)
}

// Put persists a, used by genesis seeding and by governance execution
// (AddAuthority/RemoveAuthority).
func (r *Registry) Put(a types.Authority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(a)
}

// ListActive returns every authority currently Active, ordered
// deterministically by address, matching the round-robin schedule's
// iteration order (spec.md §4.8 "active authority list A ordered
// deterministically by address").
func (r *Registry) ListActive() ([]types.Authority, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows, err := r.store.Scan(storage.NamespaceAuthorities)
	if err != nil {
		return nil, err
	}
	out := make([]types.Authority, 0, len(rows))
	for _, kv := range rows {
		var a types.Authority
		if err := json.Unmarshal(kv.Value, &a); err != nil {
			return nil, fmt.Errorf("authority: decode %q: %w", kv.Key, err)
		}
		if a.Status == types.AuthorityActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.String() < out[j].Address.String() })
	return out, nil
}

// MarkSeen records a liveness signal for addr at the given unix timestamp,
// feeding the uptime subfactor.
func (r *Registry) MarkSeen(addr crypto.Address, now int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.load(addr)
	if err != nil {
		return err
	}
	a.LastSeenAt = now
	a.UptimeEWMA = ewma(a.UptimeEWMA, 1.0, r.weights.Decay)
	r.recompute(&a)
	return r.save(a)
}

// RecordBlockSuccess updates addr's reputation after it proposed a valid
// block at height with the given round-trip latency in milliseconds.
func (r *Registry) RecordBlockSuccess(addr crypto.Address, height uint64, now int64, latencyMillis int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.load(addr)
	if err != nil {
		return err
	}
	a.TotalProposed++
	a.MissedInARow = 0
	a.LastSeenAt = now
	a.SuccessRateEWMA = ewma(a.SuccessRateEWMA, 1.0, r.weights.Decay)
	responseScore := 1.0
	if r.weights.LatencyCap > 0 {
		responseScore = 1.0 - min1(float64(latencyMillis)/float64(r.weights.LatencyCap))
	}
	a.ResponseScoreEWMA = ewma(a.ResponseScoreEWMA, responseScore, r.weights.Decay)
	a.UptimeEWMA = ewma(a.UptimeEWMA, 1.0, r.weights.Decay)
	r.recompute(&a)
	r.transition(&a)
	return r.save(a)
}

// RecordBlockMiss penalizes addr for failing to produce an expected
// block at height (spec.md §4.8 "ProposerAbsent... Repeated misses
// degrade reputation").
func (r *Registry) RecordBlockMiss(addr crypto.Address, height uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, err := r.load(addr)
	if err != nil {
		return err
	}
	a.TotalMissed++
	a.MissedInARow++
	a.SuccessRateEWMA = ewma(a.SuccessRateEWMA, 0.0, r.weights.Decay)
	a.UptimeEWMA = ewma(a.UptimeEWMA, 0.0, r.weights.Decay)
	r.recompute(&a)
	r.transition(&a)
	return r.save(a)
}

// recompute applies spec.md §4.9's weighted formula:
// reputation ← clamp(w_s·success_rate + w_r·response_score + w_u·uptime + w_c·community, 0, 1).
func (r *Registry) recompute(a *types.Authority) {
	w := r.weights
	rep := w.Success*a.SuccessRateEWMA + w.Response*a.ResponseScoreEWMA + w.Uptime*a.UptimeEWMA + w.Community*a.Community
	a.Reputation = clamp01(rep)
}

// transition applies the greylist/ban status machine against the freshly
// recomputed reputation (spec.md §4.6/§4.8).
func (r *Registry) transition(a *types.Authority) {
	if a.Status == types.AuthorityBanned {
		return
	}
	switch {
	case a.Reputation < r.weights.Ban:
		a.Status = types.AuthorityBanned
	case a.Reputation < r.weights.Greylist:
		a.Status = types.AuthorityGreylisted
	default:
		if a.Status != types.AuthorityBanned {
			a.Status = types.AuthorityActive
		}
	}
}

// Healthy reports whether addr satisfies spec.md §4.8's health predicate
// as of now.
func (r *Registry) Healthy(addr crypto.Address, now int64) (bool, error) {
	a, err := r.Get(addr)
	if err != nil {
		return false, err
	}
	return a.Healthy(now, r.weights.Theta, r.weights.Healthy), nil
}

func ewma(current, sample, decay float64) float64 {
	if decay <= 0 || decay >= 1 {
		decay = 0.8
	}
	return decay*current + (1-decay)*sample
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
