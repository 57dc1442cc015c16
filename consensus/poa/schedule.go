// Package poa is the Proof-of-Authority consensus engine (C8): the
// deterministic round-robin proposer schedule with skip-to-next-healthy
// fallback, and the header-level validation spec.md §4.8 requires of every
// received block ("the document's declared core of this specification").
// The teacher's consensus/bft package modeled the equivalent slot as a
// prevote/precommit quorum round over a channel-driven state machine; POA
// replaces that multi-round voting with a single deterministic signer per
// height, so only bft's round/now-driven shape survives here, not its
// message types.
package poa

import (
	"fmt"

	"energychain/core/types"
)

// Expected computes spec.md §4.8's round-robin schedule for targetHeight:
// the base candidate is active[targetHeight % len(active)]; if it is not
// healthy, the schedule walks forward to active[(targetHeight+k) %
// len(active)] for the smallest k >= 1 pointing to a healthy authority,
// returning k as the recorded skip count. active must already be ordered
// deterministically by address (authority.Registry.ListActive's
// contract) or the schedule is not reproducible across nodes.
func Expected(targetHeight uint64, active []types.Authority, now int64, theta float64, tau int64) (types.Authority, uint32, error) {
	n := len(active)
	if n == 0 {
		return types.Authority{}, 0, fmt.Errorf("poa: no active authorities")
	}
	base := int(targetHeight % uint64(n))
	for k := 0; k < n; k++ {
		idx := (base + k) % n
		cand := active[idx]
		if cand.Healthy(now, theta, tau) {
			return cand, uint32(k), nil
		}
	}
	return types.Authority{}, 0, fmt.Errorf("poa: no healthy authority in the active set")
}
