package types

import "energychain/crypto"

// AuthorityStatus reflects the health-gating state machine applied to a
// round-robin slot (spec.md §4.6 "Authority health").
type AuthorityStatus string

const (
	AuthorityActive    AuthorityStatus = "active"
	AuthorityGreylisted AuthorityStatus = "greylisted"
	AuthorityBanned    AuthorityStatus = "banned"
)

// Authority is a member of the permissioned validator set: one entry per
// signing identity; the deterministic round-robin schedule orders the
// active set by Address.
type Authority struct {
	Address        crypto.Address  `json:"address"`
	PublicKey      []byte          `json:"publicKey"`
	JoinedAtHeight uint64          `json:"joinedAtHeight"`
	Reputation     float64         `json:"reputation"`
	Status         AuthorityStatus `json:"status"`
	MissedInARow   uint32          `json:"missedInARow"`
	TotalProposed  uint64          `json:"totalProposed"`
	TotalMissed    uint64          `json:"totalMissed"`

	// LastSeenAt is the unix timestamp of the most recent signal received
	// from this authority (a proposed block or an explicit liveness
	// mark), used by the POA health check `(now - last_seen) < τ`
	// (spec.md §4.8).
	LastSeenAt int64 `json:"lastSeenAt"`

	// Subfactor EWMAs feeding the weighted reputation formula of spec.md
	// §4.9. SuccessRateEWMA and UptimeEWMA start at 1 (benefit of the
	// doubt for a freshly joined authority); ResponseScoreEWMA starts at
	// 1 (no latency observed yet); Community is governance-set and
	// defaults to neutral.
	SuccessRateEWMA   float64 `json:"successRateEwma"`
	ResponseScoreEWMA float64 `json:"responseScoreEwma"`
	UptimeEWMA        float64 `json:"uptimeEwma"`
	Community         float64 `json:"community"`
}

// NewAuthority constructs an active authority entry with neutral
// reputation (spec.md §4.6: reputation starts at 1.0 and decays/recovers
// via EWMA).
func NewAuthority(addr crypto.Address, pub []byte, joinedAt uint64) Authority {
	return Authority{
		Address:           addr,
		PublicKey:         append([]byte(nil), pub...),
		JoinedAtHeight:    joinedAt,
		Reputation:        1.0,
		Status:            AuthorityActive,
		SuccessRateEWMA:   1.0,
		ResponseScoreEWMA: 1.0,
		UptimeEWMA:        1.0,
		Community:         1.0,
	}
}

// PubKey reconstructs the typed public key from the stored bytes.
func (a Authority) PubKey() (*crypto.PublicKey, error) {
	return crypto.PublicKeyFromBytes(a.PublicKey)
}

// Eligible reports whether the authority may be selected as proposer this
// round: banned authorities never propose, greylisted ones are skipped by
// the round-robin schedule until they recover (spec.md §4.6).
func (a Authority) Eligible() bool {
	return a.Status == AuthorityActive
}

// Healthy implements spec.md §4.8's `active ∧ reputation ≥ θ ∧ (now −
// last_seen) < τ`.
func (a Authority) Healthy(now int64, theta float64, tau int64) bool {
	return a.Eligible() && a.Reputation >= theta && (now-a.LastSeenAt) < tau
}
