package types

import "energychain/crypto"

// ProposalStatus tracks a governance proposal through its lifecycle
// (spec.md §3 "GovernanceProposal" / §4.9).
type ProposalStatus string

const (
	ProposalVoting   ProposalStatus = "voting"
	ProposalPassed   ProposalStatus = "passed"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExecuted ProposalStatus = "executed"
	ProposalExpired  ProposalStatus = "expired"
)

// ProposalKind tags what a passed proposal actually changes once executed.
type ProposalKind string

const (
	ProposalAddAuthority    ProposalKind = "add_authority"
	ProposalRemoveAuthority ProposalKind = "remove_authority"
	ProposalRotationSize    ProposalKind = "rotation_size"
	ProposalParameterChange ProposalKind = "parameter_change"
)

// GovernanceProposal is a single proposal moving through submit/vote/tally
// (spec.md §4.9). Votes is keyed by voter address; callers that need a
// deterministic iteration order should use SortedVoters.
type GovernanceProposal struct {
	ID            string                        `json:"id"`
	Kind          ProposalKind                  `json:"kind"`
	Proposer      crypto.Address                `json:"proposer"`
	Payload       []byte                        `json:"payload"`
	SubmittedAt   uint64                        `json:"submittedAt"`
	VotingEndsAt  uint64                        `json:"votingEndsAt"`
	Status        ProposalStatus                `json:"status"`
	Votes         map[crypto.Address]VoteChoice `json:"votes"`
}

// NewProposal starts a fresh proposal in the Voting status.
func NewProposal(id string, kind ProposalKind, proposer crypto.Address, payload []byte, submittedAt, votingEndsAt uint64) GovernanceProposal {
	return GovernanceProposal{
		ID:           id,
		Kind:         kind,
		Proposer:     proposer,
		Payload:      payload,
		SubmittedAt:  submittedAt,
		VotingEndsAt: votingEndsAt,
		Status:       ProposalVoting,
		Votes:        map[crypto.Address]VoteChoice{},
	}
}

// Tally is the vote count summary used to decide pass/reject at the
// voting deadline.
type Tally struct {
	Yes     int
	No      int
	Abstain int
}

// Tally counts the proposal's recorded votes.
func (p GovernanceProposal) Tally() Tally {
	var t Tally
	for _, choice := range p.Votes {
		switch choice {
		case VoteYes:
			t.Yes++
		case VoteNo:
			t.No++
		case VoteAbstain:
			t.Abstain++
		}
	}
	return t
}

// Passed reports whether yes votes meet or exceed alphaBPS/10000 of
// totalActiveAuthorities (spec.md §4.9: "Passes when
// yes_fraction_of_active_authorities ≥ α, default 2/3").
func (t Tally) Passed(totalActiveAuthorities int, alphaBPS uint32) bool {
	if totalActiveAuthorities <= 0 {
		return false
	}
	return uint64(t.Yes)*10000 >= uint64(totalActiveAuthorities)*uint64(alphaBPS)
}

// SortedVoters returns the proposal's voter addresses in a deterministic
// order, used anywhere votes must be replayed or hashed reproducibly.
func (p GovernanceProposal) SortedVoters() []crypto.Address {
	out := make([]crypto.Address, 0, len(p.Votes))
	for addr := range p.Votes {
		out = append(out, addr)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].String() < out[j-1].String(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
