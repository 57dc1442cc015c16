package authority

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/core/types"
	"energychain/crypto"
	"energychain/storage"
)

func newGovernanceHarness(t *testing.T, numAuthorities int) (*Governance, *Registry, *storage.KvStore, []crypto.Address) {
	t.Helper()
	store := storage.NewKvStore(storage.NewMemDB())
	reg := NewRegistry(store, testWeights())
	addrs := make([]crypto.Address, 0, numAuthorities)
	for i := 0; i < numAuthorities; i++ {
		_, pub, err := crypto.GenerateKeypair()
		require.NoError(t, err)
		require.NoError(t, reg.Put(types.NewAuthority(pub.Address(), pub.Bytes(), 0)))
		addrs = append(addrs, pub.Address())
	}
	gov := NewGovernance(store, reg, GovernanceParams{QuorumBPS: 5000, PassThresholdBPS: 6667, VotingWindow: 100})
	return gov, reg, store, addrs
}

func submitEnvelopeFor(t *testing.T, kind types.ProposalKind, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	env, err := json.Marshal(submitEnvelope{Kind: kind, Data: raw})
	require.NoError(t, err)
	return env
}

func TestGovernanceSubmitVoteAndPassAddsAuthority(t *testing.T) {
	gov, reg, store, addrs := newGovernanceHarness(t, 3)
	_, newPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	envelope := submitEnvelopeFor(t, types.ProposalAddAuthority, struct {
		Address crypto.Address `json:"address"`
		PubKey  []byte         `json:"pubKey"`
	}{Address: newPub.Address(), PubKey: newPub.Bytes()})

	batch := store.NewBatch()
	require.NoError(t, gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p1", Action: types.GovSubmit, Payload: envelope,
	}, 1))
	require.NoError(t, store.Commit(batch))

	for _, voter := range addrs {
		batch = store.NewBatch()
		require.NoError(t, gov.StageApply(batch, voter, types.GovernancePayload{
			ProposalID: "p1", Action: types.GovVote, Choice: types.VoteYes,
		}, 2))
		require.NoError(t, store.Commit(batch))
	}

	batch = store.NewBatch()
	require.NoError(t, gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p1", Action: types.GovExecute,
	}, 3))
	require.NoError(t, store.Commit(batch))

	proposal, err := gov.Get("p1")
	require.NoError(t, err)
	require.Equal(t, types.ProposalExecuted, proposal.Status)

	added, err := reg.Get(newPub.Address())
	require.NoError(t, err)
	require.Equal(t, types.AuthorityActive, added.Status)
}

func TestGovernanceRejectsSecondVoteFromSameAuthority(t *testing.T) {
	gov, _, store, addrs := newGovernanceHarness(t, 3)
	envelope := submitEnvelopeFor(t, types.ProposalRotationSize, struct {
		Size uint32 `json:"size"`
	}{Size: 5})

	batch := store.NewBatch()
	require.NoError(t, gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p2", Action: types.GovSubmit, Payload: envelope,
	}, 1))
	require.NoError(t, store.Commit(batch))

	batch = store.NewBatch()
	require.NoError(t, gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p2", Action: types.GovVote, Choice: types.VoteYes,
	}, 2))
	require.NoError(t, store.Commit(batch))

	batch = store.NewBatch()
	err := gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p2", Action: types.GovVote, Choice: types.VoteNo,
	}, 3)
	require.Error(t, err)
}

func TestGovernanceRejectsExecuteBeforeQuorumOrDeadline(t *testing.T) {
	gov, _, store, addrs := newGovernanceHarness(t, 5)
	envelope := submitEnvelopeFor(t, types.ProposalRotationSize, struct {
		Size uint32 `json:"size"`
	}{Size: 5})

	batch := store.NewBatch()
	require.NoError(t, gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p3", Action: types.GovSubmit, Payload: envelope,
	}, 1))
	require.NoError(t, store.Commit(batch))

	batch = store.NewBatch()
	require.NoError(t, gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p3", Action: types.GovVote, Choice: types.VoteYes,
	}, 2))
	require.NoError(t, store.Commit(batch))

	batch = store.NewBatch()
	err := gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p3", Action: types.GovExecute,
	}, 3)
	require.Error(t, err, "quorum of 1/5 voters is below the 50% QuorumBPS and the deadline has not passed")
}

func TestGovernanceRejectsVoteFromNonAuthority(t *testing.T) {
	gov, _, store, addrs := newGovernanceHarness(t, 2)
	_, outsider, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	envelope := submitEnvelopeFor(t, types.ProposalRotationSize, struct {
		Size uint32 `json:"size"`
	}{Size: 5})
	batch := store.NewBatch()
	require.NoError(t, gov.StageApply(batch, addrs[0], types.GovernancePayload{
		ProposalID: "p4", Action: types.GovSubmit, Payload: envelope,
	}, 1))
	require.NoError(t, store.Commit(batch))

	batch = store.NewBatch()
	err = gov.StageApply(batch, outsider.Address(), types.GovernancePayload{
		ProposalID: "p4", Action: types.GovVote, Choice: types.VoteYes,
	}, 2)
	require.Error(t, err)
}
