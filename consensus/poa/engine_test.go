package poa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/authority"
	"energychain/core/events"
	"energychain/core/types"
	"energychain/crypto"
	"energychain/storage"
)

func testWeights() authority.Weights {
	return authority.Weights{
		Success:    0.5,
		Response:   0.2,
		Uptime:     0.2,
		Community:  0.1,
		LatencyCap: 500,
		Healthy:    30,
		Theta:      0.5,
		Greylist:   0.5,
		Ban:        0.1,
		Decay:      0.5,
	}
}

func newTestRegistry(t *testing.T, n int, now int64) (*authority.Registry, []*crypto.PrivateKey, []crypto.Address) {
	t.Helper()
	store := storage.NewKvStore(storage.NewMemDB())
	reg := authority.NewRegistry(store, testWeights())
	privs := make([]*crypto.PrivateKey, n)
	addrs := make([]crypto.Address, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeypair()
		require.NoError(t, err)
		a := types.NewAuthority(pub.Address(), pub.Bytes(), 0)
		a.LastSeenAt = now
		require.NoError(t, reg.Put(a))
		privs[i] = priv
		addrs[i] = pub.Address()
	}
	return reg, privs, addrs
}

func TestEngineValidateHeaderAcceptsExpectedProposer(t *testing.T) {
	now := int64(1000)
	reg, privs, _ := newTestRegistry(t, 3, now)
	engine := NewEngine(reg, 0.5, 30, events.NoopSink{})

	active, err := reg.ListActive()
	require.NoError(t, err)
	expected, skips, err := engine.Expected(1, now)
	require.NoError(t, err)
	require.Equal(t, uint32(0), skips)

	var signerPriv *crypto.PrivateKey
	for _, a := range active {
		for _, p := range privs {
			if a.Address == expected.Address && p.PubKey().Address() == a.Address {
				signerPriv = p
			}
		}
	}
	require.NotNil(t, signerPriv)

	header := types.BlockHeader{Height: 1, Proposer: expected.Address, Skips: 0}
	msg, err := header.SigningBytes()
	require.NoError(t, err)
	header.Signature = signerPriv.Sign(msg)

	require.NoError(t, engine.ValidateHeader(header, now))
}

func TestEngineValidateHeaderRejectsWrongProposer(t *testing.T) {
	now := int64(1000)
	reg, privs, addrs := newTestRegistry(t, 3, now)
	engine := NewEngine(reg, 0.5, 30, events.NoopSink{})

	expected, _, err := engine.Expected(1, now)
	require.NoError(t, err)

	var impostor crypto.Address
	var impostorPriv *crypto.PrivateKey
	for i, addr := range addrs {
		if addr != expected.Address {
			impostor = addr
			impostorPriv = privs[i]
			break
		}
	}

	header := types.BlockHeader{Height: 1, Proposer: impostor, Skips: 0}
	msg, err := header.SigningBytes()
	require.NoError(t, err)
	header.Signature = impostorPriv.Sign(msg)

	require.Error(t, engine.ValidateHeader(header, now))
}

func TestEngineValidateHeaderRejectsBadSignature(t *testing.T) {
	now := int64(1000)
	reg, _, _ := newTestRegistry(t, 3, now)
	engine := NewEngine(reg, 0.5, 30, events.NoopSink{})

	expected, skips, err := engine.Expected(1, now)
	require.NoError(t, err)

	header := types.BlockHeader{Height: 1, Proposer: expected.Address, Skips: skips, Signature: []byte("not a signature")}
	require.Error(t, engine.ValidateHeader(header, now))
}

func TestEngineRecordMissPenalizesAuthority(t *testing.T) {
	now := int64(1000)
	reg, _, addrs := newTestRegistry(t, 1, now)
	engine := NewEngine(reg, 0.5, 30, events.NoopSink{})

	a, err := reg.Get(addrs[0])
	require.NoError(t, err)

	require.NoError(t, engine.RecordMiss(a, 1, now))

	updated, err := reg.Get(addrs[0])
	require.NoError(t, err)
	require.Equal(t, uint32(1), updated.MissedInARow)
}
