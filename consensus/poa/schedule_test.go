package poa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/core/types"
	"energychain/crypto"
)

func testAuthority(t *testing.T, healthy bool, now int64) types.Authority {
	t.Helper()
	_, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	a := types.NewAuthority(pub.Address(), pub.Bytes(), 0)
	a.Reputation = 0.9
	if healthy {
		a.LastSeenAt = now
	} else {
		a.LastSeenAt = now - 1000
	}
	return a
}

func sortedAuthorities(t *testing.T, now int64, healthy ...bool) []types.Authority {
	t.Helper()
	out := make([]types.Authority, len(healthy))
	for i, h := range healthy {
		out[i] = testAuthority(t, h, now)
	}
	return out
}

func TestExpectedRoundRobinsOverActiveSet(t *testing.T) {
	now := int64(1000)
	active := sortedAuthorities(t, now, true, true, true)

	for h := uint64(0); h < 6; h++ {
		a, skips, err := Expected(h, active, now, 0.5, 30)
		require.NoError(t, err)
		require.Equal(t, uint32(0), skips)
		require.Equal(t, active[int(h)%len(active)].Address, a.Address)
	}
}

func TestExpectedSkipsUnhealthyAuthority(t *testing.T) {
	now := int64(1000)
	active := sortedAuthorities(t, now, true, false, true)

	a, skips, err := Expected(1, active, now, 0.5, 30)
	require.NoError(t, err)
	require.Equal(t, uint32(1), skips)
	require.Equal(t, active[2].Address, a.Address)
}

func TestExpectedErrorsWhenNoAuthorityHealthy(t *testing.T) {
	now := int64(1000)
	active := sortedAuthorities(t, now, false, false)

	_, _, err := Expected(0, active, now, 0.5, 30)
	require.Error(t, err)
}

func TestExpectedErrorsOnEmptyActiveSet(t *testing.T) {
	_, _, err := Expected(0, nil, 0, 0.5, 30)
	require.Error(t, err)
}
