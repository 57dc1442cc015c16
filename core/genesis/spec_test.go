package genesis

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"energychain/crypto"
)

func writeGenesisFile(t *testing.T, authAddr crypto.Address, pub []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	content := `{
		"chainId": "energychain-test",
		"genesisTime": "2026-01-01T00:00:00Z",
		"rotationSize": 4,
		"authorities": [{"address": "` + authAddr.String() + `", "pubKey": "` + hex.EncodeToString(pub) + `"}],
		"alloc": {"` + authAddr.String() + `": 1000}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValidatesAndResolvesAuthorities(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	path := writeGenesisFile(t, pub.Address(), pub.Bytes())

	spec, err := Load(path)
	require.NoError(t, err)
	require.Len(t, spec.ResolvedAuthorities(), 1)
	require.Equal(t, pub.Address(), spec.ResolvedAuthorities()[0].Address)
}

func TestLoadRejectsMismatchedAddressAndPubKey(t *testing.T) {
	_, pub1, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, pub2, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	path := writeGenesisFile(t, pub1.Address(), pub2.Bytes())

	_, err = Load(path)
	require.Error(t, err)
}

func TestBuildProducesGenesisBlockAndFundedAuthority(t *testing.T) {
	_, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	path := writeGenesisFile(t, pub.Address(), pub.Bytes())

	spec, err := Load(path)
	require.NoError(t, err)
	result, err := Build(spec)
	require.NoError(t, err)

	require.Equal(t, uint64(0), result.Block.Header.Height)
	require.Len(t, result.Authorities, 1)
	require.Len(t, result.Accounts, 1)
	require.Equal(t, uint64(1000), result.Accounts[0].Balance)
}
