package node

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"energychain/config"
	"energychain/consensus/poa"
	"energychain/core/events"
	"energychain/core/genesis"
	"energychain/core/types"
	"energychain/crypto"
	"energychain/p2p"
	"energychain/scaling"
	"energychain/storage"
)

// recordingBroadcaster captures every message broadcast through it, so
// tests can assert on gossip fan-out without standing up a real
// transport.
type recordingBroadcaster struct {
	sent []*p2p.Message
}

func (b *recordingBroadcaster) Broadcast(msg *p2p.Message) error {
	b.sent = append(b.sent, msg)
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Mempool.MaxTxs = 10
	cfg.Mempool.MaxBytes = 1 << 20
	cfg.Consensus.RotationSize = 1
	cfg.Consensus.BlockTime = time.Second
	return cfg
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func writeGenesisFile(t *testing.T, pub *crypto.PublicKey, alloc map[crypto.Address]uint64) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")

	allocEntries := ""
	i := 0
	for addr, amount := range alloc {
		if i > 0 {
			allocEntries += ","
		}
		allocEntries += `"` + addr.String() + `": ` + itoa(amount)
		i++
	}
	content := `{
		"chainId": "energychain-test",
		"genesisTime": "2026-01-01T00:00:00Z",
		"rotationSize": 1,
		"authorities": [{"address": "` + pub.Address().String() + `", "pubKey": "` + hex.EncodeToString(pub.Bytes()) + `"}],
		"alloc": {` + allocEntries + `}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNodeTickProposesAndAcceptBlockAppliesOnAPeer(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, destPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	path := writeGenesisFile(t, pub, map[crypto.Address]uint64{pub.Address(): 1000})
	spec, err := genesis.Load(path)
	require.NoError(t, err)

	proposer := New(testConfig(), storage.NewKvStore(storage.NewMemDB()), priv, events.NoopSink{}, nil)
	_, err = proposer.Genesis(spec)
	require.NoError(t, err)

	// A non-proposing observer of the same genesis: nil key, so Tick is a
	// no-op, but it can still validate and accept a block it receives.
	peer := New(testConfig(), storage.NewKvStore(storage.NewMemDB()), nil, events.NoopSink{}, nil)
	_, err = peer.Genesis(spec)
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	noop, err := peer.Tick(now)
	require.NoError(t, err)
	require.Nil(t, noop, "a node with no signing key must not propose")

	tx := &types.Transaction{Nonce: 0, Type: types.TxTransfer, Transfer: &types.TransferPayload{To: destPub.Address(), Amount: 250}}
	require.NoError(t, tx.Sign(priv))
	require.NoError(t, proposer.SubmitTransaction(tx, 128))

	block, err := proposer.Tick(now)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.Equal(t, uint64(1), block.Header.Height)
	require.Len(t, block.Transactions, 1)

	require.NoError(t, peer.AcceptBlock(block, now))

	height, hash, err := peer.Tip()
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)

	proposerHeight, proposerHash, err := proposer.Tip()
	require.NoError(t, err)
	require.Equal(t, proposerHeight, height)
	require.Equal(t, proposerHash, hash)
}

func TestNodeEvaluateScalingDelegatesToCoordinator(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	path := writeGenesisFile(t, pub, nil)
	spec, err := genesis.Load(path)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Scaling.ScaleUpWindows = 1
	cfg.Scaling.MinShards = 1
	cfg.Scaling.MaxShards = 4
	n := New(cfg, storage.NewKvStore(storage.NewMemDB()), priv, events.NoopSink{}, nil)
	_, err = n.Genesis(spec)
	require.NoError(t, err)

	now := time.Unix(2000, 0)
	decision := n.EvaluateScaling(scaling.Sample{TPS: 1000}, now)
	require.Equal(t, scaling.ScaleUp, decision)
}

func TestNodeObserveSyncTracksGapAgainstLocalTip(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	path := writeGenesisFile(t, pub, nil)
	spec, err := genesis.Load(path)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Consensus.RotationSize = 1
	cfg.Consensus.BlockTime = time.Second
	n := New(cfg, storage.NewKvStore(storage.NewMemDB()), priv, events.NoopSink{}, nil)
	_, err = n.Genesis(spec)
	require.NoError(t, err)

	localHeight, _, err := n.Tip()
	require.NoError(t, err)

	// Far ahead of the local tip: stays Syncing no matter how long observed.
	state, err := n.ObserveSync(localHeight+100, time.Unix(3000, 0))
	require.NoError(t, err)
	require.Equal(t, poa.Syncing, state)

	// Gap closes to within Threshold: still Syncing until the Stable window
	// elapses, then Live.
	state, err = n.ObserveSync(localHeight, time.Unix(3001, 0))
	require.NoError(t, err)
	require.Equal(t, poa.Syncing, state)

	state, err = n.ObserveSync(localHeight, time.Unix(3003, 0))
	require.NoError(t, err)
	require.Equal(t, poa.Live, state)
}

func TestNodeSubmitTransactionBroadcastsToPeers(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, destPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	path := writeGenesisFile(t, pub, map[crypto.Address]uint64{pub.Address(): 1000})
	spec, err := genesis.Load(path)
	require.NoError(t, err)

	peers := &recordingBroadcaster{}
	n := New(testConfig(), storage.NewKvStore(storage.NewMemDB()), priv, events.NoopSink{}, peers)
	_, err = n.Genesis(spec)
	require.NoError(t, err)

	tx := &types.Transaction{Nonce: 0, Type: types.TxTransfer, Transfer: &types.TransferPayload{To: destPub.Address(), Amount: 10}}
	require.NoError(t, tx.Sign(priv))
	require.NoError(t, n.SubmitTransaction(tx, 128))

	require.Len(t, peers.sent, 1)
	require.Equal(t, p2p.MsgTypeTx, peers.sent[0].Type)
}

func TestNodeHandleMessageAdmitsGossipedTransaction(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	_, destPub, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	path := writeGenesisFile(t, pub, map[crypto.Address]uint64{pub.Address(): 1000})
	spec, err := genesis.Load(path)
	require.NoError(t, err)

	n := New(testConfig(), storage.NewKvStore(storage.NewMemDB()), priv, events.NoopSink{}, nil)
	_, err = n.Genesis(spec)
	require.NoError(t, err)

	tx := &types.Transaction{Nonce: 0, Type: types.TxTransfer, Transfer: &types.TransferPayload{To: destPub.Address(), Amount: 10}}
	require.NoError(t, tx.Sign(priv))
	msg, err := p2p.NewTxMessage(tx)
	require.NoError(t, err)

	require.NoError(t, n.HandleMessage("peer-a", msg, time.Unix(4000, 0)))

	block, err := n.Tick(time.Unix(4000, 0))
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1, "the gossiped transaction must have reached the mempool")
}

func TestNodeHandleMessageRejectsMalformedPayloadAndPenalizesPeer(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	path := writeGenesisFile(t, pub, nil)
	spec, err := genesis.Load(path)
	require.NoError(t, err)

	n := New(testConfig(), storage.NewKvStore(storage.NewMemDB()), priv, events.NoopSink{}, nil)
	_, err = n.Genesis(spec)
	require.NoError(t, err)

	now := time.Unix(5000, 0)
	err = n.HandleMessage("peer-b", &p2p.Message{Type: p2p.MsgTypeTx, Payload: []byte("not json")}, now)
	require.ErrorIs(t, err, p2p.ErrInvalidPayload)

	status := n.Reputation.Score("peer-b", now)
	require.Negative(t, status)
}

func TestNodeHandleMessageGetBlocksRespondsWithRequestedRange(t *testing.T) {
	priv, pub, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	path := writeGenesisFile(t, pub, nil)
	spec, err := genesis.Load(path)
	require.NoError(t, err)

	peers := &recordingBroadcaster{}
	n := New(testConfig(), storage.NewKvStore(storage.NewMemDB()), priv, events.NoopSink{}, peers)
	_, err = n.Genesis(spec)
	require.NoError(t, err)

	req, err := p2p.NewGetBlocksMessage(0, 0)
	require.NoError(t, err)
	require.NoError(t, n.HandleMessage("peer-c", req, time.Unix(6000, 0)))

	require.Len(t, peers.sent, 1)
	require.Equal(t, p2p.MsgTypeBlocks, peers.sent[0].Type)

	// An inverted range is malformed, not a valid empty request.
	bad, err := p2p.NewGetBlocksMessage(5, 1)
	require.NoError(t, err)
	err = n.HandleMessage("peer-c", bad, time.Unix(6000, 0))
	require.ErrorIs(t, err, p2p.ErrInvalidPayload)
}
