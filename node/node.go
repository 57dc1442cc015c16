// Package node is the Node Orchestrator (C11): the composition root that
// wires storage, ledger, order book, authority registry/governance, chain
// manager, POA engine, mempool, and the scaling coordinator together, and
// drives the block-time tick loop (spec.md §4.11). It is deliberately thin
// ("not a locus of complex logic", spec.md §4.11): every dependency is
// constructed elsewhere and passed in explicitly (spec.md §9 "no
// process-wide singletons, pass handles down explicitly"), grounded on
// the teacher's now-removed consensus/bft.NodeInterface boundary — the
// concept of a narrow read/control surface the orchestrator exposes to
// its transport layer survives even though BFT's message-driven
// implementation does not, per spec.md §4.11's explicit grounding note.
package node

import (
	"encoding/json"
	"log/slog"
	"time"

	"energychain/authority"
	"energychain/chain"
	"energychain/config"
	"energychain/consensus/poa"
	"energychain/core/events"
	"energychain/core/genesis"
	"energychain/core/state"
	"energychain/core/types"
	"energychain/crypto"
	"energychain/mempool"
	"energychain/observability/logging"
	"energychain/orderbook"
	"energychain/p2p"
	"energychain/scaling"
	"energychain/storage"
)

// peerReputationConfig mirrors the thresholds the teacher's p2p package
// ships test coverage for (p2p/reputation_test.go): a peer greylists at
// -10, bans at -20, decaying back over 10 minutes.
var peerReputationConfig = p2p.ReputationConfig{
	GreyScore:        10,
	BanScore:         20,
	GreylistDuration: 2 * time.Minute,
	BanDuration:      15 * time.Minute,
	DecayHalfLife:    10 * time.Minute,
}

// Node wires every component of energychain together for a single
// running process.
type Node struct {
	cfg config.Config
	log *slog.Logger

	Store      *storage.KvStore
	State      *state.State
	OrderBook  *orderbook.Manager
	Registry   *authority.Registry
	Governance *authority.Governance
	Mempool    *mempool.Pool
	Consensus  *poa.Engine
	Chain      *chain.Manager
	Scaling    *scaling.Coordinator
	Sync       *poa.SyncTracker

	// Peers is the node's outbound gossip surface (spec.md §6): nil for a
	// standalone node (e.g. under test), wired to a real transport by
	// whatever dials/accepts connections. HandleMessage is the matching
	// inbound side, dispatching spec.md §6's Hello/Tx/Block/GetBlocks/Ping
	// wire messages, and Reputation scores the peer each message came from
	// (grounded on the teacher's p2p.ReputationManager).
	Peers      p2p.Broadcaster
	Reputation *p2p.ReputationManager

	key *crypto.PrivateKey
}

// New assembles a Node from cfg, a KvStore already opened against
// cfg.Storage.DataDir, and this node's authority signing key (nil if this
// node is a non-proposing observer). sink receives every Observable Event
// the wired components emit (spec.md §6); pass events.NoopSink{} if
// nothing consumes them yet.
func New(cfg config.Config, store *storage.KvStore, key *crypto.PrivateKey, sink events.Sink, peers p2p.Broadcaster) *Node {
	if sink == nil {
		sink = events.NoopSink{}
	}
	logger := logging.Setup(cfg.ChainID, "")

	st := state.New(store)
	ob := orderbook.NewManager(store)
	registry := authority.NewRegistry(store, authority.Weights{
		Success:    cfg.Consensus.WeightSuccessRate,
		Response:   cfg.Consensus.WeightResponse,
		Uptime:     cfg.Consensus.WeightUptime,
		Community:  cfg.Consensus.WeightCommunity,
		LatencyCap: cfg.Consensus.LatencyTarget.Milliseconds(),
		Healthy:    int64(cfg.Consensus.HealthWindow.Seconds()),
		Theta:      cfg.Consensus.BanThreshold,
		Greylist:   cfg.Consensus.GreylistThreshold,
		Ban:        cfg.Consensus.BanThreshold,
		Decay:      cfg.Consensus.ReputationDecay,
	})
	gov := authority.NewGovernance(store, registry, authority.GovernanceParams{
		QuorumBPS:        cfg.Governance.QuorumBPS,
		PassThresholdBPS: cfg.Governance.PassThresholdBPS,
		VotingWindow:     uint64(cfg.Governance.VotingPeriod / cfg.Consensus.BlockTime),
	})
	pool := mempool.New(cfg.Mempool.MaxTxs, cfg.Mempool.MaxBytes, cfg.Mempool.MaxPerAccount)
	consensus := poa.NewEngine(registry, cfg.Consensus.BanThreshold, int64(cfg.Consensus.HealthWindow.Seconds()), sink)
	chainMgr := chain.New(store, st, ob, gov, registry, consensus, pool, sink)
	scaler := scaling.NewCoordinator(cfg.Scaling, sink)

	return &Node{
		cfg:        cfg,
		log:        logger,
		Store:      store,
		State:      st,
		OrderBook:  ob,
		Registry:   registry,
		Governance: gov,
		Mempool:    pool,
		Consensus:  consensus,
		Chain:      chainMgr,
		Scaling:    scaler,
		Sync:       poa.NewSyncTracker(uint64(cfg.Consensus.RotationSize), int64(cfg.Consensus.BlockTime.Seconds())*int64(cfg.Consensus.RotationSize)),
		Peers:      peers,
		Reputation: p2p.NewReputationManager(peerReputationConfig),
		key:        key,
	}
}

// Genesis initializes a brand-new chain from spec, delegating to the
// Chain Manager.
func (n *Node) Genesis(spec *genesis.Spec) (*types.Block, error) {
	return n.Chain.Genesis(spec)
}

// Tick runs one block-time cycle (spec.md §4.11): if this node's key
// holds the proposer slot for tip+1, it composes and commits a new block;
// otherwise it is a no-op for this tick (the node simply validates
// whatever block the actual proposer broadcasts, via AcceptBlock).
func (n *Node) Tick(now time.Time) (*types.Block, error) {
	if n.key == nil {
		return nil, nil
	}
	tip, _, err := n.Chain.Tip()
	if err != nil {
		return nil, err
	}
	expected, _, err := n.Consensus.Expected(tip+1, now.Unix())
	if err != nil {
		return nil, err
	}
	if expected.Address != n.key.PubKey().Address() {
		return nil, nil
	}
	block, err := n.Chain.Propose(now.Unix(), n.key, n.cfg.Mempool.MaxTxs, n.cfg.Mempool.MaxBytes)
	if err != nil {
		return nil, err
	}
	n.log.Info("proposed block", slog.Uint64("height", block.Header.Height), slog.Int("txs", len(block.Transactions)))
	n.broadcastBlock(block)
	return block, nil
}

// AcceptBlock validates and appends a block received from a peer, then
// relays it onward so gossip reaches the rest of the network.
func (n *Node) AcceptBlock(block *types.Block, now time.Time) error {
	if err := n.Chain.Append(block, now.Unix()); err != nil {
		n.log.Warn("rejected block", slog.Uint64("height", block.Header.Height), slog.String("error", err.Error()))
		return err
	}
	n.log.Info("accepted block", slog.Uint64("height", block.Header.Height), slog.Int("txs", len(block.Transactions)))
	n.broadcastBlock(block)
	return nil
}

func (n *Node) broadcastBlock(block *types.Block) {
	if n.Peers == nil {
		return
	}
	msg, err := p2p.NewBlockMessage(block)
	if err != nil {
		n.log.Warn("encode block for gossip", slog.String("error", err.Error()))
		return
	}
	if err := n.Peers.Broadcast(msg); err != nil {
		n.log.Warn("broadcast block", slog.String("error", err.Error()))
	}
}

// SubmitTransaction admits a transaction into the mempool for future
// block inclusion and gossips it to peers.
func (n *Node) SubmitTransaction(tx *types.Transaction, wireSize int) error {
	if err := n.Mempool.Admit(tx, wireSize); err != nil {
		return err
	}
	if n.Peers != nil {
		msg, err := p2p.NewTxMessage(tx)
		if err != nil {
			n.log.Warn("encode transaction for gossip", slog.String("error", err.Error()))
		} else if err := n.Peers.Broadcast(msg); err != nil {
			n.log.Warn("broadcast transaction", slog.String("error", err.Error()))
		}
	}
	return nil
}

// HandleMessage dispatches one inbound wire message from peerID (spec.md
// §6: Hello/Tx/Block/GetBlocks/Ping), scoring the originating peer via
// Reputation the way the teacher's gossip layer does: malformed payloads
// and invalid blocks are penalized, useful messages are rewarded.
func (n *Node) HandleMessage(peerID string, msg *p2p.Message, now time.Time) error {
	switch msg.Type {
	case p2p.MsgTypeHello:
		n.Reputation.MarkHeartbeat(peerID, now)
		return nil

	case p2p.MsgTypePing:
		n.Reputation.MarkHeartbeat(peerID, now)
		if n.Peers == nil {
			return nil
		}
		return n.Peers.Broadcast(p2p.NewPongMessage())

	case p2p.MsgTypeTx:
		var tx types.Transaction
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			n.Reputation.PenalizeMalformed(peerID, now, false)
			return p2p.ErrInvalidPayload
		}
		if err := n.Mempool.Admit(&tx, len(msg.Payload)); err != nil {
			n.Reputation.PenalizeSpam(peerID, now, false)
			return err
		}
		n.Reputation.MarkUseful(peerID, now)
		return nil

	case p2p.MsgTypeBlock:
		var block types.Block
		if err := json.Unmarshal(msg.Payload, &block); err != nil {
			n.Reputation.PenalizeMalformed(peerID, now, false)
			return p2p.ErrInvalidPayload
		}
		if err := n.Chain.Append(&block, now.Unix()); err != nil {
			n.Reputation.PenalizeInvalidBlock(peerID, now, false)
			return err
		}
		n.Reputation.MarkUseful(peerID, now)
		return nil

	case p2p.MsgTypeGetBlocks:
		var req p2p.GetBlocksPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			n.Reputation.PenalizeMalformed(peerID, now, false)
			return p2p.ErrInvalidPayload
		}
		if req.To < req.From {
			n.Reputation.PenalizeMalformed(peerID, now, false)
			return p2p.ErrInvalidPayload
		}
		blocks := make([]types.Block, 0, req.To-req.From+1)
		for h := req.From; h <= req.To; h++ {
			block, err := n.Chain.GetBlock(h)
			if err != nil {
				break
			}
			blocks = append(blocks, *block)
		}
		n.Reputation.MarkUseful(peerID, now)
		if n.Peers == nil {
			return nil
		}
		resp, err := p2p.NewBlocksMessage(blocks)
		if err != nil {
			return err
		}
		return n.Peers.Broadcast(resp)

	default:
		n.Reputation.PenalizeMalformed(peerID, now, false)
		return p2p.ErrInvalidPayload
	}
}

// Tip exposes the chain's current head (read-only accessor, spec.md
// §4.11).
func (n *Node) Tip() (uint64, crypto.Hash, error) {
	return n.Chain.Tip()
}

// EvaluateScaling feeds one tick's load sample into the Scaling
// Coordinator.
func (n *Node) EvaluateScaling(sample scaling.Sample, now time.Time) scaling.Decision {
	return n.Scaling.Evaluate(sample, now)
}

// ObserveSync feeds a (local, peer) tip-height sample into the
// Syncing/Live tracker and returns the resulting state.
func (n *Node) ObserveSync(peerHeight uint64, now time.Time) (poa.SyncState, error) {
	localHeight, _, err := n.Chain.Tip()
	if err != nil {
		return poa.Syncing, err
	}
	return n.Sync.Observe(localHeight, peerHeight, now.Unix()), nil
}
