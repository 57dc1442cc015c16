package p2p

import (
	"encoding/json"

	"energychain/core/types"
)

// Message type tags for the wire protocol of spec.md §6: Hello,
// GetBlocks{from,to}, Blocks{[Block]}, Tx{Transaction}, Ping/Pong.
const (
	MsgTypeHello     byte = 0x01
	MsgTypeTx        byte = 0x02
	MsgTypeBlock     byte = 0x03
	MsgTypeGetBlocks byte = 0x04
	MsgTypeBlocks    byte = 0x05
	MsgTypePing      byte = 0x06
	MsgTypePong      byte = 0x07
)

// HelloPayload is exchanged on connection: chain identity plus the
// sender's current tip, so peers can decide who needs to sync from whom.
type HelloPayload struct {
	ChainID     string `json:"chainId"`
	TipHeight   uint64 `json:"tipHeight"`
	TipHash     string `json:"tipHash"`
	ClientLabel string `json:"clientLabel"`
}

// GetBlocksPayload requests the inclusive block range [From, To].
type GetBlocksPayload struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// BlocksPayload carries the blocks returned in response to GetBlocks.
type BlocksPayload struct {
	Blocks []types.Block `json:"blocks"`
}

// NewTxMessage wraps a single transaction for gossip.
func NewTxMessage(tx *types.Transaction) (*Message, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeTx, Payload: payload}, nil
}

// NewBlockMessage wraps a single freshly appended block for gossip.
func NewBlockMessage(b *types.Block) (*Message, error) {
	payload, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeBlock, Payload: payload}, nil
}

// NewHelloMessage wraps a Hello handshake payload.
func NewHelloMessage(h HelloPayload) (*Message, error) {
	payload, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeHello, Payload: payload}, nil
}

// NewGetBlocksMessage requests blocks [from, to] from a peer.
func NewGetBlocksMessage(from, to uint64) (*Message, error) {
	payload, err := json.Marshal(GetBlocksPayload{From: from, To: to})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeGetBlocks, Payload: payload}, nil
}

// NewBlocksMessage responds to GetBlocks with a batch of blocks.
func NewBlocksMessage(blocks []types.Block) (*Message, error) {
	payload, err := json.Marshal(BlocksPayload{Blocks: blocks})
	if err != nil {
		return nil, err
	}
	return &Message{Type: MsgTypeBlocks, Payload: payload}, nil
}

// NewPingMessage/NewPongMessage carry no payload; they exist purely as
// liveness probes. The node counts an inbound Ping as a peer heartbeat.
func NewPingMessage() *Message { return &Message{Type: MsgTypePing} }
func NewPongMessage() *Message { return &Message{Type: MsgTypePong} }
