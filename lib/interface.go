package lib

/*
	Collaborator contracts. Transport, pool internals and state execution are
	external to the consensus core; these interfaces are the whole surface the
	core depends on.
*/

// TxPool supplies ready transactions to authorship and removes the ones
// included in imported blocks. Implementations must not block callers beyond
// a bounded fetch; authorship additionally guards the call with its own
// timeout.
type TxPool interface {
	// Ready() returns up to 'limit' transactions in pool priority order; the
	// call is finite and reusable
	Ready(limit int) [][]byte
	// Remove() deletes transactions from the pool by their raw bytes
	Remove(txs [][]byte)
}

// Gossip disseminates authored blocks and finality votes. Delivery is
// at-least-once and unordered; the import queue and vote recording tolerate
// duplicates.
type Gossip interface {
	BroadcastBlock(block *Block)
	BroadcastVote(vote *Vote)
}

// StateExecutor replays a transaction batch on top of a parent state root and
// returns the resulting root. It must be fully deterministic given identical
// inputs; authorship and import both call it and must agree.
type StateExecutor interface {
	Apply(parentRoot []byte, txs [][]byte) ([]byte, ErrorI)
}

// NoopGossip discards all broadcasts; used when the node runs without a
// transport layer attached.
type NoopGossip struct{}

func (NoopGossip) BroadcastBlock(*Block) {}
func (NoopGossip) BroadcastVote(*Vote)   {}
