package fsm

import (
	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	The real state-transition function is an external collaborator of the
	consensus core. Executor is the deterministic stand-in the node wires by
	default: the post-state root is a hash chain over the parent root and the
	merkle commitment of the transaction batch. It preserves the property the
	core relies on: identical inputs produce identical roots on every node.
*/

var _ lib.StateExecutor = &Executor{}

type Executor struct{}

// NewExecutor() returns the default deterministic state executor
func NewExecutor() *Executor { return &Executor{} }

// Apply() folds the transaction batch into the parent state root
func (e *Executor) Apply(parentRoot []byte, txs [][]byte) ([]byte, lib.ErrorI) {
	if len(parentRoot) != crypto.HashSize {
		return nil, lib.ErrWrongLengthHash()
	}
	payload := make([]byte, 0, crypto.HashSize*2)
	payload = append(payload, parentRoot...)
	payload = append(payload, crypto.MerkleRoot(txs)...)
	return crypto.Hash(payload), nil
}
