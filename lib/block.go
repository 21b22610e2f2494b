package lib

import (
	"bytes"

	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	Block and BlockHeader are the foundational units of the chain. A block is
	immutable once constructed and its identity is the hash of the
	deterministic encoding of its header.
*/

// BlockHeader commits to the parent, the declared post-state, the slot and the
// author's election win. Secondary marks a fallback (weighted round-robin)
// authorship slot rather than a primary election win.
type BlockHeader struct {
	ParentHash    []byte `json:"parentHash"`
	Height        uint64 `json:"height"`
	Slot          uint64 `json:"slot"`
	Epoch         uint64 `json:"epoch"`
	StateRoot     []byte `json:"stateRoot"`
	TxRoot        []byte `json:"txRoot"`
	ProposerKey   []byte `json:"proposerKey"`
	ElectionProof []byte `json:"electionProof"`
	Secondary     bool   `json:"secondary"`
	Signature     []byte `json:"signature"`
}

// Block is a header plus an ordered sequence of opaque transactions
type Block struct {
	Header       *BlockHeader `json:"header"`
	Transactions [][]byte     `json:"transactions"`
}

// Check() validates the well-formedness of a non-genesis header
func (h *BlockHeader) Check() ErrorI {
	if h == nil {
		return ErrNilBlockHeader()
	}
	if len(h.ParentHash) != crypto.HashSize || len(h.StateRoot) != crypto.HashSize || len(h.TxRoot) != crypto.HashSize {
		return ErrWrongLengthHash()
	}
	if h.Height == 0 {
		return ErrWrongHeight(1, 0)
	}
	if len(h.ProposerKey) == 0 {
		return ErrEmptyProposerKey()
	}
	if len(h.ElectionProof) == 0 {
		return ErrEmptyElectionProof()
	}
	if len(h.Signature) == 0 {
		return ErrEmptyHeaderSignature()
	}
	return nil
}

// Hash() returns the content hash of the header, the identity of the block
func (h *BlockHeader) Hash() ([]byte, ErrorI) {
	bz, err := Marshal(h)
	if err != nil {
		return nil, err
	}
	return crypto.Hash(bz), nil
}

// SignBytes() returns the canonical payload the proposer signs: the header
// with the signature field zeroed
func (h *BlockHeader) SignBytes() ([]byte, ErrorI) {
	unsigned := *h
	unsigned.Signature = nil
	return Marshal(&unsigned)
}

// Check() validates the block: header well-formedness plus a transaction root
// that matches the body
func (b *Block) Check() ErrorI {
	if b == nil {
		return ErrNilBlock()
	}
	if err := b.Header.Check(); err != nil {
		return err
	}
	if !bytes.Equal(b.Header.TxRoot, crypto.MerkleRoot(b.Transactions)) {
		return ErrInvalidTxRoot()
	}
	return nil
}

// Hash() returns the identity of the block
func (b *Block) Hash() ([]byte, ErrorI) {
	if b == nil {
		return nil, ErrNilBlock()
	}
	return b.Header.Hash()
}

// Equals() compares two blocks by identity
func (b *Block) Equals(other *Block) bool {
	if b == nil || other == nil {
		return false
	}
	h1, err := b.Hash()
	if err != nil {
		return false
	}
	h2, err := other.Hash()
	if err != nil {
		return false
	}
	return bytes.Equal(h1, h2)
}
