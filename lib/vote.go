package lib

import (
	"bytes"

	"github.com/Jakiepham/chain/lib/crypto"
)

// VoteKind distinguishes the two voting stages of a finality round
type VoteKind uint32

const (
	VoteKindPrevote   VoteKind = 1
	VoteKindPrecommit VoteKind = 2
)

// String() returns a human readable vote kind
func (k VoteKind) String() string {
	switch k {
	case VoteKindPrevote:
		return "prevote"
	case VoteKindPrecommit:
		return "precommit"
	default:
		return "unknown"
	}
}

// Vote is a validator's signed statement over a finality target. Votes are
// append-only; a round's outcome is derived from them, never stored
// destructively. The sign payload deliberately excludes the voter identity so
// that all votes for the same target carry signatures over identical bytes
// and aggregate into a single BLS signature.
type Vote struct {
	Round     uint64   `json:"round"`
	Kind      VoteKind `json:"kind"`
	BlockHash []byte   `json:"blockHash"`
	Height    uint64   `json:"height"`
	VoterKey  []byte   `json:"voterKey"`
	Signature []byte   `json:"signature"`
}

// voteSignPayload is the aggregable portion of a vote
type voteSignPayload struct {
	Round     uint64   `json:"round"`
	Kind      VoteKind `json:"kind"`
	BlockHash []byte   `json:"blockHash"`
	Height    uint64   `json:"height"`
}

// VoteSignBytes() returns the canonical sign payload for a finality target
func VoteSignBytes(round uint64, kind VoteKind, blockHash []byte, height uint64) ([]byte, ErrorI) {
	return Marshal(&voteSignPayload{Round: round, Kind: kind, BlockHash: blockHash, Height: height})
}

// Check() validates the well-formedness of a vote
func (v *Vote) Check() ErrorI {
	if v == nil {
		return ErrEmptyVote()
	}
	if v.Kind != VoteKindPrevote && v.Kind != VoteKindPrecommit {
		return ErrInvalidVoteKind()
	}
	if len(v.BlockHash) != crypto.HashSize {
		return ErrWrongLengthHash()
	}
	if len(v.VoterKey) == 0 || len(v.Signature) == 0 {
		return ErrEmptyVote()
	}
	return nil
}

// SignBytes() returns the payload this vote's signature covers
func (v *Vote) SignBytes() ([]byte, ErrorI) {
	return VoteSignBytes(v.Round, v.Kind, v.BlockHash, v.Height)
}

// Equals() compares two votes field by field
func (v *Vote) Equals(other *Vote) bool {
	if v == nil || other == nil {
		return false
	}
	return v.Round == other.Round && v.Kind == other.Kind &&
		bytes.Equal(v.BlockHash, other.BlockHash) && v.Height == other.Height &&
		bytes.Equal(v.VoterKey, other.VoterKey) && bytes.Equal(v.Signature, other.Signature)
}

// NewSignedVote() builds and signs a vote using the injected signing capability
func NewSignedVote(round uint64, kind VoteKind, blockHash []byte, height uint64, signer crypto.SignerI) (*Vote, ErrorI) {
	payload, err := VoteSignBytes(round, kind, blockHash, height)
	if err != nil {
		return nil, err
	}
	sig := signer.Sign(payload)
	if len(sig) == 0 {
		return nil, ErrSigningFailed()
	}
	return &Vote{
		Round:     round,
		Kind:      kind,
		BlockHash: blockHash,
		Height:    height,
		VoterKey:  signer.PublicKey().Bytes(),
		Signature: sig,
	}, nil
}

// FinalityProof is the aggregated precommit supermajority that makes a block
// irreversible: one BLS signature plus the bitmap of which validators signed
type FinalityProof struct {
	Round     uint64 `json:"round"`
	BlockHash []byte `json:"blockHash"`
	Height    uint64 `json:"height"`
	Signature []byte `json:"signature"`
	Bitmap    []byte `json:"bitmap"`
}

// Check() verifies the aggregate signature and that the signer subset carries
// supermajority weight in the given validator set
func (p *FinalityProof) Check(vs *ValidatorSet) ErrorI {
	if p == nil || len(p.Signature) == 0 || len(p.Bitmap) == 0 {
		return ErrNoQuorum()
	}
	key := vs.MultiKey.Copy()
	if err := key.SetBitmap(p.Bitmap); err != nil {
		return ErrUnableToAddSigner(err)
	}
	payload, err := VoteSignBytes(p.Round, VoteKindPrecommit, p.BlockHash, p.Height)
	if err != nil {
		return err
	}
	if !key.VerifyBytes(payload, p.Signature) {
		return ErrInvalidVoteSignature()
	}
	signedPower := uint64(0)
	for i, val := range vs.List {
		enabled, er := key.SignerEnabledAt(i)
		if er != nil {
			return ErrUnableToAddSigner(er)
		}
		if enabled {
			signedPower += val.VotingPower
		}
	}
	if signedPower < vs.MinimumMaj23 {
		return ErrNoQuorum()
	}
	return nil
}
