package finality

import (
	"bytes"

	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	A voteSet is the append-only tally for one stage of one round. Votes are
	never overwritten: the first vote per validator stands, an identical
	re-delivery is a no-op and a conflicting second vote is surfaced as an
	equivocation while the tally keeps the first. Per target, signatures are
	folded into a BLS aggregation mask as they arrive, so a finality proof is
	ready the moment a target reaches quorum.
*/

// targetTally accumulates the weight and aggregable signatures behind one
// exact block hash
type targetTally struct {
	blockHash []byte
	height    uint64
	power     uint64
	multiKey  crypto.MultiPublicKeyI
}

// voteSet tallies one (round, kind) stage against a frozen validator set
type voteSet struct {
	round      uint64
	kind       lib.VoteKind
	validators *lib.ValidatorSet
	byVoter    map[string]*lib.Vote    // voter hex -> first accepted vote
	byTarget   map[string]*targetTally // block hash hex -> tally
}

func newVoteSet(round uint64, kind lib.VoteKind, validators *lib.ValidatorSet) *voteSet {
	return &voteSet{
		round:      round,
		kind:       kind,
		validators: validators,
		byVoter:    make(map[string]*lib.Vote),
		byTarget:   make(map[string]*targetTally),
	}
}

// add() records a verified vote. A duplicate is a no-op; a conflicting vote
// from the same voter returns the first vote as equivocation evidence and
// leaves the tally untouched.
func (s *voteSet) add(vote *lib.Vote, entry *lib.ValidatorEntry) (equivocation *lib.Vote, err lib.ErrorI) {
	voterKey := lib.BytesToString(vote.VoterKey)
	if prior, found := s.byVoter[voterKey]; found {
		if bytes.Equal(prior.BlockHash, vote.BlockHash) {
			return nil, nil
		}
		return prior, nil
	}
	targetKey := lib.BytesToString(vote.BlockHash)
	tally, found := s.byTarget[targetKey]
	if !found {
		tally = &targetTally{
			blockHash: vote.BlockHash,
			height:    vote.Height,
			multiKey:  s.validators.MultiKey.Copy(),
		}
		s.byTarget[targetKey] = tally
	}
	if e := tally.multiKey.AddSigner(vote.Signature, entry.Index); e != nil {
		return nil, lib.ErrUnableToAddSigner(e)
	}
	s.byVoter[voterKey] = vote
	tally.power += entry.VotingPower
	return nil, nil
}

// voted() reports whether the validator already voted in this stage
func (s *voteSet) voted(voterKey []byte) bool {
	_, found := s.byVoter[lib.BytesToString(voterKey)]
	return found
}

// ghost() resolves the stage's agreed target: the highest block whose branch
// carries supermajority weight, where a vote for a block also counts for every
// ancestor of that block. Ties at the same height break on the lexicographic
// hash so every node resolves the identical target.
func (s *voteSet) ghost(isDescendant func(ancestor, hash []byte) bool) (blockHash []byte, height uint64, ok bool) {
	for _, candidate := range s.byTarget {
		weight := uint64(0)
		for _, t := range s.byTarget {
			if isDescendant(candidate.blockHash, t.blockHash) {
				weight += t.power
			}
		}
		if weight < s.validators.MinimumMaj23 {
			continue
		}
		if !ok || candidate.height > height ||
			(candidate.height == height && bytes.Compare(candidate.blockHash, blockHash) < 0) {
			blockHash, height, ok = candidate.blockHash, candidate.height, true
		}
	}
	return
}

// quorumProof() builds the finality proof for a target holding supermajority
// weight in direct votes, or reports that no target does
func (s *voteSet) quorumProof() (*lib.FinalityProof, lib.ErrorI) {
	for _, tally := range s.byTarget {
		if tally.power < s.validators.MinimumMaj23 {
			continue
		}
		signature, err := tally.multiKey.AggregateSignatures()
		if err != nil {
			return nil, lib.ErrAggregateSignature(err)
		}
		return &lib.FinalityProof{
			Round:     s.round,
			BlockHash: tally.blockHash,
			Height:    tally.height,
			Signature: signature,
			Bitmap:    tally.multiKey.Bitmap(),
		}, nil
	}
	return nil, lib.ErrNoQuorum()
}
