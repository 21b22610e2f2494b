package consensus

import (
	"bytes"
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	Leader election is a private, verifiable lottery. Each validator signs the
	epoch seed and slot number; the signature doubles as the election proof and
	its hash as the lottery draw. The draw wins when it lands below a threshold
	that scales with the validator's share of the total power, targeting the
	configured expected number of winners per slot. Because a slot may have
	zero primary winners, every slot also has exactly one fallback author,
	picked by a power-weighted rotation over the same seed, so the chain keeps
	extending through leaderless slots.
*/

const fallbackDomain = "fallback"

// fallback authors contribute a fixed minimal fork-choice weight so any
// branch with a primary win outweighs a same-length fallback branch
const fallbackAuthorWeight = 1

// LeaderSelector runs and verifies slot elections against the epoch directory
type LeaderSelector struct {
	directory *EpochDirectory
	config    lib.ConsensusConfig
	log       lib.LoggerI
}

// NewLeaderSelector() binds the lottery to an epoch directory
func NewLeaderSelector(directory *EpochDirectory, config lib.ConsensusConfig, log lib.LoggerI) *LeaderSelector {
	return &LeaderSelector{directory: directory, config: config, log: log}
}

// Elect() runs the lottery for one slot with the local key. A nil proof with a
// nil error means the node is simply not the leader for this slot.
func (s *LeaderSelector) Elect(signer crypto.SignerI, slot uint64) (proof []byte, secondary bool, err lib.ErrorI) {
	state, err := s.directory.StateFor(slot)
	if err != nil {
		return nil, false, err
	}
	publicKey := signer.PublicKey().Bytes()
	entry, err := state.Validators.GetValidator(publicKey)
	if err != nil {
		return nil, false, err
	}
	draw := signer.Sign(electionInput(state, slot))
	if len(draw) == 0 {
		return nil, false, lib.ErrSigningFailed()
	}
	if wins(draw, entry.VotingPower, state.Validators.TotalPower, s.config.ExpectedLeadersPerSlot) {
		return draw, false, nil
	}
	fallback, err := fallbackAuthor(state, slot)
	if err != nil {
		return nil, false, err
	}
	if bytes.Equal(fallback.PublicKey.Bytes(), publicKey) {
		return draw, true, nil
	}
	return nil, false, nil
}

// VerifyHeader() validates the election claim carried by a block header
func (s *LeaderSelector) VerifyHeader(header *lib.BlockHeader) lib.ErrorI {
	state, err := s.directory.StateFor(header.Slot)
	if err != nil {
		return err
	}
	if state.Number != header.Epoch {
		return lib.ErrInvalidProof()
	}
	entry, err := state.Validators.GetValidator(header.ProposerKey)
	if err != nil {
		return err
	}
	// the proof must be the proposer's signature over the slot's lottery input
	if !entry.PublicKey.VerifyBytes(electionInput(state, header.Slot), header.ElectionProof) {
		return lib.ErrInvalidProof()
	}
	if header.Secondary {
		fallback, err := fallbackAuthor(state, header.Slot)
		if err != nil {
			return err
		}
		if !fallback.PublicKey.Equals(entry.PublicKey) {
			return lib.ErrInvalidProof()
		}
		return nil
	}
	if !wins(header.ElectionProof, entry.VotingPower, state.Validators.TotalPower, s.config.ExpectedLeadersPerSlot) {
		return lib.ErrInvalidProof()
	}
	return nil
}

// AuthorWeight() prices the author's contribution to fork-choice: a primary
// win contributes the author's voting power, a fallback the minimal weight
func (s *LeaderSelector) AuthorWeight(header *lib.BlockHeader) (uint64, lib.ErrorI) {
	if header.Secondary {
		return fallbackAuthorWeight, nil
	}
	state, err := s.directory.StateFor(header.Slot)
	if err != nil {
		return 0, err
	}
	entry, err := state.Validators.GetValidator(header.ProposerKey)
	if err != nil {
		return 0, err
	}
	return entry.VotingPower, nil
}

// electionInput() is the lottery payload for a slot: the epoch seed bound to
// the slot number
func electionInput(state *EpochState, slot uint64) []byte {
	slotBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(slotBytes, slot)
	payload := make([]byte, 0, len(state.Seed)+8)
	payload = append(payload, state.Seed...)
	payload = append(payload, slotBytes...)
	return crypto.Hash(payload)
}

// wins() scores the draw against the power-proportional threshold. The model
// is one lottery ticket per unit of power, each winning independently with
// probability expected/totalPower; a validator wins the slot when at least
// one of its tickets wins, which keeps win probability proportional to stake
// without favoring power splitting.
func wins(draw []byte, power, totalPower, expectedLeaders uint64) bool {
	p := float64(expectedLeaders) / float64(totalPower)
	if p > 1 {
		p = 1
	}
	lottery := distuv.Binomial{N: float64(power), P: p}
	winProbability := 1 - lottery.CDF(0) // P(at least one ticket wins)
	score := binary.BigEndian.Uint64(crypto.Hash(draw)[:8])
	return float64(score)/float64(math.MaxUint64) < winProbability
}

// fallbackAuthor() picks the slot's guaranteed author: a deterministic,
// power-weighted rotation over the epoch seed
func fallbackAuthor(state *EpochState, slot uint64) (*lib.ValidatorEntry, lib.ErrorI) {
	slotBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(slotBytes, slot)
	payload := make([]byte, 0, len(state.Seed)+8+len(fallbackDomain))
	payload = append(payload, state.Seed...)
	payload = append(payload, slotBytes...)
	payload = append(payload, fallbackDomain...)
	ticket := binary.BigEndian.Uint64(crypto.Hash(payload)[:8]) % state.Validators.TotalPower
	cumulative := uint64(0)
	for i := range state.Validators.List {
		entry, err := state.Validators.GetValidatorAtIndex(i)
		if err != nil {
			return nil, err
		}
		cumulative += entry.VotingPower
		if ticket < cumulative {
			return entry, nil
		}
	}
	return nil, lib.ErrEmptyValidatorSet()
}
