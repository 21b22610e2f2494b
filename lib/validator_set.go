package lib

import (
	"github.com/drand/kyber"

	"github.com/Jakiepham/chain/lib/crypto"
)

// Validator is one member of an epoch's validator set: an identity and the
// election weight behind it
type Validator struct {
	PublicKey   []byte `json:"publicKey"`
	VotingPower uint64 `json:"votingPower"`
}

// ValidatorSet wraps an ordered validator list with the derived values the
// consensus core needs: a power lookup, the total weight, the supermajority
// threshold and an aggregable BLS multi-key over the fixed key order
type ValidatorSet struct {
	List          []*Validator
	MultiKey      crypto.MultiPublicKeyI
	PowerMap      map[string]ValidatorEntry // public_key hex -> entry
	TotalPower    uint64
	MinimumMaj23  uint64 // the smallest weight strictly exceeding two-thirds of the total
	NumValidators uint64
}

// ValidatorEntry is the parsed lookup form of a Validator
type ValidatorEntry struct {
	PublicKey   crypto.PublicKeyI
	VotingPower uint64
	Index       int
}

// NewValidatorSet() derives the working set from an ordered validator list
func NewValidatorSet(validators []*Validator) (*ValidatorSet, ErrorI) {
	if len(validators) == 0 {
		return nil, ErrEmptyValidatorSet()
	}
	totalPower := uint64(0)
	points, powerMap := make([]kyber.Point, 0, len(validators)), make(map[string]ValidatorEntry, len(validators))
	for i, v := range validators {
		point, err := crypto.NewBLSPointFromBytes(v.PublicKey)
		if err != nil {
			return nil, ErrPubKeyFromBytes(err)
		}
		points = append(points, point)
		powerMap[BytesToString(v.PublicKey)] = ValidatorEntry{
			PublicKey:   crypto.NewBLS12381PublicKey(point),
			VotingPower: v.VotingPower,
			Index:       i,
		}
		totalPower += v.VotingPower
	}
	if totalPower == 0 {
		return nil, ErrEmptyValidatorSet()
	}
	multiKey, err := crypto.NewMultiBLSFromPoints(points, nil)
	if err != nil {
		return nil, ErrNewMultiPubKey(err)
	}
	return &ValidatorSet{
		List:          validators,
		MultiKey:      multiKey,
		PowerMap:      powerMap,
		TotalPower:    totalPower,
		MinimumMaj23:  totalPower*2/3 + 1,
		NumValidators: uint64(len(validators)),
	}, nil
}

// GetValidator() looks a validator up by public key bytes
func (vs *ValidatorSet) GetValidator(publicKey []byte) (*ValidatorEntry, ErrorI) {
	val, found := vs.PowerMap[BytesToString(publicKey)]
	if !found {
		return nil, ErrValidatorNotInSet(publicKey)
	}
	return &val, nil
}

// GetValidatorAtIndex() returns the validator at a fixed set index
func (vs *ValidatorSet) GetValidatorAtIndex(i int) (*ValidatorEntry, ErrorI) {
	if i < 0 || uint64(i) >= vs.NumValidators {
		return nil, ErrInvalidValidatorIndex()
	}
	return vs.GetValidator(vs.List[i].PublicKey)
}

// Contains() returns whether a public key is a member of the set
func (vs *ValidatorSet) Contains(publicKey []byte) bool {
	_, found := vs.PowerMap[BytesToString(publicKey)]
	return found
}

// Root() returns a merkle commitment over the ordered validator list so every
// node derives the identical epoch identity from the same chain state
func (vs *ValidatorSet) Root() ([]byte, ErrorI) {
	var leaves [][]byte
	for _, val := range vs.List {
		bz, err := Marshal(val)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, bz)
	}
	return crypto.MerkleRoot(leaves), nil
}
