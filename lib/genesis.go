package lib

import (
	"encoding/json"
	"os"

	"github.com/Jakiepham/chain/lib/crypto"
)

// Genesis is the document every node starts from: the time slot zero begins,
// the seed of the first epoch's election randomness and the initial validator
// set with election weights.
type Genesis struct {
	GenesisTimeUnixMilli int64              `json:"genesisTimeUnixMilli"`
	Seed                 string             `json:"seed"` // hex
	Validators           []GenesisValidator `json:"validators"`
}

// GenesisValidator is the on-disk form of an initial validator
type GenesisValidator struct {
	PublicKey   string `json:"publicKey"` // hex BLS public key
	VotingPower uint64 `json:"votingPower"`
}

// Check() enforces the genesis invariants; a violation is fatal at startup
func (g *Genesis) Check() ErrorI {
	if g == nil {
		return ErrInvalidGenesis("document is nil")
	}
	if len(g.Validators) == 0 {
		return ErrEmptyValidatorSet()
	}
	for _, v := range g.Validators {
		if len(StringToBytes(v.PublicKey)) == 0 {
			return ErrInvalidGenesis("validator public key is not valid hex")
		}
		if v.VotingPower == 0 {
			return ErrInvalidGenesis("validator voting power must be positive")
		}
	}
	return nil
}

// ValidatorSet() builds the working validator set from the genesis document
func (g *Genesis) ValidatorSet() (*ValidatorSet, ErrorI) {
	validators := make([]*Validator, 0, len(g.Validators))
	for _, v := range g.Validators {
		validators = append(validators, &Validator{
			PublicKey:   StringToBytes(v.PublicKey),
			VotingPower: v.VotingPower,
		})
	}
	return NewValidatorSet(validators)
}

// SeedBytes() returns the first epoch's randomness seed
func (g *Genesis) SeedBytes() []byte {
	if seed := StringToBytes(g.Seed); len(seed) != 0 {
		return seed
	}
	// a missing seed still yields a deterministic epoch zero
	return crypto.Hash([]byte("genesis"))
}

// Block() deterministically constructs the genesis block every node agrees on
func (g *Genesis) Block() (*Block, ErrorI) {
	bz, err := Marshal(&Genesis{
		GenesisTimeUnixMilli: g.GenesisTimeUnixMilli,
		Seed:                 g.Seed,
		Validators:           g.Validators,
	})
	if err != nil {
		return nil, err
	}
	return &Block{
		Header: &BlockHeader{
			ParentHash: make([]byte, crypto.HashSize),
			Height:     0,
			Slot:       0,
			Epoch:      0,
			StateRoot:  crypto.Hash(bz),
			TxRoot:     crypto.MerkleRoot(nil),
		},
	}, nil
}

// NewGenesisFromFile() loads and validates the genesis document
func NewGenesisFromFile(filePath string) (*Genesis, ErrorI) {
	bz, err := os.ReadFile(filePath)
	if err != nil {
		return nil, ErrReadFile(err)
	}
	g := new(Genesis)
	if err = json.Unmarshal(bz, g); err != nil {
		return nil, ErrJSONUnmarshal(err)
	}
	if e := g.Check(); e != nil {
		return nil, e
	}
	return g, nil
}

// WriteToFile() saves the genesis document as JSON
func (g *Genesis) WriteToFile(filePath string) ErrorI {
	bz, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return ErrJSONMarshal(err)
	}
	if err = os.WriteFile(filePath, bz, os.ModePerm); err != nil {
		return ErrWriteFile(err)
	}
	return nil
}
