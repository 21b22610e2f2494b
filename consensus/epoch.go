package consensus

import (
	"encoding/binary"
	"sync"

	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	Epochs partition the slot grid into fixed windows that share one validator
	set snapshot and one election seed. The directory holds at most three
	epochs: the current one, the one just left behind, and, once the lookahead
	point is reached, the next one. The previous epoch stays resolvable because
	gossip is unordered; a block authored right before the boundary may arrive
	right after it and must still verify. Deriving the next epoch ahead of the
	boundary means the boundary crossing itself is a pointer swap, never a
	computation on the hot path.
*/

// EpochState is the frozen context every election in the epoch runs against
type EpochState struct {
	Number     uint64
	FirstSlot  uint64
	LastSlot   uint64
	Seed       []byte
	Validators *lib.ValidatorSet
}

// Covers() reports whether the slot falls inside this epoch's window
func (e *EpochState) Covers(slot uint64) bool {
	return slot >= e.FirstSlot && slot <= e.LastSlot
}

// EpochDirectory owns the previous, current and next epoch snapshots
type EpochDirectory struct {
	mu       sync.RWMutex
	previous *EpochState
	current  *EpochState
	next     *EpochState
	// pending overrides the validator set of the not-yet-derived next epoch;
	// nil means the set carries over unchanged
	pending *lib.ValidatorSet
	config  lib.ConsensusConfig
	log     lib.LoggerI
}

// NewEpochDirectory() seeds epoch zero from the genesis document
func NewEpochDirectory(validators *lib.ValidatorSet, seed []byte, config lib.ConsensusConfig, log lib.LoggerI) (*EpochDirectory, lib.ErrorI) {
	if validators == nil || validators.NumValidators == 0 {
		return nil, lib.ErrEmptyValidatorSet()
	}
	if config.EpochLengthSlots == 0 {
		return nil, lib.ErrInvalidEpochLength()
	}
	return &EpochDirectory{
		current: &EpochState{
			Number:     0,
			FirstSlot:  0,
			LastSlot:   config.EpochLengthSlots - 1,
			Seed:       seed,
			Validators: validators,
		},
		config: config,
		log:    log,
	}, nil
}

// Current() returns the active epoch snapshot
func (d *EpochDirectory) Current() *EpochState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// StateFor() resolves the epoch covering a slot. The current epoch, the one
// just left behind and the already-derived next epoch are resolvable; anything
// else is out of range.
func (d *EpochDirectory) StateFor(slot uint64) (*EpochState, lib.ErrorI) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current.Covers(slot) {
		return d.current, nil
	}
	if d.previous != nil && d.previous.Covers(slot) {
		return d.previous, nil
	}
	if d.next != nil && d.next.Covers(slot) {
		return d.next, nil
	}
	return nil, lib.ErrNoEpochForSlot(slot)
}

// SetNextValidators() stages a validator set change for the next epoch to be
// derived. Rotation sources the set from finalized state, so it is always the
// same on every node.
func (d *EpochDirectory) SetNextValidators(validators *lib.ValidatorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = validators
}

// OnSlot() drives the epoch lifecycle from the slot clock: derive the next
// epoch once the lookahead point is reached and swap it in at the boundary
func (d *EpochDirectory) OnSlot(slot uint64) lib.ErrorI {
	d.mu.Lock()
	defer d.mu.Unlock()
	// derive ahead of the boundary
	if d.next == nil && slot+d.config.EpochLookaheadSlots >= d.current.LastSlot+1 {
		next, err := d.deriveNext()
		if err != nil {
			return err
		}
		d.next = next
		d.log.Infof("derived epoch %d covering slots [%d, %d] with %d validators",
			next.Number, next.FirstSlot, next.LastSlot, next.Validators.NumValidators)
	}
	// swap at the boundary
	if slot > d.current.LastSlot {
		if d.next == nil {
			return lib.ErrNextEpochUnset()
		}
		// the outgoing epoch stays resolvable for late-delivered blocks
		d.previous, d.current, d.next = d.current, d.next, nil
		d.log.Infof("entered epoch %d", d.current.Number)
		// a late swap (stalled clock) may land several epochs behind; re-derive
		// until the current epoch covers the slot
		for !d.current.Covers(slot) {
			next, err := d.deriveNext()
			if err != nil {
				return err
			}
			d.previous, d.current = d.current, next
		}
	}
	return nil
}

// deriveNext() freezes the next epoch: the seed evolves as a hash chain over
// the prior seed, the epoch number and the validator set commitment, so every
// node with the same history computes the identical schedule
func (d *EpochDirectory) deriveNext() (*EpochState, lib.ErrorI) {
	validators := d.current.Validators
	if d.pending != nil {
		validators, d.pending = d.pending, nil
	}
	root, err := validators.Root()
	if err != nil {
		return nil, err
	}
	number := d.current.Number + 1
	numberBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(numberBytes, number)
	payload := make([]byte, 0, len(d.current.Seed)+8+len(root))
	payload = append(payload, d.current.Seed...)
	payload = append(payload, numberBytes...)
	payload = append(payload, root...)
	return &EpochState{
		Number:     number,
		FirstSlot:  d.current.LastSlot + 1,
		LastSlot:   d.current.LastSlot + d.config.EpochLengthSlots,
		Seed:       crypto.Hash(payload),
		Validators: validators,
	}, nil
}
