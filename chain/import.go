package chain

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	The import queue is the single entry point for candidate blocks, whether
	authored locally or received from peers. It runs the full admission
	pipeline in a fixed order, parks parentless blocks in the orphan pool and
	re-drives them when the parent lands. All tree mutation happens on the
	importing goroutine, so fork-choice never races itself.
*/

// ProofVerifier checks the election claim in a header and prices the author's
// contribution to fork-choice. Implemented by the leader selector.
type ProofVerifier interface {
	// VerifyHeader() validates the election proof against the header's epoch
	VerifyHeader(header *lib.BlockHeader) lib.ErrorI
	// AuthorWeight() returns the fork-choice weight the author contributes
	AuthorWeight(header *lib.BlockHeader) (uint64, lib.ErrorI)
}

// ImportResult reports what the pipeline did with a candidate block
type ImportResult struct {
	Hash         []byte
	Height       uint64
	AlreadyKnown bool // duplicate; nothing changed
	Orphaned     bool // parked awaiting its parent
	NewBestHead  bool // fork-choice moved the best head to this block
	Equivocation bool // the proposer already produced a block for this slot
}

// ImportQueue validates and admits candidate blocks into the chain
type ImportQueue struct {
	mu            sync.Mutex // one import at a time
	chain         *Chain
	verifier      ProofVerifier
	executor      lib.StateExecutor
	orphans       *orphanPool
	inbound       chan *lib.Block
	equivocations chan *lib.EquivocationEvent
	config        lib.ChainConfig
	metrics       *lib.Metrics
	log           lib.LoggerI
}

// NewImportQueue() wires the admission pipeline over an existing chain
func NewImportQueue(c *Chain, verifier ProofVerifier, executor lib.StateExecutor,
	config lib.ChainConfig, metrics *lib.Metrics, log lib.LoggerI) *ImportQueue {
	return &ImportQueue{
		chain:         c,
		verifier:      verifier,
		executor:      executor,
		orphans:       newOrphanPool(config),
		inbound:       make(chan *lib.Block, config.MaxOrphanBlocks),
		equivocations: make(chan *lib.EquivocationEvent, 64),
		config:        config,
		metrics:       metrics,
		log:           log,
	}
}

// Submit() enqueues a candidate block without blocking the caller; a full
// queue drops the block, relying on re-gossip for delivery
func (q *ImportQueue) Submit(block *lib.Block) {
	select {
	case q.inbound <- block:
	default:
		q.log.Warn("import queue full, dropping candidate block")
	}
}

// Equivocations() exposes detected double-sign events for external handling
func (q *ImportQueue) Equivocations() <-chan *lib.EquivocationEvent {
	return q.equivocations
}

// Start() drains the inbound queue and ages the orphan pool until the context
// is cancelled
func (q *ImportQueue) Start(ctx context.Context) {
	pruneTicker := time.NewTicker(time.Duration(q.config.OrphanRetentionMS) * time.Millisecond)
	defer pruneTicker.Stop()
	for {
		select {
		case block := <-q.inbound:
			if _, err := q.Import(block); err != nil {
				q.log.Warnf("block rejected: %s", err.Error())
			}
		case now := <-pruneTicker.C:
			q.mu.Lock()
			if dropped := q.orphans.prune(now); dropped != 0 {
				q.log.Infof("dropped %d expired orphan blocks", dropped)
			}
			q.metrics.SetOrphans(q.orphans.size())
			q.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Import() runs the admission pipeline on one candidate block and, on
// success, re-drives any orphans that were waiting on it. Re-importing a
// known block is a no-op, never an error.
func (q *ImportQueue) Import(block *lib.Block) (*ImportResult, lib.ErrorI) {
	q.mu.Lock()
	defer q.mu.Unlock()
	result, err := q.importOne(block)
	if err != nil || result.Orphaned || result.AlreadyKnown {
		return result, err
	}
	// a newly admitted block may unblock parked descendants; resolve them
	// breadth-first so a whole detached branch lands in one call
	pending := q.orphans.take(result.Hash)
	for len(pending) != 0 {
		next := pending[0]
		pending = pending[1:]
		childResult, childErr := q.importOne(next)
		if childErr != nil {
			q.log.Warnf("orphan rejected on resolution: %s", childErr.Error())
			continue
		}
		result.NewBestHead = result.NewBestHead || childResult.NewBestHead
		pending = append(pending, q.orphans.take(childResult.Hash)...)
	}
	q.metrics.SetOrphans(q.orphans.size())
	return result, nil
}

// importOne() is the pipeline for a single block, in fixed order: form, then
// lineage, then authorship, then state
func (q *ImportQueue) importOne(block *lib.Block) (*ImportResult, lib.ErrorI) {
	if err := block.Check(); err != nil {
		return nil, err
	}
	hash, err := block.Hash()
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Hash: hash, Height: block.Header.Height}
	if q.chain.HasBlock(hash) {
		result.AlreadyKnown = true
		return result, nil
	}
	// lineage: an unknown parent parks the block instead of rejecting it
	parent, err := q.chain.GetBlock(block.Header.ParentHash)
	if err != nil {
		// redelivery of a parked block is as harmless as redelivery of an
		// imported one
		if q.orphans.contains(hash) {
			result.Orphaned = true
			return result, nil
		}
		if e := q.orphans.add(block, hash, time.Now()); e != nil {
			return nil, e
		}
		q.metrics.SetOrphans(q.orphans.size())
		q.log.Warnf("parking orphan block %s: %s",
			lib.BytesToTruncatedString(hash), lib.ErrUnknownParent(block.Header.ParentHash).Error())
		result.Orphaned = true
		return result, nil
	}
	if block.Header.Height != parent.Header.Height+1 {
		return nil, lib.ErrWrongHeight(parent.Header.Height+1, block.Header.Height)
	}
	if block.Header.Slot <= parent.Header.Slot {
		return nil, lib.ErrWrongSlot(parent.Header.Slot, block.Header.Slot)
	}
	// a branch that forks below the finalized head can never win fork-choice
	finalized := q.chain.FinalizedHead()
	if block.Header.Height <= finalized.Height {
		return nil, lib.ErrBelowFinalized(block.Header.Height, finalized.Height)
	}
	if !q.chain.IsDescendant(finalized.Hash, block.Header.ParentHash) {
		return nil, lib.ErrFinalityConflict(hash)
	}
	// authorship: the election claim, then the author's signature over it
	if err = q.verifier.VerifyHeader(block.Header); err != nil {
		return nil, err
	}
	if err = q.verifyHeaderSignature(block.Header); err != nil {
		return nil, err
	}
	// state: replay must reproduce the declared post-state root
	computed, err := q.executor.Apply(parent.Header.StateRoot, block.Transactions)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(computed, block.Header.StateRoot) {
		return nil, lib.ErrStateMismatch(block.Header.StateRoot, computed)
	}
	// equivocation is recorded, not fatal: the block still enters the tree as
	// a fork and accountability happens downstream
	if prior := q.chain.recordProposal(block.Header.Slot, block.Header.ProposerKey, hash); prior != nil {
		result.Equivocation = true
		q.metrics.AddEquivocation()
		q.log.Warnf("proposal equivocation: %s", lib.ErrEquivocation(block.Header.ProposerKey, block.Header.Slot).Error())
		q.emitEquivocation(&lib.EquivocationEvent{
			Kind:       lib.EquivocationKindProposal,
			Offender:   block.Header.ProposerKey,
			Slot:       block.Header.Slot,
			FirstHash:  prior,
			SecondHash: hash,
		})
	}
	weight, err := q.verifier.AuthorWeight(block.Header)
	if err != nil {
		return nil, err
	}
	result.NewBestHead = q.chain.add(block, hash, weight)
	q.metrics.AddImport()
	best := q.chain.BestHead()
	q.metrics.UpdateHeads(best.Height, finalized.Height)
	q.log.Infof("imported block %s height=%d slot=%d newBest=%t",
		lib.BytesToTruncatedString(hash), block.Header.Height, block.Header.Slot, result.NewBestHead)
	return result, nil
}

// verifyHeaderSignature() checks the proposer's signature over the header
func (q *ImportQueue) verifyHeaderSignature(header *lib.BlockHeader) lib.ErrorI {
	publicKey, err := crypto.NewBLSPublicKeyFromBytes(header.ProposerKey)
	if err != nil {
		return lib.ErrPubKeyFromBytes(err)
	}
	signBytes, e := header.SignBytes()
	if e != nil {
		return e
	}
	if !publicKey.VerifyBytes(signBytes, header.Signature) {
		return lib.ErrBadSignature()
	}
	return nil
}

// emitEquivocation() surfaces an event without ever blocking the import path
func (q *ImportQueue) emitEquivocation(event *lib.EquivocationEvent) {
	select {
	case q.equivocations <- event:
	default:
		q.log.Warn("equivocation channel full, dropping event")
	}
}

// recordProposal() indexes the first block seen per slot and proposer and
// returns the prior hash when a conflicting second one shows up
func (c *Chain) recordProposal(slot uint64, proposer, hash []byte) (prior []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fmt.Sprintf("%d/%s", slot, lib.BytesToString(proposer))
	if existing, found := c.bySlotProposer[key]; found {
		if !bytes.Equal(existing, hash) {
			return existing
		}
		return nil
	}
	c.bySlotProposer[key] = hash
	return nil
}
