package chain

import (
	"bytes"
	"sync"

	"github.com/Jakiepham/chain/lib"
)

/*
	Chain is the rooted tree of imported blocks, keyed by hash, with one
	distinguished genesis root. Multiple leaves coexist until fork-choice and
	finality prune them. The tree structure is mutated only by the import
	queue; the finalized pointer is advanced only by the finality gadget.
	Readers always observe a consistent snapshot via Ref copies.
*/

// blockNode is the arena entry for one imported block
type blockNode struct {
	block            *lib.Block
	hash             []byte
	cumulativeWeight uint64 // the branch weight from genesis to this block
}

// Ref is an immutable snapshot of a position in the tree
type Ref struct {
	Hash             []byte
	Height           uint64
	Slot             uint64
	StateRoot        []byte
	CumulativeWeight uint64
}

// Chain owns the block tree and the best/finalized head pointers
type Chain struct {
	mu             sync.RWMutex
	nodes          map[string]*blockNode // hex hash -> node
	children       map[string][]string
	bySlotProposer map[string][]byte // slot/proposer -> first seen block hash
	genesisHash    []byte
	best           string
	finalized      string
	log            lib.LoggerI
}

// New() roots a chain at the given genesis block
func New(genesis *lib.Block, log lib.LoggerI) (*Chain, lib.ErrorI) {
	if genesis == nil || genesis.Header == nil {
		return nil, lib.ErrNilBlock()
	}
	if genesis.Header.Height != 0 {
		return nil, lib.ErrInvalidGenesis("genesis height must be zero")
	}
	hash, err := genesis.Hash()
	if err != nil {
		return nil, err
	}
	key := lib.BytesToString(hash)
	c := &Chain{
		nodes:          map[string]*blockNode{key: {block: genesis, hash: hash}},
		children:       make(map[string][]string),
		bySlotProposer: make(map[string][]byte),
		genesisHash:    hash,
		best:           key,
		finalized:      key,
		log:            log,
	}
	return c, nil
}

// GenesisHash() returns the identity of the root block
func (c *Chain) GenesisHash() []byte { return c.genesisHash }

// HasBlock() returns whether the block is part of the tree
func (c *Chain) HasBlock(hash []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.nodes[lib.BytesToString(hash)]
	return ok
}

// GetBlock() returns an imported block by hash
func (c *Chain) GetBlock(hash []byte) (*lib.Block, lib.ErrorI) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[lib.BytesToString(hash)]
	if !ok {
		return nil, lib.ErrUnknownBlock(hash)
	}
	return n.block, nil
}

// BestHead() returns a consistent snapshot of the current best head
func (c *Chain) BestHead() *Ref {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refOf(c.nodes[c.best])
}

// FinalizedHead() returns a consistent snapshot of the finalized head
func (c *Chain) FinalizedHead() *Ref {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refOf(c.nodes[c.finalized])
}

// IsDescendant() reports whether 'hash' descends from (or equals) 'ancestor'
func (c *Chain) IsDescendant(ancestor, hash []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isDescendantLocked(ancestor, hash)
}

func (c *Chain) isDescendantLocked(ancestor, hash []byte) bool {
	ancNode, ok := c.nodes[lib.BytesToString(ancestor)]
	if !ok {
		return false
	}
	cur, ok := c.nodes[lib.BytesToString(hash)]
	if !ok {
		return false
	}
	for cur.block.Header.Height > ancNode.block.Header.Height {
		parent, found := c.nodes[lib.BytesToString(cur.block.Header.ParentHash)]
		if !found {
			return false
		}
		cur = parent
	}
	return bytes.Equal(cur.hash, ancNode.hash)
}

// Ancestry() walks from 'hash' up to (excluding) 'stop', newest first
func (c *Chain) Ancestry(hash, stop []byte) (chain []*Ref) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.nodes[lib.BytesToString(hash)]
	for ok && !bytes.Equal(cur.hash, stop) {
		chain = append(chain, c.refOf(cur))
		if cur.block.Header.Height == 0 {
			break
		}
		cur, ok = c.nodes[lib.BytesToString(cur.block.Header.ParentHash)]
	}
	return
}

// Finalize() advances the finalized pointer to an imported block. The pointer
// is strictly monotone: the target must descend from the current finalized
// head and sit above it. If the best head no longer descends from the new
// finalized block, the best head is recomputed among its descendants.
func (c *Chain) Finalize(hash []byte) lib.ErrorI {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := lib.BytesToString(hash)
	target, ok := c.nodes[key]
	if !ok {
		return lib.ErrUnknownBlock(hash)
	}
	final := c.nodes[c.finalized]
	if bytes.Equal(target.hash, final.hash) {
		return nil // already finalized
	}
	if target.block.Header.Height <= final.block.Header.Height {
		return lib.ErrBelowFinalized(target.block.Header.Height, final.block.Header.Height)
	}
	if !c.isDescendantLocked(final.hash, target.hash) {
		return lib.ErrFinalityConflict(hash)
	}
	c.finalized = key
	if !c.isDescendantLocked(target.hash, c.nodes[c.best].hash) {
		// the previous best branch was pruned by finality
		c.best = c.computeBestLocked()
	}
	return nil
}

// add() inserts a validated block into the arena and runs fork-choice.
// Only the import queue calls this.
func (c *Chain) add(block *lib.Block, hash []byte, authorWeight uint64) (newBest bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parentKey := lib.BytesToString(block.Header.ParentHash)
	parent := c.nodes[parentKey]
	key := lib.BytesToString(hash)
	c.nodes[key] = &blockNode{
		block:            block,
		hash:             hash,
		cumulativeWeight: parent.cumulativeWeight + authorWeight,
	}
	c.children[parentKey] = append(c.children[parentKey], key)
	// fork-choice: a strictly heavier branch replaces the best head; ties keep
	// the existing head to avoid oscillation
	if c.nodes[key].cumulativeWeight > c.nodes[c.best].cumulativeWeight &&
		c.isDescendantLocked(c.nodes[c.finalized].hash, hash) {
		c.best = key
		return true
	}
	return false
}

// computeBestLocked() is the pure fork-choice function: among all blocks
// descending from the finalized head it picks the greatest cumulative weight,
// breaking ties by height and then by lexicographic hash so the result is
// identical on every node given the identical tree.
func (c *Chain) computeBestLocked() string {
	finalHash := c.nodes[c.finalized].hash
	bestKey := c.finalized
	best := c.nodes[bestKey]
	for key, n := range c.nodes {
		if !c.isDescendantLocked(finalHash, n.hash) {
			continue
		}
		if betterThan(n, best) {
			bestKey, best = key, n
		}
	}
	return bestKey
}

// ComputeBestHead() re-derives the best head from the tree alone
func (c *Chain) ComputeBestHead() *Ref {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refOf(c.nodes[c.computeBestLocked()])
}

// betterThan() is the deterministic fork-choice ordering
func betterThan(a, b *blockNode) bool {
	if a.cumulativeWeight != b.cumulativeWeight {
		return a.cumulativeWeight > b.cumulativeWeight
	}
	if a.block.Header.Height != b.block.Header.Height {
		return a.block.Header.Height > b.block.Header.Height
	}
	return bytes.Compare(a.hash, b.hash) < 0
}

// refOf() snapshots a node into an immutable Ref
func (c *Chain) refOf(n *blockNode) *Ref {
	if n == nil {
		return nil
	}
	return &Ref{
		Hash:             n.hash,
		Height:           n.block.Header.Height,
		Slot:             n.block.Header.Slot,
		StateRoot:        n.block.Header.StateRoot,
		CumulativeWeight: n.cumulativeWeight,
	}
}
