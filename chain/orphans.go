package chain

import (
	"time"

	"github.com/Jakiepham/chain/lib"
)

/*
	Blocks that arrive before their parent wait in the orphan pool. The pool is
	bounded two ways: a hard cap on the number of held blocks and a retention
	window after which a still-parentless block is discarded. Resolution is
	driven by the import queue whenever a parent lands.
*/

type orphan struct {
	block   *lib.Block
	hash    []byte
	arrived time.Time
}

// orphanPool indexes parentless blocks by the parent they wait for
type orphanPool struct {
	byParent map[string][]*orphan // parent hash -> waiters
	byHash   map[string]*orphan
	max      int
	retained time.Duration
}

func newOrphanPool(config lib.ChainConfig) *orphanPool {
	return &orphanPool{
		byParent: make(map[string][]*orphan),
		byHash:   make(map[string]*orphan),
		max:      int(config.MaxOrphanBlocks),
		retained: time.Duration(config.OrphanRetentionMS) * time.Millisecond,
	}
}

// add() parks a block until its parent arrives; a duplicate is a no-op
func (p *orphanPool) add(block *lib.Block, hash []byte, now time.Time) lib.ErrorI {
	key := lib.BytesToString(hash)
	if _, found := p.byHash[key]; found {
		return nil
	}
	if len(p.byHash) >= p.max {
		return lib.ErrOrphanPoolFull()
	}
	o := &orphan{block: block, hash: hash, arrived: now}
	parentKey := lib.BytesToString(block.Header.ParentHash)
	p.byParent[parentKey] = append(p.byParent[parentKey], o)
	p.byHash[key] = o
	return nil
}

// take() removes and returns every block waiting on the given parent
func (p *orphanPool) take(parentHash []byte) (blocks []*lib.Block) {
	parentKey := lib.BytesToString(parentHash)
	for _, o := range p.byParent[parentKey] {
		blocks = append(blocks, o.block)
		delete(p.byHash, lib.BytesToString(o.hash))
	}
	delete(p.byParent, parentKey)
	return
}

// contains() reports whether the block is already parked
func (p *orphanPool) contains(hash []byte) bool {
	_, found := p.byHash[lib.BytesToString(hash)]
	return found
}

// prune() drops every orphan older than the retention window
func (p *orphanPool) prune(now time.Time) (dropped int) {
	for parentKey, waiters := range p.byParent {
		kept := waiters[:0]
		for _, o := range waiters {
			if now.Sub(o.arrived) > p.retained {
				delete(p.byHash, lib.BytesToString(o.hash))
				dropped++
				continue
			}
			kept = append(kept, o)
		}
		if len(kept) == 0 {
			delete(p.byParent, parentKey)
		} else {
			p.byParent[parentKey] = kept
		}
	}
	return
}

// size() returns the number of blocks currently held
func (p *orphanPool) size() int { return len(p.byHash) }
