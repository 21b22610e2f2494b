package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

func TestImportIsIdempotent(t *testing.T) {
	h := newHarness(t)
	block := h.makeBlock(t, h.genesis, 1)
	first, err := h.queue.Import(block)
	require.NoError(t, err)
	require.False(t, first.AlreadyKnown)
	// re-delivery of the same block changes nothing and is not an error
	second, err := h.queue.Import(block)
	require.NoError(t, err)
	require.True(t, second.AlreadyKnown)
	require.Equal(t, first.Hash, second.Hash)
	require.Equal(t, first.Hash, h.blocks.BestHead().Hash)
}

func TestOrphanParkAndResolve(t *testing.T) {
	h := newHarness(t)
	parent := h.makeBlock(t, h.genesis, 1)
	parentHash, err := parent.Hash()
	require.NoError(t, err)
	child := h.makeBlock(t, parentHash, 2)
	grandchild := func() *lib.Block {
		childHash, e := child.Hash()
		require.NoError(t, e)
		return h.makeBlock(t, childHash, 3)
	}()
	// the whole detached branch arrives before its root
	result, err := h.queue.Import(grandchild)
	require.NoError(t, err)
	require.True(t, result.Orphaned)
	result, err = h.queue.Import(child)
	require.NoError(t, err)
	require.True(t, result.Orphaned)
	// redelivery of a parked block is a no-op, the pool does not grow
	result, err = h.queue.Import(child)
	require.NoError(t, err)
	require.True(t, result.Orphaned)
	require.Equal(t, 2, h.queue.orphans.size())
	require.Equal(t, uint64(0), h.blocks.BestHead().Height)
	// the root lands and the branch resolves transitively in one import
	result, err = h.queue.Import(parent)
	require.NoError(t, err)
	require.True(t, result.NewBestHead)
	require.Equal(t, uint64(3), h.blocks.BestHead().Height)
	grandchildHash, err := grandchild.Hash()
	require.NoError(t, err)
	require.Equal(t, grandchildHash, h.blocks.BestHead().Hash)
}

func TestOrphanPoolIsBounded(t *testing.T) {
	h := newHarness(t)
	config := lib.DefaultChainConfig()
	config.MaxOrphanBlocks = 2
	h.queue = NewImportQueue(h.blocks, h.verifier, h.executor, config, nil, lib.NewNullLogger())
	unknown := crypto.Hash([]byte("unknown parent"))
	h.byHash[lib.BytesToString(unknown)] = &lib.Block{Header: &lib.BlockHeader{
		Height: 4, Slot: 4, StateRoot: crypto.Hash([]byte("s")),
	}}
	for i := uint64(0); i < 2; i++ {
		result, err := h.queue.Import(h.makeBlock(t, unknown, 5+i))
		require.NoError(t, err)
		require.True(t, result.Orphaned)
	}
	_, err := h.queue.Import(h.makeBlock(t, unknown, 9))
	require.ErrorContains(t, err, "orphan pool limit")
}

func TestEquivocationIsRecordedNotFatal(t *testing.T) {
	h := newHarness(t)
	// the same proposer signs two different blocks for the same slot
	first := h.makeBlock(t, h.genesis, 1)
	second := h.makeBlock(t, h.genesis, 1)
	result, err := h.queue.Import(first)
	require.NoError(t, err)
	require.False(t, result.Equivocation)
	result, err = h.queue.Import(second)
	require.NoError(t, err)
	require.True(t, result.Equivocation)
	// both blocks entered the tree as forks
	firstHash, err := first.Hash()
	require.NoError(t, err)
	secondHash, err := second.Hash()
	require.NoError(t, err)
	require.True(t, h.blocks.HasBlock(firstHash))
	require.True(t, h.blocks.HasBlock(secondHash))
	// and the double-sign was surfaced for accountability
	select {
	case event := <-h.queue.Equivocations():
		require.Equal(t, lib.EquivocationKindProposal, event.Kind)
		require.Equal(t, first.Header.ProposerKey, event.Offender)
		require.Equal(t, uint64(1), event.Slot)
		require.Equal(t, firstHash, event.FirstHash)
		require.Equal(t, secondHash, event.SecondHash)
	default:
		t.Fatal("no equivocation event emitted")
	}
}

func TestImportRejections(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		block  func(t *testing.T, h *harness) *lib.Block
		error  string
	}{
		{
			name:   "wrong height",
			detail: "a child must sit exactly one above its parent",
			block: func(t *testing.T, h *harness) *lib.Block {
				return h.resign(t, h.makeBlock(t, h.genesis, 1), func(hd *lib.BlockHeader) { hd.Height = 5 })
			},
			error: "wrong height",
		},
		{
			name:   "slot does not advance",
			detail: "a child's slot must be strictly after its parent's",
			block: func(t *testing.T, h *harness) *lib.Block {
				parent := h.makeBlock(t, h.genesis, 4)
				_, err := h.queue.Import(parent)
				require.NoError(t, err)
				parentHash, err := parent.Hash()
				require.NoError(t, err)
				return h.makeBlock(t, parentHash, 4)
			},
			error: "does not advance past parent slot",
		},
		{
			name:   "invalid election proof",
			detail: "an unverifiable authorship claim is rejected before state replay",
			block: func(t *testing.T, h *harness) *lib.Block {
				h.verifier.reject = true
				return h.makeBlock(t, h.genesis, 1)
			},
			error: "election proof",
		},
		{
			name:   "tampered header signature",
			detail: "the header signature must match the proposer key",
			block: func(t *testing.T, h *harness) *lib.Block {
				block := h.makeBlock(t, h.genesis, 1)
				block.Header.Signature[0] ^= 0xFF
				return block
			},
			error: "header signature does not match",
		},
		{
			name:   "state root mismatch",
			detail: "replay must reproduce the declared post-state root",
			block: func(t *testing.T, h *harness) *lib.Block {
				return h.resign(t, h.makeBlock(t, h.genesis, 1), func(hd *lib.BlockHeader) {
					hd.StateRoot = crypto.Hash([]byte("forged state"))
				})
			},
			error: "state root mismatch",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.queue.Import(test.block(t, h))
			require.ErrorContains(t, err, test.error, test.detail)
		})
	}
}

func TestImportRefusesFinalityConflicts(t *testing.T) {
	h := newHarness(t)
	a := h.importBlock(t, h.genesis, 1, 10)
	h.importBlock(t, a, 2, 10)
	require.NoError(t, h.blocks.Finalize(a))
	// a fork rooted below the finalized head can never be imported
	_, err := h.queue.Import(h.makeBlock(t, h.genesis, 3))
	require.ErrorContains(t, err, "at or below the finalized height")
	// and neither can a deeper branch forking under it
	sibling := h.resign(t, h.makeBlock(t, h.genesis, 3), func(hd *lib.BlockHeader) { hd.Height = 2 })
	_, err = h.queue.Import(sibling)
	require.ErrorContains(t, err, "wrong height")
}

/* header mutation helpers */

// resign() mutates a header and re-signs it so only the targeted rule fails
func (h *harness) resign(t *testing.T, block *lib.Block, mutate func(*lib.BlockHeader)) *lib.Block {
	t.Helper()
	mutate(block.Header)
	signBytes, err := block.Header.SignBytes()
	require.NoError(t, err)
	block.Header.Signature = h.key.Sign(signBytes)
	return block
}
