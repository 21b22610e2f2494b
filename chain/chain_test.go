package chain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Jakiepham/chain/fsm"
	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

func TestForkChoiceStrictlyGreater(t *testing.T) {
	h := newHarness(t)
	// two children of genesis: the first lands and takes the head
	a := h.importBlock(t, h.genesis, 1, 10)
	require.Equal(t, a, h.blocks.BestHead().Hash)
	// an equal-weight sibling ties and the head does not move
	b := h.importBlock(t, h.genesis, 2, 10)
	require.Equal(t, a, h.blocks.BestHead().Hash)
	// extending the sibling makes its branch strictly heavier
	c := h.importBlock(t, b, 3, 10)
	require.Equal(t, c, h.blocks.BestHead().Hash)
	require.Equal(t, uint64(2), h.blocks.BestHead().Height)
}

func TestForkChoiceRecomputeIsDeterministic(t *testing.T) {
	h := newHarness(t)
	a := h.importBlock(t, h.genesis, 1, 10)
	b := h.importBlock(t, a, 2, 10)
	h.importBlock(t, h.genesis, 3, 5)
	// the pure recomputation agrees with the incrementally tracked head
	require.Equal(t, h.blocks.BestHead().Hash, h.blocks.ComputeBestHead().Hash)
	require.Equal(t, b, h.blocks.ComputeBestHead().Hash)
}

func TestFinalizeIsMonotone(t *testing.T) {
	h := newHarness(t)
	a := h.importBlock(t, h.genesis, 1, 10)
	b := h.importBlock(t, a, 2, 10)
	sibling := h.importBlock(t, h.genesis, 3, 10)
	require.NoError(t, h.blocks.Finalize(a))
	require.Equal(t, a, h.blocks.FinalizedHead().Hash)
	// re-finalizing the same block is a no-op
	require.NoError(t, h.blocks.Finalize(a))
	// the pointer never moves down or sideways
	require.ErrorContains(t, h.blocks.Finalize(h.blocks.GenesisHash()), "at or below the finalized height")
	require.ErrorContains(t, h.blocks.Finalize(sibling), "conflicts with the finalized chain")
	// it moves up along the finalized branch
	require.NoError(t, h.blocks.Finalize(b))
	require.Equal(t, uint64(2), h.blocks.FinalizedHead().Height)
}

func TestFinalityPrunesTheBestBranch(t *testing.T) {
	h := newHarness(t)
	// the heavy branch holds the head, then the light branch is finalized
	heavy := h.importBlock(t, h.genesis, 1, 100)
	light := h.importBlock(t, h.genesis, 2, 10)
	require.Equal(t, heavy, h.blocks.BestHead().Hash)
	require.NoError(t, h.blocks.Finalize(light))
	// the head must abandon the pruned branch for the finalized one
	require.Equal(t, light, h.blocks.BestHead().Hash)
	require.True(t, h.blocks.IsDescendant(light, h.blocks.BestHead().Hash))
}

func TestIsDescendant(t *testing.T) {
	h := newHarness(t)
	a := h.importBlock(t, h.genesis, 1, 10)
	b := h.importBlock(t, a, 2, 10)
	sibling := h.importBlock(t, h.genesis, 3, 10)
	require.True(t, h.blocks.IsDescendant(h.blocks.GenesisHash(), b))
	require.True(t, h.blocks.IsDescendant(a, b))
	require.True(t, h.blocks.IsDescendant(a, a))
	require.False(t, h.blocks.IsDescendant(b, a))
	require.False(t, h.blocks.IsDescendant(sibling, b))
	require.False(t, h.blocks.IsDescendant(crypto.Hash([]byte("unknown")), b))
}

/* test harness shared by the chain and import queue tests */

// stubVerifier accepts every proof and prices authors by a fixed weight map
type stubVerifier struct {
	weights map[string]uint64
	reject  bool
}

func (v *stubVerifier) VerifyHeader(header *lib.BlockHeader) lib.ErrorI {
	if v.reject {
		return lib.ErrInvalidProof()
	}
	return nil
}

func (v *stubVerifier) AuthorWeight(header *lib.BlockHeader) (uint64, lib.ErrorI) {
	if w, found := v.weights[lib.BytesToString(header.ElectionProof)]; found {
		return w, nil
	}
	return 1, nil
}

type harness struct {
	blocks   *Chain
	queue    *ImportQueue
	verifier *stubVerifier
	executor lib.StateExecutor
	key      crypto.PrivateKeyI
	genesis  []byte
	byHash   map[string]*lib.Block
	seq      uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	key, err := crypto.NewBLSPrivateKey()
	require.NoError(t, err)
	genesisBlock, e := (&lib.Genesis{Seed: crypto.HashString([]byte("seed"))}).Block()
	require.NoError(t, e)
	log := lib.NewNullLogger()
	blocks, e := New(genesisBlock, log)
	require.NoError(t, e)
	verifier := &stubVerifier{weights: map[string]uint64{}}
	executor := fsm.NewExecutor()
	queue := NewImportQueue(blocks, verifier, executor, lib.DefaultChainConfig(), nil, log)
	genesisHash, e := genesisBlock.Hash()
	require.NoError(t, e)
	return &harness{
		blocks:   blocks,
		queue:    queue,
		verifier: verifier,
		executor: executor,
		key:      key,
		genesis:  genesisHash,
		byHash:   map[string]*lib.Block{lib.BytesToString(genesisHash): genesisBlock},
	}
}

// makeBlock() builds a valid signed child of the given parent. The seq salt in
// the transaction body keeps sibling blocks distinct.
func (h *harness) makeBlock(t *testing.T, parentHash []byte, slot uint64) *lib.Block {
	t.Helper()
	parent, found := h.byHash[lib.BytesToString(parentHash)]
	require.True(t, found)
	h.seq++
	txs := [][]byte{{byte(h.seq), byte(h.seq >> 8)}}
	stateRoot, err := h.executor.Apply(parent.Header.StateRoot, txs)
	require.NoError(t, err)
	header := &lib.BlockHeader{
		ParentHash:    parentHash,
		Height:        parent.Header.Height + 1,
		Slot:          slot,
		Epoch:         0,
		StateRoot:     stateRoot,
		TxRoot:        crypto.MerkleRoot(txs),
		ProposerKey:   h.key.PublicKey().Bytes(),
		ElectionProof: crypto.Hash(append(parentHash, byte(h.seq))),
	}
	signBytes, err := header.SignBytes()
	require.NoError(t, err)
	header.Signature = h.key.Sign(signBytes)
	block := &lib.Block{Header: header, Transactions: txs}
	hash, err := block.Hash()
	require.NoError(t, err)
	h.byHash[lib.BytesToString(hash)] = block
	return block
}

// importBlock() makes and imports a child of a parent hash with a fixed
// author weight, returning its hash
func (h *harness) importBlock(t *testing.T, parentHash []byte, slot, weight uint64) []byte {
	t.Helper()
	return h.importWith(t, h.makeBlock(t, parentHash, slot), weight)
}

func (h *harness) importWith(t *testing.T, block *lib.Block, weight uint64) []byte {
	t.Helper()
	h.verifier.weights[lib.BytesToString(block.Header.ElectionProof)] = weight
	result, err := h.queue.Import(block)
	require.NoError(t, err)
	require.False(t, result.Orphaned)
	return result.Hash
}
