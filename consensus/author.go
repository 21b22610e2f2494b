package consensus

import (
	"context"
	"time"

	"github.com/Jakiepham/chain/chain"
	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	The authorship engine turns slot ticks into blocks. Each tick runs the
	lottery for the local key; on a win it assembles a block on the current
	best head, replays the batch through the executor to obtain the post-state
	root, signs the header and hands the block to its own import queue before
	broadcasting. Authoring through the same admission pipeline as peer blocks
	means a bug that produces an invalid block is caught locally, not by the
	rest of the network.
*/

// AuthorshipEngine builds and publishes blocks for slots the local key wins
type AuthorshipEngine struct {
	signer    crypto.SignerI
	selector  *LeaderSelector
	directory *EpochDirectory
	blocks    *chain.Chain
	queue     *chain.ImportQueue
	pool      lib.TxPool
	executor  lib.StateExecutor
	gossip    lib.Gossip
	config    lib.ConsensusConfig
	metrics   *lib.Metrics
	log       lib.LoggerI
}

// NewAuthorshipEngine() wires the block production path
func NewAuthorshipEngine(signer crypto.SignerI, selector *LeaderSelector, directory *EpochDirectory,
	blocks *chain.Chain, queue *chain.ImportQueue, pool lib.TxPool, executor lib.StateExecutor,
	gossip lib.Gossip, config lib.ConsensusConfig, metrics *lib.Metrics, log lib.LoggerI) *AuthorshipEngine {
	return &AuthorshipEngine{
		signer:    signer,
		selector:  selector,
		directory: directory,
		blocks:    blocks,
		queue:     queue,
		pool:      pool,
		executor:  executor,
		gossip:    gossip,
		config:    config,
		metrics:   metrics,
		log:       log,
	}
}

// Start() consumes slot ticks until the context is cancelled
func (a *AuthorshipEngine) Start(ctx context.Context, slots <-chan uint64) {
	for {
		select {
		case s := <-slots:
			if err := a.directory.OnSlot(s); err != nil {
				a.log.Errorf("epoch lifecycle failed at slot %d: %s", s, err.Error())
				continue
			}
			if _, err := a.HandleSlot(s); err != nil {
				a.log.Errorf("authorship failed at slot %d: %s", s, err.Error())
			}
		case <-ctx.Done():
			return
		}
	}
}

// HandleSlot() runs one slot for the local validator. A nil block with a nil
// error means the lottery was simply lost.
func (a *AuthorshipEngine) HandleSlot(s uint64) (*lib.Block, lib.ErrorI) {
	proof, secondary, err := a.selector.Elect(a.signer, s)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, nil
	}
	block, err := a.buildBlock(s, proof, secondary)
	if err != nil {
		return nil, err
	}
	// locally authored blocks pass the same admission pipeline as peer blocks
	if _, err = a.queue.Import(block); err != nil {
		return nil, err
	}
	// included transactions leave the pool on import, not on finality; a
	// pending pool entry would be re-included in every block on this branch
	a.pool.Remove(block.Transactions)
	a.metrics.AddAuthored()
	a.gossip.BroadcastBlock(block)
	hash, _ := block.Hash()
	a.log.Infof("authored block %s height=%d slot=%d secondary=%t txs=%d",
		lib.BytesToTruncatedString(hash), block.Header.Height, s, secondary, len(block.Transactions))
	return block, nil
}

// buildBlock() assembles and signs a block on top of the current best head
func (a *AuthorshipEngine) buildBlock(s uint64, proof []byte, secondary bool) (*lib.Block, lib.ErrorI) {
	state, err := a.directory.StateFor(s)
	if err != nil {
		return nil, err
	}
	parent := a.blocks.BestHead()
	txs := a.fetchTransactions()
	stateRoot, err := a.executor.Apply(parent.StateRoot, txs)
	if err != nil {
		return nil, err
	}
	header := &lib.BlockHeader{
		ParentHash:    parent.Hash,
		Height:        parent.Height + 1,
		Slot:          s,
		Epoch:         state.Number,
		StateRoot:     stateRoot,
		TxRoot:        crypto.MerkleRoot(txs),
		ProposerKey:   a.signer.PublicKey().Bytes(),
		ElectionProof: proof,
		Secondary:     secondary,
	}
	signBytes, err := header.SignBytes()
	if err != nil {
		return nil, err
	}
	header.Signature = a.signer.Sign(signBytes)
	if len(header.Signature) == 0 {
		return nil, lib.ErrSigningFailed()
	}
	return &lib.Block{Header: header, Transactions: txs}, nil
}

// fetchTransactions() pulls the batch from the pool under a bounded wait; a
// slow pool yields an empty block instead of a missed slot
func (a *AuthorshipEngine) fetchTransactions() [][]byte {
	type fetch struct{ txs [][]byte }
	done := make(chan fetch, 1)
	go func() { done <- fetch{a.pool.Ready(a.config.MaxBlockTxs)} }()
	timer := lib.NewTimer()
	defer lib.StopTimer(timer)
	lib.ResetTimer(timer, time.Duration(a.config.PoolFetchTimeoutMS)*time.Millisecond)
	select {
	case f := <-done:
		return f.txs
	case <-timer.C:
		a.log.Warnf("authoring an empty block: %s", lib.ErrPoolFetchTimeout().Error())
		return nil
	}
}
