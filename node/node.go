package node

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Jakiepham/chain/chain"
	"github.com/Jakiepham/chain/consensus"
	"github.com/Jakiepham/chain/finality"
	"github.com/Jakiepham/chain/fsm"
	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
	"github.com/Jakiepham/chain/store"
)

/*
	Node assembles the consensus core: the slot clock drives the authorship
	engine, peer and local blocks funnel through the import queue, and the
	finality gadget votes over the resulting tree. Everything the node needs
	from the outside world arrives through the Gossip interface and the
	OnBlock / OnVote / OnTransaction ingress hooks.
*/

// Node owns the lifecycle of one validator (or observer) process
type Node struct {
	config    lib.Config
	key       crypto.PrivateKeyI
	genesis   *lib.Genesis
	blocks    *chain.Chain
	queue     *chain.ImportQueue
	directory *consensus.EpochDirectory
	selector  *consensus.LeaderSelector
	clock     *consensus.SlotClock
	author    *consensus.AuthorshipEngine
	gadget    *finality.Gadget
	pool      *lib.FeeMempool
	archive   *store.BlockStore
	metrics   *lib.Metrics
	gossip    lib.Gossip
	slots     chan uint64
	log       lib.LoggerI
}

// epochValidators adapts the epoch directory to the finality gadget's view
type epochValidators struct{ directory *consensus.EpochDirectory }

func (e epochValidators) CurrentValidators() *lib.ValidatorSet {
	return e.directory.Current().Validators
}

// New() wires every component from the configuration, the validator key and
// the genesis document
func New(config lib.Config, key crypto.PrivateKeyI, genesis *lib.Genesis, gossip lib.Gossip, log lib.LoggerI) (*Node, lib.ErrorI) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := genesis.Check(); err != nil {
		return nil, err
	}
	if gossip == nil {
		gossip = lib.NoopGossip{}
	}
	genesisBlock, err := genesis.Block()
	if err != nil {
		return nil, err
	}
	blocks, err := chain.New(genesisBlock, log)
	if err != nil {
		return nil, err
	}
	validators, err := genesis.ValidatorSet()
	if err != nil {
		return nil, err
	}
	directory, err := consensus.NewEpochDirectory(validators, genesis.SeedBytes(), config.ConsensusConfig, log)
	if err != nil {
		return nil, err
	}
	clock, err := consensus.NewSlotClock(genesis.GenesisTimeUnixMilli, config.ConsensusConfig, log)
	if err != nil {
		return nil, err
	}
	archive, err := store.New(config.StoreConfig, log)
	if err != nil {
		return nil, err
	}
	metrics := lib.NewMetrics(config.MetricsConfig, log)
	selector := consensus.NewLeaderSelector(directory, config.ConsensusConfig, log)
	executor := fsm.NewExecutor()
	queue := chain.NewImportQueue(blocks, selector, executor, config.ChainConfig, metrics, log)
	pool := lib.NewMempool(config.MempoolConfig)
	author := consensus.NewAuthorshipEngine(key, selector, directory, blocks, queue, pool,
		executor, gossip, config.ConsensusConfig, metrics, log)
	gadget := finality.NewGadget(blocks, epochValidators{directory}, key, gossip,
		config.FinalityConfig, metrics, log)
	return &Node{
		config:    config,
		key:       key,
		genesis:   genesis,
		blocks:    blocks,
		queue:     queue,
		directory: directory,
		selector:  selector,
		clock:     clock,
		author:    author,
		gadget:    gadget,
		pool:      pool,
		archive:   archive,
		metrics:   metrics,
		gossip:    gossip,
		slots:     make(chan uint64, 1),
		log:       log,
	}, nil
}

// Start() runs every component until the context is cancelled or one of them
// fails; the return value is the first failure
func (n *Node) Start(ctx context.Context) error {
	n.log.Infof("starting node %s on chain %d", n.key.PublicKey().String(), n.config.ChainId)
	n.metrics.Start()
	defer n.metrics.Stop()
	defer func() {
		if err := n.archive.Close(); err != nil {
			n.log.Errorf("closing block store: %s", err.Error())
		}
	}()
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { n.clock.Run(ctx, n.slots); return nil })
	group.Go(func() error { n.author.Start(ctx, n.slots); return nil })
	group.Go(func() error { n.queue.Start(ctx); return nil })
	group.Go(func() error { n.gadget.Start(ctx); return nil })
	group.Go(func() error { return n.consumeFinalized(ctx) })
	group.Go(func() error { n.consumeEquivocations(ctx); return nil })
	return group.Wait()
}

// OnBlock() is the transport ingress for candidate blocks
func (n *Node) OnBlock(block *lib.Block) { n.queue.Submit(block) }

// OnVote() is the transport ingress for finality votes
func (n *Node) OnVote(vote *lib.Vote) { n.gadget.SubmitVote(vote) }

// OnTransaction() is the transport ingress for unconfirmed transactions
func (n *Node) OnTransaction(tx []byte, fee uint64) lib.ErrorI {
	return n.pool.AddTransaction(tx, fee)
}

// BestHead() exposes the fork-choice head
func (n *Node) BestHead() *chain.Ref { return n.blocks.BestHead() }

// FinalizedHead() exposes the irreversible head
func (n *Node) FinalizedHead() *chain.Ref { return n.blocks.FinalizedHead() }

// consumeFinalized() archives each finalized block and prunes its
// transactions from the pool
func (n *Node) consumeFinalized(ctx context.Context) error {
	for {
		select {
		case event := <-n.gadget.Finalized():
			block, err := n.blocks.GetBlock(event.BlockHash)
			if err != nil {
				n.log.Errorf("finalized block missing from the tree: %s", err.Error())
				continue
			}
			if err = n.archive.IndexFinalized(block, event.Proof); err != nil {
				return err
			}
			n.pool.Remove(block.Transactions)
		case <-ctx.Done():
			return nil
		}
	}
}

// consumeEquivocations() logs double-sign records from both detectors;
// accountability beyond logging lives outside this core
func (n *Node) consumeEquivocations(ctx context.Context) {
	for {
		select {
		case event := <-n.queue.Equivocations():
			n.log.Warnf("proposal equivocation by %s at slot %d",
				lib.BytesToTruncatedString(event.Offender), event.Slot)
		case event := <-n.gadget.Equivocations():
			n.log.Warnf("vote equivocation by %s in round %d",
				lib.BytesToTruncatedString(event.Offender), event.Round)
		case <-ctx.Done():
			return
		}
	}
}
