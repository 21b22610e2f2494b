package finality

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Jakiepham/chain/chain"
	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	The finality gadget runs a sequence of numbered rounds over the imported
	chain. A round has two stages: validators prevote for their best head, and
	once a branch gathers supermajority prevote weight they precommit its
	agreed target. A supermajority of direct precommits finalizes the target,
	yielding an aggregate-signature proof any third party can check against
	the validator set. A round that fails to finalize within its deadline is
	abandoned for the next with a longer deadline, so transient partitions
	stall finality without stalling block production.
*/

// ValidatorSource resolves the validator set finality rounds run against
type ValidatorSource interface {
	CurrentValidators() *lib.ValidatorSet
}

// Gadget is the finality state machine
type Gadget struct {
	mu      sync.Mutex
	blocks  *chain.Chain
	source  ValidatorSource
	signer  crypto.SignerI
	gossip  lib.Gossip
	config  lib.FinalityConfig
	metrics *lib.Metrics
	log     lib.LoggerI

	round      uint64
	prevotes   map[uint64]*voteSet
	precommits map[uint64]*voteSet
	backoff    *backoff.ExponentialBackOff
	timeout    time.Duration

	inbound       chan *lib.Vote
	finalized     chan *lib.FinalizedEvent
	equivocations chan *lib.EquivocationEvent
}

// NewGadget() wires the finality state machine over an existing chain
func NewGadget(blocks *chain.Chain, source ValidatorSource, signer crypto.SignerI,
	gossip lib.Gossip, config lib.FinalityConfig, metrics *lib.Metrics, log lib.LoggerI) *Gadget {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(config.RoundTimeoutMS) * time.Millisecond
	bo.MaxInterval = time.Duration(config.MaxRoundTimeoutMS) * time.Millisecond
	bo.Multiplier = config.RoundTimeoutMultiplier
	bo.RandomizationFactor = 0 // deadlines are part of the protocol, no jitter
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &Gadget{
		blocks:        blocks,
		source:        source,
		signer:        signer,
		gossip:        gossip,
		config:        config,
		metrics:       metrics,
		log:           log,
		round:         1,
		prevotes:      make(map[uint64]*voteSet),
		precommits:    make(map[uint64]*voteSet),
		backoff:       bo,
		timeout:       bo.NextBackOff(),
		inbound:       make(chan *lib.Vote, 256),
		finalized:     make(chan *lib.FinalizedEvent, 16),
		equivocations: make(chan *lib.EquivocationEvent, 64),
	}
}

// CurrentRound() returns the round the gadget is working on
func (g *Gadget) CurrentRound() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.round
}

// Finalized() announces each irreversibility transition exactly once
func (g *Gadget) Finalized() <-chan *lib.FinalizedEvent { return g.finalized }

// Equivocations() exposes detected vote double-signs for external handling
func (g *Gadget) Equivocations() <-chan *lib.EquivocationEvent { return g.equivocations }

// SubmitVote() enqueues a peer vote without blocking the caller
func (g *Gadget) SubmitVote(vote *lib.Vote) {
	select {
	case g.inbound <- vote:
	default:
		g.log.Warn("vote queue full, dropping vote")
	}
}

// StartRound() opens the current round by casting this node's prevote
func (g *Gadget) StartRound() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.castPrevote()
}

// ProcessVote() verifies and tallies one vote, then advances whatever stage
// the vote completed. Duplicate delivery is a no-op.
func (g *Gadget) ProcessVote(vote *lib.Vote) lib.ErrorI {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.processLocked(vote)
}

// HandleTimeout() abandons the current round for the next one with an
// escalated deadline
func (g *Gadget) HandleTimeout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	stalled := g.round
	g.round++
	g.timeout = g.nextTimeout()
	g.metrics.AddStalledRound()
	g.metrics.UpdateRound(g.round)
	g.log.Warnf("round %d stalled, starting round %d with timeout %s", stalled, g.round, g.timeout)
	g.castPrevote()
}

// Start() drives the gadget from the vote queue and the round deadline until
// the context is cancelled
func (g *Gadget) Start(ctx context.Context) {
	g.StartRound()
	timer := lib.NewTimer()
	defer lib.StopTimer(timer)
	lib.ResetTimer(timer, g.roundTimeout())
	observed := g.CurrentRound()
	for {
		select {
		case vote := <-g.inbound:
			if err := g.ProcessVote(vote); err != nil {
				g.log.Debugf("vote rejected: %s", err.Error())
			}
		case <-timer.C:
			if g.CurrentRound() == observed {
				g.HandleTimeout()
			}
		case <-ctx.Done():
			return
		}
		if r := g.CurrentRound(); r != observed {
			observed = r
			lib.ResetTimer(timer, g.roundTimeout())
		}
	}
}

func (g *Gadget) roundTimeout() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeout
}

// nextTimeout() escalates the round deadline along the configured curve
func (g *Gadget) nextTimeout() time.Duration {
	if d := g.backoff.NextBackOff(); d != backoff.Stop {
		return d
	}
	return time.Duration(g.config.MaxRoundTimeoutMS) * time.Millisecond
}

// processLocked() is the verification and tally path for one vote
func (g *Gadget) processLocked(vote *lib.Vote) lib.ErrorI {
	if err := vote.Check(); err != nil {
		return err
	}
	if vote.Round < g.round {
		return nil // stale round, harmless
	}
	finalizedHead := g.blocks.FinalizedHead()
	if vote.Height <= finalizedHead.Height {
		return lib.ErrVoteBelowFinalized(vote.Height, finalizedHead.Height)
	}
	// the target must be imported; the branch check below needs its lineage
	target, err := g.blocks.GetBlock(vote.BlockHash)
	if err != nil {
		return lib.ErrUnknownBlock(vote.BlockHash)
	}
	// the declared height is part of the sign payload; a forged height would
	// tally toward a quorum whose aggregate proof cannot verify
	if vote.Height != target.Header.Height {
		return lib.ErrVoteHeightMismatch(target.Header.Height, vote.Height)
	}
	validators := g.source.CurrentValidators()
	entry, err := validators.GetValidator(vote.VoterKey)
	if err != nil {
		return err
	}
	signBytes, err := vote.SignBytes()
	if err != nil {
		return err
	}
	if !entry.PublicKey.VerifyBytes(signBytes, vote.Signature) {
		return lib.ErrInvalidVoteSignature()
	}
	stage := g.stage(vote.Round, vote.Kind, validators)
	prior, err := stage.add(vote, entry)
	if err != nil {
		return err
	}
	if prior != nil {
		g.metrics.AddEquivocation()
		g.log.Warnf("vote equivocation: %s", lib.ErrVoteEquivocation(vote.VoterKey, vote.Round).Error())
		g.emitEquivocation(&lib.EquivocationEvent{
			Kind:       lib.EquivocationKindVote,
			Offender:   vote.VoterKey,
			Round:      vote.Round,
			FirstHash:  prior.BlockHash,
			SecondHash: vote.BlockHash,
		})
		return nil
	}
	if vote.Round == g.round {
		g.evaluateLocked()
	}
	return nil
}

// evaluateLocked() advances the current round as far as the tallies allow
func (g *Gadget) evaluateLocked() {
	// prevote stage: once a branch holds supermajority prevote weight, its
	// agreed target becomes this round's precommit target
	if prevotes, found := g.prevotes[g.round]; found {
		if target, height, ok := prevotes.ghost(g.blocks.IsDescendant); ok {
			g.castPrecommit(target, height)
		}
	}
	// precommit stage: a direct supermajority finalizes
	precommits, found := g.precommits[g.round]
	if !found {
		return
	}
	proof, err := precommits.quorumProof()
	if err != nil {
		return
	}
	g.finalizeLocked(proof)
}

// castPrevote() votes for the current best head once per round
func (g *Gadget) castPrevote() {
	best, finalizedHead := g.blocks.BestHead(), g.blocks.FinalizedHead()
	if best.Height <= finalizedHead.Height {
		g.log.Debugf("round %d: nothing above the finalized head to vote for", g.round)
		return
	}
	validators := g.source.CurrentValidators()
	if !validators.Contains(g.signer.PublicKey().Bytes()) {
		return
	}
	stage := g.stage(g.round, lib.VoteKindPrevote, validators)
	if stage.voted(g.signer.PublicKey().Bytes()) {
		return
	}
	vote, err := lib.NewSignedVote(g.round, lib.VoteKindPrevote, best.Hash, best.Height, g.signer)
	if err != nil {
		g.log.Errorf("prevote signing failed: %s", err.Error())
		return
	}
	if err = g.processLocked(vote); err != nil {
		g.log.Errorf("own prevote rejected: %s", err.Error())
		return
	}
	g.gossip.BroadcastVote(vote)
}

// castPrecommit() votes for the round's agreed target once per round
func (g *Gadget) castPrecommit(target []byte, height uint64) {
	validators := g.source.CurrentValidators()
	if !validators.Contains(g.signer.PublicKey().Bytes()) {
		return
	}
	stage := g.stage(g.round, lib.VoteKindPrecommit, validators)
	if stage.voted(g.signer.PublicKey().Bytes()) {
		return
	}
	vote, err := lib.NewSignedVote(g.round, lib.VoteKindPrecommit, target, height, g.signer)
	if err != nil {
		g.log.Errorf("precommit signing failed: %s", err.Error())
		return
	}
	if err = g.processLocked(vote); err != nil {
		g.log.Errorf("own precommit rejected: %s", err.Error())
		return
	}
	g.gossip.BroadcastVote(vote)
}

// finalizeLocked() makes the proven target irreversible and opens the next
// round with the deadline curve reset
func (g *Gadget) finalizeLocked(proof *lib.FinalityProof) {
	if err := g.blocks.Finalize(proof.BlockHash); err != nil {
		// a conflict here means a supermajority signed across the finalized
		// boundary; surface loudly, never override
		g.log.Errorf("finalization refused for %s: %s",
			lib.BytesToTruncatedString(proof.BlockHash), err.Error())
		return
	}
	event := &lib.FinalizedEvent{
		BlockHash: proof.BlockHash,
		Height:    proof.Height,
		Round:     proof.Round,
		Proof:     proof,
	}
	select {
	case g.finalized <- event:
	default:
		g.log.Warn("finalized channel full, dropping event")
	}
	best := g.blocks.BestHead()
	g.metrics.UpdateHeads(best.Height, proof.Height)
	g.log.Infof("finalized block %s height=%d in round %d",
		lib.BytesToTruncatedString(proof.BlockHash), proof.Height, proof.Round)
	finished := g.round
	g.round++
	// tallies of the finished round and every stalled round before it are dead
	for r := range g.prevotes {
		if r <= finished {
			delete(g.prevotes, r)
		}
	}
	for r := range g.precommits {
		if r <= finished {
			delete(g.precommits, r)
		}
	}
	g.backoff.Reset()
	g.timeout = g.nextTimeout()
	g.metrics.UpdateRound(g.round)
	g.castPrevote()
}

// stage() resolves or creates the tally for a (round, kind) pair
func (g *Gadget) stage(round uint64, kind lib.VoteKind, validators *lib.ValidatorSet) *voteSet {
	sets := g.prevotes
	if kind == lib.VoteKindPrecommit {
		sets = g.precommits
	}
	if s, found := sets[round]; found {
		return s
	}
	s := newVoteSet(round, kind, validators)
	sets[round] = s
	return s
}

// emitEquivocation() surfaces an event without blocking vote processing
func (g *Gadget) emitEquivocation(event *lib.EquivocationEvent) {
	select {
	case g.equivocations <- event:
	default:
		g.log.Warn("equivocation channel full, dropping event")
	}
}
