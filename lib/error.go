package lib

import (
	"fmt"
	"math"
)

// ErrorI is the typed error used throughout the node: every failure carries a
// stable code and the module it originated from so callers can branch on kind
// without string matching.
type ErrorI interface {
	Code() ErrorCode
	Module() ErrorModule
	error
}

var _ ErrorI = &Error{}

type ErrorCode uint32

type ErrorModule string

type Error struct {
	ECode   ErrorCode   `json:"code"`
	EModule ErrorModule `json:"module"`
	Msg     string      `json:"msg"`
}

func NewError(code ErrorCode, module ErrorModule, msg string) *Error {
	return &Error{ECode: code, EModule: module, Msg: msg}
}

// Code() returns the associated error code
func (p *Error) Code() ErrorCode { return p.ECode }

// Module() returns the module field
func (p *Error) Module() ErrorModule { return p.EModule }

// String() calls Error()
func (p *Error) String() string { return p.Error() }

// Error() returns a formatted string including module, code and message
func (p *Error) Error() string {
	return fmt.Sprintf("\nModule:  %s\nCode:    %d\nMessage: %s", p.EModule, p.ECode, p.Msg)
}

const (
	NoCode ErrorCode = math.MaxUint32

	// Main Module
	MainModule ErrorModule = "main"

	CodeJSONMarshal   ErrorCode = 1
	CodeJSONUnmarshal ErrorCode = 2
	CodeMarshal       ErrorCode = 3
	CodeUnmarshal     ErrorCode = 4
	CodeReadFile      ErrorCode = 5
	CodeWriteFile     ErrorCode = 6
	CodeInvalidConfig ErrorCode = 7
	CodePubKeyBytes   ErrorCode = 8
	CodeNewMultiKey   ErrorCode = 9

	// Chain Module
	ChainModule ErrorModule = "chain"

	CodeNilBlock          ErrorCode = 1
	CodeNilBlockHeader    ErrorCode = 2
	CodeUnknownParent     ErrorCode = 3
	CodeInvalidProof      ErrorCode = 4
	CodeBadSignature      ErrorCode = 5
	CodeStateMismatch     ErrorCode = 6
	CodeEquivocation      ErrorCode = 7
	CodeUnknownBlock      ErrorCode = 8
	CodeWrongHeight       ErrorCode = 9
	CodeWrongSlot         ErrorCode = 10
	CodeInvalidTxRoot     ErrorCode = 11
	CodeFinalityConflict  ErrorCode = 12
	CodeOrphanPoolFull    ErrorCode = 13
	CodeInvalidGenesis    ErrorCode = 14
	CodeNotDescendant     ErrorCode = 15
	CodeWrongLengthHash   ErrorCode = 16
	CodeEmptyProposerKey  ErrorCode = 17
	CodeEmptyElectionPrf  ErrorCode = 18
	CodeEmptyHeaderSig    ErrorCode = 19
	CodeOrphanExpired     ErrorCode = 20
	CodeExecutorFailure   ErrorCode = 21
	CodeBelowFinalized    ErrorCode = 22
	CodeDuplicateGenesis  ErrorCode = 23
	CodeHeaderSignPayload ErrorCode = 24

	// Consensus Module
	ConsensusModule ErrorModule = "consensus"

	CodeInvalidSlotDuration ErrorCode = 1
	CodeEmptyValidatorSet   ErrorCode = 2
	CodeInvalidEpochLength  ErrorCode = 3
	CodeNoEpochForSlot      ErrorCode = 4
	CodePoolFetchTimeout    ErrorCode = 5
	CodeValidatorNotInSet   ErrorCode = 6
	CodeInvalidValIndex     ErrorCode = 7
	CodeSigningFailed       ErrorCode = 8
	CodeNextEpochUnset      ErrorCode = 9
	CodeGenesisInFuture     ErrorCode = 10

	// Finality Module
	FinalityModule ErrorModule = "finality"

	CodeEmptyVote            ErrorCode = 1
	CodeDuplicateVote        ErrorCode = 2
	CodeVoteEquivocation     ErrorCode = 3
	CodeInvalidVoteSignature ErrorCode = 4
	CodeWrongRound           ErrorCode = 5
	CodeNoQuorum             ErrorCode = 6
	CodeAggregateSignature   ErrorCode = 7
	CodeUnableToAddSigner    ErrorCode = 8
	CodeInvalidVoteKind      ErrorCode = 9
	CodeVoteBelowFinalized   ErrorCode = 10
	CodeVoteHeightMismatch   ErrorCode = 11

	// Mempool Module
	MempoolModule ErrorModule = "mempool"

	CodeMaxTxSize        ErrorCode = 1
	CodeTxFoundInMempool ErrorCode = 2

	// Store Module
	StoreModule ErrorModule = "store"

	CodeStoreOpen  ErrorCode = 1
	CodeStoreRead  ErrorCode = 2
	CodeStoreWrite ErrorCode = 3
	CodeNotFound   ErrorCode = 4
)

// main module errors

func ErrJSONMarshal(err error) ErrorI {
	return NewError(CodeJSONMarshal, MainModule, fmt.Sprintf("jsonMarshal() failed with err: %s", err))
}

func ErrJSONUnmarshal(err error) ErrorI {
	return NewError(CodeJSONUnmarshal, MainModule, fmt.Sprintf("jsonUnmarshal() failed with err: %s", err))
}

func ErrMarshal(err error) ErrorI {
	return NewError(CodeMarshal, MainModule, fmt.Sprintf("marshal() failed with err: %s", err))
}

func ErrUnmarshal(err error) ErrorI {
	return NewError(CodeUnmarshal, MainModule, fmt.Sprintf("unmarshal() failed with err: %s", err))
}

func ErrReadFile(err error) ErrorI {
	return NewError(CodeReadFile, MainModule, fmt.Sprintf("os.ReadFile() failed with err: %s", err))
}

func ErrWriteFile(err error) ErrorI {
	return NewError(CodeWriteFile, MainModule, fmt.Sprintf("os.WriteFile() failed with err: %s", err))
}

func ErrInvalidConfig(reason string) ErrorI {
	return NewError(CodeInvalidConfig, MainModule, fmt.Sprintf("invalid config: %s", reason))
}

func ErrPubKeyFromBytes(err error) ErrorI {
	return NewError(CodePubKeyBytes, MainModule, fmt.Sprintf("publicKeyFromBytes() failed with err: %s", err))
}

func ErrNewMultiPubKey(err error) ErrorI {
	return NewError(CodeNewMultiKey, MainModule, fmt.Sprintf("newMultiPublicKey() failed with err: %s", err))
}

// chain module errors

func ErrNilBlock() ErrorI {
	return NewError(CodeNilBlock, ChainModule, "block is nil")
}

func ErrNilBlockHeader() ErrorI {
	return NewError(CodeNilBlockHeader, ChainModule, "block header is nil")
}

func ErrUnknownParent(parentHash []byte) ErrorI {
	return NewError(CodeUnknownParent, ChainModule, fmt.Sprintf("parent %s is not known", BytesToTruncatedString(parentHash)))
}

func ErrInvalidProof() ErrorI {
	return NewError(CodeInvalidProof, ChainModule, "election proof did not verify for the claimed slot and epoch")
}

func ErrBadSignature() ErrorI {
	return NewError(CodeBadSignature, ChainModule, "header signature does not match the proposer key")
}

func ErrStateMismatch(declared, computed []byte) ErrorI {
	return NewError(CodeStateMismatch, ChainModule,
		fmt.Sprintf("state root mismatch: declared %s computed %s", BytesToTruncatedString(declared), BytesToTruncatedString(computed)))
}

func ErrEquivocation(proposer []byte, slot uint64) ErrorI {
	return NewError(CodeEquivocation, ChainModule, fmt.Sprintf("proposer %s equivocated at slot %d", BytesToTruncatedString(proposer), slot))
}

func ErrUnknownBlock(hash []byte) ErrorI {
	return NewError(CodeUnknownBlock, ChainModule, fmt.Sprintf("block %s is not known", BytesToTruncatedString(hash)))
}

func ErrWrongHeight(expected, got uint64) ErrorI {
	return NewError(CodeWrongHeight, ChainModule, fmt.Sprintf("wrong height: expected %d got %d", expected, got))
}

func ErrWrongSlot(parentSlot, slot uint64) ErrorI {
	return NewError(CodeWrongSlot, ChainModule, fmt.Sprintf("slot %d does not advance past parent slot %d", slot, parentSlot))
}

func ErrInvalidTxRoot() ErrorI {
	return NewError(CodeInvalidTxRoot, ChainModule, "transaction root does not match the block body")
}

func ErrFinalityConflict(hash []byte) ErrorI {
	return NewError(CodeFinalityConflict, ChainModule,
		fmt.Sprintf("block %s conflicts with the finalized chain", BytesToTruncatedString(hash)))
}

func ErrOrphanPoolFull() ErrorI {
	return NewError(CodeOrphanPoolFull, ChainModule, "orphan pool limit reached")
}

func ErrInvalidGenesis(reason string) ErrorI {
	return NewError(CodeInvalidGenesis, ChainModule, fmt.Sprintf("invalid genesis: %s", reason))
}

func ErrWrongLengthHash() ErrorI {
	return NewError(CodeWrongLengthHash, ChainModule, "hash has the wrong length")
}

func ErrEmptyProposerKey() ErrorI {
	return NewError(CodeEmptyProposerKey, ChainModule, "proposer key is empty")
}

func ErrEmptyElectionProof() ErrorI {
	return NewError(CodeEmptyElectionPrf, ChainModule, "election proof is empty")
}

func ErrEmptyHeaderSignature() ErrorI {
	return NewError(CodeEmptyHeaderSig, ChainModule, "header signature is empty")
}

func ErrExecutorFailure(err error) ErrorI {
	return NewError(CodeExecutorFailure, ChainModule, fmt.Sprintf("state executor failed with err: %s", err))
}

func ErrBelowFinalized(height, finalized uint64) ErrorI {
	return NewError(CodeBelowFinalized, ChainModule, fmt.Sprintf("height %d is at or below the finalized height %d", height, finalized))
}

// consensus module errors

func ErrInvalidSlotDuration() ErrorI {
	return NewError(CodeInvalidSlotDuration, ConsensusModule, "slot duration must be positive")
}

func ErrEmptyValidatorSet() ErrorI {
	return NewError(CodeEmptyValidatorSet, ConsensusModule, "validator set is empty")
}

func ErrInvalidEpochLength() ErrorI {
	return NewError(CodeInvalidEpochLength, ConsensusModule, "epoch length must be positive")
}

func ErrNoEpochForSlot(slot uint64) ErrorI {
	return NewError(CodeNoEpochForSlot, ConsensusModule, fmt.Sprintf("no epoch state covers slot %d", slot))
}

func ErrPoolFetchTimeout() ErrorI {
	return NewError(CodePoolFetchTimeout, ConsensusModule, "transaction pool fetch exceeded the configured timeout")
}

func ErrValidatorNotInSet(publicKey []byte) ErrorI {
	return NewError(CodeValidatorNotInSet, ConsensusModule,
		fmt.Sprintf("validator %s not found in set", BytesToTruncatedString(publicKey)))
}

func ErrInvalidValidatorIndex() ErrorI {
	return NewError(CodeInvalidValIndex, ConsensusModule, "invalid validator index")
}

func ErrSigningFailed() ErrorI {
	return NewError(CodeSigningFailed, ConsensusModule, "signer returned an empty signature")
}

func ErrNextEpochUnset() ErrorI {
	return NewError(CodeNextEpochUnset, ConsensusModule, "next epoch state was not scheduled before the boundary")
}

// finality module errors

func ErrEmptyVote() ErrorI {
	return NewError(CodeEmptyVote, FinalityModule, "vote is empty")
}

func ErrDuplicateVote() ErrorI {
	return NewError(CodeDuplicateVote, FinalityModule, "duplicate vote")
}

func ErrVoteEquivocation(voter []byte, round uint64) ErrorI {
	return NewError(CodeVoteEquivocation, FinalityModule,
		fmt.Sprintf("voter %s equivocated in round %d", BytesToTruncatedString(voter), round))
}

func ErrInvalidVoteSignature() ErrorI {
	return NewError(CodeInvalidVoteSignature, FinalityModule, "vote signature did not verify")
}

func ErrWrongRound(expected, got uint64) ErrorI {
	return NewError(CodeWrongRound, FinalityModule, fmt.Sprintf("wrong round: expected %d got %d", expected, got))
}

func ErrNoQuorum() ErrorI {
	return NewError(CodeNoQuorum, FinalityModule, "no supermajority quorum")
}

func ErrAggregateSignature(err error) ErrorI {
	return NewError(CodeAggregateSignature, FinalityModule, fmt.Sprintf("aggregateSignature() failed with err: %s", err))
}

func ErrUnableToAddSigner(err error) ErrorI {
	return NewError(CodeUnableToAddSigner, FinalityModule, fmt.Sprintf("addSigner() failed with err: %s", err))
}

func ErrInvalidVoteKind() ErrorI {
	return NewError(CodeInvalidVoteKind, FinalityModule, "vote kind is not prevote or precommit")
}

func ErrVoteBelowFinalized(height, finalized uint64) ErrorI {
	return NewError(CodeVoteBelowFinalized, FinalityModule,
		fmt.Sprintf("vote target height %d is at or below the finalized height %d", height, finalized))
}

func ErrVoteHeightMismatch(expected, got uint64) ErrorI {
	return NewError(CodeVoteHeightMismatch, FinalityModule,
		fmt.Sprintf("vote height %d does not match the target block height %d", got, expected))
}

// mempool module errors

func ErrMaxTxSize() ErrorI {
	return NewError(CodeMaxTxSize, MempoolModule, "transaction exceeds the individual size limit")
}

func ErrTxFoundInMempool(hash string) ErrorI {
	return NewError(CodeTxFoundInMempool, MempoolModule, fmt.Sprintf("transaction %s already in the mempool", hash))
}

// store module errors

func ErrStoreOpen(err error) ErrorI {
	return NewError(CodeStoreOpen, StoreModule, fmt.Sprintf("store open failed with err: %s", err))
}

func ErrStoreRead(err error) ErrorI {
	return NewError(CodeStoreRead, StoreModule, fmt.Sprintf("store read failed with err: %s", err))
}

func ErrStoreWrite(err error) ErrorI {
	return NewError(CodeStoreWrite, StoreModule, fmt.Sprintf("store write failed with err: %s", err))
}

func ErrNotFound() ErrorI {
	return NewError(CodeNotFound, StoreModule, "not found")
}
