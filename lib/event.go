package lib

/*
	Events surfaced by the consensus core to external collaborators. The core
	detects protocol violations and finality transitions; punishment and
	persistence belong to whoever consumes these.
*/

// EquivocationKind names what was double-signed
type EquivocationKind uint32

const (
	EquivocationKindProposal EquivocationKind = 1 // same proposer, same slot, different block
	EquivocationKindVote     EquivocationKind = 2 // same voter, same round and kind, different target
)

// EquivocationEvent is a reportable record of a validator signing two
// conflicting items. The offending items remain in consideration as forks or
// are ignored as votes; the record exists for accountability logic outside
// this core.
type EquivocationEvent struct {
	Kind       EquivocationKind `json:"kind"`
	Offender   []byte           `json:"offender"`
	Slot       uint64           `json:"slot"`  // set for proposal equivocations
	Round      uint64           `json:"round"` // set for vote equivocations
	FirstHash  []byte           `json:"firstHash"`
	SecondHash []byte           `json:"secondHash"`
}

// FinalizedEvent announces an irreversible block. Consumed by the transaction
// pool (to prune included transactions) and any external persistence layer.
type FinalizedEvent struct {
	BlockHash []byte         `json:"blockHash"`
	Height    uint64         `json:"height"`
	Round     uint64         `json:"round"`
	Proof     *FinalityProof `json:"proof"`
}
