package lib

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Jakiepham/chain/lib/crypto"
)

func TestVoteSignAndVerify(t *testing.T) {
	set, keys := testValidatorSet(t, 1)
	target := crypto.Hash([]byte("block"))
	vote, err := NewSignedVote(1, VoteKindPrevote, target, 5, keys[0])
	require.NoError(t, err)
	require.NoError(t, vote.Check())
	entry, err := set.GetValidator(keys[0].PublicKey().Bytes())
	require.NoError(t, err)
	payload, err := vote.SignBytes()
	require.NoError(t, err)
	require.True(t, entry.PublicKey.VerifyBytes(payload, vote.Signature))
	// the payload excludes the voter, so two voters on the same target sign
	// identical bytes
	other, keyErr := crypto.NewBLSPrivateKey()
	require.NoError(t, keyErr)
	otherVote, err := NewSignedVote(1, VoteKindPrevote, target, 5, other)
	require.NoError(t, err)
	otherPayload, err := otherVote.SignBytes()
	require.NoError(t, err)
	require.Equal(t, payload, otherPayload)
}

func TestVoteCheck(t *testing.T) {
	_, keys := testValidatorSet(t, 1)
	valid, err := NewSignedVote(1, VoteKindPrecommit, crypto.Hash([]byte("block")), 5, keys[0])
	require.NoError(t, err)
	tests := []struct {
		name   string
		detail string
		vote   func() *Vote
		error  string
	}{
		{
			name:   "nil vote",
			detail: "a nil vote is rejected outright",
			vote:   func() *Vote { return nil },
			error:  "vote is empty",
		},
		{
			name:   "unknown kind",
			detail: "only the two round stages are legal vote kinds",
			vote:   func() *Vote { v := *valid; v.Kind = 9; return &v },
			error:  "not prevote or precommit",
		},
		{
			name:   "short target hash",
			detail: "the target must be a full digest",
			vote:   func() *Vote { v := *valid; v.BlockHash = []byte("short"); return &v },
			error:  "wrong length",
		},
		{
			name:   "missing signature",
			detail: "an unsigned vote carries no weight",
			vote:   func() *Vote { v := *valid; v.Signature = nil; return &v },
			error:  "vote is empty",
		},
		{
			name:   "valid vote",
			detail: "a complete signed vote passes",
			vote:   func() *Vote { return valid },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.vote().Check()
			if test.error != "" {
				require.ErrorContains(t, err, test.error, test.detail)
				return
			}
			require.NoError(t, err, test.detail)
		})
	}
}

func TestFinalityProofCheck(t *testing.T) {
	set, keys := testValidatorSet(t, 4) // power 10 each, quorum 27
	target := crypto.Hash([]byte("block"))
	buildProof := func(signers []int) *FinalityProof {
		multiKey := set.MultiKey.Copy()
		for _, i := range signers {
			vote, err := NewSignedVote(2, VoteKindPrecommit, target, 7, keys[i])
			require.NoError(t, err)
			require.NoError(t, multiKey.AddSigner(vote.Signature, i))
		}
		signature, err := multiKey.AggregateSignatures()
		require.NoError(t, err)
		return &FinalityProof{Round: 2, BlockHash: target, Height: 7, Signature: signature, Bitmap: multiKey.Bitmap()}
	}
	t.Run("supermajority verifies", func(t *testing.T) {
		require.NoError(t, buildProof([]int{0, 1, 2}).Check(set))
	})
	t.Run("all signers verify", func(t *testing.T) {
		require.NoError(t, buildProof([]int{0, 1, 2, 3}).Check(set))
	})
	t.Run("below quorum is rejected", func(t *testing.T) {
		require.ErrorContains(t, buildProof([]int{0, 1}).Check(set), "quorum")
	})
	t.Run("tampered target is rejected", func(t *testing.T) {
		proof := buildProof([]int{0, 1, 2})
		proof.BlockHash = crypto.Hash([]byte("other block"))
		require.ErrorContains(t, proof.Check(set), "signature")
	})
	t.Run("empty proof is rejected", func(t *testing.T) {
		require.ErrorContains(t, (&FinalityProof{}).Check(set), "quorum")
	})
}
