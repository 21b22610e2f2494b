package lib

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Jakiepham/chain/lib/crypto"
)

func TestBlockHeaderCheck(t *testing.T) {
	valid := testHeader(t)
	tests := []struct {
		name   string
		detail string
		header func() *BlockHeader
		error  string
	}{
		{
			name:   "nil header",
			detail: "a nil header is rejected before any field access",
			header: func() *BlockHeader { return nil },
			error:  "header is nil",
		},
		{
			name:   "short parent hash",
			detail: "every hash field must be exactly the digest size",
			header: func() *BlockHeader { h := *valid; h.ParentHash = []byte("short"); return &h },
			error:  "wrong length",
		},
		{
			name:   "genesis height",
			detail: "height zero is reserved for the genesis block",
			header: func() *BlockHeader { h := *valid; h.Height = 0; return &h },
			error:  "wrong height",
		},
		{
			name:   "missing proposer",
			detail: "a block without an author identity cannot be verified",
			header: func() *BlockHeader { h := *valid; h.ProposerKey = nil; return &h },
			error:  "proposer key is empty",
		},
		{
			name:   "missing election proof",
			detail: "the authorship claim must be carried in the header",
			header: func() *BlockHeader { h := *valid; h.ElectionProof = nil; return &h },
			error:  "election proof is empty",
		},
		{
			name:   "missing signature",
			detail: "an unsigned header is rejected before signature verification",
			header: func() *BlockHeader { h := *valid; h.Signature = nil; return &h },
			error:  "header signature is empty",
		},
		{
			name:   "valid header",
			detail: "a fully populated header passes",
			header: func() *BlockHeader { return valid },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.header().Check()
			if test.error != "" {
				require.ErrorContains(t, err, test.error, test.detail)
				return
			}
			require.NoError(t, err, test.detail)
		})
	}
}

func TestBlockCheckTxRoot(t *testing.T) {
	header := testHeader(t)
	txs := [][]byte{[]byte("a"), []byte("b")}
	header.TxRoot = crypto.MerkleRoot(txs)
	// a body matching the committed root passes
	require.NoError(t, (&Block{Header: header, Transactions: txs}).Check())
	// a tampered body no longer matches the root
	err := (&Block{Header: header, Transactions: [][]byte{[]byte("a"), []byte("c")}}).Check()
	require.ErrorContains(t, err, "transaction root")
}

func TestBlockHashDeterminism(t *testing.T) {
	block := &Block{Header: testHeader(t)}
	h1, err := block.Hash()
	require.NoError(t, err)
	h2, err := block.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, crypto.HashSize)
	// changing any header field changes the identity
	other := *block.Header
	other.Slot++
	h3, err := (&Block{Header: &other}).Hash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestHeaderSignBytesExcludeSignature(t *testing.T) {
	header := testHeader(t)
	unsigned, err := header.SignBytes()
	require.NoError(t, err)
	// the payload is independent of the signature field
	header.Signature = []byte("different signature")
	resigned, err := header.SignBytes()
	require.NoError(t, err)
	require.Equal(t, unsigned, resigned)
}

func testHeader(t *testing.T) *BlockHeader {
	t.Helper()
	key, err := crypto.NewBLSPrivateKey()
	require.NoError(t, err)
	return &BlockHeader{
		ParentHash:    crypto.Hash([]byte("parent")),
		Height:        1,
		Slot:          1,
		Epoch:         0,
		StateRoot:     crypto.Hash([]byte("state")),
		TxRoot:        crypto.MerkleRoot(nil),
		ProposerKey:   key.PublicKey().Bytes(),
		ElectionProof: []byte("proof"),
		Signature:     []byte("signature"),
	}
}
