package lib

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Jakiepham/chain/lib/crypto"
)

func TestMempoolFeeOrdering(t *testing.T) {
	pool := NewMempool(DefaultMempoolConfig())
	require.NoError(t, pool.AddTransaction([]byte("low"), 1))
	require.NoError(t, pool.AddTransaction([]byte("high"), 100))
	require.NoError(t, pool.AddTransaction([]byte("mid"), 50))
	ready := pool.Ready(10)
	require.Equal(t, [][]byte{[]byte("high"), []byte("mid"), []byte("low")}, ready)
	// the limit bounds the batch from the top
	require.Equal(t, [][]byte{[]byte("high")}, pool.Ready(1))
}

func TestMempoolDeduplication(t *testing.T) {
	pool := NewMempool(DefaultMempoolConfig())
	tx := []byte("transaction")
	require.NoError(t, pool.AddTransaction(tx, 5))
	err := pool.AddTransaction(tx, 5)
	require.ErrorContains(t, err, "already in the mempool")
	require.Equal(t, 1, pool.TxCount())
	require.True(t, pool.Contains(crypto.HashString(tx)))
}

func TestMempoolLimits(t *testing.T) {
	config := DefaultMempoolConfig()
	config.MaxTransactionCount = 10
	pool := NewMempool(config)
	// oversized individual transaction
	big := make([]byte, config.IndividualMaxTxSize+1)
	require.ErrorContains(t, pool.AddTransaction(big, 1), "size limit")
	// exceeding the count drops from the low-fee bottom
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.AddTransaction([]byte(fmt.Sprintf("tx-%d", i)), uint64(i)))
	}
	require.LessOrEqual(t, pool.TxCount(), 10)
	// the highest fee transaction survives the pruning
	require.True(t, pool.Contains(crypto.HashString([]byte("tx-19"))))
}

func TestMempoolRemoveAndClear(t *testing.T) {
	pool := NewMempool(DefaultMempoolConfig())
	txA, txB := []byte("a"), []byte("b")
	require.NoError(t, pool.AddTransaction(txA, 1))
	require.NoError(t, pool.AddTransaction(txB, 2))
	pool.Remove([][]byte{txA})
	require.False(t, pool.Contains(crypto.HashString(txA)))
	require.True(t, pool.Contains(crypto.HashString(txB)))
	require.Equal(t, len(txB), pool.TxsBytes())
	pool.Clear()
	require.Zero(t, pool.TxCount())
	require.Zero(t, pool.TxsBytes())
}
