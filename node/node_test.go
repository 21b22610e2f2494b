package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
)

func TestNodeConstruction(t *testing.T) {
	n, _ := testNode(t)
	// before any slot activity both heads sit on genesis
	best, finalized := n.BestHead(), n.FinalizedHead()
	require.Equal(t, uint64(0), best.Height)
	require.Equal(t, best.Hash, finalized.Hash)
	// the transaction ingress feeds the pool
	require.NoError(t, n.OnTransaction([]byte("payment"), 5))
	require.ErrorContains(t, n.OnTransaction([]byte("payment"), 5), "already in the mempool")
}

func TestNodeRejectsInvalidConfig(t *testing.T) {
	config := testConfig()
	config.SlotTimeMS = 0
	key, err := crypto.NewBLSPrivateKey()
	require.NoError(t, err)
	_, e := New(config, key, testGenesis(t, key), nil, lib.NewNullLogger())
	require.ErrorContains(t, e, "slot duration")
}

func TestNodeRejectsInvalidGenesis(t *testing.T) {
	key, err := crypto.NewBLSPrivateKey()
	require.NoError(t, err)
	_, e := New(testConfig(), key, &lib.Genesis{}, nil, lib.NewNullLogger())
	require.ErrorContains(t, e, "validator set is empty")
}

func TestNodeStartStop(t *testing.T) {
	n, _ := testNode(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// every component starts and shuts down cleanly on cancellation
	require.NoError(t, n.Start(ctx))
}

func testNode(t *testing.T) (*Node, crypto.PrivateKeyI) {
	t.Helper()
	key, err := crypto.NewBLSPrivateKey()
	require.NoError(t, err)
	n, e := New(testConfig(), key, testGenesis(t, key), nil, lib.NewNullLogger())
	require.NoError(t, e)
	return n, key
}

func testConfig() lib.Config {
	config := lib.DefaultConfig()
	config.StoreConfig.InMemory = true
	return config
}

// testGenesis() builds a single-validator genesis anchored in the recent past
func testGenesis(t *testing.T, key crypto.PrivateKeyI) *lib.Genesis {
	t.Helper()
	return &lib.Genesis{
		GenesisTimeUnixMilli: time.Now().Add(-time.Minute).UnixMilli(),
		Seed:                 crypto.HashString([]byte("seed")),
		Validators: []lib.GenesisValidator{{
			PublicKey:   key.PublicKey().String(),
			VotingPower: 10,
		}},
	}
}
