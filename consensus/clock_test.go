package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Jakiepham/chain/lib"
)

func TestSlotClockMapping(t *testing.T) {
	genesis := time.UnixMilli(1_000_000)
	config := lib.DefaultConsensusConfig()
	config.SlotTimeMS = 1000
	clock, err := NewSlotClock(genesis.UnixMilli(), config, lib.NewNullLogger())
	require.NoError(t, err)
	tests := []struct {
		name   string
		detail string
		at     time.Time
		slot   uint64
	}{
		{
			name:   "before genesis",
			detail: "pre-genesis time clamps to slot zero",
			at:     genesis.Add(-time.Hour),
			slot:   0,
		},
		{
			name:   "at genesis",
			detail: "slot zero begins exactly at the genesis time",
			at:     genesis,
			slot:   0,
		},
		{
			name:   "inside a slot",
			detail: "any instant within the window maps to the same slot",
			at:     genesis.Add(2500 * time.Millisecond),
			slot:   2,
		},
		{
			name:   "on a boundary",
			detail: "a boundary instant belongs to the slot it opens",
			at:     genesis.Add(3 * time.Second),
			slot:   3,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.slot, clock.SlotAt(test.at), test.detail)
		})
	}
	// SlotStart is the inverse of SlotAt on boundaries
	require.Equal(t, genesis.Add(7*time.Second), clock.SlotStart(7))
	require.Equal(t, uint64(7), clock.SlotAt(clock.SlotStart(7)))
}

func TestSlotClockRejectsBadDuration(t *testing.T) {
	config := lib.DefaultConsensusConfig()
	config.SlotTimeMS = 0
	_, err := NewSlotClock(0, config, lib.NewNullLogger())
	require.ErrorContains(t, err, "slot duration")
}
