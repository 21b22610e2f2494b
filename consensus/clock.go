package consensus

import (
	"context"
	"time"

	"github.com/Jakiepham/chain/lib"
)

/*
	The slot clock maps wall time onto the global slot grid: slot s spans
	[genesis + s*slotTime, genesis + (s+1)*slotTime). The run loop fires once
	per boundary with the slot that just began; when the process stalls past
	one or more boundaries the missed slots are skipped, never replayed.
*/

// SlotClock derives slot numbers from the genesis time and a fixed slot length
type SlotClock struct {
	genesisTime time.Time
	slotTime    time.Duration
	log         lib.LoggerI
}

// NewSlotClock() builds a clock from the genesis document and configuration
func NewSlotClock(genesisUnixMilli int64, config lib.ConsensusConfig, log lib.LoggerI) (*SlotClock, lib.ErrorI) {
	if config.SlotTimeMS <= 0 {
		return nil, lib.ErrInvalidSlotDuration()
	}
	return &SlotClock{
		genesisTime: time.UnixMilli(genesisUnixMilli),
		slotTime:    time.Duration(config.SlotTimeMS) * time.Millisecond,
		log:         log,
	}, nil
}

// SlotAt() returns the slot containing the given instant; times before genesis
// map to slot zero
func (c *SlotClock) SlotAt(t time.Time) uint64 {
	if !t.After(c.genesisTime) {
		return 0
	}
	return uint64(t.Sub(c.genesisTime) / c.slotTime)
}

// CurrentSlot() returns the slot containing now
func (c *SlotClock) CurrentSlot() uint64 { return c.SlotAt(time.Now()) }

// SlotStart() returns the instant the given slot begins
func (c *SlotClock) SlotStart(slot uint64) time.Time {
	return c.genesisTime.Add(time.Duration(slot) * c.slotTime)
}

// Run() emits each slot number at its boundary onto 'out' until the context is
// cancelled. A slow consumer or a stalled process skips forward to the current
// slot rather than delivering a backlog.
func (c *SlotClock) Run(ctx context.Context, out chan<- uint64) {
	timer := lib.NewTimer()
	defer lib.StopTimer(timer)
	for {
		next := c.CurrentSlot() + 1
		lib.ResetTimer(timer, time.Until(c.SlotStart(next)))
		select {
		case <-timer.C:
			slot := c.CurrentSlot()
			if slot > next {
				c.log.Warnf("slot clock stalled, skipping to slot %d", slot)
			}
			select {
			case out <- slot:
			default:
				c.log.Warnf("slot %d dropped, consumer busy", slot)
			}
		case <-ctx.Done():
			return
		}
	}
}
