package lib

import (
	"container/list"
	"sync"

	"github.com/Jakiepham/chain/lib/crypto"
)

/*
	An in-memory, fee-prioritized pool of pending transactions. The consensus
	core only consumes the TxPool interface; this implementation is the default
	collaborator wired by the node.
*/

var _ TxPool = &FeeMempool{}

// FeeMempool orders pending transactions from the highest fee to the lowest
// and bounds both the transaction count and the collective byte size
type FeeMempool struct {
	l        sync.RWMutex
	hashMap  map[string]struct{} // O(1) de-duplication
	queue    *list.List          // MempoolTx ordered by descending fee
	byHash   map[string]*list.Element
	count    int
	txsBytes int
	config   MempoolConfig
}

// MempoolTx is a wrapper over transaction bytes that carries the offered fee
type MempoolTx struct {
	Tx  []byte
	Fee uint64
}

// NewMempool() creates a new FeeMempool instance
func NewMempool(config MempoolConfig) *FeeMempool {
	if config.DropPercentage == 0 {
		config.DropPercentage = DefaultMempoolConfig().DropPercentage
	}
	return &FeeMempool{
		hashMap: make(map[string]struct{}),
		queue:   list.New(),
		byHash:  make(map[string]*list.Element),
		config:  config,
	}
}

// AddTransaction() inserts a new unconfirmed transaction in fee order,
// dropping from the bottom of the queue when limits are exceeded
func (f *FeeMempool) AddTransaction(tx []byte, fee uint64) ErrorI {
	f.l.Lock()
	defer f.l.Unlock()
	if uint32(len(tx)) > f.config.IndividualMaxTxSize {
		return ErrMaxTxSize()
	}
	hash := crypto.HashString(tx)
	if _, found := f.hashMap[hash]; found {
		return ErrTxFoundInMempool(hash)
	}
	f.insert(MempoolTx{Tx: tx, Fee: fee}, hash)
	// if limits are exceeded, drop a configured percentage from the bottom
	for uint32(f.count) > f.config.MaxTransactionCount || uint64(f.txsBytes) > f.config.MaxTotalBytes {
		f.dropBottom(f.config.DropPercentage)
	}
	return nil
}

// Ready() returns up to 'limit' transactions ordered by descending fee
func (f *FeeMempool) Ready(limit int) (txs [][]byte) {
	f.l.RLock()
	defer f.l.RUnlock()
	for e := f.queue.Front(); e != nil && len(txs) < limit; e = e.Next() {
		txs = append(txs, e.Value.(MempoolTx).Tx)
	}
	return
}

// Remove() deletes transactions from the pool by their raw bytes
func (f *FeeMempool) Remove(txs [][]byte) {
	f.l.Lock()
	defer f.l.Unlock()
	for _, tx := range txs {
		f.remove(crypto.HashString(tx))
	}
}

// Contains() checks if a transaction with the given hash exists in the pool
func (f *FeeMempool) Contains(hash string) bool {
	f.l.RLock()
	defer f.l.RUnlock()
	_, contains := f.hashMap[hash]
	return contains
}

// TxCount() returns the current number of transactions in the pool
func (f *FeeMempool) TxCount() int {
	f.l.RLock()
	defer f.l.RUnlock()
	return f.count
}

// TxsBytes() returns the collective size in bytes of the pooled transactions
func (f *FeeMempool) TxsBytes() int {
	f.l.RLock()
	defer f.l.RUnlock()
	return f.txsBytes
}

// Clear() empties the pool and resets its state
func (f *FeeMempool) Clear() {
	f.l.Lock()
	defer f.l.Unlock()
	f.hashMap = make(map[string]struct{})
	f.byHash = make(map[string]*list.Element)
	f.queue = list.New()
	f.count, f.txsBytes = 0, 0
}

// insert() places the tx before the first lower-fee entry, preserving arrival
// order among equal fees
func (f *FeeMempool) insert(tx MempoolTx, hash string) {
	var el *list.Element
	for e := f.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(MempoolTx).Fee < tx.Fee {
			el = f.queue.InsertBefore(tx, e)
			break
		}
	}
	if el == nil {
		el = f.queue.PushBack(tx)
	}
	f.hashMap[hash] = struct{}{}
	f.byHash[hash] = el
	f.count++
	f.txsBytes += len(tx.Tx)
}

// remove() deletes a single transaction by hash if present
func (f *FeeMempool) remove(hash string) {
	el, found := f.byHash[hash]
	if !found {
		return
	}
	tx := el.Value.(MempoolTx)
	f.queue.Remove(el)
	delete(f.byHash, hash)
	delete(f.hashMap, hash)
	f.count--
	f.txsBytes -= len(tx.Tx)
}

// dropBottom() removes 'percent' % of the pool from the low-fee end
func (f *FeeMempool) dropBottom(percent int) {
	drop := int(Uint64Percentage(uint64(f.count), uint64(percent)))
	if drop == 0 {
		drop = 1
	}
	for i := 0; i < drop; i++ {
		back := f.queue.Back()
		if back == nil {
			return
		}
		f.remove(crypto.HashString(back.Value.(MempoolTx).Tx))
	}
}
