package store

import (
	"encoding/binary"
	"errors"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/Jakiepham/chain/lib"
)

/*
	The block store persists the finalized spine only. The fork tree and its
	tentative branches live in memory; once the gadget proves a block
	irreversible it is written here together with its finality proof, indexed
	by both hash and height. The store is append-only in normal operation.
*/

var (
	blockPrefix  = []byte("b/") // hash -> block
	heightPrefix = []byte("h/") // big-endian height -> hash
	proofPrefix  = []byte("p/") // big-endian height -> finality proof
	latestKey    = []byte("latest")
)

// BlockStore is a badger-backed archive of finalized blocks and their proofs
type BlockStore struct {
	db  *badger.DB
	log lib.LoggerI
}

// New() opens (or creates) the store under the configured data directory
func New(config lib.StoreConfig, log lib.LoggerI) (*BlockStore, lib.ErrorI) {
	path := filepath.Join(config.DataDirPath, config.DBName)
	options := badger.DefaultOptions(path).WithInMemory(config.InMemory).WithLoggingLevel(badger.ERROR)
	if config.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, lib.ErrStoreOpen(err)
	}
	return &BlockStore{db: db, log: log}, nil
}

// IndexFinalized() writes one finalized block with its proof atomically
func (s *BlockStore) IndexFinalized(block *lib.Block, proof *lib.FinalityProof) lib.ErrorI {
	hash, err := block.Hash()
	if err != nil {
		return err
	}
	blockBytes, err := lib.Marshal(block)
	if err != nil {
		return err
	}
	proofBytes, err := lib.Marshal(proof)
	if err != nil {
		return err
	}
	height := formatHeight(block.Header.Height)
	if e := s.db.Update(func(txn *badger.Txn) error {
		if er := txn.Set(append(blockPrefix, hash...), blockBytes); er != nil {
			return er
		}
		if er := txn.Set(append(heightPrefix, height...), hash); er != nil {
			return er
		}
		if er := txn.Set(append(proofPrefix, height...), proofBytes); er != nil {
			return er
		}
		return txn.Set(latestKey, height)
	}); e != nil {
		return lib.ErrStoreWrite(e)
	}
	return nil
}

// GetByHash() loads a finalized block by its hash
func (s *BlockStore) GetByHash(hash []byte) (*lib.Block, lib.ErrorI) {
	bz, err := s.get(append(blockPrefix, hash...))
	if err != nil {
		return nil, err
	}
	block := new(lib.Block)
	if err = lib.Unmarshal(bz, block); err != nil {
		return nil, err
	}
	return block, nil
}

// GetByHeight() loads a finalized block by its height
func (s *BlockStore) GetByHeight(height uint64) (*lib.Block, lib.ErrorI) {
	hash, err := s.get(append(heightPrefix, formatHeight(height)...))
	if err != nil {
		return nil, err
	}
	return s.GetByHash(hash)
}

// GetProof() loads the finality proof recorded for a height
func (s *BlockStore) GetProof(height uint64) (*lib.FinalityProof, lib.ErrorI) {
	bz, err := s.get(append(proofPrefix, formatHeight(height)...))
	if err != nil {
		return nil, err
	}
	proof := new(lib.FinalityProof)
	if err = lib.Unmarshal(bz, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

// LatestHeight() returns the height of the newest finalized block on disk;
// zero for a fresh store
func (s *BlockStore) LatestHeight() (uint64, lib.ErrorI) {
	bz, err := s.get(latestKey)
	if err != nil {
		if err.Code() == lib.CodeNotFound {
			return 0, nil
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(bz), nil
}

// Close() releases the underlying database
func (s *BlockStore) Close() lib.ErrorI {
	if err := s.db.Close(); err != nil {
		return lib.ErrStoreWrite(err)
	}
	return nil
}

// get() reads one key, mapping a miss to the store's not-found error
func (s *BlockStore) get(key []byte) ([]byte, lib.ErrorI) {
	var value []byte
	if err := s.db.View(func(txn *badger.Txn) error {
		item, er := txn.Get(key)
		if er != nil {
			return er
		}
		value, er = item.ValueCopy(nil)
		return er
	}); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, lib.ErrNotFound()
		}
		return nil, lib.ErrStoreRead(err)
	}
	return value, nil
}

// formatHeight() encodes a height so lexicographic and numeric order agree
func formatHeight(height uint64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, height)
	return bz
}
