package archive

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
	"github.com/btcsuite/goleveldb/leveldb/util"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/mmr"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/ulogger"
)

// key prefixes. Heights are encoded big-endian so lexicographic iteration
// equals height order.
var (
	prefixBlock     = []byte("b")
	prefixBlockHash = []byte("H")
	prefixHashIndex = []byte("h")
	prefixSnapshot  = []byte("s")
)

type LevelDB struct {
	mu     sync.RWMutex
	logger ulogger.Logger
	db     *leveldb.DB

	// hashMMR accumulates every archived block hash. Rebuilt from the
	// hash column on open.
	hashMMR *mmr.MMR
}

// New opens or creates the archive at the given directory.
func New(logger ulogger.Logger, path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, errors.NewStorageError("opening archive at %s", path, err)
	}

	return newStore(logger, db)
}

// NewInMemory creates an archive backed by memory only. Used by tests and
// throwaway regtest nodes.
func NewInMemory(logger ulogger.Logger) (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), &opt.Options{})
	if err != nil {
		return nil, errors.NewStorageError("opening in-memory archive", err)
	}

	return newStore(logger, db)
}

func newStore(logger ulogger.Logger, db *leveldb.DB) (*LevelDB, error) {
	s := &LevelDB{
		logger:  logger,
		db:      db,
		hashMMR: mmr.New(),
	}

	if err := s.rebuildHashMMR(); err != nil {
		_ = db.Close()

		return nil, err
	}

	if !s.Empty() {
		logger.Infof("[archive] opened with %d blocks, tip height %d", s.hashMMR.LeafCount(), s.Height())
	}

	return s, nil
}

// rebuildHashMMR replays the hash column in height order. Height keys are
// big-endian so the iteration order is the append order.
func (s *LevelDB) rebuildHashMMR() error {
	iter := s.db.NewIterator(util.BytesPrefix(prefixBlockHash), nil)
	defer iter.Release()

	var expected uint64

	for iter.Next() {
		height := binary.BigEndian.Uint64(iter.Key()[len(prefixBlockHash):])
		if height != expected {
			return errors.NewCorruptStateError("archive hash column has a gap at height %d", expected)
		}

		hash, err := digest.FromBytes(iter.Value())
		if err != nil {
			return errors.NewCorruptStateError("archive hash at height %d unreadable", height, err)
		}

		s.hashMMR.AddLeaf(hash)
		expected++
	}

	if err := iter.Error(); err != nil {
		return errors.NewStorageError("scanning archive hash column", err)
	}

	return nil
}

func (s *LevelDB) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.hashMMR.LeafCount()
	if count == 0 {
		return 0
	}

	return count - 1
}

func (s *LevelDB) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.hashMMR.LeafCount() == 0
}

func (s *LevelDB) AppendBlock(ctx context.Context, block *model.Block, accumulatorSnapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStorageError("append aborted", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	height := s.hashMMR.LeafCount()
	if block.Header.Height != height {
		return errors.NewStorageError("block height %d does not extend archive tip %d", block.Header.Height, height)
	}

	blockBytes, err := block.Bytes()
	if err != nil {
		return err
	}

	hash := block.Hash()

	batch := new(leveldb.Batch)
	batch.Put(blockKey(height), blockBytes)
	batch.Put(blockHashKey(height), hash[:])
	batch.Put(hashIndexKey(hash), heightValue(height))
	batch.Put(snapshotKey(height), accumulatorSnapshot)

	if err := s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("writing block %s at height %d", hash, height, err)
	}

	s.hashMMR.AddLeaf(hash)

	return nil
}

func (s *LevelDB) GetBlockByHeight(ctx context.Context, height uint64) (*model.Block, error) {
	b, err := s.get(ctx, blockKey(height))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBlockNotFoundError("no block at height %d", height)
		}

		return nil, err
	}

	return model.NewBlockFromBytes(b)
}

func (s *LevelDB) GetBlockByHash(ctx context.Context, hash digest.Digest) (*model.Block, error) {
	height, err := s.GetHeightByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	return s.GetBlockByHeight(ctx, height)
}

func (s *LevelDB) GetHeightByHash(ctx context.Context, hash digest.Digest) (uint64, error) {
	b, err := s.get(ctx, hashIndexKey(hash))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return 0, errors.NewBlockNotFoundError("no block with hash %s", hash)
		}

		return 0, err
	}

	if len(b) != 8 {
		return 0, errors.NewCorruptStateError("hash index entry for %s malformed", hash)
	}

	return binary.BigEndian.Uint64(b), nil
}

func (s *LevelDB) GetAccumulatorSnapshot(ctx context.Context, height uint64) ([]byte, error) {
	b, err := s.get(ctx, snapshotKey(height))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewNotFoundError("no accumulator snapshot at height %d", height)
		}

		return nil, err
	}

	return b, nil
}

func (s *LevelDB) BlockHashRoot() digest.Digest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.hashMMR.Root()
}

func (s *LevelDB) ProveBlockHash(ctx context.Context, height uint64) (*mmr.MembershipProof, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStorageError("prove aborted", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	proof, err := s.hashMMR.ProveLeaf(height)
	if err != nil {
		return nil, errors.NewNotFoundError("no archived block at height %d", height, err)
	}

	return proof, nil
}

func (s *LevelDB) RollbackTo(ctx context.Context, height uint64) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStorageError("rollback aborted", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.hashMMR.LeafCount()
	if count == 0 || height >= count-1 {
		return nil
	}

	batch := new(leveldb.Batch)

	for h := height + 1; h < count; h++ {
		hashBytes, err := s.db.Get(blockHashKey(h), nil)
		if err != nil {
			return errors.NewStorageError("reading hash for doomed height %d", h, err)
		}

		hash, err := digest.FromBytes(hashBytes)
		if err != nil {
			return errors.NewCorruptStateError("archive hash at height %d unreadable", h, err)
		}

		batch.Delete(blockKey(h))
		batch.Delete(blockHashKey(h))
		batch.Delete(hashIndexKey(hash))
		batch.Delete(snapshotKey(h))
	}

	if err := s.db.Write(batch, nil); err != nil {
		return errors.NewStorageError("rolling archive back to height %d", height, err)
	}

	if err := s.hashMMR.TruncateToLeaves(height + 1); err != nil {
		return errors.NewCorruptStateError("truncating block hash accumulator", err)
	}

	s.logger.Warnf("[archive] rolled back %d blocks to height %d", count-1-height, height)

	return nil
}

func (s *LevelDB) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.NewStorageError("closing archive", err)
	}

	return nil
}

func (s *LevelDB) get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewStorageError("read aborted", err)
	}

	b, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.NewNotFoundError("key not present")
		}

		return nil, errors.NewStorageError("reading archive", err)
	}

	return b, nil
}

func blockKey(height uint64) []byte {
	return append(append([]byte{}, prefixBlock...), heightValue(height)...)
}

func blockHashKey(height uint64) []byte {
	return append(append([]byte{}, prefixBlockHash...), heightValue(height)...)
}

func hashIndexKey(hash digest.Digest) []byte {
	return append(append([]byte{}, prefixHashIndex...), hash[:]...)
}

func snapshotKey(height uint64) []byte {
	return append(append([]byte{}, prefixSnapshot...), heightValue(height)...)
}

func heightValue(height uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, height)

	return b
}
