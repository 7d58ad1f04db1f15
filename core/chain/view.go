// Package chain exposes read access to canonical blocks and headers.
package chain

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// ErrUnknownBlock is returned when a header or block is not in the database.
var ErrUnknownBlock = errors.New("unknown block")

const headerCacheLimit = 512

// Blockchain is the read-only view of the canonical chain consulted during
// execution, most notably for the BLOCKHASH opcode.
type Blockchain interface {
	HeaderByNumber(number uint64) (*types.Header, error)
	HeaderByHash(hash common.Hash) (*types.Header, error)
	BlockByNumber(number uint64) (*types.Block, error)
	BlockByHash(hash common.Hash) (*types.Block, error)
}

// View implements Blockchain on top of a key-value database using the
// go-ethereum raw accessors. Headers are cached by hash.
type View struct {
	db      ethdb.Database
	headers *lru.Cache // hash -> *types.Header

	mu sync.RWMutex // guards canonical writes against concurrent lookups
}

// NewView wraps db. It never writes to db unless InsertBlock is called.
func NewView(db ethdb.Database) *View {
	cache, err := lru.New(headerCacheLimit)
	if err != nil {
		panic(err) // only fails on non-positive size
	}
	return &View{db: db, headers: cache}
}

// NewMemoryView returns a view backed by a fresh in-memory database.
func NewMemoryView() *View {
	return NewView(rawdb.NewMemoryDatabase())
}

// InsertBlock stores block and marks it canonical for its height.
func (v *View) InsertBlock(block *types.Block) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rawdb.WriteBlock(v.db, block)
	rawdb.WriteCanonicalHash(v.db, block.Hash(), block.NumberU64())
	v.headers.Add(block.Hash(), block.Header())
}

// InsertGenesis stores a minimal genesis block carrying the given header
// fields and returns its header.
func (v *View) InsertGenesis(gasLimit uint64, root common.Hash) *types.Header {
	header := &types.Header{
		Number:     new(big.Int),
		GasLimit:   gasLimit,
		Root:       root,
		Difficulty: new(big.Int),
		BaseFee:    new(big.Int),
	}
	v.InsertBlock(types.NewBlockWithHeader(header))
	return header
}

func (v *View) HeaderByHash(hash common.Hash) (*types.Header, error) {
	if h, ok := v.headers.Get(hash); ok {
		return h.(*types.Header), nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	number := rawdb.ReadHeaderNumber(v.db, hash)
	if number == nil {
		return nil, errors.Wrapf(ErrUnknownBlock, "hash %x", hash)
	}
	header := rawdb.ReadHeader(v.db, hash, *number)
	if header == nil {
		return nil, errors.Wrapf(ErrUnknownBlock, "hash %x", hash)
	}
	v.headers.Add(hash, header)
	return header, nil
}

func (v *View) HeaderByNumber(number uint64) (*types.Header, error) {
	v.mu.RLock()
	hash := rawdb.ReadCanonicalHash(v.db, number)
	v.mu.RUnlock()
	if hash == (common.Hash{}) {
		return nil, errors.Wrapf(ErrUnknownBlock, "number %d", number)
	}
	return v.HeaderByHash(hash)
}

func (v *View) BlockByHash(hash common.Hash) (*types.Block, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	number := rawdb.ReadHeaderNumber(v.db, hash)
	if number == nil {
		return nil, errors.Wrapf(ErrUnknownBlock, "hash %x", hash)
	}
	block := rawdb.ReadBlock(v.db, hash, *number)
	if block == nil {
		return nil, errors.Wrapf(ErrUnknownBlock, "hash %x", hash)
	}
	return block, nil
}

func (v *View) BlockByNumber(number uint64) (*types.Block, error) {
	v.mu.RLock()
	hash := rawdb.ReadCanonicalHash(v.db, number)
	v.mu.RUnlock()
	if hash == (common.Hash{}) {
		return nil, errors.Wrapf(ErrUnknownBlock, "number %d", number)
	}
	return v.BlockByHash(hash)
}

// BlockHash resolves a canonical block hash by number, returning the zero
// hash for unknown heights. Its signature matches vm.GetHashFunc.
func BlockHash(bc Blockchain) func(uint64) common.Hash {
	return func(number uint64) common.Hash {
		header, err := bc.HeaderByNumber(number)
		if err != nil {
			return common.Hash{}
		}
		return header.Hash()
	}
}
