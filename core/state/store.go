// Package state implements the mutable world state that executions read from
// and commit into. It wraps a go-ethereum StateDB behind a single lock and
// adds checkpoints that survive Finalise.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/clydemeng/evmrt/core/runtime"
	"github.com/ethereum/go-ethereum/common"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrNoCheckpoint is returned when reverting to or discarding a checkpoint
// that is not (or no longer) held by the store.
var ErrNoCheckpoint = errors.New("no such checkpoint")

// Checkpoint is an opaque marker in the store's history.
type Checkpoint struct {
	id uint64
}

// ID returns the marker's identifier, unique per process.
func (c Checkpoint) ID() uint64 { return c.id }

// checkpointSeq yields unique, non-zero checkpoint ids. Zero is reserved for
// the invalid checkpoint.
var checkpointSeq uint64

type checkpointEntry struct {
	id uint64
	db *gethstate.StateDB
}

// Store is the shared world state. All mutations and snapshot captures are
// serialized by mu because a StateDB is not safe for concurrent use, even for
// reads. Writers additionally hold commitMu, which Commit keeps across the
// whole snapshot, execute and apply sequence.
type Store struct {
	rt *runtime.Runtime

	commitMu sync.Mutex

	mu          sync.Mutex
	db          *gethstate.StateDB
	checkpoints []checkpointEntry
}

// NewStore wraps db. The store takes ownership of db.
func NewStore(db *gethstate.StateDB, rt *runtime.Runtime) *Store {
	return &Store{db: db, rt: rt}
}

// NewMemoryStore returns an empty store backed by an in-memory trie database.
func NewMemoryStore(rt *runtime.Runtime) (*Store, error) {
	db, err := gethstate.New(types.EmptyRootHash, gethstate.NewDatabaseForTesting())
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory state")
	}
	return NewStore(db, rt), nil
}

// Runtime returns the execution context units of work on this store run on.
func (s *Store) Runtime() *runtime.Runtime { return s.rt }

// Snapshot captures a private copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{db: s.db.Copy()}
}

// Checkpoint records the current state so that it can later be restored with
// Revert.
func (s *Store) Checkpoint() (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Error(); err != nil {
		return Checkpoint{}, errors.Wrap(err, "checkpoint on failed state")
	}
	id := atomic.AddUint64(&checkpointSeq, 1)
	s.checkpoints = append(s.checkpoints, checkpointEntry{id: id, db: s.db.Copy()})
	return Checkpoint{id: id}, nil
}

func (s *Store) findCheckpoint(cp Checkpoint) int {
	for i := len(s.checkpoints) - 1; i >= 0; i-- {
		if s.checkpoints[i].id == cp.id {
			return i
		}
	}
	return -1
}

// Revert restores the state captured by cp. Checkpoints taken after cp are
// invalidated along with cp itself.
func (s *Store) Revert(cp Checkpoint) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findCheckpoint(cp)
	if i < 0 {
		return errors.Wrapf(ErrNoCheckpoint, "revert to %d", cp.id)
	}
	s.db = s.checkpoints[i].db
	s.checkpoints = s.checkpoints[:i]
	return nil
}

// Discard releases cp (and any checkpoint taken after it) without changing
// the current state.
func (s *Store) Discard(cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findCheckpoint(cp)
	if i < 0 {
		return errors.Wrapf(ErrNoCheckpoint, "discard %d", cp.id)
	}
	s.checkpoints = s.checkpoints[:i]
	return nil
}

// Commit computes a changeset with fn on a fresh snapshot and applies it. No
// other write reaches the store in between, so the changeset is never based
// on stale state. fn must not write to the store itself.
func (s *Store) Commit(fn func(snap *Snapshot) (*Changeset, error)) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	cs, err := fn(s.Snapshot())
	if err != nil {
		return err
	}
	return s.apply(cs)
}

// Apply commits a changeset. Destructions are applied first, then account
// records, then storage, each in ascending address order.
func (s *Store) Apply(cs *Changeset) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	return s.apply(cs)
}

func (s *Store) apply(cs *Changeset) error {
	if cs == nil {
		panic("state: apply of nil changeset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cs.Destructed.Cardinality() > 0 {
		for _, addr := range sortedAddresses(cs.Destructed.ToSlice()) {
			s.db.SelfDestruct(addr)
		}
		s.db.Finalise(true)
	}
	for _, addr := range sortedAddresses(mapKeys(cs.Accounts)) {
		s.writeAccount(addr, cs.Accounts[addr], BalanceChangeChangeset, NonceChangeChangeset)
	}
	for _, addr := range sortedAddresses(mapKeys(cs.Storage)) {
		slots := cs.Storage[addr]
		for _, slot := range sortedSlots(slots) {
			s.db.SetState(addr, slot, slots[slot])
		}
	}
	s.db.Finalise(true)

	if err := s.db.Error(); err != nil {
		return errors.Wrap(err, "apply changeset")
	}
	log.Trace("Applied changeset", "accounts", len(cs.Accounts), "storage", len(cs.Storage), "destructed", cs.Destructed.Cardinality())
	return nil
}

// ModifyAccount loads addr, lets fn update the record and writes it back.
// Missing accounts are presented as empty records.
func (s *Store) ModifyAccount(addr common.Address, fn func(*AccountInfo)) error {
	if fn == nil {
		panic("state: nil account modifier")
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	info := readAccount(s.db, addr)
	fn(info)
	if info.Balance == nil {
		info.Balance = new(uint256.Int)
	}
	if info.Code != nil {
		info.CodeHash = crypto.Keccak256Hash(info.Code)
	}
	s.writeAccount(addr, info, BalanceChangeReward, NonceChangeUnspecified)
	s.db.Finalise(true)
	return errors.Wrap(s.db.Error(), "modify account")
}

// InsertAccount seeds an account and its storage, e.g. from a genesis file.
func (s *Store) InsertAccount(addr common.Address, info *AccountInfo, storage map[common.Hash]common.Hash) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if info.Balance == nil {
		info.Balance = new(uint256.Int)
	}
	if info.Code != nil && info.CodeHash == (common.Hash{}) {
		info.CodeHash = crypto.Keccak256Hash(info.Code)
	}
	s.db.CreateAccount(addr)
	s.writeAccount(addr, info, BalanceChangeGenesis, NonceChangeGenesis)
	for _, slot := range sortedSlots(storage) {
		s.db.SetState(addr, slot, storage[slot])
	}
	s.db.Finalise(true)
	return errors.Wrap(s.db.Error(), "insert account")
}

// Account returns a copy of the current record for addr.
func (s *Store) Account(addr common.Address) *AccountInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readAccount(s.db, addr)
}

// StorageAt returns the current value of a storage slot.
func (s *Store) StorageAt(addr common.Address, slot common.Hash) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.GetState(addr, slot)
}

// Root computes the current state root. Empty accounts are pruned.
func (s *Store) Root() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.IntermediateRoot(true)
}

func (s *Store) writeAccount(addr common.Address, info *AccountInfo, br BalanceChangeReason, nr NonceChangeReason) {
	bal := info.Balance
	if bal == nil {
		bal = new(uint256.Int)
	}
	if !s.db.GetBalance(addr).Eq(bal) || !s.db.Exist(addr) {
		s.db.SetBalance(addr, bal, br.Hook())
	}
	if s.db.GetNonce(addr) != info.Nonce {
		s.db.SetNonce(addr, info.Nonce, nr.Hook())
	}
	// Code is only ever installed here; clearing it goes through destruction.
	if len(info.Code) > 0 && s.db.GetCodeHash(addr) != info.CodeHash {
		s.db.SetCode(addr, info.Code)
	}
}

func readAccount(db *gethstate.StateDB, addr common.Address) *AccountInfo {
	info := &AccountInfo{
		Balance:  new(uint256.Int).Set(db.GetBalance(addr)),
		Nonce:    db.GetNonce(addr),
		CodeHash: types.EmptyCodeHash,
	}
	if db.Exist(addr) {
		info.CodeHash = db.GetCodeHash(addr)
		info.Code = common.CopyBytes(db.GetCode(addr))
	}
	return info
}

func mapKeys[V any](m map[common.Address]V) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot is a private copy of the store's state. Reads never block the
// store. A snapshot belongs to one goroutine at a time.
type Snapshot struct {
	db *gethstate.StateDB
}

// Account returns the record for addr as of the snapshot.
func (s *Snapshot) Account(addr common.Address) *AccountInfo {
	return readAccount(s.db, addr)
}

// Storage returns a slot value as of the snapshot.
func (s *Snapshot) Storage(addr common.Address, slot common.Hash) common.Hash {
	return s.db.GetState(addr, slot)
}

// StateDB exposes the snapshot's backing state for interpreters. Writes to it
// never reach the store.
func (s *Snapshot) StateDB() *gethstate.StateDB {
	return s.db
}
