package state

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// AccountInfo is the basic account record: balance, nonce and code.
type AccountInfo struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
}

// Copy returns a deep copy of the record.
func (a *AccountInfo) Copy() *AccountInfo {
	cpy := &AccountInfo{Nonce: a.Nonce, CodeHash: a.CodeHash}
	if a.Balance != nil {
		cpy.Balance = new(uint256.Int).Set(a.Balance)
	}
	if a.Code != nil {
		cpy.Code = common.CopyBytes(a.Code)
	}
	return cpy
}

// IsEmpty reports whether the account is empty in the EIP-161 sense.
func (a *AccountInfo) IsEmpty() bool {
	return (a.Balance == nil || a.Balance.IsZero()) && a.Nonce == 0 &&
		(a.CodeHash == (common.Hash{}) || a.CodeHash == types.EmptyCodeHash)
}

// Changeset is the net effect of one execution: the final record of every
// touched account, the final value of every written slot and the accounts
// that were destroyed. It is produced by an interpreter and only reaches the
// store through Store.Apply.
type Changeset struct {
	Accounts   map[common.Address]*AccountInfo
	Storage    map[common.Address]map[common.Hash]common.Hash
	Destructed mapset.Set[common.Address]
}

// NewChangeset returns an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{
		Accounts:   make(map[common.Address]*AccountInfo),
		Storage:    make(map[common.Address]map[common.Hash]common.Hash),
		Destructed: mapset.NewThreadUnsafeSet[common.Address](),
	}
}

// SetAccount records the final state of addr.
func (c *Changeset) SetAccount(addr common.Address, info *AccountInfo) {
	if info.CodeHash == (common.Hash{}) {
		if len(info.Code) == 0 {
			info.CodeHash = types.EmptyCodeHash
		} else {
			info.CodeHash = crypto.Keccak256Hash(info.Code)
		}
	}
	c.Accounts[addr] = info
}

// SetStorage records the final value of a storage slot.
func (c *Changeset) SetStorage(addr common.Address, slot, value common.Hash) {
	slots, ok := c.Storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		c.Storage[addr] = slots
	}
	slots[slot] = value
}

// Destruct marks addr as destroyed. Pending account and storage entries for
// it are dropped.
func (c *Changeset) Destruct(addr common.Address) {
	c.Destructed.Add(addr)
	delete(c.Accounts, addr)
	delete(c.Storage, addr)
}

// IsEmpty reports whether applying c would be a no-op.
func (c *Changeset) IsEmpty() bool {
	return len(c.Accounts) == 0 && len(c.Storage) == 0 && c.Destructed.Cardinality() == 0
}

// Addresses returns every address the changeset touches in ascending order.
func (c *Changeset) Addresses() []common.Address {
	seen := c.Destructed.Clone()
	for addr := range c.Accounts {
		seen.Add(addr)
	}
	for addr := range c.Storage {
		seen.Add(addr)
	}
	return sortedAddresses(seen.ToSlice())
}

func sortedAddresses(addrs []common.Address) []common.Address {
	slices.SortFunc(addrs, func(a, b common.Address) int { return a.Cmp(b) })
	return addrs
}

func sortedSlots(slots map[common.Hash]common.Hash) []common.Hash {
	keys := make([]common.Hash, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b common.Hash) int { return a.Cmp(b) })
	return keys
}
