package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// TxEnv carries the fields of a transaction an interpreter needs to execute
// it. A nil To denotes contract creation; a nil Nonce means the sender's
// current state nonce is used.
type TxEnv struct {
	// Hash identifies the transaction in emitted logs. It may be zero.
	Hash           common.Hash
	Caller         common.Address
	To             *common.Address
	Value          *uint256.Int
	Data           []byte
	GasLimit       uint64
	GasPrice       *uint256.Int // fee cap for dynamic-fee transactions
	GasPriorityFee *uint256.Int // nil for legacy pricing
	Nonce          *uint64
	AccessList     types.AccessList
}

// IsCreate reports whether the transaction deploys a contract.
func (tx *TxEnv) IsCreate() bool { return tx.To == nil }

// BlockEnv is the block context a transaction executes in.
type BlockEnv struct {
	Number     uint64
	Coinbase   common.Address
	Timestamp  uint64
	GasLimit   uint64
	BaseFee    *uint256.Int
	Difficulty *uint256.Int
	// Prevrandao is the beacon randomness, required once the chain has merged.
	Prevrandao *common.Hash
}

// CfgEnv holds the chain-level execution settings.
type CfgEnv struct {
	ChainConfig *params.ChainConfig
	Spec        SpecID
	// DisableBalanceCheck funds the caller as needed instead of failing the
	// transaction for insufficient balance.
	DisableBalanceCheck bool
}

// NewCfgEnv derives the active spec from chainConfig at the given height.
func NewCfgEnv(chainConfig *params.ChainConfig, number, timestamp uint64) CfgEnv {
	return CfgEnv{ChainConfig: chainConfig, Spec: SpecIDFor(chainConfig, number, timestamp)}
}

func bigOrZero(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
