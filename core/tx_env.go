package core

import (
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// TransactionToTxEnv converts a signed transaction into the environment an
// interpreter executes, recovering the sender with signer.
func TransactionToTxEnv(tx *types.Transaction, signer types.Signer) (*vm.TxEnv, error) {
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, errors.Wrap(err, "recover sender")
	}
	nonce := tx.Nonce()
	env := &vm.TxEnv{
		Hash:       tx.Hash(),
		Caller:     from,
		To:         tx.To(),
		Value:      uint256.MustFromBig(tx.Value()),
		Data:       tx.Data(),
		GasLimit:   tx.Gas(),
		Nonce:      &nonce,
		AccessList: tx.AccessList(),
	}
	switch tx.Type() {
	case types.LegacyTxType, types.AccessListTxType:
		env.GasPrice = uint256.MustFromBig(tx.GasPrice())
	default:
		env.GasPrice = uint256.MustFromBig(tx.GasFeeCap())
		env.GasPriorityFee = uint256.MustFromBig(tx.GasTipCap())
	}
	return env, nil
}
