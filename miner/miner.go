// Package miner fills candidate blocks from an ordered list of transactions.
package miner

import (
	"github.com/clydemeng/evmrt/core"
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Config is the block production configuration.
type Config struct {
	Etherbase   common.Address // receives the block reward
	BlockReward *uint256.Int   // nil or zero pays no reward
}

// Result describes a filled block.
type Result struct {
	Block    *core.PendingBlock
	Included []int // candidate indices, in block order
	Skipped  []int // candidates that did not fit the remaining gas
}

// FillBlock offers every candidate to builder in order, skipping those that
// exceed the remaining block gas, then finalizes with the configured reward.
// Any other failure aborts the builder.
func FillBlock(builder *core.BlockBuilder, candidates []*vm.TxEnv, cfg Config) (*Result, error) {
	res := new(Result)
	for i, tx := range candidates {
		if builder.GasRemaining() < params.TxGas {
			res.Skipped = append(res.Skipped, i)
			continue
		}
		_, _, err := builder.AddTransaction(tx, nil)
		switch {
		case err == nil:
			res.Included = append(res.Included, i)
		case errors.Is(err, core.ErrExceedsBlockGasLimit):
			log.Trace("Skipping transaction over block gas", "index", i, "gas", tx.GasLimit, "remaining", builder.GasRemaining())
			res.Skipped = append(res.Skipped, i)
		default:
			if abortErr := builder.Abort(); abortErr != nil {
				log.Error("Failed to abort block", "err", abortErr)
			}
			return nil, errors.Wrapf(err, "candidate %d", i)
		}
	}

	var rewards []core.Reward
	if cfg.BlockReward != nil && !cfg.BlockReward.IsZero() {
		rewards = append(rewards, core.Reward{Address: cfg.Etherbase, Amount: cfg.BlockReward})
	}
	block, err := builder.Finalize(rewards)
	if err != nil {
		return nil, err
	}
	res.Block = block
	log.Info("Filled block", "number", block.Header.Number, "included", len(res.Included), "skipped", len(res.Skipped), "gasUsed", block.Header.GasUsed)
	return res, nil
}
