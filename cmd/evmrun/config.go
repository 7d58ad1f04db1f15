package main

import (
	"os"

	"github.com/clydemeng/evmrt/core/state"
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// scenario is the TOML description of a chain, its genesis accounts and the
// transactions to execute.
type scenario struct {
	Chain        chainConfig
	Block        blockConfig
	Accounts     []accountConfig
	Transactions []txConfig
}

type chainConfig struct {
	Preset string // "merged" or "london"
}

type blockConfig struct {
	Number     uint64
	GasLimit   uint64
	Coinbase   common.Address
	Timestamp  uint64
	BaseFee    *hexutil.Big
	Difficulty *hexutil.Big
	Prevrandao *common.Hash
}

type accountConfig struct {
	Address common.Address
	Balance *hexutil.Big
	Nonce   uint64
	Code    hexutil.Bytes
	Storage map[string]string
}

type txConfig struct {
	From        common.Address
	To          *common.Address
	Value       *hexutil.Big
	Data        hexutil.Bytes
	GasLimit    uint64
	GasPrice    *hexutil.Big
	PriorityFee *hexutil.Big
	Nonce       *uint64
}

func defaultScenario() scenario {
	return scenario{
		Chain: chainConfig{Preset: "merged"},
		Block: blockConfig{Number: 1, GasLimit: 30_000_000},
	}
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	return parseScenario(data)
}

func parseScenario(data []byte) (*scenario, error) {
	sc := defaultScenario()
	if err := toml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrap(err, "parse scenario")
	}
	if _, err := sc.chainConfig(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *scenario) chainConfig() (*params.ChainConfig, error) {
	switch sc.Chain.Preset {
	case "", "merged":
		return params.MergedTestChainConfig, nil
	case "london":
		return params.AllEthashProtocolChanges, nil
	}
	return nil, errors.Errorf("unknown chain preset %q", sc.Chain.Preset)
}

func (sc *scenario) cfgEnv() (vm.CfgEnv, error) {
	cc, err := sc.chainConfig()
	if err != nil {
		return vm.CfgEnv{}, err
	}
	return vm.NewCfgEnv(cc, sc.Block.Number, sc.Block.Timestamp), nil
}

func (sc *scenario) blockEnv() *vm.BlockEnv {
	return &vm.BlockEnv{
		Number:     sc.Block.Number,
		Coinbase:   sc.Block.Coinbase,
		Timestamp:  sc.Block.Timestamp,
		GasLimit:   sc.Block.GasLimit,
		BaseFee:    toUint256(sc.Block.BaseFee),
		Difficulty: toUint256(sc.Block.Difficulty),
		Prevrandao: sc.Block.Prevrandao,
	}
}

func (sc *scenario) txEnvs() []*vm.TxEnv {
	txs := make([]*vm.TxEnv, 0, len(sc.Transactions))
	for _, tc := range sc.Transactions {
		tx := &vm.TxEnv{
			Caller:   tc.From,
			To:       tc.To,
			Value:    toUint256(tc.Value),
			Data:     tc.Data,
			GasLimit: tc.GasLimit,
			GasPrice: toUint256(tc.GasPrice),
			Nonce:    tc.Nonce,
		}
		if tc.PriorityFee != nil {
			tx.GasPriorityFee = toUint256(tc.PriorityFee)
		}
		txs = append(txs, tx)
	}
	return txs
}

// seed writes the genesis accounts into store.
func (sc *scenario) seed(store *state.Store) error {
	for _, acc := range sc.Accounts {
		storage := make(map[common.Hash]common.Hash, len(acc.Storage))
		for k, v := range acc.Storage {
			storage[common.HexToHash(k)] = common.HexToHash(v)
		}
		info := &state.AccountInfo{Balance: toUint256(acc.Balance), Nonce: acc.Nonce}
		if len(acc.Code) > 0 {
			info.Code = acc.Code
		}
		if err := store.InsertAccount(acc.Address, info, storage); err != nil {
			return errors.Wrapf(err, "seed %s", acc.Address)
		}
	}
	return nil
}

func toUint256(b *hexutil.Big) *uint256.Int {
	if b == nil {
		return new(uint256.Int)
	}
	return uint256.MustFromBig(b.ToInt())
}
