package main

import (
	"bytes"
	"testing"

	"github.com/clydemeng/evmrt/core"
	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/runtime"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"
)

const testScenario = `
[Chain]
Preset = "merged"

[Block]
Number = 1
GasLimit = 100000
Coinbase = "0x00000000000000000000000000000000000f00d0"
Prevrandao = "0x0000000000000000000000000000000000000000000000000000000000000001"

[[Accounts]]
Address = "0x00000000000000000000000000000000000a11ce"
Balance = "0xde0b6b3a7640000"

[[Accounts]]
Address = "0x000000000000000000000000000000000000c0de"
Code = "0x3615600c57600035600055005b60005460005260206000f3"
[Accounts.Storage]
0x00 = "0x2a"

[[Transactions]]
From = "0x00000000000000000000000000000000000a11ce"
To = "0x0000000000000000000000000000000000000b0b"
Value = "0x5"
GasLimit = 21000

[[Transactions]]
From = "0x00000000000000000000000000000000000a11ce"
To = "0x000000000000000000000000000000000000c0de"
GasLimit = 50000
`

func TestParseScenario(t *testing.T) {
	sc, err := parseScenario([]byte(testScenario))
	require.NoError(t, err)

	require.Equal(t, uint64(100000), sc.Block.GasLimit)
	require.Len(t, sc.Accounts, 2)
	require.Equal(t, "0x2a", sc.Accounts[1].Storage["0x00"])
	require.Len(t, sc.Transactions, 2)

	cfg, err := sc.cfgEnv()
	require.NoError(t, err)
	require.Equal(t, params.MergedTestChainConfig, cfg.ChainConfig)
	require.True(t, cfg.Spec.IsEnabledIn(vm.Merge))

	txs := sc.txEnvs()
	require.Equal(t, uint64(5), txs[0].Value.Uint64())
	require.Nil(t, txs[0].GasPriorityFee)
	require.NotNil(t, sc.blockEnv().Prevrandao)
}

func TestParseScenarioBadPreset(t *testing.T) {
	_, err := parseScenario([]byte("[Chain]\nPreset = \"nope\"\n"))
	require.Error(t, err)
}

// TestScenarioExecution seeds a store from the scenario and runs its
// transactions the way the run command does.
func TestScenarioExecution(t *testing.T) {
	sc, err := parseScenario([]byte(testScenario))
	require.NoError(t, err)
	cfg, err := sc.cfgEnv()
	require.NoError(t, err)

	rt, err := runtime.New(1)
	require.NoError(t, err)
	defer rt.Close()
	store, err := state.NewMemoryStore(rt)
	require.NoError(t, err)
	require.NoError(t, sc.seed(store))

	ex := core.NewExecutor(chain.NewMemoryView(), store, cfg, nil)
	var outputs [][]byte
	for _, tx := range sc.txEnvs() {
		res, trace, err := ex.Run(tx, sc.blockEnv(), nil)
		require.NoError(t, err)
		require.True(t, res.Succeeded())
		outputs = append(outputs, res.Output)

		var buf bytes.Buffer
		printTrace(&buf, 0, trace)
		require.Contains(t, buf.String(), "call_end")
	}
	require.Equal(t, common.HexToHash("0x2a").Bytes(), outputs[1])
	require.Equal(t, uint64(5), store.Account(common.HexToAddress("0x0b0b")).Balance.Uint64())

	row := resultRow(1, &vm.ExecutionResult{Status: vm.StatusRevert, Output: []byte{1}})
	require.Equal(t, "revert", row[1])
	require.Equal(t, "0x01", row[5])
}
