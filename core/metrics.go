package core

import "github.com/ethereum/go-ethereum/metrics"

var (
	executeTimer   = metrics.NewRegisteredTimer("evmrt/executor/execute", nil)
	dryRunCounter  = metrics.NewRegisteredCounter("evmrt/executor/dryrun", nil)
	commitCounter  = metrics.NewRegisteredCounter("evmrt/executor/commit", nil)
	prevrandaoMiss = metrics.NewRegisteredCounter("evmrt/executor/missingprevrandao", nil)

	builderTxMeter     = metrics.NewRegisteredMeter("evmrt/builder/txs", nil)
	builderRejectCount = metrics.NewRegisteredCounter("evmrt/builder/gaslimit/rejected", nil)
	builderGasGauge    = metrics.NewRegisteredGauge("evmrt/builder/gasused", nil)
)
