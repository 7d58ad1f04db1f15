package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/clydemeng/evmrt/core"
	"github.com/clydemeng/evmrt/core/chain"
	"github.com/clydemeng/evmrt/core/runtime"
	"github.com/clydemeng/evmrt/core/state"
	"github.com/clydemeng/evmrt/core/vm"
	"github.com/clydemeng/evmrt/miner"
	"github.com/clydemeng/evmrt/tracing"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/naoina/toml"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var runCommand = cli.Command{
	Action:    runScenario,
	Name:      "run",
	Usage:     "executes and commits every transaction in order",
	ArgsUsage: "<scenario.toml>",
	Flags:     []cli.Flag{traceFlag},
}

var callCommand = cli.Command{
	Action:    callScenario,
	Name:      "call",
	Usage:     "dry-runs every transaction against the genesis state",
	ArgsUsage: "<scenario.toml>",
	Flags:     []cli.Flag{traceFlag},
}

var buildCommand = cli.Command{
	Action:    buildScenario,
	Name:      "build",
	Usage:     "fills a block with the transactions and finalizes it",
	ArgsUsage: "<scenario.toml>",
	Flags:     []cli.Flag{rewardFlag},
}

var dumpConfigCommand = cli.Command{
	Action:    dumpConfig,
	Name:      "dump-config",
	Usage:     "prints the scenario with defaults applied",
	ArgsUsage: "<scenario.toml>",
}

// session is a seeded in-memory environment for one scenario.
type session struct {
	sc    *scenario
	rt    *runtime.Runtime
	store *state.Store
	chain *chain.View
	cfg   vm.CfgEnv
}

func openSession(ctx *cli.Context) (*session, error) {
	if ctx.Args().Len() != 1 {
		return nil, errors.New("missing scenario file")
	}
	sc, err := loadScenario(ctx.Args().Get(0))
	if err != nil {
		return nil, err
	}
	cfg, err := sc.cfgEnv()
	if err != nil {
		return nil, err
	}
	rt, err := runtime.New(ctx.Int(workersFlag.Name))
	if err != nil {
		return nil, err
	}
	store, err := state.NewMemoryStore(rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := sc.seed(store); err != nil {
		rt.Close()
		return nil, err
	}
	return &session{sc: sc, rt: rt, store: store, chain: chain.NewMemoryView(), cfg: cfg}, nil
}

func (s *session) Close() { s.rt.Close() }

func runScenario(ctx *cli.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ex := core.NewExecutor(s.chain, s.store, s.cfg, nil)
	block := s.sc.blockEnv()
	table := newResultTable(os.Stdout)
	for i, tx := range s.sc.txEnvs() {
		res, trace, err := ex.Run(tx, block, nil)
		if err != nil {
			return errors.Wrapf(err, "transaction %d", i)
		}
		table.Append(resultRow(i, res))
		if ctx.Bool(traceFlag.Name) {
			printTrace(os.Stdout, i, trace)
		}
	}
	table.Render()
	fmt.Printf("state root: %s\n", s.store.Root())
	return nil
}

func callScenario(ctx *cli.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ex := core.NewExecutor(s.chain, s.store, s.cfg, nil)
	block := s.sc.blockEnv()
	table := newResultTable(os.Stdout)
	for i, tx := range s.sc.txEnvs() {
		res, _, trace, err := ex.GuaranteedDryRun(tx, block, nil)
		if err != nil {
			return errors.Wrapf(err, "transaction %d", i)
		}
		table.Append(resultRow(i, res))
		if ctx.Bool(traceFlag.Name) {
			printTrace(os.Stdout, i, trace)
		}
	}
	table.Render()
	return nil
}

func buildScenario(ctx *cli.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	reward, err := uint256.FromDecimal(ctx.String(rewardFlag.Name))
	if err != nil {
		if reward, err = uint256.FromHex(ctx.String(rewardFlag.Name)); err != nil {
			return errors.Wrap(err, "invalid reward")
		}
	}
	b := s.sc.Block
	parent := s.chain.InsertGenesis(b.GasLimit, s.store.Root())
	builder, err := core.NewBlockBuilder(s.chain, s.store, s.cfg, nil, parent, core.HeaderData{
		Coinbase:   &b.Coinbase,
		Timestamp:  &b.Timestamp,
		BaseFee:    toUint256(b.BaseFee),
		Difficulty: toUint256(b.Difficulty),
		MixHash:    b.Prevrandao,
	})
	if err != nil {
		return err
	}
	res, err := miner.FillBlock(builder, s.sc.txEnvs(), miner.Config{Etherbase: b.Coinbase, BlockReward: reward})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	h := res.Block.Header
	table.Append([]string{"parent", h.ParentHash.Hex()})
	table.Append([]string{"number", strconv.FormatUint(h.Number, 10)})
	table.Append([]string{"gas used", fmt.Sprintf("%d / %d", h.GasUsed, h.GasLimit)})
	table.Append([]string{"included", fmt.Sprint(res.Included)})
	table.Append([]string{"skipped", fmt.Sprint(res.Skipped)})
	table.Append([]string{"state root", s.store.Root().Hex()})
	table.Render()
	return nil
}

func dumpConfig(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return errors.New("missing scenario file")
	}
	sc, err := loadScenario(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	out, err := toml.Marshal(sc)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func newResultTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Status", "Gas Used", "Refund", "Logs", "Output", "Error"})
	return table
}

func resultRow(i int, res *vm.ExecutionResult) []string {
	row := []string{
		strconv.Itoa(i),
		res.Status.String(),
		strconv.FormatUint(res.GasUsed, 10),
		strconv.FormatUint(res.GasRefunded, 10),
		strconv.Itoa(len(res.Logs)),
		hexutil.Encode(res.Output),
		"",
	}
	if res.ContractAddress != nil {
		row[5] = res.ContractAddress.Hex()
	}
	if res.Err != nil {
		row[6] = res.Err.Error()
	}
	return row
}

func printTrace(w io.Writer, index int, trace *tracing.Trace) {
	fmt.Fprintf(w, "trace of transaction %d (%d events)\n", index, trace.Len())
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Depth", "Event", "PC", "Op", "Gas", "Cost", "Stack Top"})
	for _, ev := range trace.Events {
		row := []string{strconv.Itoa(ev.Level()), ev.Kind(), "", "", "", "", ""}
		if step, ok := ev.(*tracing.StepEvent); ok {
			row[2] = strconv.FormatUint(step.PC, 10)
			row[3] = step.Op.String()
			row[4] = strconv.FormatUint(step.Gas, 10)
			row[5] = strconv.FormatUint(step.Cost, 10)
			if step.StackTop != nil {
				row[6] = step.StackTop.Hex()
			}
		}
		table.Append(row)
	}
	table.Render()
}
