// evmrun executes transactions from a TOML scenario against an in-memory
// state and prints the results.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of execution workers (0 = one per CPU)",
	}
	traceFlag = &cli.BoolFlag{
		Name:  "trace",
		Usage: "Print the opcode trace of every transaction",
	}
	rewardFlag = &cli.StringFlag{
		Name:  "reward",
		Usage: "Block reward paid to the coinbase, in wei (hex or decimal)",
		Value: "0",
	}
)

func main() {
	app := &cli.App{
		Name:  "evmrun",
		Usage: "execute EVM transactions from a scenario file",
		Flags: []cli.Flag{verbosityFlag, workersFlag},
		Before: func(ctx *cli.Context) error {
			lvl := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
			log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
			return nil
		},
		Commands: []*cli.Command{
			&runCommand,
			&callCommand,
			&buildCommand,
			&dumpConfigCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
