// Command labctl evaluates a lab report from the command line and optionally
// asks the model for a diagnostic narrative.
//
//	labctl risks --hemoglobin 11 --tsh 6.2
//	labctl analyze --input report.yaml --json
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		if !errors.Is(err, errDiagnosisFailed) {
			fmt.Fprintln(os.Stderr, "labctl:", err)
		}
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "labctl",
		Usage: "Flag lab report risks and generate a diagnosis report",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rules",
				Sources: cli.EnvVars("RULES_FILE"),
				Usage:   "YAML rule file replacing the built-in rules",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log diagnostics to stderr",
			},
		},
		Commands: []*cli.Command{
			newRisksCommand(),
			newAnalyzeCommand(),
		},
	}
}
