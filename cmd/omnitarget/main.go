// omnitarget feeds standard input into a log target and runs a target's
// processors over files left behind by earlier runs.
//
// Usage:
//
//	omnitarget pipe --config target.yaml [--severity warning]
//	omnitarget sweep --config target.yaml
//	omnitarget version
//
// Exit codes:
//
//	0: success
//	1: the command failed
//	2: bad arguments or configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/wayneeseguin/omnitarget/pkg/target"
)

// Set with -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)".
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:     "omnitarget",
		Usage:    "write to and maintain omnitarget log targets",
		Version:  fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Commands: createCommands(),
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "omnitarget: %v\n", err)
		var te *target.Error
		if errors.As(err, &te) && te.Kind == target.KindConfiguration {
			return 2
		}
		var ue *usageError
		if errors.As(err, &ue) {
			return 2
		}
		return 1
	}
	return 0
}
