package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/wayneeseguin/omnitarget/pkg/target"
	"github.com/wayneeseguin/omnitarget/pkg/types"
)

// shutdownTimeout bounds the drain at the end of a command.
const shutdownTimeout = 30 * time.Second

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func createCommands() []*cli.Command {
	return []*cli.Command{
		createPipeCommand(),
		createSweepCommand(),
		{
			Name:  "version",
			Usage: "print the version",
			Action: func(_ context.Context, cmd *cli.Command) error {
				_, err := fmt.Fprintf(cmd.Root().Writer, "omnitarget %s (commit: %s)\n", Version, GitCommit)
				return err
			},
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "target configuration file (.yaml, .yml or .json)",
		Required: true,
	}
}

func createPipeCommand() *cli.Command {
	return &cli.Command{
		Name:  "pipe",
		Usage: "log every line of standard input",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "severity",
				Aliases: []string{"s"},
				Usage:   "severity of every line",
				Value:   "none",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			sev, err := types.ParseSeverity(cmd.String("severity"))
			if err != nil {
				return &usageError{msg: err.Error()}
			}
			cfg, err := target.LoadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			return cmdPipe(ctx, cfg, sev, reader(cmd))
		},
	}
}

func createSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "run the configured processors over existing rotated files",
		Flags: []cli.Flag{configFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := target.LoadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			swept, err := cmdSweep(ctx, cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "%d processor run(s)\n", swept)
			return err
		},
	}
}

func reader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

// cmdPipe logs lines from r until EOF or until ctx is cancelled. EOF drains
// the queue; cancellation discards what is still queued.
func cmdPipe(ctx context.Context, cfg target.Config, sev types.Severity, r io.Reader) error {
	t, err := target.New(cfg, target.WithErrorHandler(target.StderrErrorHandler))
	if err != nil {
		return err
	}

	lines := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			if err := t.LogText(sev, sc.Text()); err != nil {
				lines <- err
				return
			}
		}
		lines <- sc.Err()
	}()

	drain := true
	select {
	case err = <-lines:
	case <-ctx.Done():
		drain = false
	}
	return finish(t, drain, err)
}

// cmdSweep starts a target that runs every configured processor over the
// files already in its directory, then shuts it down. It returns how many
// processor runs there were.
func cmdSweep(_ context.Context, cfg target.Config) (uint64, error) {
	cfg.StartupSweep = true
	cfg.AsyncProcessors = false
	cfg.MaintenanceSchedule = ""
	for i := range cfg.Processors {
		cfg.Processors[i].RunsOnStartup = true
	}
	t, err := target.New(cfg, target.WithErrorHandler(target.StderrErrorHandler))
	if err != nil {
		return 0, err
	}
	runs := t.Metrics().ProcessorRuns
	return runs, finish(t, true, nil)
}

func finish(t *target.Target, drain bool, err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := t.Shutdown(ctx, drain); serr != nil && err == nil {
		err = serr
	}
	if derr := t.Dispose(); derr != nil && err == nil {
		err = derr
	}
	return err
}
