// Package cli wires the pushpatches subcommands: argument parsing,
// configuration loading, logging, and dispatch into the pipeline.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"pushpatches/internal/config"
)

// defaultNetTimeout bounds fetch and push.
const defaultNetTimeout = 5 * time.Minute

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	verbosity  int
	configPath string
	color      string
	dryRun     bool
	noReviewer bool
	noTrac     bool
	noFetch    bool
	remaining  []string
}

// Run is the main entry point. Returns the process exit code.
func Run(stdin io.Reader, out, errOut io.Writer, args []string, env map[string]string, sig <-chan os.Signal) int {
	opts, err := parseGlobalFlags(args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(out)

			return 0
		}

		fmt.Fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 2
	}

	o := NewIO(out, errOut, opts.color)

	if len(opts.remaining) == 0 {
		printUsage(out)

		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sig != nil {
		go func() {
			<-sig
			cancel()
		}()
	}

	logger := newLogger(errOut, opts.verbosity)

	command, cmdArgs := opts.remaining[0], opts.remaining[1:]

	app := &app{
		stdin:  stdin,
		io:     o,
		log:    logger,
		env:    env,
		global: opts,
	}

	var cmdErr error

	switch command {
	case "sample-config":
		cmdErr = app.cmdSampleConfig(cmdArgs)
	case "push":
		cmdErr = app.cmdPush(ctx, cmdArgs)
	case "start-review":
		cmdErr = app.cmdStartReview(ctx, cmdArgs)
	case "am":
		cmdErr = app.cmdAm(ctx, cmdArgs)
	case "help":
		printUsage(out)

		return 0
	default:
		fmt.Fprintln(errOut, "error: unknown command:", command)
		printUsage(errOut)

		return 2
	}

	if cmdErr != nil {
		o.Failf("error: %v", cmdErr)

		return 1
	}

	return 0
}

// app carries the state every subcommand needs.
type app struct {
	stdin  io.Reader
	io     *IO
	log    *logrus.Logger
	env    map[string]string
	global globalOptions
}

// loadConfig resolves the configuration for subcommands that need it.
func (a *app) loadConfig() (*config.Config, error) {
	return config.Load(a.global.configPath, a.env)
}

func parseGlobalFlags(args []string) (globalOptions, error) {
	var opts globalOptions

	flags := flag.NewFlagSet("pushpatches", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	// Stop at the subcommand; its own flag set handles the rest.
	flags.SetInterspersed(false)

	flags.CountVarP(&opts.verbosity, "verbose", "v", "more output; repeat for command traces")
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	flags.StringVar(&opts.color, "color", "auto", "color mode: auto, always or never")
	flags.BoolVarP(&opts.dryRun, "dry-run", "n", false, "stop before the real push")
	flags.BoolVar(&opts.noReviewer, "no-reviewer", false, "do not inject Reviewed-By trailers")
	flags.BoolVar(&opts.noTrac, "no-trac", false, "do not contact the ticket tracker")
	flags.BoolVar(&opts.noFetch, "no-fetch", false, "do not fetch the remote first")

	if err := flags.Parse(args); err != nil {
		return globalOptions{}, err
	}

	switch opts.color {
	case "auto", "always", "never":
	default:
		return globalOptions{}, fmt.Errorf("invalid --color mode: %q", opts.color)
	}

	opts.remaining = flags.Args()

	return opts, nil
}

// newLogger maps the -v count to a logrus level: warnings by default,
// info with -v, full command traces with -vv.
func newLogger(errOut io.Writer, verbosity int) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(errOut)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	switch {
	case verbosity <= 0:
		logger.SetLevel(logrus.WarnLevel)
	case verbosity == 1:
		logger.SetLevel(logrus.InfoLevel)
	default:
		logger.SetLevel(logrus.DebugLevel)
	}

	return logger
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `pushpatches - apply reviewed patches across release branches and push

Usage: pushpatches [options] <command> [args]

Options:
  -v, --verbose        More output; repeat for command traces
  -c, --config <file>  Config file (default ~/.config/pushpatches/config.yaml)
      --color <mode>   Color mode: auto, always or never
  -n, --dry-run        Stop before the real push
      --no-reviewer    Do not inject Reviewed-By trailers
      --no-trac        Do not contact the ticket tracker
      --no-fetch       Do not fetch the remote first

Commands:
  sample-config                     Print a sample configuration file
  push [patch|dir ...]              Apply patches across branches and push
  start-review [opts] <reviewer>    Assign a reviewer to tickets
  am [patch|dir ...]                Apply the patch stream to the dev tree`)
}
