package cli

import (
	"context"
	"io"

	flag "github.com/spf13/pflag"

	"pushpatches/internal/git"
	"pushpatches/internal/push"
)

const pushHelp = `Usage: pushpatches [options] push [push-options] [patch|dir ...]

Apply the patches (or every *.patch in the configured patchdir) across the
branches selected by the tickets' milestone, show the resulting ranges, and
push after confirmation.

Push options:
  --branch <name>     Push to this branch instead of milestone resolution
                      (repeatable, order preserved)
  --reviewer <name>   Use this reviewer instead of the tickets' reviewer
                      (repeatable)`

func (a *app) cmdPush(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("push", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	branches := flags.StringArray("branch", nil, "target branch (repeatable)")
	reviewers := flags.StringArray("reviewer", nil, "reviewer (repeatable)")
	help := flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *help {
		a.io.Println(pushHelp)

		return nil
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	tracker, err := a.dialTracker(cfg, false)
	if err != nil {
		return err
	}

	runner := &git.Runner{
		Dir:     cfg.Repository,
		Log:     a.log,
		Timeout: defaultNetTimeout,
		Color:   a.global.color,
	}

	prompt, closePrompt := a.newPrompt()
	defer closePrompt()

	publisher := &push.Publisher{
		Config:  cfg,
		Git:     runner,
		Tracker: tracker,
		UI:      a.io,
		Log:     a.log,
		Prompt:  prompt,
		Opts: push.Options{
			Patches:    flags.Args(),
			Branches:   *branches,
			Reviewers:  *reviewers,
			NoReviewer: a.global.noReviewer,
			NoFetch:    a.global.noFetch,
			DryRun:     a.global.dryRun,
		},
	}

	return publisher.Publish(ctx)
}
