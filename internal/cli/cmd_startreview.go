package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"pushpatches/internal/config"
	"pushpatches/internal/review"
	"pushpatches/internal/trac"
)

var (
	errNoTickets        = errors.New("no tickets given (use --ticket)")
	errReviewerArg      = errors.New("exactly one reviewer argument required")
	errReviewerAssigned = errors.New("ticket already has a different reviewer (use --force to overwrite)")
	errTrackerRequired  = errors.New("start-review needs the tracker (remove --no-trac)")
)

const startReviewHelp = `Usage: pushpatches [options] start-review [review-options] <reviewer>

Assign a reviewer to tickets and post a comment through the tracker.
Requires tracker credentials in the configuration.

Review options:
  -t, --ticket <number>  Ticket to update (repeatable)
      --force            Overwrite an already-assigned reviewer
      --apply            Also apply the patch stream to the dev tree`

func (a *app) cmdStartReview(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("start-review", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	tickets := flags.IntSliceP("ticket", "t", nil, "ticket number (repeatable)")
	force := flags.Bool("force", false, "overwrite an existing reviewer")
	apply := flags.Bool("apply", false, "also apply patches to the dev tree")
	help := flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *help {
		a.io.Println(startReviewHelp)

		return nil
	}

	if flags.NArg() != 1 {
		return errReviewerArg
	}

	if len(*tickets) == 0 {
		return errNoTickets
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	tracker, err := a.dialTracker(cfg, true)
	if err != nil {
		return err
	}

	if tracker == nil {
		return errTrackerRequired
	}

	reviewer, err := a.resolveReviewer(cfg, flags.Arg(0))
	if err != nil {
		return err
	}

	for _, number := range *tickets {
		if err := a.assignReviewer(ctx, tracker, number, reviewer, *force); err != nil {
			return err
		}

		a.io.Println("Ticket", fmt.Sprint(number)+":", "review started by", reviewer)
	}

	if *apply {
		stream, _, err := loadPatchStream(cfg, nil)
		if err != nil {
			return err
		}

		return a.runAmCommand(ctx, cfg, stream)
	}

	return nil
}

// resolveReviewer normalizes the reviewer token against the username map
// and the committer list.
func (a *app) resolveReviewer(cfg *config.Config, token string) (string, error) {
	if canonical, ok := cfg.Usernames[token]; ok {
		token = canonical
	}

	var committers []string

	if cfg.ContributorsFile != "" {
		var err error

		committers, err = review.LoadCommitters(filepath.Join(cfg.Repository, cfg.ContributorsFile))
		if err != nil {
			return "", err
		}
	}

	return review.Normalize(token, committers)
}

// assignReviewer sets the reviewer attribute on one ticket, refusing to
// overwrite a different assignment unless forced.
func (a *app) assignReviewer(ctx context.Context, tracker trac.Client, number int, reviewer string, force bool) error {
	data, err := tracker.Get(ctx, number)
	if err != nil {
		return fmt.Errorf("%w %d: %w", trac.ErrTicketFetch, number, err)
	}

	if current := data.Attributes["reviewer"]; current != "" && current != reviewer && !force {
		return fmt.Errorf("%w: #%d is assigned to %s", errReviewerAssigned, number, current)
	}

	comment := "Review started by " + reviewer

	if err := tracker.Update(ctx, number, comment, map[string]string{"reviewer": reviewer}, true); err != nil {
		return fmt.Errorf("update ticket %d: %w", number, err)
	}

	return nil
}
