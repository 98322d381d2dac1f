// Package push orchestrates the patch-push pipeline: load patch
// documents, bind their tickets, inject reviewer trailers, apply the
// stream across every branch the tickets' milestone selects, report the
// result, and push after interactive confirmation. The working tree is
// restored on every exit path.
package push

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"pushpatches/internal/config"
	"pushpatches/internal/patch"
	"pushpatches/internal/review"
	"pushpatches/internal/trac"
)

// Git is the version-control surface the publisher drives. Implemented by
// *git.Runner.
type Git interface {
	CurrentBranch(ctx context.Context) (string, error)
	StatusClean(ctx context.Context) (bool, error)
	Checkout(ctx context.Context, ref string) error
	Fetch(ctx context.Context, remote string) error
	ApplyMailbox(ctx context.Context, patch []byte) error
	RevParse(ctx context.Context, ref string) (string, error)
	Push(ctx context.Context, remote string, refspecs []string, dryRun bool) error
	LogGraph(ctx context.Context, rangeSpec string) ([]string, error)
	RevList(ctx context.Context, rangeSpec string) ([]string, error)
	DiffStat(ctx context.Context, rangeSpec string) (string, error)
	LogFull(ctx context.Context, rangeSpec string) (string, error)
	Gitk(ctx context.Context, revs []string) error
	AbortMailbox(ctx context.Context)
	ResetHard(ctx context.Context)
	Clean(ctx context.Context)
}

// UI is the terminal output surface. Implemented by *cli.IO.
type UI interface {
	Println(a ...any)
	Printf(format string, a ...any)
	Heading(s string)
}

// Options are the operator's knobs for one run.
type Options struct {
	// Patches are explicit patch paths; directories expand to their
	// sorted *.patch files. Empty means the configured patchdir.
	Patches []string
	// Branches overrides milestone-based branch resolution.
	Branches []string
	// Reviewers are explicit reviewer tokens.
	Reviewers []string
	// NoReviewer skips reviewer injection.
	NoReviewer bool
	// NoFetch skips synchronizing the remote before applying.
	NoFetch bool
	// DryRun stops after the report, without the interactive push.
	DryRun bool
}

// BranchResult records the revision a branch ended up at after the patch
// stream was applied. Results keep branch resolution order.
type BranchResult struct {
	Branch   string
	Revision string
}

// Publisher runs the pipeline. Tracker may be nil (tracker suppressed),
// in which case tickets are ignored and branches must be explicit.
type Publisher struct {
	Config  *config.Config
	Git     Git
	Tracker trac.Client
	UI      UI
	Log     *logrus.Logger
	// Prompt asks the operator one question and returns the raw answer.
	Prompt func(question string) (string, error)
	Opts   Options
}

// Publish drives the pipeline to completion. Any error is terminal for
// the run; the working tree is cleaned up regardless.
func (p *Publisher) Publish(ctx context.Context) error {
	docs, err := p.loadDocuments()
	if err != nil {
		return err
	}

	clean, err := p.Git.StatusClean(ctx)
	if err != nil {
		return err
	}

	if !clean {
		return fmt.Errorf("%w: %s", ErrDirtyRepository, p.Config.Repository)
	}

	tickets := p.bindTickets(docs)

	if err := p.injectReviewers(ctx, docs, tickets); err != nil {
		return err
	}

	branches, err := p.resolveBranches(ctx, tickets)
	if err != nil {
		return err
	}

	if !p.Opts.NoFetch {
		if err := p.Git.Fetch(ctx, p.Config.Remote); err != nil {
			return err
		}
	}

	originalBranch, err := p.Git.CurrentBranch(ctx)
	if err != nil {
		return err
	}

	// The tree is about to be mutated. From here on, cleanup runs on
	// every exit path and restores the original branch.
	defer p.cleanup(originalBranch)

	results, err := p.applyAll(ctx, branches, docs)
	if err != nil {
		return err
	}

	if err := p.push(ctx, results, true); err != nil {
		return fmt.Errorf("%w (dry run): %w", ErrPush, err)
	}

	report, err := p.buildReport(ctx, docs, tickets, results)
	if err != nil {
		return err
	}

	report.Render(p.UI)

	if p.Opts.DryRun {
		p.UI.Println("Dry run requested; not pushing.")

		return nil
	}

	return p.confirmAndPush(ctx, results)
}

// loadDocuments gathers patch documents from explicit paths or the
// configured patch directory.
func (p *Publisher) loadDocuments() ([]*patch.Document, error) {
	paths := p.Opts.Patches
	if len(paths) == 0 && p.Config.PatchDir != "" {
		paths = []string{p.Config.PatchDir}
	}

	var docs []*patch.Document

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("patch path: %w", err)
		}

		if info.IsDir() {
			dirDocs, err := patch.LoadDir(path, p.Config.TicketURL)
			if err != nil {
				return nil, err
			}

			docs = append(docs, dirDocs...)

			continue
		}

		doc, err := patch.Load(path, p.Config.TicketURL)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	if len(docs) == 0 {
		return nil, ErrNoPatches
	}

	return docs, nil
}

// bindTickets unions the documents' ticket numbers and wraps them in
// handles, one per distinct number. Without a tracker the ticket list is
// empty.
func (p *Publisher) bindTickets(docs []*patch.Document) []*trac.Ticket {
	if p.Tracker == nil {
		return nil
	}

	var numbers []int
	for _, doc := range docs {
		numbers = append(numbers, doc.Tickets...)
	}

	return trac.Bind(numbers, p.Tracker)
}

func (p *Publisher) injectReviewers(ctx context.Context, docs []*patch.Document, tickets []*trac.Ticket) error {
	committers, err := p.loadCommitters()
	if err != nil {
		return err
	}

	reviewers, err := review.Resolve(ctx, review.Options{
		NoReviewer: p.Opts.NoReviewer,
		Explicit:   p.Opts.Reviewers,
		Tickets:    tickets,
		Tracker:    p.Tracker != nil,
		Usernames:  p.Config.Usernames,
		Committers: committers,
	})
	if err != nil {
		return err
	}

	for _, reviewer := range reviewers {
		p.UI.Println("Reviewed-By:", reviewer)

		for _, doc := range docs {
			doc.AddReviewer(reviewer)
		}
	}

	return nil
}

func (p *Publisher) loadCommitters() ([]string, error) {
	if p.Opts.NoReviewer || p.Config.ContributorsFile == "" {
		return nil, nil
	}

	return review.LoadCommitters(filepath.Join(p.Config.Repository, p.Config.ContributorsFile))
}

// resolveBranches picks the target branches: explicit names verbatim, or
// the milestone table entry for the tickets' single distinct milestone.
func (p *Publisher) resolveBranches(ctx context.Context, tickets []*trac.Ticket) ([]string, error) {
	if len(p.Opts.Branches) > 0 {
		return p.Opts.Branches, nil
	}

	if len(tickets) == 0 {
		return nil, ErrNoBranchesNoTickets
	}

	seen := make(map[string]bool)

	var milestones []string

	for _, ticket := range tickets {
		milestone, err := ticket.Attribute(ctx, "milestone")
		if err != nil {
			return nil, err
		}

		if milestone == "" || seen[milestone] {
			continue
		}

		seen[milestone] = true
		milestones = append(milestones, milestone)
	}

	if len(milestones) == 0 {
		return nil, ErrNoMilestone
	}

	if len(milestones) > 1 {
		return nil, fmt.Errorf("%w: %s", ErrDisparateMilestones, strings.Join(milestones, ", "))
	}

	return p.Config.BranchesForMilestone(milestones[0])
}

// applyAll checks out each branch in turn and applies every document in
// load order, recording the resulting head revision per branch.
func (p *Publisher) applyAll(ctx context.Context, branches []string, docs []*patch.Document) ([]BranchResult, error) {
	results := make([]BranchResult, 0, len(branches))

	for _, branch := range branches {
		if err := p.Git.Checkout(ctx, p.Config.Remote+"/"+branch); err != nil {
			return nil, err
		}

		for _, doc := range docs {
			if err := p.Git.ApplyMailbox(ctx, doc.Bytes()); err != nil {
				return nil, fmt.Errorf("%w: %s (%s) on %s: %w",
					ErrPatchApply, doc.Source, doc.Subject, branch, err)
			}
		}

		rev, err := p.Git.RevParse(ctx, "HEAD")
		if err != nil {
			return nil, err
		}

		results = append(results, BranchResult{Branch: branch, Revision: rev})
	}

	return results, nil
}

func (p *Publisher) push(ctx context.Context, results []BranchResult, dryRun bool) error {
	refspecs := make([]string, len(results))
	for i, res := range results {
		refspecs[i] = res.Revision + ":refs/heads/" + res.Branch
	}

	return p.Git.Push(ctx, p.Config.Remote, refspecs, dryRun)
}

// confirmAndPush loops on the three-way prompt: push for real, stop
// without pushing, or browse the resolved revisions and ask again.
func (p *Publisher) confirmAndPush(ctx context.Context, results []BranchResult) error {
	revs := make([]string, len(results))
	for i, res := range results {
		revs[i] = res.Revision
	}

	for {
		answer, err := p.Prompt("Push to " + p.Config.Remote + "? [y]es/[n]o/git[k] ")
		if err != nil {
			return fmt.Errorf("confirmation: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y":
			if err := p.push(ctx, results, false); err != nil {
				return fmt.Errorf("%w: %w", ErrPush, err)
			}

			p.UI.Println("Pushed.")

			return nil
		case "n":
			p.UI.Println("Not pushed.")

			return nil
		case "k":
			if err := p.Git.Gitk(ctx, revs); err != nil {
				p.UI.Println("gitk:", err)
			}
		}
	}
}

// cleanup restores the working tree no matter how the run ended: abort
// any in-progress am session, discard changes, return to the original
// branch, and remove untracked files. Every step is best effort so later
// steps still run.
func (p *Publisher) cleanup(originalBranch string) {
	ctx := context.Background()

	p.Git.AbortMailbox(ctx)
	p.Git.ResetHard(ctx)

	if err := p.Git.Checkout(ctx, originalBranch); err != nil && p.Log != nil {
		p.Log.WithError(err).Warn("cleanup: cannot restore original branch")
	}

	p.Git.Clean(ctx)
}
