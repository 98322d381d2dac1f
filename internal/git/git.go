// Package git wraps the git command line for the push pipeline. Every
// invocation captures stdout, stderr, and the return code; a non-zero
// code is an error unless the call site explicitly tolerates any code.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrCommandFailed  = errors.New("command failed")
	ErrCommandTimeout = errors.New("command timed out")
)

// Result captures one command invocation.
type Result struct {
	Stdout string
	Stderr string
	Code   int
}

// Runner executes git commands in a fixed repository directory.
type Runner struct {
	// Dir is the repository working tree.
	Dir string
	// Log receives a debug line per invocation and the full output of
	// failing commands.
	Log *logrus.Logger
	// Timeout bounds network operations (fetch, push). Zero means no
	// bound.
	Timeout time.Duration
	// Color is passed to log/diff commands: "auto", "always" or "never".
	Color string
}

// Run executes git with the given arguments and fails on a non-zero code.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	return r.run(ctx, nil, false, args...)
}

// RunAnyCode executes git and reports the result whatever the return
// code. Used by cleanup steps that must not fail.
func (r *Runner) RunAnyCode(ctx context.Context, args ...string) (Result, error) {
	return r.run(ctx, nil, true, args...)
}

func (r *Runner) run(ctx context.Context, stdin io.Reader, anyCode bool, args ...string) (Result, error) {
	r.logger().WithField("dir", r.Dir).Debug("git " + strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	cmd.Stdin = stdin

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		r.logFailure(args, res)

		return res, fmt.Errorf("%w: git %s", ErrCommandTimeout, strings.Join(args, " "))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, fmt.Errorf("git %s: %w", args[0], err)
		}

		res.Code = exitErr.ExitCode()
	}

	if res.Code != 0 && !anyCode {
		r.logFailure(args, res)

		return res, fmt.Errorf("%w: git %s (exit %d): %s",
			ErrCommandFailed, strings.Join(args, " "), res.Code, strings.TrimSpace(res.Stderr))
	}

	return res, nil
}

// logFailure echoes the failing command, its output and its return code
// for verbose modes, before the error itself surfaces.
func (r *Runner) logFailure(args []string, res Result) {
	r.logger().WithFields(logrus.Fields{
		"code":   res.Code,
		"stdout": strings.TrimSpace(res.Stdout),
		"stderr": strings.TrimSpace(res.Stderr),
	}).Info("git " + strings.Join(args, " "))
}

func (r *Runner) logger() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}

	return logrus.StandardLogger()
}

// netContext derives a context bounded by the runner's network timeout.
func (r *Runner) netContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.Timeout)
}

// CurrentBranch returns the checked-out branch name, or the literal
// "HEAD" when detached.
func (r *Runner) CurrentBranch(ctx context.Context) (string, error) {
	res, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(res.Stdout), nil
}

// RevParse resolves a ref to a full revision id.
func (r *Runner) RevParse(ctx context.Context, ref string) (string, error) {
	res, err := r.Run(ctx, "rev-parse", ref)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(res.Stdout), nil
}

// StatusClean reports whether the working tree has no staged or unstaged
// changes. Porcelain status must produce no output at all.
func (r *Runner) StatusClean(ctx context.Context) (bool, error) {
	res, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}

	return res.Stdout == "" && res.Stderr == "", nil
}

// Checkout checks out a ref.
func (r *Runner) Checkout(ctx context.Context, ref string) error {
	_, err := r.Run(ctx, "checkout", ref)

	return err
}

// Fetch synchronizes the local view of the remote, bounded by the
// runner's timeout.
func (r *Runner) Fetch(ctx context.Context, remote string) error {
	ctx, cancel := r.netContext(ctx)
	defer cancel()

	_, err := r.Run(ctx, "fetch", remote)

	return err
}

// ApplyMailbox applies one serialized mail patch from stdin (git am).
func (r *Runner) ApplyMailbox(ctx context.Context, patch []byte) error {
	_, err := r.run(ctx, bytes.NewReader(patch), false, "am")

	return err
}

// AbortMailbox aborts an in-progress am session. Any return code is
// tolerated: there may be no session at all.
func (r *Runner) AbortMailbox(ctx context.Context) {
	_, _ = r.RunAnyCode(ctx, "am", "--abort")
}

// ResetHard discards all working tree and index changes.
func (r *Runner) ResetHard(ctx context.Context) {
	_, _ = r.RunAnyCode(ctx, "reset", "--hard")
}

// Clean removes untracked files and directories.
func (r *Runner) Clean(ctx context.Context) {
	_, _ = r.RunAnyCode(ctx, "clean", "-fxd")
}

// Push pushes the given refspecs, optionally as a dry run, bounded by the
// runner's timeout.
func (r *Runner) Push(ctx context.Context, remote string, refspecs []string, dryRun bool) error {
	ctx, cancel := r.netContext(ctx)
	defer cancel()

	args := []string{"push"}
	if dryRun {
		args = append(args, "--dry-run")
	}

	args = append(args, remote)
	args = append(args, refspecs...)

	_, err := r.Run(ctx, args...)

	return err
}

// LogGraph returns the one-line graph log for a range, oldest last (the
// caller reverses for chronological order).
func (r *Runner) LogGraph(ctx context.Context, rangeSpec string) ([]string, error) {
	res, err := r.Run(ctx, "log", "--graph", "--oneline", "--color=never", rangeSpec)
	if err != nil {
		return nil, err
	}

	return splitLines(res.Stdout), nil
}

// RevList returns the commit ids in a range, newest first.
func (r *Runner) RevList(ctx context.Context, rangeSpec string) ([]string, error) {
	res, err := r.Run(ctx, "rev-list", rangeSpec)
	if err != nil {
		return nil, err
	}

	return splitLines(res.Stdout), nil
}

// DiffStat returns the diffstat for a range, colored per the runner's
// color mode.
func (r *Runner) DiffStat(ctx context.Context, rangeSpec string) (string, error) {
	res, err := r.Run(ctx, "diff", "--stat", r.colorFlag(), rangeSpec)
	if err != nil {
		return "", err
	}

	return res.Stdout, nil
}

// LogFull returns the full log for a range, colored per the runner's
// color mode.
func (r *Runner) LogFull(ctx context.Context, rangeSpec string) (string, error) {
	res, err := r.Run(ctx, "log", r.colorFlag(), rangeSpec)
	if err != nil {
		return "", err
	}

	return res.Stdout, nil
}

// Gitk launches an interactive history browser on the given revisions and
// waits for it to exit. Inspection only; the pipeline state is unchanged.
func (r *Runner) Gitk(ctx context.Context, revs []string) error {
	r.logger().Debug("gitk " + strings.Join(revs, " "))

	cmd := exec.CommandContext(ctx, "gitk", revs...)
	cmd.Dir = r.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("gitk: %w", err)
	}

	return nil
}

func (r *Runner) colorFlag() string {
	color := r.Color
	if color == "" {
		color = "auto"
	}

	return "--color=" + color
}

func splitLines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}
