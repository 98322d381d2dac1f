package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	flag "github.com/spf13/pflag"

	"pushpatches/internal/config"
	"pushpatches/internal/patch"
	"pushpatches/internal/push"
)

var errNoAmCommand = errors.New("no am-command configured")

const amHelp = `Usage: pushpatches [options] am [patch|dir ...]

Pipe the patch stream (or every *.patch in the configured patchdir) to the
configured am-command, applying it onto the development tree.`

func (a *app) cmdAm(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("am", flag.ContinueOnError)
	flags.SetOutput(io.Discard)

	help := flags.BoolP("help", "h", false, "show help")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *help {
		a.io.Println(amHelp)

		return nil
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	stream, sources, err := loadPatchStream(cfg, flags.Args())
	if err != nil {
		return err
	}

	for _, source := range sources {
		a.io.Println("Applying", source)
	}

	return a.runAmCommand(ctx, cfg, stream)
}

// loadPatchStream concatenates the serialized patch documents from the
// given paths (directories expand to sorted *.patch files) or from the
// configured patchdir.
func loadPatchStream(cfg *config.Config, paths []string) ([]byte, []string, error) {
	if len(paths) == 0 && cfg.PatchDir != "" {
		paths = []string{cfg.PatchDir}
	}

	var (
		stream  bytes.Buffer
		sources []string
	)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("patch path: %w", err)
		}

		var docs []*patch.Document

		if info.IsDir() {
			docs, err = patch.LoadDir(path, cfg.TicketURL)
		} else {
			var doc *patch.Document

			doc, err = patch.Load(path, cfg.TicketURL)
			docs = []*patch.Document{doc}
		}

		if err != nil {
			return nil, nil, err
		}

		for _, doc := range docs {
			stream.Write(doc.Bytes())
			sources = append(sources, doc.Source)
		}
	}

	if len(sources) == 0 {
		return nil, nil, push.ErrNoPatches
	}

	return stream.Bytes(), sources, nil
}

// runAmCommand pipes the stream to the configured dev-tree apply command.
func (a *app) runAmCommand(ctx context.Context, cfg *config.Config, stream []byte) error {
	if len(cfg.AmCommand) == 0 {
		return errNoAmCommand
	}

	a.log.Debug("run " + fmt.Sprint(cfg.AmCommand))

	cmd := exec.CommandContext(ctx, cfg.AmCommand[0], cfg.AmCommand[1:]...)
	cmd.Stdin = bytes.NewReader(stream)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		a.log.WithField("stderr", stderr.String()).Info("am-command failed")

		return fmt.Errorf("am-command: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	a.io.Printf("%s", stdout.String())

	return nil
}
