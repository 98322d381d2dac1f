// Package config loads the operator-maintained YAML configuration:
// repository location, tracker connection, URL templates, the ordered
// milestone-to-branches table, and the tracker-username mapping.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound     = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrMissingField       = errors.New("missing config field")
	ErrUnmappedMilestone  = errors.New("no milestone pattern matches (update milestones)")
	ErrBadMilestoneRegexp = errors.New("invalid milestone pattern")
)

// FileName is the default config file name under the user config dir.
const FileName = "config.yaml"

// Trac holds the tracker connection parameters. Username and password are
// only needed for operations that update tickets.
type Trac struct {
	Scheme   string `yaml:"scheme"`
	Host     string `yaml:"host"`
	Path     string `yaml:"path"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// URL returns the XML-RPC endpoint. With credentials embedded the
// authenticated login endpoint is used, which Trac requires for updates.
func (t Trac) URL(authenticated bool) string {
	base := t.Scheme + "://"
	rpcPath := strings.TrimSuffix(t.Path, "/")

	if authenticated {
		return base + t.Username + ":" + t.Password + "@" + t.Host + rpcPath + "/login/xmlrpc"
	}

	return base + t.Host + rpcPath + "/xmlrpc"
}

// Milestone maps a milestone name pattern to the branches a matching
// ticket's fix must land on. Patterns are tried in declaration order and
// anchored at the start of the milestone string; first match wins.
type Milestone struct {
	Pattern  string   `yaml:"pattern"`
	Branches []string `yaml:"branches"`
}

// Config is the full configuration document.
type Config struct {
	Repository       string            `yaml:"repository"`
	Remote           string            `yaml:"remote"`
	PatchDir         string            `yaml:"patchdir"`
	TicketURL        string            `yaml:"ticket-url"`
	CommitURL        string            `yaml:"commit-url"`
	BugURL           string            `yaml:"bug-url"`
	ContributorsFile string            `yaml:"contributors-file"`
	Trac             Trac              `yaml:"trac"`
	AmCommand        []string          `yaml:"am-command"`
	Milestones       []Milestone       `yaml:"milestones"`
	Usernames        map[string]string `yaml:"usernames"`
}

// Load reads the config from path, or from the default location
// ($XDG_CONFIG_HOME/pushpatches/config.yaml, falling back to
// ~/.config/pushpatches/config.yaml) when path is empty.
func Load(path string, env map[string]string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultPath(env)
		if path == "" {
			return nil, fmt.Errorf("%w: no config path and no home directory", ErrConfigNotFound)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}

		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	cfg.Repository = expandHome(cfg.Repository, env)
	cfg.PatchDir = expandHome(cfg.PatchDir, env)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Repository == "":
		return fmt.Errorf("%w: repository", ErrMissingField)
	case c.Remote == "":
		return fmt.Errorf("%w: remote", ErrMissingField)
	case c.TicketURL == "":
		return fmt.Errorf("%w: ticket-url", ErrMissingField)
	}

	for _, m := range c.Milestones {
		if _, err := regexp.Compile("^(?:" + m.Pattern + ")"); err != nil {
			return fmt.Errorf("%w %q: %w", ErrBadMilestoneRegexp, m.Pattern, err)
		}
	}

	return nil
}

// BranchesForMilestone resolves a milestone name through the ordered
// pattern table.
func (c *Config) BranchesForMilestone(milestone string) ([]string, error) {
	for _, m := range c.Milestones {
		re, err := regexp.Compile("^(?:" + m.Pattern + ")")
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrBadMilestoneRegexp, m.Pattern, err)
		}

		if re.MatchString(milestone) {
			return m.Branches, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnmappedMilestone, milestone)
}

// TicketURLFor renders the tracker URL for a ticket number.
func (c *Config) TicketURLFor(number int) string {
	return fmt.Sprintf("%s%d", c.TicketURL, number)
}

// CommitURLFor renders the public URL for a commit hash.
func (c *Config) CommitURLFor(hash string) string {
	return c.CommitURL + hash
}

func defaultPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "pushpatches", FileName)
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "pushpatches", FileName)
	}

	return ""
}

func expandHome(path string, env map[string]string) string {
	if strings.HasPrefix(path, "~/") {
		if home := env["HOME"]; home != "" {
			return filepath.Join(home, path[2:])
		}
	}

	return path
}

// Sample is a complete commented configuration, printed by the
// sample-config subcommand.
const Sample = `# pushpatches configuration
#
# Copy to ~/.config/pushpatches/config.yaml and edit.

# Local checkout that patches are applied and pushed from.
repository: ~/dev/freeipa

# Remote that release branches are fetched from and pushed to.
remote: origin

# Directory scanned for *.patch files when none are given on the command line.
patchdir: ~/patches/to-apply

# URL templates. ticket-url is also the pattern used to find ticket
# references inside patches.
ticket-url: https://fedorahosted.org/freeipa/ticket/
commit-url: https://git.fedorahosted.org/cgit/freeipa.git/commit/?id=
bug-url: https://bugzilla.redhat.com/show_bug.cgi?id=

# File inside the repository listing committers, one "Name <email>" per line.
contributors-file: Contributors.txt

# Trac connection. Username and password are only needed for start-review.
trac:
  scheme: https
  host: fedorahosted.org
  path: /freeipa
  # username: maintainer
  # password: hunter2

# Optional command that applies the patch stream to a development tree
# (used by the am subcommand and start-review --apply). The serialized
# patches are piped to its stdin.
# am-command: [git, -C, /home/me/dev/freeipa, am]

# Milestone patterns are tried in order; the first match decides the
# branches. Patterns are regular expressions anchored at the start.
milestones:
  - pattern: FreeIPA 4\.1\..*
    branches: [master, ipa-4-1]
  - pattern: FreeIPA 4\.0\..*
    branches: [master, ipa-4-1, ipa-4-0]
  - pattern: FreeIPA 3\.3\..*
    branches: [master, ipa-4-1, ipa-4-0, ipa-3-3]

# Tracker usernames mapped to canonical committer identities.
usernames:
  abbra: Alexander Bokovoy <abokovoy@redhat.com>
  mkosek: Martin Kosek <mkosek@redhat.com>
`
