package cli

import (
	"errors"

	"pushpatches/internal/config"
	"pushpatches/internal/trac"
)

var errTracCredentials = errors.New("tracker credentials required (set trac.username and trac.password)")

// dialTracker connects to the configured tracker. It returns a nil client
// when the tracker is suppressed or not configured; callers treat that as
// "no tracker". Authenticated access embeds the configured credentials,
// which Trac requires before any ticket update.
func (a *app) dialTracker(cfg *config.Config, authenticated bool) (trac.Client, error) {
	if a.global.noTrac || cfg.Trac.Host == "" {
		return nil, nil
	}

	if authenticated && (cfg.Trac.Username == "" || cfg.Trac.Password == "") {
		return nil, errTracCredentials
	}

	client, err := trac.Dial(cfg.Trac.URL(authenticated))
	if err != nil {
		return nil, err
	}

	return client, nil
}
