package review

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pushpatches/internal/trac"
)

type fakeTracker struct {
	reviewers map[int]string
}

func (f *fakeTracker) Get(_ context.Context, number int) (trac.TicketData, error) {
	return trac.TicketData{
		ID:         number,
		Attributes: map[string]string{"reviewer": f.reviewers[number]},
	}, nil
}

func (f *fakeTracker) Update(context.Context, int, string, map[string]string, bool) error {
	return nil
}

func bindTickets(client trac.Client, numbers ...int) []*trac.Ticket {
	return trac.Bind(numbers, client)
}

var committers = []string{
	"Alexander Bokovoy <abokovoy@redhat.com>",
	"Martin Kosek <mkosek@redhat.com>",
	"Martin Basti <mbasti@redhat.com>",
	"Petr Vobornik <pvoborni@redhat.com>",
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("canonical passes through", func(t *testing.T) {
		t.Parallel()

		got, err := Normalize("Alexander Bokovoy <abokovoy@redhat.com>", nil)
		require.NoError(t, err)
		require.Equal(t, "Alexander Bokovoy <abokovoy@redhat.com>", got)
	})

	t.Run("single substring match", func(t *testing.T) {
		t.Parallel()

		got, err := Normalize("bokovoy", committers)
		require.NoError(t, err)
		require.Equal(t, "Alexander Bokovoy <abokovoy@redhat.com>", got)
	})

	t.Run("query is case-insensitive", func(t *testing.T) {
		t.Parallel()

		got, err := Normalize("BOKOVOY", committers)
		require.NoError(t, err)
		require.Equal(t, "Alexander Bokovoy <abokovoy@redhat.com>", got)
	})

	t.Run("zero matches", func(t *testing.T) {
		t.Parallel()

		_, err := Normalize("nobody", committers)
		require.ErrorIs(t, err, ErrReviewerNotFound)
	})

	t.Run("multiple matches listed", func(t *testing.T) {
		t.Parallel()

		_, err := Normalize("martin", committers)
		require.ErrorIs(t, err, ErrAmbiguousReviewer)
		require.ErrorContains(t, err, "Martin Kosek <mkosek@redhat.com>")
		require.ErrorContains(t, err, "Martin Basti <mbasti@redhat.com>")
	})

	t.Run("match is transliterated", func(t *testing.T) {
		t.Parallel()

		got, err := Normalize("cech", []string{"Ondřej Čech <ocech@redhat.com>"})
		require.NoError(t, err)
		require.Equal(t, "Ondrej Cech <ocech@redhat.com>", got)
	})
}

func TestTransliterate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Ondrej", Transliterate("Ondřej"))
	require.Equal(t, "Francois", Transliterate("François"))
	require.Equal(t, "plain ascii", Transliterate("plain ascii"))
}

func TestResolveNoReviewerFlag(t *testing.T) {
	t.Parallel()

	got, err := Resolve(context.Background(), Options{NoReviewer: true})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResolveExplicit(t *testing.T) {
	t.Parallel()

	got, err := Resolve(context.Background(), Options{
		Explicit:   []string{"bokovoy", "Petr Vobornik <pvoborni@redhat.com>"},
		Committers: committers,
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"Alexander Bokovoy <abokovoy@redhat.com>",
		"Petr Vobornik <pvoborni@redhat.com>",
	}, got)
}

func TestResolveFromTickets(t *testing.T) {
	t.Parallel()

	usernames := map[string]string{"abbra": "Alexander Bokovoy <abokovoy@redhat.com>"}

	t.Run("identical reviewers collapse", func(t *testing.T) {
		t.Parallel()

		client := &fakeTracker{reviewers: map[int]string{1: "abbra", 2: "abbra"}}

		got, err := Resolve(context.Background(), Options{
			Tickets:    bindTickets(client, 1, 2),
			Tracker:    true,
			Usernames:  usernames,
			Committers: committers,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"Alexander Bokovoy <abokovoy@redhat.com>"}, got)
	})

	t.Run("disparate reviewers are ambiguous", func(t *testing.T) {
		t.Parallel()

		client := &fakeTracker{reviewers: map[int]string{1: "abbra", 2: "other"}}

		_, err := Resolve(context.Background(), Options{
			Tickets:    bindTickets(client, 1, 2),
			Tracker:    true,
			Usernames:  usernames,
			Committers: committers,
		})
		require.ErrorIs(t, err, ErrAmbiguousReviewer)
		require.ErrorContains(t, err, "abbra")
		require.ErrorContains(t, err, "other")
	})

	t.Run("unmapped username falls through to committer query", func(t *testing.T) {
		t.Parallel()

		client := &fakeTracker{reviewers: map[int]string{1: "pvoborni"}}

		got, err := Resolve(context.Background(), Options{
			Tickets:    bindTickets(client, 1),
			Tracker:    true,
			Committers: committers,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"Petr Vobornik <pvoborni@redhat.com>"}, got)
	})

	t.Run("no reviewer on any ticket", func(t *testing.T) {
		t.Parallel()

		client := &fakeTracker{reviewers: map[int]string{1: ""}}

		_, err := Resolve(context.Background(), Options{
			Tickets: bindTickets(client, 1),
			Tracker: true,
		})
		require.ErrorIs(t, err, ErrNoReviewerFound)
	})
}

func TestResolveNoTrackerNoExplicit(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), Options{})
	require.ErrorIs(t, err, ErrNoReviewerFound)
}

func TestLoadCommitters(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Contributors.txt")
	content := `Developers:
=========

Alexander Bokovoy <abokovoy@redhat.com>
Martin Kosek <mkosek@redhat.com>

not a committer line
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := LoadCommitters(path)
	require.NoError(t, err)
	require.Equal(t, []string{
		"Alexander Bokovoy <abokovoy@redhat.com>",
		"Martin Kosek <mkosek@redhat.com>",
	}, got)
}
