package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const ticketURL = "https://fedorahosted.org/freeipa/ticket/"

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	_, err := Parse(nil, ticketURL)
	require.ErrorIs(t, err, ErrEmptyPatch)
}

func TestParseSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name:  "plain",
			lines: []string{"From: A <a@example.com>", "Subject: Fix thing"},
			want:  "Fix thing",
		},
		{
			name:  "patch tag stripped",
			lines: []string{"Subject: [PATCH] Fix thing"},
			want:  "Fix thing",
		},
		{
			name:  "numbered patch tag",
			lines: []string{"Subject: [PATCH 2/3] Fix thing"},
			want:  "Fix thing",
		},
		{
			name:  "stacked tags",
			lines: []string{"Subject: [PATCH] [PATCH v2] Fix thing"},
			want:  "Fix thing",
		},
		{
			name: "continuation folded",
			lines: []string{
				"Subject: [PATCH] Fix a very",
				" long thing",
				"Date: today",
			},
			want: "Fix a verylong thing",
		},
		{
			name: "continuation ends at unindented line",
			lines: []string{
				"Subject: Fix thing",
				"Date: today",
				" indented body of another header",
			},
			want: "Fix thing",
		},
		{
			name: "later subject wins",
			lines: []string{
				"Subject: outer",
				"Subject: [PATCH] inner",
			},
			want: "inner",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doc, err := Parse(tc.lines, ticketURL)
			require.NoError(t, err)
			require.Equal(t, tc.want, doc.Subject)
		})
	}
}

func TestParseMboxUnescape(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]string{
		"From: A <a@example.com>",
		">From x",
		"Subject: s",
	}, ticketURL)
	require.NoError(t, err)

	require.Contains(t, doc.Header, "From x")
	require.NotContains(t, doc.Header, ">From x")
}

func TestParseBodyBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		boundary string
	}{
		{"triple dash", "---"},
		{"diff", "diff -up a/x b/x"},
		{"index", "Index: a/x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			lines := []string{
				"Subject: s",
				"",
				"message",
				tc.boundary,
				"Subject: not a subject anymore",
				"+added line",
			}

			doc, err := Parse(lines, ticketURL)
			require.NoError(t, err)

			wantHeader := []string{"Subject: s", "", "message"}
			wantBody := []string{tc.boundary, "Subject: not a subject anymore", "+added line"}

			if diff := cmp.Diff(wantHeader, doc.Header); diff != "" {
				t.Errorf("header mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(wantBody, doc.Body); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}

			// Everything after the boundary stays body, so the stray
			// Subject: line must not have replaced the real one.
			require.Equal(t, "s", doc.Subject)
		})
	}
}

func TestParseTicketExtraction(t *testing.T) {
	t.Parallel()

	lines := []string{
		"Subject: s",
		"",
		"Fixes " + ticketURL + "4711",
		"See also " + ticketURL + "4711 and " + ticketURL + "123",
		"---",
		"body mentions " + ticketURL + "999 too",
	}

	doc, err := Parse(lines, ticketURL)
	require.NoError(t, err)

	// Order of appearance, duplicates preserved, body included.
	require.Equal(t, []int{4711, 4711, 123, 999}, doc.Tickets)
}

func TestAddReviewer(t *testing.T) {
	t.Parallel()

	t.Run("blank separator after prose", func(t *testing.T) {
		t.Parallel()

		doc, err := Parse([]string{"Subject: s", "", "message"}, ticketURL)
		require.NoError(t, err)

		doc.AddReviewer("A <a@b.com>")

		n := len(doc.Header)
		require.Equal(t, "Reviewed-By: A <a@b.com>", doc.Header[n-1])
		require.Equal(t, "", doc.Header[n-2])
	})

	t.Run("no separator after existing trailer", func(t *testing.T) {
		t.Parallel()

		doc, err := Parse([]string{
			"Subject: s",
			"",
			"Signed-off-by: B <b@c.com>",
		}, ticketURL)
		require.NoError(t, err)

		doc.AddReviewer("A <a@b.com>")

		n := len(doc.Header)
		require.Equal(t, "Reviewed-By: A <a@b.com>", doc.Header[n-1])
		require.Equal(t, "Signed-off-by: B <b@c.com>", doc.Header[n-2])
	})

	t.Run("twice yields two trailers in call order", func(t *testing.T) {
		t.Parallel()

		doc, err := Parse([]string{"Subject: s", "", "message"}, ticketURL)
		require.NoError(t, err)

		doc.AddReviewer("A <a@b.com>")
		doc.AddReviewer("B <b@c.com>")

		n := len(doc.Header)
		require.Equal(t, "Reviewed-By: B <b@c.com>", doc.Header[n-1])
		require.Equal(t, "Reviewed-By: A <a@b.com>", doc.Header[n-2])
	})
}

func TestReparseIdempotent(t *testing.T) {
	t.Parallel()

	lines := []string{
		"From: A <a@example.com>",
		"Subject: [PATCH] Fix thing",
		"",
		"Fixes " + ticketURL + "42",
		"---",
		" file | 2 +-",
		"diff --git a/file b/file",
		"+new",
	}

	first, err := Parse(lines, ticketURL)
	require.NoError(t, err)

	first.AddReviewer("A <a@b.com>")

	second, err := Parse(first.Lines(), ticketURL)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Header, second.Header); diff != "" {
		t.Errorf("header split changed on reparse (-first +second):\n%s", diff)
	}

	if diff := cmp.Diff(first.Body, second.Body); diff != "" {
		t.Errorf("body split changed on reparse (-first +second):\n%s", diff)
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	write := func(name, content string) {
		t.Helper()

		err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
		require.NoError(t, err)
	}

	write("0002-second.patch", "Subject: second\n---\n+b\n")
	write("0001-first.patch", "Subject: first\n---\n+a\n")
	write("notes.txt", "not a patch\n")

	docs, err := LoadDir(dir, ticketURL)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	// Sorted by file name, .patch only.
	require.Equal(t, "first", docs[0].Subject)
	require.Equal(t, "second", docs[1].Subject)
	require.Equal(t, filepath.Join(dir, "0001-first.patch"), docs[0].Source)
}
