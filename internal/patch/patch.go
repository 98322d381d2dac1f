// Package patch parses mail-formatted patch files into a header region,
// a folded subject, a diff body, and the ticket numbers referenced anywhere
// in the text.
package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyPatch is returned when a patch has no content at all.
var ErrEmptyPatch = errors.New("empty patch")

// DefaultSource is used when a document was not read from a file.
const DefaultSource = "(patch)"

// subjectRe matches a Subject: header, skipping any number of [PATCH ...]
// prefix tags. Group 1 is the remaining subject text.
var subjectRe = regexp.MustCompile(`^Subject:\s*(?:\[PATCH[^\]]*\]\s*)*(.*)$`)

// trailerRe matches a "Key: value" trailer line such as Signed-off-by.
var trailerRe = regexp.MustCompile(`^[A-Za-z-]+: `)

// Document is one mail-formatted patch. Header holds everything up to the
// diff boundary, Body the boundary line and everything after it. Tickets
// lists every ticket number referenced in the text, in order of appearance
// and with duplicates preserved; callers aggregate across documents with
// set semantics.
type Document struct {
	Header  []string
	Body    []string
	Subject string
	Tickets []int
	Source  string
}

// Load reads and parses a single patch file.
func Load(path, ticketURL string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}

	doc, err := Parse(splitLines(string(data)), ticketURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	doc.Source = path

	return doc, nil
}

// LoadDir parses every *.patch file in dir, sorted by name.
func LoadDir(dir, ticketURL string) ([]*Document, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.patch"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}

	sort.Strings(paths)

	docs := make([]*Document, 0, len(paths))

	for _, p := range paths {
		doc, loadErr := Load(p, ticketURL)
		if loadErr != nil {
			return nil, loadErr
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// Parse builds a Document from raw lines (without trailing newlines).
//
// Classification runs line by line. A wrapped Subject: header is folded by
// tracking an in-subject flag: any line not starting with a space ends the
// continuation, and while the flag is set each line's stripped content is
// appended to the subject. A leading mbox escape (">From") is unescaped and
// kept in the header. The body starts at the first line that is exactly
// "---" or starts with "diff -" or "Index: "; every later line is body
// unconditionally.
func Parse(lines []string, ticketURL string) (*Document, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyPatch
	}

	doc := &Document{Source: DefaultSource}

	inSubject := false
	inBody := false

	for _, line := range lines {
		if inBody {
			doc.Body = append(doc.Body, line)

			continue
		}

		if isBodyBoundary(line) {
			doc.Body = append(doc.Body, line)
			inBody = true

			continue
		}

		if !strings.HasPrefix(line, " ") {
			inSubject = false
		}

		if inSubject {
			doc.Subject += strings.TrimSpace(line)
		}

		if m := subjectRe.FindStringSubmatch(line); m != nil {
			doc.Subject = strings.TrimSpace(m[1])
			inSubject = true
		}

		if strings.HasPrefix(line, ">From") {
			line = line[1:]
		}

		doc.Header = append(doc.Header, line)
	}

	if ticketURL != "" {
		doc.Tickets = extractTickets(append(doc.Header, doc.Body...), ticketURL)
	}

	return doc, nil
}

// AddReviewer appends a Reviewed-By trailer to the header. A blank separator
// line is inserted first unless the header already ends in a trailer line.
// This is the only mutation a Document supports and must happen before the
// header is serialized for application.
func (d *Document) AddReviewer(name string) {
	if len(d.Header) == 0 || !trailerRe.MatchString(d.Header[len(d.Header)-1]) {
		d.Header = append(d.Header, "")
	}

	d.Header = append(d.Header, "Reviewed-By: "+name)
}

// Lines returns the full serialized document, header then body.
func (d *Document) Lines() []string {
	lines := make([]string, 0, len(d.Header)+len(d.Body))
	lines = append(lines, d.Header...)
	lines = append(lines, d.Body...)

	return lines
}

// Bytes serializes the document for piping to the patch-apply mechanism.
func (d *Document) Bytes() []byte {
	return []byte(strings.Join(d.Lines(), "\n") + "\n")
}

func isBodyBoundary(line string) bool {
	return line == "---" ||
		strings.HasPrefix(line, "diff -") ||
		strings.HasPrefix(line, "Index: ")
}

// extractTickets scans every line for the ticket URL prefix followed by
// digits. The same pattern is applied to header and body alike, so a ticket
// URL quoted in commit prose is picked up too.
func extractTickets(lines []string, ticketURL string) []int {
	re := regexp.MustCompile(regexp.QuoteMeta(ticketURL) + `(\d+)`)

	var tickets []int

	for _, line := range lines {
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}

			tickets = append(tickets, n)
		}
	}

	return tickets
}

// splitLines splits file content on newlines, dropping a final empty
// element produced by a trailing newline.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
