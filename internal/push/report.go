package push

import (
	"context"
	"regexp"
	"sort"

	"pushpatches/internal/patch"
	"pushpatches/internal/trac"
)

// branchReport is the rendered state of one branch after applying the
// patch stream.
type branchReport struct {
	Branch   string
	Revision string
	// TicketLog is the one-line graph log of remote/branch..Revision in
	// chronological order, for pasting into a tracker comment.
	TicketLog []string
	// CommitURLs maps the same range through the commit URL template, in
	// chronological order, for a bug-tracker comment.
	CommitURLs []string
	DiffStat   string
	FullLog    string
}

// Report is everything shown to the operator before the push decision.
// Branches keep resolution order; patches keep load order.
type Report struct {
	Patches    []string
	Branches   []branchReport
	TicketURLs []string
	BugURLs    []string
}

func (p *Publisher) buildReport(ctx context.Context, docs []*patch.Document, tickets []*trac.Ticket, results []BranchResult) (*Report, error) {
	report := &Report{}

	for _, doc := range docs {
		report.Patches = append(report.Patches, doc.Source)
	}

	for _, res := range results {
		branch, err := p.buildBranchReport(ctx, res)
		if err != nil {
			return nil, err
		}

		report.Branches = append(report.Branches, branch)
	}

	report.TicketURLs = p.ticketURLs(docs)

	bugURLs, err := p.bugURLs(ctx, tickets)
	if err != nil {
		return nil, err
	}

	report.BugURLs = bugURLs

	return report, nil
}

func (p *Publisher) buildBranchReport(ctx context.Context, res BranchResult) (branchReport, error) {
	rangeSpec := p.Config.Remote + "/" + res.Branch + ".." + res.Revision

	graph, err := p.Git.LogGraph(ctx, rangeSpec)
	if err != nil {
		return branchReport{}, err
	}

	revs, err := p.Git.RevList(ctx, rangeSpec)
	if err != nil {
		return branchReport{}, err
	}

	diffStat, err := p.Git.DiffStat(ctx, rangeSpec)
	if err != nil {
		return branchReport{}, err
	}

	fullLog, err := p.Git.LogFull(ctx, rangeSpec)
	if err != nil {
		return branchReport{}, err
	}

	// git reports newest first; comments read oldest first.
	reverse(graph)
	reverse(revs)

	urls := make([]string, len(revs))
	for i, rev := range revs {
		urls[i] = p.Config.CommitURLFor(rev)
	}

	return branchReport{
		Branch:     res.Branch,
		Revision:   res.Revision,
		TicketLog:  graph,
		CommitURLs: urls,
		DiffStat:   diffStat,
		FullLog:    fullLog,
	}, nil
}

// ticketURLs aggregates every referenced ticket number across documents,
// de-duplicated and sorted.
func (p *Publisher) ticketURLs(docs []*patch.Document) []string {
	seen := make(map[int]bool)

	var numbers []int

	for _, doc := range docs {
		for _, n := range doc.Tickets {
			if !seen[n] {
				seen[n] = true
				numbers = append(numbers, n)
			}
		}
	}

	sort.Ints(numbers)

	urls := make([]string, len(numbers))
	for i, n := range numbers {
		urls[i] = p.Config.TicketURLFor(n)
	}

	return urls
}

// bugURLs extracts bug-tracker URLs from each ticket's rhbz attribute,
// matching the configured bug URL prefix followed by digits.
func (p *Publisher) bugURLs(ctx context.Context, tickets []*trac.Ticket) ([]string, error) {
	if p.Config.BugURL == "" {
		return nil, nil
	}

	re := regexp.MustCompile(regexp.QuoteMeta(p.Config.BugURL) + `\d+`)
	seen := make(map[string]bool)

	var urls []string

	for _, ticket := range tickets {
		rhbz, err := ticket.Attribute(ctx, "rhbz")
		if err != nil {
			return nil, err
		}

		for _, url := range re.FindAllString(rhbz, -1) {
			if !seen[url] {
				seen[url] = true
				urls = append(urls, url)
			}
		}
	}

	return urls, nil
}

// Render writes the report for terminal display.
func (r *Report) Render(ui UI) {
	ui.Heading("Applied patches")

	for _, path := range r.Patches {
		ui.Println("  " + path)
	}

	for _, branch := range r.Branches {
		ui.Heading("Branch " + branch.Branch)
		ui.Printf("%s", branch.DiffStat)
		ui.Printf("%s", branch.FullLog)
	}

	ui.Heading("Branches")

	for _, branch := range r.Branches {
		ui.Printf("%s: %s\n", branch.Branch, branch.Revision)
	}

	ui.Heading("Ticket comment")

	for _, branch := range r.Branches {
		ui.Println(branch.Branch + ":")

		for _, line := range branch.TicketLog {
			ui.Println("  " + line)
		}
	}

	ui.Heading("Bugzilla comment")

	for _, branch := range r.Branches {
		for _, url := range branch.CommitURLs {
			ui.Println(url)
		}
	}

	if len(r.TicketURLs) > 0 {
		ui.Heading("Tickets")

		for _, url := range r.TicketURLs {
			ui.Println(url)
		}
	}

	if len(r.BugURLs) > 0 {
		ui.Heading("Bugs")

		for _, url := range r.BugURLs {
			ui.Println(url)
		}
	}
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
