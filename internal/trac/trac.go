// Package trac talks to a Trac-style ticket tracker over XML-RPC and
// exposes tickets as handles with lazily fetched, memoized attributes.
package trac

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTicketFetch wraps any failure to retrieve a ticket: transport errors,
// tracker faults, and malformed responses alike. Fetches are never retried.
var ErrTicketFetch = errors.New("cannot fetch ticket")

// TicketData is the tracker's view of one ticket: the 4-tuple returned by
// ticket.get.
type TicketData struct {
	ID         int
	Created    time.Time
	Changed    time.Time
	Attributes map[string]string
}

// Client is the tracker RPC surface the pipeline consumes.
type Client interface {
	// Get retrieves a ticket's data.
	Get(ctx context.Context, number int) (TicketData, error)
	// Update posts a comment and attribute changes to a ticket. Requires
	// an authenticated client.
	Update(ctx context.Context, number int, comment string, attrs map[string]string, notify bool) error
}

// Ticket is a handle to one tracker ticket. Attributes are fetched on
// first access and cached for the handle's lifetime; a handle never
// refetches.
type Ticket struct {
	Number int

	client Client
	data   *TicketData
}

// NewTicket returns an unfetched handle.
func NewTicket(number int, client Client) *Ticket {
	return &Ticket{Number: number, client: client}
}

// Data returns the ticket's data, fetching it on first call.
func (t *Ticket) Data(ctx context.Context) (TicketData, error) {
	if t.data == nil {
		data, err := t.client.Get(ctx, t.Number)
		if err != nil {
			return TicketData{}, fmt.Errorf("%w %d: %w", ErrTicketFetch, t.Number, err)
		}

		t.data = &data
	}

	return *t.data, nil
}

// Attribute returns one attribute value, fetching the ticket if needed.
// Missing attributes yield the empty string.
func (t *Ticket) Attribute(ctx context.Context, name string) (string, error) {
	data, err := t.Data(ctx)
	if err != nil {
		return "", err
	}

	return data.Attributes[name], nil
}

// Bind wraps ticket numbers in handles, constructing at most one handle
// per distinct number and preserving first-seen order.
func Bind(numbers []int, client Client) []*Ticket {
	seen := make(map[int]bool, len(numbers))

	var tickets []*Ticket

	for _, n := range numbers {
		if seen[n] {
			continue
		}

		seen[n] = true
		tickets = append(tickets, NewTicket(n, client))
	}

	return tickets
}
