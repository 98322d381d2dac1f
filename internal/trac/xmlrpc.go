package trac

import (
	"context"
	"fmt"
	"time"

	"github.com/kolo/xmlrpc"
)

// XMLRPC is the real tracker client, speaking Trac's XML-RPC protocol.
type XMLRPC struct {
	client *xmlrpc.Client
}

// Dial connects to the tracker endpoint. Trac serves anonymous access at
// /xmlrpc and authenticated access at /login/xmlrpc with credentials
// embedded in the URL; the caller picks via the URL it passes.
func Dial(url string) (*XMLRPC, error) {
	client, err := xmlrpc.NewClient(url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect tracker: %w", err)
	}

	return &XMLRPC{client: client}, nil
}

// Get calls ticket.get and decodes the (id, time_created, time_changed,
// attributes) tuple.
func (x *XMLRPC) Get(ctx context.Context, number int) (TicketData, error) {
	var reply []any

	if err := x.call(ctx, "ticket.get", number, &reply); err != nil {
		return TicketData{}, err
	}

	return decodeTicket(reply)
}

// Update calls ticket.update with a comment and attribute changes.
func (x *XMLRPC) Update(ctx context.Context, number int, comment string, attrs map[string]string, notify bool) error {
	anyAttrs := make(map[string]any, len(attrs))
	for k, v := range attrs {
		anyAttrs[k] = v
	}

	var reply any

	return x.call(ctx, "ticket.update", []any{number, comment, anyAttrs, notify}, &reply)
}

// call runs one RPC, honoring context cancellation. The underlying client
// has no context support, so the call is raced against ctx in a goroutine.
func (x *XMLRPC) call(ctx context.Context, method string, args any, reply any) error {
	done := make(chan error, 1)

	go func() {
		done <- x.client.Call(method, args, reply)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}

		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func decodeTicket(reply []any) (TicketData, error) {
	const tupleLen = 4

	if len(reply) != tupleLen {
		return TicketData{}, fmt.Errorf("malformed ticket tuple: %d elements", len(reply))
	}

	id, ok := asInt(reply[0])
	if !ok {
		return TicketData{}, fmt.Errorf("malformed ticket id: %T", reply[0])
	}

	created, _ := reply[1].(time.Time)
	changed, _ := reply[2].(time.Time)

	rawAttrs, ok := reply[3].(map[string]any)
	if !ok {
		return TicketData{}, fmt.Errorf("malformed ticket attributes: %T", reply[3])
	}

	attrs := make(map[string]string, len(rawAttrs))

	for k, v := range rawAttrs {
		if s, ok := v.(string); ok {
			attrs[k] = s
		}
	}

	return TicketData{ID: id, Created: created, Changed: changed, Attributes: attrs}, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
