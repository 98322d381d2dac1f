package trac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	gets    map[int]TicketData
	getErr  error
	fetched []int
}

func (f *fakeClient) Get(_ context.Context, number int) (TicketData, error) {
	f.fetched = append(f.fetched, number)

	if f.getErr != nil {
		return TicketData{}, f.getErr
	}

	return f.gets[number], nil
}

func (f *fakeClient) Update(context.Context, int, string, map[string]string, bool) error {
	return nil
}

func TestTicketFetchesOnce(t *testing.T) {
	t.Parallel()

	client := &fakeClient{gets: map[int]TicketData{
		4711: {ID: 4711, Attributes: map[string]string{"milestone": "FreeIPA 4.1.2"}},
	}}

	ticket := NewTicket(4711, client)

	for range 3 {
		milestone, err := ticket.Attribute(context.Background(), "milestone")
		require.NoError(t, err)
		require.Equal(t, "FreeIPA 4.1.2", milestone)
	}

	require.Equal(t, []int{4711}, client.fetched)
}

func TestTicketFetchError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{getErr: errors.New("boom")}
	ticket := NewTicket(1, client)

	_, err := ticket.Data(context.Background())
	require.ErrorIs(t, err, ErrTicketFetch)
	require.ErrorContains(t, err, "boom")
}

func TestBindDeduplicates(t *testing.T) {
	t.Parallel()

	tickets := Bind([]int{3, 1, 3, 2, 1}, &fakeClient{})

	var numbers []int
	for _, tk := range tickets {
		numbers = append(numbers, tk.Number)
	}

	require.Equal(t, []int{3, 1, 2}, numbers)
}

func TestDecodeTicket(t *testing.T) {
	t.Parallel()

	now := time.Now()

	data, err := decodeTicket([]any{
		int64(42),
		now,
		now,
		map[string]any{"milestone": "FreeIPA 4.1.2", "cc": "", "priority": 3},
	})
	require.NoError(t, err)
	require.Equal(t, 42, data.ID)
	require.Equal(t, "FreeIPA 4.1.2", data.Attributes["milestone"])

	// Non-string attribute values are dropped, not decoded.
	_, ok := data.Attributes["priority"]
	require.False(t, ok)
}

func TestDecodeTicketMalformed(t *testing.T) {
	t.Parallel()

	_, err := decodeTicket([]any{int64(42)})
	require.Error(t, err)

	_, err = decodeTicket([]any{"42", time.Now(), time.Now(), map[string]any{}})
	require.Error(t, err)

	_, err = decodeTicket([]any{int64(42), time.Now(), time.Now(), "nope"})
	require.Error(t, err)
}
