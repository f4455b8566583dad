package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratushq/stratus-go/internal/api"
	"github.com/stratushq/stratus-go/internal/catalog"
	"github.com/stratushq/stratus-go/internal/session"
)

type fakeTokens struct {
	err   error
	calls atomic.Int32
}

func (f *fakeTokens) EnsureValid(context.Context) (string, error) {
	f.calls.Add(1)

	if f.err != nil {
		return "", f.err
	}

	return "at-1", nil
}

func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

func recvEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.stratus.example", "wss://api.stratus.example/events"},
		{"https://api.stratus.example/v1", "wss://api.stratus.example/v1/events"},
		{"http://localhost:8080/", "ws://localhost:8080/events"},
	}

	for _, tt := range tests {
		got, err := Endpoint(tt.base)
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got)
	}

	_, err := Endpoint("ftp://api.stratus.example")
	assert.Error(t, err)
}

func TestRun_DeliversEvents(t *testing.T) {
	var gotAuth atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		// Write-only connection: discard reads, hold until the peer goes
		// away.
		readCtx := conn.CloseRead(r.Context())

		_ = wsjson.Write(readCtx, conn, Event{Event: EventNodeUpdated, NodeID: "f-1"})
		_ = wsjson.Write(readCtx, conn, Event{Event: EventListingChanged, NodeID: "p-1"})

		<-readCtx.Done()
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	events := make(chan Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewSubscriber(srv.URL, &fakeTokens{}, func(ev Event) { events <- ev }, nil)
	sub.sleepFunc = noopSleep

	done := make(chan error, 1)

	go func() { done <- sub.Run(ctx) }()

	first := recvEvent(t, events)
	second := recvEvent(t, events)

	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, Event{Event: EventNodeUpdated, NodeID: "f-1"}, first)
	assert.Equal(t, Event{Event: EventListingChanged, NodeID: "p-1"}, second)
	assert.Equal(t, "Bearer at-1", gotAuth.Load())
}

func TestRun_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		// The first connection dies before delivering anything.
		if n == 1 {
			conn.Close(websocket.StatusInternalError, "restarting")
			return
		}

		readCtx := conn.CloseRead(r.Context())

		_ = wsjson.Write(readCtx, conn, Event{Event: EventNodeRemoved, NodeID: "d-1"})

		<-readCtx.Done()
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	events := make(chan Event, 2)

	var (
		mu     sync.Mutex
		delays []time.Duration
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewSubscriber(srv.URL, &fakeTokens{}, func(ev Event) { events <- ev }, nil)
	sub.sleepFunc = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()

		return nil
	}

	done := make(chan error, 1)

	go func() { done <- sub.Run(ctx) }()

	ev := recvEvent(t, events)
	assert.Equal(t, EventNodeRemoved, ev.Event)

	cancel()
	<-done

	assert.Equal(t, int32(2), conns.Load())

	mu.Lock()
	defer mu.Unlock()

	require.NotEmpty(t, delays)
	assert.Equal(t, reconnectBase, delays[0])
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	tokens := &fakeTokens{err: session.ErrNotAuthenticated}
	sub := NewSubscriber("ws://127.0.0.1:1/events", tokens, func(Event) {}, nil)
	sub.sleepFunc = noopSleep

	err := sub.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
	assert.Equal(t, int32(1), tokens.calls.Load())
}

func TestRun_RefreshFailureIsFatal(t *testing.T) {
	tokens := &fakeTokens{err: fmt.Errorf("session: refresh rejected: %w", session.ErrRefreshFailed)}
	sub := NewSubscriber("ws://127.0.0.1:1/events", tokens, func(Event) {}, nil)
	sub.sleepFunc = noopSleep

	err := sub.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrRefreshFailed)
}

func TestRun_CancelDuringBackoff(t *testing.T) {
	// Nothing listens on this port, so every dial fails and Run sits in
	// backoff until the deadline fires.
	sub := NewSubscriber("ws://127.0.0.1:1/events", &fakeTokens{}, func(Event) {}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sub.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func seedInvalidatorStore() *catalog.Store {
	store := catalog.NewStore()

	store.AppendChildren(catalog.RootID, []api.Node{
		{ID: "p-1", Kind: api.KindProject, Name: "Quarry", FetchedAt: time.Now()},
	}, catalog.PageCursor{Exhausted: true, FetchedAt: time.Now()})

	store.AppendChildren("p-1", []api.Node{
		{ID: "f-1", Kind: api.KindFlight, Name: "June", FetchedAt: time.Now()},
	}, catalog.PageCursor{Exhausted: true, FetchedAt: time.Now()})

	store.AppendChildren("f-1", []api.Node{
		{ID: "d-1", Kind: api.KindDataProduct, Name: "ortho", FetchedAt: time.Now()},
	}, catalog.PageCursor{Exhausted: true, FetchedAt: time.Now()})

	return store
}

func TestStoreInvalidator_ListingChanged(t *testing.T) {
	store := seedInvalidatorStore()
	handler := StoreInvalidator(store, nil)

	handler(Event{Event: EventListingChanged, NodeID: "p-1"})

	_, _, ok := store.Children("p-1")
	assert.False(t, ok)

	// The node itself and its deeper descendants are untouched.
	_, ok = store.GetNode("p-1")
	assert.True(t, ok)
	_, _, ok = store.Children("f-1")
	assert.True(t, ok)
}

func TestStoreInvalidator_NodeUpdated(t *testing.T) {
	store := seedInvalidatorStore()
	handler := StoreInvalidator(store, nil)

	// Row data for f-1 lives in p-1's listing, so that listing must
	// refetch.
	handler(Event{Event: EventNodeUpdated, NodeID: "f-1"})

	_, _, ok := store.Children("p-1")
	assert.False(t, ok)
	_, _, ok = store.Children(catalog.RootID)
	assert.True(t, ok)
}

func TestStoreInvalidator_NodeRemoved(t *testing.T) {
	store := seedInvalidatorStore()
	handler := StoreInvalidator(store, nil)

	handler(Event{Event: EventNodeRemoved, NodeID: "f-1"})

	// The subtree is scrubbed and the parent listing refetches.
	_, ok := store.GetNode("d-1")
	assert.False(t, ok)
	_, _, ok = store.Children("p-1")
	assert.False(t, ok)
}

func TestStoreInvalidator_IgnoresUnknown(t *testing.T) {
	store := seedInvalidatorStore()
	handler := StoreInvalidator(store, nil)

	handler(Event{Event: "node.archived", NodeID: "p-1"})
	handler(Event{Event: EventNodeRemoved, NodeID: "never-cached"})

	_, _, ok := store.Children(catalog.RootID)
	assert.True(t, ok)
	_, _, ok = store.Children("p-1")
	assert.True(t, ok)
}
