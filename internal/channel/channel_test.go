package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

const testDelay = 100 * time.Millisecond

type dialLog struct {
	mu    sync.Mutex
	times []time.Time
	paths []string
}

func (d *dialLog) record(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.times = append(d.times, time.Now())
	d.paths = append(d.paths, path)
	return len(d.times)
}

func (d *dialLog) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.times)
}

func (d *dialLog) snapshot() ([]time.Time, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.times...), append([]string(nil), d.paths...)
}

// connHandler serves one accepted connection; n is the 1-based dial number.
type connHandler func(ctx context.Context, conn *websocket.Conn, n int)

func newServer(t *testing.T, rejectFirst int, fn connHandler) (*httptest.Server, *dialLog) {
	t.Helper()
	log := &dialLog{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := log.record(r.URL.Path)
		if n <= rejectFirst {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		fn(context.Background(), conn, n)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func urlFor(srv *httptest.Server) func(int64) string {
	return func(id int64) string {
		return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + strconv.FormatInt(id, 10)
	}
}

// echo replies to every outbound frame with a user frame, like the backend.
func echo(ctx context.Context, conn *websocket.Conn, _ int) {
	for {
		var out domain.OutboundFrame
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return
		}
		if err := wsjson.Write(ctx, conn, domain.InboundFrame{Role: domain.RoleUser, Content: out.Message}); err != nil {
			return
		}
	}
}

func waitOpen(t *testing.T, ch *Channel) {
	t.Helper()
	require.Eventually(t, func() bool { return ch.State() == StateOpen }, 2*time.Second, 5*time.Millisecond)
}

func TestPublish_NotOpenIsNoop(t *testing.T) {
	ch := New(func(int64) string { return "ws://127.0.0.1:1/ws/chat/1" }, Options{ReconnectDelay: testDelay})

	err := ch.Publish(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNotOpen)
	assert.Equal(t, StateIdle, ch.State())
	assert.Zero(t, ch.SessionID())
}

func TestPublish_WhileReconnectingIsNoop(t *testing.T) {
	srv, _ := newServer(t, 1000, echo)
	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Attach(1)
	defer ch.Detach()

	require.ErrorIs(t, ch.Publish(context.Background(), "hello"), ErrNotOpen)
	assert.NotEqual(t, StateOpen, ch.State())
}

func TestAttach_FanOutInArrivalOrder(t *testing.T) {
	srv, log := newServer(t, 0, func(ctx context.Context, conn *websocket.Conn, _ int) {
		for i := 0; i < 3; i++ {
			_ = wsjson.Write(ctx, conn, domain.InboundFrame{Role: domain.RoleAssistant, Content: "m" + strconv.Itoa(i)})
		}
		echo(ctx, conn, 0)
	})

	var mu sync.Mutex
	var first, second []string
	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Subscribe(func(f domain.InboundFrame) {
		mu.Lock()
		first = append(first, f.Content)
		mu.Unlock()
	})
	ch.Subscribe(func(f domain.InboundFrame) {
		mu.Lock()
		second = append(second, f.Content)
		mu.Unlock()
	})

	ch.Attach(7)
	defer ch.Detach()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(first) == 3 && len(second) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"m0", "m1", "m2"}, first)
	assert.Equal(t, first, second)
	mu.Unlock()

	_, paths := log.snapshot()
	assert.Equal(t, []string{"/ws/chat/7"}, paths)
	assert.Equal(t, int64(7), ch.SessionID())
}

func TestPublish_SendsMessagePayload(t *testing.T) {
	srv, _ := newServer(t, 0, echo)

	got := make(chan domain.InboundFrame, 1)
	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Subscribe(func(f domain.InboundFrame) { got <- f })
	ch.Attach(1)
	defer ch.Detach()
	waitOpen(t, ch)

	require.NoError(t, ch.Publish(context.Background(), "  raw text "))

	select {
	case f := <-got:
		assert.Equal(t, domain.RoleUser, f.Role)
		assert.Equal(t, "  raw text ", f.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestUnsubscribe(t *testing.T) {
	srv, _ := newServer(t, 0, echo)

	var calls atomic.Int32
	got := make(chan struct{}, 4)
	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	unsubscribe := ch.Subscribe(func(domain.InboundFrame) { calls.Add(1) })
	ch.Subscribe(func(domain.InboundFrame) { got <- struct{}{} })
	unsubscribe()

	ch.Attach(1)
	defer ch.Detach()
	waitOpen(t, ch)

	require.NoError(t, ch.Publish(context.Background(), "hi"))
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
	assert.Zero(t, calls.Load())
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	srv, _ := newServer(t, 0, func(ctx context.Context, conn *websocket.Conn, _ int) {
		_ = conn.Write(ctx, websocket.MessageText, []byte("{not json"))
		_ = conn.Write(ctx, websocket.MessageBinary, []byte{0x1, 0x2})
		_ = wsjson.Write(ctx, conn, domain.InboundFrame{Role: domain.RoleAssistant, Content: "ok"})
		echo(ctx, conn, 0)
	})

	got := make(chan domain.InboundFrame, 4)
	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Subscribe(func(f domain.InboundFrame) { got <- f })
	ch.Attach(1)
	defer ch.Detach()

	select {
	case f := <-got:
		assert.Equal(t, "ok", f.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	assert.Equal(t, StateOpen, ch.State())
}

func TestReconnect_AfterUnexpectedClose(t *testing.T) {
	srv, log := newServer(t, 0, func(ctx context.Context, conn *websocket.Conn, n int) {
		if n == 1 {
			_ = conn.Close(websocket.StatusGoingAway, "server restart")
			return
		}
		echo(ctx, conn, n)
	})

	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Attach(3)
	defer ch.Detach()

	require.Eventually(t, func() bool { return log.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	waitOpen(t, ch)

	times, paths := log.snapshot()
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), testDelay-10*time.Millisecond)
	assert.Equal(t, "/ws/chat/3", paths[1])
}

func TestReconnect_RepeatsUntilDialSucceeds(t *testing.T) {
	srv, log := newServer(t, 3, echo)

	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Attach(1)
	defer ch.Detach()

	waitOpen(t, ch)

	times, _ := log.snapshot()
	require.Len(t, times, 4)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), testDelay-10*time.Millisecond, "gap %d", i)
	}
}

func TestDetach_StopsReconnectingAndIsIdempotent(t *testing.T) {
	srv, log := newServer(t, 0, func(_ context.Context, conn *websocket.Conn, _ int) {
		_ = conn.Close(websocket.StatusGoingAway, "flapping")
	})

	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Attach(1)
	require.Eventually(t, func() bool { return log.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	ch.Detach()
	ch.Detach()
	dials := log.count()

	time.Sleep(3 * testDelay)
	assert.Equal(t, dials, log.count())
	assert.Equal(t, StateIdle, ch.State())
	assert.Zero(t, ch.SessionID())
	require.ErrorIs(t, ch.Publish(context.Background(), "late"), ErrNotOpen)
}

func TestDetach_WithoutAttach(t *testing.T) {
	ch := New(func(int64) string { return "" }, Options{})
	assert.NotPanics(t, func() {
		ch.Detach()
		ch.Detach()
	})
}

func TestAttach_NewSessionReplacesConnection(t *testing.T) {
	var live atomic.Int32
	var maxLive atomic.Int32
	srv, log := newServer(t, 0, func(ctx context.Context, conn *websocket.Conn, n int) {
		v := live.Add(1)
		for {
			m := maxLive.Load()
			if v <= m || maxLive.CompareAndSwap(m, v) {
				break
			}
		}
		defer live.Add(-1)
		echo(ctx, conn, n)
	})

	ch := New(urlFor(srv), Options{ReconnectDelay: testDelay})
	ch.Attach(1)
	waitOpen(t, ch)

	ch.Attach(1) // same session: no-op
	ch.Attach(2)
	waitOpen(t, ch)
	defer ch.Detach()

	require.Eventually(t, func() bool { return live.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxLive.Load())

	_, paths := log.snapshot()
	assert.Equal(t, []string{"/ws/chat/1", "/ws/chat/2"}, paths)
	assert.Equal(t, int64(2), ch.SessionID())
}

func TestOutboundFrameShape(t *testing.T) {
	data, err := json.Marshal(domain.OutboundFrame{Message: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi"}`, string(data))
}
