package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	connects    chan struct{}
	messages    chan any
	disconnects chan struct{}
	errors      chan error
}

func newRecorder() *recorder {
	return &recorder{
		connects:    make(chan struct{}, 64),
		messages:    make(chan any, 64),
		disconnects: make(chan struct{}, 64),
		errors:      make(chan error, 64),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnConnect:    func() { r.connects <- struct{}{} },
		OnMessage:    func(msg any) { r.messages <- msg },
		OnDisconnect: func() { r.disconnects <- struct{}{} },
		OnError:      func(err error) { r.errors <- err },
	}
}

func wait[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// newServer upgrades every request, sends frames, then either closes the
// connection or holds it open until the client goes away.
func newServer(t *testing.T, frames []string, hold bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var accepted atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		accepted.Add(1)

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		if hold {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	t.Cleanup(server.Close)
	return server, &accepted
}

func TestClient_DeliversDecodedMessages(t *testing.T) {
	server, _ := newServer(t, []string{`{"event":"page","id":7}`, `not json`, `["a"]`}, true)
	rec := newRecorder()
	c := New(Options{URL: wsURL(server), Handlers: rec.handlers(), Logger: zap.NewNop()})
	c.Start(context.Background())
	defer c.Close()

	wait(t, rec.connects, "connect")
	msg := wait(t, rec.messages, "first message")
	assert.Equal(t, map[string]any{"event": "page", "id": float64(7)}, msg)

	err := wait(t, rec.errors, "decode error")
	assert.Contains(t, err.Error(), "decode message")

	msg = wait(t, rec.messages, "second message")
	assert.Equal(t, []any{"a"}, msg)
	assert.Equal(t, Connected, c.State())
}

func TestClient_ReconnectsAfterServerClose(t *testing.T) {
	server, accepted := newServer(t, nil, false)
	rec := newRecorder()
	c := New(Options{
		URL:            wsURL(server),
		ReconnectDelay: 10 * time.Millisecond,
		Handlers:       rec.handlers(),
		Logger:         zap.NewNop(),
	})
	c.Start(context.Background())
	defer c.Close()

	wait(t, rec.connects, "first connect")
	wait(t, rec.disconnects, "disconnect")
	wait(t, rec.connects, "reconnect")
	assert.GreaterOrEqual(t, accepted.Load(), int32(2))
}

func TestClient_DialFailureReportsAndRetries(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	rec := newRecorder()
	c := New(Options{
		URL:            url,
		ReconnectDelay: 10 * time.Millisecond,
		Handlers:       rec.handlers(),
		Logger:         zap.NewNop(),
	})
	c.Start(context.Background())
	defer c.Close()

	for i := 0; i < 2; i++ {
		err := wait(t, rec.errors, "dial error")
		assert.Contains(t, err.Error(), "notify: dial")
		wait(t, rec.disconnects, "disconnect")
	}
	assert.Empty(t, rec.connects)
}

func TestClient_CloseStopsReconnecting(t *testing.T) {
	server, accepted := newServer(t, nil, true)
	rec := newRecorder()
	c := New(Options{
		URL:            wsURL(server),
		ReconnectDelay: 10 * time.Millisecond,
		Handlers:       rec.handlers(),
		Logger:         zap.NewNop(),
	})
	c.Start(context.Background())

	wait(t, rec.connects, "connect")
	require.NoError(t, c.Close())
	assert.Equal(t, Disconnected, c.State())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.disconnects, "close must not report a disconnect")
	assert.Equal(t, int32(1), accepted.Load())

	require.NoError(t, c.Close())
	c.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), accepted.Load(), "a closed client cannot be restarted")
}

func TestClient_ContextCancelStops(t *testing.T) {
	server, _ := newServer(t, nil, true)
	rec := newRecorder()
	c := New(Options{URL: wsURL(server), Handlers: rec.handlers(), Logger: zap.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	wait(t, rec.connects, "connect")

	cancel()
	require.NoError(t, c.Close())
	assert.Empty(t, rec.disconnects)
}

func TestClient_CloseBeforeStart(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:1/", Logger: zap.NewNop()})
	assert.NoError(t, c.Close())
	assert.Equal(t, Disconnected, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "unknown", State(9).String())
}
