package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcastsReload(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, hub.Reload("shell changed"))

	for _, conn := range []*websocket.Conn{a, b} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		typ, data, err := conn.Read(ctx)
		cancel()
		require.NoError(t, err)
		assert.Equal(t, websocket.MessageText, typ)

		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, MessageReload, msg.Type)
		assert.Equal(t, "shell changed", msg.Reason)
		assert.False(t, msg.Timestamp.IsZero())
	}

	require.NoError(t, a.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	// b must be reading to complete the close handshake.
	readErr := make(chan error, 1)
	go func() {
		_, _, err := b.Read(context.Background())
		readErr <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.Equal(t, 0, hub.Clients())
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(<-readErr))
	b.CloseNow()
}

func TestHubRejectsAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub()
	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, hub.Reload("late"))
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(WithOrigins("localhost:8080"))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
	})
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
	require.NoError(t, hub.Shutdown(ctx))
}

func TestInject(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
		want string
	}{
		{"before body", "<html><body><p>x</p></body></html>", "<html><body><p>x</p>" + Snippet("/ws") + "</body></html>"},
		{"upper case", "<BODY>x</BODY>", "<BODY>x" + Snippet("/ws") + "</BODY>"},
		{"no body", "<p>x</p>", "<p>x</p>" + Snippet("/ws")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Inject(tc.doc, "/ws"))
		})
	}
	assert.Contains(t, Snippet("/ws"), `"/ws"`)
	assert.Contains(t, Snippet("/ws"), `"reload"`)
}
