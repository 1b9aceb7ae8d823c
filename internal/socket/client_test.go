// ABOUTME: Tests for the websocket client against an in-process server
// ABOUTME: Covers auth headers, frame fan-out, keepalive, malformed frames and shutdown

package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	conns chan *websocket.Conn
	reqs  chan *http.Request
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := &testServer{
		conns: make(chan *websocket.Conn, 1),
		reqs:  make(chan *http.Request, 1),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.reqs <- r
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(time.Second):
		t.Fatal("server never accepted a connection")
		return nil
	}
}

func TestDial_SendsAuthAndUserID(t *testing.T) {
	ts := newTestServer(t)

	c, err := Dial(t.Context(), ts.wsURL()+"/ws", Options{UserID: "user-1", Token: "tok"}, nil)
	require.NoError(t, err)
	defer c.Close()

	r := <-ts.reqs
	assert.Equal(t, "/ws", r.URL.Path)
	assert.Equal(t, "user-1", r.URL.Query().Get("userId"))
	assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
}

func TestDial_Failure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := Dial(t.Context(), "ws"+strings.TrimPrefix(ts.URL, "http"), Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_RunPublishesFrames(t *testing.T) {
	ts := newTestServer(t)

	c, err := Dial(t.Context(), ts.wsURL(), Options{}, nil)
	require.NoError(t, err)
	server := ts.accept(t)

	msgs, _ := c.On(t.Context(), "newMessage")

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(t.Context()) }()

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, server.WriteJSON(Frame{Event: "getOnlineUsers", Data: json.RawMessage(`["a"]`)}))
	require.NoError(t, server.WriteJSON(Frame{Event: "newMessage", Data: json.RawMessage(`{"_id":"m1","senderId":"a"}`)}))

	assert.JSONEq(t, `{"_id":"m1","senderId":"a"}`, string(receive(t, msgs)))

	require.NoError(t, server.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after server close")
	}
	assertClosed(t, msgs)
}

func TestClient_RunStopsOnContextCancel(t *testing.T) {
	ts := newTestServer(t)

	c, err := Dial(t.Context(), ts.wsURL(), Options{}, nil)
	require.NoError(t, err)
	ts.accept(t)

	ctx, cancel := context.WithCancel(t.Context())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_RunReportsBrokenConnection(t *testing.T) {
	ts := newTestServer(t)

	c, err := Dial(t.Context(), ts.wsURL(), Options{}, nil)
	require.NoError(t, err)
	server := ts.accept(t)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(t.Context()) }()

	server.UnderlyingConn().Close()

	select {
	case err := <-runErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after connection loss")
	}
}

func TestClient_IdleConnectionStaysOpen(t *testing.T) {
	ts := newTestServer(t)

	c, err := Dial(t.Context(), ts.wsURL(), Options{ReadTimeout: 500 * time.Millisecond}, nil)
	require.NoError(t, err)
	server := ts.accept(t)

	// Reading lets the default ping handler answer with pongs.
	pings := make(chan struct{}, 16)
	server.SetPingHandler(func(appData string) error {
		select {
		case pings <- struct{}{}:
		default:
		}
		return server.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := server.ReadMessage(); err != nil {
				return
			}
		}
	}()

	msgs, _ := c.On(t.Context(), "newMessage")
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(t.Context()) }()

	select {
	case err := <-runErr:
		t.Fatalf("Run returned on an idle connection: %v", err)
	case <-time.After(1500 * time.Millisecond):
	}

	select {
	case <-pings:
	default:
		t.Fatal("client never pinged the server")
	}

	require.NoError(t, server.WriteJSON(Frame{Event: "newMessage", Data: json.RawMessage(`{"_id":"late"}`)}))
	assert.JSONEq(t, `{"_id":"late"}`, string(receive(t, msgs)))
}

func TestClient_SilentServerTimesOut(t *testing.T) {
	ts := newTestServer(t)

	c, err := Dial(t.Context(), ts.wsURL(), Options{ReadTimeout: 200 * time.Millisecond}, nil)
	require.NoError(t, err)
	// The server never reads, so pings go unanswered.
	ts.accept(t)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(t.Context()) }()

	select {
	case err := <-runErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not time out without pongs")
	}
}
