package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayServer struct {
	messages chan *redis.Message
	frames   chan []byte
	done     chan error
	url      string
}

func newRelayServer(t *testing.T, keepalive Keepalive) *relayServer {
	rs := &relayServer{
		messages: make(chan *redis.Message, 4),
		frames:   make(chan []byte, 4),
		done:     make(chan error, 1),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rs.done <- err
			return
		}
		defer conn.Close()
		rs.done <- Relay(context.Background(), conn, rs.messages, func(b []byte) { rs.frames <- b }, keepalive)
	}))
	t.Cleanup(srv.Close)
	rs.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return rs
}

// dial connects a client whose control frames are processed by a background
// reader; received text payloads land on the returned channel.
func dial(t *testing.T, url string, answerPings bool) (*websocket.Conn, <-chan string) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	if !answerPings {
		conn.SetPingHandler(func(string) error { return nil })
	}

	received := make(chan string, 4)
	go func() {
		defer close(received)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- string(data)
		}
	}()
	return conn, received
}

func TestRelayForwardsBothWays(t *testing.T) {
	rs := newRelayServer(t, DefaultKeepalive)
	conn, received := dial(t, rs.url, true)

	rs.messages <- &redis.Message{Payload: `{"type":"message"}`}
	select {
	case got := <-received:
		assert.Equal(t, `{"type":"message"}`, got)
	case <-time.After(2 * time.Second):
		t.Fatal("payload not relayed")
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`)))
	select {
	case got := <-rs.frames:
		assert.JSONEq(t, `{"type":"typing"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}

	close(rs.messages)
	select {
	case err := <-rs.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after the source closed")
	}
}

func TestRelayKeepsResponsiveClientAlive(t *testing.T) {
	keepalive := Keepalive{PongWait: 200 * time.Millisecond, PingPeriod: 50 * time.Millisecond, WriteWait: time.Second}
	rs := newRelayServer(t, keepalive)
	_, received := dial(t, rs.url, true)

	time.Sleep(4 * keepalive.PongWait)
	select {
	case err := <-rs.done:
		t.Fatalf("relay stopped for a client answering pings: %v", err)
	default:
	}

	rs.messages <- &redis.Message{Payload: "still here"}
	select {
	case got := <-received:
		assert.Equal(t, "still here", got)
	case <-time.After(2 * time.Second):
		t.Fatal("payload not relayed")
	}
}

func TestRelayDropsSilentClient(t *testing.T) {
	keepalive := Keepalive{PongWait: 200 * time.Millisecond, PingPeriod: 50 * time.Millisecond, WriteWait: time.Second}
	rs := newRelayServer(t, keepalive)
	_, received := dial(t, rs.url, false)

	select {
	case err := <-rs.done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("relay kept a client that never answered pings")
	}

	select {
	case _, ok := <-received:
		assert.False(t, ok, "client should see the connection closed")
	case <-time.After(2 * time.Second):
		t.Fatal("client connection left open")
	}
}

func TestKeepaliveDefaults(t *testing.T) {
	assert.Equal(t, DefaultKeepalive, Keepalive{}.withDefaults())

	k := Keepalive{PongWait: time.Second, PingPeriod: 2 * time.Second}.withDefaults()
	assert.Equal(t, 900*time.Millisecond, k.PingPeriod)
	assert.Equal(t, DefaultKeepalive.WriteWait, k.WriteWait)
}
