// Package realtime pumps redis pub/sub payloads to websocket clients and keeps
// idle connections alive with ping/pong.
package realtime

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const maxFrameSize = 4096

// Keepalive controls the ping/pong cycle. A client that does not answer a ping
// within PongWait is dropped.
type Keepalive struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

var DefaultKeepalive = Keepalive{
	PongWait:   60 * time.Second,
	PingPeriod: 54 * time.Second,
	WriteWait:  10 * time.Second,
}

func (k Keepalive) withDefaults() Keepalive {
	if k.PongWait <= 0 {
		k.PongWait = DefaultKeepalive.PongWait
	}
	if k.PingPeriod <= 0 || k.PingPeriod >= k.PongWait {
		k.PingPeriod = k.PongWait * 9 / 10
	}
	if k.WriteWait <= 0 {
		k.WriteWait = DefaultKeepalive.WriteWait
	}
	return k
}

// Relay writes every payload from messages to conn until messages closes, ctx
// ends or the client goes away. Inbound data frames are handed to onFrame when
// it is not nil. A normal close by the client is reported as nil.
func Relay(ctx context.Context, conn *websocket.Conn, messages <-chan *redis.Message, onFrame func([]byte), keepalive Keepalive) error {
	keepalive = keepalive.withDefaults()

	conn.SetReadLimit(maxFrameSize)
	if err := conn.SetReadDeadline(time.Now().Add(keepalive.PongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(keepalive.PongWait))
	})

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if onFrame != nil {
				onFrame(data)
			}
		}
	}()

	ticker := time.NewTicker(keepalive.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := write(conn, websocket.TextMessage, []byte(msg.Payload), keepalive.WriteWait); err != nil {
				return err
			}
		case <-ticker.C:
			if err := write(conn, websocket.PingMessage, nil, keepalive.WriteWait); err != nil {
				return err
			}
		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func write(conn *websocket.Conn, messageType int, data []byte, wait time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}
