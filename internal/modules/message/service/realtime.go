package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	messageDto "github.com/vargamihaly/bottlebuddy/internal/modules/message/dto"
)

// Channel is the redis pub/sub channel of a pickup request conversation.
func Channel(requestID uuid.UUID) string {
	return fmt.Sprintf("conversation:%s", requestID.String())
}

// Notifier broadcasts frames to everyone watching a conversation.
type Notifier interface {
	Broadcast(ctx context.Context, frame messageDto.Frame) error
}

type redisNotifier struct {
	rdb *redis.Client
}

// NewRedisNotifier returns a notifier publishing to redis. Without a client
// frames are discarded.
func NewRedisNotifier(rdb *redis.Client) Notifier {
	return &redisNotifier{rdb: rdb}
}

func (n *redisNotifier) Broadcast(ctx context.Context, frame messageDto.Frame) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return n.rdb.Publish(ctx, Channel(frame.RequestID), payload).Err()
}
