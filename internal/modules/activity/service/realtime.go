package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vargamihaly/bottlebuddy/internal/events"
)

// Channel is the redis pub/sub channel streaming a user's activities.
func Channel(userID uuid.UUID) string {
	return fmt.Sprintf("user_activities:%s", userID.String())
}

// RealtimeHandler publishes committed activities to the owner's redis channel.
func RealtimeHandler(rdb *redis.Client) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		if rdb == nil || e.Activity == nil {
			return nil
		}

		payload, err := json.Marshal(e.Activity)
		if err != nil {
			return fmt.Errorf("marshal activity: %w", err)
		}
		return rdb.Publish(ctx, Channel(e.Activity.UserID), payload).Err()
	}
}
