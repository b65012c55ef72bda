package push

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
	pushRepo "github.com/vargamihaly/bottlebuddy/internal/modules/push/repository"
)

// ErrInvalidToken is returned by a Sender when the device token will never
// be deliverable again.
var ErrInvalidToken = errors.New("invalid device token")

// Sender delivers one alert to one device.
type Sender interface {
	Send(ctx context.Context, deviceToken string, a *entity.UserActivity) error
}

type APNSConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

func (c APNSConfig) Enabled() bool {
	return c.KeyPath != "" && c.KeyID != "" && c.TeamID != "" && c.Topic != ""
}

type apnsSender struct {
	client *apns2.Client
	topic  string
}

// NewAPNSSender builds a token based APNs client from a .p8 key.
func NewAPNSSender(cfg APNSConfig) (Sender, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load apns key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &apnsSender{client: client, topic: cfg.Topic}, nil
}

func (s *apnsSender) Send(ctx context.Context, deviceToken string, a *entity.UserActivity) error {
	p := payload.NewPayload().
		AlertTitle(a.Title).
		AlertBody(a.Description).
		Sound("default").
		Custom("activity_id", a.ID.String()).
		Custom("type", string(a.Type))
	if a.ListingID != nil {
		p = p.Custom("listing_id", a.ListingID.String())
	}
	if a.PickupRequestID != nil {
		p = p.Custom("pickup_request_id", a.PickupRequestID.String())
	}

	res, err := s.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       s.topic,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("apns push: %w", err)
	}
	if res.Sent() {
		return nil
	}
	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return fmt.Errorf("%w: %s", ErrInvalidToken, res.Reason)
	}
	return fmt.Errorf("apns rejected push: %d %s", res.StatusCode, res.Reason)
}

// Handler sends every committed activity to the devices of its owner and
// forgets tokens APNs reports as dead. A nil sender disables push.
func Handler(repo pushRepo.Repository, sender Sender) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		if sender == nil || e.Activity == nil {
			return nil
		}

		tokens, err := repo.FindByUser(ctx, e.Activity.UserID)
		if err != nil {
			return fmt.Errorf("load device tokens: %w", err)
		}

		var errs []error
		for _, t := range tokens {
			err := sender.Send(ctx, t.Token, e.Activity)
			switch {
			case err == nil:
			case errors.Is(err, ErrInvalidToken):
				log.Info().Str("user_id", t.UserID.String()).Msg("Removing dead device token")
				if err := repo.DeleteToken(ctx, t.Token); err != nil {
					errs = append(errs, err)
				}
			default:
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
