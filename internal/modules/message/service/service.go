package message

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	messageDto "github.com/vargamihaly/bottlebuddy/internal/modules/message/dto"
	messageRepo "github.com/vargamihaly/bottlebuddy/internal/modules/message/repository"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/ratelimiter"
	"github.com/vargamihaly/bottlebuddy/pkg/storage"
)

const rateLimitAction = "message"

// Conversations resolves who may take part in a pickup request's conversation.
type Conversations interface {
	Participants(ctx context.Context, userID, requestID uuid.UUID) (*entity.PickupRequest, *entity.BottleListing, error)
}

type Service interface {
	SendMessage(ctx context.Context, senderID, requestID uuid.UUID, req messageDto.SendMessageRequest, image *storage.Upload) (*entity.Message, error)
	ListMessages(ctx context.Context, userID, requestID uuid.UUID, page commonDto.PageQuery) (*messageDto.MessagePage, error)
	MarkConversationRead(ctx context.Context, readerID, requestID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, readerID, requestID uuid.UUID) (int64, error)
	BroadcastTyping(ctx context.Context, userID, requestID uuid.UUID) error
	// Authorize checks that userID may watch the conversation.
	Authorize(ctx context.Context, userID, requestID uuid.UUID) error
}

type Config struct {
	UploadFolder    string
	RateLimitWindow time.Duration
}

type service struct {
	repo          messageRepo.Repository
	conversations Conversations
	notifier      Notifier
	imageStorage  storage.ImageStorage
	limiter       ratelimiter.Limiter
	sanitizer     *bluemonday.Policy
	cfg           Config
}

func NewService(
	repo messageRepo.Repository,
	conversations Conversations,
	notifier Notifier,
	imageStorage storage.ImageStorage,
	limiter ratelimiter.Limiter,
	cfg Config,
) Service {
	cfg.UploadFolder = strings.Trim(cfg.UploadFolder+"/messages", "/")
	return &service{
		repo:          repo,
		conversations: conversations,
		notifier:      notifier,
		imageStorage:  imageStorage,
		limiter:       limiter,
		sanitizer:     bluemonday.StrictPolicy(),
		cfg:           cfg,
	}
}

func (s *service) SendMessage(ctx context.Context, senderID, requestID uuid.UUID, req messageDto.SendMessageRequest, image *storage.Upload) (*entity.Message, error) {
	if _, _, err := s.conversations.Participants(ctx, senderID, requestID); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(req.Content)))
	hasImage := image != nil && image.Reader != nil
	switch {
	case content == "" && !hasImage:
		return nil, apperror.Validation("a message needs content or an image")
	case content != "" && hasImage:
		return nil, apperror.Validation("a message carries either content or an image, not both")
	case utf8.RuneCountInString(content) > messageDto.MaxContentLength:
		return nil, apperror.Validation(fmt.Sprintf("content must be at most %d characters", messageDto.MaxContentLength))
	}

	if err := s.limiter.Allow(ctx, senderID, rateLimitAction, s.cfg.RateLimitWindow); err != nil {
		return nil, err
	}

	msg := &entity.Message{
		PickupRequestID: requestID,
		SenderID:        senderID,
		Content:         content,
	}

	if hasImage {
		if s.imageStorage == nil {
			return nil, apperror.Validation("image uploads are not configured")
		}
		if err := storage.ValidateImage(image); err != nil {
			return nil, err
		}
		url, err := s.imageStorage.UploadImage(ctx, image.Reader, s.cfg.UploadFolder, image.FileName)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		msg.ImageURL = &url
	}

	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.broadcast(ctx, messageDto.Frame{Type: messageDto.FrameMessage, RequestID: requestID, UserID: senderID, Message: msg})
	return msg, nil
}

func (s *service) ListMessages(ctx context.Context, userID, requestID uuid.UUID, page commonDto.PageQuery) (*messageDto.MessagePage, error) {
	if _, _, err := s.conversations.Participants(ctx, userID, requestID); err != nil {
		return nil, err
	}

	page = page.Normalize()
	items, total, err := s.repo.FindByRequest(ctx, requestID, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Message{}
	}
	return &messageDto.MessagePage{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *service) MarkConversationRead(ctx context.Context, readerID, requestID uuid.UUID) (int64, error) {
	if _, _, err := s.conversations.Participants(ctx, readerID, requestID); err != nil {
		return 0, err
	}

	updated, err := s.repo.MarkConversationRead(ctx, requestID, readerID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.broadcast(ctx, messageDto.Frame{Type: messageDto.FrameRead, RequestID: requestID, UserID: readerID})
	}
	return updated, nil
}

func (s *service) UnreadCount(ctx context.Context, readerID, requestID uuid.UUID) (int64, error) {
	if _, _, err := s.conversations.Participants(ctx, readerID, requestID); err != nil {
		return 0, err
	}
	return s.repo.CountUnread(ctx, requestID, readerID)
}

func (s *service) BroadcastTyping(ctx context.Context, userID, requestID uuid.UUID) error {
	if _, _, err := s.conversations.Participants(ctx, userID, requestID); err != nil {
		return err
	}
	s.broadcast(ctx, messageDto.Frame{Type: messageDto.FrameTyping, RequestID: requestID, UserID: userID})
	return nil
}

func (s *service) Authorize(ctx context.Context, userID, requestID uuid.UUID) error {
	_, _, err := s.conversations.Participants(ctx, userID, requestID)
	return err
}

// broadcast never fails the caller; the message is already stored.
func (s *service) broadcast(ctx context.Context, frame messageDto.Frame) {
	if err := s.notifier.Broadcast(ctx, frame); err != nil {
		log.Warn().Err(err).
			Str("request_id", frame.RequestID.String()).
			Str("type", frame.Type).
			Msg("Failed to broadcast conversation frame")
	}
}
