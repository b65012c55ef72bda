package dto

import (
	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
)

const MaxContentLength = 1000

// SendMessageRequest is bound from JSON or from a multipart form carrying an
// image file.
type SendMessageRequest struct {
	Content string `json:"content" form:"content"`
}

type MessagePage = commonDto.Paginated[entity.Message]

// Frame is what conversation sockets send and receive.
type Frame struct {
	Type      string          `json:"type"`
	RequestID uuid.UUID       `json:"pickup_request_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Message   *entity.Message `json:"message,omitempty"`
}

const (
	FrameMessage = "message"
	FrameTyping  = "typing"
	FrameRead    = "read"
)

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}
