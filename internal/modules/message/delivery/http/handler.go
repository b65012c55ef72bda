package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	messageDto "github.com/vargamihaly/bottlebuddy/internal/modules/message/dto"
	message "github.com/vargamihaly/bottlebuddy/internal/modules/message/service"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/realtime"
	"github.com/vargamihaly/bottlebuddy/pkg/response"
	"github.com/vargamihaly/bottlebuddy/pkg/storage"
)

type MessageHandler struct {
	service     message.Service
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	keepalive   realtime.Keepalive
}

func NewMessageHandler(service message.Service, redisClient *redis.Client, checkOrigin func(r *http.Request) bool) *MessageHandler {
	return &MessageHandler{
		service:     service,
		redisClient: redisClient,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		keepalive: realtime.DefaultKeepalive,
	}
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	requestID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req messageDto.SendMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BindError(c, err)
		return
	}

	var image *storage.Upload
	if fileHeader, err := c.FormFile("image"); err == nil && fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			response.ResponseError(c, apperror.Validation("failed to read image"))
			return
		}
		defer file.Close()

		image = &storage.Upload{
			Reader:   file,
			FileName: fileHeader.Filename,
			Size:     fileHeader.Size,
		}
	}

	msg, err := h.service.SendMessage(c.Request.Context(), userID, requestID, req, image)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	requestID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var page commonDto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.service.ListMessages(c.Request.Context(), userID, requestID, page)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *MessageHandler) MarkConversationRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	requestID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	updated, err := h.service.MarkConversationRead(c.Request.Context(), userID, requestID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageDto.MarkReadResponse{Updated: updated})
}

func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	requestID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID, requestID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, messageDto.UnreadCountResponse{Count: count})
}

func (h *MessageHandler) Typing(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	requestID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.BroadcastTyping(c.Request.Context(), userID, requestID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// HandleWebSocket relays the conversation channel to the client and turns
// incoming typing frames into broadcasts.
func (h *MessageHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	requestID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if err := h.service.Authorize(c.Request.Context(), userID, requestID); err != nil {
		response.ResponseError(c, err)
		return
	}
	if h.redisClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime updates are not available"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	pubsub := h.redisClient.Subscribe(ctx, message.Channel(requestID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Str("request_id", requestID.String()).Msg("Failed to subscribe to conversation channel")
		return
	}

	onFrame := func(data []byte) {
		var frame messageDto.Frame
		if json.Unmarshal(data, &frame) != nil || frame.Type != messageDto.FrameTyping {
			return
		}
		if err := h.service.BroadcastTyping(ctx, userID, requestID); err != nil {
			log.Debug().Err(err).Str("request_id", requestID.String()).Msg("Typing broadcast failed")
		}
	}
	if err := realtime.Relay(ctx, conn, pubsub.Channel(), onFrame, h.keepalive); err != nil {
		log.Debug().Err(err).Str("request_id", requestID.String()).Msg("Conversation websocket closed")
	}
}
