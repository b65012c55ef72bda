package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	activityDto "github.com/vargamihaly/bottlebuddy/internal/modules/activity/dto"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	"github.com/vargamihaly/bottlebuddy/pkg/realtime"
	"github.com/vargamihaly/bottlebuddy/pkg/response"
)

type ActivityHandler struct {
	service     activity.Service
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	keepalive   realtime.Keepalive
}

func NewActivityHandler(service activity.Service, redisClient *redis.Client, checkOrigin func(r *http.Request) bool) *ActivityHandler {
	return &ActivityHandler{
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

func (h *ActivityHandler) GetActivities(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var query activityDto.ListActivitiesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), userID, query.UnreadOnly, query.PageQuery)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ActivityHandler) UnreadCount(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, activityDto.UnreadCountResponse{Count: count})
}

func (h *ActivityHandler) MarkAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), userID, id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}

func (h *ActivityHandler) MarkAllAsRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	updated, err := h.service.MarkAllAsRead(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all activities marked as read", "updated": updated})
}

// HandleWebSocket streams the caller's activity channel. The route sits behind
// the auth middleware, which also accepts ?token= for browsers.
func (h *ActivityHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
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
	pubsub := h.redisClient.Subscribe(ctx, activity.Channel(userID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to subscribe to activity channel")
		return
	}

	if err := realtime.Relay(ctx, conn, pubsub.Channel(), nil, h.keepalive); err != nil {
		log.Debug().Err(err).Str("user_id", userID.String()).Msg("Activity websocket closed")
	}
}
