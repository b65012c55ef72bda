package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pushDto "github.com/vargamihaly/bottlebuddy/internal/modules/push/dto"
	push "github.com/vargamihaly/bottlebuddy/internal/modules/push/service"
	"github.com/vargamihaly/bottlebuddy/pkg/response"
)

type PushHandler struct {
	service push.Service
}

func NewPushHandler(service push.Service) *PushHandler {
	return &PushHandler{service: service}
}

func (h *PushHandler) RegisterDeviceToken(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req pushDto.RegisterDeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	token, err := h.service.RegisterDeviceToken(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, token)
}

func (h *PushHandler) UnregisterDeviceToken(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.UnregisterDeviceToken(c.Request.Context(), userID, c.Param("token")); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
