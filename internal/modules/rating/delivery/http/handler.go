package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ratingDto "github.com/vargamihaly/bottlebuddy/internal/modules/rating/dto"
	rating "github.com/vargamihaly/bottlebuddy/internal/modules/rating/service"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/response"
)

type RatingHandler struct {
	service rating.Service
}

func NewRatingHandler(service rating.Service) *RatingHandler {
	return &RatingHandler{service: service}
}

func (h *RatingHandler) CreateRating(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	transactionID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req ratingDto.CreateRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	created, err := h.service.CreateRating(c.Request.Context(), userID, transactionID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *RatingHandler) ListRatingsForUser(c *gin.Context) {
	userID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var page commonDto.PageQuery
	if err := c.ShouldBindQuery(&page); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.service.ListRatingsForUser(c.Request.Context(), userID, page)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
