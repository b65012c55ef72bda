package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	pickupDto "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/dto"
	pickup "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/service"
	"github.com/vargamihaly/bottlebuddy/pkg/response"
)

type PickupHandler struct {
	service pickup.Service
}

func NewPickupHandler(service pickup.Service) *PickupHandler {
	return &PickupHandler{service: service}
}

func (h *PickupHandler) CreatePickupRequest(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	listingID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req pickupDto.CreatePickupRequest
	// The body is optional.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BindError(c, err)
			return
		}
	}

	created, err := h.service.CreatePickupRequest(c.Request.Context(), userID, listingID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *PickupHandler) GetRequest(c *gin.Context) {
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

	r, err := h.service.GetRequest(c.Request.Context(), userID, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (h *PickupHandler) ListByListing(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	listingID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var query pickupDto.ListPickupRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.service.ListByListing(c.Request.Context(), userID, listingID, entity.PickupRequestStatus(query.Status), query.PageQuery)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *PickupHandler) ListMine(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var query pickupDto.ListPickupRequestsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.service.ListMine(c.Request.Context(), userID, entity.PickupRequestStatus(query.Status), query.PageQuery)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *PickupHandler) AcceptRequest(c *gin.Context) {
	h.transition(c, h.service.AcceptRequest)
}

func (h *PickupHandler) RejectRequest(c *gin.Context) {
	h.transition(c, h.service.RejectRequest)
}

func (h *PickupHandler) CancelRequest(c *gin.Context) {
	h.transition(c, h.service.CancelRequest)
}

func (h *PickupHandler) CompleteRequest(c *gin.Context) {
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

	result, err := h.service.CompleteRequest(c.Request.Context(), userID, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *PickupHandler) transition(c *gin.Context, fn func(ctx context.Context, actorID, id uuid.UUID) (*entity.PickupRequest, error)) {
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

	r, err := fn(c.Request.Context(), userID, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}
