package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	listingDto "github.com/vargamihaly/bottlebuddy/internal/modules/listing/dto"
	listingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/listing/repository"
	listing "github.com/vargamihaly/bottlebuddy/internal/modules/listing/service"
	"github.com/vargamihaly/bottlebuddy/pkg/response"
)

type ListingHandler struct {
	service listing.Service
}

func NewListingHandler(service listing.Service) *ListingHandler {
	return &ListingHandler{service: service}
}

func (h *ListingHandler) CreateListing(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req listingDto.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	created, err := h.service.CreateListing(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *ListingHandler) GetListing(c *gin.Context) {
	id, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	l, err := h.service.GetListing(c.Request.Context(), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func (h *ListingHandler) ListListings(c *gin.Context) {
	var query listingDto.ListListingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	filter := listingRepo.Filter{Status: entity.ListingStatus(query.Status)}
	if query.OwnerID != "" {
		filter.OwnerID = uuid.MustParse(query.OwnerID)
	}
	// Browsing defaults to listings that can still be requested.
	if filter.Status == "" && filter.OwnerID == uuid.Nil {
		filter.Status = entity.ListingStatusOpen
	}

	result, err := h.service.ListListings(c.Request.Context(), filter, query.PageQuery)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ListingHandler) ListMyListings(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var query listingDto.ListListingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.service.ListMyListings(c.Request.Context(), userID, entity.ListingStatus(query.Status), query.PageQuery)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ListingHandler) SearchListings(c *gin.Context) {
	var query listingDto.SearchListingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.service.SearchListings(c.Request.Context(), query.Q, query.PageQuery)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ListingHandler) UpdateListing(c *gin.Context) {
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

	var req listingDto.UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	updated, err := h.service.UpdateListing(c.Request.Context(), userID, id, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (h *ListingHandler) CancelListing(c *gin.Context) {
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

	cancelled, err := h.service.CancelListing(c.Request.Context(), userID, id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, cancelled)
}

func (h *ListingHandler) DeleteListing(c *gin.Context) {
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

	if err := h.service.DeleteListing(c.Request.Context(), userID, id); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
