package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	handler "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/delivery/http"
	pickupDto "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/dto"
	pickup "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/service"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
	commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"
	"github.com/vargamihaly/bottlebuddy/pkg/ratelimiter"
)

// stubService answers every transition with err.
type stubService struct {
	pickup.Service
	err error
}

func (s stubService) AcceptRequest(context.Context, uuid.UUID, uuid.UUID) (*entity.PickupRequest, error) {
	return &entity.PickupRequest{Status: entity.PickupRequestStatusAccepted}, s.err
}

func (s stubService) CreatePickupRequest(context.Context, uuid.UUID, uuid.UUID, pickupDto.CreatePickupRequest) (*entity.PickupRequest, error) {
	return &entity.PickupRequest{Status: entity.PickupRequestStatusPending}, s.err
}

func (s stubService) ListMine(context.Context, uuid.UUID, entity.PickupRequestStatus, commonDto.PageQuery) (*pickupDto.PickupRequestPage, error) {
	return &pickupDto.PickupRequestPage{Data: []entity.PickupRequest{}}, s.err
}

func newRouter(svc pickup.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handler.NewPickupHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", uuid.NewString()) })
	r.POST("/listings/:id/pickup-requests", h.CreatePickupRequest)
	r.GET("/pickup-requests/mine", h.ListMine)
	r.POST("/pickup-requests/:id/accept", h.AcceptRequest)
	return r
}

func TestTransitionStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"forbidden", apperror.ErrForbidden, http.StatusForbidden},
		{"invalid transition", apperror.ErrInvalidTransition, http.StatusConflict},
		{"not found", apperror.ErrNotFound, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(stubService{err: tc.err})
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pickup-requests/"+uuid.NewString()+"/accept", nil))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestCreateWithoutBodyAndRateLimit(t *testing.T) {
	r := newRouter(stubService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/listings/"+uuid.NewString()+"/pickup-requests", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	limited := newRouter(stubService{err: &ratelimiter.RateLimitError{Message: "slow down", RetryAfter: 3 * time.Second}})
	w = httptest.NewRecorder()
	body := strings.NewReader(`{"message":"hi"}`)
	limited.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/listings/"+uuid.NewString()+"/pickup-requests", body))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get("Retry-After"))
}

func TestListMineValidatesStatus(t *testing.T) {
	r := newRouter(stubService{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pickup-requests/mine?status=accepted", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pickup-requests/mine?status=lost", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
