package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	activityRepo "github.com/vargamihaly/bottlebuddy/internal/modules/activity/repository"
	activity "github.com/vargamihaly/bottlebuddy/internal/modules/activity/service"
	handler "github.com/vargamihaly/bottlebuddy/internal/modules/listing/delivery/http"
	listingRepo "github.com/vargamihaly/bottlebuddy/internal/modules/listing/repository"
	listing "github.com/vargamihaly/bottlebuddy/internal/modules/listing/service"
	pickupRepo "github.com/vargamihaly/bottlebuddy/internal/modules/pickup/repository"
	search "github.com/vargamihaly/bottlebuddy/internal/modules/search/service"
	"github.com/vargamihaly/bottlebuddy/internal/testutil"
	"github.com/vargamihaly/bottlebuddy/pkg/database"
)

func newRouter(t *testing.T, userID uuid.UUID) (*gin.Engine, *testutil.Recorder) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	published := &testutil.Recorder{}
	svc := listing.NewService(
		listingRepo.NewRepository(db),
		pickupRepo.NewRepository(db),
		activity.NewService(activityRepo.NewRepository(db)),
		database.NewTransactor(db),
		published,
		search.NewMeiliSearchService("", ""),
	)
	require.NoError(t, db.Create(&entity.User{ID: userID, Email: "owner@example.com", PasswordHash: "x"}).Error)

	h := handler.NewListingHandler(svc)
	r := gin.New()
	r.GET("/listings", h.ListListings)
	r.GET("/listings/:id", h.GetListing)
	authed := r.Group("/", func(c *gin.Context) { c.Set("user_id", userID.String()) })
	authed.POST("/listings", h.CreateListing)
	authed.DELETE("/listings/:id", h.DeleteListing)
	return r, published
}

func TestCreateAndFetchListing(t *testing.T) {
	userID := uuid.New()
	r, _ := newRouter(t, userID)

	body := `{"title":"Bottles","bottle_count":12,"location_address":"Andrássy út 5","estimated_refund":"6.00","split_percentage":30}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/listings", bytes.NewBufferString(body)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created entity.BottleListing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, userID, created.OwnerID)
	assert.Equal(t, "6", created.EstimatedRefund.String())
	assert.Equal(t, 30, created.SplitPercentage)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/listings/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/listings?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data []entity.BottleListing `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
}

func TestListingErrors(t *testing.T) {
	r, _ := newRouter(t, uuid.New())

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed id", http.MethodGet, "/listings/nope", "", http.StatusNotFound},
		{"missing listing", http.MethodGet, "/listings/" + uuid.NewString(), "", http.StatusNotFound},
		{"bad json", http.MethodPost, "/listings", `{"title":`, http.StatusBadRequest},
		{"invalid fields", http.MethodPost, "/listings", `{"title":"x","bottle_count":0,"location_address":"Somewhere","estimated_refund":"1"}`, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/listings?status=lost", "", http.StatusBadRequest},
		{"delete missing", http.MethodDelete, "/listings/" + uuid.NewString(), "", http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body)))
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}
