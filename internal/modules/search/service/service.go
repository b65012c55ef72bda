package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"github.com/vargamihaly/bottlebuddy/internal/entity"
	"github.com/vargamihaly/bottlebuddy/internal/events"
)

const listingsIndex = "listings"

// ErrDisabled is returned when no search backend is configured. Callers fall
// back to database queries.
var ErrDisabled = errors.New("search is not configured")

type Service interface {
	IndexListing(listing *entity.BottleListing) error
	DeleteListing(id uuid.UUID) error
	SearchListings(ctx context.Context, query string, offset, limit int) ([]uuid.UUID, int64, error)
}

type meiliSearchService struct {
	client    meilisearch.ServiceManager
	sanitizer *bluemonday.Policy
}

// NewMeiliSearchService returns a disabled service when host is empty.
func NewMeiliSearchService(host, apiKey string) Service {
	if host == "" {
		log.Warn().Msg("MEILISEARCH_HOST is not set, listing search falls back to the database")
		return disabled{}
	}

	s := &meiliSearchService{
		client:    meilisearch.New(host, meilisearch.WithAPIKey(apiKey)),
		sanitizer: newSanitizer(),
	}
	s.initIndexes()
	return s
}

func (s *meiliSearchService) initIndexes() {
	filterable := []any{"status", "owner_id"}
	if _, err := s.client.Index(listingsIndex).UpdateFilterableAttributes(&filterable); err != nil {
		log.Error().Err(err).Msg("Failed to update listings filterable attributes")
	}

	sortable := []string{"created_at", "bottle_count"}
	if _, err := s.client.Index(listingsIndex).UpdateSortableAttributes(&sortable); err != nil {
		log.Error().Err(err).Msg("Failed to update listings sortable attributes")
	}

	log.Info().Msg("Meilisearch indexes initialized")
}

type listingDoc struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	LocationAddress string  `json:"location_address"`
	BottleCount     int     `json:"bottle_count"`
	EstimatedRefund string  `json:"estimated_refund"`
	Status          string  `json:"status"`
	OwnerID         string  `json:"owner_id"`
	CreatedAt       int64   `json:"created_at"`
	Geo             *geoDoc `json:"_geo,omitempty"`
}

type geoDoc struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *meiliSearchService) cleanText(content string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s.sanitizer.Sanitize(content))), " ")
}

func (s *meiliSearchService) toDoc(l *entity.BottleListing) listingDoc {
	doc := listingDoc{
		ID:              l.ID.String(),
		Title:           s.cleanText(l.Title),
		Description:     s.cleanText(l.Description),
		LocationAddress: s.cleanText(l.LocationAddress),
		BottleCount:     l.BottleCount,
		EstimatedRefund: l.EstimatedRefund.StringFixed(2),
		Status:          string(l.Status),
		OwnerID:         l.OwnerID.String(),
		CreatedAt:       l.CreatedAt.Unix(),
	}
	if l.Latitude != nil && l.Longitude != nil {
		doc.Geo = &geoDoc{Lat: *l.Latitude, Lng: *l.Longitude}
	}
	return doc
}

func (s *meiliSearchService) IndexListing(l *entity.BottleListing) error {
	task, err := s.client.Index(listingsIndex).AddDocuments([]listingDoc{s.toDoc(l)}, strPtr("id"))
	if err != nil {
		return fmt.Errorf("index listing %s: %w", l.ID, err)
	}
	log.Debug().Str("listing_id", l.ID.String()).Int64("task_uid", task.TaskUID).Msg("Indexed listing")
	return nil
}

func (s *meiliSearchService) DeleteListing(id uuid.UUID) error {
	if _, err := s.client.Index(listingsIndex).DeleteDocument(id.String()); err != nil {
		return fmt.Errorf("delete listing %s from index: %w", id, err)
	}
	return nil
}

type searchHits struct {
	Hits []struct {
		ID string `json:"id"`
	} `json:"hits"`
	EstimatedTotalHits int64 `json:"estimatedTotalHits"`
}

// SearchListings returns matching open listing ids in relevance order.
func (s *meiliSearchService) SearchListings(ctx context.Context, query string, offset, limit int) ([]uuid.UUID, int64, error) {
	raw, err := s.client.Index(listingsIndex).SearchRaw(query, &meilisearch.SearchRequest{
		Offset:               int64(offset),
		Limit:                int64(limit),
		Filter:               fmt.Sprintf("status = %q", entity.ListingStatusOpen),
		AttributesToRetrieve: []string{"id"},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("search listings: %w", err)
	}

	var res searchHits
	if err := json.Unmarshal(*raw, &res); err != nil {
		return nil, 0, fmt.Errorf("decode search response: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, res.EstimatedTotalHits, nil
}

// ListingHandler keeps the index in sync with committed listing changes. Only
// open listings stay searchable.
func ListingHandler(s Service) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		if e.Listing == nil {
			return nil
		}
		if e.Kind == events.KindListingChanged && e.Listing.Status == entity.ListingStatusOpen {
			return ignoreDisabled(s.IndexListing(e.Listing))
		}
		return ignoreDisabled(s.DeleteListing(e.Listing.ID))
	}
}

func ignoreDisabled(err error) error {
	if errors.Is(err, ErrDisabled) {
		return nil
	}
	return err
}

type disabled struct{}

func (disabled) IndexListing(*entity.BottleListing) error { return ErrDisabled }
func (disabled) DeleteListing(uuid.UUID) error            { return ErrDisabled }
func (disabled) SearchListings(context.Context, string, int, int) ([]uuid.UUID, int64, error) {
	return nil, 0, ErrDisabled
}

func newSanitizer() *bluemonday.Policy {
	return bluemonday.StrictPolicy()
}

func strPtr(s string) *string {
	return &s
}
