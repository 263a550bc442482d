package domain

import (
	"context"
	"time"
)

// SessionStore persists conversational sessions. Both operations are total:
// a load miss or storage failure yields a fresh session, and save failures
// are logged and swallowed so the conversation degrades instead of breaking.
type SessionStore interface {
	Load(ctx context.Context, storeID, userID string) *Session
	Save(ctx context.Context, session *Session)
}

// DealRepo is the curated deal datastore queried before any web fallback.
type DealRepo interface {
	SearchByLocation(ctx context.Context, loc Location, category string, radiusKM float64, limit int) ([]Deal, error)
	SearchByArea(ctx context.Context, area, category string, limit int) ([]Deal, error)
}

// SearchHit is one result of the custom web search.
type SearchHit struct {
	Title   string
	Snippet string
	Link    string
}

// WebSearcher runs a country- and language-constrained text search.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// Place is a geocoder match for a named business.
type Place struct {
	PlaceID      string
	Name         string
	Address      string
	Latitude     float64
	Longitude    float64
	Phone        string
	Website      string
	OpeningHours []string
	PhotoRefs    []string
}

// Geocoder wraps the place service: reverse geocoding, autocomplete,
// detail lookups and place search for the operator flow.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (Location, error)
	Autocomplete(ctx context.Context, query string, limit int) ([]Location, error)
	PlaceDetails(ctx context.Context, placeID string) (Location, error)
	FindPlace(ctx context.Context, name string) (Place, error)
	PlacePhotos(ctx context.Context, placeID string, max int) ([]string, error)
}

// ChatAI produces a bounded free-text reply for chat mode.
type ChatAI interface {
	Reply(ctx context.Context, system string, conversation []ConversationEntry, maxChars int) (string, error)
}

// DealClassifier decides whether free text from an operator is a deal
// submission. Implementations may be best-effort; callers fall back to the
// keyword rule on error.
type DealClassifier interface {
	IsDealSubmission(ctx context.Context, text string) (bool, error)
}

// GenerationRequest is the input to the external media generator.
type GenerationRequest struct {
	DealText  string            `json:"deal_text"`
	Profile   RestaurantProfile `json:"profile"`
	ImageURLs []string          `json:"image_urls,omitempty"`
}

// GenerationResult is the generator's composed asset.
type GenerationResult struct {
	AssetURL string `json:"asset_url"`
	Kind     string `json:"kind,omitempty"`
}

// MediaGenerator composes marketing assets from a deal and a profile.
type MediaGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)
}

// ObjectStore persists uploaded bytes and returns a retrievable URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AlertRepo manages daily-alert subscriptions.
type AlertRepo interface {
	CreateAlert(ctx context.Context, alert Alert) (Alert, error)
	GetAlert(ctx context.Context, id string) (Alert, error)
	ListActiveDue(ctx context.Context, from, to time.Time) ([]Alert, error)
	UpdateAlertDispatch(ctx context.Context, alert Alert) error
	DeactivateAlert(ctx context.Context, id string) error
}

// ProfileRepo manages restaurant profiles.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID string) (RestaurantProfile, error)
	UpsertProfile(ctx context.Context, profile RestaurantProfile) (RestaurantProfile, error)
}
