package domain

import (
	"strings"
	"time"
)

// Step identifies the conversation state of a user.
type Step string

// Consumer-flow steps.
const (
	StepWelcome           Step = "welcome"
	StepLocationSearch    Step = "location_search"
	StepLocationConfirmed Step = "location_confirmed"
	StepSearchingDeals    Step = "searching_deals"
	StepDealsShown        Step = "deals_shown"
	StepChatMode          Step = "chat_mode"
	StepAlertSetup        Step = "alert_setup"
	StepAlertTimeSelected Step = "alert_time_selected"
	StepAlertCreated      Step = "alert_created"
)

// Operator-flow steps.
const (
	StepCollectRestaurantName   Step = "collect_restaurant_name"
	StepRestaurantConfirmed     Step = "restaurant_confirmed"
	StepCollectRestaurantImages Step = "collect_restaurant_images"
	StepCollectDealDetails      Step = "collect_deal_details"
	StepGenerateContent         Step = "generate_content"
	StepContentGenerated        Step = "content_generated"
	StepContentApproved         Step = "content_approved"
)

// LocationSource records how a location entered the conversation.
type LocationSource string

const (
	LocationSourceGPS        LocationSource = "gps"
	LocationSourceTyped      LocationSource = "typed"
	LocationSourceSuggestion LocationSource = "suggestion"
	LocationSourcePopular    LocationSource = "popular"
)

// Location is a resolved point inside the operating country.
type Location struct {
	Latitude         float64        `json:"latitude"`
	Longitude        float64        `json:"longitude"`
	DisplayName      string         `json:"display_name"`
	Area             string         `json:"area"`
	FormattedAddress string         `json:"formatted_address,omitempty"`
	PlaceID          string         `json:"place_id,omitempty"`
	Source           LocationSource `json:"source"`
}

// Deal source tiers, ordered by authority for ranking.
const (
	DealSourceDatastore = "datastore"
	DealSourceCurated   = "curated"
	DealSourceSocial    = "social"
	DealSourceWeb       = "web"
)

// Deal is a commercial offer shown to a user.
type Deal struct {
	DealID       string    `json:"dealId,omitempty"`
	AltID        string    `json:"id,omitempty"`
	BusinessName string    `json:"businessName"`
	Offer        string    `json:"offer"`
	Address      string    `json:"address"`
	Description  string    `json:"description,omitempty"`
	Validity     string    `json:"validity,omitempty"`
	Category     string    `json:"category"`
	Source       string    `json:"source"`
	Latitude     float64   `json:"latitude,omitempty"`
	Longitude    float64   `json:"longitude,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	PostedAt     time.Time `json:"postedAt,omitempty"`
}

// Identity returns the deduplication key of a deal. DealID wins over the
// legacy AltID; a deal with neither has no identity and is never excluded.
func (d Deal) Identity() string {
	if d.DealID != "" {
		return d.DealID
	}
	return d.AltID
}

// SourceAuthority maps a deal source to its ranking tier, highest first.
func SourceAuthority(source string) int {
	switch source {
	case DealSourceDatastore:
		return 3
	case DealSourceCurated:
		return 2
	case DealSourceSocial:
		return 1
	default:
		return 0
	}
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationEntry is one turn of the stored conversation.
type ConversationEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SentMessage is a fingerprint of an outbound message within a session.
type SentMessage struct {
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
}

// RestaurantCandidate is the operator-flow scratch state before a profile
// is confirmed and persisted.
type RestaurantCandidate struct {
	Name      string   `json:"name"`
	PlaceID   string   `json:"place_id"`
	Address   string   `json:"address"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Photos    []string `json:"photos,omitempty"`
}

// UserState is the conversation-machine snapshot stored inside a session.
type UserState struct {
	Step             Step                 `json:"step"`
	Category         string               `json:"category,omitempty"`
	Location         *Location            `json:"location,omitempty"`
	LastDeals        []Deal               `json:"last_deals,omitempty"`
	ChatContext      string               `json:"chat_context,omitempty"`
	ChatInteractions int                  `json:"chat_interactions,omitempty"`
	AlertTime        string               `json:"alert_time,omitempty"`
	Restaurant       *RestaurantCandidate `json:"restaurant,omitempty"`
	ImageCount       int                  `json:"image_count,omitempty"`
	DealText         string               `json:"deal_text,omitempty"`
	GenerationJobID  string               `json:"generation_job_id,omitempty"`
}

// Session bounds enforced by the store on every save.
const (
	MaxConversationEntries = 20
	MaxSentMessages        = 50
	MaxSharedDealIDs       = 200
)

// Session is the durable per-user conversational record. A missing session
// is equivalent to a fresh one; handlers must be total over it.
type Session struct {
	StoreID         string              `json:"store_id"`
	UserID          string              `json:"user_id"`
	Conversation    []ConversationEntry `json:"conversation,omitempty"`
	SentMessages    []SentMessage       `json:"sent_messages,omitempty"`
	SharedDealIDs   []string            `json:"shared_deal_ids,omitempty"`
	State           UserState           `json:"user_state"`
	LastInteraction int64               `json:"last_interaction"`
	Timestamp       int64               `json:"timestamp"`
	TTLSeconds      int64               `json:"ttl,omitempty"`
}

// NewSession returns a fresh session at the welcome step.
func NewSession(storeID, userID string) *Session {
	return &Session{
		StoreID: storeID,
		UserID:  userID,
		State:   UserState{Step: StepWelcome},
	}
}

// SessionID is the composite key used by the fallback store.
func (s *Session) SessionID() string {
	return s.StoreID + ":" + s.UserID
}

// AppendConversation records one conversation turn.
func (s *Session) AppendConversation(role, content string) {
	content = strings.TrimSpace(content)
	if role == "" || content == "" {
		return
	}
	s.Conversation = append(s.Conversation, ConversationEntry{Role: role, Content: content})
}

// SharedSet returns the shown-deal identifiers as a lookup set.
func (s *Session) SharedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.SharedDealIDs))
	for _, id := range s.SharedDealIDs {
		set[id] = struct{}{}
	}
	return set
}

// MarkShared adds deal identifiers to the shown set, preserving order and
// set semantics. The length cap is applied by the store on save.
func (s *Session) MarkShared(deals []Deal) {
	seen := s.SharedSet()
	for _, d := range deals {
		id := d.Identity()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s.SharedDealIDs = append(s.SharedDealIDs, id)
	}
}

// Touch refreshes the interaction timestamps.
func (s *Session) Touch(now time.Time) {
	ms := now.UnixMilli()
	s.LastInteraction = ms
	s.Timestamp = ms
}

// IdleSince reports how long the session has been inactive.
func (s *Session) IdleSince(now time.Time) time.Duration {
	if s.Timestamp == 0 {
		return 0
	}
	return now.Sub(time.UnixMilli(s.Timestamp))
}

// Alert is a per-user daily deal subscription.
type Alert struct {
	ID            string     `json:"alert_id"`
	UserID        string     `json:"user_id"`
	StoreID       string     `json:"store_id"`
	Location      Location   `json:"location"`
	Category      string     `json:"category"`
	PreferredTime string     `json:"preferred_time"`
	Timezone      string     `json:"timezone"`
	IsActive      bool       `json:"is_active"`
	LastSent      *time.Time `json:"last_sent,omitempty"`
	NextSendTime  time.Time  `json:"next_send_time"`
	MessageCount  int        `json:"message_count"`
	MaxMessages   int        `json:"max_messages"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// DefaultAlertMaxMessages caps lifetime sends before an alert auto-retires.
const DefaultAlertMaxMessages = 30

// RestaurantProfile is the persisted operator identity.
type RestaurantProfile struct {
	UserID         string            `json:"user_id"`
	Name           string            `json:"name"`
	PlaceID        string            `json:"place_id"`
	Address        string            `json:"address"`
	Latitude       float64           `json:"latitude"`
	Longitude      float64           `json:"longitude"`
	Phone          string            `json:"phone,omitempty"`
	Website        string            `json:"website,omitempty"`
	SocialHandles  map[string]string `json:"social_handles,omitempty"`
	Photos         []string          `json:"photos,omitempty"`
	UploadedImages []string          `json:"uploaded_images,omitempty"`
	OpeningHours   []string          `json:"opening_hours,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// MaxUploadedImages caps operator photo uploads per profile.
const MaxUploadedImages = 4

// Slug returns the object-store prefix for this restaurant's uploads.
func (p RestaurantProfile) Slug() string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "restaurant"
	}
	return slug + "-" + p.PlaceID
}

// BoundingBox is the operating country's rectangle.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether the coordinates fall inside the box.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// BotConfig is the per-tenant configuration bag passed through handlers.
type BotConfig struct {
	StoreID        string
	CountryCode    string
	CountryName    string
	Timezone       string
	Country        BoundingBox
	Categories     []string
	SearchRadiusKM float64
	MaxDeals       int
	SessionTTL     time.Duration
	CatalogID      string
}
