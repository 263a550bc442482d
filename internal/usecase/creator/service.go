// Package creator backs the operator flow: restaurant identification,
// image collection and marketing-content generation.
package creator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// MaxProfilePhotos bounds how many place photos decorate a confirmation.
const MaxProfilePhotos = 2

// Service coordinates the operator flow.
type Service struct {
	geocoder domain.Geocoder
	profiles domain.ProfileRepo
	store    domain.ObjectStore
	queue    domain.GenerationQueue
	status   domain.GenerationStatusStore
	log      zerolog.Logger
}

// NewService creates the creator service.
func NewService(geocoder domain.Geocoder, profiles domain.ProfileRepo, store domain.ObjectStore, queue domain.GenerationQueue, status domain.GenerationStatusStore, logger zerolog.Logger) *Service {
	return &Service{
		geocoder: geocoder,
		profiles: profiles,
		store:    store,
		queue:    queue,
		status:   status,
		log:      logger,
	}
}

// Identify looks up a restaurant by name and returns a candidate for the
// operator to confirm, decorated with up to two place photos. Photo
// lookup failure is cosmetic and never fails the identification.
func (s *Service) Identify(ctx context.Context, name string) (domain.RestaurantCandidate, error) {
	place, err := s.geocoder.FindPlace(ctx, name)
	if err != nil {
		return domain.RestaurantCandidate{}, fmt.Errorf("identify restaurant %q: %w", name, err)
	}

	candidate := domain.RestaurantCandidate{
		Name:      place.Name,
		PlaceID:   place.PlaceID,
		Address:   place.Address,
		Latitude:  place.Latitude,
		Longitude: place.Longitude,
	}
	photos, err := s.geocoder.PlacePhotos(ctx, place.PlaceID, MaxProfilePhotos)
	if err != nil {
		s.log.Warn().Err(err).Str("place_id", place.PlaceID).Msg("place photos unavailable")
	} else {
		candidate.Photos = photos
	}
	return candidate, nil
}

// ConfirmProfile persists a confirmed candidate as the operator's
// profile, enriching it with place details where available.
func (s *Service) ConfirmProfile(ctx context.Context, userID string, candidate domain.RestaurantCandidate) (domain.RestaurantProfile, error) {
	profile := domain.RestaurantProfile{
		UserID:    userID,
		Name:      candidate.Name,
		PlaceID:   candidate.PlaceID,
		Address:   candidate.Address,
		Latitude:  candidate.Latitude,
		Longitude: candidate.Longitude,
		Photos:    candidate.Photos,
	}
	if place, err := s.geocoder.FindPlace(ctx, candidate.Name); err == nil && place.PlaceID == candidate.PlaceID {
		profile.Phone = place.Phone
		profile.Website = place.Website
		profile.OpeningHours = place.OpeningHours
	}
	saved, err := s.profiles.UpsertProfile(ctx, profile)
	if err != nil {
		return domain.RestaurantProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return saved, nil
}

// Profile loads the operator's stored profile.
func (s *Service) Profile(ctx context.Context, userID string) (domain.RestaurantProfile, error) {
	return s.profiles.GetProfile(ctx, userID)
}

// AddImage stores one uploaded image under the restaurant's prefix and
// records its URL on the profile. The per-profile cap is enforced here;
// uploads past it return the profile unchanged with ok=false.
func (s *Service) AddImage(ctx context.Context, profile domain.RestaurantProfile, data []byte, contentType string) (domain.RestaurantProfile, bool, error) {
	if len(profile.UploadedImages) >= domain.MaxUploadedImages {
		return profile, false, nil
	}
	key := fmt.Sprintf("%s/%d-%s", profile.Slug(), len(profile.UploadedImages)+1, uuid.NewString()[:8])
	url, err := s.store.Put(ctx, key, data, contentType)
	if err != nil {
		return profile, false, fmt.Errorf("store image: %w", err)
	}
	profile.UploadedImages = append(profile.UploadedImages, url)
	saved, err := s.profiles.UpsertProfile(ctx, profile)
	if err != nil {
		return profile, false, fmt.Errorf("save profile: %w", err)
	}
	return saved, true, nil
}

// StartGeneration enqueues an async content-generation job and marks it
// queued for polling.
func (s *Service) StartGeneration(ctx context.Context, storeID, userID, dealText string) (string, error) {
	job := domain.GenerationJob{
		ID:          uuid.NewString(),
		StoreID:     storeID,
		UserID:      userID,
		DealText:    dealText,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.status.SetStatus(ctx, job.ID, domain.GenerationStatus{State: domain.GenerationQueued}); err != nil {
		return "", fmt.Errorf("init job status: %w", err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue generation job: %w", err)
	}
	metrics.GenerationJobs.WithLabelValues("queued").Inc()
	s.log.Info().Str("job_id", job.ID).Str("user_id", userID).Msg("generation job queued")
	return job.ID, nil
}

// PollGeneration reports the state of a job. Unknown jobs read as failed
// so the conversation can recover instead of polling forever.
func (s *Service) PollGeneration(ctx context.Context, jobID string) (domain.GenerationStatus, error) {
	status, ok, err := s.status.GetStatus(ctx, jobID)
	if err != nil {
		return domain.GenerationStatus{}, fmt.Errorf("poll job %s: %w", jobID, err)
	}
	if !ok {
		return domain.GenerationStatus{
			State: domain.GenerationFailed,
			Error: "job expired",
		}, nil
	}
	return status, nil
}
