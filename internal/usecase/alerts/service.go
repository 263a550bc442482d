// Package alerts manages daily deal subscriptions and their dispatch.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// DefaultLifetime bounds a subscription even if it never hits the message
// cap.
const DefaultLifetime = 90 * 24 * time.Hour

// Service creates and advances alert subscriptions.
type Service struct {
	repo domain.AlertRepo
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates the alert service.
func NewService(repo domain.AlertRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger, now: time.Now}
}

// Create registers a daily alert at the preferred local time. preferred
// is "HH:MM" in the given IANA timezone; the first send is the next
// occurrence of that wall-clock time.
func (s *Service) Create(ctx context.Context, storeID, userID string, loc domain.Location, category, preferred, timezone string) (domain.Alert, error) {
	if strings.TrimSpace(category) == "" {
		return domain.Alert{}, domain.ErrUnknownCategory
	}
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(preferred, "%d:%d", &hour, &minute); err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return domain.Alert{}, fmt.Errorf("invalid preferred time %q", preferred)
	}

	now := s.now().In(tz)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, tz)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	alert := domain.Alert{
		ID:            uuid.NewString(),
		UserID:        userID,
		StoreID:       storeID,
		Location:      loc,
		Category:      category,
		PreferredTime: preferred,
		Timezone:      timezone,
		IsActive:      true,
		NextSendTime:  next.UTC(),
		MaxMessages:   domain.DefaultAlertMaxMessages,
		CreatedAt:     s.now().UTC(),
		ExpiresAt:     s.now().UTC().Add(DefaultLifetime),
	}
	created, err := s.repo.CreateAlert(ctx, alert)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("create alert: %w", err)
	}
	s.log.Info().Str("alert_id", created.ID).Str("user_id", userID).Str("time", preferred).Msg("alert created")
	return created, nil
}

// ListDue returns alerts whose fire time fell within the last 24 hours.
// The window bounds how far a stopped dispatcher catches up after a
// restart: anything older is skipped rather than sent late.
func (s *Service) ListDue(ctx context.Context) ([]domain.Alert, error) {
	now := s.now().UTC()
	due, err := s.repo.ListActiveDue(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("list due alerts: %w", err)
	}
	return due, nil
}

// MarkSent advances an alert after a successful send: the counter bumps,
// the next fire moves one local day forward, and an alert at its message
// cap or past its expiry retires.
func (s *Service) MarkSent(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	tz, err := time.LoadLocation(alert.Timezone)
	if err != nil {
		tz = time.UTC
	}
	now := s.now().UTC()
	sent := now
	alert.LastSent = &sent
	alert.MessageCount++

	// AddDate in the local zone keeps the wall-clock time stable across
	// DST transitions.
	next := alert.NextSendTime.In(tz)
	for !next.After(now.In(tz)) {
		next = next.AddDate(0, 0, 1)
	}
	alert.NextSendTime = next.UTC()

	if alert.MessageCount >= alert.MaxMessages || now.After(alert.ExpiresAt) {
		alert.IsActive = false
		metrics.AlertsRetired.Inc()
		s.log.Info().Str("alert_id", alert.ID).Int("sent", alert.MessageCount).Msg("alert retired")
	}
	if err := s.repo.UpdateAlertDispatch(ctx, alert); err != nil {
		return alert, fmt.Errorf("update alert: %w", err)
	}
	return alert, nil
}

// Reschedule advances an alert's fire time without counting a send, for
// passes that found nothing worth delivering.
func (s *Service) Reschedule(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	tz, err := time.LoadLocation(alert.Timezone)
	if err != nil {
		tz = time.UTC
	}
	now := s.now().In(tz)
	next := alert.NextSendTime.In(tz)
	for !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	alert.NextSendTime = next.UTC()
	if err := s.repo.UpdateAlertDispatch(ctx, alert); err != nil {
		return alert, fmt.Errorf("reschedule alert: %w", err)
	}
	return alert, nil
}

// Deactivate turns an alert off on user request.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.DeactivateAlert(ctx, id); err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	return nil
}
