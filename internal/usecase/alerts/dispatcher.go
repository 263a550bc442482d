package alerts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// DealSearcher finds fresh deals for an alert's location.
type DealSearcher interface {
	Search(ctx context.Context, loc domain.Location, category string, limit int, exclude map[string]struct{}) ([]domain.Deal, error)
}

// DealSender delivers an alert's deals to the user.
type DealSender interface {
	SendAlertDeals(ctx context.Context, storeID, userID, category string, deals []domain.Deal) error
}

// Dispatcher walks due alerts and sends fresh deals, honoring each user's
// already-seen set.
type Dispatcher struct {
	alerts   *Service
	searcher DealSearcher
	sender   DealSender
	sessions domain.SessionStore
	maxDeals int
	log      zerolog.Logger
}

// NewDispatcher creates the dispatch loop driver.
func NewDispatcher(alerts *Service, searcher DealSearcher, sender DealSender, sessions domain.SessionStore, maxDeals int, logger zerolog.Logger) *Dispatcher {
	if maxDeals <= 0 {
		maxDeals = 3
	}
	return &Dispatcher{
		alerts:   alerts,
		searcher: searcher,
		sender:   sender,
		sessions: sessions,
		maxDeals: maxDeals,
		log:      logger,
	}
}

// RunOnce processes one dispatch pass. Per-alert failures are logged and
// skipped so one broken subscription cannot stall the rest.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	due, err := d.alerts.ListDue(ctx)
	if err != nil {
		return err
	}
	for _, alert := range due {
		if err := d.dispatchOne(ctx, alert); err != nil {
			d.log.Error().Err(err).Str("alert_id", alert.ID).Msg("alert dispatch failed")
		}
	}
	return nil
}

// Run ticks RunOnce at the interval until the context ends.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				d.log.Error().Err(err).Msg("alert dispatch pass failed")
			}
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, alert domain.Alert) error {
	session := d.sessions.Load(ctx, alert.StoreID, alert.UserID)

	deals, err := d.searcher.Search(ctx, alert.Location, alert.Category, d.maxDeals, session.SharedSet())
	if err != nil {
		return err
	}
	if len(deals) == 0 {
		// Nothing new today. The fire time still advances so the alert
		// does not re-enter every pass, but the send counter stays put.
		d.log.Info().Str("alert_id", alert.ID).Msg("no fresh deals, rescheduling")
		_, err := d.alerts.Reschedule(ctx, alert)
		return err
	}

	if err := d.sender.SendAlertDeals(ctx, alert.StoreID, alert.UserID, alert.Category, deals); err != nil {
		return err
	}
	metrics.AlertsFired.Inc()

	session.MarkShared(deals)
	d.sessions.Save(ctx, session)

	_, err = d.alerts.MarkSent(ctx, alert)
	return err
}
