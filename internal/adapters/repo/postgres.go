// Package repo implements the pgx-backed repositories: the curated deal
// datastore, alert subscriptions and restaurant profiles.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// Postgres implements the repositories on a pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.DealRepo    = (*Postgres)(nil)
	_ domain.AlertRepo   = (*Postgres)(nil)
	_ domain.ProfileRepo = (*Postgres)(nil)
)

// NewPostgres creates the database adapter.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ApplyMigrations executes embedded SQL files in lexicographical order.
func (p *Postgres) ApplyMigrations(ctx context.Context, filesystem fs.FS) error {
	entries, err := fs.ReadDir(filesystem, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sqlBytes, err := fs.ReadFile(filesystem, entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if len(sqlBytes) == 0 {
			continue
		}
		err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			_, execErr := tx.Exec(ctx, string(sqlBytes))
			return execErr
		})
		if err != nil {
			return fmt.Errorf("execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

const dealColumns = `deal_id, business_name, offer, address, description, validity, category, source, area, latitude, longitude, image_url, posted_at`

// SearchByLocation returns deals of a category within a radius of the
// point, nearest first, newest breaking ties.
func (p *Postgres) SearchByLocation(ctx context.Context, loc domain.Location, category string, radiusKM float64, limit int) ([]domain.Deal, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	// One degree of latitude is ~111 km; longitude shrinks with latitude
	// but the operating country sits near the equator, so the same factor
	// is close enough for a preselection box.
	delta := radiusKM / 111.0

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+dealColumns+`
FROM deals
WHERE category ILIKE $1
  AND latitude BETWEEN $2 AND $3
  AND longitude BETWEEN $4 AND $5
ORDER BY (latitude-$6)*(latitude-$6) + (longitude-$7)*(longitude-$7) ASC, posted_at DESC
LIMIT $8
`, category, loc.Latitude-delta, loc.Latitude+delta, loc.Longitude-delta, loc.Longitude+delta, loc.Latitude, loc.Longitude, limit)
	metrics.ObserveNetworkRequest("postgres", "deals_search_location", "deals", start, err)
	if err != nil {
		return nil, fmt.Errorf("search deals by location: %w", err)
	}
	defer rows.Close()
	return scanDeals(rows)
}

// SearchByArea returns deals of a category matching a textual area.
func (p *Postgres) SearchByArea(ctx context.Context, area, category string, limit int) ([]domain.Deal, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+dealColumns+`
FROM deals
WHERE category ILIKE $1 AND (area ILIKE '%'||$2||'%' OR address ILIKE '%'||$2||'%')
ORDER BY posted_at DESC
LIMIT $3
`, category, area, limit)
	metrics.ObserveNetworkRequest("postgres", "deals_search_area", "deals", start, err)
	if err != nil {
		return nil, fmt.Errorf("search deals by area: %w", err)
	}
	defer rows.Close()
	return scanDeals(rows)
}

func scanDeals(rows pgx.Rows) ([]domain.Deal, error) {
	var deals []domain.Deal
	for rows.Next() {
		var (
			d        domain.Deal
			area     string
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&d.DealID, &d.BusinessName, &d.Offer, &d.Address, &d.Description, &d.Validity, &d.Category, &d.Source, &area, &lat, &lng, &d.ImageURL, &d.PostedAt); err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		if lat.Valid {
			d.Latitude = lat.Float64
		}
		if lng.Valid {
			d.Longitude = lng.Float64
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

const alertColumns = `id, user_id, store_id, location, category, preferred_time, timezone, is_active, last_sent, next_send_time, message_count, max_messages, created_at, expires_at`

// CreateAlert inserts a subscription.
func (p *Postgres) CreateAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	locJSON, err := json.Marshal(alert.Location)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("marshal location: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO alerts (`+alertColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`, alert.ID, alert.UserID, alert.StoreID, locJSON, alert.Category, alert.PreferredTime, alert.Timezone,
		alert.IsActive, alert.LastSent, alert.NextSendTime, alert.MessageCount, alert.MaxMessages, alert.CreatedAt, alert.ExpiresAt)
	metrics.ObserveNetworkRequest("postgres", "alerts_insert", "alerts", start, err)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

// GetAlert fetches one subscription by ID.
func (p *Postgres) GetAlert(ctx context.Context, id string) (domain.Alert, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id=$1`, id)
	alert, err := scanAlert(row)
	metrics.ObserveNetworkRequest("postgres", "alerts_get", "alerts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Alert{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// ListActiveDue returns active, uncapped alerts whose next-fire time falls
// in (from, to].
func (p *Postgres) ListActiveDue(ctx context.Context, from, to time.Time) ([]domain.Alert, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+alertColumns+`
FROM alerts
WHERE is_active
  AND message_count < max_messages
  AND next_send_time > $1
  AND next_send_time <= $2
ORDER BY next_send_time ASC
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "alerts_list_due", "alerts", start, err)
	if err != nil {
		return nil, fmt.Errorf("list due alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// UpdateAlertDispatch persists the post-send state of an alert.
func (p *Postgres) UpdateAlertDispatch(ctx context.Context, alert domain.Alert) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE alerts
SET is_active=$2, last_sent=$3, next_send_time=$4, message_count=$5
WHERE id=$1
`, alert.ID, alert.IsActive, alert.LastSent, alert.NextSendTime, alert.MessageCount)
	metrics.ObserveNetworkRequest("postgres", "alerts_update_dispatch", "alerts", start, err)
	if err != nil {
		return fmt.Errorf("update alert dispatch: %w", err)
	}
	return nil
}

// DeactivateAlert turns a subscription off.
func (p *Postgres) DeactivateAlert(ctx context.Context, id string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE alerts SET is_active=FALSE WHERE id=$1`, id)
	metrics.ObserveNetworkRequest("postgres", "alerts_deactivate", "alerts", start, err)
	if err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (domain.Alert, error) {
	var (
		alert    domain.Alert
		locJSON  []byte
		lastSent sql.NullTime
	)
	err := row.Scan(&alert.ID, &alert.UserID, &alert.StoreID, &locJSON, &alert.Category, &alert.PreferredTime,
		&alert.Timezone, &alert.IsActive, &lastSent, &alert.NextSendTime, &alert.MessageCount, &alert.MaxMessages,
		&alert.CreatedAt, &alert.ExpiresAt)
	if err != nil {
		return domain.Alert{}, err
	}
	if lastSent.Valid {
		ts := lastSent.Time
		alert.LastSent = &ts
	}
	if len(locJSON) > 0 {
		if err := json.Unmarshal(locJSON, &alert.Location); err != nil {
			return domain.Alert{}, fmt.Errorf("decode alert location: %w", err)
		}
	}
	return alert, nil
}

// GetProfile fetches the operator profile for a user.
func (p *Postgres) GetProfile(ctx context.Context, userID string) (domain.RestaurantProfile, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		profile domain.RestaurantProfile
		handles []byte
		photos  []byte
		uploads []byte
		hours   []byte
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, name, place_id, address, latitude, longitude, phone, website, social_handles, photos, uploaded_images, opening_hours, created_at, updated_at
FROM restaurant_profiles WHERE user_id=$1
`, userID).Scan(&profile.UserID, &profile.Name, &profile.PlaceID, &profile.Address, &profile.Latitude, &profile.Longitude,
		&profile.Phone, &profile.Website, &handles, &photos, &uploads, &hours, &profile.CreatedAt, &profile.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "profiles_get", "restaurant_profiles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RestaurantProfile{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RestaurantProfile{}, fmt.Errorf("get profile: %w", err)
	}
	if err := decodeJSON(handles, &profile.SocialHandles); err != nil {
		return domain.RestaurantProfile{}, err
	}
	if err := decodeJSON(photos, &profile.Photos); err != nil {
		return domain.RestaurantProfile{}, err
	}
	if err := decodeJSON(uploads, &profile.UploadedImages); err != nil {
		return domain.RestaurantProfile{}, err
	}
	if err := decodeJSON(hours, &profile.OpeningHours); err != nil {
		return domain.RestaurantProfile{}, err
	}
	return profile, nil
}

// UpsertProfile inserts or refreshes the operator profile.
func (p *Postgres) UpsertProfile(ctx context.Context, profile domain.RestaurantProfile) (domain.RestaurantProfile, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if len(profile.UploadedImages) > domain.MaxUploadedImages {
		profile.UploadedImages = profile.UploadedImages[:domain.MaxUploadedImages]
	}
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	handles, err := json.Marshal(profile.SocialHandles)
	if err != nil {
		return domain.RestaurantProfile{}, fmt.Errorf("marshal social handles: %w", err)
	}
	photos, err := json.Marshal(profile.Photos)
	if err != nil {
		return domain.RestaurantProfile{}, fmt.Errorf("marshal photos: %w", err)
	}
	uploads, err := json.Marshal(profile.UploadedImages)
	if err != nil {
		return domain.RestaurantProfile{}, fmt.Errorf("marshal uploads: %w", err)
	}
	hours, err := json.Marshal(profile.OpeningHours)
	if err != nil {
		return domain.RestaurantProfile{}, fmt.Errorf("marshal opening hours: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO restaurant_profiles (user_id, name, place_id, address, latitude, longitude, phone, website, social_handles, photos, uploaded_images, opening_hours, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (user_id) DO UPDATE SET
  name=EXCLUDED.name, place_id=EXCLUDED.place_id, address=EXCLUDED.address,
  latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, phone=EXCLUDED.phone,
  website=EXCLUDED.website, social_handles=EXCLUDED.social_handles, photos=EXCLUDED.photos,
  uploaded_images=EXCLUDED.uploaded_images, opening_hours=EXCLUDED.opening_hours,
  updated_at=EXCLUDED.updated_at
`, profile.UserID, profile.Name, profile.PlaceID, profile.Address, profile.Latitude, profile.Longitude,
		profile.Phone, profile.Website, handles, photos, uploads, hours, profile.CreatedAt, profile.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "profiles_upsert", "restaurant_profiles", start, err)
	if err != nil {
		return domain.RestaurantProfile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

func decodeJSON(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode profile field: %w", err)
	}
	return nil
}
