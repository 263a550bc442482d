// Package jobstatus records generation-job state in Redis for polling.
package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lobang-bot/internal/domain"
)

const keyPrefix = "gen_status:"

// Store keeps job status under a TTL so abandoned jobs expire on their
// own.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.GenerationStatusStore = (*Store)(nil)

// NewStore creates the status store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// SetStatus writes the status of a job, stamping the update time.
func (s *Store) SetStatus(ctx context.Context, jobID string, status domain.GenerationStatus) error {
	status.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+jobID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// GetStatus reads the status of a job. The second return is false when
// the job is unknown or expired.
func (s *Store) GetStatus(ctx context.Context, jobID string) (domain.GenerationStatus, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GenerationStatus{}, false, nil
	}
	if err != nil {
		return domain.GenerationStatus{}, false, fmt.Errorf("get job status: %w", err)
	}
	var status domain.GenerationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.GenerationStatus{}, false, fmt.Errorf("decode job status: %w", err)
	}
	return status, true, nil
}
