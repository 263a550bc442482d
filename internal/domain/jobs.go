package domain

import (
	"context"
	"time"
)

// GenerationState is the lifecycle of a content-generation job.
type GenerationState string

const (
	GenerationQueued  GenerationState = "queued"
	GenerationRunning GenerationState = "running"
	GenerationDone    GenerationState = "done"
	GenerationFailed  GenerationState = "failed"
)

// GenerationJob asks the worker to compose marketing content for a deal.
type GenerationJob struct {
	ID          string    `json:"job_id"`
	StoreID     string    `json:"store_id"`
	UserID      string    `json:"user_id"`
	DealText    string    `json:"deal_text"`
	RequestedAt time.Time `json:"requested_at"`
}

// GenerationQueue transports generation jobs between the gateway and the
// worker.
type GenerationQueue interface {
	Enqueue(ctx context.Context, job GenerationJob) error
	Pop(ctx context.Context) (GenerationJob, error)
}

// GenerationStatus is the observable state of a job, polled via the
// conversation's status button.
type GenerationStatus struct {
	State     GenerationState `json:"state"`
	AssetURL  string          `json:"asset_url,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GenerationStatusStore records job status for polling.
type GenerationStatusStore interface {
	SetStatus(ctx context.Context, jobID string, status GenerationStatus) error
	GetStatus(ctx context.Context, jobID string) (GenerationStatus, bool, error)
}
