package creator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"lobang-bot/internal/domain"
	"lobang-bot/internal/infra/metrics"
)

// AssetSender notifies the operator when their asset is ready.
type AssetSender interface {
	SendGeneratedAsset(ctx context.Context, storeID, userID, assetURL, caption string) error
}

// Worker consumes generation jobs and runs the media generator.
type Worker struct {
	queue     domain.GenerationQueue
	status    domain.GenerationStatusStore
	profiles  domain.ProfileRepo
	generator domain.MediaGenerator
	sender    AssetSender
	timeout   time.Duration
	log       zerolog.Logger
}

// NewWorker creates the job consumer. sender may be nil; the job status
// is always recorded for polling either way.
func NewWorker(queue domain.GenerationQueue, status domain.GenerationStatusStore, profiles domain.ProfileRepo, generator domain.MediaGenerator, sender AssetSender, timeout time.Duration, logger zerolog.Logger) *Worker {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Worker{
		queue:     queue,
		status:    status,
		profiles:  profiles,
		generator: generator,
		sender:    sender,
		timeout:   timeout,
		log:       logger,
	}
}

// Run consumes jobs until the context ends. Job failures mark the job
// failed and keep the loop alive.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("pop generation job failed")
			time.Sleep(time.Second)
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job end to end.
func (w *Worker) Process(ctx context.Context, job domain.GenerationJob) {
	logger := w.log.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()
	w.setStatus(ctx, job.ID, domain.GenerationStatus{State: domain.GenerationRunning})

	jobCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	profile, err := w.profiles.GetProfile(jobCtx, job.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		w.fail(ctx, job.ID, logger, "load profile", err)
		return
	}

	result, err := w.generator.Generate(jobCtx, domain.GenerationRequest{
		DealText:  job.DealText,
		Profile:   profile,
		ImageURLs: profile.UploadedImages,
	})
	if err != nil {
		w.fail(ctx, job.ID, logger, "generate", err)
		return
	}

	w.setStatus(ctx, job.ID, domain.GenerationStatus{
		State:    domain.GenerationDone,
		AssetURL: result.AssetURL,
	})
	metrics.GenerationJobs.WithLabelValues("done").Inc()
	logger.Info().Str("asset_url", result.AssetURL).Msg("generation job done")

	if w.sender != nil {
		caption := "Your marketing content is ready! 🎉"
		if err := w.sender.SendGeneratedAsset(ctx, job.StoreID, job.UserID, result.AssetURL, caption); err != nil {
			logger.Error().Err(err).Msg("deliver generated asset failed")
		}
	}
}

func (w *Worker) fail(ctx context.Context, jobID string, logger zerolog.Logger, stage string, err error) {
	logger.Error().Err(err).Str("stage", stage).Msg("generation job failed")
	w.setStatus(ctx, jobID, domain.GenerationStatus{
		State: domain.GenerationFailed,
		Error: err.Error(),
	})
	metrics.GenerationJobs.WithLabelValues("failed").Inc()
}

func (w *Worker) setStatus(ctx context.Context, jobID string, status domain.GenerationStatus) {
	if err := w.status.SetStatus(ctx, jobID, status); err != nil {
		w.log.Error().Err(err).Str("job_id", jobID).Msg("set job status failed")
	}
}
