package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/makeit-app/render-orchestrator/entity"
	"github.com/makeit-app/render-orchestrator/imageproc"
	"github.com/makeit-app/render-orchestrator/infra"
	"github.com/makeit-app/render-orchestrator/infra/produce"
	"github.com/makeit-app/render-orchestrator/webhook"
)

// FailedRenderURL is the placeholder image shown for failed generations.
const FailedRenderURL = "https://assets.makeit.app/render-failed.png"

var (
	// ErrChainingFailed means the upscale prediction could not be created or
	// recorded. The processing claim is rolled back so the provider's
	// redelivery re-enters the pipeline cleanly. Surfaced as 5xx.
	ErrChainingFailed = errors.New("reconcile: failed to chain upscale prediction")

	// ErrRecordNotFound means no durable job record matched the delivery.
	// A data-consistency bug, not retried.
	ErrRecordNotFound = errors.New("reconcile: no job record matched prediction id")

	// ErrOwnerMismatch means the owner row or its render slot for this job is
	// missing. Also a consistency bug, not retried.
	ErrOwnerMismatch = errors.New("reconcile: owner record did not match job")
)

// Outcome reports which branch a delivery took.
type Outcome int

const (
	OutcomeDuplicate Outcome = iota
	OutcomeChained
	OutcomeCompleted
	OutcomeFailedRecorded
	OutcomeIgnored
)

// StatusCache is the fast dedup store for prediction status.
type StatusCache interface {
	GetStatus(ctx context.Context, jobID string) (string, bool, error)
	SetStatus(ctx context.Context, jobID, status string) error
	AcquireProcessing(ctx context.Context, jobID string) (bool, error)
	DeleteStatus(ctx context.Context, jobID string) error
	SetInitialID(ctx context.Context, jobID, initialJobID string) error
	Clear(ctx context.Context, jobID string) error
}

// JobStore is the durable, authoritative record store.
type JobStore interface {
	FindByJobID(jobID string) (*entity.GenerationJob, error)
	FindTerminalByJobID(jobID string) (*entity.GenerationJob, error)
	PromoteToUpscaling(oldJobID, newJobID string) (int64, error)
	Complete(jobID, outputImageURL string, sizeBytes int64) (int64, error)
	Fail(jobID, placeholderURL string) (int64, error)
}

// OwnerStore updates quota counters and render-URL slots.
type OwnerStore interface {
	MoveRenderSlot(ownerID uuid.UUID, oldJobID, newJobID string) (int64, error)
	RecordCompletedRender(ownerID uuid.UUID, jobID, renderURL string, sizeBytes int64) (int64, error)
	SetRenderURL(ownerID uuid.UUID, jobID, renderURL string) (int64, error)
}

// UpscaleSubmitter chains a second prediction off a finished design.
type UpscaleSubmitter interface {
	CreateUpscalePrediction(ctx context.Context, prompt, imageURL string) (*infra.Prediction, error)
}

// RenderUploader stores the final compressed render.
type RenderUploader interface {
	UploadRender(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ImageFetcher downloads provider output images.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// EventPublisher broadcasts terminal job transitions.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, msg produce.JobEventMessage) error
}

// Reconciler processes verified provider callbacks: dedup against cache and
// store, branch on job kind and outcome, and drive side effects. One execution
// per delivery, strictly sequential external calls, no internal parallelism.
// Concurrent duplicate deliveries are kept safe by the SetNX claim and by every
// store write being matched on a non-terminal status.
type Reconciler struct {
	Cache    StatusCache
	Jobs     JobStore
	Owners   OwnerStore
	Provider UpscaleSubmitter
	Renders  RenderUploader
	Images   ImageFetcher
	Events   EventPublisher
	Logger   *infra.LoggerClient

	InitialModelVersion string
	UpscaleModelVersion string
}

// Process reconciles one verified delivery.
func (r *Reconciler) Process(ctx context.Context, event *webhook.PredictionEvent) (Outcome, error) {
	jobID := event.ID

	cached, found, err := r.Cache.GetStatus(ctx, jobID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("status cache read failed: %w", err)
	}
	if found && (cached == entity.StatusCompleted || cached == entity.StatusFailed) {
		r.Logger.InfoWithContextf(ctx, "[Reconcile] Duplicate delivery for %s (cached %s)", jobID, cached)
		return OutcomeDuplicate, nil
	}

	// Cache empty or expired: the store is authoritative. Backfill the cache so
	// later duplicates short-circuit without hitting Postgres.
	if !found {
		terminal, err := r.Jobs.FindTerminalByJobID(jobID)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("terminal record lookup failed: %w", err)
		}
		if terminal != nil {
			if err := r.Cache.SetStatus(ctx, jobID, terminal.Status); err != nil {
				r.Logger.WarningWithContextf(ctx, "[Reconcile] Failed to backfill cache for %s: %v", jobID, err)
			}
			r.Logger.InfoWithContextf(ctx, "[Reconcile] Duplicate delivery for %s (store %s)", jobID, terminal.Status)
			return OutcomeDuplicate, nil
		}
	}

	switch event.Outcome() {
	case webhook.OutcomeSucceeded:
		if event.Version == r.InitialModelVersion {
			return r.chainUpscale(ctx, event, cached, found)
		}
		return r.completeRender(ctx, event)
	case webhook.OutcomeFailed:
		return r.recordFailure(ctx, event)
	default:
		// Intermediate pings ("processing" etc.) are acknowledged, nothing else.
		r.Logger.InfoWithContextf(ctx, "[Reconcile] Ignoring status %q for %s", event.Status, jobID)
		return OutcomeIgnored, nil
	}
}

// chainUpscale handles an initial-phase success. Not terminal for the user: the
// design output is fed into a fixed upscale model and the job record is re-keyed
// to the new prediction id.
func (r *Reconciler) chainUpscale(ctx context.Context, event *webhook.PredictionEvent, cached string, cacheHit bool) (Outcome, error) {
	jobID := event.ID

	if cacheHit && (cached == entity.StatusProcessing || cached == entity.StatusUpscaling) {
		r.Logger.InfoWithContextf(ctx, "[Reconcile] Job %s already being processed", jobID)
		return OutcomeDuplicate, nil
	}

	acquired, err := r.Cache.AcquireProcessing(ctx, jobID)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("processing claim failed: %w", err)
	}
	if !acquired {
		r.Logger.InfoWithContextf(ctx, "[Reconcile] Lost processing claim for %s", jobID)
		return OutcomeDuplicate, nil
	}

	job, err := r.Jobs.FindByJobID(jobID)
	if err != nil {
		r.rollbackClaim(ctx, jobID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeIgnored, ErrRecordNotFound
		}
		return OutcomeIgnored, fmt.Errorf("job lookup failed: %w", err)
	}

	designOutput := event.FirstOutputURL()
	if designOutput == "" {
		r.rollbackClaim(ctx, jobID)
		return OutcomeIgnored, fmt.Errorf("%w: design output missing", ErrChainingFailed)
	}

	prompt := event.Input.Prompt + UpscalePromptSuffix
	prediction, err := r.Provider.CreateUpscalePrediction(ctx, prompt, designOutput)
	if err != nil || prediction.ID == "" {
		r.rollbackClaim(ctx, jobID)
		r.Logger.ErrorWithContextf(ctx, err, "[Reconcile] Upscale submission failed for %s", jobID)
		return OutcomeIgnored, ErrChainingFailed
	}

	if err := r.Cache.SetStatus(ctx, prediction.ID, entity.StatusUpscaling); err != nil {
		r.rollbackClaim(ctx, jobID)
		return OutcomeIgnored, fmt.Errorf("cache write for chained job failed: %w", err)
	}
	if err := r.Cache.SetInitialID(ctx, prediction.ID, jobID); err != nil {
		r.Logger.WarningWithContextf(ctx, "[Reconcile] Failed to record backlink %s -> %s: %v", prediction.ID, jobID, err)
	}

	rows, err := r.Jobs.PromoteToUpscaling(jobID, prediction.ID)
	if err != nil {
		r.rollbackClaim(ctx, jobID)
		return OutcomeIgnored, fmt.Errorf("job promotion failed: %w", err)
	}
	if rows == 0 {
		// Record vanished or went terminal between lookup and update. Roll the
		// claim back so a redelivery can retry against current state.
		r.rollbackClaim(ctx, jobID)
		if err := r.Cache.Clear(ctx, prediction.ID); err != nil {
			r.Logger.WarningWithContextf(ctx, "[Reconcile] Failed to clear orphaned cache for %s: %v", prediction.ID, err)
		}
		return OutcomeIgnored, ErrChainingFailed
	}

	if _, err := r.Owners.MoveRenderSlot(job.OwnerID, jobID, prediction.ID); err != nil {
		r.Logger.WarningWithContextf(ctx, "[Reconcile] Failed to move render slot %s -> %s: %v", jobID, prediction.ID, err)
	}

	r.Logger.InfoWithContextf(ctx, "[Reconcile] Chained upscale %s for design %s", prediction.ID, jobID)
	return OutcomeChained, nil
}

// completeRender handles an upscale-phase success, the terminal success path.
func (r *Reconciler) completeRender(ctx context.Context, event *webhook.PredictionEvent) (Outcome, error) {
	jobID := event.ID

	job, err := r.Jobs.FindByJobID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeIgnored, ErrRecordNotFound
		}
		return OutcomeIgnored, fmt.Errorf("job lookup failed: %w", err)
	}

	outputURL := event.FirstOutputURL()
	if outputURL == "" {
		return OutcomeIgnored, fmt.Errorf("succeeded upscale %s carried no output", jobID)
	}

	data, err := r.Images.Fetch(ctx, outputURL)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("render fetch failed: %w", err)
	}

	quality := imageproc.QualityForSize(int64(len(data)))
	compressed, err := imageproc.Recompress(data, quality)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("render compression failed: %w", err)
	}

	key := fmt.Sprintf("%s/%s.jpg", job.OwnerID, jobID)
	renderURL, err := r.Renders.UploadRender(ctx, key, compressed, "image/jpeg")
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("render upload failed: %w", err)
	}

	sizeBytes := int64(len(compressed))
	rows, err := r.Jobs.Complete(jobID, renderURL, sizeBytes)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("job completion failed: %w", err)
	}
	if rows == 0 {
		// A concurrent delivery won the conditional write.
		r.Logger.InfoWithContextf(ctx, "[Reconcile] Lost completion race for %s", jobID)
		return OutcomeDuplicate, nil
	}

	rows, err = r.Owners.RecordCompletedRender(job.OwnerID, jobID, renderURL, sizeBytes)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("owner update failed: %w", err)
	}
	if rows == 0 {
		return OutcomeIgnored, ErrOwnerMismatch
	}

	// Cache is cleared only after both store updates landed.
	if err := r.Cache.Clear(ctx, jobID); err != nil {
		r.Logger.WarningWithContextf(ctx, "[Reconcile] Failed to clear cache for %s: %v", jobID, err)
	}

	r.publishEvent(ctx, job.OwnerID, jobID, entity.StatusCompleted, renderURL)
	r.Logger.InfoWithContextf(ctx, "[Reconcile] Completed render %s (%d bytes, quality %d)", jobID, sizeBytes, quality)
	return OutcomeCompleted, nil
}

// recordFailure handles a failed prediction of either phase.
func (r *Reconciler) recordFailure(ctx context.Context, event *webhook.PredictionEvent) (Outcome, error) {
	jobID := event.ID

	if err := r.Cache.SetStatus(ctx, jobID, entity.StatusFailed); err != nil {
		return OutcomeIgnored, fmt.Errorf("cache write failed: %w", err)
	}

	job, err := r.Jobs.FindByJobID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OutcomeIgnored, ErrRecordNotFound
		}
		return OutcomeIgnored, fmt.Errorf("job lookup failed: %w", err)
	}

	rows, err := r.Jobs.Fail(jobID, FailedRenderURL)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("job failure write failed: %w", err)
	}
	if rows == 0 {
		r.Logger.InfoWithContextf(ctx, "[Reconcile] Lost failure race for %s", jobID)
		return OutcomeDuplicate, nil
	}

	rows, err = r.Owners.SetRenderURL(job.OwnerID, jobID, FailedRenderURL)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("owner update failed: %w", err)
	}
	if rows == 0 {
		return OutcomeIgnored, ErrOwnerMismatch
	}

	r.publishEvent(ctx, job.OwnerID, jobID, entity.StatusFailed, FailedRenderURL)
	r.Logger.InfoWithContextf(ctx, "[Reconcile] Recorded failure for %s: %s", jobID, event.Error)
	return OutcomeFailedRecorded, nil
}

func (r *Reconciler) rollbackClaim(ctx context.Context, jobID string) {
	if err := r.Cache.DeleteStatus(ctx, jobID); err != nil {
		r.Logger.WarningWithContextf(ctx, "[Reconcile] Failed to roll back processing claim for %s: %v", jobID, err)
	}
}

func (r *Reconciler) publishEvent(ctx context.Context, ownerID uuid.UUID, jobID, status, renderURL string) {
	if r.Events == nil {
		return
	}
	err := r.Events.PublishJobEvent(ctx, produce.JobEventMessage{
		OwnerID:        ownerID.String(),
		JobID:          jobID,
		Status:         status,
		OutputImageURL: renderURL,
	})
	if err != nil {
		r.Logger.WarningWithContextf(ctx, "[Reconcile] Failed to publish %s event for %s: %v", status, jobID, err)
	}
}
