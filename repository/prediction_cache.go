package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/makeit-app/render-orchestrator/entity"
	"github.com/makeit-app/render-orchestrator/infra"
)

// PredictionTTL bounds how long dedup state outlives a webhook delivery. The
// durable store stays authoritative; expired entries only cost an extra lookup.
const PredictionTTL = 24 * time.Hour

// PredictionCache is the short-lived source of truth for "has this prediction id
// already reached a terminal state". Keys:
//
//	prediction:{jobID}:status     current status string
//	prediction:{jobID}:initial_id backlink from a chained upscale job to its origin
type PredictionCache struct {
	redis *infra.RedisClient
}

func NewPredictionCache(redis *infra.RedisClient) *PredictionCache {
	return &PredictionCache{redis: redis}
}

func statusKey(jobID string) string {
	return fmt.Sprintf("prediction:%s:status", jobID)
}

func initialIDKey(jobID string) string {
	return fmt.Sprintf("prediction:%s:initial_id", jobID)
}

// GetStatus returns the cached status and whether an entry was present.
func (c *PredictionCache) GetStatus(ctx context.Context, jobID string) (string, bool, error) {
	status, err := c.redis.GetString(ctx, statusKey(jobID))
	if err != nil {
		if errors.Is(err, infra.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func (c *PredictionCache) SetStatus(ctx context.Context, jobID, status string) error {
	return c.redis.SetString(ctx, statusKey(jobID), status, PredictionTTL)
}

// AcquireProcessing atomically claims a job for chaining. Returns false when
// another delivery already holds or completed it.
func (c *PredictionCache) AcquireProcessing(ctx context.Context, jobID string) (bool, error) {
	return c.redis.SetStringNX(ctx, statusKey(jobID), entity.StatusProcessing, PredictionTTL)
}

// DeleteStatus rolls back a claim so a redelivered webhook can retry.
func (c *PredictionCache) DeleteStatus(ctx context.Context, jobID string) error {
	return c.redis.Delete(ctx, statusKey(jobID))
}

// SetInitialID records the backlink from a chained upscale job to the job that
// spawned it.
func (c *PredictionCache) SetInitialID(ctx context.Context, jobID, initialJobID string) error {
	return c.redis.SetString(ctx, initialIDKey(jobID), initialJobID, PredictionTTL)
}

func (c *PredictionCache) GetInitialID(ctx context.Context, jobID string) (string, bool, error) {
	id, err := c.redis.GetString(ctx, initialIDKey(jobID))
	if err != nil {
		if errors.Is(err, infra.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

// Clear removes both entries for a job once its terminal state is durably recorded.
func (c *PredictionCache) Clear(ctx context.Context, jobID string) error {
	return c.redis.Delete(ctx, statusKey(jobID), initialIDKey(jobID))
}
