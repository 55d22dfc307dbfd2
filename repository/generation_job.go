package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/makeit-app/render-orchestrator/entity"
)

type GenerationJobRepository struct {
	db *gorm.DB
}

func NewGenerationJobRepository(db *gorm.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

func (r *GenerationJobRepository) Create(job *entity.GenerationJob) error {
	return r.db.Create(job).Error
}

// FindByJobID looks a job up by its provider-assigned prediction id.
func (r *GenerationJobRepository) FindByJobID(jobID string) (*entity.GenerationJob, error) {
	var job entity.GenerationJob
	err := r.db.Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindTerminalByJobID returns the job only if it already reached completed or
// failed. (nil, nil) means no terminal record exists, which is the common case.
func (r *GenerationJobRepository) FindTerminalByJobID(jobID string) (*entity.GenerationJob, error) {
	var job entity.GenerationJob
	err := r.db.Where("job_id = ? AND status IN ?", jobID, entity.TerminalStatuses).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *GenerationJobRepository) FindByOwnerID(ownerID uuid.UUID) ([]entity.GenerationJob, error) {
	var jobs []entity.GenerationJob
	err := r.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// PromoteToUpscaling swaps the provider job id for the chained upscale
// prediction and moves the record into the upscaling phase. The update is
// matched on the old id still being non-terminal, so a delivery that lost the
// dedup race affects zero rows instead of overwriting a finished job.
func (r *GenerationJobRepository) PromoteToUpscaling(oldJobID, newJobID string) (int64, error) {
	res := r.db.Model(&entity.GenerationJob{}).
		Where("job_id = ? AND status NOT IN ?", oldJobID, entity.TerminalStatuses).
		Updates(map[string]interface{}{
			"job_id": newJobID,
			"phase":  entity.PhaseUpscaling,
			"status": entity.StatusUpscaling,
		})
	return res.RowsAffected, res.Error
}

// Complete records the final render. Conditional on the job not already being
// terminal; callers treat zero affected rows as either a lost race or a missing
// record depending on what FindByJobID said.
func (r *GenerationJobRepository) Complete(jobID, outputImageURL string, sizeBytes int64) (int64, error) {
	res := r.db.Model(&entity.GenerationJob{}).
		Where("job_id = ? AND status NOT IN ?", jobID, entity.TerminalStatuses).
		Updates(map[string]interface{}{
			"output_image_url": outputImageURL,
			"status":           entity.StatusCompleted,
			"size_bytes":       sizeBytes,
		})
	return res.RowsAffected, res.Error
}

// Fail points the job at the failure placeholder image.
func (r *GenerationJobRepository) Fail(jobID, placeholderURL string) (int64, error) {
	res := r.db.Model(&entity.GenerationJob{}).
		Where("job_id = ? AND status NOT IN ?", jobID, entity.TerminalStatuses).
		Updates(map[string]interface{}{
			"output_image_url": placeholderURL,
			"status":           entity.StatusFailed,
		})
	return res.RowsAffected, res.Error
}
