package repository

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/makeit-app/render-orchestrator/entity"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *entity.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) FindByID(id uuid.UUID) (*entity.User, error) {
	var user entity.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AddRenderSlot creates an empty render-URL slot for a freshly submitted job.
// The reconciliation pipeline later fills it, matched on the slot existing.
func (r *UserRepository) AddRenderSlot(ownerID uuid.UUID, jobID string) error {
	user, err := r.FindByID(ownerID)
	if err != nil {
		return err
	}

	urls := user.RenderURLs
	if urls == nil {
		urls = datatypes.JSONMap{}
	}
	urls[jobID] = ""

	return r.db.Model(&entity.User{}).
		Where("id = ?", ownerID).
		Update("render_urls", urls).Error
}

// MoveRenderSlot re-keys a slot when chaining replaces the provider job id.
func (r *UserRepository) MoveRenderSlot(ownerID uuid.UUID, oldJobID, newJobID string) (int64, error) {
	user, err := r.FindByID(ownerID)
	if err != nil {
		return 0, err
	}

	urls := user.RenderURLs
	if urls == nil {
		return 0, nil
	}
	value, ok := urls[oldJobID]
	if !ok {
		return 0, nil
	}
	delete(urls, oldJobID)
	urls[newJobID] = value

	res := r.db.Model(&entity.User{}).
		Where("id = ?", ownerID).
		Where(datatypes.JSONQuery("render_urls").HasKey(oldJobID)).
		Update("render_urls", urls)
	return res.RowsAffected, res.Error
}

// RecordCompletedRender fills the slot and bumps the quota counters in one
// matched update. The match requires both the owner row and the job's slot, so
// a duplicate or misrouted delivery affects zero rows and the counters are
// incremented exactly once per completed job.
func (r *UserRepository) RecordCompletedRender(ownerID uuid.UUID, jobID, renderURL string, sizeBytes int64) (int64, error) {
	user, err := r.FindByID(ownerID)
	if err != nil {
		return 0, err
	}

	urls := user.RenderURLs
	if urls == nil {
		return 0, nil
	}
	if _, ok := urls[jobID]; !ok {
		return 0, nil
	}
	urls[jobID] = renderURL

	res := r.db.Model(&entity.User{}).
		Where("id = ?", ownerID).
		Where(datatypes.JSONQuery("render_urls").HasKey(jobID)).
		Updates(map[string]interface{}{
			"render_urls":        urls,
			"used_images":        gorm.Expr("used_images + ?", 1),
			"storage_used_bytes": gorm.Expr("storage_used_bytes + ?", sizeBytes),
		})
	return res.RowsAffected, res.Error
}

// SetRenderURL points the slot at a URL without touching quota counters. Used
// for the failure placeholder.
func (r *UserRepository) SetRenderURL(ownerID uuid.UUID, jobID, renderURL string) (int64, error) {
	user, err := r.FindByID(ownerID)
	if err != nil {
		return 0, err
	}

	urls := user.RenderURLs
	if urls == nil {
		return 0, nil
	}
	if _, ok := urls[jobID]; !ok {
		return 0, nil
	}
	urls[jobID] = renderURL

	res := r.db.Model(&entity.User{}).
		Where("id = ?", ownerID).
		Where(datatypes.JSONQuery("render_urls").HasKey(jobID)).
		Update("render_urls", urls)
	return res.RowsAffected, res.Error
}
