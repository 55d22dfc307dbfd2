package repository

import (
	"github.com/makeit-app/render-orchestrator/infra"
	"gorm.io/gorm"
)

type Repository struct {
	JobRepo     *GenerationJobRepository
	UserRepo    *UserRepository
	Predictions *PredictionCache
}

var repository *Repository

func InitRepository(infra *infra.Infra) *Repository {
	repository = &Repository{
		JobRepo:     NewGenerationJobRepository(infra.Postgres.DB),
		UserRepo:    NewUserRepository(infra.Postgres.DB),
		Predictions: NewPredictionCache(infra.Redis),
	}
	return repository
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}

func (r *Repository) BeginTransaction(db *gorm.DB) *gorm.DB {
	return db.Begin()
}
