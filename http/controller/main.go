package controller

import (
	"github.com/makeit-app/render-orchestrator/config"
	"github.com/makeit-app/render-orchestrator/imageproc"
	"github.com/makeit-app/render-orchestrator/infra"
	"github.com/makeit-app/render-orchestrator/notify"
	"github.com/makeit-app/render-orchestrator/reconcile"
	"github.com/makeit-app/render-orchestrator/repository"
	"github.com/makeit-app/render-orchestrator/webhook"
)

type Controller struct {
	Config     *config.Config
	Infra      *infra.Infra
	Repository *repository.Repository
	Verifier   *webhook.Verifier
	Reconciler *reconcile.Reconciler
	Registry   *notify.Registry
}

func NewController(cfg *config.Config, infra *infra.Infra, repo *repository.Repository) *Controller {
	verifier, err := webhook.NewVerifier(cfg.EnvConfig.Replicate.WebhookSecret)
	if err != nil {
		panic("Failed to initialize webhook verifier: " + err.Error())
	}

	reconciler := &reconcile.Reconciler{
		Cache:               repo.Predictions,
		Jobs:                repo.JobRepo,
		Owners:              repo.UserRepo,
		Provider:            infra.Replicate,
		Renders:             infra.R2,
		Images:              imageproc.NewFetcher(),
		Events:              infra.Produce.JobEvents,
		Logger:              infra.Logger,
		InitialModelVersion: cfg.EnvConfig.Replicate.InitialModelVersion,
		UpscaleModelVersion: cfg.EnvConfig.Replicate.UpscaleModelVersion,
	}

	return &Controller{
		Config:     cfg,
		Infra:      infra,
		Repository: repo,
		Verifier:   verifier,
		Reconciler: reconciler,
		Registry:   notify.NewRegistry(),
	}
}
