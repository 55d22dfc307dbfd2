package controller

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/makeit-app/render-orchestrator/entity"
	"github.com/makeit-app/render-orchestrator/http/controller/dto"
	"github.com/makeit-app/render-orchestrator/reconcile"
	"github.com/makeit-app/render-orchestrator/utils"
)

// CreateGeneration accepts a room photo plus design parameters, stores the
// photo, submits the initial design prediction and records the pending job.
func (ctrl *Controller) CreateGeneration(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] Failed to resolve user from context")
		utils.JSON401(c, "Unauthorized")
		return
	}

	var req dto.CreateGenerationRequestDTO
	if err := c.ShouldBind(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] Failed to bind form: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		utils.JSON400(c, "Room photo is required")
		return
	}

	user, err := ctrl.Repository.UserRepo.FindByID(ownerID)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] User %s not found", ownerID)
		utils.JSON404(c, "User not found")
		return
	}

	if user.UsedImages >= user.ImageLimit {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Generation] User %s exceeded image quota (%d/%d)",
			ownerID, user.UsedImages, user.ImageLimit)
		utils.JSON403(c, "Image quota exceeded")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.JSON400(c, "Failed to open uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		utils.JSON400(c, "Failed to read uploaded file")
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	key := fmt.Sprintf("%s/%s%s", ownerID, uuid.New(), ext)

	inputURL, err := ctrl.Infra.Minio.UploadSourceImage(ctx, key, data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] Failed to store room photo for %s", ownerID)
		utils.JSON500(c, "Failed to store room photo")
		return
	}

	prompt := reconcile.BuildDesignPrompt(req.Prompt, req.Style, req.RoomType, req.Color, req.Material)

	prediction, err := ctrl.Infra.Replicate.CreateDesignPrediction(ctx, prompt, inputURL)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] Failed to submit design prediction for %s", ownerID)
		utils.JSON500(c, "Failed to submit generation")
		return
	}

	job := &entity.GenerationJob{
		ID:            uuid.New(),
		JobID:         prediction.ID,
		OwnerID:       ownerID,
		Phase:         entity.PhaseInitial,
		Status:        entity.StatusPending,
		Prompt:        req.Prompt,
		Style:         req.Style,
		RoomType:      req.RoomType,
		Color:         req.Color,
		Material:      req.Material,
		InputImageURL: inputURL,
	}

	if err := ctrl.Repository.JobRepo.Create(job); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] Failed to record job %s", prediction.ID)
		utils.JSON500(c, "Failed to record generation")
		return
	}

	if err := ctrl.Repository.UserRepo.AddRenderSlot(ownerID, prediction.ID); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] Failed to create render slot for %s", prediction.ID)
		utils.JSON500(c, "Failed to record generation")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Generation] Submitted design prediction %s for user %s", prediction.ID, ownerID)
	utils.JSON201(c, gin.H{
		"message":    "Generation submitted",
		"generation": toGenerationDTO(job),
	})
}

// ListGenerations returns the caller's jobs, newest first. Clients poll this to
// track outstanding renders.
func (ctrl *Controller) ListGenerations(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized")
		return
	}

	jobs, err := ctrl.Repository.JobRepo.FindByOwnerID(ownerID)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Generation] Failed to list jobs for %s", ownerID)
		utils.JSON500(c, "Failed to list generations")
		return
	}

	out := make([]dto.GenerationResponseDTO, 0, len(jobs))
	for i := range jobs {
		out = append(out, toGenerationDTO(&jobs[i]))
	}

	utils.JSON200(c, gin.H{"generations": out})
}

func toGenerationDTO(job *entity.GenerationJob) dto.GenerationResponseDTO {
	return dto.GenerationResponseDTO{
		JobID:          job.JobID,
		Phase:          job.Phase,
		Status:         job.Status,
		Prompt:         job.Prompt,
		InputImageURL:  job.InputImageURL,
		OutputImageURL: job.OutputImageURL,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
	}
}
