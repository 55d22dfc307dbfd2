package controller

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/makeit-app/render-orchestrator/reconcile"
	"github.com/makeit-app/render-orchestrator/utils"
	"github.com/makeit-app/render-orchestrator/webhook"
)

// HandleReplicateWebhook receives provider callbacks. Verification runs over
// the raw body before anything else; the pipeline only ever sees authenticated
// deliveries. A 5xx tells the provider to redeliver, everything else is final.
func (ctrl *Controller) HandleReplicateWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Webhook] Failed to read request body")
		utils.JSON400(c, "Failed to read request body")
		return
	}

	event, err := ctrl.Verifier.Verify(c.Request.Header, body)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrMissingHeaders):
			ctrl.Infra.Logger.WarningWithContextf(ctx, "[Webhook] Delivery missing required headers")
			utils.JSON400(c, "Missing webhook headers")
		case errors.Is(err, webhook.ErrStaleTimestamp), errors.Is(err, webhook.ErrInvalidSignature):
			ctrl.Infra.Logger.WarningWithContextf(ctx, "[Webhook] Rejected delivery: %v", err)
			utils.JSON401(c, "Webhook verification failed")
		default:
			ctrl.Infra.Logger.WarningWithContextf(ctx, "[Webhook] Invalid payload: %v", err)
			utils.JSON400(c, "Invalid webhook payload")
		}
		return
	}

	outcome, err := ctrl.Reconciler.Process(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, reconcile.ErrRecordNotFound), errors.Is(err, reconcile.ErrOwnerMismatch):
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Webhook] No matching record for prediction %s", event.ID)
			utils.JSON404(c, "No matching generation record")
		default:
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Webhook] Reconciliation failed for prediction %s", event.ID)
			utils.JSON500(c, "Failed to process webhook")
		}
		return
	}

	switch outcome {
	case reconcile.OutcomeDuplicate:
		utils.JSON200(c, gin.H{"message": "duplicate"})
	case reconcile.OutcomeIgnored:
		utils.JSON200(c, gin.H{"message": "ignored"})
	default:
		utils.JSON200(c, gin.H{"message": "processed"})
	}
}
