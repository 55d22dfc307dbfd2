package controller

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/makeit-app/render-orchestrator/utils"
)

// StreamEvents pushes terminal job transitions to the client over SSE. Events
// arrive via the fanout exchange, so a client connected to any instance sees
// its own jobs complete.
func (ctrl *Controller) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized")
		return
	}

	subID, events := ctrl.Registry.Subscribe(ownerID.String())
	defer ctrl.Registry.Unsubscribe(subID)

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Events] User %s subscribed (%s)", ownerID, subID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("job", msg)
			return true
		}
	})

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Events] User %s unsubscribed (%s)", ownerID, subID)
}
