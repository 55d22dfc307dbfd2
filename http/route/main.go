package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/makeit-app/render-orchestrator/http/controller"
	middlewares "github.com/makeit-app/render-orchestrator/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}

	r.Use(middles.CORSMiddleware)

	apiRoutes := r.Group("/api/v1/render")
	{
		// Provider callbacks authenticate with their own HMAC signature, not JWT.
		apiRoutes.POST("/webhooks/replicate", ctrl.HandleReplicateWebhook)

		authed := apiRoutes.Group("")
		{
			authed.Use(middles.AuthMiddleware)

			authed.POST("/generations", ctrl.CreateGeneration)
			authed.GET("/generations", ctrl.ListGenerations)
			authed.GET("/generations/events", ctrl.StreamEvents)
		}
	}

	return r
}
