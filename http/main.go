package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/makeit-app/render-orchestrator/config"
	"github.com/makeit-app/render-orchestrator/http/controller"
	routes "github.com/makeit-app/render-orchestrator/http/route"
	infraPkg "github.com/makeit-app/render-orchestrator/infra"
	"github.com/makeit-app/render-orchestrator/notify"
	"github.com/makeit-app/render-orchestrator/repository"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)

	ctrl := controller.NewController(cfg, infra, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := notify.StartConsumer(ctx, infra.RabbitMQ.Channel, ctrl.Registry, infra.Logger); err != nil {
		log.Fatalf("Failed to start job event consumer: %v", err)
	}

	router := routes.SetupRouter(ctrl)

	log.Println("HTTP Server started on :8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
