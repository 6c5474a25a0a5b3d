package main

import (
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/unclebandit/bulksend-backend/internal/config"
	"github.com/unclebandit/bulksend-backend/internal/controller"
	"github.com/unclebandit/bulksend-backend/internal/db"
	"github.com/unclebandit/bulksend-backend/internal/handler"
	"github.com/unclebandit/bulksend-backend/internal/provider"
	"github.com/unclebandit/bulksend-backend/internal/queue"
	"github.com/unclebandit/bulksend-backend/internal/repository"
	"github.com/unclebandit/bulksend-backend/internal/service"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg := config.Load()

	providerClient := provider.NewClient(provider.Config{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout,
	})

	// Job record store is optional; without a database the orchestrator
	// serves history straight from the provider's list endpoint.
	var jobRepo repository.JobRepositoryInterface
	if os.Getenv("DB_HOST") != "" {
		db.Init()
		jobRepo = &repository.JobRepository{DB: db.DB}
	}

	var events queue.Publisher
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ:", err)
		}
		defer conn.Close()

		pub, err := queue.NewAMQPPublisher(conn)
		if err != nil {
			log.Fatal("Failed to open a channel:", err)
		}
		defer pub.Close()
		events = pub
	} else {
		q := queue.NewInMemoryQueue()
		q.Subscribe(cfg.EventTopic, func(event queue.Event) error {
			log.Printf("📩 %s: job %s status=%s sent=%d failed=%d pending=%d",
				event.Type, event.JobID, event.Status, event.Sent, event.Failed, event.Pending)
			return nil
		})
		events = q
	}

	orchestrator := service.NewBulkSendOrchestrator(providerClient, jobRepo, events)
	orchestrator.EventTopic = cfg.EventTopic
	orchestrator.PollInterval = cfg.PollInterval
	orchestrator.PollTimeout = cfg.PollTimeout

	bulkSendController := &controller.BulkSendController{
		Orchestrator: orchestrator,
	}

	bulkSendHandler := &handler.BulkSendHandler{
		Orchestrator: orchestrator,
	}

	r := chi.NewRouter()

	// Bulk send routes
	r.Post("/bulk-send", bulkSendController.SubmitBulkSend)
	r.Get("/bulk-send", bulkSendHandler.ListJobsHandler)
	r.Get("/bulk-send/{id}", bulkSendHandler.GetJobHandler)
	r.Post("/bulk-send/{id}/cancel", bulkSendController.CancelBulkSend)
	r.Post("/bulk-send/{id}/retry", bulkSendController.RetryBulkSend)
	r.Post("/bulk-send/preview", bulkSendController.PreviewBulkSend)

	log.Println("🚀 Server running on :" + cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
