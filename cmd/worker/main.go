package main

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"

	"github.com/unclebandit/bulksend-backend/internal/config"
	"github.com/unclebandit/bulksend-backend/internal/db"
	appErrors "github.com/unclebandit/bulksend-backend/internal/errors"
	"github.com/unclebandit/bulksend-backend/internal/model"
	"github.com/unclebandit/bulksend-backend/internal/queue"
	"github.com/unclebandit/bulksend-backend/internal/repository"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg := config.Load()

	// Connect to DB
	db.Init()
	jobRepo := &repository.JobRepository{DB: db.DB}

	// Connect to RabbitMQ
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("Failed to open a channel:", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		cfg.EventTopic, // name
		true,           // durable
		false,          // delete when unused
		false,          // exclusive
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		log.Fatal("Failed to declare queue:", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal("Failed to register consumer:", err)
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			var event queue.Event
			if err := json.Unmarshal(d.Body, &event); err != nil {
				log.Println("Invalid event:", err)
				d.Ack(false)
				continue
			}

			if err := recordEvent(event, jobRepo); err != nil {
				log.Println("Failed to record event:", err)
				var retryCount int
				switch v := d.Headers["x-retry-count"].(type) {
				case int32:
					retryCount = int(v)
				case int64:
					retryCount = int(v)
				}
				if retryCount < 3 {
					d.Nack(false, true) // requeue
					continue
				}
			}

			d.Ack(false)
		}
	}()

	log.Println("Worker running, waiting for events...")
	<-forever
}

// recordEvent mirrors a lifecycle event into the job record store. The
// merge is monotonic, matching the orchestrator's own rules, so replayed
// or out-of-order events never roll a row backwards.
func recordEvent(event queue.Event, repo *repository.JobRepository) error {
	job, err := repo.GetByID(event.JobID)
	if err != nil {
		var notFound *appErrors.ErrJobNotFound
		if errors.As(err, &notFound) {
			// The submitting process may not share this database.
			return repo.Create(&model.BulkSendJob{
				ID:              event.JobID,
				Channel:         event.Channel,
				Status:          event.Status,
				TotalRecipients: event.Sent + event.Failed + event.Pending,
				SentCount:       event.Sent,
				FailedCount:     event.Failed,
				PendingCount:    event.Pending,
				CreatedAt:       event.OccurredAt,
				UpdatedAt:       time.Now(),
			})
		}
		return err
	}

	if job.Terminal() {
		return nil // terminal rows are immutable
	}

	if event.Sent > job.SentCount {
		job.SentCount = event.Sent
	}
	if event.Failed > job.FailedCount {
		job.FailedCount = event.Failed
	}
	job.PendingCount = job.TotalRecipients - job.SentCount - job.FailedCount
	if job.PendingCount < 0 {
		job.PendingCount = 0
	}
	if model.StatusAdvances(job.Status, event.Status) {
		job.Status = event.Status
	}

	return repo.UpdateProgress(job)
}
