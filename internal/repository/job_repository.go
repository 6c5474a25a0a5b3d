package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/bulksend-backend/internal/errors"
	"github.com/unclebandit/bulksend-backend/internal/model"
)

// JobRepositoryInterface is the job record store used by the orchestrator
// and the event worker. Rows live only as long as the job's own lifecycle
// needs them: created on submit, updated per poll tick, finalized once.
type JobRepositoryInterface interface {
	Create(job *model.BulkSendJob) error
	UpdateProgress(job *model.BulkSendJob) error
	GetByID(id string) (*model.BulkSendJob, error)
	List(limit int) ([]model.BulkSendJob, error)

	UpsertMessageStatus(jobID string, msg *model.MessageStatus) error
	ListMessageStatuses(jobID string) ([]model.MessageStatus, error)
}

type JobRepository struct {
	DB *sql.DB
}

// ====================== Jobs ======================

func (r *JobRepository) Create(job *model.BulkSendJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt
	query := `
        INSERT INTO bulk_send_jobs (id, channel, status, total_recipients, sent_count, failed_count, pending_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.DB.Exec(query, job.ID, job.Channel, job.Status, job.TotalRecipients,
		job.SentCount, job.FailedCount, job.PendingCount, job.CreatedAt, job.UpdatedAt)
	return err
}

func (r *JobRepository) UpdateProgress(job *model.BulkSendJob) error {
	job.UpdatedAt = time.Now()
	query := `
        UPDATE bulk_send_jobs
        SET status=$1, sent_count=$2, failed_count=$3, pending_count=$4, updated_at=$5
        WHERE id=$6
    `
	_, err := r.DB.Exec(query, job.Status, job.SentCount, job.FailedCount, job.PendingCount, job.UpdatedAt, job.ID)
	return err
}

func (r *JobRepository) GetByID(id string) (*model.BulkSendJob, error) {
	query := `
        SELECT id, channel, status, total_recipients, sent_count, failed_count, pending_count, created_at, updated_at
        FROM bulk_send_jobs WHERE id=$1
    `
	var job model.BulkSendJob
	err := r.DB.QueryRow(query, id).Scan(&job.ID, &job.Channel, &job.Status, &job.TotalRecipients,
		&job.SentCount, &job.FailedCount, &job.PendingCount, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewJobNotFound(id)
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) List(limit int) ([]model.BulkSendJob, error) {
	if limit < 1 {
		limit = 20
	}
	query := `
        SELECT id, channel, status, total_recipients, sent_count, failed_count, pending_count, created_at, updated_at
        FROM bulk_send_jobs ORDER BY created_at DESC LIMIT $1
    `
	rows, err := r.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.BulkSendJob{}
	for rows.Next() {
		var job model.BulkSendJob
		if err := rows.Scan(&job.ID, &job.Channel, &job.Status, &job.TotalRecipients,
			&job.SentCount, &job.FailedCount, &job.PendingCount, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ====================== Message statuses ======================

// UpsertMessageStatus overwrites the recipient's outcome row. Message
// statuses are append/overwrite only; there is no delete path.
func (r *JobRepository) UpsertMessageStatus(jobID string, msg *model.MessageStatus) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	query := `
        INSERT INTO bulk_send_messages (id, job_id, recipient_id, recipient_address, display_name, status, last_error, provider_message_id, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE
        SET status=EXCLUDED.status, last_error=EXCLUDED.last_error,
            provider_message_id=EXCLUDED.provider_message_id, updated_at=EXCLUDED.updated_at
    `
	_, err := r.DB.Exec(query, msg.ID, jobID, msg.RecipientID, msg.RecipientAddress,
		msg.DisplayName, msg.Status, msg.Error, msg.ProviderMessageID, msg.Timestamp)
	return err
}

func (r *JobRepository) ListMessageStatuses(jobID string) ([]model.MessageStatus, error) {
	query := `
        SELECT id, recipient_id, recipient_address, display_name, status, last_error, provider_message_id, updated_at
        FROM bulk_send_messages WHERE job_id=$1 ORDER BY recipient_address
    `
	rows, err := r.DB.Query(query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []model.MessageStatus{}
	for rows.Next() {
		var msg model.MessageStatus
		if err := rows.Scan(&msg.ID, &msg.RecipientID, &msg.RecipientAddress, &msg.DisplayName,
			&msg.Status, &msg.Error, &msg.ProviderMessageID, &msg.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
