package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/unclebandit/bulksend-backend/internal/db"
)

var schema = `
CREATE TABLE IF NOT EXISTS bulk_send_jobs (
    id TEXT PRIMARY KEY,
    channel TEXT NOT NULL,
    status TEXT NOT NULL,
    total_recipients INT NOT NULL DEFAULT 0,
    sent_count INT NOT NULL DEFAULT 0,
    failed_count INT NOT NULL DEFAULT 0,
    pending_count INT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bulk_send_messages (
    id TEXT PRIMARY KEY,
    job_id TEXT NOT NULL REFERENCES bulk_send_jobs(id),
    recipient_id TEXT NOT NULL,
    recipient_address TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    provider_message_id TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_bulk_send_messages_job ON bulk_send_messages(job_id);
`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	db.Init()

	if _, err := db.DB.Exec(schema); err != nil {
		log.Fatal("failed to apply schema:", err)
	}

	log.Println("✅ Schema applied")
}
