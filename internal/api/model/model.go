package model

import "time"

type Job struct {
	JobID        string    `db:"job_id"`
	UserID       string    `db:"user_id"`
	JobType      string    `db:"job_type"`
	Status       string    `db:"status"`
	GenerationID string    `db:"generation_id"`
	RenderID     string    `db:"render_id"`
	VendorStatus string    `db:"vendor_status"`
	ResultURL    string    `db:"result_url"`
	ShareURL     string    `db:"share_url"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
