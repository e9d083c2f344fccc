package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Job represents a job row as the orchestrator sees it
type Job struct {
	JobID        string    `db:"job_id"`
	UserID       string    `db:"user_id"`
	Kind         JobKind   `db:"job_type"`
	Payload      string    `db:"payload"` // JSON string
	Status       JobStatus `db:"status"`
	WorkerID     string    `db:"worker_id"`
	GenerationID string    `db:"generation_id"`
	RenderID     string    `db:"render_id"`
	VendorStatus string    `db:"vendor_status"`
	ResultURL    string    `db:"result_url"`
	ShareURL     string    `db:"share_url"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// JobMessage represents a job message from RabbitMQ
type JobMessage struct {
	JobID       string          `json:"job_id"`
	UserID      string          `json:"user_id"`
	Kind        JobKind         `json:"job_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	DeliveryTag uint64          `json:"-"`
}

// Validate checks the fields every kind needs
func (m *JobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("%w: job_id is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidPayload)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown job_type %q", ErrInvalidPayload, m.Kind)
	}
	return nil
}

// FaceSwapParams is the payload of a faceswap job
type FaceSwapParams struct {
	SourceImage      string `json:"source_image,omitempty"` // base64
	SourceImageURL   string `json:"source_image_url,omitempty"`
	TemplateID       string `json:"template_id"`
	TemplateCategory string `json:"template_category,omitempty"`
}

// AIVideoParams is the payload of an ai_video_card job
type AIVideoParams struct {
	Character     string `json:"character"`
	Genre         string `json:"genre"`
	RecipientName string `json:"recipient_name"`
	SenderName    string `json:"sender_name"`
	Message       string `json:"message"`
	TemplateKey   string `json:"template_key,omitempty"`
}

// SlideshowParams is the payload of a slideshow_card job
type SlideshowParams struct {
	PhotoURLs   []string `json:"photo_urls"`
	Genre       string   `json:"genre"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	TemplateKey string   `json:"template_key,omitempty"`
}

// DecodeParams unmarshals a job payload into dst
func DecodeParams(raw []byte, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Notification is the message handed to the downstream notification queue
type Notification struct {
	RecipientUserID string `json:"recipient_user_id"`
	Category        string `json:"category"`
	Message         string `json:"message"`
	Link            string `json:"link,omitempty"`
	JobID           string `json:"job_id,omitempty"`
}

// FaceSwapResult is a stored face-swap output row
type FaceSwapResult struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	JobID       string    `db:"job_id"`
	TemplateID  string    `db:"template_id"`
	StoragePath string    `db:"storage_path"`
	CreatedAt   time.Time `db:"created_at"`
}

// PublicShare is a public share record for a finished job
type PublicShare struct {
	ID        string    `db:"id"`
	JobID     string    `db:"job_id"`
	UserID    string    `db:"user_id"`
	Slug      string    `db:"slug"`
	MediaURL  string    `db:"media_url"`
	CreatedAt time.Time `db:"created_at"`
}
