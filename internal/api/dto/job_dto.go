package dto

type ListJobsRequest struct {
	UserID   string `form:"user_id"`
	JobType  string `form:"job_type" binding:"omitempty,oneof=faceswap ai_video_card slideshow_card"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string `json:"job_id"`
	UserID       string `json:"user_id"`
	JobType      string `json:"job_type"`
	Status       string `json:"status"`
	Terminal     bool   `json:"terminal"`
	GenerationID string `json:"generation_id,omitempty"`
	RenderID     string `json:"render_id,omitempty"`
	VendorStatus string `json:"vendor_status,omitempty"`
	ResultURL    string `json:"result_url,omitempty"`
	ShareURL     string `json:"share_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
