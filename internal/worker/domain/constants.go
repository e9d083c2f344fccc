package domain

// JobKind identifies which pipeline drives a job
type JobKind string

// Job kinds, one queue each
const (
	KindFaceSwap      JobKind = "faceswap"
	KindAIVideoCard   JobKind = "ai_video_card"
	KindSlideshowCard JobKind = "slideshow_card"
)

// AllKinds lists the kinds the worker runtime can serve
var AllKinds = []JobKind{KindFaceSwap, KindAIVideoCard, KindSlideshowCard}

// Valid reports whether k is a known job kind
func (k JobKind) Valid() bool {
	switch k {
	case KindFaceSwap, KindAIVideoCard, KindSlideshowCard:
		return true
	default:
		return false
	}
}

// JobStatus is the persisted status of a job
type JobStatus string

// Job status constants
const (
	JobStatusPending               JobStatus = "pending"
	JobStatusProcessingAssets      JobStatus = "processing_assets"
	JobStatusSwappingFace          JobStatus = "swapping_face"
	JobStatusStoringResult         JobStatus = "storing_result"
	JobStatusGeneratingAIVideo     JobStatus = "generating_ai_video"
	JobStatusCompositingFinalVideo JobStatus = "compositing_final_video"
	JobStatusRenderingSlideshow    JobStatus = "rendering_slideshow"
	JobStatusComplete              JobStatus = "complete"
	JobStatusFailed                JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Notification categories
const (
	CategoryFaceSwapComplete  = "faceswap_complete"
	CategoryFaceSwapFailed    = "faceswap_failed"
	CategoryVideoCardComplete = "video_card_complete"
	CategorySlideshowComplete = "slideshow_complete"
)
