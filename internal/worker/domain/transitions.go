package domain

import "fmt"

// progressions holds the forward-only status order for each kind.
// failed is reachable from any non-terminal status and is not listed.
var progressions = map[JobKind][]JobStatus{
	KindFaceSwap: {
		JobStatusPending,
		JobStatusProcessingAssets,
		JobStatusSwappingFace,
		JobStatusStoringResult,
		JobStatusComplete,
	},
	KindAIVideoCard: {
		JobStatusPending,
		JobStatusProcessingAssets,
		JobStatusGeneratingAIVideo,
		JobStatusCompositingFinalVideo,
		JobStatusComplete,
	},
	KindSlideshowCard: {
		JobStatusPending,
		JobStatusProcessingAssets,
		JobStatusRenderingSlideshow,
		JobStatusComplete,
	},
}

func rank(kind JobKind, s JobStatus) int {
	for i, st := range progressions[kind] {
		if st == s {
			return i
		}
	}
	return -1
}

// ValidateTransition checks that moving a job of the given kind from one status
// to another only ever moves forward.
func ValidateTransition(kind JobKind, from, to JobStatus) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown job kind %q", ErrInvalidTransition, kind)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}

	fromRank := rank(kind, from)
	if fromRank < 0 {
		return fmt.Errorf("%w: %s is not a %s status", ErrInvalidTransition, from, kind)
	}

	if to == JobStatusFailed {
		return nil
	}

	toRank := rank(kind, to)
	if toRank < 0 {
		return fmt.Errorf("%w: %s is not a %s status", ErrInvalidTransition, to, kind)
	}
	if toRank <= fromRank {
		return fmt.Errorf("%w: %s -> %s goes backwards", ErrInvalidTransition, from, to)
	}

	return nil
}
