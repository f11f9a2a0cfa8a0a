package index

import (
	"errors"
	"fmt"
)

var (
	// ErrCursorInvalid is reported by a remote source when the presented
	// sync cursor has expired or was never valid. The synchronizer reacts
	// by falling back to a full sync.
	ErrCursorInvalid = errors.New("sync cursor invalid or expired")

	// ErrCaptionUnavailable indicates the captioning service could not
	// produce a caption. Per-file degradation: the pipeline falls back to
	// a filename-derived caption.
	ErrCaptionUnavailable = errors.New("caption unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service could not
	// produce a vector. Hard failure for the affected file only.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrFrameUnavailable indicates the remote source cannot supply a
	// representative frame for a video.
	ErrFrameUnavailable = errors.New("representative frame unavailable")

	// ErrJobActive is returned when a sync or processing run is requested
	// while another run is already active. Requests are rejected, not queued.
	ErrJobActive = errors.New("another run is already active")

	// ErrEmptyQuery is returned for a blank search query, before any
	// collaborator call is made.
	ErrEmptyQuery = errors.New("search query is empty")
)

// MalformedVectorError reports an embedding with a missing or unexpected
// dimension. Documents carrying such a vector are never persisted.
type MalformedVectorError struct {
	Want int
	Got  int
}

func (e *MalformedVectorError) Error() string {
	return fmt.Sprintf("malformed embedding vector: want %d dimensions, got %d", e.Want, e.Got)
}

// ValidateVector checks that vec is non-empty and of the expected length.
// want <= 0 only requires the vector to be non-empty.
func ValidateVector(vec []float32, want int) error {
	if len(vec) == 0 {
		return &MalformedVectorError{Want: want, Got: 0}
	}
	if want > 0 && len(vec) != want {
		return &MalformedVectorError{Want: want, Got: len(vec)}
	}
	return nil
}
