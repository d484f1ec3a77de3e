package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// ChunkPayload is the stored payload of an indexed corpus chunk
type ChunkPayload struct {
	Text    string `json:"text"`
	Chapter int    `json:"chapter"`
	Section string `json:"section"`
	Page    *int   `json:"page,omitempty"`
}

// SearchResult is one scored nearest neighbor returned by the index
type SearchResult struct {
	ID      string       `json:"id"`
	Score   float64      `json:"score"`
	Payload ChunkPayload `json:"payload"`
}

// SearchFilter narrows a search to chunks matching the given locators.
// Zero values leave the corresponding condition off.
type SearchFilter struct {
	Chapter int
	Section string
}

// Store is the read-side interface to the vector index
type Store interface {
	// Search returns up to limit nearest neighbors of vector whose score is
	// at least threshold, ordered descending by score
	Search(ctx context.Context, vector []float32, limit int, threshold float64, filter *SearchFilter) ([]SearchResult, error)

	// HealthCheck verifies the index is reachable and the collection exists
	HealthCheck(ctx context.Context) error
}

// Error represents a failure talking to the vector index
type Error struct {
	// Op is the operation that failed (e.g., "search")
	Op string

	// StatusCode is the HTTP status returned by the index (if any)
	StatusCode int

	// Retryable indicates if the operation can be retried
	Retryable bool

	// Err is the underlying error
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vector store %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vector store %s failed with status %d", e.Op, e.StatusCode)
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	return false
}
