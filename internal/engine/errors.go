package engine

import (
	"errors"
	"fmt"
)

// ErrAggregationConflict is returned when the bounded retry of a consistent
// multi-entity read is exhausted.
var ErrAggregationConflict = errors.New("aggregation conflict: consistent read retries exhausted")

// RenderFailureError wraps a failure from the rendering collaborator. The
// compile step guarantees no ReportRecord survives when this is returned.
type RenderFailureError struct {
	Err error
}

func (e RenderFailureError) Error() string {
	return fmt.Sprintf("report rendering failed: %v", e.Err)
}

func (e RenderFailureError) Unwrap() error { return e.Err }
