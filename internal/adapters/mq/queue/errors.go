package queue

import (
	"fmt"

	"github.com/okian/proctor/internal/domain/model"
)

// Sentinel kinds for enqueue failures.
var (
	ErrClosed = fmt.Errorf("queue closed: %w", model.ErrUnavailable)
	ErrFull   = fmt.Errorf("queue partition full: %w", model.ErrBackpressure)
)
