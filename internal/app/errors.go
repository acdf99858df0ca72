package service

import (
	"fmt"

	"github.com/okian/proctor/internal/domain/model"
)

// Sentinel kinds for lifecycle errors.
var (
	ErrNotStarted = fmt.Errorf("service not started: %w", model.ErrUnavailable)
)
