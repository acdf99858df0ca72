package repository

import (
	"fmt"

	"github.com/okian/proctor/internal/domain/model"
)

// Sentinel kinds for store errors. Both match model.ErrNotFound / model.ErrValidation.
var (
	ErrNotFound     = fmt.Errorf("record %w", model.ErrNotFound)
	ErrInvalidLimit = fmt.Errorf("invalid board limit: %w", model.ErrValidation)
)
