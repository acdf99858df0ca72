package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared across layers. Match with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUpstream        = errors.New("upstream scoring failed")
	ErrTransportDecode = errors.New("telemetry decode failed")
	ErrBackpressure    = errors.New("backpressure")
	ErrUnavailable     = errors.New("service unavailable")
)

// NewKind returns an error of the given kind tagged with op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags cause with op and kind so both stay matchable with errors.Is.
func WrapKind(op string, kind, cause error) error {
	if cause == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}
