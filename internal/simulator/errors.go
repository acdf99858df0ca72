package simulator

import "errors"

// Sentinel errors.
var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrUnexpectedCode = errors.New("unexpected status code")
	ErrNotSettled     = errors.New("events not recorded before settle timeout")
	ErrBoardOrder     = errors.New("risk board not ordered by score")
)
