/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import "errors"

// Sentinel errors for the memory package.
// Use errors.Is to check: errors.Is(err, memory.ErrInsufficientInput)
var (
	ErrInsufficientInput     = errors.New("memory: insufficient input")
	ErrContentGeneration     = errors.New("memory: content generation failed")
	ErrPreconditionViolation = errors.New("memory: precondition violated")
	ErrInvalidQuiz           = errors.New("memory: invalid quiz form")
)

// errNoPlayers is the user-facing roster validation failure.
var errNoPlayers = &inputError{msg: "at least one player required"}

// inputError carries a user-facing message while still matching
// ErrInsufficientInput.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Is(target error) bool { return target == ErrInsufficientInput }

// ContentError is a content source failure with a message fit for the
// player. It matches ErrContentGeneration and unwraps to the cause.
type ContentError struct {
	Msg string
	Err error
}

// NewContentError wraps cause with a user-facing message.
func NewContentError(msg string, cause error) *ContentError {
	return &ContentError{Msg: msg, Err: cause}
}

func (e *ContentError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "an unknown error occurred"
}

func (e *ContentError) Unwrap() error { return e.Err }

func (e *ContentError) Is(target error) bool { return target == ErrContentGeneration }
