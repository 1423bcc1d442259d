package main

import (
	"context"
	"errors"

	"loopctl/internal/errtax"
)

// Exit codes per spec §6.4.
const (
	exitSuccess     = 0
	exitUserError   = 2
	exitRuntime     = 3
	exitRateLimited = 4
	exitInterrupted = 130
)

// userError marks a failure caused by bad input (flags, missing files,
// malformed config) rather than a runtime condition.
type userError struct{ err error }

func (u *userError) Error() string { return u.err.Error() }
func (u *userError) Unwrap() error { return u.err }

func newUserError(err error) error {
	if err == nil {
		return nil
	}
	return &userError{err: err}
}

// exitCodeFor classifies a returned error into spec §6.4's exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	var ue *userError
	if errors.As(err, &ue) {
		return exitUserError
	}
	var te *errtax.Error
	if errors.As(err, &te) {
		if te.Kind == errtax.RateLimited {
			return exitRateLimited
		}
	}
	return exitRuntime
}
