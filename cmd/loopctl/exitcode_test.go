package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"loopctl/internal/errtax"
)

func TestExitCodeFor_NilIsSuccess(t *testing.T) {
	require.Equal(t, exitSuccess, exitCodeFor(nil))
}

func TestExitCodeFor_CanceledIsInterrupted(t *testing.T) {
	require.Equal(t, exitInterrupted, exitCodeFor(context.Canceled))
}

func TestExitCodeFor_UserErrorIsTwo(t *testing.T) {
	require.Equal(t, exitUserError, exitCodeFor(newUserError(errors.New("bad flag"))))
}

func TestExitCodeFor_RateLimitedTaxonomyIsFour(t *testing.T) {
	err := errtax.New(errtax.RateLimited, "test.op", errors.New("limit hit"))
	require.Equal(t, exitRateLimited, exitCodeFor(err))
}

func TestExitCodeFor_OtherTaxonomyKindsAreRuntime(t *testing.T) {
	err := errtax.New(errtax.FatalAgent, "test.op", errors.New("rejected"))
	require.Equal(t, exitRuntime, exitCodeFor(err))
}

func TestExitCodeFor_PlainErrorIsRuntime(t *testing.T) {
	require.Equal(t, exitRuntime, exitCodeFor(errors.New("boom")))
}
