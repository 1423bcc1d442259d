package hooks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeline_RunsHandlersInPriorityOrder(t *testing.T) {
	p := New()
	var order []string

	p.Register(BeforeExecution, 20, "second", func(payload any) (any, error) {
		order = append(order, "second")
		return payload, nil
	})
	p.Register(BeforeExecution, 10, "first", func(payload any) (any, error) {
		order = append(order, "first")
		return payload, nil
	})

	_, err := p.Run(BeforeExecution, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestPipeline_ThreadsPayloadThroughHandlers(t *testing.T) {
	p := New()
	p.Register(AfterExecution, 0, "increment", func(payload any) (any, error) {
		return payload.(int) + 1, nil
	})
	p.Register(AfterExecution, 1, "double", func(payload any) (any, error) {
		return payload.(int) * 2, nil
	})

	result, err := p.Run(AfterExecution, 5)
	require.NoError(t, err)
	require.Equal(t, 12, result) // (5+1)*2
}

func TestPipeline_BeforeExecutionErrorAbortsRemainingHandlers(t *testing.T) {
	p := New()
	ran := false
	p.Register(BeforeExecution, 0, "fails", func(payload any) (any, error) {
		return payload, errors.New("budget exceeded")
	})
	p.Register(BeforeExecution, 1, "never-runs", func(payload any) (any, error) {
		ran = true
		return payload, nil
	})

	_, err := p.Run(BeforeExecution, nil)
	require.Error(t, err)
	require.False(t, ran)
}

func TestPipeline_OnErrorHandlerFailureIsReturned(t *testing.T) {
	p := New()
	p.Register(OnError, 0, "logger", func(payload any) (any, error) {
		return payload, errors.New("log sink unavailable")
	})

	_, err := p.Run(OnError, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "log sink unavailable")
}

func TestPipeline_CountReflectsRegistrations(t *testing.T) {
	p := New()
	require.Equal(t, 0, p.Count(BeforeExecution))
	p.Register(BeforeExecution, 0, "a", func(payload any) (any, error) { return payload, nil })
	require.Equal(t, 1, p.Count(BeforeExecution))
}
