// Package fallback runs an ordered list of strategies, moving to the next one
// only when the failed strategy's promotion condition accepts the error.
package fallback

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Strategy is one step of a chain
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
	// Promote decides whether an error from Run hands over to the next
	// strategy. A nil Promote never hands over.
	Promote func(err error) bool
}

// Chain is an ordered list of strategies sharing one result type
type Chain[T any] struct {
	name       string
	strategies []Strategy[T]
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewChain creates a chain
func NewChain[T any](name string, logger *zap.Logger, m *metrics.Collector, strategies ...Strategy[T]) *Chain[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain[T]{
		name:       name,
		strategies: strategies,
		logger:     logger.With(zap.String("chain", name)),
		metrics:    m,
	}
}

// Run executes strategies in order and returns the first success together
// with the name of the strategy that produced it. The error of a strategy
// that is not promoted is returned unchanged.
func (c *Chain[T]) Run(ctx context.Context) (T, string, error) {
	var zero T
	if len(c.strategies) == 0 {
		return zero, "", errors.New("fallback chain " + c.name + " has no strategies")
	}

	for i, s := range c.strategies {
		result, err := s.Run(ctx)
		if err == nil {
			return result, s.Name, nil
		}
		if ctx.Err() != nil {
			return zero, s.Name, err
		}
		last := i == len(c.strategies)-1
		if last || s.Promote == nil || !s.Promote(err) {
			return zero, s.Name, err
		}
		c.metrics.RecordFallback(c.name, s.Name)
		c.logger.Warn("strategy failed, falling back",
			zap.String("strategy", s.Name),
			zap.String("next", c.strategies[i+1].Name),
			zap.Error(err))
	}
	return zero, "", errors.New("unreachable")
}

// EndpointUnavailable matches remote errors that mean the endpoint itself is
// missing on this service (404, 405, 501).
func EndpointUnavailable(err error) bool {
	var typed *types.Error
	if !errors.As(err, &typed) || typed.Kind != types.KindRemoteService {
		return false
	}
	switch typed.StatusCode {
	case 404, 405, 501:
		return true
	}
	return false
}

// Transport matches errors that never got an HTTP status back
func Transport(err error) bool {
	var typed *types.Error
	if !errors.As(err, &typed) {
		return true
	}
	return typed.Kind == types.KindRemoteService && typed.StatusCode == 0
}

// AnyOf combines promotion conditions
func AnyOf(preds ...func(error) bool) func(error) bool {
	return func(err error) bool {
		for _, p := range preds {
			if p(err) {
				return true
			}
		}
		return false
	}
}

// Kinds matches errors of the given kinds
func Kinds(kinds ...types.ErrorKind) func(error) bool {
	return func(err error) bool {
		k := types.KindOf(err)
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	}
}

// Except promotes every error apart from the given kinds
func Except(kinds ...types.ErrorKind) func(error) bool {
	match := Kinds(kinds...)
	return func(err error) bool { return !match(err) }
}
