// Package optimize suggests generation parameters for a free-text query,
// asking the image service first and falling back to local heuristics.
package optimize

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/fallback"
	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Strategy names reported on OptimizeResult.Strategy
const (
	StrategyJobManager = "job_manager"
	StrategyDirect     = "direct"
	StrategyLocal      = "local"
)

// Remote is the part of the image client the optimizer calls
type Remote interface {
	SubmitOptimizeJob(ctx context.Context, req types.OptimizeRequest) (*types.JobSubmission, error)
	OptimizeParameters(ctx context.Context, req types.OptimizeRequest) (*types.OptimizeResult, error)
}

// ModelLister provides the model names used by the local heuristics
type ModelLister interface {
	ModelNames(ctx context.Context) ([]string, error)
}

// Optimizer runs the job_manager -> direct -> local chain
type Optimizer struct {
	remote     Remote
	poller     *jobs.Poller
	models     ModelLister
	jobTimeout time.Duration
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewOptimizer creates an optimizer. models may be nil.
func NewOptimizer(remote Remote, poller *jobs.Poller, models ModelLister, jobTimeout time.Duration, logger *zap.Logger, m *metrics.Collector) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		remote:     remote,
		poller:     poller,
		models:     models,
		jobTimeout: jobTimeout,
		logger:     logger.With(zap.String("component", "optimizer")),
		metrics:    m,
	}
}

// Optimize returns suggested parameters for query. Strategy on the result
// names the step that produced it.
func (o *Optimizer) Optimize(ctx context.Context, query, model string) (*types.OptimizeResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.InvalidRequest("query is required")
	}
	req := types.OptimizeRequest{Query: query, Model: model}

	chain := fallback.NewChain[*types.OptimizeResult]("optimize", o.logger, o.metrics,
		fallback.Strategy[*types.OptimizeResult]{
			Name: StrategyJobManager,
			Run: func(ctx context.Context) (*types.OptimizeResult, error) {
				return o.viaJob(ctx, req)
			},
			Promote: fallback.AnyOf(
				fallback.EndpointUnavailable,
				fallback.Transport,
				fallback.Kinds(types.KindTimeout, types.KindJobFailed),
			),
		},
		fallback.Strategy[*types.OptimizeResult]{
			Name: StrategyDirect,
			Run: func(ctx context.Context) (*types.OptimizeResult, error) {
				return o.remote.OptimizeParameters(ctx, req)
			},
			Promote: fallback.Except(types.KindInvalidRequest),
		},
		fallback.Strategy[*types.OptimizeResult]{
			Name: StrategyLocal,
			Run: func(ctx context.Context) (*types.OptimizeResult, error) {
				return LocalOptimize(query, model, o.availableModels(ctx)), nil
			},
		},
	)

	res, by, err := chain.Run(ctx)
	if err != nil {
		return nil, types.WithOp("optimize_parameters", err)
	}
	res.Strategy = by
	if res.Prompt == "" {
		res.Prompt = query
	}
	return res, nil
}

func (o *Optimizer) viaJob(ctx context.Context, req types.OptimizeRequest) (*types.OptimizeResult, error) {
	sub, err := o.remote.SubmitOptimizeJob(ctx, req)
	if err != nil {
		return nil, err
	}
	outcome, err := o.poller.WaitForJobResult(ctx, sub.JobID, jobs.WaitOptions{Timeout: o.jobTimeout})
	if err != nil {
		return nil, err
	}
	return decodeJobResult(outcome)
}

// decodeJobResult reads the suggestion from the job's nested "result"
// object, or from the top level when there is none.
func decodeJobResult(outcome *types.JobOutcome) (*types.OptimizeResult, error) {
	body := outcome.Raw
	if len(body) > 0 {
		if nested := gjson.GetBytes(body, "result"); nested.IsObject() {
			body = []byte(nested.Raw)
		}
	} else if outcome.Metadata != nil {
		data, err := json.Marshal(outcome.Metadata)
		if err != nil {
			return nil, err
		}
		body = data
	}
	if len(body) == 0 {
		return nil, types.NewJobFailed(outcome.JobID, outcome.Status, "optimize job returned no result")
	}

	var res types.OptimizeResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, types.NewJobFailed(outcome.JobID, outcome.Status, "optimize job result is not valid: "+err.Error())
	}
	if res.Prompt == "" && res.RecommendedParams == nil {
		return nil, types.NewJobFailed(outcome.JobID, outcome.Status, "optimize job result has no prompt or parameters")
	}
	return &res, nil
}

func (o *Optimizer) availableModels(ctx context.Context) []string {
	if o.models == nil {
		return nil
	}
	names, err := o.models.ModelNames(ctx)
	if err != nil {
		o.logger.Debug("model list unavailable for local optimization", zap.Error(err))
		return nil
	}
	return names
}
