package optimize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gomcpgo/remote_image_ai/pkg/client"
	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

type staticModels []string

func (s staticModels) ModelNames(ctx context.Context) ([]string, error) {
	if s == nil {
		return nil, errors.New("catalog down")
	}
	return s, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestOptimizer(t *testing.T, mock *client.MockClient, models ModelLister) *Optimizer {
	t.Helper()
	poller := jobs.NewPoller(mock, zaptest.NewLogger(t), jobs.WithSleep(noSleep))
	return NewOptimizer(mock, poller, models, time.Minute, zaptest.NewLogger(t), nil)
}

func TestOptimize_JobManager(t *testing.T) {
	mock := client.NewMockClient()
	mock.NextJobID = "opt-1"
	mock.JobScripts["opt-1"] = []client.JobStep{
		{Result: &types.JobResult{Status: "running"}},
		{Result: &types.JobResult{
			Status: "completed",
			Raw:    []byte(`{"status":"completed","result":{"prompt":"a red fox, golden hour","steps":40,"reason":"llm"}}`),
		}},
	}
	o := newTestOptimizer(t, mock, nil)

	res, err := o.Optimize(context.Background(), "a red fox", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyJobManager, res.Strategy)
	assert.Equal(t, "a red fox, golden hour", res.Prompt)
	require.NotNil(t, res.Steps)
	assert.Equal(t, 40, *res.Steps)
	assert.Zero(t, mock.CallCount("OptimizeParameters"))
}

func TestOptimize_FallsBackToDirect(t *testing.T) {
	mock := client.NewMockClient()
	mock.Errors["SubmitOptimizeJob"] = types.RemoteServiceError(404, "not_found", "no job manager")
	mock.OptimizeResult = &types.OptimizeResult{Prompt: "improved", Model: "sdxl"}
	o := newTestOptimizer(t, mock, nil)

	res, err := o.Optimize(context.Background(), "a red fox", "sdxl")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, res.Strategy)
	assert.Equal(t, "improved", res.Prompt)
	assert.Equal(t, []interface{}{types.OptimizeRequest{Query: "a red fox", Model: "sdxl"}}, mock.CallsTo("OptimizeParameters"))
}

func TestOptimize_JobFailureFallsBack(t *testing.T) {
	mock := client.NewMockClient()
	mock.NextJobID = "opt-2"
	mock.ScriptJob("opt-2", "failed")
	o := newTestOptimizer(t, mock, nil)

	res, err := o.Optimize(context.Background(), "castle", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, res.Strategy)
}

func TestOptimize_FallsBackToLocal(t *testing.T) {
	mock := client.NewMockClient()
	mock.Errors["SubmitOptimizeJob"] = errors.New("connection refused")
	mock.Errors["OptimizeParameters"] = types.RemoteServiceError(500, "server_error", "llm offline")
	o := newTestOptimizer(t, mock, staticModels{"anime-v3", "sdxl"})

	res, err := o.Optimize(context.Background(), "anime girl with a sword", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyLocal, res.Strategy)
	assert.Equal(t, "anime-v3", res.SuggestedModel)
	assert.Equal(t, "anime-v3", res.Model)
	assert.Contains(t, res.Prompt, "anime girl with a sword")
	assert.Contains(t, res.Reason, "anime")
}

func TestOptimize_CallerErrorsDoNotFallBack(t *testing.T) {
	mock := client.NewMockClient()
	mock.Errors["SubmitOptimizeJob"] = types.RemoteServiceError(401, "unauthorized", "bad key")
	o := newTestOptimizer(t, mock, nil)

	_, err := o.Optimize(context.Background(), "castle", "")
	require.Error(t, err)
	assert.Equal(t, 401, types.StatusCodeOf(err))
	assert.Contains(t, err.Error(), "optimize_parameters")
	assert.Zero(t, mock.CallCount("OptimizeParameters"))
}

func TestOptimize_DirectInvalidRequestPropagates(t *testing.T) {
	mock := client.NewMockClient()
	mock.Errors["SubmitOptimizeJob"] = types.RemoteServiceError(501, "not_implemented", "")
	mock.Errors["OptimizeParameters"] = types.InvalidRequest("query too long")
	o := newTestOptimizer(t, mock, nil)

	_, err := o.Optimize(context.Background(), "castle", "")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestOptimize_EmptyQuery(t *testing.T) {
	o := newTestOptimizer(t, client.NewMockClient(), nil)
	_, err := o.Optimize(context.Background(), "   ", "")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestLocalOptimize(t *testing.T) {
	res := LocalOptimize("wide panorama photo of a mountain lake", "", nil)
	assert.Equal(t, "", res.Model)
	require.NotNil(t, res.Width)
	assert.Equal(t, 1344, *res.Width)
	assert.Equal(t, 768, *res.Height)
	assert.Contains(t, res.Prompt, "photorealistic")
	assert.Contains(t, res.Reason, "photo profile")

	res = LocalOptimize("a cat", "my-model", []string{"zeta", "alpha"})
	assert.Equal(t, "my-model", res.Model)
	assert.Equal(t, "alpha", res.SuggestedModel)
	assert.Equal(t, 1024, *res.Width)
	assert.Equal(t, 7.0, *res.GuidanceScale)
}

func TestMatch(t *testing.T) {
	assert.Equal(t, "design", Match("minimal flat logo for a bakery").Category)
	assert.Equal(t, "artistic", Match("watercolor painting of a harbor").Category)
	assert.Equal(t, "general", Match("a cat").Category)
}
