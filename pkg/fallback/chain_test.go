package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

func step(name string, result string, err error, promote func(error) bool, calls *[]string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Run: func(ctx context.Context) (string, error) {
			*calls = append(*calls, name)
			return result, err
		},
		Promote: promote,
	}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	var calls []string
	c := NewChain[string]("test", zaptest.NewLogger(t), nil,
		step("a", "from-a", nil, EndpointUnavailable, &calls),
		step("b", "from-b", nil, nil, &calls),
	)

	got, by, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-a", got)
	assert.Equal(t, "a", by)
	assert.Equal(t, []string{"a"}, calls)
}

func TestChain_PromotesOnMatchingError(t *testing.T) {
	var calls []string
	m := metrics.NewCollector("test", nil)
	c := NewChain[string]("img2img", zaptest.NewLogger(t), m,
		step("job", "", types.RemoteServiceError(404, "not_found", "no such route"), EndpointUnavailable, &calls),
		step("sync", "from-sync", nil, nil, &calls),
	)

	got, by, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-sync", got)
	assert.Equal(t, "sync", by)
	assert.Equal(t, []string{"job", "sync"}, calls)
	count, err := testutil.GatherAndCount(m.Registry(), "test_fallback_promotions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChain_NonPromotedErrorPropagatesUnchanged(t *testing.T) {
	var calls []string
	cause := types.RemoteServiceError(500, "server_error", "boom")
	c := NewChain[string]("img2img", zaptest.NewLogger(t), nil,
		step("job", "", cause, EndpointUnavailable, &calls),
		step("sync", "from-sync", nil, nil, &calls),
	)

	_, by, err := c.Run(context.Background())
	assert.Same(t, cause, err)
	assert.Equal(t, "job", by)
	assert.Equal(t, []string{"job"}, calls)
}

func TestChain_LastErrorIsReturned(t *testing.T) {
	var calls []string
	last := types.InvalidRequest("bad")
	c := NewChain[string]("x", nil, nil,
		step("a", "", errors.New("dial tcp"), Transport, &calls),
		step("b", "", last, Except(types.KindInvalidRequest), &calls),
	)

	_, by, err := c.Run(context.Background())
	assert.Same(t, last, err)
	assert.Equal(t, "b", by)
}

func TestChain_Empty(t *testing.T) {
	_, _, err := NewChain[int]("empty", nil, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestPredicates(t *testing.T) {
	assert.True(t, EndpointUnavailable(types.RemoteServiceError(405, "method_not_allowed", "")))
	assert.True(t, EndpointUnavailable(types.RemoteServiceError(501, "not_implemented", "")))
	assert.False(t, EndpointUnavailable(types.RemoteServiceError(500, "server_error", "")))
	assert.False(t, EndpointUnavailable(types.NotFound("record")))

	assert.True(t, Transport(errors.New("connection refused")))
	assert.True(t, Transport(types.RemoteServiceError(0, "transport", "")))
	assert.False(t, Transport(types.RemoteServiceError(502, "server_error", "")))

	jobManager := AnyOf(EndpointUnavailable, Transport, Kinds(types.KindTimeout, types.KindJobFailed))
	assert.True(t, jobManager(types.Timeout("j", 0, "")))
	assert.True(t, jobManager(types.NewJobFailed("j", "failed", "")))
	assert.False(t, jobManager(types.InvalidRequest("x")))

	direct := Except(types.KindInvalidRequest)
	assert.True(t, direct(types.RemoteServiceError(500, "server_error", "")))
	assert.False(t, direct(types.InvalidRequest("x")))
}
