package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gomcpgo/remote_image_ai/pkg/client"
	"github.com/gomcpgo/remote_image_ai/pkg/config"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

func testModels() *types.ModelList {
	return &types.ModelList{Models: map[string]map[string]interface{}{
		"sdxl":            {"type": "text2img", "default_steps": 30},
		"anime-v3":        {"type": "text2img"},
		"realistic-pro":   {"type": "text2img"},
		"upscaler-esrgan": {"type": "upscale"},
	}}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	backend, err := NewRedisBackend(context.Background(), config.RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return mr, backend
}

func TestCatalog_ModelsAreCached(t *testing.T) {
	mock := client.NewMockClient()
	mock.Models = testModels()
	c := New(mock, nil, time.Minute, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	first, err := c.Models(ctx)
	require.NoError(t, err)
	second, err := c.Models(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.Models, 4)
	assert.Equal(t, 1, mock.CallCount("GetModels"))

	names, err := c.ModelNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"anime-v3", "realistic-pro", "sdxl", "upscaler-esrgan"}, names)
}

func TestCatalog_MemoryExpiry(t *testing.T) {
	mock := client.NewMockClient()
	backend := NewMemoryBackend()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }
	c := New(mock, backend, time.Minute, nil, nil)
	ctx := context.Background()

	_, err := c.Models(ctx)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = c.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.CallCount("GetModels"))
}

func TestCatalog_ModelNotFound(t *testing.T) {
	mock := client.NewMockClient()
	mock.Models = testModels()
	c := New(mock, nil, time.Minute, nil, nil)

	_, err := c.Model(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = c.Model(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestCatalog_Details(t *testing.T) {
	mock := client.NewMockClient()
	mock.Models = testModels()
	c := New(mock, nil, time.Minute, nil, nil)

	details, err := c.Details(context.Background(), []string{"sdxl", "anime-v3"})
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "sdxl", details["sdxl"].Name)
	assert.Equal(t, "text2img", details["anime-v3"].Config["type"])

	_, err = c.Details(context.Background(), []string{"sdxl", "missing"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCatalog_RedisBackend(t *testing.T) {
	mr, backend := setupRedis(t)
	mock := client.NewMockClient()
	mock.Models = testModels()
	ctx := context.Background()

	c := New(mock, backend, time.Minute, zaptest.NewLogger(t), nil)
	_, err := c.Model(ctx, "sdxl")
	require.NoError(t, err)
	assert.True(t, mr.Exists("remote_image_ai:catalog:model:sdxl"))

	// a second process sharing the same redis does not call the service
	other := New(mock, backend, time.Minute, nil, nil)
	d, err := other.Model(ctx, "sdxl")
	require.NoError(t, err)
	assert.Equal(t, 30.0, d.Config["default_steps"])
	assert.Equal(t, 1, mock.CallCount("GetModelDetail"))

	mr.FastForward(2 * time.Minute)
	_, err = other.Model(ctx, "sdxl")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.CallCount("GetModelDetail"))
}

func TestCatalog_Invalidate(t *testing.T) {
	mr, backend := setupRedis(t)
	mock := client.NewMockClient()
	mock.Models = testModels()
	ctx := context.Background()
	c := New(mock, backend, time.Hour, nil, nil)

	_, err := c.Models(ctx)
	require.NoError(t, err)
	_, err = c.Model(ctx, "sdxl")
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists("remote_image_ai:catalog:models"))
	assert.False(t, mr.Exists("remote_image_ai:catalog:model:sdxl"))
}

func TestCatalog_SourceErrorIsNotCached(t *testing.T) {
	mock := client.NewMockClient()
	mock.Errors["GetModels"] = types.RemoteServiceError(503, "server_error", "warming up")
	c := New(mock, nil, time.Minute, nil, nil)
	ctx := context.Background()

	_, err := c.Models(ctx)
	assert.ErrorIs(t, err, types.ErrRemoteService)

	delete(mock.Errors, "GetModels")
	list, err := c.Models(ctx)
	require.NoError(t, err)
	assert.Contains(t, list.Models, "sdxl")
}

func TestNewRedisBackend_Unreachable(t *testing.T) {
	_, err := NewRedisBackend(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}
