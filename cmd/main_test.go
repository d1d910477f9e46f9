package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"IMAGE_SERVICE_URL", "IMAGE_API_BASE_URL", "REMOTE_IMAGE_API_URL",
		"IMAGE_SERVICE_API_KEY", "IMAGE_API_KEY", "REMOTE_IMAGE_API_KEY",
		"IMAGE_CACHE_DIR", "IMAGES_ROOT_FOLDER",
		"METRICS_ADDR", "REDIS_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
}

func modelService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/models") {
			fmt.Fprint(w, `{"models": {"sdxl": {"type": "txt2img"}}}`)
			return
		}
		fmt.Fprint(w, `{"config": {"type": "txt2img"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL, redisAddr string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "server.log")
	cfg := fmt.Sprintf(`base_url: %s
images_root: %s
redis:
  addr: %q
log:
  level: info
  output_paths: [%q]
`, baseURL, filepath.Join(dir, "images"), redisAddr, logPath)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, logPath
}

func TestRun_ListModelsReleasesResources(t *testing.T) {
	clearEnv(t)
	mr := miniredis.RunT(t)
	srv := modelService(t)
	configPath, logPath := writeConfig(t, srv.URL, mr.Addr())

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{configPath: configPath, listModels: true}, &stdout, &stderr)

	assert.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `"sdxl"`)

	// The catalog client is closed before run returns.
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "catalog cache backed by redis")
}

func TestRun_ToolErrorIsExitCodeOne(t *testing.T) {
	clearEnv(t)
	srv := modelService(t)
	configPath, _ := writeConfig(t, srv.URL, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{configPath: configPath, generate: true, prompt: "  "}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "invalid_request")
}

func TestRun_InvalidConfig(t *testing.T) {
	clearEnv(t)
	configPath, _ := writeConfig(t, "ftp://example.com", "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), options{configPath: configPath, listModels: true}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Invalid configuration")
	assert.Empty(t, stdout.String())
}

func TestLooksLikeRecordID(t *testing.T) {
	assert.True(t, looksLikeRecordID("3f2b8c1e-7d4a-4b6e-9c1f-2a5d8e7b4c10"))
	assert.False(t, looksLikeRecordID("tok-123"))
	assert.False(t, looksLikeRecordID("image://remote-image-ai/image/x"))
}
