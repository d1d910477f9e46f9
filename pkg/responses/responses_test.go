package responses

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

func decode(t *testing.T, s string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestBuildErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   string
		wantMsg    string
		suggestion string
	}{
		{
			name:       "invalid request",
			err:        types.InvalidRequest("prompt is required"),
			wantType:   "invalid_request",
			wantMsg:    "generate_image: invalid_request: prompt is required",
			suggestion: "Check the parameter values",
		},
		{
			name:       "remote with detail",
			err:        types.RemoteServiceError(429, "rate_limit", "slow down"),
			wantType:   "remote_service_error",
			wantMsg:    "generate_image: remote_service_error: remote service returned 429 (rate limit) (slow down)",
			suggestion: "Wait a few seconds",
		},
		{
			name:       "nested operation",
			err:        types.WithOp("upload", types.RemoteServiceError(500, "server_error", "")),
			wantType:   "remote_service_error",
			wantMsg:    "generate_image: upload: remote_service_error: remote service returned 500 (server error)",
			suggestion: "retry later",
		},
		{
			name:     "untyped",
			err:      errors.New("boom"),
			wantType: "remote_service_error",
			wantMsg:  "generate_image: remote_service_error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decode(t, BuildErrorResponse("generate_image", tt.err))
			assert.Equal(t, false, out["success"])
			body := out["error"].(map[string]interface{})
			assert.Equal(t, tt.wantMsg, body["message"])
			if tt.suggestion != "" {
				assert.Equal(t, tt.wantType, body["type"])
				assert.Contains(t, body["suggestion"], tt.suggestion)
			}
		})
	}
}

func TestBuildErrorResponse_TimeoutDetails(t *testing.T) {
	out := decode(t, BuildErrorResponse("upscale_image", types.Timeout("j1", 2*time.Second, "running")))
	body := out["error"].(map[string]interface{})
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "j1", details["job_id"])
	assert.Equal(t, "running", details["last_status"])
	assert.Contains(t, body["suggestion"], "continue_job")
}

func TestBuildRecordResponse(t *testing.T) {
	rec := &types.LocalRecord{
		ID:          "11111111-2222-3333-4444-555555555555",
		Prompt:      "fox",
		RemoteToken: "tok",
		MimeType:    "image/png",
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Metadata:    map[string]interface{}{"upscale_scale": 2},
	}
	out := decode(t, BuildRecordResponse("upscale_image", rec, map[string]interface{}{"job_id": "j1"}))

	assert.Equal(t, true, out["success"])
	assert.Equal(t, "tok", out["token"])
	assert.Equal(t, "j1", out["job_id"])
	assert.Equal(t, "image://remote-image-ai/image/11111111-2222-3333-4444-555555555555", out["resource_uri"])
	view := out["record"].(map[string]interface{})
	assert.Equal(t, "2024-01-02T03:04:05Z", view["created_at"])
	assert.Equal(t, false, view["has_binary"])
	assert.NotContains(t, view, "download_url")
}

func TestBuildProcessingResponse(t *testing.T) {
	out := decode(t, BuildProcessingResponse("image_to_image", "j9", "", 90*time.Second))
	assert.Equal(t, "processing", out["status"])
	assert.Equal(t, "unknown", out["last_status"])
	assert.Equal(t, 90.0, out["waited_seconds"])
	assert.Contains(t, out["message"], "continue_job")
}
