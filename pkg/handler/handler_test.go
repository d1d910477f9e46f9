package handler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/gomcpgo/remote_image_ai/pkg/client"
	"github.com/gomcpgo/remote_image_ai/pkg/config"
	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func newTestHandler(t *testing.T) (*ImageHandler, *client.MockClient, *storage.Storage) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mockClient := client.NewMockClient()
	store := storage.NewStorage(t.TempDir(), logger)
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	h := New(Components{
		Client:   mockClient,
		Storage:  store,
		Timeouts: config.TestTimeouts(),
		Logger:   logger,
		Metrics:  metrics.NewCollector("test", nil),
		Clock:    clock,
		Sleep:    clock.Sleep,
	})
	return h, mockClient, store
}

func call(t *testing.T, h *ImageHandler, name string, args map[string]interface{}) (*ToolResult, map[string]interface{}) {
	t.Helper()
	res, err := h.CallTool(context.Background(), name, args)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal([]byte(res.Text), &body); err != nil {
		t.Fatalf("%s: response is not JSON: %v\n%s", name, err, res.Text)
	}
	return res, body
}

func mustSucceed(t *testing.T, h *ImageHandler, name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	res, body := call(t, h, name, args)
	if res.IsError || body["success"] != true {
		t.Fatalf("%s failed: %s", name, res.Text)
	}
	return body
}

func errorBody(t *testing.T, res *ToolResult, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	if !res.IsError {
		t.Fatalf("expected an error result, got: %s", res.Text)
	}
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("error envelope missing: %s", res.Text)
	}
	return e
}

func TestGenerateImage_SavesRecord(t *testing.T) {
	h, _, store := newTestHandler(t)

	body := mustSucceed(t, h, "generate_image", map[string]interface{}{
		"prompt": "a lighthouse at night",
		"steps":  float64(25),
	})

	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("response has no record id: %v", body)
	}
	if body["resource_uri"] != storage.ResourceURI(id) {
		t.Errorf("expected resource uri for %s, got %v", id, body["resource_uri"])
	}
	if body["token"] == nil {
		t.Error("expected token in response")
	}
	if _, err := store.Get(id); err != nil {
		t.Errorf("record not saved: %v", err)
	}
}

func TestGenerateImage_ValidationError(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)

	res, body := call(t, h, "generate_image", map[string]interface{}{"prompt": "x", "guidance_scale": float64(80)})
	e := errorBody(t, res, body)

	if e["type"] != string(types.KindInvalidRequest) {
		t.Errorf("expected invalid_request, got %v", e["type"])
	}
	msg, _ := e["message"].(string)
	if !strings.Contains(msg, "guidance_scale") {
		t.Errorf("unexpected message: %q", msg)
	}
	if e["suggestion"] == "" {
		t.Error("expected a suggestion")
	}
	if n := len(mockClient.Calls()); n != 0 {
		t.Errorf("expected no remote calls, got %d", n)
	}
}

func TestGenerateImage_RejectsOutOfRangeIntegers(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)

	for _, seed := range []interface{}{1e20, -1e20, "9.3e18"} {
		res, body := call(t, h, "generate_image", map[string]interface{}{"prompt": "x", "seed": seed})
		e := errorBody(t, res, body)
		if e["type"] != string(types.KindInvalidRequest) {
			t.Errorf("seed %v: expected invalid_request, got %v", seed, e["type"])
		}
		if msg, _ := e["message"].(string); !strings.Contains(msg, "seed") {
			t.Errorf("seed %v: message should name the argument: %q", seed, msg)
		}
	}
	if n := mockClient.CallCount("Generate"); n != 0 {
		t.Errorf("expected no remote calls, got %d", n)
	}

	mustSucceed(t, h, "generate_image", map[string]interface{}{"prompt": "x", "seed": float64(1 << 40)})
	req := mockClient.CallsTo("Generate")[0].(types.GenerateRequest)
	if req.Seed == nil || *req.Seed != 1<<40 {
		t.Errorf("expected seed 1<<40 to reach the service, got %v", req.Seed)
	}
}

func TestGenerateImage_RemoteError(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)
	mockClient.Errors["Generate"] = types.RemoteServiceError(503, "server_error", "model loading")

	res, body := call(t, h, "generate_image", map[string]interface{}{"prompt": "x"})
	e := errorBody(t, res, body)
	if e["type"] != string(types.KindRemoteService) || e["status_code"] != float64(503) {
		t.Errorf("unexpected error body: %v", e)
	}
	if !strings.Contains(e["message"].(string), "model loading") {
		t.Errorf("expected upstream detail in message: %v", e["message"])
	}
}

func TestCallTool_UnknownTool(t *testing.T) {
	h, _, _ := newTestHandler(t)

	if _, err := h.CallTool(context.Background(), "remove_background", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

// TestUpscale_TimeoutThenContinue covers a job that outlives the first
// wait and is finished by continue_job
func TestUpscale_TimeoutThenContinue(t *testing.T) {
	h, mockClient, store := newTestHandler(t)
	mockClient.NextJobID = "j-up"
	mockClient.ScriptJob("j-up", "running")

	res, body := call(t, h, "upscale_image", map[string]interface{}{
		"token":   "tok-src",
		"scale":   float64(4),
		"timeout": float64(2),
	})
	if res.IsError {
		t.Fatalf("a timed-out job is not an error: %s", res.Text)
	}
	if body["status"] != "processing" || body["job_id"] != "j-up" || body["last_status"] != "running" {
		t.Fatalf("unexpected processing response: %s", res.Text)
	}
	if h.Pending().Len() != 1 {
		t.Fatalf("expected 1 pending job, got %d", h.Pending().Len())
	}

	check := mustSucceed(t, h, "check_job", map[string]interface{}{"job_id": "j-up"})
	if check["state"] != types.JobPending || check["pending_operation"] != types.OpUpscale {
		t.Errorf("unexpected check_job response: %v", check)
	}

	mockClient.ScriptJob("j-up", "succeeded")
	done := mustSucceed(t, h, "continue_job", map[string]interface{}{"job_id": "j-up"})
	if done["original_operation"] != types.OpUpscale {
		t.Errorf("expected original operation upscale_image, got %v", done["original_operation"])
	}
	if h.Pending().Len() != 0 {
		t.Errorf("expected pending registry to be empty, got %d", h.Pending().Len())
	}

	rec, err := store.Get(done["id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Operation != types.OpUpscale || rec.RemoteToken != "j-up-out" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Metadata["upscaled_from"] != "tok-src" || rec.Metadata["upscale_scale"] != float64(4) {
		t.Errorf("lineage lost: %v", rec.Metadata)
	}
}

func TestContinueJob_FailedJob(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)
	mockClient.ScriptJob("j-dead", "failed")

	res, body := call(t, h, "continue_job", map[string]interface{}{"job_id": "j-dead"})
	e := errorBody(t, res, body)
	if e["type"] != string(types.KindJobFailed) {
		t.Errorf("expected job_failed, got %v", e["type"])
	}
}

func TestImageToImage_FromSavedRecord(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)
	gen := mustSucceed(t, h, "generate_image", map[string]interface{}{"prompt": "a meadow"})
	mockClient.NextJobID = "j-i2i"

	body := mustSucceed(t, h, "image_to_image", map[string]interface{}{
		"image_id": gen["resource_uri"],
		"prompt":   "the meadow in winter",
		"strength": 0.5,
		"width":    float64(512),
	})
	if body["strategy"] != "job" || body["job_id"] != "j-i2i" {
		t.Errorf("unexpected response: %v", body)
	}

	req := mockClient.CallsTo("ImageToImageJob")[0].(types.ImageToImageRequest)
	if req.InitToken != gen["token"] {
		t.Errorf("expected init token %v, got %q", gen["token"], req.InitToken)
	}
	if mockClient.CallCount("StoreFromBytes") != 0 {
		t.Error("record with a token must not be uploaded")
	}
}

func TestCaption_SaveHidesOldRecord(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)
	gen := mustSucceed(t, h, "generate_image", map[string]interface{}{"prompt": "a cat"})
	mockClient.CaptionResult = &types.CaptionResult{Caption: "a grey cat on a windowsill", ModelID: "blip"}

	body := mustSucceed(t, h, "caption_image", map[string]interface{}{
		"image_id":     gen["id"],
		"save_caption": true,
	})
	if body["caption"] != "a grey cat on a windowsill" {
		t.Errorf("unexpected caption: %v", body["caption"])
	}

	list := mustSucceed(t, h, "list_images", nil)
	images := list["images"].([]interface{})
	if len(images) != 1 {
		t.Fatalf("expected 1 current image, got %d", len(images))
	}
	if images[0].(map[string]interface{})["id"] != body["id"] {
		t.Error("listed record should be the captioned one")
	}

	all := mustSucceed(t, h, "list_images", map[string]interface{}{"include_superseded": true})
	if all["total"] != float64(2) {
		t.Errorf("expected 2 records including superseded, got %v", all["total"])
	}

	found := mustSucceed(t, h, "search_images", map[string]interface{}{"query": "windowsill"})
	if found["count"] != float64(1) {
		t.Errorf("expected caption to be searchable, got %v", found)
	}
}

func TestUpdateImageMetadata(t *testing.T) {
	h, _, _ := newTestHandler(t)
	imp := mustSucceed(t, h, "import_image", map[string]interface{}{
		"image_base64": client.MockPNG,
		"prompt":       "logo draft",
		"tags":         []interface{}{"logo"},
	})

	body := mustSucceed(t, h, "update_image_metadata", map[string]interface{}{
		"token":    imp["token"],
		"metadata": map[string]interface{}{"tags": []interface{}{"logo", "final"}, "rating": float64(5)},
	})
	if body["supersedes"] != imp["id"] {
		t.Errorf("expected supersedes %v, got %v", imp["id"], body["supersedes"])
	}

	found := mustSucceed(t, h, "search_images", map[string]interface{}{"query": "final"})
	if found["count"] != float64(1) {
		t.Errorf("expected tag search to find the updated record, got %v", found)
	}
}

func TestUpdateImageMetadata_RequiresPatch(t *testing.T) {
	h, _, _ := newTestHandler(t)

	res, body := call(t, h, "update_image_metadata", map[string]interface{}{"token": "tok"})
	e := errorBody(t, res, body)
	if e["type"] != string(types.KindInvalidRequest) {
		t.Errorf("expected invalid_request, got %v", e["type"])
	}
}

func TestGetImage(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)
	gen := mustSucceed(t, h, "generate_image", map[string]interface{}{"prompt": "a boat"})

	body := mustSucceed(t, h, "get_image", map[string]interface{}{
		"resource_uri":  gen["resource_uri"],
		"include_image": true,
	})
	if body["image_base64"] != client.MockPNG {
		t.Error("expected embedded image bytes")
	}

	mockClient.FetchResults["tok-remote"] = &types.ImageResult{Token: "tok-remote", DownloadURL: "https://cdn.example/x.png"}
	remote := mustSucceed(t, h, "get_image", map[string]interface{}{"token": "tok-remote"})
	if remote["remote"] == nil {
		t.Errorf("expected remote details for an unknown token: %v", remote)
	}

	res, errBody := call(t, h, "get_image", map[string]interface{}{"image_id": "missing"})
	if e := errorBody(t, res, errBody); e["type"] != string(types.KindNotFound) {
		t.Errorf("expected not_found, got %v", e["type"])
	}
}

func TestStoreImageFromURL_RejectsFileScheme(t *testing.T) {
	h, _, _ := newTestHandler(t)

	res, body := call(t, h, "store_image_from_url", map[string]interface{}{"url": "file:///etc/hosts"})
	if e := errorBody(t, res, body); e["type"] != string(types.KindInvalidRequest) {
		t.Errorf("expected invalid_request, got %v", e["type"])
	}
}

func TestModels(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)

	list := mustSucceed(t, h, "list_models", nil)
	if list["count"] != float64(1) {
		t.Errorf("expected 1 model, got %v", list["count"])
	}
	mustSucceed(t, h, "list_models", nil)
	if n := mockClient.CallCount("GetModels"); n != 1 {
		t.Errorf("expected catalog to be cached, got %d remote calls", n)
	}

	model := mustSucceed(t, h, "get_model", map[string]interface{}{"name": "sdxl"})
	if model["name"] != "sdxl" {
		t.Errorf("unexpected model: %v", model)
	}

	res, body := call(t, h, "get_model", map[string]interface{}{"name": "nope"})
	if e := errorBody(t, res, body); e["type"] != string(types.KindNotFound) {
		t.Errorf("expected not_found, got %v", e["type"])
	}
}

func TestOptimizeParameters_FallsBackToDirect(t *testing.T) {
	h, mockClient, _ := newTestHandler(t)
	mockClient.Errors["SubmitOptimizeJob"] = types.RemoteServiceError(404, "not_found", "no job manager")

	body := mustSucceed(t, h, "optimize_parameters", map[string]interface{}{"query": "a castle"})
	if body["strategy"] != "direct" {
		t.Errorf("expected direct strategy, got %v", body["strategy"])
	}
	if body["prompt"] != "a castle, highly detailed" {
		t.Errorf("unexpected prompt: %v", body["prompt"])
	}
}

func TestReadImage(t *testing.T) {
	h, _, _ := newTestHandler(t)
	gen := mustSucceed(t, h, "generate_image", map[string]interface{}{"prompt": "a kite"})

	payload, mimeType, err := h.ReadImage(gen["resource_uri"].(string))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != client.MockPNG || mimeType != "image/png" {
		t.Errorf("unexpected resource: %s %q", mimeType, payload)
	}

	if _, _, err := h.ReadImage("image://elsewhere/image/1"); err == nil {
		t.Error("expected error for a foreign URI")
	}
}

func TestListTools_MatchesDispatch(t *testing.T) {
	h, _, _ := newTestHandler(t)

	defs := h.ListTools()
	if len(defs) != len(h.tools) {
		t.Errorf("expected %d tool definitions, got %d", len(h.tools), len(defs))
	}
	for _, def := range defs {
		if _, ok := h.tools[def.Name]; !ok {
			t.Errorf("tool %s has no handler", def.Name)
		}
		if !json.Valid(def.InputSchema) {
			t.Errorf("tool %s has an invalid schema", def.Name)
		}
	}
}
