package responses

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// BuildSuccessResponse creates a standardized success response
func BuildSuccessResponse(operation string, data map[string]interface{}) string {
	response := map[string]interface{}{
		"success":   true,
		"operation": operation,
	}
	for k, v := range data {
		response[k] = v
	}
	return marshal(response)
}

// BuildRecordResponse is a success response centred on one saved record
func BuildRecordResponse(operation string, rec *types.LocalRecord, data map[string]interface{}) string {
	merged := map[string]interface{}{
		"record":       RecordView(rec),
		"resource_uri": storage.ResourceURI(rec.ID),
		"id":           rec.ID,
	}
	if rec.RemoteToken != "" {
		merged["token"] = rec.RemoteToken
	}
	for k, v := range data {
		merged[k] = v
	}
	return BuildSuccessResponse(operation, merged)
}

// BuildErrorResponse creates a standardized error response. The message is
// "<operation>: <kind>: <message> (<detail>)".
func BuildErrorResponse(operation string, err error) string {
	message := types.WithOp(operation, err).Error()
	if op := opOf(err); op != "" && op != operation {
		message = operation + ": " + message
	}

	body := map[string]interface{}{
		"message": message,
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		body["type"] = string(typed.Kind)
		body["suggestion"] = GetSuggestion(typed.Kind, typed.Category)
		if typed.StatusCode != 0 {
			body["status_code"] = typed.StatusCode
		}
		if typed.Category != "" {
			body["category"] = typed.Category
		}
		if typed.Detail != "" {
			body["detail"] = typed.Detail
		}
		if len(typed.Details) > 0 {
			body["details"] = typed.Details
		}
	}

	return marshal(map[string]interface{}{
		"success":   false,
		"operation": operation,
		"error":     body,
	})
}

// BuildProcessingResponse creates a response for jobs still running
// remotely after the local wait gave up.
func BuildProcessingResponse(operation string, jobID string, lastStatus string, waited time.Duration) string {
	if lastStatus == "" {
		lastStatus = "unknown"
	}
	return marshal(map[string]interface{}{
		"success":        false,
		"operation":      operation,
		"status":         "processing",
		"job_id":         jobID,
		"last_status":    lastStatus,
		"waited_seconds": waited.Seconds(),
		"message":        fmt.Sprintf("Job still running on the image service. Use continue_job with job_id='%s' to wait for it and save the result.", jobID),
	})
}

// RecordView is the public JSON shape of a LocalRecord
func RecordView(rec *types.LocalRecord) map[string]interface{} {
	view := map[string]interface{}{
		"id":           rec.ID,
		"resource_uri": storage.ResourceURI(rec.ID),
		"prompt":       rec.Prompt,
		"model":        rec.Model,
		"created_at":   rec.CreatedAt.Format(time.RFC3339),
		"mime_type":    rec.MimeType,
		"has_binary":   rec.HasBinary(),
	}
	optional := map[string]string{
		"remote_token": rec.RemoteToken,
		"download_url": rec.DownloadURL,
		"operation":    rec.Operation,
		"supersedes":   rec.Supersedes,
		"filename":     rec.Filename,
	}
	for k, v := range optional {
		if v != "" {
			view[k] = v
		}
	}
	if len(rec.Metadata) > 0 {
		view["metadata"] = rec.Metadata
	}
	return view
}

// GetSuggestion provides helpful suggestions for different error types
func GetSuggestion(kind types.ErrorKind, category string) string {
	switch category {
	case "unauthorized", "forbidden":
		return "Check IMAGE_SERVICE_API_KEY and that the key may use this endpoint"
	case "rate_limit":
		return "Wait a few seconds before retrying"
	case "billing_issue":
		return "Check the billing status of the image service account"
	case "payload_too_large":
		return "Use a smaller image or reference an already uploaded token"
	case "transport":
		return "Check IMAGE_SERVICE_URL and that the image service is reachable"
	}

	suggestions := map[types.ErrorKind]string{
		types.KindInvalidRequest:    "Check the parameter values and ensure they meet the requirements",
		types.KindNotFound:          "Use list_images or search_images to find a valid id, or pass the remote token directly",
		types.KindRemoteService:     "The image service rejected the request; retry later or adjust the parameters",
		types.KindJobFailed:         "The remote job failed; adjust the input and submit again",
		types.KindTimeout:           "The job is taking longer than expected. Use continue_job or check_job with the job id",
		types.KindBinaryUnavailable: "The image metadata exists but its bytes could not be loaded; reference it by token instead",
	}
	if suggestion, ok := suggestions[kind]; ok {
		return suggestion
	}
	return "Please check your input and try again"
}

func opOf(err error) string {
	var typed *types.Error
	if errors.As(err, &typed) {
		return typed.Op
	}
	return ""
}

func marshal(v interface{}) string {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":{"message":%q}}`, err.Error())
	}
	return string(jsonBytes)
}
