package handler

import (
	"context"

	"github.com/gomcpgo/remote_image_ai/pkg/enhancement"
	"github.com/gomcpgo/remote_image_ai/pkg/responses"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// handleUpscaleImage handles the upscale_image tool
func (h *ImageHandler) handleUpscaleImage(ctx context.Context, args map[string]interface{}) (string, error) {
	params := enhancement.UpscaleParams{
		Image:    imageRef(args),
		Filename: stringArg(args, "filename"),
	}
	var err error
	if params.Scale, err = optionalInt(args, "scale"); err != nil {
		return "", err
	}
	if params.PollInterval, params.Timeout, err = waitArgs(args); err != nil {
		return "", err
	}
	if params.Extra, err = objectArg(args, "extra"); err != nil {
		return "", err
	}

	result, err := h.enhancer.UpscaleImage(ctx, params)
	if err != nil {
		return "", err
	}
	return responses.BuildRecordResponse("upscale_image", result.Record, map[string]interface{}{
		"upscaled_from":    result.SourceToken,
		"scale":            result.Scale,
		"job_id":           result.JobID,
		"polls":            result.Polls,
		"duration_seconds": result.Duration.Seconds(),
	}), nil
}

// handleCaptionImage handles the caption_image tool
func (h *ImageHandler) handleCaptionImage(ctx context.Context, args map[string]interface{}) (string, error) {
	params := enhancement.CaptionParams{
		Image:              imageRef(args),
		Prompt:             stringArg(args, "prompt"),
		ModelID:            stringArg(args, "model_id"),
		UseNucleusSampling: optionalBool(args, "use_nucleus_sampling"),
		SaveCaption:        boolArg(args, "save_caption"),
	}
	var err error
	if params.MaxNewTokens, err = optionalInt(args, "max_new_tokens"); err != nil {
		return "", err
	}
	if params.Temperature, err = optionalFloat(args, "temperature"); err != nil {
		return "", err
	}
	if params.TopP, err = optionalFloat(args, "top_p"); err != nil {
		return "", err
	}
	if params.RepetitionPenalty, err = optionalFloat(args, "repetition_penalty"); err != nil {
		return "", err
	}
	if params.Extra, err = objectArg(args, "extra"); err != nil {
		return "", err
	}

	result, err := h.enhancer.Caption(ctx, params)
	if err != nil {
		return "", err
	}

	data := map[string]interface{}{
		"caption":          result.Caption,
		"model_id":         result.ModelID,
		"duration_seconds": result.Duration.Seconds(),
	}
	for k, v := range map[string]string{"device": result.Device, "dtype": result.Dtype, "token": result.SourceToken} {
		if v != "" {
			data[k] = v
		}
	}
	if len(result.Metadata) > 0 {
		data["metadata"] = result.Metadata
	}
	if result.Record != nil {
		return responses.BuildRecordResponse("caption_image", result.Record, data), nil
	}
	return responses.BuildSuccessResponse("caption_image", data), nil
}

// handleUpdateMetadata handles the update_image_metadata tool
func (h *ImageHandler) handleUpdateMetadata(ctx context.Context, args map[string]interface{}) (string, error) {
	patch, err := objectArg(args, "metadata")
	if err != nil {
		return "", err
	}
	if len(patch) == 0 {
		return "", types.InvalidRequest("metadata is required")
	}

	update, err := h.enhancer.UpdateMetadata(ctx, enhancement.MetadataParams{
		Image: imageRef(args),
		Patch: patch,
	})
	if err != nil {
		return "", err
	}

	data := map[string]interface{}{}
	if update.Superseded != "" {
		data["supersedes"] = update.Superseded
	}
	if len(update.RemoteMetadata) > 0 {
		data["remote_metadata"] = update.RemoteMetadata
	}
	return responses.BuildRecordResponse("update_image_metadata", update.Record, data), nil
}
