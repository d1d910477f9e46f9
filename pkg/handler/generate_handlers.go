package handler

import (
	"context"

	"github.com/gomcpgo/remote_image_ai/pkg/generation"
	"github.com/gomcpgo/remote_image_ai/pkg/responses"
)

// handleGenerateImage handles the generate_image tool
func (h *ImageHandler) handleGenerateImage(ctx context.Context, args map[string]interface{}) (string, error) {
	params := generation.GenerateParams{
		Prompt:         stringArg(args, "prompt"),
		Model:          stringArg(args, "model"),
		NegativePrompt: stringArg(args, "negative_prompt"),
		Scheduler:      stringArg(args, "scheduler"),
		Filename:       stringArg(args, "filename"),
	}
	var err error
	if params.GuidanceScale, err = optionalFloat(args, "guidance_scale"); err != nil {
		return "", err
	}
	if params.Steps, err = optionalInt(args, "steps"); err != nil {
		return "", err
	}
	if params.Width, err = optionalInt(args, "width"); err != nil {
		return "", err
	}
	if params.Height, err = optionalInt(args, "height"); err != nil {
		return "", err
	}
	if params.Seed, err = optionalInt64(args, "seed"); err != nil {
		return "", err
	}
	if params.Extra, err = objectArg(args, "extra"); err != nil {
		return "", err
	}

	result, err := h.generator.GenerateImage(ctx, params)
	if err != nil {
		return "", err
	}
	return h.imageResponse("generate_image", result), nil
}

// handleImageToImage handles the image_to_image tool
func (h *ImageHandler) handleImageToImage(ctx context.Context, args map[string]interface{}) (string, error) {
	params := generation.ImageToImageParams{
		Image:          imageRef(args),
		Prompt:         stringArg(args, "prompt"),
		NegativePrompt: stringArg(args, "negative_prompt"),
		Model:          stringArg(args, "model"),
		Filename:       stringArg(args, "filename"),
	}
	var err error
	if params.GuidanceScale, err = optionalFloat(args, "guidance_scale"); err != nil {
		return "", err
	}
	if params.Strength, err = optionalFloat(args, "strength"); err != nil {
		return "", err
	}
	if params.Steps, err = optionalInt(args, "steps"); err != nil {
		return "", err
	}
	if params.Width, err = optionalInt(args, "width"); err != nil {
		return "", err
	}
	if params.Height, err = optionalInt(args, "height"); err != nil {
		return "", err
	}
	if params.Seed, err = optionalInt64(args, "seed"); err != nil {
		return "", err
	}
	if params.PollInterval, params.Timeout, err = waitArgs(args); err != nil {
		return "", err
	}
	if params.Extra, err = objectArg(args, "extra"); err != nil {
		return "", err
	}

	result, err := h.generator.ImageToImage(ctx, params)
	if err != nil {
		return "", err
	}
	return h.imageResponse("image_to_image", result), nil
}

// handleOptimizeParameters handles the optimize_parameters tool
func (h *ImageHandler) handleOptimizeParameters(ctx context.Context, args map[string]interface{}) (string, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return "", err
	}
	res, err := h.optimizer.Optimize(ctx, query, stringArg(args, "model"))
	if err != nil {
		return "", err
	}

	data := map[string]interface{}{
		"strategy": res.Strategy,
		"prompt":   res.Prompt,
	}
	optional := map[string]interface{}{
		"negative_prompt":    res.NegativePrompt,
		"model":              res.Model,
		"suggested_model":    res.SuggestedModel,
		"reason":             res.Reason,
		"guidance_scale":     res.GuidanceScale,
		"steps":              res.Steps,
		"width":              res.Width,
		"height":             res.Height,
		"seed":               res.Seed,
		"recommended_params": res.RecommendedParams,
	}
	for k, v := range optional {
		if !isZero(v) {
			data[k] = v
		}
	}
	return responses.BuildSuccessResponse("optimize_parameters", data), nil
}

// imageResponse builds the response shared by tools that save one image
func (h *ImageHandler) imageResponse(operation string, result *generation.ImageResult) string {
	data := map[string]interface{}{
		"duration_seconds": result.Duration.Seconds(),
	}
	if len(result.UsedParams) > 0 {
		data["used_params"] = result.UsedParams
	}
	if result.JobID != "" {
		data["job_id"] = result.JobID
		data["polls"] = result.Polls
	}
	if result.Strategy != "" {
		data["strategy"] = result.Strategy
	}
	return responses.BuildRecordResponse(operation, result.Record, data)
}

func isZero(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case *float64:
		return x == nil
	case *int:
		return x == nil
	case *int64:
		return x == nil
	case map[string]interface{}:
		return len(x) == 0
	}
	return false
}
