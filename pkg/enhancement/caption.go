package enhancement

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Caption describes an image. The remote token is sent when known, the
// bytes otherwise. With SaveCaption the caption is also stored.
func (e *Enhancer) Caption(ctx context.Context, params CaptionParams) (*CaptionResult, error) {
	startTime := time.Now()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Saving needs a token to patch, so only then may bytes be uploaded.
	source, err := e.resolver.Resolve(ctx, params.Image, types.ResolveOptions{
		RequireToken:   params.SaveCaption,
		UploadIfNeeded: params.SaveCaption,
		UploadSource:   types.OpCaption,
	})
	if err != nil {
		return nil, err
	}

	req := types.CaptionRequest{
		Token:              source.RemoteToken,
		Prompt:             strings.TrimSpace(params.Prompt),
		MaxNewTokens:       params.MaxNewTokens,
		Temperature:        params.Temperature,
		TopP:               params.TopP,
		UseNucleusSampling: params.UseNucleusSampling,
		RepetitionPenalty:  params.RepetitionPenalty,
		ModelID:            params.ModelID,
		Extra:              params.Extra,
	}
	if req.Token == "" {
		payload, err := e.resolver.RequireBytes(ctx, source)
		if err != nil {
			return nil, err
		}
		req.ImageBase64 = payload
	}

	res, err := e.client.Caption(ctx, req)
	if err != nil {
		return nil, err
	}
	result := &CaptionResult{CaptionResult: *res, SourceToken: source.RemoteToken}

	if params.SaveCaption {
		patch := map[string]interface{}{"caption": res.Caption}
		if res.ModelID != "" {
			patch["caption_model"] = res.ModelID
		}
		update, err := e.applyMetadata(ctx, source, patch, types.OpCaption)
		if err != nil {
			return nil, err
		}
		result.Record = update.Record
	}

	e.logger.Info("image captioned",
		zap.String("model_id", res.ModelID),
		zap.Bool("by_token", req.Token != ""),
		zap.Bool("saved", result.Record != nil))
	result.Duration = time.Since(startTime)
	return result, nil
}
