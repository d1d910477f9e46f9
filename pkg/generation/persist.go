package generation

import (
	"context"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

type persistInput struct {
	Operation   string
	Prompt      string
	Model       string
	Filename    string
	Token       string
	ImageBase64 string
	DownloadURL string
	MimeType    string
	Metadata    map[string]interface{}
}

// persist saves the output of a remote transformation. The output must
// carry a token; bytes are fetched by token when the response had none.
func (g *Generator) persist(ctx context.Context, in persistInput) (*ImageResult, error) {
	if in.Token == "" {
		return nil, &types.Error{
			Kind:    types.KindRemoteService,
			Message: "image service finished without returning a token for the result",
		}
	}

	imageB64 := g.bytesFor(ctx, in.ImageBase64, in.Token)
	rec, err := g.storage.Save(storage.SaveInput{
		ImageBase64:  imageB64,
		MimeType:     in.MimeType,
		FilenameHint: in.Filename,
		Prompt:       in.Prompt,
		Model:        in.Model,
		RemoteToken:  in.Token,
		DownloadURL:  in.DownloadURL,
		Operation:    in.Operation,
		Metadata:     in.Metadata,
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("image saved",
		zap.String("operation", in.Operation),
		zap.String("record_id", rec.ID),
		zap.Bool("has_binary", rec.HasBinary()))
	return &ImageResult{Record: rec, ImageBase64: imageB64}, nil
}
