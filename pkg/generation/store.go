package generation

import (
	"context"
	"net/url"
	"strings"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// StoreURLParams contains parameters for storing an image found on the web
type StoreURLParams struct {
	URL      string
	Prompt   string
	Tags     []string
	Filename string
}

// ImportParams contains parameters for importing inline image bytes
type ImportParams struct {
	ImageBase64 string
	Prompt      string
	Tags        []string
	Metadata    map[string]interface{}
	Filename    string
}

// StoreFromURL has the image service fetch url and records the result.
// The bytes are cached locally when the service can return them.
func (g *Generator) StoreFromURL(ctx context.Context, params StoreURLParams) (*ImageResult, error) {
	raw := strings.TrimSpace(params.URL)
	u, err := url.Parse(raw)
	if raw == "" || err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, types.InvalidRequest("url must be an absolute http or https URL")
	}

	res, err := g.client.StoreFromURL(ctx, types.StoreURLRequest{
		URL:    raw,
		Source: types.OpStoreURL,
		Prompt: params.Prompt,
		Tags:   params.Tags,
	})
	if err != nil {
		return nil, err
	}

	metadata := copyMap(res.Metadata)
	metadata["source_url"] = raw
	if len(params.Tags) > 0 {
		metadata["tags"] = params.Tags
	}
	downloadURL := res.DownloadURL
	if downloadURL == "" {
		downloadURL = raw
	}
	return g.persist(ctx, persistInput{
		Operation:   types.OpStoreURL,
		Prompt:      params.Prompt,
		Filename:    params.Filename,
		Token:       res.Token,
		ImageBase64: res.ImageBase64,
		DownloadURL: downloadURL,
		MimeType:    res.MimeType,
		Metadata:    metadata,
	})
}

// ImportImage uploads inline bytes to the image service and records them
func (g *Generator) ImportImage(ctx context.Context, params ImportParams) (*ImageResult, error) {
	if strings.TrimSpace(params.ImageBase64) == "" {
		return nil, types.InvalidRequest("image_base64 is required")
	}

	resolved, err := g.resolver.Resolve(ctx, types.ImageReference{InlineBytes: params.ImageBase64}, types.ResolveOptions{
		UploadIfNeeded: true,
		UploadSource:   types.OpImport,
		PromptHint:     params.Prompt,
	})
	if err != nil {
		return nil, err
	}

	metadata := copyMap(params.Metadata)
	if len(params.Tags) > 0 {
		metadata["tags"] = params.Tags
	}
	return g.persist(ctx, persistInput{
		Operation:   types.OpImport,
		Prompt:      params.Prompt,
		Filename:    params.Filename,
		Token:       resolved.RemoteToken,
		ImageBase64: resolved.RawBytes,
		Metadata:    metadata,
	})
}
