package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/generation"
	"github.com/gomcpgo/remote_image_ai/pkg/responses"
	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

const (
	defaultListLimit   = 20
	maxListLimit       = 100
	defaultSearchLimit = 10
)

// handleStoreFromURL handles the store_image_from_url tool
func (h *ImageHandler) handleStoreFromURL(ctx context.Context, args map[string]interface{}) (string, error) {
	url, err := requiredString(args, "url")
	if err != nil {
		return "", err
	}
	result, err := h.generator.StoreFromURL(ctx, generation.StoreURLParams{
		URL:      url,
		Prompt:   stringArg(args, "prompt"),
		Tags:     stringSlice(args, "tags"),
		Filename: stringArg(args, "filename"),
	})
	if err != nil {
		return "", err
	}
	return h.imageResponse("store_image_from_url", result), nil
}

// handleImportImage handles the import_image tool
func (h *ImageHandler) handleImportImage(ctx context.Context, args map[string]interface{}) (string, error) {
	metadata, err := objectArg(args, "metadata")
	if err != nil {
		return "", err
	}
	result, err := h.generator.ImportImage(ctx, generation.ImportParams{
		ImageBase64: stringArg(args, "image_base64"),
		Prompt:      stringArg(args, "prompt"),
		Tags:        stringSlice(args, "tags"),
		Metadata:    metadata,
		Filename:    stringArg(args, "filename"),
	})
	if err != nil {
		return "", err
	}
	return h.imageResponse("import_image", result), nil
}

// handleGetImage handles the get_image tool. Inline bytes are not accepted:
// there is nothing to look up for them.
func (h *ImageHandler) handleGetImage(ctx context.Context, args map[string]interface{}) (string, error) {
	ref := imageRef(args)
	ref.InlineBytes = ""
	if ref.IsEmpty() {
		return "", types.InvalidRequest("provide image_id, resource_uri or token")
	}
	resolved, err := h.resolver.Resolve(ctx, ref, types.ResolveOptions{})
	if err != nil {
		return "", err
	}

	data := map[string]interface{}{}
	if resolved.RemoteToken != "" {
		data["token"] = resolved.RemoteToken
	}
	if resolved.Record != nil {
		current, err := h.storage.Current(resolved.Record.ID)
		if err != nil {
			return "", err
		}
		if current.ID != resolved.Record.ID {
			data["superseded_by"] = current.ID
		}
		data["record"] = responses.RecordView(resolved.Record)
		data["resource_uri"] = storage.ResourceURI(resolved.Record.ID)
	} else {
		// Token unknown locally; report what the service has.
		remote, err := h.client.FetchByToken(ctx, resolved.RemoteToken, false)
		if err != nil {
			return "", err
		}
		data["remote"] = map[string]interface{}{
			"metadata":     remote.Metadata,
			"download_url": remote.DownloadURL,
			"mime_type":    remote.MimeType,
		}
	}

	if boolArg(args, "include_image") {
		payload, err := h.resolver.RequireBytes(ctx, resolved)
		if err != nil {
			return "", err
		}
		mimeType := "image/png"
		if resolved.Record != nil && resolved.Record.MimeType != "" {
			mimeType = resolved.Record.MimeType
		}
		data["image_base64"] = payload
		data["mime_type"] = mimeType
	}
	return responses.BuildSuccessResponse("get_image", data), nil
}

// handleListImages handles the list_images tool
func (h *ImageHandler) handleListImages(ctx context.Context, args map[string]interface{}) (string, error) {
	limit, err := optionalInt(args, "limit")
	if err != nil {
		return "", err
	}
	offset, err := optionalInt(args, "offset")
	if err != nil {
		return "", err
	}
	opts := storage.ListOptions{Limit: defaultListLimit, IncludeSuperseded: boolArg(args, "include_superseded")}
	if limit != nil {
		if err := types.CheckInt("limit", limit, 1, maxListLimit); err != nil {
			return "", err
		}
		opts.Limit = *limit
	}
	if offset != nil {
		if *offset < 0 {
			return "", types.InvalidRequest("offset must not be negative")
		}
		opts.Offset = *offset
	}

	records, total, err := h.storage.List(opts)
	if err != nil {
		return "", err
	}
	views := make([]map[string]interface{}, 0, len(records))
	for i := range records {
		views = append(views, responses.RecordView(&records[i]))
	}
	return responses.BuildSuccessResponse("list_images", map[string]interface{}{
		"images": views,
		"count":  len(views),
		"total":  total,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	}), nil
}

// handleSearchImages handles the search_images tool
func (h *ImageHandler) handleSearchImages(ctx context.Context, args map[string]interface{}) (string, error) {
	query, err := requiredString(args, "query")
	if err != nil {
		return "", err
	}
	limit, err := optionalInt(args, "limit")
	if err != nil {
		return "", err
	}
	k := defaultSearchLimit
	if limit != nil {
		if err := types.CheckInt("limit", limit, 1, maxListLimit); err != nil {
			return "", err
		}
		k = *limit
	}

	hits, err := h.storage.Search(query, k)
	if err != nil {
		return "", err
	}
	results := make([]map[string]interface{}, 0, len(hits))
	for i := range hits {
		results = append(results, map[string]interface{}{
			"score":  hits[i].Score,
			"record": responses.RecordView(&hits[i].Record),
		})
	}
	return responses.BuildSuccessResponse("search_images", map[string]interface{}{
		"query":   query,
		"results": results,
		"count":   len(results),
	}), nil
}

// handleListModels handles the list_models tool
func (h *ImageHandler) handleListModels(ctx context.Context, args map[string]interface{}) (string, error) {
	if boolArg(args, "refresh") {
		if err := h.catalog.Invalidate(ctx); err != nil {
			h.logger.Warn("failed to invalidate model catalog", zap.Error(err))
		}
	}
	list, err := h.catalog.Models(ctx)
	if err != nil {
		return "", err
	}
	names, err := h.catalog.ModelNames(ctx)
	if err != nil {
		return "", err
	}
	return responses.BuildSuccessResponse("list_models", map[string]interface{}{
		"models": list.Models,
		"names":  names,
		"count":  len(names),
	}), nil
}

// handleGetModel handles the get_model tool
func (h *ImageHandler) handleGetModel(ctx context.Context, args map[string]interface{}) (string, error) {
	name, err := requiredString(args, "name")
	if err != nil {
		return "", err
	}
	detail, err := h.catalog.Model(ctx, name)
	if err != nil {
		return "", err
	}
	return responses.BuildSuccessResponse("get_model", map[string]interface{}{
		"name":   detail.Name,
		"config": detail.Config,
	}), nil
}

// ReadImage returns the cached bytes behind a resource URI
func (h *ImageHandler) ReadImage(uri string) (payload string, mimeType string, err error) {
	id, ok := storage.ParseResourceURI(uri)
	if !ok {
		return "", "", types.InvalidRequest("resource %q is not an image of this server", uri)
	}
	rec, err := h.storage.Get(id)
	if err != nil {
		return "", "", err
	}
	payload, err = h.storage.ReadImageBase64(rec)
	if err != nil {
		return "", "", err
	}
	return payload, rec.MimeType, nil
}
