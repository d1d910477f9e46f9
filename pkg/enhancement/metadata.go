package enhancement

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// UpdateMetadata patches the remote metadata of an image and appends a
// local record carrying the merged metadata. The previous record, if any,
// is superseded rather than edited.
func (e *Enhancer) UpdateMetadata(ctx context.Context, params MetadataParams) (*MetadataUpdate, error) {
	if len(params.Patch) == 0 {
		return nil, types.InvalidRequest("metadata patch must not be empty")
	}
	source, err := e.resolver.Resolve(ctx, params.Image, types.ResolveOptions{RequireToken: true})
	if err != nil {
		return nil, err
	}
	return e.applyMetadata(ctx, source, params.Patch, types.OpUpdateMeta)
}

func (e *Enhancer) applyMetadata(ctx context.Context, source *types.ResolvedReference, patch map[string]interface{}, operation string) (*MetadataUpdate, error) {
	remote, err := e.client.PatchMetadata(ctx, source.RemoteToken, patch)
	if err != nil {
		return nil, err
	}

	base, err := e.currentRecord(source)
	if err != nil {
		return nil, err
	}

	var current map[string]interface{}
	in := storage.SaveInput{
		RemoteToken: source.RemoteToken,
		Operation:   operation,
		ImageBase64: source.RawBytes,
	}
	if base != nil {
		current = base.Metadata
		in.Prompt = base.Prompt
		in.Model = base.Model
		in.DownloadURL = base.DownloadURL
		in.MimeType = base.MimeType
		in.FilenameHint = base.Filename
		in.Supersedes = base.ID
		if in.ImageBase64 == "" && base.HasBinary() {
			if payload, err := e.storage.ReadImageBase64(base); err == nil {
				in.ImageBase64 = payload
			} else {
				e.logger.Warn("cached image unreadable, superseding record without binary",
					zap.String("record_id", base.ID), zap.Error(err))
			}
		}
	}

	merged, err := mergeMetadata(current, patch)
	if err != nil {
		return nil, err
	}
	in.Metadata = merged

	rec, err := e.storage.Save(in)
	if err != nil {
		return nil, err
	}

	update := &MetadataUpdate{Record: rec, RemoteMetadata: remote.Metadata}
	if base != nil {
		update.Superseded = base.ID
	}
	e.logger.Info("metadata updated",
		zap.String("record_id", rec.ID),
		zap.String("supersedes", update.Superseded),
		zap.Int("keys", len(patch)))
	return update, nil
}

// currentRecord returns the newest record in the supersede chain of the
// resolved record, or the newest record for its token.
func (e *Enhancer) currentRecord(source *types.ResolvedReference) (*types.LocalRecord, error) {
	if source.Record != nil {
		return e.storage.Current(source.Record.ID)
	}
	rec, found, err := e.storage.FindByToken(source.RemoteToken)
	if err != nil || !found {
		return nil, err
	}
	return e.storage.Current(rec.ID)
}

// mergeMetadata applies patch to current with JSON merge patch semantics
func mergeMetadata(current, patch map[string]interface{}) (map[string]interface{}, error) {
	doc := []byte("{}")
	if len(current) > 0 {
		var err error
		if doc, err = json.Marshal(current); err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
	}
	patchData, err := json.Marshal(patch)
	if err != nil {
		return nil, types.InvalidRequest("metadata patch is not valid JSON: %v", err)
	}

	out, err := jsonpatch.MergePatch(doc, patchData)
	if err != nil {
		return nil, types.InvalidRequest("metadata patch could not be applied: %v", err)
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(out, &merged); err != nil {
		return nil, fmt.Errorf("failed to decode merged metadata: %w", err)
	}
	return merged, nil
}
