// Package resolver normalizes the three ways a caller can point at an image
// (a local resource handle, a remote token or inline base64) into one
// ResolvedReference that operations can use.
package resolver

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/storage"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Variant names used in logs and metrics
const (
	VariantHandle = "resource_handle"
	VariantToken  = "remote_token"
	VariantInline = "inline_bytes"
)

// RecordReader is the read side of the local record store
type RecordReader interface {
	Get(id string) (*types.LocalRecord, error)
	FindByToken(token string) (*types.LocalRecord, bool, error)
	ReadImageBase64(rec *types.LocalRecord) (string, error)
}

// RemoteImages is the part of the image client the resolver calls
type RemoteImages interface {
	StoreFromBytes(ctx context.Context, req types.StoreBytesRequest) (*types.ImageResult, error)
	FetchByToken(ctx context.Context, token string, includeBase64 bool) (*types.ImageResult, error)
}

// Resolver turns ImageReferences into ResolvedReferences. It reads the
// record store but never writes it.
type Resolver struct {
	records RecordReader
	remote  RemoteImages
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

// NewResolver creates a resolver
func NewResolver(records RecordReader, remote RemoteImages, logger *zap.Logger, m *metrics.Collector) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		records: records,
		remote:  remote,
		logger:  logger.With(zap.String("component", "resolver")),
		metrics: m,
		tracer:  otel.Tracer("github.com/gomcpgo/remote_image_ai/pkg/resolver"),
	}
}

// Resolve checks the reference fields in order (handle, token, inline bytes)
// and uses the first one set. When no token is known and one is needed it
// uploads the bytes once, provided opts.UploadIfNeeded allows it.
//
// A token is needed when opts.RequireToken is set or uploading is permitted.
func (r *Resolver) Resolve(ctx context.Context, ref types.ImageReference, opts types.ResolveOptions) (*types.ResolvedReference, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.resolve")
	defer span.End()

	resolved, variant, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("resolver.variant", variant))

	if resolved.RemoteToken == "" && (opts.RequireToken || opts.UploadIfNeeded) {
		if !opts.UploadIfNeeded {
			return nil, types.InvalidRequest("this operation needs a remote token; the %s has none and uploading was not requested", strings.ReplaceAll(variant, "_", " "))
		}
		if err := r.upload(ctx, resolved, opts); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Bool("resolver.uploaded", resolved.Uploaded))
	r.metrics.RecordResolution(variant, resolved.Uploaded)
	r.logger.Debug("image reference resolved",
		zap.String("variant", variant),
		zap.Bool("has_token", resolved.RemoteToken != ""),
		zap.Bool("has_record", resolved.Record != nil),
		zap.Bool("uploaded", resolved.Uploaded))
	return resolved, nil
}

func (r *Resolver) lookup(ref types.ImageReference) (*types.ResolvedReference, string, error) {
	switch {
	case strings.TrimSpace(ref.ResourceHandle) != "":
		id, ok := storage.ParseResourceURI(ref.ResourceHandle)
		if !ok {
			return nil, VariantHandle, types.InvalidRequest("resource reference %q is not an image of this server", ref.ResourceHandle)
		}
		rec, err := r.records.Get(id)
		if err != nil {
			return nil, VariantHandle, err
		}
		return &types.ResolvedReference{RemoteToken: rec.RemoteToken, Record: rec}, VariantHandle, nil

	case strings.TrimSpace(ref.RemoteToken) != "":
		token := strings.TrimSpace(ref.RemoteToken)
		resolved := &types.ResolvedReference{RemoteToken: token}
		rec, found, err := r.records.FindByToken(token)
		if err != nil {
			r.logger.Warn("local lookup by token failed", zap.Error(err))
		} else if found {
			resolved.Record = rec
		}
		return resolved, VariantToken, nil

	case strings.TrimSpace(ref.InlineBytes) != "":
		payload, _, err := storage.NormalizeBase64(ref.InlineBytes)
		if err != nil {
			return nil, VariantInline, err
		}
		return &types.ResolvedReference{RawBytes: payload}, VariantInline, nil
	}
	return nil, "", types.InvalidRequest("provide at least one of resource reference, token, or inline bytes")
}

func (r *Resolver) upload(ctx context.Context, resolved *types.ResolvedReference, opts types.ResolveOptions) error {
	payload := resolved.RawBytes
	if payload == "" && resolved.Record != nil {
		cached, err := r.records.ReadImageBase64(resolved.Record)
		if err != nil {
			return types.InvalidRequest("record %s has no remote token and no readable cached image", resolved.Record.ID)
		}
		payload = cached
	}
	if payload == "" {
		return types.InvalidRequest("no image bytes available to upload")
	}

	prompt := opts.PromptHint
	if prompt == "" && resolved.Record != nil {
		prompt = resolved.Record.Prompt
	}

	res, err := r.remote.StoreFromBytes(ctx, types.StoreBytesRequest{
		ImageBase64: payload,
		Source:      opts.UploadSource,
		Prompt:      prompt,
		DerivedFrom: opts.DerivedFrom,
	})
	if err != nil {
		return types.WithOp("upload", err)
	}
	if res.Token == "" {
		return &types.Error{Kind: types.KindRemoteService, Op: "upload", Message: "image service accepted the upload but returned no token"}
	}

	r.logger.Info("uploaded image for remote use",
		zap.String("source", opts.UploadSource),
		zap.String("bytes", storage.SummarizeBase64(payload)))
	resolved.RemoteToken = res.Token
	resolved.RawBytes = payload
	resolved.Uploaded = true
	return nil
}

// Materialize returns the image bytes of a resolved reference, trying the
// bytes already in hand, then the local cache, then the remote service.
// Failures are logged and reported as ok=false. A hit is kept on resolved.
func (r *Resolver) Materialize(ctx context.Context, resolved *types.ResolvedReference) (string, bool) {
	if resolved == nil {
		return "", false
	}
	if resolved.RawBytes != "" {
		return resolved.RawBytes, true
	}

	if resolved.Record.HasBinary() {
		payload, err := r.records.ReadImageBase64(resolved.Record)
		if err == nil {
			resolved.RawBytes = payload
			return payload, true
		}
		r.logger.Warn("cached image unreadable", zap.String("record_id", resolved.Record.ID), zap.Error(err))
	}

	if resolved.RemoteToken == "" {
		return "", false
	}
	res, err := r.remote.FetchByToken(ctx, resolved.RemoteToken, true)
	if err != nil {
		r.logger.Warn("remote fetch by token failed, binary unavailable", zap.Error(err))
		return "", false
	}
	if res.ImageBase64 == "" {
		r.logger.Warn("remote fetch by token returned no bytes")
		return "", false
	}
	payload, _, err := storage.NormalizeBase64(res.ImageBase64)
	if err != nil {
		r.logger.Warn("remote fetch by token returned invalid bytes", zap.Error(err))
		return "", false
	}
	resolved.RawBytes = payload
	return payload, true
}

// RequireBytes is Materialize for callers that cannot continue without bytes.
func (r *Resolver) RequireBytes(ctx context.Context, resolved *types.ResolvedReference) (string, error) {
	if payload, ok := r.Materialize(ctx, resolved); ok {
		return payload, nil
	}
	subject := "image"
	switch {
	case resolved != nil && resolved.Record != nil:
		subject = "record " + resolved.Record.ID
	case resolved != nil && resolved.RemoteToken != "":
		subject = "token " + resolved.RemoteToken
	}
	return "", types.BinaryUnavailable("no image bytes could be obtained for %s", subject)
}
