package types

import (
	"time"
)

// Job states. Remote services report more aliases than these; see jobs.Classify.
const (
	JobPending   = "pending"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobTimedOut  = "timed_out"
)

// Operation names recorded on LocalRecord.Operation
const (
	OpGenerate     = "generate_image"
	OpImageToImage = "image_to_image"
	OpUpscale      = "upscale_image"
	OpCaption      = "caption_image"
	OpStoreURL     = "store_image_from_url"
	OpImport       = "import_image"
	OpUpdateMeta   = "update_image_metadata"
	OpContinueJob  = "continue_job"
)

// LocalRecord is one entry of the local record store. Records are never
// edited in place; an update appends a new record that supersedes the old one.
type LocalRecord struct {
	ID          string                 `json:"id"`
	Filename    string                 `json:"filename"`
	Prompt      string                 `json:"prompt"`
	Model       string                 `json:"model"`
	CreatedAt   time.Time              `json:"created_at"`
	RemoteToken string                 `json:"remote_token,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	DownloadURL string                 `json:"download_url,omitempty"`
	MimeType    string                 `json:"mime_type"`
	Operation   string                 `json:"operation,omitempty"`
	Supersedes  string                 `json:"supersedes,omitempty"`
}

// HasBinary reports whether the record points at a cached image file.
func (r *LocalRecord) HasBinary() bool {
	return r != nil && r.Filename != ""
}

// ImageReference is a caller-supplied pointer to an image. Only one field is
// expected to be set; when several are, the resolver checks them in field order.
type ImageReference struct {
	ResourceHandle string
	RemoteToken    string
	InlineBytes    string
}

// IsEmpty reports whether no variant was supplied.
func (r ImageReference) IsEmpty() bool {
	return r.ResourceHandle == "" && r.RemoteToken == "" && r.InlineBytes == ""
}

// ResolveOptions controls how an ImageReference is resolved
type ResolveOptions struct {
	// RequireToken marks operations that can only run against a remote token.
	RequireToken bool
	// UploadIfNeeded permits one upload call when no token is known yet.
	UploadIfNeeded bool
	UploadSource   string
	DerivedFrom    []string
	PromptHint     string
}

// ResolvedReference is the normalized form of an ImageReference.
type ResolvedReference struct {
	RemoteToken string
	Record      *LocalRecord
	RawBytes    string // base64, no data URI prefix
	Uploaded    bool
}

// JobHandle identifies a remote job for the duration of one polling loop.
type JobHandle struct {
	JobID     string
	CreatedAt time.Time
}

// JobOutcome is the terminal result of a polled job.
type JobOutcome struct {
	JobID       string
	Status      string
	ImageBase64 string
	RemoteToken string
	DownloadURL string
	MimeType    string
	Metadata    map[string]interface{}
	ErrorDetail string
	Polls       int

	// Raw is the body of the final poll, for jobs whose result is not an image.
	Raw []byte
}
