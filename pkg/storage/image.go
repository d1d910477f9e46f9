package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

const defaultMimeType = "image/png"

// NormalizeBase64 strips an optional data URI prefix and whitespace, checks
// the payload decodes, and returns it with the MIME type from the prefix.
func NormalizeBase64(raw string) (payload string, mimeType string, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", types.InvalidRequest("image bytes are empty")
	}

	if strings.HasPrefix(trimmed, "data:") {
		comma := strings.Index(trimmed, ",")
		if comma == -1 {
			return "", "", types.InvalidRequest("invalid data URI format")
		}
		header := trimmed[len("data:"):comma]
		if !strings.HasSuffix(header, ";base64") {
			return "", "", types.InvalidRequest("data URI must be base64 encoded")
		}
		mimeType = strings.TrimSuffix(header, ";base64")
		trimmed = trimmed[comma+1:]
	}

	trimmed = strings.Join(strings.Fields(trimmed), "")
	if _, err := decodeBase64(trimmed); err != nil {
		return "", "", types.InvalidRequest("image bytes are not valid base64: %v", err)
	}
	return trimmed, mimeType, nil
}

// DataURL formats base64 bytes as a data URL
func DataURL(mimeType, payload string) string {
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, payload)
}

// SummarizeBase64 describes a payload for logs without including it.
func SummarizeBase64(payload string) string {
	const previewLen = 16
	if payload == "" {
		return "(empty)"
	}
	prefix := payload
	if len(prefix) > previewLen {
		prefix = prefix[:previewLen] + "..."
	}
	return fmt.Sprintf("base64(len=%d,prefix=%q)", len(payload), prefix)
}

// ImagePath returns the full path of the record's cached file, or "".
func (s *Storage) ImagePath(rec *types.LocalRecord) string {
	if !rec.HasBinary() {
		return ""
	}
	return filepath.Join(s.rootPath, filepath.Base(rec.Filename))
}

// ReadImageBase64 returns the record's cached bytes as base64.
func (s *Storage) ReadImageBase64(rec *types.LocalRecord) (string, error) {
	if !rec.HasBinary() {
		return "", types.BinaryUnavailable("record %s has no cached image", rec.ID)
	}
	data, err := os.ReadFile(s.ImagePath(rec))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", types.BinaryUnavailable("cached image for record %s is missing", rec.ID)
		}
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *Storage) removeImage(filename string) {
	path := filepath.Join(s.rootPath, filepath.Base(filename))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove image file", zap.String("file", filename), zap.Error(err))
	}
}

func (s *Storage) writeImage(id, b64, mimeType, hint string) (string, string, error) {
	payload, uriMime, err := NormalizeBase64(b64)
	if err != nil {
		return "", "", err
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return "", "", types.InvalidRequest("image bytes are not valid base64: %v", err)
	}
	if s.maxBytes > 0 && len(data) > s.maxBytes {
		return "", "", types.InvalidRequest("image is %d bytes, limit is %d", len(data), s.maxBytes)
	}

	if mimeType == "" {
		mimeType = uriMime
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = sniffMimeType(data)
	}

	filename := id + extensionFor(mimeType, hint)
	if err := s.writeFileAtomic(filename, data); err != nil {
		return "", "", fmt.Errorf("failed to save image: %w", err)
	}
	return filename, mimeType, nil
}

func decodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	// Some encoders drop the padding.
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func sniffMimeType(data []byte) string {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	return defaultMimeType
}

func extensionFor(mimeType, hint string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/png":
		return ".png"
	}
	if ext := strings.ToLower(filepath.Ext(hint)); ext != "" {
		return ext
	}
	return ".png"
}

// MimeTypeFromExtension maps a filename extension to a MIME type
func MimeTypeFromExtension(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	}
	return defaultMimeType
}
