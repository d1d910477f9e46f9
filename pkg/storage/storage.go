package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

const (
	recordsFile = "records.json"
	dirPerm     = 0o700
	filePerm    = 0o600
)

// Storage is the local record store: one JSON array of records plus one
// binary file per cached image, all under rootPath.
//
// Every save reads the whole array, appends and writes it back. The mutex
// serializes that within a process; two processes sharing a root can still
// lose each other's writes.
type Storage struct {
	rootPath string
	maxBytes int
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Storage
type Option func(*Storage)

// WithMaxImageBytes bounds the decoded size of cached images
func WithMaxImageBytes(n int) Option {
	return func(s *Storage) { s.maxBytes = n }
}

// WithClock overrides time.Now for CreatedAt stamps
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// NewStorage creates a new storage instance
func NewStorage(rootPath string, logger *zap.Logger, opts ...Option) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Storage{
		rootPath: rootPath,
		maxBytes: 20 * 1024 * 1024,
		logger:   logger.With(zap.String("component", "storage")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RootPath returns the directory holding records and image files
func (s *Storage) RootPath() string {
	return s.rootPath
}

// SaveInput describes a record to append. ImageBase64 is optional; when
// present the bytes are written next to the records file.
type SaveInput struct {
	ImageBase64  string
	MimeType     string
	FilenameHint string
	Prompt       string
	Model        string
	RemoteToken  string
	DownloadURL  string
	Operation    string
	Supersedes   string
	Metadata     map[string]interface{}
}

// Save appends a new record and returns it.
func (s *Storage) Save(in SaveInput) (*types.LocalRecord, error) {
	rec := &types.LocalRecord{
		ID:          uuid.NewString(),
		Prompt:      in.Prompt,
		Model:       in.Model,
		CreatedAt:   s.now().UTC(),
		RemoteToken: in.RemoteToken,
		Metadata:    in.Metadata,
		DownloadURL: in.DownloadURL,
		MimeType:    in.MimeType,
		Operation:   in.Operation,
		Supersedes:  in.Supersedes,
	}

	if in.ImageBase64 != "" {
		filename, mimeType, err := s.writeImage(rec.ID, in.ImageBase64, in.MimeType, in.FilenameHint)
		if err != nil {
			return nil, err
		}
		rec.Filename = filename
		rec.MimeType = mimeType
	}
	if rec.MimeType == "" {
		rec.MimeType = defaultMimeType
	}

	saved := false
	if rec.Filename != "" {
		// No orphaned image files when the records update fails.
		defer func() {
			if !saved {
				s.removeImage(rec.Filename)
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readRecords()
	if err != nil {
		return nil, err
	}
	records = append(records, *rec)
	if err := s.writeRecords(records); err != nil {
		return nil, err
	}
	saved = true

	s.logger.Debug("record saved",
		zap.String("id", rec.ID),
		zap.String("operation", rec.Operation),
		zap.Bool("has_binary", rec.HasBinary()),
		zap.Bool("has_token", rec.RemoteToken != ""))
	return rec, nil
}

// Get returns the record with the given id, or a NotFound error.
func (s *Storage) Get(id string) (*types.LocalRecord, error) {
	records, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			rec := records[i]
			return &rec, nil
		}
	}
	return nil, types.NotFound("no local record with id %q", id)
}

// FindByToken returns the most recently written record for token.
// The second return value is false when no record matches.
func (s *Storage) FindByToken(token string) (*types.LocalRecord, bool, error) {
	if token == "" {
		return nil, false, nil
	}
	records, err := s.snapshot()
	if err != nil {
		return nil, false, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].RemoteToken == token {
			rec := records[i]
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

// Current follows the supersede chain from id to the newest record.
func (s *Storage) Current(id string) (*types.LocalRecord, error) {
	records, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	successor := make(map[string]int, len(records))
	index := -1
	for i := range records {
		if records[i].Supersedes != "" {
			successor[records[i].Supersedes] = i
		}
		if records[i].ID == id {
			index = i
		}
	}
	if index < 0 {
		return nil, types.NotFound("no local record with id %q", id)
	}
	for hops := 0; hops < len(records); hops++ {
		next, ok := successor[records[index].ID]
		if !ok {
			break
		}
		index = next
	}
	rec := records[index]
	return &rec, nil
}

// ListOptions controls List
type ListOptions struct {
	Limit             int
	Offset            int
	IncludeSuperseded bool
}

// List returns records newest first. Superseded records are hidden unless
// asked for. The second return value is the total before paging.
func (s *Storage) List(opts ListOptions) ([]types.LocalRecord, int, error) {
	records, err := s.snapshot()
	if err != nil {
		return nil, 0, err
	}
	if !opts.IncludeSuperseded {
		records = currentOnly(records)
	}
	sortNewestFirst(records)

	total := len(records)
	if opts.Offset > 0 {
		if opts.Offset >= len(records) {
			return []types.LocalRecord{}, total, nil
		}
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records, total, nil
}

// SearchHit is one result of Search
type SearchHit struct {
	Record types.LocalRecord
	Score  int
}

// Search ranks current records by how many query terms appear in the prompt,
// caption, tags, model and operation.
func (s *Storage) Search(query string, limit int) ([]SearchHit, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, types.InvalidRequest("search query must not be empty")
	}
	records, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	var hits []SearchHit
	for _, rec := range currentOnly(records) {
		if score := scoreRecord(rec, terms); score > 0 {
			hits = append(hits, SearchHit{Record: rec, Score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Record.CreatedAt.After(hits[j].Record.CreatedAt)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func scoreRecord(rec types.LocalRecord, terms []string) int {
	prompt := strings.ToLower(rec.Prompt)
	caption := strings.ToLower(metadataString(rec.Metadata, "caption"))
	model := strings.ToLower(rec.Model)
	op := strings.ToLower(rec.Operation)
	tags := metadataStrings(rec.Metadata, "tags")

	score := 0
	for _, term := range terms {
		if strings.Contains(prompt, term) {
			score += 2
		}
		if strings.Contains(caption, term) {
			score += 2
		}
		for _, tag := range tags {
			if strings.EqualFold(tag, term) {
				score += 3
				break
			}
		}
		if strings.Contains(model, term) || strings.Contains(op, term) {
			score++
		}
	}
	return score
}

func (s *Storage) snapshot() ([]types.LocalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecords()
}

func (s *Storage) readRecords() ([]types.LocalRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.rootPath, recordsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.LocalRecord{}, nil
		}
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []types.LocalRecord{}, nil
	}
	var records []types.LocalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", recordsFile, err)
	}
	return records, nil
}

func (s *Storage) writeRecords(records []types.LocalRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	return s.writeFileAtomic(recordsFile, data)
}

func (s *Storage) writeFileAtomic(name string, data []byte) error {
	if err := os.MkdirAll(s.rootPath, dirPerm); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.rootPath, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.rootPath, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func currentOnly(records []types.LocalRecord) []types.LocalRecord {
	superseded := make(map[string]bool)
	for _, rec := range records {
		if rec.Supersedes != "" {
			superseded[rec.Supersedes] = true
		}
	}
	out := make([]types.LocalRecord, 0, len(records))
	for _, rec := range records {
		if !superseded[rec.ID] {
			out = append(out, rec)
		}
	}
	return out
}

func sortNewestFirst(records []types.LocalRecord) {
	// Stable on append order so equal timestamps keep the later write first.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

func metadataString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func metadataStrings(m map[string]interface{}, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(v, ",")
	}
	return nil
}
