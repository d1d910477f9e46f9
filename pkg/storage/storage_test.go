package storage

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// 1x1 transparent PNG
const testPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	clock := &tickingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewStorage(t.TempDir(), zaptest.NewLogger(t), WithClock(clock.Now))
}

func TestSave_RoundTripByToken(t *testing.T) {
	s := newTestStorage(t)

	saved, err := s.Save(SaveInput{
		Prompt:      "a red fox",
		Model:       "sdxl",
		RemoteToken: "tok-1",
		Operation:   types.OpGenerate,
	})
	require.NoError(t, err)
	_, err = uuid.Parse(saved.ID)
	require.NoError(t, err)

	found, ok, err := s.FindByToken("tok-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a red fox", found.Prompt)
	assert.Equal(t, "sdxl", found.Model)
	assert.Equal(t, "tok-1", found.RemoteToken)

	_, ok, err = s.FindByToken("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSave_WritesBinaryWithOwnerOnlyPermissions(t *testing.T) {
	s := newTestStorage(t)

	rec, err := s.Save(SaveInput{ImageBase64: "data:image/png;base64," + testPNG, Prompt: "pixel"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", rec.MimeType)
	assert.Equal(t, rec.ID+".png", rec.Filename)

	for _, name := range []string{rec.Filename, recordsFile} {
		info, err := os.Stat(filepath.Join(s.RootPath(), name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}

	b64, err := s.ReadImageBase64(rec)
	require.NoError(t, err)
	want, _ := base64.StdEncoding.DecodeString(testPNG)
	got, _ := base64.StdEncoding.DecodeString(b64)
	assert.Equal(t, want, got)
}

func TestSave_RejectsOversizedAndInvalid(t *testing.T) {
	s := NewStorage(t.TempDir(), nil, WithMaxImageBytes(10))

	_, err := s.Save(SaveInput{ImageBase64: testPNG})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInvalidRequest))

	_, err = s.Save(SaveInput{ImageBase64: "!!not base64!!"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindInvalidRequest))
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Get("abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestReadImageBase64_NoBinary(t *testing.T) {
	s := newTestStorage(t)
	rec, err := s.Save(SaveInput{RemoteToken: "tok"})
	require.NoError(t, err)

	_, err = s.ReadImageBase64(rec)
	assert.ErrorIs(t, err, types.ErrBinaryUnavailable)
}

func TestSupersede_ListAndCurrent(t *testing.T) {
	s := newTestStorage(t)

	first, err := s.Save(SaveInput{Prompt: "v1", RemoteToken: "tok"})
	require.NoError(t, err)
	other, err := s.Save(SaveInput{Prompt: "other"})
	require.NoError(t, err)
	second, err := s.Save(SaveInput{Prompt: "v2", RemoteToken: "tok", Supersedes: first.ID})
	require.NoError(t, err)

	list, total, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, other.ID, list[1].ID)

	all, total, err := s.List(ListOptions{IncludeSuperseded: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	cur, err := s.Current(first.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, cur.ID)

	byToken, ok, err := s.FindByToken("tok")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", byToken.Prompt)

	// The old record stays readable.
	old, err := s.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", old.Prompt)
}

func TestList_Paging(t *testing.T) {
	s := newTestStorage(t)
	for i := 0; i < 5; i++ {
		_, err := s.Save(SaveInput{Prompt: "p"})
		require.NoError(t, err)
	}

	page, total, err := s.List(ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	page, _, err = s.List(ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSearch(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Save(SaveInput{Prompt: "a castle at dusk", Model: "sdxl"})
	require.NoError(t, err)
	tagged, err := s.Save(SaveInput{Prompt: "portrait", Metadata: map[string]interface{}{
		"tags":    []interface{}{"castle"},
		"caption": "a stone castle on a hill",
	}})
	require.NoError(t, err)
	_, err = s.Save(SaveInput{Prompt: "ocean"})
	require.NoError(t, err)

	hits, err := s.Search("castle", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, tagged.ID, hits[0].Record.ID)

	_, err = s.Search("   ", 10)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestReadRecords_CorruptFileIsAnError(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.RootPath(), recordsFile), []byte("{"), 0o600))

	_, err := s.Save(SaveInput{Prompt: "x"})
	require.Error(t, err)
}

func TestSave_FailedRecordsUpdateRemovesImage(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.RootPath(), recordsFile), []byte("{"), 0o600))

	_, err := s.Save(SaveInput{ImageBase64: testPNG, Prompt: "orphan"})
	require.Error(t, err)

	entries, err := os.ReadDir(s.RootPath())
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, recordsFile, e.Name(), "unexpected file left behind")
	}
}

func TestSave_ConcurrentWritesAreSerialized(t *testing.T) {
	s := newTestStorage(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(SaveInput{Prompt: "concurrent"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, total, err := s.List(ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 20, total)
}

func TestNormalizeBase64(t *testing.T) {
	payload, mime, err := NormalizeBase64("data:image/webp;base64," + testPNG)
	require.NoError(t, err)
	assert.Equal(t, testPNG, payload)
	assert.Equal(t, "image/webp", mime)

	payload, mime, err = NormalizeBase64(" " + testPNG[:20] + "\n" + testPNG[20:])
	require.NoError(t, err)
	assert.Equal(t, testPNG, payload)
	assert.Empty(t, mime)

	_, _, err = NormalizeBase64("data:image/png,notbase64")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestResourceURI(t *testing.T) {
	id := uuid.NewString()
	uri := ResourceURI(id)
	assert.Equal(t, "image://remote-image-ai/image/"+id, uri)

	got, ok := ParseResourceURI(uri)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	got, ok = ParseResourceURI("abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	_, ok = ParseResourceURI("image://elsewhere/image/" + id)
	assert.False(t, ok)
	_, ok = ParseResourceURI("")
	assert.False(t, ok)
}

func TestResourceURI_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.StringMatching(`[a-f0-9-]{1,36}`).Draw(t, "id")
		got, ok := ParseResourceURI(ResourceURI(id))
		if !ok || got != id {
			t.Fatalf("round trip of %q gave %q (ok=%v)", id, got, ok)
		}
	})
}
