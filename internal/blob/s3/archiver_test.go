package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/execsim/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, p string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[p] = b
	m.types[p] = contentType
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, p string, data io.Reader, _ int64) error {
	return m.Put(ctx, p, data, "multipart")
}

func (m *memBlobs) Get(_ context.Context, p string) (io.ReadCloser, error) {
	b, ok := m.objects[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) Exists(_ context.Context, p string) (bool, error) {
	_, ok := m.objects[p]
	return ok, nil
}

type mockWriter struct{ mock.Mock }

func (w *mockWriter) Put(ctx context.Context, p string, data io.Reader, contentType string) error {
	return w.Called(p, contentType).Error(0)
}

func (w *mockWriter) PutMultipart(ctx context.Context, p string, data io.Reader, partSize int64) error {
	return w.Called(p, partSize).Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveSession(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, "", discardLogger())

	report := domain.ExecutionReport{SessionID: "s1", TotalFills: 2}
	fills := []domain.ExecutionResult{
		{ID: "f1", OrderID: "o1", Quantity: 10, Price: 100},
		{ID: "f2", OrderID: "o1", Quantity: 5, Price: 101},
	}

	prefix, err := a.ArchiveSession(context.Background(), report, fills)
	require.NoError(t, err)
	assert.Equal(t, "sessions/s1", prefix)

	var got domain.ExecutionReport
	require.NoError(t, json.Unmarshal(blobs.objects["sessions/s1/report.json"], &got))
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 2, got.TotalFills)
	assert.Equal(t, contentTypeJSON, blobs.types["sessions/s1/report.json"])

	sc := bufio.NewScanner(bytes.NewReader(blobs.objects["sessions/s1/fills.jsonl"]))
	var ids []string
	for sc.Scan() {
		var f domain.ExecutionResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &f))
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"f1", "f2"}, ids)
	assert.Equal(t, contentTypeJSONL, blobs.types["sessions/s1/fills.jsonl"])
}

func TestLoadSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, "runs", discardLogger())

	fills := []domain.ExecutionResult{
		{ID: "f1", OrderID: "o1", Quantity: 10, Price: 100},
		{ID: "f2", OrderID: "o2", Quantity: 3, Price: 99.5},
	}
	_, err := a.ArchiveSession(ctx, domain.ExecutionReport{SessionID: "s3", TotalFills: 2}, fills)
	require.NoError(t, err)

	report, got, err := a.LoadSession(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalFills)
	require.Len(t, got, 2)
	assert.Equal(t, "o2", got[1].OrderID)
	assert.InDelta(t, 99.5, got[1].Price, 1e-9)

	_, _, err = a.LoadSession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = NewArchiver(blobs, nil, "runs", discardLogger()).LoadSession(ctx, "s3")
	assert.Error(t, err)
}

func TestUnmarshalJSONLSkipsBlankLines(t *testing.T) {
	recs, err := unmarshalJSONL[map[string]int](bytes.NewBufferString("{\"a\":1}\n\n{\"a\":2}\n"))
	require.NoError(t, err)
	assert.Equal(t, []map[string]int{{"a": 1}, {"a": 2}}, recs)

	_, err = unmarshalJSONL[map[string]int](bytes.NewBufferString("{\"a\":1}\nnot json\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, contentTypeJSON, contentTypeFor("s/report.json"))
	assert.Equal(t, contentTypeJSONL, contentTypeFor("s/fills.jsonl"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("s/blob"))
}

func TestArchiveSessionErrors(t *testing.T) {
	t.Run("empty session id", func(t *testing.T) {
		a := NewArchiver(newMemBlobs(), nil, "x", discardLogger())
		_, err := a.ArchiveSession(context.Background(), domain.ExecutionReport{}, nil)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("upload failure", func(t *testing.T) {
		w := &mockWriter{}
		boom := errors.New("boom")
		w.On("Put", "runs/s2/report.json", contentTypeJSON).Return(boom)

		a := NewArchiver(w, nil, "runs", discardLogger())
		_, err := a.ArchiveSession(context.Background(), domain.ExecutionReport{SessionID: "s2"}, nil)
		assert.ErrorIs(t, err, boom)
		w.AssertExpectations(t)
	})
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://r2.example.com", normaliseEndpoint("r2.example.com", true))
}
