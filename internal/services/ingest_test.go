package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/doc-quiz-system/internal/document"
	"github.com/fyerfyer/doc-quiz-system/internal/embedding"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/fyerfyer/doc-quiz-system/internal/repository"
	"github.com/fyerfyer/doc-quiz-system/pkg/storage"
	"github.com/fyerfyer/doc-quiz-system/pkg/taskqueue"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var sampleText = strings.Repeat("Binary search halves the interval on every step. ", 12)

func TestIngestStoresAllSegments(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	status := newStatusManager(t)
	svc := NewIngestService(smallChunker(), shared(batchEmbedder(t)), store,
		WithStatusManager(status), WithBatchSize(2), WithLogger(quietLogger()))

	res := svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "notes.md", Category: "binary search"})
	require.True(t, res.Success, res.Error)
	assert.Greater(t, res.SegmentCount, 1)
	assert.Empty(t, res.Error)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.SegmentCount, n)

	doc, err := svc.GetRecord(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, doc.Status)
	assert.Equal(t, res.SegmentCount, doc.SegmentCount)
	assert.Equal(t, models.CategoryBinarySearch, doc.Category)
}

func TestIngestSegmentsCarrySourceAndCategory(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	svc := NewIngestService(smallChunker(), shared(batchEmbedder(t)), store, WithLogger(quietLogger()))

	res := svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "notes.txt", Category: "TREES"})
	require.True(t, res.Success, res.Error)

	hits, err := store.NearestNeighbors(ctx, fakeVector("x"), 100, "TREES")
	require.NoError(t, err)
	require.Len(t, hits, res.SegmentCount)
	for _, h := range hits {
		assert.Equal(t, "notes.txt", h.Source)
		assert.Equal(t, "TREES", h.Category)
	}

	other, err := store.NearestNeighbors(ctx, fakeVector("x"), 100, "GRAPHS")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestIngestRejectsBadInput(t *testing.T) {
	svc := NewIngestService(smallChunker(), shared(embedding.NewMockClient(t)), newMemoryStore(t), WithLogger(quietLogger()))
	ctx := context.Background()

	tests := []struct {
		name string
		req  IngestRequest
		want error
	}{
		{"unknown category", IngestRequest{Data: []byte(sampleText), Name: "a.md", Category: "COOKING"}, models.ErrInvalidCategory},
		{"missing category", IngestRequest{Data: []byte(sampleText), Name: "a.md"}, models.ErrInvalidCategory},
		{"unsupported format", IngestRequest{Data: []byte(sampleText), Name: "a.exe", Category: "TREES"}, models.ErrUnsupportedFormat},
		{"empty data", IngestRequest{Name: "a.md", Category: "TREES"}, models.ErrEmptyDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := svc.Ingest(ctx, tt.req)
			assert.False(t, res.Success)
			assert.Zero(t, res.SegmentCount)
			assert.Contains(t, res.Error, tt.want.Error())
		})
	}
}

func TestIngestWhitespaceDocumentFails(t *testing.T) {
	status := newStatusManager(t)
	svc := NewIngestService(smallChunker(), shared(embedding.NewMockClient(t)), newMemoryStore(t),
		WithStatusManager(status), WithLogger(quietLogger()))

	res := svc.Ingest(context.Background(), IngestRequest{Data: []byte("   \n\t  \n"), Name: "blank.txt", Category: "TREES"})
	assert.False(t, res.Success)
	assert.Zero(t, res.SegmentCount)
	assert.Contains(t, res.Error, models.ErrEmptyDocument.Error())

	doc, err := status.Get(context.Background(), res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
}

func TestIngestTruncatedPDF(t *testing.T) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 10, "Backtracking explores candidates and abandons dead ends")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	truncated := buf.Bytes()[:buf.Len()/2]

	status := newStatusManager(t)
	svc := NewIngestService(smallChunker(), shared(batchEmbedder(t)), newMemoryStore(t),
		WithStatusManager(status), WithLogger(quietLogger()))

	var res IngestResult
	require.NotPanics(t, func() {
		res = svc.Ingest(context.Background(), IngestRequest{Data: truncated, Name: "broken.pdf", Category: "BACKTRACKING"})
	})
	require.NotEmpty(t, res.DocumentID)

	doc, err := status.Get(context.Background(), res.DocumentID)
	require.NoError(t, err)
	if res.Success {
		assert.Equal(t, models.DocStatusCompleted, doc.Status)
	} else {
		assert.Zero(t, res.SegmentCount)
		assert.NotEmpty(t, res.Error)
		assert.Equal(t, models.DocStatusFailed, doc.Status)
	}
}

func TestIngestParserPanicMarksFailed(t *testing.T) {
	ctx := context.Background()
	status := newStatusManager(t)
	store := newMemoryStore(t)
	svc := NewIngestService(smallChunker(), shared(embedding.NewMockClient(t)), store,
		WithStatusManager(status), WithLogger(quietLogger()))

	doc := &models.Document{ID: "panicky", FileName: "panicky.pdf", FileType: "pdf", Category: models.CategoryTrees}
	require.NoError(t, svc.createRecord(ctx, doc))

	count, err := svc.process(ctx, doc, func() ([]document.Unit, error) {
		var units []document.Unit
		_ = units[1]
		return units, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parser panic")
	assert.Zero(t, count)

	got, err := status.Get(ctx, "panicky")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, got.Status)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestRollsBackOnEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	status := newStatusManager(t)

	var calls int32
	client := embedding.NewMockClient(t)
	client.EXPECT().EmbedBatch(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, texts []string) ([][]float32, error) {
			if atomic.AddInt32(&calls, 1) > 1 {
				return nil, embedding.NewEmbeddingError(embedding.ErrCodeServerError, "provider down")
			}
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = fakeVector(text)
			}
			return out, nil
		})
	client.EXPECT().Name().Return("fake").Maybe()

	svc := NewIngestService(smallChunker(), shared(client), store,
		WithStatusManager(status), WithWorkers(1), WithBatchSize(1), WithLogger(quietLogger()))

	res := svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "notes.md", Category: "TREES"})
	assert.False(t, res.Success)
	assert.Zero(t, res.SegmentCount)
	assert.NotEmpty(t, res.Error)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "partially inserted segments must be removed")

	doc, err := status.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.Zero(t, doc.SegmentCount)
	assert.NotEmpty(t, doc.Error)
}

func TestIngestTextUsesPlainTextParser(t *testing.T) {
	svc := NewIngestService(smallChunker(), shared(batchEmbedder(t)), newMemoryStore(t), WithLogger(quietLogger()))

	res := svc.IngestText(context.Background(), "", "HEAPS", sampleText)
	require.True(t, res.Success, res.Error)
	assert.Greater(t, res.SegmentCount, 0)
}

func TestIngestMaxBytes(t *testing.T) {
	svc := NewIngestService(smallChunker(), shared(embedding.NewMockClient(t)), newMemoryStore(t),
		WithMaxBytes(10), WithLogger(quietLogger()))

	res := svc.Ingest(context.Background(), IngestRequest{Data: []byte(sampleText), Name: "a.txt", Category: "TREES"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "exceeds")
}

func TestIngestSegmentLimitFailsDocument(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	status := newStatusManager(t)
	chunker := document.NewChunker(document.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 20, MaxChunks: 2})
	svc := NewIngestService(chunker, shared(embedding.NewMockClient(t)), store,
		WithStatusManager(status), WithLogger(quietLogger()))

	res := svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "long.txt", Category: "TREES"})
	assert.False(t, res.Success)
	assert.Zero(t, res.SegmentCount)
	assert.Contains(t, res.Error, document.ErrTooManyChunks.Error())

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	doc, err := status.Get(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
}

func TestPurgeCategory(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	svc := NewIngestService(smallChunker(), shared(batchEmbedder(t)), store, WithLogger(quietLogger()))

	require.True(t, svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "a.md", Category: "TREES"}).Success)
	kept := svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "b.md", Category: "GRAPHS"})
	require.True(t, kept.Success)

	n, err := svc.PurgeCategory(ctx, "trees")
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	total, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, kept.SegmentCount, total)

	_, err = svc.PurgeCategory(ctx, "")
	assert.True(t, errors.Is(err, models.ErrInvalidCategory))
}

func TestListRecordsFiltersByCategory(t *testing.T) {
	ctx := context.Background()
	status := newStatusManager(t)
	svc := NewIngestService(smallChunker(), shared(batchEmbedder(t)), newMemoryStore(t),
		WithStatusManager(status), WithLogger(quietLogger()))

	svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "a.md", Category: "TREES"})
	svc.Ingest(ctx, IngestRequest{Data: []byte(sampleText), Name: "b.md", Category: "GRAPHS"})

	docs, total, err := svc.ListRecords(ctx, 0, 10, repository.ListFilter{Category: models.CategoryGraphs})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, "b.md", docs[0].FileName)
}

func TestAsyncIngestion(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	status := newStatusManager(t)

	files, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	cfg := taskqueue.DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.Logger = quietLogger()
	queue, err := taskqueue.NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	svc := NewIngestService(smallChunker(), shared(batchEmbedder(t)), store,
		WithStatusManager(status), WithAsync(files, queue), WithLogger(quietLogger()))
	require.True(t, svc.AsyncEnabled())

	doc, err := svc.Submit(ctx, bytes.NewReader([]byte(sampleText)), "notes.md", "Linked Lists")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusPending, doc.Status)
	require.NotEmpty(t, doc.TaskID)

	exists, err := files.Exists(ctx, doc.StoragePath)
	require.NoError(t, err)
	assert.True(t, exists)

	task, err := queue.GetTask(ctx, doc.TaskID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, task.DocumentID)

	out, err := IngestTaskHandler(svc).ProcessTask(ctx, task)
	require.NoError(t, err)
	result, ok := out.(taskqueue.IngestResult)
	require.True(t, ok)
	assert.Greater(t, result.SegmentCount, 0)

	rec, err := svc.GetRecord(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, rec.Status)
	assert.Equal(t, result.SegmentCount, rec.SegmentCount)

	exists, err = files.Exists(ctx, doc.StoragePath)
	require.NoError(t, err)
	assert.False(t, exists, "staged upload is removed after ingestion")
}

func TestSubmitWithoutAsync(t *testing.T) {
	svc := NewIngestService(smallChunker(), shared(embedding.NewMockClient(t)), newMemoryStore(t), WithLogger(quietLogger()))
	_, err := svc.Submit(context.Background(), strings.NewReader(sampleText), "a.md", "TREES")
	assert.True(t, errors.Is(err, ErrAsyncDisabled))
}

func TestIngestTaskHandlerRejectsBadPayload(t *testing.T) {
	svc := NewIngestService(smallChunker(), shared(embedding.NewMockClient(t)), newMemoryStore(t), WithLogger(quietLogger()))
	_, err := IngestTaskHandler(svc).ProcessTask(context.Background(), &taskqueue.Task{Payload: []byte("not json")})
	assert.True(t, errors.Is(err, taskqueue.ErrInvalidPayload))
}
