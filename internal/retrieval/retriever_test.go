package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/embedding"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/fyerfyer/doc-quiz-system/internal/vectordb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newStore(t *testing.T) vectordb.Repository {
	repo, err := vectordb.NewRepository(vectordb.Config{Type: "memory", Dimension: 3})
	require.NoError(t, err)
	return repo
}

// bound 把 mock 包装成共享客户端
func bound(inner *embedding.MockClient) embedding.Bound {
	inner.EXPECT().Name().Return("mock").Maybe()
	return embedding.NewShared(inner, 3, embedding.WithLogger(quietLogger()))
}

func seed(t *testing.T, store vectordb.Repository, category string, vectors ...[]float32) {
	for i, v := range vectors {
		_, err := store.Insert(context.Background(), vectordb.Document{
			Text:     "segment",
			Vector:   v,
			Source:   "notes.md",
			Category: category,
			Index:    i,
		})
		require.NoError(t, err)
	}
}

func TestRetrieveEmptyStoreReturnsEmptyResult(t *testing.T) {
	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, "binary search").Return([]float32{1, 0, 0}, nil)

	r := New(bound(embedder), newStore(t), WithLogger(quietLogger()))
	res, err := r.Retrieve(context.Background(), Query{Topic: "binary search", Category: "BINARY_SEARCH"})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestRetrieveOrdersByDistance(t *testing.T) {
	store := newStore(t)
	seed(t, store, "TREES",
		[]float32{0, 1, 0},
		[]float32{1, 0, 0},
		[]float32{0.6, 0.4, 0},
		[]float32{0, 0, 1},
	)

	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, "tree traversal").Return([]float32{1, 0, 0}, nil)

	r := New(bound(embedder), store, WithLogger(quietLogger()))
	res, err := r.Retrieve(context.Background(), Query{Topic: "  tree traversal ", K: 3})
	require.NoError(t, err)
	require.Len(t, res.Hits, 3)
	for i := 1; i < len(res.Hits); i++ {
		assert.LessOrEqual(t, res.Hits[i-1].Distance, res.Hits[i].Distance)
	}
	assert.Equal(t, "notes.md", res.Hits[0].Source)
	assert.Equal(t, "TREES", res.Hits[0].Category)
}

func TestRetrieveDefaultK(t *testing.T) {
	store := newStore(t)
	vectors := make([][]float32, 15)
	for i := range vectors {
		vectors[i] = []float32{1, float32(i), 0}
	}
	seed(t, store, "HEAPS", vectors...)

	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)

	r := New(bound(embedder), store, WithLogger(quietLogger()))
	res, err := r.Retrieve(context.Background(), Query{Topic: "heap"})
	require.NoError(t, err)
	assert.Len(t, res.Hits, DefaultK)
}

func TestRetrieveCategoryFilter(t *testing.T) {
	store := newStore(t)
	seed(t, store, "TREES", []float32{1, 0, 0})
	seed(t, store, "GRAPHS", []float32{1, 0.1, 0})

	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)

	r := New(bound(embedder), store, WithLogger(quietLogger()))
	res, err := r.Retrieve(context.Background(), Query{Topic: "bfs", Category: "GRAPHS"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "GRAPHS", res.Hits[0].Category)
}

func TestRetrieveMaxDistance(t *testing.T) {
	store := newStore(t)
	seed(t, store, "TREES", []float32{1, 0, 0}, []float32{0, 1, 0})

	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)

	r := New(bound(embedder), store, WithLogger(quietLogger()), WithMaxDistance(0.5))
	res, err := r.Retrieve(context.Background(), Query{Topic: "trees"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.InDelta(t, 0, res.Hits[0].Distance, 1e-6)
}

func TestRetrieveEmbeddingTimeout(t *testing.T) {
	inner := embedding.NewMockClient(t)
	inner.EXPECT().Name().Return("mock").Maybe()
	inner.EXPECT().Embed(mock.Anything, "dp").RunAndReturn(func(ctx context.Context, _ string) ([]float32, error) {
		time.Sleep(time.Second)
		return []float32{1, 0, 0}, nil
	})

	shared := embedding.NewShared(inner, 3,
		embedding.WithCallTimeout(20*time.Millisecond),
		embedding.WithLogger(quietLogger()),
	)
	r := New(shared, newStore(t), WithLogger(quietLogger()))

	start := time.Now()
	_, err := r.Retrieve(context.Background(), Query{Topic: "dp"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetrieveEmbeddingFailureFailsClosed(t *testing.T) {
	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, mock.Anything).
		Return(nil, embedding.NewEmbeddingError(embedding.ErrCodeServerError, "boom"))

	r := New(bound(embedder), newStore(t), WithLogger(quietLogger()))
	_, err := r.Retrieve(context.Background(), Query{Topic: "stacks"})
	assert.ErrorIs(t, err, models.ErrEmbeddingUnavailable)
}

type failingStore struct {
	vectordb.Repository
}

func (failingStore) NearestNeighbors(context.Context, []float32, int, string) ([]vectordb.SearchResult, error) {
	return nil, errors.Join(models.ErrStoreUnavailable, errors.New("dial tcp: refused"))
}

func TestRetrieveStoreFailure(t *testing.T) {
	embedder := embedding.NewMockClient(t)
	embedder.EXPECT().Embed(mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)

	r := New(bound(embedder), failingStore{}, WithLogger(quietLogger()))
	_, err := r.Retrieve(context.Background(), Query{Topic: "queues"})
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestRetrieveRequiresTopic(t *testing.T) {
	r := New(bound(embedding.NewMockClient(t)), newStore(t))
	_, err := r.Retrieve(context.Background(), Query{Topic: "   "})
	assert.Error(t, err)
}
