package vectordb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDoc 创建用于测试的片段
func createTestDoc(category string, index int, vector []float32) Document {
	return Document{
		Text:     fmt.Sprintf("segment %d of %s", index, category),
		Vector:   vector,
		Source:   "notes.md",
		Category: category,
		Index:    index,
	}
}

// testRepository 各实现共用的行为测试
func testRepository(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("empty store returns empty result", func(t *testing.T) {
		repo := newRepo(t)
		results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 5, "BINARY_SEARCH")
		require.NoError(t, err)
		assert.Empty(t, results)

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("insert assigns id and count grows", func(t *testing.T) {
		repo := newRepo(t)
		id, err := repo.Insert(ctx, createTestDoc("TREES", 0, []float32{1, 0, 0, 0}))
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		id2, err := repo.Insert(ctx, Document{ID: "fixed", Text: "x", Category: "TREES", Vector: []float32{0, 1, 0, 0}})
		require.NoError(t, err)
		assert.Equal(t, "fixed", id2)

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("dimension mismatch is rejected", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Insert(ctx, createTestDoc("TREES", 0, []float32{1, 0}))
		assert.ErrorIs(t, err, ErrInvalidDimension)

		_, err = repo.Insert(ctx, createTestDoc("TREES", 0, nil))
		assert.ErrorIs(t, err, ErrEmptyVector)
	})

	t.Run("results ascend by distance", func(t *testing.T) {
		repo := newRepo(t)
		vectors := [][]float32{
			{0, 1, 0, 0},
			{1, 0, 0, 0},
			{0.7, 0.7, 0, 0},
			{-1, 0, 0, 0},
		}
		for i, v := range vectors {
			_, err := repo.Insert(ctx, createTestDoc("GRAPHS", i, v))
			require.NoError(t, err)
		}

		results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 10, "")
		require.NoError(t, err)
		require.Len(t, results, 4)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
		}
		assert.Equal(t, 1, results[0].Index)
		assert.Equal(t, 3, results[3].Index)
		assert.Equal(t, "notes.md", results[0].Source)
		assert.Equal(t, "GRAPHS", results[0].Category)
	})

	t.Run("fewer than k and k<=0", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Insert(ctx, createTestDoc("HEAPS", 0, []float32{1, 0, 0, 0}))
		require.NoError(t, err)

		results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 10, "")
		require.NoError(t, err)
		assert.Len(t, results, 1)

		results, err = repo.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 0, "")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 3; i++ {
			_, err := repo.Insert(ctx, createTestDoc("TREES", i, []float32{0, 0, 1, 0}))
			require.NoError(t, err)
		}
		results, err := repo.NearestNeighbors(ctx, []float32{0, 0, 1, 0}, 3, "TREES")
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, r := range results {
			assert.Equal(t, i, r.Index)
		}
	})

	t.Run("category filter", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Insert(ctx, createTestDoc("TREES", 0, []float32{1, 0, 0, 0}))
		require.NoError(t, err)
		_, err = repo.Insert(ctx, createTestDoc("GRAPHS", 1, []float32{0.9, 0.1, 0, 0}))
		require.NoError(t, err)

		results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 10, "GRAPHS")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "GRAPHS", results[0].Category)

		results, err = repo.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 10, "BINARY_SEARCH")
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("delete and delete by category", func(t *testing.T) {
		repo := newRepo(t)
		a, err := repo.Insert(ctx, createTestDoc("TREES", 0, []float32{1, 0, 0, 0}))
		require.NoError(t, err)
		_, err = repo.Insert(ctx, createTestDoc("TREES", 1, []float32{0, 1, 0, 0}))
		require.NoError(t, err)
		_, err = repo.Insert(ctx, createTestDoc("HEAPS", 2, []float32{0, 0, 1, 0}))
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, a, "missing"))
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		removed, err := repo.DeleteByCategory(ctx, "TREES")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		results, err := repo.NearestNeighbors(ctx, []float32{1, 0, 0, 0}, 10, "")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "HEAPS", results[0].Category)
	})
}

func TestMemoryRepository(t *testing.T) {
	testRepository(t, func(t *testing.T) Repository {
		repo, err := NewRepository(Config{Type: "memory", Dimension: 4, DistanceType: Cosine})
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestSQLiteRepository(t *testing.T) {
	testRepository(t, func(t *testing.T) Repository {
		repo, err := NewRepository(Config{Type: "sqlite", Dimension: 4, InMemory: true})
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestMemoryRepositoryParallelSearch(t *testing.T) {
	repo, err := NewMemoryRepository(Config{Dimension: 2, DistanceType: Euclidean})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < parallelThreshold*2; i++ {
		_, err := repo.Insert(ctx, createTestDoc("ARRAYS_AND_STRINGS", i, []float32{float32(i), 0}))
		require.NoError(t, err)
	}

	results, err := repo.NearestNeighbors(ctx, []float32{10.2, 0}, 3, "")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 10, results[0].Index)
	assert.Equal(t, 11, results[1].Index)
	assert.Equal(t, 9, results[2].Index)
}

func TestMemoryRepositoryCanceledContext(t *testing.T) {
	repo, err := NewMemoryRepository(Config{Dimension: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.Insert(ctx, createTestDoc("TREES", 0, []float32{1, 0}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrStoreUnavailable)

	_, err = repo.NearestNeighbors(ctx, []float32{1, 0}, 3, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrStoreUnavailable)

	deadline, cancelDeadline := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelDeadline()
	_, err = repo.Insert(deadline, createTestDoc("TREES", 0, []float32{1, 0}))
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestComputeDistance(t *testing.T) {
	d, err := ComputeDistance([]float32{1, 0}, []float32{1, 0}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)

	d, err = ComputeDistance([]float32{1, 0}, []float32{-1, 0}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 2, d, 1e-6)

	d, err = ComputeDistance([]float32{0, 0}, []float32{3, 4}, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-6)

	_, err = ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
	assert.ErrorIs(t, err, ErrInvalidDimension)
}

func TestParseDistanceType(t *testing.T) {
	d, err := ParseDistanceType("")
	require.NoError(t, err)
	assert.Equal(t, Cosine, d)

	d, err = ParseDistanceType("L2")
	require.NoError(t, err)
	assert.Equal(t, Euclidean, d)

	_, err = ParseDistanceType("manhattan")
	assert.Error(t, err)
}

func TestNewRepositoryUnknownType(t *testing.T) {
	_, err := NewRepository(Config{Type: "annoy", Dimension: 4})
	assert.Error(t, err)
}
