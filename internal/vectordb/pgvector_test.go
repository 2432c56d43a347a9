package vectordb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPGVector(t *testing.T, dist DistanceType) (*PGVectorRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS knowledge_segments .*embedding vector\(3\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS knowledge_segments_category_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	repo, err := NewPGVectorRepositoryWithDB(context.Background(), db, Config{Dimension: 3, DistanceType: dist})
	require.NoError(t, err)
	return repo, mock
}

func TestPGVectorInsert(t *testing.T) {
	repo, mock := newMockPGVector(t, Cosine)

	mock.ExpectExec("INSERT INTO knowledge_segments").
		WithArgs("seg-1", "binary search halves the range", "BINARY_SEARCH",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := repo.Insert(context.Background(), Document{
		ID:       "seg-1",
		Text:     "binary search halves the range",
		Category: "BINARY_SEARCH",
		Vector:   []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.Equal(t, "seg-1", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorInsertDriverErrorIsStoreUnavailable(t *testing.T) {
	repo, mock := newMockPGVector(t, Cosine)

	mock.ExpectExec("INSERT INTO knowledge_segments").WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.Insert(context.Background(), Document{Text: "x", Category: "TREES", Vector: []float32{1, 0, 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorNearestNeighbors(t *testing.T) {
	repo, mock := newMockPGVector(t, Cosine)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "content", "category", "metadata", "seq", "created_at", "distance"}).
		AddRow("a", "first", "TREES", []byte(`{"source":"trees.pdf","category":"TREES","page":2,"index":4}`), int64(1), now, 0.1).
		AddRow("b", "second", "TREES", []byte(`{"source":"trees.pdf","category":"TREES","index":5}`), int64(2), now, 0.4)

	mock.ExpectQuery(`SELECT id, content, category, metadata, seq, created_at, embedding <=> \$1 AS distance`).
		WithArgs(sqlmock.AnyArg(), "TREES", 5).
		WillReturnRows(rows)

	results, err := repo.NearestNeighbors(context.Background(), []float32{1, 0, 0}, 5, "TREES")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "trees.pdf", results[0].Source)
	assert.Equal(t, 2, results[0].Page)
	assert.Equal(t, 4, results[0].Index)
	assert.InDelta(t, 0.1, results[0].Distance, 1e-6)
	assert.Equal(t, int64(2), results[1].Seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorNearestNeighborsL2Operator(t *testing.T) {
	repo, mock := newMockPGVector(t, Euclidean)

	mock.ExpectQuery(`embedding <-> \$1 AS distance`).
		WithArgs(sqlmock.AnyArg(), "", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "category", "metadata", "seq", "created_at", "distance"}))

	results, err := repo.NearestNeighbors(context.Background(), []float32{1, 0, 0}, 3, "")
	require.NoError(t, err)
	assert.Empty(t, results)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorNearestNeighborsTimeout(t *testing.T) {
	repo, mock := newMockPGVector(t, Cosine)

	mock.ExpectQuery("SELECT id, content").WillReturnError(sql.ErrConnDone)

	_, err := repo.NearestNeighbors(context.Background(), []float32{1, 0, 0}, 3, "")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPGVectorDeleteAndCount(t *testing.T) {
	repo, mock := newMockPGVector(t, Cosine)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM knowledge_segments WHERE id = ANY\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, repo.Delete(ctx, "a", "b"))

	// 空列表不访问数据库
	require.NoError(t, repo.Delete(ctx))

	mock.ExpectExec(`DELETE FROM knowledge_segments WHERE category = \$1`).
		WithArgs("HEAPS").
		WillReturnResult(sqlmock.NewResult(0, 7))
	n, err := repo.DeleteByCategory(ctx, "HEAPS")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	mock.ExpectQuery(`SELECT count\(\*\) FROM knowledge_segments`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	total, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGVectorRejectsWrongDimension(t *testing.T) {
	repo, mock := newMockPGVector(t, Cosine)

	_, err := repo.NearestNeighbors(context.Background(), []float32{1, 0}, 3, "")
	assert.ErrorIs(t, err, ErrInvalidDimension)
	require.NoError(t, mock.ExpectationsWereMet())
}
