package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/database"
	"github.com/fyerfyer/doc-quiz-system/internal/document"
	"github.com/fyerfyer/doc-quiz-system/internal/embedding"
	"github.com/fyerfyer/doc-quiz-system/internal/repository"
	"github.com/fyerfyer/doc-quiz-system/internal/vectordb"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDimension = 3

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newStatusManager(t *testing.T) *StatusManager {
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.Open(&database.Config{Type: "sqlite", DSN: dsn}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewStatusManager(repository.NewDocumentRepositoryWithDB(db), quietLogger())
}

func newMemoryStore(t *testing.T) vectordb.Repository {
	store, err := vectordb.NewRepository(vectordb.Config{Type: "memory", Dimension: testDimension})
	require.NoError(t, err)
	return store
}

// fakeVector 由文本长度得到确定的向量
func fakeVector(text string) []float32 {
	return []float32{1, float32(len(text) % 7), float32(len(text) % 3)}
}

// batchEmbedder 按输入逐条返回 fakeVector
func batchEmbedder(t *testing.T) *embedding.MockClient {
	client := embedding.NewMockClient(t)
	client.EXPECT().EmbedBatch(mock.Anything, mock.Anything).
		RunAndReturn(func(ctx context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = fakeVector(text)
			}
			return out, nil
		}).Maybe()
	client.EXPECT().Name().Return("fake").Maybe()
	return client
}

// shared 把 mock 包装成入库与检索共用的客户端
func shared(client *embedding.MockClient) *embedding.Shared {
	client.EXPECT().Name().Return("fake").Maybe()
	return embedding.NewShared(client, testDimension, embedding.WithLogger(quietLogger()))
}

func smallChunker() *document.Chunker {
	return document.NewChunker(document.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 20})
}
