package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTongyiClientEmbedBatch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req dashScopeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 768, req.Parameters.Dimension)
		assert.LessOrEqual(t, len(req.Input.Texts), tongyiMaxBatch)

		var resp dashScopeResponse
		// 倒序返回，客户端按 text_index 还原
		for i := len(req.Input.Texts) - 1; i >= 0; i-- {
			resp.Output.Embeddings = append(resp.Output.Embeddings, struct {
				Embedding []float32 `json:"embedding"`
				TextIndex int       `json:"text_index"`
			}{Embedding: vec(768, float32(i)), TextIndex: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewClient("tongyi", WithAPIKey("sk-test"), WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, defaultTongyiModel, client.Name())

	texts := make([]string, 12)
	for i := range texts {
		texts[i] = "text"
	}
	vs, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vs, 12)
	assert.Equal(t, float32(1), vs[1][0])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "12 texts need two requests")
}

func TestTongyiClientDoesNotRetryServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewTongyiClient(WithAPIKey("k"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "x")
	var ee EmbeddingError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, ErrCodeServerError, ee.Code)
	assert.True(t, errors.Is(err, models.ErrEmbeddingUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTongyiClientAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewTongyiClient(WithAPIKey("bad"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "x")
	var ee EmbeddingError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, ErrCodeInvalidAPIKey, ee.Code)
	assert.True(t, errors.Is(err, models.ErrEmbeddingUnavailable))
}

func TestEmbeddingErrorClassification(t *testing.T) {
	assert.True(t, errors.Is(NewEmbeddingError(ErrCodeTimeout, "slow"), models.ErrTimeout))
	assert.False(t, errors.Is(NewEmbeddingError(ErrCodeTimeout, "slow"), models.ErrEmbeddingUnavailable))
	assert.True(t, errors.Is(NewEmbeddingError(ErrCodeRateLimited, "429"), models.ErrEmbeddingUnavailable))
	assert.False(t, errors.Is(NewEmbeddingError(ErrCodeRateLimited, "429"), models.ErrStoreUnavailable))
}
