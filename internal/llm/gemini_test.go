package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geminiReply = `{
  "candidates": [{
    "content": {"role": "model", "parts": [{"text": "{\"question\":\"q\"}"}]},
    "finishReason": "STOP"
  }],
  "usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 8, "totalTokenCount": 20}
}`

func TestGeminiClientGenerate(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiReply))
	}))
	defer srv.Close()

	client, err := NewClient("gemini", WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, ModelGeminiFlash, client.Name())

	resp, err := client.Generate(context.Background(), "write a question",
		WithGenerateTemperature(0.9),
		WithGenerateTopK(40),
		WithResponseMIMEType("application/json"),
		WithResponseSchema(map[string]any{"type": "object"}),
	)
	require.NoError(t, err)
	assert.Equal(t, `{"question":"q"}`, resp.Text)
	assert.Equal(t, 20, resp.TokenCount)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Contains(t, gotBody, "write a question")
	assert.Contains(t, gotBody, "application/json")
}

func TestGeminiClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{"server error", http.StatusInternalServerError, models.ErrGenerationUnavailable},
		{"unauthorized", http.StatusUnauthorized, models.ErrGenerationUnavailable},
		{"gateway timeout", http.StatusGatewayTimeout, models.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"nope","status":"FAILED"}}`, tt.status)
			}))
			defer srv.Close()

			client, err := NewGeminiClient(WithAPIKey("k"), WithBaseURL(srv.URL))
			require.NoError(t, err)

			_, err = client.Generate(context.Background(), "prompt")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestGeminiClientDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(geminiReply))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(WithAPIKey("k"), WithBaseURL(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Generate(ctx, "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTimeout)
}

func TestGeminiClientRejectsEmptyPrompt(t *testing.T) {
	client, err := NewGeminiClient(WithAPIKey("k"), WithBaseURL("http://127.0.0.1:1"))
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), "  ")
	assert.ErrorIs(t, err, models.ErrGenerationUnavailable)
	assert.True(t, strings.Contains(err.Error(), ErrMsgEmptyPrompt))
}

func TestGeminiClientRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiClient()
	assert.Error(t, err)
}
