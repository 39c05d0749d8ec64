package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试OpenAI兼容嵌入客户端
func TestOpenAIClient(t *testing.T) {
	t.Run("Missing API key", func(t *testing.T) {
		_, err := NewClient("openai")
		var embErr EmbeddingError
		require.True(t, errors.As(err, &embErr))
		assert.Equal(t, ErrCodeInvalidAPIKey, embErr.Code)
	})

	t.Run("Embeddings restored to input order", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req struct {
				Input []string `json:"input"`
				Model string   `json:"model"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "BAAI/bge-large-en-v1.5", req.Model)
			assert.Len(t, req.Input, 2)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","model":"BAAI/bge-large-en-v1.5","data":[
				{"object":"embedding","index":1,"embedding":[0.0,1.0]},
				{"object":"embedding","index":0,"embedding":[1.0,0.0]}
			],"usage":{"prompt_tokens":4,"total_tokens":4}}`))
		}))
		defer server.Close()

		client, err := NewClient("openai",
			WithAPIKey("test-key"),
			WithBaseURL(server.URL+"/"),
			WithTimeout(time.Second),
			WithMaxRetries(0),
		)
		require.NoError(t, err)

		vectors, err := client.EmbedBatch(context.Background(), []string{"first", "second"})
		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors, "应按index还原顺序")
	})

	t.Run("Unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		client, err := NewClient("openai", WithAPIKey("bad"), WithBaseURL(server.URL), WithMaxRetries(2))
		require.NoError(t, err)

		_, err = client.Embed(context.Background(), "exits")
		var embErr EmbeddingError
		require.True(t, errors.As(err, &embErr))
		assert.Equal(t, ErrCodeInvalidAPIKey, embErr.Code)
	})
}
