package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float32  `json:"temperature"`
	Stop        []string `json:"stop"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

const completionBody = `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,
"model":"meta-llama/llama-4-scout-17b-16e-instruct",
"choices":[{"index":0,"message":{"role":"assistant","content":"  Clause: 4.1\n\nPage: 12  "},"finish_reason":"stop"}],
"usage":{"prompt_tokens":20,"completion_tokens":10,"total_tokens":30}}`

// 测试Groq客户端的补全请求
func TestGroqClientGenerate(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer groq-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	client, err := NewClient("groq", WithAPIKey("groq-key"), WithBaseURL(server.URL), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, ModelLlama4Scout, client.Name())

	resp, err := client.Generate(context.Background(), "What is the exit width?")
	require.NoError(t, err)
	assert.Equal(t, "  Clause: 4.1\n\nPage: 12  ", resp.Text, "客户端不应改写模型输出")
	assert.Equal(t, 30, resp.TokenCount)
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, ModelLlama4Scout, received.Model)
	assert.Equal(t, 700, received.MaxTokens)
	assert.InDelta(t, 0.3, received.Temperature, 1e-6)
	require.Len(t, received.Messages, 1, "应只发送一条用户消息")
	assert.Equal(t, "user", received.Messages[0].Role)
	assert.Equal(t, "What is the exit width?", received.Messages[0].Content)
}

// 测试请求级选项覆盖默认配置
func TestCallOptionsOverride(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	client, err := NewClient("openai", WithAPIKey("k"), WithBaseURL(server.URL), WithModel("gpt-4o-mini"))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "q", CallMaxTokens(50), CallTemperature(0.1), CallStop("\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", received.Model)
	assert.Equal(t, 50, received.MaxTokens)
	assert.InDelta(t, 0.1, received.Temperature, 1e-6)
	assert.Equal(t, []string{"\n\n"}, received.Stop)
}

// 测试对话接口
func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	defer server.Close()

	client, err := NewClient("groq", WithAPIKey("k"), WithBaseURL(server.URL))
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You answer building code questions."},
		{Role: RoleUser, Content: "Minimum exit count?"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 3, "应追加助手回复")
	assert.Equal(t, RoleAssistant, resp.Messages[2].Role)

	_, err = client.Chat(context.Background(), nil)
	var llmErr LLMError
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
}

// 测试错误映射与重试
func TestClientErrors(t *testing.T) {
	t.Run("Missing API key", func(t *testing.T) {
		_, err := NewClient("groq")
		var llmErr LLMError
		require.True(t, errors.As(err, &llmErr))
		assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code)
	})

	t.Run("Retries rate limits", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req), "每次重试都应携带完整请求体")
			w.Header().Set("Content-Type", "application/json")
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
				return
			}
			_, _ = w.Write([]byte(completionBody))
		}))
		defer server.Close()

		client, err := NewClient("groq", WithAPIKey("k"), WithBaseURL(server.URL), WithMaxRetries(2))
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("Bad request is not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		client, err := NewClient("groq", WithAPIKey("k"), WithBaseURL(server.URL), WithMaxRetries(3))
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), "q")
		var llmErr LLMError
		require.True(t, errors.As(err, &llmErr))
		assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code)
		assert.Contains(t, llmErr.Message, "model not found")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("Empty prompt", func(t *testing.T) {
		client, err := NewClient("groq", WithAPIKey("k"))
		require.NoError(t, err)
		_, err = client.Generate(context.Background(), "  ")
		var llmErr LLMError
		require.True(t, errors.As(err, &llmErr))
		assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
	})
}

// 测试错误包装
func TestWrapError(t *testing.T) {
	original := NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	assert.Equal(t, original, WrapError(original, ErrCodeServerError), "已是LLMError时应原样返回")
	assert.Equal(t, ErrCodeServerError, WrapError(errors.New("boom"), ErrCodeServerError).Code)
	assert.Equal(t, "unknown error", WrapError(nil, ErrCodeServerError).Message)
	assert.True(t, IsRetryable(NewLLMError(ErrCodeModelOverload, ErrMsgModelOverload)))
	assert.False(t, IsRetryable(NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)))
}
