package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// 测试未提供配置文件时使用默认值
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 300*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 100, cfg.Server.MaxUploadMB)

	assert.Equal(t, "BAAI/bge-large-en-v1.5", cfg.Embed.Model)
	assert.Equal(t, 1024, cfg.Embed.Dimension)
	assert.Equal(t, 1024, cfg.VectorDB.Dimension)

	assert.Equal(t, "groq", cfg.LLM.Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "meta-llama/llama-4-scout-17b-16e-instruct", cfg.LLM.Model)
	assert.Equal(t, 700, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-6)

	assert.Equal(t, 20, cfg.Query.TopK)
	assert.Equal(t, time.Hour, cfg.Query.CacheTTL)
	assert.Equal(t, 20, cfg.Extract.OCR.MinTextChars)
	assert.Equal(t, 300, cfg.Extract.OCR.DPI)
	assert.Equal(t, "ledongthuc", cfg.Extract.Reader)
	assert.False(t, cfg.Queue.Enabled)
	assert.Nil(t, cfg.Auth.Accounts(), "未启用认证时不应返回账户")
}

// 测试从文件加载配置并替换环境变量占位符
func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_REGDOC_GROQ_KEY", "gsk-secret")
	t.Setenv("TEST_REGDOC_PASSWORD", "hunter2")

	path := writeConfig(t, `
server:
  port: 9090
  cors_origins: ["http://localhost:3000"]
auth:
  enabled: true
  username: admin
  password: ${TEST_REGDOC_PASSWORD}
  users:
    ops: ops-pass
llm:
  api_key: ${TEST_REGDOC_GROQ_KEY}
  max_tokens: 512
vectordb:
  type: milvus
  milvus:
    address: milvus:19530
watch:
  enabled: true
  dir: /srv/inbox
  collection: nbc
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "gsk-secret", cfg.LLM.APIKey, "占位符应被环境变量替换")
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
	assert.Equal(t, "meta-llama/llama-4-scout-17b-16e-instruct", cfg.LLM.Model, "未设置的键保持默认值")
	assert.Equal(t, "milvus:19530", cfg.VectorDB.Milvus.Address)
	assert.Equal(t, "nbc", cfg.Watch.Collection)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)

	accounts := cfg.Auth.Accounts()
	assert.Equal(t, map[string]string{"admin": "hunter2", "ops": "ops-pass"}, accounts)
}

// 测试环境变量和命令行参数的覆盖顺序
func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\nquery:\n  top_k: 10\n")

	t.Run("Env", func(t *testing.T) {
		t.Setenv("REGDOC_SERVER_PORT", "7070")
		t.Setenv("REGDOC_QUERY_TOP_K", "5")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port, "环境变量应覆盖配置文件")
		assert.Equal(t, 5, cfg.Query.TopK)
	})

	t.Run("Flag", func(t *testing.T) {
		t.Setenv("REGDOC_SERVER_PORT", "7070")

		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.Int("port", 0, "")
		fs.Int("top-k", 0, "")
		require.NoError(t, fs.Parse([]string{"--port=6060"}))

		cfg, err := Load(path, WithFlag("server.port", fs.Lookup("port")), WithFlag("query.top_k", fs.Lookup("top-k")))
		require.NoError(t, err)
		assert.Equal(t, 6060, cfg.Server.Port, "显式设置的参数优先")
		assert.Equal(t, 10, cfg.Query.TopK, "未设置的参数不覆盖配置文件")
	})
}

// 测试非法配置
func TestLoadErrors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err, "显式指定的文件不存在时应报错")
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		path := writeConfig(t, "vectordb:\n  dimension: 768\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("AuthWithoutPassword", func(t *testing.T) {
		t.Setenv("AUTH_PASSWORD", "")
		path := writeConfig(t, "auth:\n  enabled: true\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("WatchWithoutCollection", func(t *testing.T) {
		path := writeConfig(t, "watch:\n  enabled: true\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("UnknownReader", func(t *testing.T) {
		path := writeConfig(t, "extract:\n  reader: poppler\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

// 测试占位符替换
func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_REGDOC_HOST", "minio")
	assert.Equal(t, "minio:9000", expandEnv("${TEST_REGDOC_HOST}:9000"))
	assert.Equal(t, "", expandEnv("${TEST_REGDOC_UNSET_VAR}"))
	assert.Equal(t, "$HOME stays", expandEnv("$HOME stays"), "只替换花括号形式")
}
