package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/regdoc-rag/internal/models"
)

// TestSetup 测试数据库初始化和自动迁移
func TestSetup(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	original := DB
	defer func() { DB = original }()

	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "nested", "regdoc.db")
	require.NoError(t, Setup(cfg, log), "初始化数据库不应出错")
	defer Close()

	assert.NotNil(t, MustDB())
	assert.NoError(t, Ping(context.Background()), "连接应可用")
	for _, table := range []interface{}{&models.SourceDocument{}, &models.IndexedEntry{}, &models.QueryRecord{}} {
		assert.True(t, DB.Migrator().HasTable(table), "应自动创建数据表")
	}
}

// TestOpenUnsupportedType 测试不支持的数据库类型
func TestOpenUnsupportedType(t *testing.T) {
	_, err := Open(&Config{Type: "oracle"}, logrus.New())
	assert.Error(t, err)
}

// TestMustDBPanics 测试未初始化时 MustDB 的行为
func TestMustDBPanics(t *testing.T) {
	original := DB
	DB = nil
	defer func() { DB = original }()

	assert.Panics(t, func() { MustDB() }, "未初始化时应 panic")
}

// 测试DSN类型判断
func TestIsFileDSN(t *testing.T) {
	assert.True(t, isFileDSN("data/regdoc.db"))
	assert.False(t, isFileDSN(":memory:"))
	assert.False(t, isFileDSN("file::memory:?cache=shared"))
	assert.False(t, isFileDSN(""))
}
