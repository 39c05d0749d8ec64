package services

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/regdoc-rag/internal/structure"
)

// 测试文件标识的生成与校验
func TestFileIDFromName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"NBC_2016_Vol1.pdf", "NBC_2016_Vol1"},
		{"Part 4 Fire & Life Safety.pdf", "Part_4_Fire_Life_Safety"},
		{"../../etc/passwd.pdf", "passwd"},
		{`C:\docs\nbc-part-3.pdf`, "nbc-part-3"},
		{"archive.tar.pdf", "archive.tar"},
	}
	for _, c := range cases {
		t.Run(c.want, func(t *testing.T) {
			got, err := FileIDFromName(c.name)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	t.Run("Invalid", func(t *testing.T) {
		for _, name := range []string{"", ".pdf", "???.pdf", "..pdf"} {
			_, err := FileIDFromName(name)
			assert.ErrorIs(t, err, ErrInvalidFileID, "文件名 %q 应无效", name)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		assert.NoError(t, ValidateFileID("nbc-part-4"))
		assert.Error(t, ValidateFileID("../secret"))
		assert.Error(t, ValidateFileID("a/b"))
		assert.Error(t, ValidateFileID("a..b"))
	})
}

// 测试结构化结果的保存、读取和删除
func TestArtifactStore(t *testing.T) {
	ctx := context.Background()
	artifacts := newTestArtifacts(t)

	records := []structure.DocumentRecord{
		{ClauseNumber: "4.1", ClauseTitle: "Fire Exits", Page: 12, Paragraphs: []string{"Two exits."}},
		{Page: 13},
	}

	key, err := artifacts.Save(ctx, "nbc-part-4", records)
	require.NoError(t, err)
	assert.Equal(t, "artifacts/nbc-part-4.json", key)

	loaded, err := artifacts.Load(ctx, "nbc-part-4")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "4.1", loaded[0].ClauseNumber)
	assert.Equal(t, 13, loaded[1].Page)
	assert.NotNil(t, loaded[1].Paragraphs, "空列表应解码为空切片")

	raw, err := artifacts.Raw(ctx, "nbc-part-4")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"clause_number": "4.1"`)

	infos, err := artifacts.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "nbc-part-4", infos[0].FileID)

	require.NoError(t, artifacts.Delete(ctx, "nbc-part-4"))
	_, err = artifacts.Load(ctx, "nbc-part-4")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.ErrorIs(t, artifacts.Delete(ctx, "nbc-part-4"), ErrArtifactNotFound)

	_, err = artifacts.Load(ctx, "../outside")
	assert.ErrorIs(t, err, ErrInvalidFileID)
}

// 测试上传文件的保存与读取
func TestArtifactStore_Uploads(t *testing.T) {
	ctx := context.Background()
	artifacts := newTestArtifacts(t)

	key, err := artifacts.SaveUpload(ctx, "nbc", strings.NewReader("%PDF-1.4"), 8)
	require.NoError(t, err)
	assert.Equal(t, "uploads/nbc.pdf", key)

	rc, err := artifacts.OpenUpload(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, artifacts.DeleteUpload(ctx, "nbc"))
	assert.NoError(t, artifacts.DeleteUpload(ctx, "nbc"), "重复删除应被忽略")
}
