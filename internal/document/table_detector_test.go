package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(pairs ...interface{}) []Word {
	out := make([]Word, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Word{X: pairs[i].(float64), Text: pairs[i+1].(string)})
	}
	return out
}

// 测试版面表格检测
func TestLayoutTableDetector(t *testing.T) {
	detector := NewLayoutTableDetector()

	t.Run("Aligned rows form one grid", func(t *testing.T) {
		rows := []TextRow{
			{Y: 800, Words: words(50.0, "4.1 General requirements for exits")},
			{Y: 780, Words: words(50.0, "Table 4 Occupant load")},
			{Y: 760, Words: words(50.0, "Occupancy", 200.0, "Load factor")},
			{Y: 740, Words: words(50.0, "Residential", 200.0, "12.5")},
			{Y: 720, Words: words(51.0, "Business", 199.0, "10")},
			{Y: 700, Words: words(50.0, "Note: areas in square metres")},
		}

		grids := detector.Detect(rows)
		require.Len(t, grids, 1, "应检测到一个网格")
		grid := grids[0]
		assert.Equal(t, 2, grid.LineIndex, "网格起始行下标应为2")
		require.Len(t, grid.Rows, 3, "网格应包含3行")
		require.Len(t, grid.Rows[0], 2, "网格应包含2列")
		assert.Equal(t, "Occupancy", *grid.Rows[0][0])
		assert.Equal(t, "Load factor", *grid.Rows[0][1])
		assert.Equal(t, "Business", *grid.Rows[2][0])
		assert.Equal(t, "10", *grid.Rows[2][1])
	})

	t.Run("Missing cells stay nil", func(t *testing.T) {
		rows := []TextRow{
			{Y: 760, Words: words(50.0, "Type", 200.0, "Width", 350.0, "Height")},
			{Y: 740, Words: words(50.0, "Door", 350.0, "2.1")},
		}

		grids := detector.Detect(rows)
		require.Len(t, grids, 1)
		require.Len(t, grids[0].Rows[1], 3)
		assert.Nil(t, grids[0].Rows[1][1], "缺失单元格应为nil")
		assert.Equal(t, "2.1", *grids[0].Rows[1][2])
	})

	t.Run("Single multi-column row is not a grid", func(t *testing.T) {
		rows := []TextRow{
			{Y: 760, Words: words(50.0, "Type", 200.0, "Width")},
			{Y: 740, Words: words(50.0, "Plain paragraph text")},
		}
		assert.Empty(t, detector.Detect(rows), "单行不应构成网格")
	})

	t.Run("Misaligned rows split grids", func(t *testing.T) {
		rows := []TextRow{
			{Y: 760, Words: words(50.0, "A", 200.0, "B")},
			{Y: 740, Words: words(50.0, "1", 200.0, "2")},
			{Y: 720, Words: words(90.0, "x", 300.0, "y")},
			{Y: 700, Words: words(90.0, "3", 300.0, "4")},
		}

		grids := detector.Detect(rows)
		require.Len(t, grids, 2, "未对齐的行应分成两个网格")
		assert.Equal(t, 0, grids[0].LineIndex)
		assert.Equal(t, 2, grids[1].LineIndex)
	})

	t.Run("Fragments in the same column are joined", func(t *testing.T) {
		rows := []TextRow{
			{Y: 760, Words: words(50.0, "Fire", 52.0, "rating", 200.0, "Hours")},
			{Y: 740, Words: words(50.0, "Wall", 200.0, "2")},
		}

		grids := detector.Detect(rows)
		require.Len(t, grids, 1)
		assert.Equal(t, "Fire rating", *grids[0].Rows[0][0])
	})
}

// 测试行内片段拼接
func TestJoinWords(t *testing.T) {
	assert.Equal(t, "", JoinWords(nil))
	assert.Equal(t, "Fire exits", JoinWords(words(0.0, "Fire", 30.0, "exits")))
	assert.Equal(t, "Fire exits", JoinWords(words(0.0, "Fire ", 30.0, "exits")))
	assert.Equal(t, "Fire exits", JoinWords(words(0.0, "Fire", 30.0, " exits")))
}
