package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAssociate 测试表格规范化
func TestAssociate(t *testing.T) {
	a := NewTableAssociator()

	t.Run("single row grid is dropped", func(t *testing.T) {
		tables := a.Associate([]RawGrid{{Rows: [][]*string{Cells("A", "B")}, LineIndex: -1}}, nil)
		assert.Empty(t, tables)
	})

	t.Run("first row becomes header", func(t *testing.T) {
		grid := RawGrid{
			Rows: [][]*string{
				Cells(" Occupancy ", "Width"),
				Cells("Residential", " 1.0 m"),
				{nil, Cells("2.0 m")[0]},
			},
			LineIndex: -1,
		}
		tables := a.Associate([]RawGrid{grid}, nil)
		require.Len(t, tables, 1)
		assert.Equal(t, DefaultTableTitle, tables[0].Title)
		assert.Equal(t, []string{"Occupancy", "Width"}, tables[0].Columns)
		assert.Equal(t, [][]string{{"Residential", "1.0 m"}, {"", "2.0 m"}}, tables[0].Rows)
		assert.NotNil(t, tables[0].Notes)
		assert.Empty(t, tables[0].Notes)
	})
}

// TestFindTableTitle 测试表格标题查找
func TestFindTableTitle(t *testing.T) {
	lines := []string{
		"Table 4 Occupant Load",
		"intro",
		"more intro",
		"  table 12 Exit Widths  ",
		"x",
		"y",
		"z",
		"w",
		"grid starts here",
	}

	t.Run("nearest title wins", func(t *testing.T) {
		assert.Equal(t, "table 12 Exit Widths", FindTableTitle(lines, 5))
	})

	t.Run("looks back at most four lines", func(t *testing.T) {
		assert.Equal(t, "table 12 Exit Widths", FindTableTitle(lines, 7))
		assert.Equal(t, DefaultTableTitle, FindTableTitle(lines, 8))
	})

	t.Run("bounded at start of page", func(t *testing.T) {
		assert.Equal(t, "Table 4 Occupant Load", FindTableTitle(lines, 2))
		assert.Equal(t, DefaultTableTitle, FindTableTitle(lines, 0))
		assert.Equal(t, DefaultTableTitle, FindTableTitle(lines, -1))
	})

	t.Run("must be anchored", func(t *testing.T) {
		assert.Equal(t, DefaultTableTitle, FindTableTitle([]string{"See Table 3"}, 1))
	})

	t.Run("index beyond lines", func(t *testing.T) {
		assert.Equal(t, DefaultTableTitle, FindTableTitle([]string{"a"}, 10))
	})
}
