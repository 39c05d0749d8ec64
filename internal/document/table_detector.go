package document

import (
	"math"
	"sort"

	"github.com/fyerfyer/regdoc-rag/internal/structure"
)

// LayoutTableDetector 基于版面坐标的表格网格检测
// 连续的多片段行，且片段起始横坐标落在共同的列锚点上，视为同一个表格
type LayoutTableDetector struct {
	Tolerance  float64 // 列锚点对齐容差
	MinColumns int     // 一行至少包含的单元格数
	MinRows    int     // 一个网格至少包含的行数
}

// NewLayoutTableDetector 创建版面表格检测器
func NewLayoutTableDetector() *LayoutTableDetector {
	return &LayoutTableDetector{
		Tolerance:  4,
		MinColumns: 2,
		MinRows:    2,
	}
}

// gridBuilder 正在累积的网格
type gridBuilder struct {
	start   int
	anchors []float64
	rows    [][]Word
}

// Detect 从按行排列的文本中检测网格
// 网格的 LineIndex 为首行在 rows 中的下标
func (d *LayoutTableDetector) Detect(rows []TextRow) []structure.RawGrid {
	var grids []structure.RawGrid
	var cur *gridBuilder

	flush := func() {
		if cur != nil && len(cur.rows) >= d.MinRows {
			grids = append(grids, d.buildGrid(cur))
		}
		cur = nil
	}

	for i, row := range rows {
		if len(row.Words) < d.MinColumns {
			flush()
			continue
		}
		if cur != nil && d.aligned(cur.anchors, row.Words) {
			cur.rows = append(cur.rows, row.Words)
			cur.anchors = d.mergeAnchors(cur.anchors, row.Words)
			continue
		}
		flush()
		cur = &gridBuilder{
			start:   i,
			anchors: d.mergeAnchors(nil, row.Words),
			rows:    [][]Word{row.Words},
		}
	}
	flush()
	return grids
}

// aligned 判断一行是否至少有两个片段对齐到已有列锚点
func (d *LayoutTableDetector) aligned(anchors []float64, words []Word) bool {
	hits := 0
	for _, w := range words {
		if d.nearest(anchors, w.X) >= 0 {
			hits++
		}
	}
	return hits >= d.MinColumns
}

// nearest 返回容差范围内最近的锚点下标，没有则返回 -1
func (d *LayoutTableDetector) nearest(anchors []float64, x float64) int {
	best, bestDist := -1, d.Tolerance
	for i, a := range anchors {
		if dist := math.Abs(a - x); dist <= bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// mergeAnchors 将新片段的横坐标并入锚点集合
func (d *LayoutTableDetector) mergeAnchors(anchors []float64, words []Word) []float64 {
	for _, w := range words {
		if d.nearest(anchors, w.X) < 0 {
			anchors = append(anchors, w.X)
		}
	}
	sort.Float64s(anchors)
	return anchors
}

// buildGrid 按列锚点排布单元格，未落入任何列的位置为 nil
func (d *LayoutTableDetector) buildGrid(b *gridBuilder) structure.RawGrid {
	grid := structure.RawGrid{
		Rows:      make([][]*string, 0, len(b.rows)),
		LineIndex: b.start,
	}
	for _, words := range b.rows {
		cells := make([]*string, len(b.anchors))
		for _, w := range words {
			col := d.nearest(b.anchors, w.X)
			if col < 0 {
				continue
			}
			text := w.Text
			if cells[col] != nil {
				text = *cells[col] + " " + text
			}
			cells[col] = &text
		}
		grid.Rows = append(grid.Rows, cells)
	}
	return grid
}
