package structure

import (
	"encoding/json"
	"fmt"
	"io"
)

// MarshalRecords 将文档记录编码为带缩进的JSON数组
// 空列表编码为 []，不会出现 null
func MarshalRecords(records []DocumentRecord) ([]byte, error) {
	normalized := make([]DocumentRecord, len(records))
	for i, r := range records {
		normalized[i] = normalizeRecord(r)
	}
	data, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document records: %w", err)
	}
	return data, nil
}

// UnmarshalRecords 解析JSON数组形式的文档记录
func UnmarshalRecords(data []byte) ([]DocumentRecord, error) {
	var records []DocumentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document records: %w", err)
	}
	for i := range records {
		records[i] = normalizeRecord(records[i])
	}
	return records, nil
}

// ReadRecords 从 reader 读取文档记录
func ReadRecords(r io.Reader) ([]DocumentRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document records: %w", err)
	}
	return UnmarshalRecords(data)
}

func normalizeRecord(r DocumentRecord) DocumentRecord {
	if r.Paragraphs == nil {
		r.Paragraphs = []string{}
	}
	if r.Tables == nil {
		r.Tables = []TableRecord{}
	}
	if r.Figures == nil {
		r.Figures = []FigureRecord{}
	}
	tables := make([]TableRecord, len(r.Tables))
	for i, t := range r.Tables {
		if t.Columns == nil {
			t.Columns = []string{}
		}
		if t.Rows == nil {
			t.Rows = [][]string{}
		}
		for j, row := range t.Rows {
			if row == nil {
				t.Rows[j] = []string{}
			}
		}
		if t.Notes == nil {
			t.Notes = []string{}
		}
		tables[i] = t
	}
	r.Tables = tables
	return r
}
