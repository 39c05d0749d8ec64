package structure

import (
	"regexp"
	"strings"
)

// watermarkPattern 授权水印/页脚行
var watermarkPattern = regexp.MustCompile(`Supply Bureau.*valid upto`)

// CleanLines 按行拆分文本，去除首尾空白、空行和水印行
func CleanLines(text string) []string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if watermarkPattern.MatchString(line) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return cleaned
}

// CleanText 返回清洗后以换行连接的页面文本
func CleanText(text string) string {
	return strings.Join(CleanLines(text), "\n")
}
