package llm

import (
	"bytes"
	"strings"
	"text/template"
)

// NotFoundAnswer 上下文不包含答案时模型应输出的固定语句
const NotFoundAnswer = "The provided NBC context does not contain information relevant to this question."

// RegulatoryTemplate 建筑规范问答提示词模板
// 包含变量：
// {{.Context}} - 编号后的检索上下文
// {{.Question}} - 用户问题
const RegulatoryTemplate = `You are a senior building code consultant specializing in the National Building Code (NBC) of India 2016 Volume's.

Your job is to answer user questions using only the provided NBC context. You must ensure clarity, accuracy, and reference every answer to relevant clauses and pages.

Follow these strict guidelines for every response:

1. ONLY use the context provided — do not guess, assume, or fabricate information.
2. Answer concisely and clearly, using bullet points or numbered steps if appropriate.
3. If applicable, include the **exact clause number** and page number where the answer is found.
4. If a figure or table is referenced, include:
   - Table/Figure number (e.g., "Table 4.3")
   - Its title or summary
5. If the context does **not** contain the answer, say:
   - “The provided NBC context does not contain information relevant to this question.”

🧱 Always format your answer in this structure:

---
Clause: [Clause number]

Page: [Page number]

Answer: 
[Clear, direct explanation using only context.]

Reference:  
- [Clause title] | [Page number]
- [Table/Figure if applicable]  
---

Tone: Professional, concise, fact-based — no opinions, filler, or friendly small talk.

Context:
{{.Context}}

Question: {{.Question}}
`

// PromptData 模板变量
type PromptData struct {
	Context  string
	Question string
}

// PromptBuilder 基于 text/template 的提示词构建器
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder 解析提示词模板，text 为空时使用 RegulatoryTemplate
func NewPromptBuilder(text string) (*PromptBuilder, error) {
	if strings.TrimSpace(text) == "" {
		text = RegulatoryTemplate
	}
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, WrapError(err, ErrCodeInvalidRequest)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// MustPromptBuilder 解析失败时 panic，用于内置模板
func MustPromptBuilder(text string) *PromptBuilder {
	b, err := NewPromptBuilder(text)
	if err != nil {
		panic(err)
	}
	return b
}

// Build 渲染提示词
func (b *PromptBuilder) Build(context, question string) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, PromptData{Context: context, Question: question}); err != nil {
		return "", WrapError(err, ErrCodeInvalidRequest)
	}
	return buf.String(), nil
}
