package embedding

// TEIEmbedRequest text-embeddings-inference 的 /embed 请求结构
type TEIEmbedRequest struct {
	Inputs    []string `json:"inputs"`    // 需要嵌入的文本列表
	Truncate  bool     `json:"truncate"`  // 超长输入是否截断
	Normalize bool     `json:"normalize"` // 是否返回归一化向量
}

// TEIErrorResponse text-embeddings-inference 的错误响应
type TEIErrorResponse struct {
	Error     string `json:"error"`      // 错误消息
	ErrorType string `json:"error_type"` // 错误类型
}
