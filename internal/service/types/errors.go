package types

import "errors"

// 服务层统一错误，handler 据此映射 HTTP 状态码
var (
	// ErrValidation 输入不合法（格式、大小、参数）
	ErrValidation = errors.New("validation failed")

	// ErrNotFound 资源不存在，跨租户访问同样返回该错误
	ErrNotFound = errors.New("resource not found")

	// ErrProcessing 文档处理中，操作冲突
	ErrProcessing = errors.New("document is being processed")

	// ErrConsistency 内部一致性被破坏（向量维度不一致等）
	ErrConsistency = errors.New("internal consistency violation")
)
