package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量检索/索引能力未配置（Milvus 或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")

	ErrEmptyQuery       = errors.New("query is empty")
	ErrInvalidDateRange = errors.New("start date is after end date")

	// ErrTokenEmbeddingsUnavailable 词元级向量服务不可用，重排降级为融合分
	ErrTokenEmbeddingsUnavailable = errors.New("token embeddings unavailable")
)
