package constants

import "time"

const (
	// Application-level constants
	DefaultEmbeddingModel = "text-embedding-v3" // OpenAI兼容接口的默认embedding模型
	DefaultEmbeddingDim   = 384                 // 参考实现使用的向量维度

	// Fingerprint-related constants
	FingerprintDescPrefixLen = 200 // 指纹计算时取描述文本的前200个字符

	// Cache durations
	JobVectorCacheDuration    = 24 * time.Hour
	ResumeVectorCacheDuration = 24 * time.Hour
	MatchSessionCacheDuration = 30 * time.Minute
)
