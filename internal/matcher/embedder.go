package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/components/embedding"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/logger"
)

// TextEmbedder 文本向量化接口
// 与 cloudwego/eino 的 embedding.Embedder 签名保持一致，便于直接复用其实现
type TextEmbedder interface {
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)
	Dimensions() int
}

// QwenEmbedder 基于OpenAI兼容接口的embedding客户端，实现 embedding.Embedder
type QwenEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
}

// NewQwenEmbedder 创建embedding客户端
func NewQwenEmbedder(apiKey string, cfg config.EmbeddingConfig) (*QwenEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	return &QwenEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: cfg.Dimensions,
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}, nil
}

// Dimensions 返回配置的向量维度
func (q *QwenEmbedder) Dimensions() int {
	return q.dimensions
}

// openaiEmbeddingRequest OpenAI兼容的embedding请求体
type openaiEmbeddingRequest struct {
	Input          interface{} `json:"input"` // string 或 []string
	Model          string      `json:"model"`
	Dimensions     int         `json:"dimensions,omitempty"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
}

// openaiEmbeddingResponse OpenAI兼容的embedding响应体
type openaiEmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// EmbedStrings 将文本转换为向量, 实现 cloudwego/eino embedding.Embedder 接口
// 网络失败和服务端错误统一包装为 ErrEmbeddingUnavailable，由调用方降级处理
func (q *QwenEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := q.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var input interface{}
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	reqBody := openaiEmbeddingRequest{
		Input: input,
		Model: effectiveModel,
	}
	if q.dimensions > 0 {
		reqBody.Dimensions = q.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化embedding请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+q.apiKey)

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: 发送HTTP请求失败: %v", ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应体失败: %v", ErrEmbeddingUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("model", effectiveModel).
			Msg("embedding服务返回非200状态码")
		return nil, fmt.Errorf("%w: 状态码 %d, 响应: %.200s", ErrEmbeddingUnavailable, resp.StatusCode, string(body))
	}

	var parsed openaiEmbeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析embedding响应失败: %w. Body: %.200s", err, string(body))
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("%w: API返回错误: 类型=%s, 消息=%s, Code=%s",
			ErrEmbeddingUnavailable, parsed.Error.Type, parsed.Error.Message, parsed.Error.Code)
	}

	out := make([][]float64, len(parsed.Data))
	for i, entry := range parsed.Data {
		out[i] = entry.Embedding
	}

	logger.Debug().
		Int("text_count", len(texts)).
		Int("prompt_tokens", parsed.Usage.PromptTokens).
		Str("model", effectiveModel).
		Msg("embedding调用成功")

	return out, nil
}

// ZeroVector 返回全零兜底向量，embedding服务不可用时用于降级
// 与任何向量的余弦相似度按0处理
func ZeroVector(dim int) []float64 {
	return make([]float64, dim)
}
