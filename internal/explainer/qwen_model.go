package explainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"job-matcher-go/internal/logger"
)

const (
	defaultQwenChatURL   = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenChatModel = "qwen-turbo"
)

// QwenChatModel 通过OpenAI兼容接口访问通义千问的聊天客户端
// 实现 model.ToolCallingChatModel，仅Generate路径用于解释生成，不使用工具调用
type QwenChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// QwenModelOption QwenChatModel的配置选项
type QwenModelOption func(*QwenChatModel)

// WithTemperature 设置采样温度
func WithTemperature(temperature float64) QwenModelOption {
	return func(q *QwenChatModel) {
		q.temperature = temperature
	}
}

// WithMaxTokens 设置生成长度上限
func WithMaxTokens(maxTokens int) QwenModelOption {
	return func(q *QwenChatModel) {
		q.maxTokens = maxTokens
	}
}

// NewQwenChatModel 创建通义千问聊天客户端
func NewQwenChatModel(apiKey, modelName, apiURL string, options ...QwenModelOption) (*QwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultQwenChatModel
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultQwenChatURL
	}

	q := &QwenChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{},
	}
	for _, opt := range options {
		opt(q)
	}
	return q, nil
}

type chatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate 实现 model.BaseChatModel 接口
func (q *QwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	reqBody := chatCompletionRequest{
		Model:       q.modelName,
		Messages:    messages,
		Temperature: q.temperature,
		MaxTokens:   q.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化聊天请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+q.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("聊天API返回非200状态码 %d: %.200s", httpResp.StatusCode, string(bodyBytes))
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化聊天响应失败: %w. Body: %.200s", err, string(bodyBytes))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("聊天API返回空choices: %.200s", string(bodyBytes))
	}

	choice := resp.Choices[0]
	content := ""
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}

	logger.Ctx(ctx).Debug().
		Str("model", q.modelName).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", choice.FinishReason).
		Msg("聊天API调用成功")

	role := schema.RoleType(choice.Message.Role)
	if role == "" {
		role = schema.Assistant
	}
	return &schema.Message{Role: role, Content: content}, nil
}

// Stream 实现 model.BaseChatModel 接口，解释生成不需要流式输出
func (q *QwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("QwenChatModel未实现流式输出")
}

// BindTools 实现 model.ChatModel 接口，解释生成不使用工具调用
func (q *QwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (q *QwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return q, nil
}
