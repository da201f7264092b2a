package explainer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"

	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/types"
)

// MatchExplanation LLM生成的匹配解释
type MatchExplanation struct {
	Explanation     string   `json:"explanation"`      // 为什么该岗位与候选人匹配
	ImprovementTips []string `json:"improvement_tips"` // 针对缺失技能的提升建议
}

// Explainer 封装LLM客户端与Prompt逻辑，为排序结果生成自然语言解释
// LLM是外部协作方，解释失败不影响匹配结果本身
type Explainer struct {
	llmModel       model.ToolCallingChatModel
	promptTemplate string
}

// Option Explainer的配置选项
type Option func(*Explainer)

// WithPromptTemplate 设置自定义提示词模板
func WithPromptTemplate(template string) Option {
	return func(e *Explainer) {
		e.promptTemplate = template
	}
}

// NewExplainer 创建解释生成器
func NewExplainer(llmModel model.ToolCallingChatModel, options ...Option) *Explainer {
	e := &Explainer{
		llmModel:       llmModel,
		promptTemplate: defaultPromptTemplate,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

const systemMessage = "你是一位资深的职业发展顾问，擅长向候选人解释岗位推荐理由并给出可执行的提升建议。"

const defaultPromptTemplate = `请基于下面的【岗位信息】、【匹配得分明细】和【技能差距】，为候选人生成这条岗位推荐的解释。

**严格按照以下JSON格式输出，禁止输出JSON之外的任何文本：**
{
  "explanation": "字符串，100字以内，说明该岗位为何与候选人匹配，引用具体的得分因素",
  "improvement_tips": ["字符串数组，1-3项，针对缺失技能给出具体的提升建议；无缺失技能时为空数组"]
}

【岗位信息】:
标题: %s
描述: %.500s

【匹配得分明细】:
综合得分: %.3f
语义相似度: %.3f
关键词覆盖率: %.3f
时效权重: %.3f

【技能差距】:
已匹配技能: %s
缺失技能: %s
`

// BuildPayload 构建固定结构的解释请求消息
// 拆出来便于测试Prompt内容本身
func (e *Explainer) BuildPayload(job *types.JobRecord, breakdown *types.ScoreBreakdown, gap *types.SkillGapReport) []*einoschema.Message {
	matched, missing := "无", "无"
	if gap != nil {
		if len(gap.MatchedSkills) > 0 {
			matched = strings.Join(gap.MatchedSkills, ", ")
		}
		if len(gap.MissingSkills) > 0 {
			missing = strings.Join(gap.MissingSkills, ", ")
		}
	}

	userContent := fmt.Sprintf(e.promptTemplate,
		job.Title,
		job.Description,
		breakdown.FinalScore,
		breakdown.SemanticSimilarity,
		breakdown.KeywordOverlap,
		breakdown.RecencyWeight,
		matched,
		missing,
	)

	return []*einoschema.Message{
		einoschema.SystemMessage(systemMessage),
		einoschema.UserMessage(userContent),
	}
}

// Explain 为单个排序结果生成解释
func (e *Explainer) Explain(ctx context.Context, ranked *types.RankedJob) (*MatchExplanation, error) {
	if e.llmModel == nil {
		return nil, fmt.Errorf("explainer: LLM客户端未初始化")
	}
	if ranked == nil || ranked.Job == nil || ranked.Breakdown == nil {
		return nil, fmt.Errorf("explainer: 排序结果不完整")
	}

	messages := e.BuildPayload(ranked.Job, ranked.Breakdown, ranked.Gap)

	response, err := e.llmModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("explainer: LLM调用失败: %w", err)
	}
	if response == nil || response.Content == "" {
		return nil, fmt.Errorf("explainer: LLM返回空响应")
	}

	content := strings.TrimPrefix(response.Content, "\uFEFF")
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("explainer: 无法从LLM响应中提取JSON: %.200s", content)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var explanation MatchExplanation
	if err := json.Unmarshal([]byte(jsonStr), &explanation); err != nil {
		return nil, fmt.Errorf("explainer: 解析LLM响应失败: %w. JSON: %.200s", err, jsonStr)
	}
	if explanation.Explanation == "" {
		return nil, fmt.Errorf("explainer: 解释内容为空")
	}

	logger.Ctx(ctx).Debug().
		Str("job_id", ranked.Job.JobID).
		Int("tips", len(explanation.ImprovementTips)).
		Msg("匹配解释生成成功")

	return &explanation, nil
}

// extractJSON 从文本中提取首个完整的JSON对象
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inStr:
			escaped = true
		case c == '"':
			inStr = !inStr
		case c == '{' && !inStr:
			level++
		case c == '}' && !inStr:
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
