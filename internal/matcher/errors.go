package matcher

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrEmptyResume             = errors.New("简历文本与技能均为空")
	ErrEmbeddingUnavailable    = errors.New("embedding服务不可用")
	ErrInvalidWeights          = errors.New("融合权重非法")
	ErrInvalidTopN             = errors.New("top_n参数非法")
	ErrJobScoringFailed        = errors.New("岗位评分失败")
	ErrMissingRequiredJobField = errors.New("岗位缺少必填字段")
)

// MatchError 包含详细错误信息的自定义错误
type MatchError struct {
	JobID   string
	Op      string
	BaseErr error
	Detail  string
}

func (e *MatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 岗位:%s): %s", e.BaseErr, e.Op, e.JobID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 岗位:%s)", e.BaseErr, e.Op, e.JobID)
}

func (e *MatchError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *MatchError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewEmbeddingError(jobID, detail string) error {
	return &MatchError{
		JobID:   jobID,
		Op:      "embed",
		BaseErr: ErrEmbeddingUnavailable,
		Detail:  detail,
	}
}

func NewScoringError(jobID, detail string) error {
	return &MatchError{
		JobID:   jobID,
		Op:      "score",
		BaseErr: ErrJobScoringFailed,
		Detail:  detail,
	}
}

func NewJobFieldError(jobID, detail string) error {
	return &MatchError{
		JobID:   jobID,
		Op:      "validate",
		BaseErr: ErrMissingRequiredJobField,
		Detail:  detail,
	}
}
