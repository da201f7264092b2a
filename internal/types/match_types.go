package types

import "time"

// ResumeProfile 候选人简历画像，由外部解析服务产出
// Embedding 在一次会话内只计算一次并复用，设置后视为不可变
type ResumeProfile struct {
	ResumeID  string    `json:"resume_id"`
	RawText   string    `json:"raw_text"`
	Skills    []string  `json:"skills"`
	Embedding []float64 `json:"embedding,omitempty"`
}

// JobRecord 规范化后的岗位记录，入库边界完成校验和默认值填充后不再变更
type JobRecord struct {
	JobID       string     `json:"job_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	RawSkills   []string   `json:"raw_skills"`
	Category    string     `json:"category"`
	PostedDate  *time.Time `json:"posted_date,omitempty"` // 可空，缺失时recency使用兜底权重
	Source      string     `json:"source"`
	Fingerprint string     `json:"fingerprint"` // 内容指纹，派生字段，见 matcher.Fingerprint
}

// ScoreBreakdown 单个(简历,岗位)对的多因子得分明细
// 每次匹配请求重新计算，不做可变状态持久化
type ScoreBreakdown struct {
	JobID              string  `json:"job_id"`
	SemanticSimilarity float64 `json:"semantic_similarity"` // 余弦相似度，截断到[0,1]
	KeywordOverlap     float64 `json:"keyword_overlap"`     // 关键词覆盖率 [0,1]
	RecencyWeight      float64 `json:"recency_weight"`      // 发布时间衰减权重 [0,1]
	PopularityScore    float64 `json:"popularity_score"`    // 热度占位分，当前恒为0.5
	FinalScore         float64 `json:"final_score"`         // 凸组合融合分 [0,1]
}

// SkillGapReport 岗位要求技能与简历技能的差集报告
type SkillGapReport struct {
	JobID         string   `json:"job_id"`
	MissingSkills []string `json:"missing_skills"` // job.skills − resume.skills
	MatchedSkills []string `json:"matched_skills"` // job.skills ∩ resume.skills
}

// RankedJob 排序结果中的单项：岗位 + 得分明细 + 技能差距
type RankedJob struct {
	Job       *JobRecord      `json:"job"`
	Breakdown *ScoreBreakdown `json:"breakdown"`
	Gap       *SkillGapReport `json:"gap,omitempty"`
}

// MatchResult 一次完整匹配请求的输出
type MatchResult struct {
	Ranked     []RankedJob `json:"ranked"`      // 长度 ≤ top_n，按final_score降序
	SkippedIDs []string    `json:"skipped_ids"` // 评分失败被跳过的岗位ID
}
