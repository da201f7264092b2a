package matcher

import (
	"math"
	"time"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/types"
)

const (
	// DefaultPopularityScore 热度信号缺失时的占位分
	DefaultPopularityScore = 0.5
	// DefaultRecencyWeight 发布时间缺失时的兜底权重
	DefaultRecencyWeight = 0.5
)

// PopularityFunc 岗位热度评分函数，返回[0,1]
// 当前没有点击/投递数据，默认实现返回常量占位分，后续接入行为统计时替换
type PopularityFunc func(job *types.JobRecord) float64

// ConstantPopularity 返回恒定热度分的评分函数
func ConstantPopularity(score float64) PopularityFunc {
	return func(_ *types.JobRecord) float64 {
		return clamp01(score)
	}
}

// CosineSimilarity 计算两个向量的余弦相似度并截断到[0,1]
// 任一向量为零向量或维度不一致时返回0，不报错
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// KeywordOverlap 计算关键词覆盖率
// 分子: 规范化后(岗位技能 ∪ 标题关键词) 与 简历技能 的交集大小
// 分母: 规范化后(岗位技能 ∪ 标题关键词) 的大小，为0时覆盖率为0
func KeywordOverlap(jobSkills []string, title string, resumeSkills []string) float64 {
	jobTerms := TermSet(jobSkills)
	for _, tok := range TokenizeTitle(title) {
		jobTerms[tok] = struct{}{}
	}
	if len(jobTerms) == 0 {
		return 0
	}

	resumeTerms := TermSet(resumeSkills)
	matched := 0
	for term := range jobTerms {
		if _, ok := resumeTerms[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(jobTerms))
}

// RecencyWeight 按发布时间计算线性衰减权重
// 发布当天为1.0，随岗位年龄线性下降，超过衰减周期为0
// 发布时间缺失时返回0.5兜底，未来时间按1.0处理
func RecencyWeight(postedDate *time.Time, now time.Time, horizon time.Duration) float64 {
	if postedDate == nil {
		return DefaultRecencyWeight
	}
	if horizon <= 0 {
		return DefaultRecencyWeight
	}
	age := now.Sub(*postedDate)
	if age <= 0 {
		return 1.0
	}
	if age >= horizon {
		return 0
	}
	return 1.0 - float64(age)/float64(horizon)
}

// Scorer 多因子评分器
// 每个(简历,岗位)对独立计算四个子分并做凸组合融合，无可变状态
type Scorer struct {
	weights    config.MatcherWeights
	horizon    time.Duration
	popularity PopularityFunc
}

// NewScorer 创建评分器，popularity为nil时使用常量占位分
func NewScorer(cfg config.MatcherConfig, popularity PopularityFunc) *Scorer {
	if popularity == nil {
		popularity = ConstantPopularity(DefaultPopularityScore)
	}
	return &Scorer{
		weights:    cfg.Weights,
		horizon:    cfg.RecencyHorizon(),
		popularity: popularity,
	}
}

// Score 计算单个岗位相对简历的得分明细
// resumeVector与jobVector为归一化与否均可，余弦相似度不受影响
func (s *Scorer) Score(resume *types.ResumeProfile, job *types.JobRecord, jobVector []float64, now time.Time) *types.ScoreBreakdown {
	semantic := CosineSimilarity(resume.Embedding, jobVector)
	keyword := KeywordOverlap(job.RawSkills, job.Title, resume.Skills)
	recency := RecencyWeight(job.PostedDate, now, s.horizon)
	popularity := s.popularity(job)

	final := s.weights.Semantic*semantic +
		s.weights.Keyword*keyword +
		s.weights.Recency*recency +
		s.weights.Popularity*popularity

	return &types.ScoreBreakdown{
		JobID:              job.JobID,
		SemanticSimilarity: semantic,
		KeywordOverlap:     keyword,
		RecencyWeight:      recency,
		PopularityScore:    popularity,
		FinalScore:         clamp01(final),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
