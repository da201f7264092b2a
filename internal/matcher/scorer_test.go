package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/types"
)

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0, 0}, []float64{1, 0, 0}), 1e-9, "相同向量相似度应为1")
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9, "正交向量相似度应为0")
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}), "零向量相似度应为0而不报错")
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}), "维度不一致应返回0")
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil), "空向量应返回0")
	// 负相关向量截断到0，不输出负分
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), "负相似度应截断为0")
}

func TestKeywordOverlap(t *testing.T) {
	jobSkills := []string{"Python", "SQL", "AWS", "Docker"}
	title := "Data Engineer"

	// 岗位词集: python, sql, aws, docker, data (engineer为停用词)
	got := KeywordOverlap(jobSkills, title, []string{"python", "sql", "kubernetes"})
	assert.InDelta(t, 2.0/5.0, got, 1e-9, "覆盖率应为交集大小除以岗位词集大小")

	assert.Equal(t, 1.0, KeywordOverlap([]string{"Go"}, "", []string{"go"}), "大小写不同应视为同一技能")
	assert.Equal(t, 0.0, KeywordOverlap(nil, "", []string{"go"}), "岗位词集为空时覆盖率应为0")
	assert.Equal(t, 0.0, KeywordOverlap([]string{"rust"}, "Systems Programmer", nil), "简历技能为空时覆盖率应为0")
}

func TestRecencyWeight(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	horizon := 90 * 24 * time.Hour

	today := now
	assert.Equal(t, 1.0, RecencyWeight(&today, now, horizon), "当天发布权重应为1.0")

	future := now.Add(48 * time.Hour)
	assert.Equal(t, 1.0, RecencyWeight(&future, now, horizon), "未来时间按1.0处理")

	mid := now.Add(-45 * 24 * time.Hour)
	assert.InDelta(t, 0.5, RecencyWeight(&mid, now, horizon), 1e-9, "周期中点权重应为0.5")

	old := now.Add(-120 * 24 * time.Hour)
	assert.Equal(t, 0.0, RecencyWeight(&old, now, horizon), "超过衰减周期权重应为0")

	assert.Equal(t, DefaultRecencyWeight, RecencyWeight(nil, now, horizon), "发布时间缺失应返回兜底权重0.5")
}

func TestScorerScore(t *testing.T) {
	cfg := config.DefaultMatcherConfig()
	scorer := NewScorer(cfg, nil)
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	posted := now.Add(-45 * 24 * time.Hour)

	resume := &types.ResumeProfile{
		ResumeID:  "r1",
		Skills:    []string{"go", "mysql"},
		Embedding: []float64{1, 0, 0},
	}
	job := &types.JobRecord{
		JobID:      "j1",
		Title:      "Backend Engineer",
		RawSkills:  []string{"Go", "MySQL", "Redis", "Kafka"},
		PostedDate: &posted,
	}

	bd := scorer.Score(resume, job, []float64{1, 0, 0}, now)

	assert.InDelta(t, 1.0, bd.SemanticSimilarity, 1e-9, "相同向量语义分应为1")
	// 岗位词集: go, mysql, redis, kafka, backend，命中go/mysql
	assert.InDelta(t, 2.0/5.0, bd.KeywordOverlap, 1e-9, "关键词覆盖率计算错误")
	assert.InDelta(t, 0.5, bd.RecencyWeight, 1e-9, "recency权重计算错误")
	assert.Equal(t, DefaultPopularityScore, bd.PopularityScore, "默认热度分应为0.5")

	expected := 0.55*1.0 + 0.25*(2.0/5.0) + 0.10*0.5 + 0.10*0.5
	assert.InDelta(t, expected, bd.FinalScore, 1e-9, "融合分应为各子分的凸组合")
	assert.GreaterOrEqual(t, bd.FinalScore, 0.0, "融合分下界为0")
	assert.LessOrEqual(t, bd.FinalScore, 1.0, "融合分上界为1")
}

func TestScorerCustomPopularity(t *testing.T) {
	cfg := config.DefaultMatcherConfig()
	scorer := NewScorer(cfg, ConstantPopularity(0.9))

	resume := &types.ResumeProfile{ResumeID: "r1", Skills: []string{"go"}}
	job := &types.JobRecord{JobID: "j1", Title: "Engineer"}

	bd := scorer.Score(resume, job, nil, time.Now())
	assert.Equal(t, 0.9, bd.PopularityScore, "自定义热度函数应生效")
}

func TestScoreMonotonicity(t *testing.T) {
	// 单调性：某个子分提高而其他不变时，融合分不应下降
	cfg := config.DefaultMatcherConfig()
	scorer := NewScorer(cfg, nil)
	now := time.Now()

	resume := &types.ResumeProfile{ResumeID: "r1", Skills: []string{"go", "redis"}, Embedding: []float64{1, 0}}
	weakJob := &types.JobRecord{JobID: "j1", Title: "Engineer", RawSkills: []string{"go", "rust", "c++", "scala"}}
	strongJob := &types.JobRecord{JobID: "j2", Title: "Engineer", RawSkills: []string{"go", "redis"}}

	weak := scorer.Score(resume, weakJob, []float64{1, 0}, now)
	strong := scorer.Score(resume, strongJob, []float64{1, 0}, now)

	assert.Greater(t, strong.KeywordOverlap, weak.KeywordOverlap, "技能覆盖更高的岗位关键词分应更高")
	assert.GreaterOrEqual(t, strong.FinalScore, weak.FinalScore, "其他条件相同时覆盖率更高的岗位融合分不应更低")
}
