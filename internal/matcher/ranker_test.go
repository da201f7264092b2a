package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/types"
)

// stubEmbedder 测试用embedding实现，按文本前缀返回固定向量
type stubEmbedder struct {
	vectors map[string][]float64 // 文本包含该key时返回对应向量
	failOn  string               // 文本包含该子串时返回错误
	dim     int
	calls   int
}

func (s *stubEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	s.calls++
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		if s.failOn != "" && contains(text, s.failOn) {
			return nil, errors.New("模拟embedding故障")
		}
		matched := false
		for key, vec := range s.vectors {
			if contains(text, key) {
				out = append(out, vec)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, make([]float64, s.dim))
		}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return s.dim }

func contains(text, sub string) bool {
	for i := 0; i+len(sub) <= len(text); i++ {
		if text[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func testEngine(t *testing.T, emb TextEmbedder, opts ...EngineOption) *Engine {
	t.Helper()
	engine, err := NewEngine(emb, config.DefaultMatcherConfig(), opts...)
	require.NoError(t, err, "创建匹配引擎不应失败")
	return engine
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultMatcherConfig()
	cfg.TopN = 0
	_, err := NewEngine(&stubEmbedder{dim: 3}, cfg)
	assert.ErrorIs(t, err, ErrInvalidTopN, "非法top_n应被拒绝")

	cfg = config.DefaultMatcherConfig()
	cfg.Weights.Semantic = 0.9
	_, err = NewEngine(&stubEmbedder{dim: 3}, cfg)
	assert.ErrorIs(t, err, ErrInvalidWeights, "权重之和不为1应被拒绝")
}

func TestRankEmptyBatch(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dim: 3})
	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "golang developer"}

	result, err := engine.Rank(context.Background(), resume, nil)
	require.NoError(t, err, "空批次不应报错")
	assert.Empty(t, result.Ranked, "空批次应返回空排序结果")
	assert.Empty(t, result.SkippedIDs, "空批次不应有跳过岗位")
}

func TestRankEmptyResume(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dim: 3})

	_, err := engine.Rank(context.Background(), &types.ResumeProfile{ResumeID: "r1", RawText: "   "}, nil)
	assert.ErrorIs(t, err, ErrEmptyResume, "文本与技能均为空的简历应被拒绝")

	_, err = engine.Rank(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyResume, "nil简历应被拒绝")
}

func TestRankOrderingAndTruncation(t *testing.T) {
	emb := &stubEmbedder{
		dim: 3,
		vectors: map[string][]float64{
			"golang resume": {1, 0, 0},
			"go service":    {1, 0, 0},
			"java service":  {0, 1, 0},
			"mixed service": {0.7, 0.7, 0},
		},
	}
	engine := testEngine(t, emb, WithClock(func() time.Time {
		return time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	}))

	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "golang resume", Skills: []string{"go"}}
	jobs := []*types.JobRecord{
		{JobID: "j-java", Title: "Java Engineer", Description: "java service"},
		{JobID: "j-go", Title: "Go Engineer", Description: "go service", RawSkills: []string{"go"}},
		{JobID: "j-mixed", Title: "Platform Engineer", Description: "mixed service"},
	}

	result, err := engine.Rank(context.Background(), resume, jobs)
	require.NoError(t, err, "匹配不应失败")
	require.Len(t, result.Ranked, 3, "三个岗位都应参与排序")

	assert.Equal(t, "j-go", result.Ranked[0].Job.JobID, "语义与技能双高的岗位应排第一")
	assert.Equal(t, "j-mixed", result.Ranked[1].Job.JobID, "语义中等的岗位应排第二")
	assert.Equal(t, "j-java", result.Ranked[2].Job.JobID, "语义无关的岗位应排最后")

	for i := 1; i < len(result.Ranked); i++ {
		assert.GreaterOrEqual(t,
			result.Ranked[i-1].Breakdown.FinalScore,
			result.Ranked[i].Breakdown.FinalScore,
			"排序结果必须按融合分降序")
	}
	for _, r := range result.Ranked {
		assert.GreaterOrEqual(t, r.Breakdown.FinalScore, 0.0, "融合分下界为0")
		assert.LessOrEqual(t, r.Breakdown.FinalScore, 1.0, "融合分上界为1")
		assert.NotNil(t, r.Gap, "每个结果应附带技能差距报告")
	}
}

func TestRankDeterministic(t *testing.T) {
	emb := &stubEmbedder{dim: 3, vectors: map[string][]float64{"resume": {1, 0, 0}}}
	engine := testEngine(t, emb, WithClock(func() time.Time {
		return time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	}))

	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "resume", Skills: []string{"go"}}
	jobs := make([]*types.JobRecord, 0, 10)
	for _, id := range []string{"j5", "j3", "j9", "j1", "j7", "j2", "j8", "j4", "j6", "j0"} {
		jobs = append(jobs, &types.JobRecord{JobID: id, Title: "Engineer " + id, Description: "desc " + id})
	}

	first, err := engine.Rank(context.Background(), resume, jobs)
	require.NoError(t, err, "匹配不应失败")

	// 同分岗位按ID字典序，多次执行结果完全一致
	for i := 1; i < len(first.Ranked); i++ {
		assert.Less(t, first.Ranked[i-1].Job.JobID, first.Ranked[i].Job.JobID, "同分岗位应按ID字典序排列")
	}

	for run := 0; run < 3; run++ {
		again, err := engine.Rank(context.Background(), resume, cloneJobs(jobs))
		require.NoError(t, err, "匹配不应失败")
		require.Len(t, again.Ranked, len(first.Ranked), "多次执行结果长度应一致")
		for i := range first.Ranked {
			assert.Equal(t, first.Ranked[i].Job.JobID, again.Ranked[i].Job.JobID, "多次执行排序应完全一致")
		}
	}
}

func TestRankTieBreakByPostedDate(t *testing.T) {
	// recency权重置0构造同分场景，验证发布时间的平局裁决
	cfg := config.DefaultMatcherConfig()
	cfg.Weights = config.MatcherWeights{Semantic: 0.60, Keyword: 0.30, Recency: 0, Popularity: 0.10}
	emb := &stubEmbedder{dim: 3}
	engine, err := NewEngine(emb, cfg, WithClock(func() time.Time {
		return time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err, "创建匹配引擎不应失败")

	newer := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "resume", Skills: []string{"go"}}
	jobs := []*types.JobRecord{
		{JobID: "j-older", Title: "Engineer", Description: "a", PostedDate: &older},
		{JobID: "j-newer", Title: "Engineer", Description: "b", PostedDate: &newer},
	}

	result, err := engine.Rank(context.Background(), resume, jobs)
	require.NoError(t, err, "匹配不应失败")
	require.Len(t, result.Ranked, 2, "两个岗位都应参与排序")
	assert.Equal(t, "j-newer", result.Ranked[0].Job.JobID, "融合分相同时发布时间更新的岗位应在前")
}

func TestRankTruncatesToTopN(t *testing.T) {
	cfg := config.DefaultMatcherConfig()
	cfg.TopN = 5
	engine, err := NewEngine(&stubEmbedder{dim: 3}, cfg)
	require.NoError(t, err, "创建匹配引擎不应失败")

	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "resume"}
	jobs := make([]*types.JobRecord, 0, 12)
	for i := 0; i < 12; i++ {
		jobs = append(jobs, &types.JobRecord{
			JobID:       "job-" + string(rune('a'+i)),
			Title:       "Engineer " + string(rune('a'+i)),
			Description: "desc " + string(rune('a'+i)),
		})
	}

	result, err := engine.Rank(context.Background(), resume, jobs)
	require.NoError(t, err, "匹配不应失败")
	assert.Len(t, result.Ranked, 5, "结果应截断到top_n")
}

func TestRankDegradesOnEmbeddingFailure(t *testing.T) {
	// embedding整体故障时简历向量降级为零向量，语义分为0但其余子分照常
	emb := &stubEmbedder{dim: 3, failOn: "resume"}
	engine := testEngine(t, emb)

	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "resume text", Skills: []string{"go"}}
	jobs := []*types.JobRecord{
		{JobID: "j1", Title: "Go Engineer", Description: "service", RawSkills: []string{"go"}},
	}

	result, err := engine.Rank(context.Background(), resume, jobs)
	require.NoError(t, err, "embedding故障应降级而不是失败")
	require.Len(t, result.Ranked, 1, "岗位仍应参与排序")
	assert.Equal(t, 0.0, result.Ranked[0].Breakdown.SemanticSimilarity, "降级后语义分应为0")
	assert.Greater(t, result.Ranked[0].Breakdown.FinalScore, 0.0, "其余子分应照常参与融合")
}

func TestRankDedupesBeforeScoring(t *testing.T) {
	emb := &stubEmbedder{dim: 3}
	engine := testEngine(t, emb)

	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "resume"}
	jobs := []*types.JobRecord{
		{JobID: "j1", Title: "Backend Engineer", Source: "linkedin", Description: "go service"},
		{JobID: "j2", Title: "backend engineer", Source: "LinkedIn", Description: "Go Service"},
	}

	result, err := engine.Rank(context.Background(), resume, jobs)
	require.NoError(t, err, "匹配不应失败")
	assert.Len(t, result.Ranked, 1, "内容重复的岗位应在评分前被去除")
	assert.Equal(t, "j1", result.Ranked[0].Job.JobID, "应保留首次出现的岗位")
}

func TestRankReusesResumeEmbedding(t *testing.T) {
	emb := &stubEmbedder{dim: 3, vectors: map[string][]float64{"resume": {1, 0, 0}}}
	engine := testEngine(t, emb)

	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "resume", Embedding: []float64{0, 1, 0}}
	jobs := []*types.JobRecord{{JobID: "j1", Title: "Engineer", Description: "desc"}}

	_, err := engine.Rank(context.Background(), resume, jobs)
	require.NoError(t, err, "匹配不应失败")
	assert.Equal(t, []float64{0, 1, 0}, resume.Embedding, "已有简历向量应被复用而非重新计算")
	assert.Equal(t, 1, emb.calls, "只应为岗位调用一次embedding")
}

func TestRankContextCancelled(t *testing.T) {
	engine := testEngine(t, &stubEmbedder{dim: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resume := &types.ResumeProfile{ResumeID: "r1", RawText: "resume", Embedding: []float64{1, 0, 0}}
	jobs := []*types.JobRecord{{JobID: "j1", Title: "Engineer", Description: "desc"}}

	_, err := engine.Rank(ctx, resume, jobs)
	assert.ErrorIs(t, err, context.Canceled, "已取消的上下文应返回取消错误")
}

func cloneJobs(jobs []*types.JobRecord) []*types.JobRecord {
	out := make([]*types.JobRecord, len(jobs))
	for i, j := range jobs {
		cp := *j
		out[i] = &cp
	}
	return out
}
