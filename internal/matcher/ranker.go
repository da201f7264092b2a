package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/types"
)

// VectorCache 岗位/简历向量缓存接口，由Redis适配器实现
// 缓存未命中不是错误，返回 (nil, false, nil)
type VectorCache interface {
	GetJobVector(ctx context.Context, jobID string) ([]float64, bool, error)
	SetJobVector(ctx context.Context, jobID string, vector []float64) error
	GetResumeVector(ctx context.Context, resumeID string) ([]float64, bool, error)
	SetResumeVector(ctx context.Context, resumeID string, vector []float64) error
}

// Engine 匹配排序引擎
// 一次Rank调用内简历向量只计算一次，岗位向量按缓存优先获取，评分失败的岗位单独跳过
type Engine struct {
	embedder TextEmbedder
	scorer   *Scorer
	cache    VectorCache // 可为nil，此时每次调用都重新embedding
	cfg      config.MatcherConfig
	now      func() time.Time
}

// EngineOption Engine的可选配置
type EngineOption func(*Engine)

// WithVectorCache 设置向量缓存
func WithVectorCache(cache VectorCache) EngineOption {
	return func(e *Engine) {
		e.cache = cache
	}
}

// WithClock 替换时间源，测试用
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPopularityFunc 替换热度评分函数
func WithPopularityFunc(fn PopularityFunc) EngineOption {
	return func(e *Engine) {
		e.scorer.popularity = fn
	}
}

// NewEngine 创建匹配引擎，非法配置在构造阶段拒绝
func NewEngine(embedder TextEmbedder, cfg config.MatcherConfig, opts ...EngineOption) (*Engine, error) {
	if cfg.TopN <= 0 {
		return nil, fmt.Errorf("%w: top_n=%d", ErrInvalidTopN, cfg.TopN)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWeights, err)
	}
	e := &Engine{
		embedder: embedder,
		scorer:   NewScorer(cfg, nil),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// scoredJob 并发评分的中间结果，index用于保证排序前的确定性
type scoredJob struct {
	index     int
	job       *types.JobRecord
	breakdown *types.ScoreBreakdown
	err       error
}

// Rank 对岗位批次执行去重、评分、排序、截断
// 空批次返回空结果不报错；单个岗位评分失败只跳过该岗位并记录到SkippedIDs
func (e *Engine) Rank(ctx context.Context, resume *types.ResumeProfile, jobs []*types.JobRecord) (*types.MatchResult, error) {
	if resume == nil || (strings.TrimSpace(resume.RawText) == "" && len(resume.Skills) == 0) {
		return nil, ErrEmptyResume
	}
	if len(jobs) == 0 {
		return &types.MatchResult{Ranked: []types.RankedJob{}, SkippedIDs: []string{}}, nil
	}

	deduped := DedupeJobs(jobs)
	now := e.now()

	// 简历向量在一次调用内只计算一次
	if err := e.ensureResumeEmbedding(ctx, resume); err != nil {
		return nil, err
	}

	results := make([]scoredJob, len(deduped))
	jobCh := make(chan int)

	workers := e.cfg.EmbedWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(deduped) {
		workers = len(deduped)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobCh {
				job := deduped[i]
				breakdown, err := e.scoreJob(ctx, resume, job, now)
				results[i] = scoredJob{index: i, job: job, breakdown: breakdown, err: err}
			}
		}()
	}

dispatch:
	for i := range deduped {
		select {
		case <-ctx.Done():
			break dispatch
		case jobCh <- i:
		}
	}
	close(jobCh)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := make([]types.RankedJob, 0, len(deduped))
	skipped := make([]string, 0)
	for _, r := range results {
		if r.job == nil {
			continue
		}
		if r.err != nil {
			logger.Ctx(ctx).Warn().
				Err(r.err).
				Str("job_id", r.job.JobID).
				Msg("岗位评分失败，已跳过")
			skipped = append(skipped, r.job.JobID)
			continue
		}
		ranked = append(ranked, types.RankedJob{
			Job:       r.job,
			Breakdown: r.breakdown,
			Gap:       AnalyzeGap(resume, r.job),
		})
	}

	sortRanked(ranked)
	if len(ranked) > e.cfg.TopN {
		ranked = ranked[:e.cfg.TopN]
	}
	sort.Strings(skipped)

	return &types.MatchResult{Ranked: ranked, SkippedIDs: skipped}, nil
}

// ensureResumeEmbedding 填充简历向量：已有向量直接复用，缓存命中次之，最后才调用embedding
// embedding服务不可用时降级为零向量，语义分按0计算
func (e *Engine) ensureResumeEmbedding(ctx context.Context, resume *types.ResumeProfile) error {
	if len(resume.Embedding) > 0 {
		return nil
	}

	if e.cache != nil && resume.ResumeID != "" {
		if vec, ok, err := e.cache.GetResumeVector(ctx, resume.ResumeID); err == nil && ok {
			resume.Embedding = vec
			return nil
		}
	}

	vec, err := e.embedText(ctx, resume.RawText)
	if err != nil {
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("resume_id", resume.ResumeID).
			Msg("简历embedding失败，降级为零向量")
		resume.Embedding = ZeroVector(e.embedder.Dimensions())
		return nil
	}
	resume.Embedding = vec

	if e.cache != nil && resume.ResumeID != "" {
		if err := e.cache.SetResumeVector(ctx, resume.ResumeID, vec); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resume.ResumeID).Msg("写入简历向量缓存失败")
		}
	}
	return nil
}

// scoreJob 获取岗位向量并计算得分明细
func (e *Engine) scoreJob(ctx context.Context, resume *types.ResumeProfile, job *types.JobRecord, now time.Time) (*types.ScoreBreakdown, error) {
	vector, err := e.jobVector(ctx, job)
	if err != nil {
		return nil, NewScoringError(job.JobID, err.Error())
	}
	return e.scorer.Score(resume, job, vector, now), nil
}

// jobVector 获取岗位向量，缓存优先，未命中时embedding后回填缓存
// embedding失败时降级为零向量，不阻断该岗位的其余子分
func (e *Engine) jobVector(ctx context.Context, job *types.JobRecord) ([]float64, error) {
	if e.cache != nil {
		if vec, ok, err := e.cache.GetJobVector(ctx, job.JobID); err == nil && ok {
			return vec, nil
		}
	}

	vec, err := e.embedText(ctx, job.Title+"\n"+job.Description)
	if err != nil {
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("job_id", job.JobID).
			Msg("岗位embedding失败，降级为零向量")
		return ZeroVector(e.embedder.Dimensions()), nil
	}

	if e.cache != nil {
		if err := e.cache.SetJobVector(ctx, job.JobID, vec); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("job_id", job.JobID).Msg("写入岗位向量缓存失败")
		}
	}
	return vec, nil
}

// embedText 带独立超时的单文本embedding
func (e *Engine) embedText(ctx context.Context, text string) ([]float64, error) {
	embedCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbeddingTimeout())
	defer cancel()

	vectors, err := e.embedder.EmbedStrings(embedCtx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, NewEmbeddingError("", "embedding服务返回空向量")
	}
	return vectors[0], nil
}

// sortRanked 按融合分降序排序
// 同分时发布时间更新的在前（缺失视为最旧），再按岗位ID字典序保证全序稳定
func sortRanked(ranked []types.RankedJob) {
	sort.SliceStable(ranked, func(i, j int) bool {
		bi, bj := ranked[i].Breakdown, ranked[j].Breakdown
		if bi.FinalScore != bj.FinalScore {
			return bi.FinalScore > bj.FinalScore
		}
		pi, pj := ranked[i].Job.PostedDate, ranked[j].Job.PostedDate
		switch {
		case pi != nil && pj != nil && !pi.Equal(*pj):
			return pi.After(*pj)
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		return ranked[i].Job.JobID < ranked[j].Job.JobID
	})
}
