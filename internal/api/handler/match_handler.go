package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/constants"
	"job-matcher-go/internal/explainer"
	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/matcher"
	"job-matcher-go/internal/processor"
	"job-matcher-go/internal/storage"
	"job-matcher-go/internal/tracing"
	"job-matcher-go/internal/types"
)

var matchTracer = otel.Tracer("job-matcher-go/api/match")

// MatchHandler 负责处理匹配请求：执行排序、缓存会话、生成解释
type MatchHandler struct {
	cfg       *config.Config
	storage   *storage.Storage
	engine    *matcher.Engine
	resumes   *processor.ResumeProcessor
	explainer *explainer.Explainer // 可为nil，此时解释接口返回503
}

// NewMatchHandler 创建匹配处理器
func NewMatchHandler(cfg *config.Config, storage *storage.Storage, engine *matcher.Engine, resumes *processor.ResumeProcessor, exp *explainer.Explainer) *MatchHandler {
	return &MatchHandler{
		cfg:       cfg,
		storage:   storage,
		engine:    engine,
		resumes:   resumes,
		explainer: exp,
	}
}

// MatchRequest 匹配请求体
// 二选一：resume_id 指向已入库的画像，或 resume 内联提交一次性画像
type MatchRequest struct {
	ResumeID string        `json:"resume_id"`
	Resume   *InlineResume `json:"resume"`
	Category string        `json:"category"` // 可选，按岗位类别过滤
	Limit    int           `json:"limit"`    // 可选，候选岗位上限，0表示不限制
}

// InlineResume 内联提交的简历画像
type InlineResume struct {
	RawText string   `json:"raw_text"`
	Skills  []string `json:"skills"`
}

// HandleCreateMatch 处理匹配请求
// POST /api/v1/matches
func (h *MatchHandler) HandleCreateMatch(ctx context.Context, c *app.RequestContext) {
	ctx, span := matchTracer.Start(ctx, "MatchHandler.HandleCreateMatch")
	defer span.End()

	body, err := c.Body()
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "读取请求体失败"})
		return
	}

	var req MatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误"})
		return
	}
	if req.ResumeID == "" && req.Resume == nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "resume_id 和 resume 必须提供其一"})
		return
	}

	// 1. 加载或构造简历画像
	resume, status, errMsg := h.resolveResume(ctx, &req)
	if resume == nil {
		c.JSON(status, map[string]string{"error": errMsg})
		return
	}
	span.SetAttributes(
		attribute.String("resume_id", resume.ResumeID),
		attribute.String("resume.content", tracing.SafeResumeContent(resume.RawText)),
		attribute.String("match.category", req.Category),
	)

	// 2. 分布式锁，避免同一简历的并发重复计算
	var lockValue string
	if h.storage.Redis != nil && resume.ResumeID != "" {
		lockKey := fmt.Sprintf(constants.KeyMatchLock, resume.ResumeID)
		lockValue, err = h.storage.Redis.AcquireLock(ctx, lockKey, 2*time.Minute)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resume.ResumeID).Msg("获取匹配锁失败，继续执行")
		} else if lockValue == "" {
			c.JSON(consts.StatusAccepted, map[string]interface{}{
				"message":     "该简历的匹配正在计算中，请稍后重试",
				"status":      "processing",
				"resume_id":   resume.ResumeID,
				"retry_after": 2,
			})
			return
		} else {
			defer func() {
				if _, err := h.storage.Redis.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue); err != nil {
					logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resume.ResumeID).Msg("释放匹配锁失败")
				}
			}()
		}
	}

	// 3. 加载候选岗位
	jobs, err := h.storage.MySQL.ListActiveJobs(ctx, req.Category, req.Limit)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询候选岗位失败"})
		return
	}
	span.SetAttributes(attribute.Int("match.candidate_count", len(jobs)))

	// 4. 执行排序
	startTime := time.Now()
	result, err := h.engine.Rank(ctx, resume, jobs)
	if err != nil {
		if errors.Is(err, matcher.ErrEmptyResume) {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": "简历内容为空"})
			return
		}
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "匹配计算失败"})
		return
	}
	span.SetAttributes(
		attribute.Int("match.ranked_count", len(result.Ranked)),
		attribute.Int("match.skipped_count", len(result.SkippedIDs)),
	)

	// 5. 结果快照与会话缓存，失败只记录不阻断响应
	h.persistResult(ctx, resume.ResumeID, result)

	logger.Ctx(ctx).Info().
		Str("resume_id", resume.ResumeID).
		Int("candidates", len(jobs)).
		Int("ranked", len(result.Ranked)).
		Int("skipped", len(result.SkippedIDs)).
		Dur("elapsed", time.Since(startTime)).
		Msg("匹配请求完成")

	c.JSON(consts.StatusOK, map[string]interface{}{
		"message":     "匹配成功",
		"resume_id":   resume.ResumeID,
		"ranked":      result.Ranked,
		"skipped_ids": result.SkippedIDs,
	})
}

// resolveResume 按请求加载或构造简历画像，失败时返回(nil, HTTP状态码, 错误消息)
func (h *MatchHandler) resolveResume(ctx context.Context, req *MatchRequest) (*types.ResumeProfile, int, string) {
	if req.ResumeID != "" {
		resume, err := h.resumes.LoadProfile(ctx, req.ResumeID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, consts.StatusNotFound, fmt.Sprintf("简历 %s 不存在", req.ResumeID)
			}
			logger.Ctx(ctx).Error().Err(err).Str("resume_id", req.ResumeID).Msg("加载简历画像失败")
			return nil, consts.StatusInternalServerError, "加载简历画像失败"
		}
		return resume, 0, ""
	}

	return &types.ResumeProfile{
		RawText: req.Resume.RawText,
		Skills:  matcher.NormalizeTerms(req.Resume.Skills),
	}, 0, ""
}

// persistResult 保存匹配快照并缓存会话，两者都是尽力而为
func (h *MatchHandler) persistResult(ctx context.Context, resumeID string, result *types.MatchResult) {
	if resumeID == "" || len(result.Ranked) == 0 {
		return
	}

	if err := h.storage.MySQL.SaveMatchSnapshots(ctx, resumeID, result.Ranked); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resumeID).Msg("保存匹配快照失败")
	}

	if h.storage.Redis != nil {
		jobIDs := make([]string, len(result.Ranked))
		for i, r := range result.Ranked {
			jobIDs[i] = r.Job.JobID
		}
		if err := h.storage.Redis.CacheMatchSession(ctx, resumeID, jobIDs); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resumeID).Msg("缓存匹配会话失败")
		}
	}
}

// HandleGetMatchSession 分页读取最近一次匹配的结果
// GET /api/v1/matches/:resume_id?cursor=0&limit=20
func (h *MatchHandler) HandleGetMatchSession(ctx context.Context, c *app.RequestContext) {
	resumeID := c.Param("resume_id")
	if resumeID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "resume_id 不能为空"})
		return
	}
	if h.storage.Redis == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "会话缓存不可用"})
		return
	}

	cursor, limit := paginationParams(c)

	jobIDs, totalCount, err := h.storage.Redis.GetMatchSession(ctx, resumeID, cursor, limit)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Ctx(ctx).Error().Err(err).Str("resume_id", resumeID).Msg("读取匹配会话失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "读取匹配会话失败"})
		return
	}
	if len(jobIDs) == 0 {
		c.JSON(consts.StatusOK, map[string]interface{}{
			"message":     "没有可用的匹配会话，请先发起匹配",
			"data":        []interface{}{},
			"resume_id":   resumeID,
			"total_count": totalCount,
			"next_cursor": cursor,
		})
		return
	}

	jobs, err := h.storage.MySQL.GetJobsByIDs(ctx, jobIDs)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("resume_id", resumeID).Msg("查询岗位详情失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询岗位详情失败"})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"message":     "查询成功",
		"data":        jobs,
		"resume_id":   resumeID,
		"total_count": totalCount,
		"next_cursor": cursor + int64(len(jobs)),
	})
}

// HandleExplainMatch 为单个(简历,岗位)对生成自然语言解释
// GET /api/v1/matches/:resume_id/jobs/:job_id/explain
func (h *MatchHandler) HandleExplainMatch(ctx context.Context, c *app.RequestContext) {
	resumeID := c.Param("resume_id")
	jobID := c.Param("job_id")
	if resumeID == "" || jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "resume_id 和 job_id 不能为空"})
		return
	}
	if h.explainer == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "解释服务未配置"})
		return
	}

	ctx, span := matchTracer.Start(ctx, "MatchHandler.HandleExplainMatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("resume_id", resumeID),
		attribute.String("job_id", jobID),
	)

	resume, err := h.resumes.LoadProfile(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("简历 %s 不存在", resumeID)})
			return
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "加载简历画像失败"})
		return
	}

	job, err := h.storage.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("岗位 %s 不存在", jobID)})
			return
		}
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询岗位失败"})
		return
	}

	// 对单岗位重新评分，复用完整的排序流水线保证得分口径一致
	result, err := h.engine.Rank(ctx, resume, []*types.JobRecord{job})
	if err != nil || len(result.Ranked) == 0 {
		tracing.RecordError(span, fmt.Errorf("单岗位评分失败: %v", err), tracing.ErrorTypeInternal)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "岗位评分失败"})
		return
	}

	explainCtx, cancel := context.WithTimeout(ctx, config.GetDuration(h.cfg.Explainer.EvalTimeout, 30*time.Second))
	defer cancel()

	explanation, err := h.explainer.Explain(explainCtx, &result.Ranked[0])
	if err != nil {
		tracing.RecordHTTPError(span, err, consts.StatusBadGateway)
		c.JSON(consts.StatusBadGateway, map[string]string{"error": "生成解释失败，请稍后重试"})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"resume_id":   resumeID,
		"job_id":      jobID,
		"breakdown":   result.Ranked[0].Breakdown,
		"gap":         result.Ranked[0].Gap,
		"explanation": explanation,
	})
}

// paginationParams 解析cursor/limit查询参数，非法值回退默认
func paginationParams(c *app.RequestContext) (cursor, limit int64) {
	cursor, err := strconv.ParseInt(c.Query("cursor"), 10, 64)
	if err != nil || cursor < 0 {
		cursor = 0
	}
	limit, err = strconv.ParseInt(c.Query("limit"), 10, 64)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}
	return cursor, limit
}
