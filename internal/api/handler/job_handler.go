package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/ingestion"
	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/matcher"
	"job-matcher-go/internal/processor"
	"job-matcher-go/internal/storage"
)

// JobHandler 负责岗位查询、技能差距分析与岗位批次投递
type JobHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	resumes *processor.ResumeProcessor
}

// NewJobHandler 创建岗位处理器
func NewJobHandler(cfg *config.Config, storage *storage.Storage, resumes *processor.ResumeProcessor) *JobHandler {
	return &JobHandler{cfg: cfg, storage: storage, resumes: resumes}
}

// HandleGetJob 查询单个岗位详情
// GET /api/v1/jobs/:job_id
func (h *JobHandler) HandleGetJob(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 不能为空"})
		return
	}

	job, err := h.storage.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("岗位 %s 不存在", jobID)})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("job_id", jobID).Msg("查询岗位失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询岗位失败"})
		return
	}

	c.JSON(consts.StatusOK, job)
}

// HandleSkillGap 分析岗位要求技能与简历技能的差距
// GET /api/v1/jobs/:job_id/gap?resume_id=xxx
func (h *JobHandler) HandleSkillGap(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	resumeID := c.Query("resume_id")
	if jobID == "" || resumeID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 和 resume_id 不能为空"})
		return
	}

	job, err := h.storage.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("岗位 %s 不存在", jobID)})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("job_id", jobID).Msg("查询岗位失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询岗位失败"})
		return
	}

	resume, err := h.resumes.LoadProfile(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("简历 %s 不存在", resumeID)})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("resume_id", resumeID).Msg("加载简历画像失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "加载简历画像失败"})
		return
	}

	c.JSON(consts.StatusOK, matcher.AnalyzeGap(resume, job))
}

// HandleIngestJobBatch 接收岗位批次并投递到摄取队列，由消费者异步入库
// POST /api/v1/jobs/batches
// 对应上游抓取服务的每日刷新触发入口
func (h *JobHandler) HandleIngestJobBatch(ctx context.Context, c *app.RequestContext) {
	if h.storage.RabbitMQ == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "消息队列不可用，无法接收岗位批次"})
		return
	}

	body, err := c.Body()
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "读取请求体失败"})
		return
	}

	var batch ingestion.RawJobBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "批次格式错误"})
		return
	}
	if len(batch.Jobs) == 0 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "批次岗位列表为空"})
		return
	}
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}

	if err := h.storage.RabbitMQ.EnsureExchange(h.cfg.RabbitMQ.JobEventsExchange, "direct", true); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("声明岗位事件exchange失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "投递岗位批次失败"})
		return
	}
	if err := h.storage.RabbitMQ.PublishJSON(ctx, h.cfg.RabbitMQ.JobEventsExchange, h.cfg.RabbitMQ.JobBatchRoutingKey, &batch, true); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("batch_id", batch.BatchID).Msg("投递岗位批次失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "投递岗位批次失败"})
		return
	}

	logger.Ctx(ctx).Info().
		Str("batch_id", batch.BatchID).
		Int("jobs", len(batch.Jobs)).
		Msg("岗位批次已投递到摄取队列")

	c.JSON(consts.StatusAccepted, map[string]interface{}{
		"message":  "批次已接收，正在异步处理",
		"batch_id": batch.BatchID,
		"jobs":     len(batch.Jobs),
	})
}
