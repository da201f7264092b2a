package ingestion

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/matcher"
	"job-matcher-go/internal/storage"
	"job-matcher-go/internal/types"
)

// RawJobMessage 摄取队列中的原始岗位消息
// 来自上游抓取服务，字段未经校验，不可直接入库
type RawJobMessage struct {
	JobID       string   `json:"job_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
	Category    string   `json:"category"`
	PostedDate  string   `json:"posted_date"` // RFC3339或"2006-01-02"，可为空
	Source      string   `json:"source"`
}

// RawJobBatch 一批原始岗位
type RawJobBatch struct {
	BatchID string          `json:"batch_id"`
	Jobs    []RawJobMessage `json:"jobs"`
}

// JobStore 岗位持久化接口，由MySQL适配器实现
type JobStore interface {
	UpsertJobs(ctx context.Context, jobs []*types.JobRecord) (int64, error)
}

// Consumer 岗位摄取消费者
// 从RabbitMQ读取原始岗位批次，在入库边界完成校验、规范化、去重后写入MySQL
type Consumer struct {
	mq    *storage.RabbitMQ
	store JobStore
	cfg   *config.RabbitMQConfig

	stop func()
}

// NewConsumer 创建摄取消费者
func NewConsumer(mq *storage.RabbitMQ, store JobStore, cfg *config.RabbitMQConfig) *Consumer {
	return &Consumer{mq: mq, store: store, cfg: cfg}
}

// Start 声明拓扑并启动消费
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.mq.EnsureExchange(c.cfg.JobEventsExchange, "direct", true); err != nil {
		return err
	}
	if err := c.mq.EnsureQueue(c.cfg.JobIngestQueue, true); err != nil {
		return err
	}
	if err := c.mq.BindQueue(c.cfg.JobIngestQueue, c.cfg.JobEventsExchange, c.cfg.JobBatchRoutingKey); err != nil {
		return err
	}

	stop, err := c.mq.StartConsumer(c.cfg.JobIngestQueue, c.cfg.PrefetchCount, func(body []byte) bool {
		return c.handleBatch(ctx, body)
	})
	if err != nil {
		return err
	}
	c.stop = stop
	return nil
}

// handleBatch 处理一批原始岗位
// 单条消息校验失败只跳过该条，批次解析失败或入库失败时Nack重试
func (c *Consumer) handleBatch(ctx context.Context, body []byte) bool {
	var batch RawJobBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		// 消息体损坏，重试也无法恢复，确认后丢弃
		logger.Ctx(ctx).Error().Err(err).Msg("解析岗位批次消息失败，丢弃")
		return true
	}

	jobs := make([]*types.JobRecord, 0, len(batch.Jobs))
	skipped := 0
	for i := range batch.Jobs {
		job, err := NormalizeJob(&batch.Jobs[i])
		if err != nil {
			skipped++
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("batch_id", batch.BatchID).
				Str("title", batch.Jobs[i].Title).
				Msg("岗位校验失败，已跳过")
			continue
		}
		jobs = append(jobs, job)
	}

	// 批次内去重，跨批次去重由数据库指纹唯一索引兜底
	jobs = matcher.DedupeJobs(jobs)

	inserted, err := c.store.UpsertJobs(ctx, jobs)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("batch_id", batch.BatchID).Msg("岗位批次入库失败")
		return false
	}

	logger.Ctx(ctx).Info().
		Str("batch_id", batch.BatchID).
		Int("received", len(batch.Jobs)).
		Int("skipped", skipped).
		Int("deduped", len(jobs)).
		Int64("inserted", inserted).
		Msg("岗位批次摄取完成")
	return true
}

// NormalizeJob 在入库边界校验并规范化单条原始岗位
// 标题和描述为必填；ID缺失时生成UUID；发布时间解析失败按缺失处理
func NormalizeJob(raw *RawJobMessage) (*types.JobRecord, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, matcher.NewJobFieldError(raw.JobID, "标题为空")
	}
	description := strings.TrimSpace(raw.Description)
	if description == "" {
		return nil, matcher.NewJobFieldError(raw.JobID, "描述为空")
	}

	jobID := strings.TrimSpace(raw.JobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}

	source := matcher.NormalizeTerm(raw.Source)
	if source == "" {
		source = "unknown"
	}
	category := matcher.NormalizeTerm(raw.Category)
	if category == "" {
		category = "uncategorized"
	}

	job := &types.JobRecord{
		JobID:       jobID,
		Title:       title,
		Description: description,
		RawSkills:   matcher.NormalizeTerms(raw.Skills),
		Category:    category,
		PostedDate:  parsePostedDate(raw.PostedDate),
		Source:      source,
	}
	job.Fingerprint = matcher.Fingerprint(job)
	return job, nil
}

// parsePostedDate 宽松解析发布时间，失败返回nil由recency兜底
func parsePostedDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	logger.Warn().Str("posted_date", value).Msg("发布时间格式无法解析，按缺失处理")
	return nil
}

// Stop 停止消费
func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
	}
}
