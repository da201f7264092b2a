package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/storage/models"
	"job-matcher-go/internal/tracing"
	"job-matcher-go/internal/types"
)

var mysqlTracer = otel.Tracer("job-matcher-go/storage/mysql")

type spanCtxKey struct{}

// GormTracingPlugin GORM插件，为数据库操作创建OpenTelemetry追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// NewGormTracingPlugin 创建GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{tracer: mysqlTracer, dbName: dbName}
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 为所有CRUD操作注册Before/After回调
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return firstErr(
		cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")),
		cb.Create().After("gorm:create").Register("otel:after_create", p.after()),
		cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")),
		cb.Query().After("gorm:query").Register("otel:after_query", p.after()),
		cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")),
		cb.Update().After("gorm:update").Register("otel:after_update", p.after()),
		cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")),
		cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()),
		cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")),
		cb.Row().After("gorm:row").Register("otel:after_row", p.after()),
		cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")),
		cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()),
	)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// before 在GORM操作前开启span
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, spanCtxKey{}, span)
	}
}

// after 在GORM操作后结束span并记录结果
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanCtxKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			attribute.String("db.statement", tracing.SafeSQL(db.Statement.SQL.String())),
		)

		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case db.Error == gorm.ErrRecordNotFound:
			// 业务逻辑的正常分支，不算错误
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			tracing.RecordErrorWithInfo(span, db.Error, tracing.ErrorTypeDB,
				attribute.String("db.sql.table", db.Statement.Table))
		}
	}
}

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	default:
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	return m, nil
}

// autoMigrateSchema 自动迁移表结构，迁移期间关闭SQL日志
func (m *MySQL) autoMigrateSchema() error {
	silentLogger := gormlogger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	return silentDB.AutoMigrate(
		&models.Job{},
		&models.ResumeProfile{},
		&models.MatchSnapshot{},
	)
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// UpsertJobs 批量写入岗位，按内容指纹去重
// 指纹冲突时保留已有记录，实现跨批次的幂等摄取
func (m *MySQL) UpsertJobs(ctx context.Context, jobs []*types.JobRecord) (int64, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpsertJobs", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.DBSystemMySQL,
		attribute.String("db.sql.table", "jobs"),
		attribute.Int("batch.size", len(jobs)),
	)

	if len(jobs) == 0 {
		span.SetStatus(codes.Ok, "empty batch")
		return 0, nil
	}

	rows := make([]models.Job, 0, len(jobs))
	for _, job := range jobs {
		skillsJSON, err := models.StringSliceToJSON(job.RawSkills)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, fmt.Errorf("序列化岗位技能失败: %w", err)
		}
		rows = append(rows, models.Job{
			JobID:       job.JobID,
			Title:       job.Title,
			Description: job.Description,
			SkillsJSON:  skillsJSON,
			Category:    job.Category,
			PostedDate:  job.PostedDate,
			Source:      job.Source,
			Fingerprint: job.Fingerprint,
			Status:      "ACTIVE",
		})
	}

	result := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(&rows)
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, result.Error.Error())
		return 0, result.Error
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", result.RowsAffected))
	span.SetStatus(codes.Ok, "")
	return result.RowsAffected, nil
}

// ListActiveJobs 查询活跃岗位，category为空时返回全部
func (m *MySQL) ListActiveJobs(ctx context.Context, category string, limit int) ([]*types.JobRecord, error) {
	query := m.db.WithContext(ctx).Model(&models.Job{}).Where("status = ?", "ACTIVE")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.Job
	if err := query.Order("posted_date DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询活跃岗位失败: %w", err)
	}

	jobs := make([]*types.JobRecord, 0, len(rows))
	for _, row := range rows {
		skills, err := models.JSONToStringSlice(row.SkillsJSON)
		if err != nil {
			return nil, fmt.Errorf("反序列化岗位技能失败 (岗位:%s): %w", row.JobID, err)
		}
		jobs = append(jobs, &types.JobRecord{
			JobID:       row.JobID,
			Title:       row.Title,
			Description: row.Description,
			RawSkills:   skills,
			Category:    row.Category,
			PostedDate:  row.PostedDate,
			Source:      row.Source,
			Fingerprint: row.Fingerprint,
		})
	}
	return jobs, nil
}

// GetJobsByIDs 批量按ID查询岗位，返回结果保持传入ID的顺序
// 不存在的ID直接跳过，由调用方决定如何处理缺口
func (m *MySQL) GetJobsByIDs(ctx context.Context, jobIDs []string) ([]*types.JobRecord, error) {
	if len(jobIDs) == 0 {
		return []*types.JobRecord{}, nil
	}

	var rows []models.Job
	if err := m.db.WithContext(ctx).Where("job_id IN ?", jobIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("批量查询岗位失败: %w", err)
	}

	byID := make(map[string]*models.Job, len(rows))
	for i := range rows {
		byID[rows[i].JobID] = &rows[i]
	}

	jobs := make([]*types.JobRecord, 0, len(rows))
	for _, id := range jobIDs {
		row, ok := byID[id]
		if !ok {
			continue
		}
		skills, err := models.JSONToStringSlice(row.SkillsJSON)
		if err != nil {
			return nil, fmt.Errorf("反序列化岗位技能失败 (岗位:%s): %w", row.JobID, err)
		}
		jobs = append(jobs, &types.JobRecord{
			JobID:       row.JobID,
			Title:       row.Title,
			Description: row.Description,
			RawSkills:   skills,
			Category:    row.Category,
			PostedDate:  row.PostedDate,
			Source:      row.Source,
			Fingerprint: row.Fingerprint,
		})
	}
	return jobs, nil
}

// GetJobByID 按ID查询岗位，不存在时返回 gorm.ErrRecordNotFound
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*types.JobRecord, error) {
	var row models.Job
	if err := m.db.WithContext(ctx).First(&row, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	skills, err := models.JSONToStringSlice(row.SkillsJSON)
	if err != nil {
		return nil, fmt.Errorf("反序列化岗位技能失败: %w", err)
	}
	return &types.JobRecord{
		JobID:       row.JobID,
		Title:       row.Title,
		Description: row.Description,
		RawSkills:   skills,
		Category:    row.Category,
		PostedDate:  row.PostedDate,
		Source:      row.Source,
		Fingerprint: row.Fingerprint,
	}, nil
}

// SaveResumeProfile 保存简历画像，主键冲突时整行更新
func (m *MySQL) SaveResumeProfile(ctx context.Context, profile *types.ResumeProfile, filePath, rawTextMD5 string) error {
	skillsJSON, err := models.StringSliceToJSON(profile.Skills)
	if err != nil {
		return fmt.Errorf("序列化简历技能失败: %w", err)
	}
	row := models.ResumeProfile{
		ResumeID:         profile.ResumeID,
		RawText:          profile.RawText,
		SkillsJSON:       skillsJSON,
		OriginalFilePath: filePath,
		RawTextMD5:       rawTextMD5,
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resume_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"raw_text", "skills_json", "original_file_path", "raw_text_md5"}),
	}).Create(&row).Error
}

// GetResumeFilePath 查询简历原始文件的存储路径，未上传过文件时为空串
func (m *MySQL) GetResumeFilePath(ctx context.Context, resumeID string) (string, error) {
	var row models.ResumeProfile
	if err := m.db.WithContext(ctx).Select("original_file_path").First(&row, "resume_id = ?", resumeID).Error; err != nil {
		return "", err
	}
	return row.OriginalFilePath, nil
}

// DeleteResumeProfile 删除简历画像，返回原始文件路径供调用方清理对象存储
func (m *MySQL) DeleteResumeProfile(ctx context.Context, resumeID string) (string, error) {
	var row models.ResumeProfile
	if err := m.db.WithContext(ctx).First(&row, "resume_id = ?", resumeID).Error; err != nil {
		return "", err
	}
	if err := m.db.WithContext(ctx).Delete(&models.ResumeProfile{}, "resume_id = ?", resumeID).Error; err != nil {
		return "", fmt.Errorf("删除简历画像失败: %w", err)
	}
	return row.OriginalFilePath, nil
}

// GetResumeProfile 按ID查询简历画像
func (m *MySQL) GetResumeProfile(ctx context.Context, resumeID string) (*types.ResumeProfile, error) {
	var row models.ResumeProfile
	if err := m.db.WithContext(ctx).First(&row, "resume_id = ?", resumeID).Error; err != nil {
		return nil, err
	}
	skills, err := models.JSONToStringSlice(row.SkillsJSON)
	if err != nil {
		return nil, fmt.Errorf("反序列化简历技能失败: %w", err)
	}
	return &types.ResumeProfile{
		ResumeID: row.ResumeID,
		RawText:  row.RawText,
		Skills:   skills,
	}, nil
}

// SaveMatchSnapshots 保存一次匹配的结果快照
// 同一(简历,岗位)对冲突时覆盖为最新得分
func (m *MySQL) SaveMatchSnapshots(ctx context.Context, resumeID string, ranked []types.RankedJob) error {
	if len(ranked) == 0 {
		return nil
	}

	rows := make([]models.MatchSnapshot, 0, len(ranked))
	for i, r := range ranked {
		missingJSON, err := models.StringSliceToJSON(gapMissing(r.Gap))
		if err != nil {
			return fmt.Errorf("序列化缺失技能失败: %w", err)
		}
		matchedJSON, err := models.StringSliceToJSON(gapMatched(r.Gap))
		if err != nil {
			return fmt.Errorf("序列化匹配技能失败: %w", err)
		}
		rows = append(rows, models.MatchSnapshot{
			ResumeID:           resumeID,
			JobID:              r.Job.JobID,
			Rank:               i + 1,
			SemanticSimilarity: r.Breakdown.SemanticSimilarity,
			KeywordOverlap:     r.Breakdown.KeywordOverlap,
			RecencyWeight:      r.Breakdown.RecencyWeight,
			PopularityScore:    r.Breakdown.PopularityScore,
			FinalScore:         r.Breakdown.FinalScore,
			MissingSkillsJSON:  missingJSON,
			MatchedSkillsJSON:  matchedJSON,
			MatchedAt:          time.Now(),
		})
	}

	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "resume_id"}, {Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"match_rank", "semantic_similarity", "keyword_overlap", "recency_weight",
			"popularity_score", "final_score", "missing_skills_json", "matched_skills_json", "matched_at",
		}),
	}).Create(&rows).Error
}

func gapMissing(gap *types.SkillGapReport) []string {
	if gap == nil {
		return nil
	}
	return gap.MissingSkills
}

func gapMatched(gap *types.SkillGapReport) []string {
	if gap == nil {
		return nil
	}
	return gap.MatchedSkills
}
