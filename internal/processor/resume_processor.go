package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"job-matcher-go/internal/config"
	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/matcher"
	"job-matcher-go/internal/storage"
	"job-matcher-go/internal/types"
)

// ProfileStore 简历画像持久化接口
type ProfileStore interface {
	SaveResumeProfile(ctx context.Context, profile *types.ResumeProfile, filePath, rawTextMD5 string) error
	GetResumeProfile(ctx context.Context, resumeID string) (*types.ResumeProfile, error)
	GetResumeFilePath(ctx context.Context, resumeID string) (string, error)
	DeleteResumeProfile(ctx context.Context, resumeID string) (string, error)
}

var (
	// ErrNoOriginalFile 简历没有关联的原始文件
	ErrNoOriginalFile = errors.New("简历没有原始文件")
	// ErrFileStorageDisabled 对象存储未配置
	ErrFileStorageDisabled = errors.New("对象存储未配置")
)

// ResumeProcessor 简历处理器
// 负责简历画像入库、原始文件上传、以及向量的计算与缓存
// 向量遵循compute-once原则：缓存命中直接复用，未命中才调用embedding
type ResumeProcessor struct {
	embedder matcher.TextEmbedder
	store    ProfileStore
	files    storage.ObjectStorage // 可为nil，此时不支持文件上传
	cache    matcher.VectorCache   // 可为nil，此时每次重新计算向量
	cfg      config.MatcherConfig
}

// NewResumeProcessor 创建简历处理器
func NewResumeProcessor(embedder matcher.TextEmbedder, store ProfileStore, files storage.ObjectStorage, cache matcher.VectorCache, cfg config.MatcherConfig) *ResumeProcessor {
	return &ResumeProcessor{
		embedder: embedder,
		store:    store,
		files:    files,
		cache:    cache,
		cfg:      cfg,
	}
}

// UploadRequest 简历提交请求
// RawText与Skills由外部解析服务产出，原始文件可选
type UploadRequest struct {
	ResumeID string
	RawText  string
	Skills   []string

	File     io.Reader // 可为nil
	FileExt  string
	FileSize int64
}

// ProcessUpload 处理一次简历提交
// 流程: 校验 → 上传原始文件(可选) → 入库 → 计算并缓存向量
func (p *ResumeProcessor) ProcessUpload(ctx context.Context, req *UploadRequest) (*types.ResumeProfile, error) {
	if strings.TrimSpace(req.RawText) == "" && len(req.Skills) == 0 {
		return nil, matcher.ErrEmptyResume
	}

	resumeID := strings.TrimSpace(req.ResumeID)
	if resumeID == "" {
		resumeID = uuid.NewString()
	}

	profile := &types.ResumeProfile{
		ResumeID: resumeID,
		RawText:  req.RawText,
		Skills:   matcher.NormalizeTerms(req.Skills),
	}

	var filePath, fileMD5 string
	if req.File != nil && p.files != nil {
		path, md5Hex, err := p.files.UploadResumeFile(ctx, resumeID, req.FileExt, req.File, req.FileSize)
		if err != nil {
			return nil, fmt.Errorf("上传简历原始文件失败: %w", err)
		}
		filePath, fileMD5 = path, md5Hex
	}

	if err := p.store.SaveResumeProfile(ctx, profile, filePath, fileMD5); err != nil {
		return nil, fmt.Errorf("保存简历画像失败: %w", err)
	}

	// 向量预计算，失败只降级不阻断提交
	if vec, err := p.ensureEmbedding(ctx, profile); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resumeID).Msg("简历向量预计算失败")
	} else {
		profile.Embedding = vec
	}

	return profile, nil
}

// LoadProfile 读取简历画像并填充向量（缓存优先）
func (p *ResumeProcessor) LoadProfile(ctx context.Context, resumeID string) (*types.ResumeProfile, error) {
	profile, err := p.store.GetResumeProfile(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	if vec, err := p.ensureEmbedding(ctx, profile); err == nil {
		profile.Embedding = vec
	}
	return profile, nil
}

// OriginalFileURL 生成简历原始文件的预签名下载链接
func (p *ResumeProcessor) OriginalFileURL(ctx context.Context, resumeID string, expiry time.Duration) (string, error) {
	object, err := p.objectName(ctx, resumeID)
	if err != nil {
		return "", err
	}
	return p.files.GetPresignedURL(ctx, object, expiry)
}

// OriginalFile 读取简历原始文件内容
// 对象存储对客户端不可达时由API代理下载
func (p *ResumeProcessor) OriginalFile(ctx context.Context, resumeID string) ([]byte, error) {
	object, err := p.objectName(ctx, resumeID)
	if err != nil {
		return nil, err
	}
	return p.files.GetResumeFile(ctx, object)
}

// DeleteResume 删除简历画像及其原始文件，文件清理失败只记录不回滚
func (p *ResumeProcessor) DeleteResume(ctx context.Context, resumeID string) error {
	filePath, err := p.store.DeleteResumeProfile(ctx, resumeID)
	if err != nil {
		return err
	}
	if filePath != "" && p.files != nil {
		if object, ok := stripBucket(filePath); ok {
			if err := p.files.DeleteFile(ctx, object); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("resume_id", resumeID).Str("object", object).Msg("删除简历原始文件失败")
			}
		}
	}
	return nil
}

// objectName 解析简历原始文件的对象名
func (p *ResumeProcessor) objectName(ctx context.Context, resumeID string) (string, error) {
	if p.files == nil {
		return "", ErrFileStorageDisabled
	}
	filePath, err := p.store.GetResumeFilePath(ctx, resumeID)
	if err != nil {
		return "", err
	}
	if filePath == "" {
		return "", ErrNoOriginalFile
	}
	object, ok := stripBucket(filePath)
	if !ok {
		return "", fmt.Errorf("简历文件路径格式错误: %s", filePath)
	}
	return object, nil
}

// stripBucket 去掉存储路径的桶名前缀，"bucket/id/original.pdf" -> "id/original.pdf"
func stripBucket(filePath string) (string, bool) {
	parts := strings.SplitN(filePath, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ensureEmbedding 获取简历向量：缓存命中直接返回，否则embedding后回填
func (p *ResumeProcessor) ensureEmbedding(ctx context.Context, profile *types.ResumeProfile) ([]float64, error) {
	if p.cache != nil {
		if vec, ok, err := p.cache.GetResumeVector(ctx, profile.ResumeID); err == nil && ok {
			return vec, nil
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, p.cfg.EmbeddingTimeout())
	defer cancel()

	vectors, err := p.embedder.EmbedStrings(embedCtx, []string{profile.RawText})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, matcher.NewEmbeddingError("", "embedding服务返回空向量")
	}

	if p.cache != nil {
		if err := p.cache.SetResumeVector(ctx, profile.ResumeID, vectors[0]); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("resume_id", profile.ResumeID).Msg("写入简历向量缓存失败")
		}
	}
	return vectors[0], nil
}
