package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gorm.io/gorm"

	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/matcher"
	"job-matcher-go/internal/processor"
)

// ResumeHandler 负责简历画像的提交与查询
type ResumeHandler struct {
	resumes *processor.ResumeProcessor
}

// NewResumeHandler 创建简历处理器
func NewResumeHandler(resumes *processor.ResumeProcessor) *ResumeHandler {
	return &ResumeHandler{resumes: resumes}
}

// resumeUploadBody JSON方式提交的请求体
type resumeUploadBody struct {
	ResumeID string   `json:"resume_id"`
	RawText  string   `json:"raw_text"`
	Skills   []string `json:"skills"`
}

// HandleResumeUpload 处理简历提交
// POST /api/v1/resumes
// 支持两种提交方式：multipart表单（可附带原始文件）或纯JSON
func (h *ResumeHandler) HandleResumeUpload(ctx context.Context, c *app.RequestContext) {
	var req *processor.UploadRequest
	var fileCloser multipart.File

	if strings.HasPrefix(string(c.ContentType()), "multipart/form-data") {
		var err error
		req, fileCloser, err = h.parseMultipart(c)
		if err != nil {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if fileCloser != nil {
			defer fileCloser.Close()
		}
	} else {
		body, err := c.Body()
		if err != nil {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": "读取请求体失败"})
			return
		}
		var jsonReq resumeUploadBody
		if err := json.Unmarshal(body, &jsonReq); err != nil {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误"})
			return
		}
		req = &processor.UploadRequest{
			ResumeID: jsonReq.ResumeID,
			RawText:  jsonReq.RawText,
			Skills:   jsonReq.Skills,
		}
	}

	profile, err := h.resumes.ProcessUpload(ctx, req)
	if err != nil {
		if errors.Is(err, matcher.ErrEmptyResume) {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": "简历内容为空，raw_text 和 skills 至少提供其一"})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Msg("简历提交处理失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "简历提交处理失败"})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"message":   "简历提交成功",
		"resume_id": profile.ResumeID,
		"skills":    profile.Skills,
		"embedded":  len(profile.Embedding) > 0,
	})
}

// parseMultipart 解析multipart表单：raw_text/skills/resume_id字段 + 可选的原始文件
func (h *ResumeHandler) parseMultipart(c *app.RequestContext) (*processor.UploadRequest, multipart.File, error) {
	req := &processor.UploadRequest{
		ResumeID: c.PostForm("resume_id"),
		RawText:  c.PostForm("raw_text"),
		Skills:   splitSkills(c.PostForm("skills")),
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		// 文件是可选的，缺失不算错误
		return req, nil, nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("打开上传文件失败: %w", err)
	}
	req.File = file
	req.FileExt = filepath.Ext(fileHeader.Filename) // 含前导点，例如 ".pdf"
	req.FileSize = fileHeader.Size
	return req, file, nil
}

// splitSkills 解析逗号分隔的技能列表
func splitSkills(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	skills := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}

// HandleGetResumeFile 获取简历原始文件
// GET /api/v1/resumes/:resume_id/file
// 默认返回预签名下载链接，mode=proxy 时由API直接转发文件内容
func (h *ResumeHandler) HandleGetResumeFile(ctx context.Context, c *app.RequestContext) {
	resumeID := c.Param("resume_id")
	if resumeID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "resume_id 不能为空"})
		return
	}

	if c.Query("mode") == "proxy" {
		data, err := h.resumes.OriginalFile(ctx, resumeID)
		if err != nil {
			h.respondFileError(ctx, c, resumeID, err)
			return
		}
		c.Data(consts.StatusOK, "application/octet-stream", data)
		return
	}

	const expiry = 15 * time.Minute
	url, err := h.resumes.OriginalFileURL(ctx, resumeID, expiry)
	if err != nil {
		h.respondFileError(ctx, c, resumeID, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"resume_id":  resumeID,
		"url":        url,
		"expires_in": int(expiry.Seconds()),
	})
}

// respondFileError 文件接口的统一错误映射
func (h *ResumeHandler) respondFileError(ctx context.Context, c *app.RequestContext, resumeID string, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("简历 %s 不存在", resumeID)})
	case errors.Is(err, processor.ErrNoOriginalFile):
		c.JSON(consts.StatusNotFound, map[string]string{"error": "该简历没有上传原始文件"})
	case errors.Is(err, processor.ErrFileStorageDisabled):
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": "文件存储服务不可用"})
	default:
		logger.Ctx(ctx).Error().Err(err).Str("resume_id", resumeID).Msg("获取简历原始文件失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "获取简历原始文件失败"})
	}
}

// HandleDeleteResume 删除简历画像及其原始文件
// DELETE /api/v1/resumes/:resume_id
func (h *ResumeHandler) HandleDeleteResume(ctx context.Context, c *app.RequestContext) {
	resumeID := c.Param("resume_id")
	if resumeID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "resume_id 不能为空"})
		return
	}

	if err := h.resumes.DeleteResume(ctx, resumeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("简历 %s 不存在", resumeID)})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("resume_id", resumeID).Msg("删除简历失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "删除简历失败"})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"message":   "简历已删除",
		"resume_id": resumeID,
	})
}

// HandleGetResume 查询简历画像
// GET /api/v1/resumes/:resume_id
func (h *ResumeHandler) HandleGetResume(ctx context.Context, c *app.RequestContext) {
	resumeID := c.Param("resume_id")
	if resumeID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "resume_id 不能为空"})
		return
	}

	profile, err := h.resumes.LoadProfile(ctx, resumeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": fmt.Sprintf("简历 %s 不存在", resumeID)})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Str("resume_id", resumeID).Msg("查询简历画像失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询简历画像失败"})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"resume_id": profile.ResumeID,
		"skills":    profile.Skills,
		"embedded":  len(profile.Embedding) > 0,
	})
}
