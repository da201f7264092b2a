package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"job-matcher-go/internal/api/handler"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, matchHandler *handler.MatchHandler, resumeHandler *handler.ResumeHandler, jobHandler *handler.JobHandler) {
	api := h.Group("/api/v1")

	// 简历画像
	api.POST("/resumes", resumeHandler.HandleResumeUpload)
	api.GET("/resumes/:resume_id", resumeHandler.HandleGetResume)
	api.GET("/resumes/:resume_id/file", resumeHandler.HandleGetResumeFile)
	api.DELETE("/resumes/:resume_id", resumeHandler.HandleDeleteResume)

	// 匹配
	api.POST("/matches", matchHandler.HandleCreateMatch)
	api.GET("/matches/:resume_id", matchHandler.HandleGetMatchSession)
	api.GET("/matches/:resume_id/jobs/:job_id/explain", matchHandler.HandleExplainMatch)

	// 岗位
	api.POST("/jobs/batches", jobHandler.HandleIngestJobBatch)
	api.GET("/jobs/:job_id", jobHandler.HandleGetJob)
	api.GET("/jobs/:job_id/gap", jobHandler.HandleSkillGap)

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
