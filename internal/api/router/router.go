package router

import (
	"context"
	"errors"

	"resume-match-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler, matchHandler *handler.MatchHandler) {
	api := h.Group("/api/v1")

	api.POST("/resumes/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := resumeHandler.HandleResumeUpload(c, file, fileHeader.Size, fileHeader.Filename)
		if err != nil {
			ctx.JSON(statusOf(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/match", func(c context.Context, ctx *app.RequestContext) {
		var req handler.MatchRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败"})
			return
		}

		resp, err := matchHandler.HandleMatch(c, &req)
		if err != nil {
			ctx.JSON(statusOf(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/match/runs/:run_id", func(c context.Context, ctx *app.RequestContext) {
		resp, err := matchHandler.HandleGetMatchRun(c, ctx.Param("run_id"))
		if err != nil {
			ctx.JSON(statusOf(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	h.GET("/ping", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"message": "pong"})
	})
}

// statusOf 将业务错误映射为HTTP状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, handler.ErrInvalidMatchRequest),
		errors.Is(err, handler.ErrUnsupportedFileType):
		return consts.StatusBadRequest
	case errors.Is(err, handler.ErrResumeNotFound),
		errors.Is(err, handler.ErrRunNotFound):
		return consts.StatusNotFound
	default:
		return consts.StatusInternalServerError
	}
}
