// Package api は在庫総額ジョブの HTTP ハンドラーを提供します。
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/inventory-calculator/internal/apperror"
	"github.com/yourusername/inventory-calculator/internal/jobs"
)

// JobService はハンドラーから呼び出すジョブ操作です。
type JobService interface {
	Submit(ctx context.Context, fileURL string) (*jobs.SubmitResult, error)
	Compute(ctx context.Context, jobID string) error
	CheckStatus(ctx context.Context, jobID string) (*jobs.StatusResult, error)
}

type submitRequest struct {
	FileURL string `json:"file_url"`
}

// Register は /api 配下にジョブ関連のルートを登録します。
func Register(group *gin.RouterGroup, svc JobService) {
	group.POST("/jobs", SubmitHandler(svc))
	group.GET("/jobs/:id", StatusHandler(svc))
	group.POST("/jobs/:id/compute", ComputeHandler(svc))
}

// SubmitHandler は POST /api/jobs のハンドラーを返します。
func SubmitHandler(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "file_url を含む JSON を送信してください。",
			})
			return
		}

		result, err := svc.Submit(c.Request.Context(), req.FileURL)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, result)
	}
}

// StatusHandler は GET /api/jobs/:id のハンドラーを返します。
func StatusHandler(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := jobIDParam(c)
		if !ok {
			return
		}

		result, err := svc.CheckStatus(c.Request.Context(), jobID)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ComputeHandler は POST /api/jobs/:id/compute のハンドラーを返します。
// 計算は同期で実行され、完了後に 204 を返します。
func ComputeHandler(svc JobService) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, ok := jobIDParam(c)
		if !ok {
			return
		}

		if err := svc.Compute(c.Request.Context(), jobID); err != nil {
			respondWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func jobIDParam(c *gin.Context) (string, bool) {
	jobID := strings.TrimSpace(c.Param("id"))
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "jobId を指定してください。",
		})
		return "", false
	}
	return jobID, true
}

func respondWithError(c *gin.Context, err error) {
	switch {
	case apperror.IsClient(err) && errors.Is(err, jobs.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "JOB_NOT_FOUND",
			"message": "指定されたジョブは存在しません。",
		})
	case apperror.IsClient(err):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": err.Error(),
		})
	default:
		// 内部の詳細（保存先パスなど）はクライアントに返さない
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
