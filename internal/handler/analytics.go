package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apihttp "mint/internal/pkg/http"
	"mint/internal/service/usage"
)

// MetricsSource 用量统计来源
type MetricsSource interface {
	Analytics() usage.Analytics
	Export() usage.Export
	ResetMetrics()
}

// AnalyticsHandler 用量统计处理器
type AnalyticsHandler struct {
	metrics MetricsSource
}

// NewAnalyticsHandler 创建用量统计处理器
func NewAnalyticsHandler(metrics MetricsSource) *AnalyticsHandler {
	return &AnalyticsHandler{metrics: metrics}
}

// Analytics 用量快照
// @Summary      用量统计
// @Tags         统计
// @Produce      json
// @Success      200  {object}  apihttp.SuccessResponse{data=usage.Analytics}
// @Router       /api/v1/analytics [get]
func (h *AnalyticsHandler) Analytics(c *gin.Context) {
	c.JSON(http.StatusOK, apihttp.NewSuccessResponse("success", h.metrics.Analytics()))
}

// Export 导出快照与原始记录
// @Summary      导出用量数据
// @Tags         统计
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  apihttp.SuccessResponse{data=usage.Export}
// @Failure      401  {object}  apihttp.ErrorResponse
// @Router       /api/v1/analytics/export [get]
func (h *AnalyticsHandler) Export(c *gin.Context) {
	c.JSON(http.StatusOK, apihttp.NewSuccessResponse("success", h.metrics.Export()))
}

// Reset 清空统计
// @Summary      重置用量统计
// @Tags         统计
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  apihttp.SuccessResponse
// @Failure      401  {object}  apihttp.ErrorResponse
// @Router       /api/v1/analytics/reset [post]
func (h *AnalyticsHandler) Reset(c *gin.Context) {
	h.metrics.ResetMetrics()
	log.Warn().
		Str("operator", c.GetString("operator")).
		Str("request_id", c.GetString("request_id")).
		Msg("usage metrics reset")
	c.JSON(http.StatusOK, apihttp.NewSuccessResponse("metrics reset", nil))
}
