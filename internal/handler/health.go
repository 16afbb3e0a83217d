package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"mint/internal/pkg/resilience"
)

const readyTimeout = 2 * time.Second

// Pinger 可探活的外部依赖（mongo / redis）
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerSource 熔断器状态来源
type BreakerSource interface {
	Breakers() []resilience.Snapshot
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	breakers BreakerSource
	deps     map[string]Pinger
}

// NewHealthHandler 创建健康检查处理器，deps 为空的依赖不参与就绪检查
func NewHealthHandler(breakers BreakerSource, deps map[string]Pinger) *HealthHandler {
	kept := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			kept[name] = p
		}
	}
	return &HealthHandler{breakers: breakers, deps: kept}
}

// ReadyStatus 就绪检查结果
type ReadyStatus struct {
	Status       string                `json:"status"` // ready / degraded / not_ready
	Dependencies map[string]string     `json:"dependencies"`
	Breakers     []resilience.Snapshot `json:"breakers"`
}

// Health 存活检查
// @Summary  存活检查
// @Tags     健康检查
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready 就绪检查：依赖探活 + 熔断器状态
// 依赖不可达返回 503；有熔断器打开时为 degraded
// @Summary  就绪检查
// @Tags     健康检查
// @Success  200  {object}  ReadyStatus
// @Failure  503  {object}  ReadyStatus
// @Router   /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	status := ReadyStatus{Status: "ready", Dependencies: make(map[string]string, len(h.deps))}

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	code := http.StatusOK
	for _, name := range names {
		if err := h.deps[name].Ping(ctx); err != nil {
			status.Dependencies[name] = err.Error()
			status.Status = "not_ready"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Dependencies[name] = "ok"
	}

	if h.breakers != nil {
		status.Breakers = h.breakers.Breakers()
		for _, b := range status.Breakers {
			if b.State == resilience.StateOpen.String() && code == http.StatusOK {
				status.Status = "degraded"
			}
		}
	}

	c.JSON(code, status)
}
