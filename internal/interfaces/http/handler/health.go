package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
// required 中任一失败即未就绪；optional 失败只标记为 degraded。
type HealthHandler struct {
	version  string
	required map[string]HealthChecker
	optional map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, required, optional map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		version:  version,
		required: required,
		optional: optional,
		timeout:  2 * time.Second,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 检查 Postgres、Redis（必需）与 Milvus（可选）
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]*readinessCheck, len(h.required)+len(h.optional))
	ready := true

	for _, name := range sortedKeys(h.required) {
		check := runCheck(ctx, h.required[name])
		if check.Status != "ok" {
			ready = false
		}
		checks[name] = check
	}
	for _, name := range sortedKeys(h.optional) {
		check := runCheck(ctx, h.optional[name])
		if check.Status == "error" {
			check.Status = "degraded"
		} else if check.Status == "missing" {
			check.Status = "disabled"
		}
		checks[name] = check
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

func runCheck(ctx context.Context, checker HealthChecker) *readinessCheck {
	if checker == nil {
		return &readinessCheck{Status: "missing"}
	}
	start := time.Now()
	err := checker.HealthCheck(ctx)
	check := &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = "error"
		check.Error = err.Error()
	}
	return check
}

func sortedKeys(m map[string]HealthChecker) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
