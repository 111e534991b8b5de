package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/internal/domain/repository"
	"recall-api/internal/interfaces/http/dto"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	quickSearchTopK    = 3
)

// SearchHandler 检索处理器
type SearchHandler struct {
	engine SearchEngine
	now    func() time.Time
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(engine SearchEngine) *SearchHandler {
	return &SearchHandler{
		engine: engine,
		now:    time.Now,
	}
}

// Search 混合检索
// @Summary 混合检索
// @Description 稠密向量与全文检索融合，可选词元级重排
// @Tags Search
// @Produce json
// @Param q query string true "查询"
// @Param limit query int false "返回条数 1..100"
// @Param speaker query string false "说话人"
// @Param start_date query string false "起始日期"
// @Param end_date query string false "结束日期"
// @Param source_kind query string false "来源类型 text|audio|video"
// @Param rerank query bool false "是否重排，默认 true"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	started := time.Now()

	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		dto.BadRequest(c, "q is required")
		return
	}
	limit, err := dto.QueryInt(c, "limit", defaultSearchLimit, 1, maxSearchLimit)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	filter, err := bindChunkFilter(c)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	out, err := h.engine.Search(c.Request.Context(), retrieval.SearchInput{
		Query:  q,
		TopK:   limit,
		Rerank: dto.QueryBool(c, "rerank", true),
		Filter: filter,
	})
	if err != nil {
		dto.HandleError(c, "search", err)
		return
	}

	resp := dto.ToSearchResponse(out, started)
	resp.Query = q
	if !dto.QueryBool(c, "debug", false) {
		resp.Debug = nil
	}
	dto.Success(c, resp)
}

// SearchBySpeaker 按说话人检索
// @Summary 按说话人检索
// @Tags Search
// @Produce json
// @Param name path string true "说话人"
// @Param q query string false "查询，为空时返回该说话人的最新片段"
// @Param limit query int false "返回条数 1..100"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Router /api/v1/search/speaker/{name} [get]
func (h *SearchHandler) SearchBySpeaker(c *gin.Context) {
	started := time.Now()

	name := strings.TrimSpace(c.Param("name"))
	q := strings.TrimSpace(c.Query("q"))
	limit, err := dto.QueryInt(c, "limit", defaultSearchLimit, 1, maxSearchLimit)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	out, err := h.engine.SearchBySpeaker(c.Request.Context(), name, q, limit, dto.QueryBool(c, "rerank", true))
	if err != nil {
		dto.HandleError(c, "search by speaker", err)
		return
	}

	resp := dto.ToSearchResponse(out, started)
	resp.Query = q
	resp.Speaker = name
	resp.Debug = nil
	dto.Success(c, resp)
}

// SearchByDateRange 按时间范围检索
// @Summary 按时间范围检索
// @Tags Search
// @Produce json
// @Param start_date query string true "起始日期"
// @Param end_date query string true "结束日期"
// @Param q query string false "查询"
// @Param limit query int false "返回条数 1..100"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Router /api/v1/search/date-range [get]
func (h *SearchHandler) SearchByDateRange(c *gin.Context) {
	start, err := dto.ParseDate(c.Query("start_date"), false)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	end, err := dto.ParseDate(c.Query("end_date"), true)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	if start == nil || end == nil {
		dto.BadRequest(c, "start_date and end_date are required")
		return
	}
	h.dateRange(c, *start, *end, "")
}

// SearchRecent 最近 N 天
// @Summary 最近 N 天的内容
// @Tags Search
// @Produce json
// @Param days query int false "天数 1..30，默认 7"
// @Param q query string false "查询"
// @Param limit query int false "返回条数 1..100"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Router /api/v1/search/recent [get]
func (h *SearchHandler) SearchRecent(c *gin.Context) {
	days, err := dto.QueryInt(c, "days", 7, 1, 30)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	end := h.now()
	h.dateRange(c, end.AddDate(0, 0, -days), end, fmt.Sprintf("Last %d days", days))
}

// SearchToday 今天的内容
// @Summary 今天的内容
// @Tags Search
// @Produce json
// @Param q query string false "查询"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Router /api/v1/search/today [get]
func (h *SearchHandler) SearchToday(c *gin.Context) {
	end := h.now()
	start := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	h.dateRange(c, start, end, "Today")
}

func (h *SearchHandler) dateRange(c *gin.Context, start, end time.Time, period string) {
	started := time.Now()

	q := strings.TrimSpace(c.Query("q"))
	limit, err := dto.QueryInt(c, "limit", defaultSearchLimit, 1, maxSearchLimit)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	out, err := h.engine.SearchByDateRange(c.Request.Context(), start, end, q, limit, dto.QueryBool(c, "rerank", true))
	if err != nil {
		dto.HandleError(c, "search by date range", err)
		return
	}

	resp := dto.ToSearchResponse(out, started)
	resp.Query = q
	resp.Period = period
	resp.StartDate = &start
	resp.EndDate = &end
	resp.Debug = nil
	dto.Success(c, resp)
}

// QuickSearch 语音助手快速检索
// @Summary 快速检索
// @Description 前 3 条、不重排，返回适合朗读的简短回答
// @Tags Search
// @Produce json
// @Param query path string true "查询"
// @Success 200 {object} dto.Response[dto.QuickSearchResponse]
// @Router /api/v1/search/quick/{query} [get]
func (h *SearchHandler) QuickSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Param("query"))
	if q == "" {
		dto.BadRequest(c, "query is required")
		return
	}

	out, err := h.engine.Search(c.Request.Context(), retrieval.SearchInput{
		Query:  q,
		TopK:   quickSearchTopK,
		Rerank: false,
	})
	if err != nil {
		dto.HandleError(c, "quick search", err)
		return
	}
	dto.Success(c, dto.ToQuickSearchResponse(q, out))
}

// bindChunkFilter 从查询参数构建过滤条件，未设置时返回 nil
func bindChunkFilter(c *gin.Context) (*repository.ChunkFilter, error) {
	f := &repository.ChunkFilter{
		Speaker: strings.TrimSpace(c.Query("speaker")),
	}
	if kind := strings.TrimSpace(c.Query("source_kind")); kind != "" {
		sk := entity.SourceKind(strings.ToLower(kind))
		if !sk.Valid() {
			return nil, fmt.Errorf("unknown source_kind: %s", kind)
		}
		f.SourceKind = sk
	}

	start, err := dto.ParseDate(c.Query("start_date"), false)
	if err != nil {
		return nil, err
	}
	end, err := dto.ParseDate(c.Query("end_date"), true)
	if err != nil {
		return nil, err
	}
	if start != nil && end != nil && start.After(*end) {
		return nil, retrieval.ErrInvalidDateRange
	}
	f.CreatedAfter = start
	f.CreatedBefore = end

	if f.IsZero() {
		return nil, nil
	}
	return f, nil
}
