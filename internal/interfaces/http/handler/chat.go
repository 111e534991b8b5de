package handler

import (
	"github.com/gin-gonic/gin"

	"recall-api/internal/interfaces/http/dto"
	"recall-api/pkg/logger"
)

// ChatHandler 问答处理器
type ChatHandler struct {
	answerer Answerer
	models   ModelCatalog
}

// NewChatHandler 创建问答处理器
func NewChatHandler(answerer Answerer, models ModelCatalog) *ChatHandler {
	return &ChatHandler{
		answerer: answerer,
		models:   models,
	}
}

// Chat 提问
// @Summary 提问
// @Description 基于个人知识库回答问题；stream=true 时以 SSE 返回
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.ChatRequest true "提问请求"
// @Success 200 {object} dto.Response[answer.Response]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Stream {
		h.stream(c, &req)
		return
	}

	in, err := req.ToAnswerRequest()
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.SessionIDKey, in.SessionID)
	resp, err := h.answerer.Ask(ctx, in)
	if err != nil {
		dto.HandleError(c, "chat", err)
		return
	}
	dto.Success(c, resp)
}

// ChatStream 流式提问
// @Summary 流式提问
// @Description 始终以 SSE 返回：data: {"text": ...}，以 {"done": true, "model_used": ...} 结束
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param body body dto.ChatRequest true "提问请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/chat/stream [post]
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.stream(c, &req)
}

// Models 可用模型
// @Summary 可用模型
// @Tags Chat
// @Produce json
// @Success 200 {object} dto.Response[dto.ModelsResponse]
// @Router /api/v1/chat/models [get]
func (h *ChatHandler) Models(c *gin.Context) {
	tiers := h.answerer.Tiers()
	var served []string
	if h.models != nil {
		served = h.models.Served()
	}
	if served == nil {
		served = []string{}
	}
	dto.Success(c, &dto.ModelsResponse{
		Models:  served,
		Tiers:   tiers,
		Default: tiers.Default,
	})
}
