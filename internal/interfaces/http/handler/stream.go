package handler

import (
	"github.com/gin-gonic/gin"

	"recall-api/internal/application/answer"
	"recall-api/internal/interfaces/http/dto"
	"recall-api/pkg/logger"
)

const contentTypeEventStream = "text/event-stream"

// streamError 流中途失败时的终止事件
type streamError struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

// stream 以 SSE 输出回答；首个事件之前的错误仍按普通 JSON 错误返回
func (h *ChatHandler) stream(c *gin.Context, req *dto.ChatRequest) {
	in, err := req.ToAnswerRequest()
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	ctx := logger.WithContext(c.Request.Context(), logger.SessionIDKey, in.SessionID)

	started := false
	emit := func(ev answer.Event) error {
		if err := ctx.Err(); err != nil {
			// 客户端断开
			return err
		}
		if !started {
			started = true
			c.Header("Content-Type", contentTypeEventStream)
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
		}
		c.SSEvent("", ev)
		c.Writer.Flush()
		return nil
	}

	if _, err := h.answerer.Stream(ctx, in, emit); err != nil {
		if !started {
			dto.HandleError(c, "chat stream", err)
			return
		}
		if ctx.Err() != nil {
			logger.Debug(ctx, "chat stream closed by client")
			return
		}
		logger.Error(ctx, "chat stream interrupted", err)
		c.SSEvent("", streamError{Error: "stream interrupted", Done: true})
		c.Writer.Flush()
	}
}
