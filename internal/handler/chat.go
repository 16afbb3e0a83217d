package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mint/internal/model"
	apihttp "mint/internal/pkg/http"
	"mint/internal/service"
)

// TurnProcessor 单轮处理（service.Orchestrator）
type TurnProcessor interface {
	HandleTurn(ctx context.Context, userID, messageID, message string) (service.TurnResult, error)
}

// ChatHandler 对话处理器
type ChatHandler struct {
	turns TurnProcessor
}

// NewChatHandler 创建对话处理器
func NewChatHandler(turns TurnProcessor) *ChatHandler {
	return &ChatHandler{turns: turns}
}

// Chat 对话接口
// @Summary      发送一条用户消息
// @Description  处理一轮对话：阶段判定、上下文压缩、提示词组装、调用模型、整形与记账
// @Tags         对话
// @Accept       json
// @Produce      json
// @Param        request  body      model.ChatRequest  true  "对话请求"
// @Success      200      {object}  apihttp.SuccessResponse{data=model.ChatResponse}
// @Failure      400      {object}  apihttp.ErrorResponse
// @Failure      500      {object}  apihttp.ErrorResponse
// @Failure      503      {object}  apihttp.ErrorResponse
// @Router       /api/v1/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apihttp.NewErrorResponse(apihttp.CodeInvalidBody, "Invalid request body", err.Error()))
		return
	}

	// 客户端断开不中断本轮，避免模型已回复但上下文未保存
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := h.turns.HandleTurn(ctx, req.UserID, req.MessageID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidMessage):
			c.JSON(http.StatusBadRequest, apihttp.NewErrorResponse(apihttp.CodeInvalidMessage, "Invalid message", err.Error()))
		case errors.Is(err, service.ErrServiceUnavailable):
			c.JSON(http.StatusServiceUnavailable, apihttp.NewErrorResponse(apihttp.CodeUnavailable, res.Reply))
		default:
			c.JSON(http.StatusInternalServerError, apihttp.NewErrorResponse(apihttp.CodeTurnFailed, res.Reply))
		}
		return
	}

	c.JSON(http.StatusOK, apihttp.NewSuccessResponse("success", model.ChatResponse{
		Message:       res.Reply,
		Stage:         res.Stage,
		TokenEstimate: res.TokenEstimate,
		Efficiency:    res.Efficiency,
		Duplicate:     res.Duplicate,
		Usage:         res.Usage,
	}))
}
