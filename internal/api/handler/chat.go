package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/iris_server/internal/api/middleware"
	"github.com/qs3c/iris_server/internal/model/dto"
	"github.com/qs3c/iris_server/internal/pkg/response"
	"github.com/qs3c/iris_server/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// Create 新建会话
// POST /api/v1/chats
func (h *ChatHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	chat, err := h.chatService.Create(userID, req.Title)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, chat)
}

// List 会话列表
// GET /api/v1/chats
func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ListChatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	chats, total, err := h.chatService.List(userID, req.Page, req.PageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, req.Page, req.PageSize, chats)
}

// Get 会话详情
// GET /api/v1/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的会话ID")
		return
	}

	chat, err := h.chatService.Get(userID, chatID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, chat)
}

// Delete 删除会话
// DELETE /api/v1/chats/:id
func (h *ChatHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的会话ID")
		return
	}

	if err := h.chatService.Delete(userID, chatID); err != nil {
		h.fail(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", nil)
}

// SendMessage 发送消息（计费）
// POST /api/v1/chats/:id/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的会话ID")
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.chatService.SendMessage(c.Request.Context(), userID, chatID, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, resp)
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	var insufficient *service.InsufficientCreditError
	switch {
	case errors.As(err, &insufficient):
		response.InsufficientCreditError(c, insufficient.Balance, insufficient.Required)
	case errors.Is(err, service.ErrChatNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrTooManyImages),
		errors.Is(err, service.ErrInvalidImage),
		errors.Is(err, service.ErrImageTooLarge),
		errors.Is(err, service.ErrStorageUnavailable):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrAIUnavailable):
		middleware.Logger(c).WithError(err).Warn("model call failed")
		response.UpstreamError(c, "")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	default:
		middleware.Logger(c).WithError(err).Error("chat request failed")
		response.ServerError(c, "")
	}
}
