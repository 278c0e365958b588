package dto

import "github.com/qs3c/iris_server/internal/model"

// CreateChatRequest 新建会话，标题为空时使用默认标题
type CreateChatRequest struct {
	Title string `json:"title" binding:"omitempty,max=200"`
}

// SendMessageRequest 发送消息，images 为 data URI 形式的图片
type SendMessageRequest struct {
	Content string   `json:"content" binding:"required,max=20000"`
	Images  []string `json:"images" binding:"omitempty,dive,required"`
}

// SendMessageResponse 一次问答产生的两条消息
type SendMessageResponse struct {
	UserMessage *model.Message `json:"user_message"`
	AIMessage   *model.Message `json:"ai_message"`
}

// ListChatsRequest 会话分页
type ListChatsRequest struct {
	Page     int `form:"page,default=1" binding:"min=1"`
	PageSize int `form:"page_size,default=20" binding:"min=1,max=100"`
}
