package http

import (
	"net/http"
	"strconv"

	"campus-chat/internal/domain"
	"campus-chat/internal/service"

	"github.com/gin-gonic/gin"
)

// MessageHandler 封装消息收发、编辑、检索相关的 HTTP 处理逻辑
type MessageHandler struct {
	messageService *service.MessageService
}

// NewMessageHandler 创建 MessageHandler 实例
func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	if messageService == nil {
		panic("MessageService cannot be nil for MessageHandler")
	}
	return &MessageHandler{messageService: messageService}
}

// SendMessageRequest 定义发送消息的请求体
type SendMessageRequest struct {
	Body    string `json:"body" binding:"required"`
	Type    string `json:"type"`
	ReplyTo *uint  `json:"reply_to"`
}

// SendMessage 处理发送消息请求，消息序号由服务端分配
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: body required")
		return
	}

	msgType := domain.MessageTypeText
	if req.Type != "" {
		msgType = domain.MessageType(req.Type)
	}

	msg, err := h.messageService.SendMessage(c.Request.Context(), userID, roomID, req.Body, msgType, req.ReplyTo)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, msg)
}

// ListMessages 按序号游标分页返回房间历史消息
func (h *MessageHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	afterSeq, _ := strconv.ParseUint(c.DefaultQuery("after_seq", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.messageService.ListMessages(c.Request.Context(), userID, roomID, afterSeq, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"messages": messages})
}

// EditMessageRequest 定义编辑消息的请求体
type EditMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// EditMessage 处理编辑消息请求，仅作者本人可编辑
func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: body required")
		return
	}

	msg, err := h.messageService.EditMessage(c.Request.Context(), userID, messageID, req.Body)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, msg)
}

// DeleteMessage 处理删除消息请求，作者或具备管理权限的成员可删除
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}

	if err := h.messageService.DeleteMessage(c.Request.Context(), userID, messageID); err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"message": "Message deleted"})
}

// SearchMessages 在指定房间内做关键词检索
func (h *MessageHandler) SearchMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		ErrorResponse(c, http.StatusBadRequest, "Query parameter 'q' required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	messages, err := h.messageService.SearchMessages(c.Request.Context(), userID, roomID, query, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"messages": messages})
}
