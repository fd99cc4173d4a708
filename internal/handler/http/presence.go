package http

import (
	"net/http"

	"campus-chat/internal/domain"
	"campus-chat/internal/service"

	"github.com/gin-gonic/gin"
)

// PresenceHandler 封装在线状态上报与查询的 HTTP 处理逻辑
type PresenceHandler struct {
	presenceService *service.PresenceService
	roomService     *service.RoomService
}

// NewPresenceHandler 创建 PresenceHandler 实例
func NewPresenceHandler(presenceService *service.PresenceService, roomService *service.RoomService) *PresenceHandler {
	if presenceService == nil || roomService == nil {
		panic("PresenceService and RoomService cannot be nil for PresenceHandler")
	}
	return &PresenceHandler{presenceService: presenceService, roomService: roomService}
}

// HeartbeatRequest 定义心跳上报的请求体
type HeartbeatRequest struct {
	Status string `json:"status" binding:"required"`
	RoomID *uint  `json:"room_id"`
}

// Heartbeat 处理客户端心跳，刷新在线状态与 TTL
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: status required")
		return
	}

	presence, err := h.presenceService.Heartbeat(c.Request.Context(), userID, domain.PresenceStatus(req.Status), req.RoomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, presence)
}

// Offline 处理客户端显式下线
func (h *PresenceHandler) Offline(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.presenceService.Offline(c.Request.Context(), userID); err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"message": "Offline"})
}

// RoomPresence 返回指定房间全部成员的在线状态，仅房间成员可见。
// 缺失的心跳记录按 offline 补齐，调用方不需要区分 "没上报过" 和 "已过期"。
func (h *PresenceHandler) RoomPresence(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	offset, limit := pagination(c)
	members, err := h.roomService.GetRoomMembers(c.Request.Context(), userID, roomID, offset, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	userIDs := make([]uint, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}

	presences, err := h.presenceService.GetBatch(c.Request.Context(), userIDs)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"presence": presences})
}
