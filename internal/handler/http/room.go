package http

import (
	"net/http"
	"strconv"

	"campus-chat/internal/domain"
	"campus-chat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 封装房间与成员关系相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// CreateRoomRequest 定义创建房间的请求体
type CreateRoomRequest struct {
	Name          string `json:"name" binding:"required,min=1,max=128"`
	Type          string `json:"type" binding:"required"`
	MaxMembers    int    `json:"max_members"`
	HistoryPublic *bool  `json:"history_public"`
}

// CreateRoom 处理创建房间请求，创建者自动成为 owner 成员
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name and type required")
		return
	}

	// history_public 缺省为 true，指针区分 "未提供" 与 "显式 false"
	historyPublic := true
	if req.HistoryPublic != nil {
		historyPublic = *req.HistoryPublic
	}
	settings := domain.RoomSettings{
		MaxMembers:    req.MaxMembers,
		HistoryPublic: historyPublic,
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), userID, req.Name, domain.RoomType(req.Type), settings)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"room_id": room.ID, "creator_id": userID}).Info("Handler.CreateRoom: room created")
	SuccessResponse(c, http.StatusCreated, room)
}

// JoinRoom 处理加入房间请求，重复加入幂等返回已有成员关系
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	membership, err := h.roomService.JoinRoom(c.Request.Context(), userID, roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, membership)
}

// LeaveRoom 处理退出房间请求
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	if err := h.roomService.LeaveRoom(c.Request.Context(), userID, roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"message": "Left room"})
}

// ListMyRooms 返回当前用户加入的全部房间（含自身成员信息）
func (h *RoomHandler) ListMyRooms(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	offset, limit := pagination(c)

	rooms, err := h.roomService.GetUserRooms(c.Request.Context(), userID, offset, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// ListMembers 返回指定房间的成员列表，仅房间成员可见
func (h *RoomHandler) ListMembers(c *gin.Context) {
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

	SuccessResponse(c, http.StatusOK, gin.H{"members": members})
}

// TransferOwnershipRequest 定义移交房主的请求体
type TransferOwnershipRequest struct {
	NewOwnerID uint `json:"new_owner_id" binding:"required"`
}

// TransferOwnership 处理房主移交请求，只有当前 owner 可调用
func (h *RoomHandler) TransferOwnership(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "roomId")
	if !ok {
		return
	}

	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: new_owner_id required")
		return
	}

	if err := h.roomService.TransferOwnership(c.Request.Context(), userID, roomID, req.NewOwnerID); err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"room_id":      roomID,
		"old_owner_id": userID,
		"new_owner_id": req.NewOwnerID,
	}).Info("Handler.TransferOwnership: ownership transferred")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Ownership transferred"})
}

// pathID 从路径参数解析正整数 ID，解析失败时直接响应 400
func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		ErrorResponse(c, http.StatusBadRequest, "Invalid "+name+" format")
		return 0, false
	}
	return uint(id), true
}

// pagination 解析 offset/limit 查询参数，limit 的上限收敛交给 service 层
func pagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}
