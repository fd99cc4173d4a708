package service

import "errors"

// 服务层业务错误。除 ErrInternalServer 外都直接向调用方透出，不做内部重试；
// 仓库层的 ErrTransient 在 withRetry 中有界重试，耗尽后折叠为 ErrInternalServer。
var (
	ErrValidation           = errors.New("invalid input")
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrForbidden            = errors.New("not authorized for this action")
	ErrRoomFull             = errors.New("room is at maximum capacity")
	ErrConflict             = errors.New("operation would leave the room without an owner")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInternalServer       = errors.New("internal server error")
)
