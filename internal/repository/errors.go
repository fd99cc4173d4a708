package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入或更新的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrTransient 表示底层存储的瞬时故障（超时、限流、连接中断），
	// 调用方可以在有界退避后重试
	ErrTransient = errors.New("repository: transient store error")
	// ErrCapacityExceeded 表示条件插入因房间成员数已达上限而被存储层拒绝
	ErrCapacityExceeded = errors.New("repository: room capacity exceeded")
)

// 特定资源的错误 (基于通用错误创建)
var (
	ErrUserNotFound       = ErrNotFound
	ErrRoomNotFound       = ErrNotFound
	ErrMembershipNotFound = ErrNotFound
	ErrMessageNotFound    = ErrNotFound
)
