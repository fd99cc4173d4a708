package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"campus-chat/internal/repository"
)

// mapWriteError 将 GORM/driver 层的写入错误映射为仓库层错误。
// MySQL 1062 (唯一约束冲突) → ErrDuplicateEntry；
// 超时/连接类错误 → ErrTransient，调用方可退避重试。
func mapWriteError(err error, op string) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062:
			return repository.ErrDuplicateEntry
		case 1205, 1213: // lock wait timeout, deadlock
			return fmt.Errorf("gorm: %s: %v: %w", op, err, repository.ErrTransient)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("gorm: %s: %v: %w", op, err, repository.ErrTransient)
	}
	return fmt.Errorf("gorm: %s: %w", op, err)
}
