package service

import (
	"context"
	"errors"
	"time"

	"campus-chat/internal/repository"

	"github.com/sirupsen/logrus"
)

// RetryPolicy 控制对仓库层瞬时错误的内部重试。
// 只有 repository.ErrTransient 会被重试；业务错误立即透出。
type RetryPolicy struct {
	MaxAttempts int           // 总尝试次数（含首次），<=0 时取 3
	BaseDelay   time.Duration // 首次重试前的等待，之后指数增长，<=0 时取 50ms
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (p RetryPolicy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return 50 * time.Millisecond
	}
	return p.BaseDelay
}

// withRetry 执行 fn，遇到 repository.ErrTransient 时按指数退避重试。
// 重试耗尽后返回最后一次的错误，由调用方折叠为 ErrInternalServer。
func withRetry(ctx context.Context, logCtx *logrus.Entry, policy RetryPolicy, fn func() error) error {
	var err error
	delay := policy.baseDelay()
	for attempt := 1; attempt <= policy.attempts(); attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, repository.ErrTransient) {
			return err
		}
		if attempt == policy.attempts() {
			break
		}
		logCtx.WithError(err).Warnf("Transient store error, retrying (attempt %d/%d)", attempt, policy.attempts())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	logCtx.WithError(err).Errorf("Transient store error persisted after %d attempts", policy.attempts())
	return err
}
