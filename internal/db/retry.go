package db

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// 最多重试 3 次，间隔 50ms、100ms、200ms
	maxRetries  = 3
	baseBackoff = 50 * time.Millisecond
)

// Retry 执行一次存储操作，遇到瞬时锁竞争时按指数退避重试。
// 其他错误立即返回；重试耗尽后返回最后一次的原始错误。
func Retry(ctx context.Context, op func(context.Context) error) error {
	return retryWith(ctx, isTransient, op)
}

// RetryResult 与 Retry 相同，但操作会返回一个值。
func RetryResult[T any](ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := Retry(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsTransient 报告 err 是否为可重试的 SQLITE_BUSY / SQLITE_LOCKED 类错误。
func IsTransient(err error) bool {
	return err != nil && isTransient(err)
}

func retryWith(ctx context.Context, transient func(error) bool, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(baseBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
