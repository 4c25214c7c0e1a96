package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig はキャッシュ用サーキットブレーカーの設定。
type BreakerConfig struct {
	// ConsecutiveFailures はオープン状態に遷移する連続失敗回数。
	ConsecutiveFailures uint32
	// Timeout はオープン状態からハーフオープン状態に移るまでの時間。
	Timeout time.Duration
}

// DefaultBreakerConfig は連続5回の失敗で30秒間キャッシュを迂回する設定を返す。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
	}
}

// BreakerCache はサーキットブレーカーで保護されたCache。
// Redis障害時はオープン状態の間、接続を試みずに即座にエラーを返す。
type BreakerCache struct {
	next    Cache
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerCache はnextをサーキットブレーカーで包んだBreakerCacheを生成する。
func NewBreakerCache(next Cache, cfg BreakerConfig) *BreakerCache {
	settings := gobreaker.Settings{
		Name:        "content-cache",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// 呼び出し元のキャンセルはキャッシュ障害として数えない
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &BreakerCache{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Get はブレーカー経由でキャッシュを参照する。
func (b *BreakerCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key, dst)
	})
	if err != nil {
		return false, fmt.Errorf("content cache get: %w", err)
	}
	return res.(bool), nil
}

// Set はブレーカー経由でキャッシュに保存する。
func (b *BreakerCache) Set(ctx context.Context, key string, value any) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, key, value)
	})
	if err != nil {
		return fmt.Errorf("content cache set: %w", err)
	}
	return nil
}

// State はブレーカーの現在の状態を返す。
func (b *BreakerCache) State() gobreaker.State {
	return b.breaker.State()
}

var _ Cache = (*BreakerCache)(nil)
