// Package notify はPostgreSQLのLISTEN/NOTIFYによる変更通知を提供する。
// トリガーが発行するチャネルを購読し、登録されたコールバックへ配送する。
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AvailabilityChannel は選択日テーブルの変更トリガーが通知するチャネル名。
const AvailabilityChannel = "availability_changed"

// pingInterval は通知が途絶えた際に接続を確認する間隔。
const pingInterval = 90 * time.Second

// Listener はpq.Listenerをラップし、複数の購読者へ変更通知をファンアウトする。
// 通知ペイロードは使用しない。変更があったという事実のみを配送する。
type Listener struct {
	pl     *pq.Listener
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[string]func()
}

// NewListener はListenerの新しいインスタンスを生成する。
// 接続断時はminReconnectからmaxReconnectまで指数バックオフで再接続する。
func NewListener(databaseURL string, minReconnect, maxReconnect time.Duration, logger *slog.Logger) *Listener {
	l := &Listener{
		logger:      logger,
		subscribers: make(map[string]func()),
	}
	l.pl = pq.NewListener(databaseURL, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Error("通知リスナーの接続に失敗しました",
				slog.String("error", err.Error()),
			)
		case pq.ListenerEventReconnected:
			logger.Info("通知リスナーが再接続しました")
		case pq.ListenerEventDisconnected:
			logger.Warn("通知リスナーが切断されました",
				slog.String("error", err.Error()),
			)
		}
	})
	return l
}

// Subscribe はコールバックを登録し、解除用のハンドルを返す。
// コールバックは配送ゴルーチンから直接呼ばれるため、ブロックしてはならない。
func (l *Listener) Subscribe(fn func()) string {
	handle := uuid.NewString()
	l.mu.Lock()
	l.subscribers[handle] = fn
	l.mu.Unlock()
	return handle
}

// Unsubscribe はSubscribeで登録したコールバックを解除する。
// 未知のハンドルは無視する。
func (l *Listener) Unsubscribe(handle string) {
	l.mu.Lock()
	delete(l.subscribers, handle)
	l.mu.Unlock()
}

// Start はチャネルの購読を開始し、コンテキストがキャンセルされるまで
// 通知を配送し続ける。再接続後にpq.Listenerが送るnil通知も変更として扱う。
// 切断中に発生した変更を取りこぼす可能性があるためである。
func (l *Listener) Start(ctx context.Context) error {
	if err := l.pl.Listen(AvailabilityChannel); err != nil {
		return fmt.Errorf("failed to listen on channel %s: %w", AvailabilityChannel, err)
	}

	l.logger.Info("変更通知リスナーを開始しました",
		slog.String("channel", AvailabilityChannel),
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("変更通知リスナーを停止しました")
			return l.pl.Close()
		case <-l.pl.Notify:
			l.dispatch()
		case <-time.After(pingInterval):
			if err := l.pl.Ping(); err != nil {
				l.logger.Warn("通知リスナーの接続確認に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// dispatch は現在の購読者全員へ通知を配送する。
func (l *Listener) dispatch() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.subscribers))
	for _, fn := range l.subscribers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
