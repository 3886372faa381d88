package availability

import (
	"sync"
	"time"
)

// DefaultDebounceWindow はデバウンスウィンドウの既定値。
// ドラッグ選択や連続クリックによる変更バーストを1回の再計算にまとめる。
const DefaultDebounceWindow = 100 * time.Millisecond

// Debouncer は短時間に連続するトリガーを1回の遅延実行にまとめる。
// 保留中の実行は常に最大1つであり、新しいトリガーはウィンドウをリセットする。
// コールバックはウィンドウ経過時点の最新状態に対して実行される
// （コールバック自身が最新スナップショットを取得する責任を持つ）。
// 部分的な実行は発生しない。発火したコールバックは必ず完了まで実行される。
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer は指定されたウィンドウとコールバックを持つDebouncerを生成する。
// windowが0以下の場合はDefaultDebounceWindowを使用する。
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window, fn: fn}
}

// Trigger は遅延実行を予約する。保留中の実行がある場合はウィンドウをリセットし、
// ウィンドウ内の最後の状態だけが計算されるようにする。
// Stop後のTriggerは何もしない。
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// fire はウィンドウ経過時にコールバックを実行する。
func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Stop は保留中の実行をキャンセルし、以降のTriggerを無効化する。
// コンポーネントの破棄時に呼び出す。冪等。
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
