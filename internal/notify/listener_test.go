package notify

import (
	"sync/atomic"
	"testing"
)

// SubscribeとUnsubscribeで購読者が増減することを検証
func TestListener_SubscribeUnsubscribe(t *testing.T) {
	l := &Listener{subscribers: make(map[string]func())}

	var count atomic.Int32
	h1 := l.Subscribe(func() { count.Add(1) })
	h2 := l.Subscribe(func() { count.Add(1) })

	if h1 == h2 {
		t.Fatal("expected distinct handles")
	}

	l.dispatch()
	if got := count.Load(); got != 2 {
		t.Errorf("dispatch count = %d, want 2", got)
	}

	l.Unsubscribe(h1)
	l.dispatch()
	if got := count.Load(); got != 3 {
		t.Errorf("dispatch count = %d, want 3", got)
	}

	l.Unsubscribe(h2)
	l.dispatch()
	if got := count.Load(); got != 3 {
		t.Errorf("dispatch count after full unsubscribe = %d, want 3", got)
	}
}

// 未知のハンドルのUnsubscribeがpanicしないことを検証
func TestListener_UnsubscribeUnknownHandle(t *testing.T) {
	l := &Listener{subscribers: make(map[string]func())}
	l.Unsubscribe("no-such-handle")
}

// 購読者ゼロでのdispatchが安全であることを検証
func TestListener_DispatchWithoutSubscribers(t *testing.T) {
	l := &Listener{subscribers: make(map[string]func())}
	l.dispatch()
}
