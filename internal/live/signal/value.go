package signal

import (
	"sync"
)

// Value 可观察值，观察者订阅时立即收到当前值，之后收到每次变化
//
// 每个观察者的 channel 容量为 1，慢观察者只会看到最新值。
type Value[T comparable] struct {
	mu        sync.Mutex
	current   T
	nextID    uint64
	observers map[uint64]chan T
	closed    bool
}

// NewValue 创建带初始值的可观察值
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{current: initial, observers: make(map[uint64]chan T)}
}

// Get 返回当前值
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set 更新值，值未变化时不通知，返回是否发生变化
func (v *Value[T]) Set(next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.current == next {
		return false
	}
	v.current = next
	for _, ch := range v.observers {
		offerLatest(ch, next)
	}
	return true
}

// Watch 订阅变化，返回的 cancel 用于取消订阅并关闭 channel
func (v *Value[T]) Watch() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- v.current
	id := v.nextID
	v.nextID++
	v.observers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.observers[id]; ok {
				delete(v.observers, id)
				close(ch)
			}
		})
	}
}

// Close 关闭所有观察者 channel
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.observers {
		close(ch)
		delete(v.observers, id)
	}
}

// offerLatest 容量为 1 的 channel 上以新值替换旧值
func offerLatest[T any](ch chan T, val T) {
	for {
		select {
		case ch <- val:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
