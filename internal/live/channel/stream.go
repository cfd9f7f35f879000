package channel

import (
	"sync"

	"live-core/internal/core/events"
)

// Stream 通道事件流，每个消费者一个独立的有界队列
type Stream struct {
	id      uint64
	channel *Channel

	mu     sync.Mutex
	ch     chan events.Event
	err    error
	closed bool
}

func newStream(id uint64, c *Channel, size int) *Stream {
	return &Stream{id: id, channel: c, ch: make(chan events.Event, size)}
}

// Events 事件 channel，流结束时关闭
func (s *Stream) Events() <-chan events.Event {
	return s.ch
}

// Err 流结束原因，正常完成时为 nil
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close 取消订阅，只影响当前消费者
func (s *Stream) Close() {
	if s.channel != nil {
		s.channel.removeStream(s.id)
	}
	s.finish(nil)
}

// offer 非阻塞投递，队列满时返回 false
func (s *Stream) offer(ev events.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}
