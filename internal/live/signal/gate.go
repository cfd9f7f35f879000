// Package signal 提供一次性门与可观察值两种广播原语
package signal

import (
	"context"
	"sync"
)

// Gate 一次性门，打开后永久保持打开，任意数量的等待者同时被唤醒
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate 创建关闭状态的门
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// NewOpenGate 创建已打开的门
func NewOpenGate() *Gate {
	g := NewGate()
	g.Open()
	return g
}

// Open 打开门，重复调用无副作用
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// Done 门打开时关闭的 channel
func (g *Gate) Done() <-chan struct{} {
	return g.ch
}

// IsOpen 是否已打开
func (g *Gate) IsOpen() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait 等待门打开或 ctx 结束
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
