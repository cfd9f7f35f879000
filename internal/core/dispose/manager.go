package dispose

import (
	"fmt"
	"sync"
	"time"
)

// DisposableFunc 函数适配为 Disposable
type DisposableFunc func() error

// Dispose 实现 Disposable
func (f DisposableFunc) Dispose() error {
	return f()
}

type namedResource struct {
	name     string
	resource Disposable
}

// ResourceManager 进程级资源表，按注册的相反顺序释放
type ResourceManager struct {
	mu        sync.Mutex
	entries   []namedResource
	current   string
	disposing bool
}

// NewResourceManager 创建资源管理器
func NewResourceManager() *ResourceManager {
	return &ResourceManager{}
}

// Register 注册资源，名称重复返回错误
func (rm *ResourceManager) Register(name string, resource Disposable) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for _, e := range rm.entries {
		if e.name == name {
			return fmt.Errorf("resource %s already registered", name)
		}
	}
	rm.entries = append(rm.entries, namedResource{name: name, resource: resource})
	debugf("Registered resource: %s", name)
	return nil
}

// ListResources 按注册顺序列出资源名称
func (rm *ResourceManager) ListResources() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	names := make([]string, 0, len(rm.entries))
	for _, e := range rm.entries {
		names = append(names, e.name)
	}
	return names
}

// DisposeAll 释放所有资源，释放中重复调用直接返回空结果
func (rm *ResourceManager) DisposeAll() *DisposeResult {
	rm.mu.Lock()
	if rm.disposing || len(rm.entries) == 0 {
		rm.mu.Unlock()
		return &DisposeResult{}
	}
	rm.disposing = true
	entries := rm.entries
	rm.entries = nil
	rm.mu.Unlock()

	result := &DisposeResult{}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		rm.setCurrent(e.name)
		if err := e.resource.Dispose(); err != nil {
			result.Errors = append(result.Errors, &DisposeError{
				HandlerIndex: len(entries) - 1 - i,
				ResourceName: e.name,
				Err:          err,
			})
			errorf("Failed to dispose resource %s: %v", e.name, err)
			continue
		}
		debugf("Disposed resource: %s", e.name)
	}
	rm.setCurrent("")

	rm.mu.Lock()
	rm.disposing = false
	rm.mu.Unlock()
	return result
}

func (rm *ResourceManager) setCurrent(name string) {
	rm.mu.Lock()
	rm.current = name
	rm.mu.Unlock()
}

// DisposeWithTimeout 限时释放，超时后剩余资源在后台继续释放
func (rm *ResourceManager) DisposeWithTimeout(timeout time.Duration) *DisposeResult {
	done := make(chan *DisposeResult, 1)
	go func() {
		done <- rm.DisposeAll()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-done:
		return result
	case <-timer.C:
		rm.mu.Lock()
		stuck := rm.current
		rm.mu.Unlock()
		return &DisposeResult{Errors: []*DisposeError{{
			HandlerIndex: -1,
			ResourceName: "timeout",
			Err:          fmt.Errorf("dispose timeout after %v (blocked on %q)", timeout, stuck),
		}}}
	}
}
