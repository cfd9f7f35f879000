package transport

import (
	"sort"
	"sync"
	"time"

	coreerrors "live-core/internal/core/errors"

	"github.com/filecoin-project/go-clock"
)

// Options 传输层创建参数
type Options struct {
	// URL 应用地址或 websocket 地址
	URL              string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Clock            clock.Clock
}

// Factory 传输层构造函数
type Factory func(opts Options) (Transport, error)

// Info 已注册的传输实现
type Info struct {
	Name     string
	Priority int // 数字越小优先级越高
	Factory  Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Info)
)

// Register 注册传输实现
func Register(name string, priority int, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = &Info{Name: name, Priority: priority, Factory: factory}
}

// Lookup 按名称查找
func Lookup(name string) (*Info, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[name]
	return info, ok
}

// Registered 按优先级返回所有实现
func Registered() []*Info {
	registryMu.RLock()
	infos := make([]*Info, 0, len(registry))
	for _, info := range registry {
		infos = append(infos, info)
	}
	registryMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Priority == infos[j].Priority {
			return infos[i].Name < infos[j].Name
		}
		return infos[i].Priority < infos[j].Priority
	})
	return infos
}

// Names 按优先级返回实现名称
func Names() []string {
	infos := Registered()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// New 创建指定名称的传输层
func New(name string, opts Options) (Transport, error) {
	info, ok := Lookup(name)
	if !ok {
		return nil, coreerrors.Newf(coreerrors.CodeInvalidConfig, "transport %q is not registered (available: %v)", name, Names())
	}
	return info.Factory(opts)
}
