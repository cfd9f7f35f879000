package dispose

import (
	"context"
)

// ResourceBase 通用资源管理基类
type ResourceBase struct {
	Dispose
	name string
}

// NewResourceBase 创建新的资源基类
func NewResourceBase(name string) *ResourceBase {
	return &ResourceBase{name: name}
}

// Initialize 初始化资源，设置上下文和清理回调
func (r *ResourceBase) Initialize(parentCtx context.Context) {
	r.SetCtx(parentCtx, r.onClose)
}

func (r *ResourceBase) onClose() error {
	debugf("%s resources cleaned up", r.name)
	return nil
}

// GetName 获取资源名称
func (r *ResourceBase) GetName() string {
	return r.name
}

// Close 关闭资源，返回第一个清理错误
func (r *ResourceBase) Close() error {
	return r.Dispose.CloseWithError()
}

// ServiceBase 长生命周期服务的基类
type ServiceBase struct {
	*ResourceBase
}

// ManagerBase 管理器基类
type ManagerBase struct {
	*ResourceBase
}

// NewService 创建并初始化服务基类
func NewService(name string, parentCtx context.Context) *ServiceBase {
	s := &ServiceBase{ResourceBase: NewResourceBase(name)}
	s.Initialize(parentCtx)
	return s
}

// NewManager 创建并初始化管理器基类
func NewManager(name string, parentCtx context.Context) *ManagerBase {
	m := &ManagerBase{ResourceBase: NewResourceBase(name)}
	m.Initialize(parentCtx)
	return m
}
