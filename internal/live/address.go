// Package live 定义实时通道的公共模型：通道地址、通道配置与连接状态
package live

import (
	"fmt"
	"strings"
	"unicode"

	coreerrors "live-core/internal/core/errors"
)

// Scope 通道作用域
type Scope string

const (
	ScopeGrafana    Scope = "grafana"
	ScopePlugin     Scope = "plugin"
	ScopeDatasource Scope = "ds"
	ScopeStream     Scope = "stream"
)

// IsValid 是否为已知作用域
func (s Scope) IsValid() bool {
	switch s {
	case ScopeGrafana, ScopePlugin, ScopeDatasource, ScopeStream:
		return true
	}
	return false
}

// Address 通道地址，构造后不可变
type Address struct {
	Scope     Scope  `json:"scope" yaml:"scope"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Path      string `json:"path" yaml:"path"`
}

// NewAddress 创建通道地址
func NewAddress(scope Scope, namespace, path string) Address {
	return Address{Scope: scope, Namespace: namespace, Path: path}
}

// ParseAddress 解析 "scope/namespace/path" 形式的地址，path 可以包含 '/'
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) != 3 {
		return Address{}, coreerrors.Newf(coreerrors.CodeInvalidAddress,
			"address %q must have the form scope/namespace/path", s)
	}
	addr := NewAddress(Scope(parts[0]), parts[1], parts[2])
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Validate 校验地址
func (a Address) Validate() error {
	if a.Scope == "" || a.Namespace == "" || a.Path == "" {
		return coreerrors.Newf(coreerrors.CodeInvalidAddress,
			"scope, namespace and path are required (got %q)", a.String())
	}
	if !a.Scope.IsValid() {
		return coreerrors.Newf(coreerrors.CodeInvalidAddress, "unknown scope %q", a.Scope)
	}
	if strings.Contains(a.Namespace, "/") {
		return coreerrors.Newf(coreerrors.CodeInvalidAddress, "namespace %q must not contain '/'", a.Namespace)
	}
	if strings.IndexFunc(a.Namespace+a.Path, unicode.IsSpace) >= 0 {
		return coreerrors.Newf(coreerrors.CodeInvalidAddress, "address %q contains whitespace", a.String())
	}
	for _, seg := range strings.Split(a.Path, "/") {
		if seg == "" {
			return coreerrors.Newf(coreerrors.CodeInvalidAddress, "path %q has an empty segment", a.Path)
		}
	}
	return nil
}

// String 返回 "scope/namespace/path"
func (a Address) String() string {
	return fmt.Sprintf("%s/%s/%s", a.Scope, a.Namespace, a.Path)
}

// ID 返回带组织前缀的通道 ID，同时用作注册表键和传输层通道名
func (a Address) ID(orgID int64) string {
	return fmt.Sprintf("%d/%s", orgID, a.String())
}

// ParseChannelID 解析 "orgID/scope/namespace/path" 形式的通道 ID
func ParseChannelID(id string) (int64, Address, error) {
	orgPart, rest, ok := strings.Cut(id, "/")
	if !ok {
		return 0, Address{}, coreerrors.Newf(coreerrors.CodeInvalidAddress, "channel id %q has no org prefix", id)
	}
	var orgID int64
	if _, err := fmt.Sscanf(orgPart, "%d", &orgID); err != nil {
		return 0, Address{}, coreerrors.Wrapf(err, coreerrors.CodeInvalidAddress, "channel id %q has invalid org prefix", id)
	}
	addr, err := ParseAddress(rest)
	if err != nil {
		return 0, Address{}, err
	}
	return orgID, addr, nil
}
