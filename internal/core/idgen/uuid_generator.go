// Package idgen 会话与客户端 id 生成
package idgen

import (
	"github.com/google/uuid"
)

// id 前缀
const (
	PrefixSession = "sess_"
	PrefixClient  = "cli_"
)

// UUIDGenerator 基于 UUID v7 的 ID 生成器，时间有序，无需集中登记
type UUIDGenerator struct {
	prefix string
}

// NewUUIDGenerator 创建 UUID 生成器
func NewUUIDGenerator(prefix string) *UUIDGenerator {
	return &UUIDGenerator{prefix: prefix}
}

// Generate 生成唯一 ID
func (g *UUIDGenerator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		// 系统随机源异常时退回 v4
		id = uuid.New()
	}
	return g.prefix + id.String()
}

// Prefix 生成器前缀
func (g *UUIDGenerator) Prefix() string {
	return g.prefix
}
