// Package frame 定义结构化数据帧的线格式与流式缓冲
package frame

import (
	"encoding/json"

	coreerrors "live-core/internal/core/errors"
)

// FieldType 字段类型
type FieldType string

const (
	FieldTypeTime    FieldType = "time"
	FieldTypeNumber  FieldType = "number"
	FieldTypeString  FieldType = "string"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeOther   FieldType = "other"
)

// FieldSchema 字段描述
type FieldSchema struct {
	Name   string            `json:"name"`
	Type   FieldType         `json:"type,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	Config json.RawMessage   `json:"config,omitempty"`
}

// Schema 帧结构描述
type Schema struct {
	Name   string          `json:"name,omitempty"`
	RefID  string          `json:"refId,omitempty"`
	Meta   json.RawMessage `json:"meta,omitempty"`
	Fields []FieldSchema   `json:"fields"`
}

// Data 按列存储的帧数据，Values[i] 对应第 i 个字段
type Data struct {
	Values [][]any `json:"values"`
}

// JSON 帧线格式，schema 与 data 均可省略
type JSON struct {
	Schema *Schema `json:"schema,omitempty"`
	Data   *Data   `json:"data,omitempty"`
}

// Parse 解析帧 JSON
func Parse(raw []byte) (*JSON, error) {
	var msg JSON
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidData, "decode frame json")
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// HasSchema 是否携带 schema
func (m *JSON) HasSchema() bool {
	return m != nil && m.Schema != nil
}

// Marshal 编码为 JSON
func (m *JSON) Marshal() (json.RawMessage, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeInvalidData, "encode frame json")
	}
	return raw, nil
}

// Rows 数据行数，列长度不一致时返回最短列
func (d *Data) Rows() int {
	if d == nil || len(d.Values) == 0 {
		return 0
	}
	rows := len(d.Values[0])
	for _, col := range d.Values[1:] {
		if len(col) < rows {
			rows = len(col)
		}
	}
	return rows
}

func (m *JSON) validate() error {
	if m.Schema != nil && m.Data != nil && len(m.Data.Values) > 0 && len(m.Data.Values) != len(m.Schema.Fields) {
		return coreerrors.Newf(coreerrors.CodeInvalidData,
			"schema has %d fields but data has %d columns", len(m.Schema.Fields), len(m.Data.Values))
	}
	if m.Data != nil && len(m.Data.Values) > 0 {
		rows := len(m.Data.Values[0])
		for i, col := range m.Data.Values {
			if len(col) != rows {
				return coreerrors.Newf(coreerrors.CodeInvalidData,
					"column %d has %d values, expected %d", i, len(col), rows)
			}
		}
	}
	return nil
}
