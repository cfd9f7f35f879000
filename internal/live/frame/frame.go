package frame

import (
	"encoding/json"
)

// Field 带数据的字段
type Field struct {
	Name   string            `json:"name"`
	Type   FieldType         `json:"type,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	Config json.RawMessage   `json:"config,omitempty"`
	Values []any             `json:"values"`
}

// Frame 数据帧快照，与流式缓冲不共享内存
type Frame struct {
	Name   string   `json:"name,omitempty"`
	RefID  string   `json:"refId,omitempty"`
	Fields []*Field `json:"fields"`
}

// Length 行数
func (f *Frame) Length() int {
	if f == nil || len(f.Fields) == 0 {
		return 0
	}
	return len(f.Fields[0].Values)
}

// Field 按名称查找字段
func (f *Frame) Field(name string) *Field {
	for _, field := range f.Fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// FieldNames 字段名列表
func (f *Frame) FieldNames() []string {
	names := make([]string, len(f.Fields))
	for i, field := range f.Fields {
		names[i] = field.Name
	}
	return names
}

// ToJSON 转换为线格式，用于回放种子
func (f *Frame) ToJSON() *JSON {
	schema := &Schema{Name: f.Name, RefID: f.RefID, Fields: make([]FieldSchema, len(f.Fields))}
	data := &Data{Values: make([][]any, len(f.Fields))}
	for i, field := range f.Fields {
		schema.Fields[i] = FieldSchema{Name: field.Name, Type: field.Type, Labels: copyLabels(field.Labels), Config: copyRaw(field.Config)}
		data.Values[i] = copyValues(field.Values)
	}
	return &JSON{Schema: schema, Data: data}
}

func (f *Field) schema() FieldSchema {
	return FieldSchema{Name: f.Name, Type: f.Type, Labels: copyLabels(f.Labels), Config: copyRaw(f.Config)}
}

func (f *Field) clone() *Field {
	return &Field{
		Name:   f.Name,
		Type:   f.Type,
		Labels: copyLabels(f.Labels),
		Config: copyRaw(f.Config),
		Values: copyValues(f.Values),
	}
}

func copyLabels(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyRaw(in json.RawMessage) json.RawMessage {
	if in == nil {
		return nil
	}
	return append(json.RawMessage(nil), in...)
}

func copyValues(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = copyValue(v)
	}
	return out
}

// copyValue 深拷贝 JSON 解码出的值
func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		return copyValues(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case json.RawMessage:
		return copyRaw(t)
	default:
		return v
	}
}
