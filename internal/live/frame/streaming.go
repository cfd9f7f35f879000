package frame

import (
	"fmt"
	"time"

	coreerrors "live-core/internal/core/errors"
)

// DefaultMaxLength 默认最大行数
const DefaultMaxLength = 1000

// Action 新数据的合并方式
type Action string

const (
	ActionAppend  Action = "append"
	ActionReplace Action = "replace"
)

// BufferOptions 流式缓冲选项
type BufferOptions struct {
	// MaxLength 最大保留行数，0 表示默认值
	MaxLength int `json:"maxLength,omitempty" yaml:"max_length"`
	// MaxDelta 时间字段的最大跨度，0 表示不限
	MaxDelta time.Duration `json:"maxDelta,omitempty" yaml:"max_delta"`
	Action   Action        `json:"action,omitempty" yaml:"action"`
}

func (o BufferOptions) withDefaults() BufferOptions {
	if o.MaxLength <= 0 {
		o.MaxLength = DefaultMaxLength
	}
	if o.Action == "" {
		o.Action = ActionAppend
	}
	return o
}

// Validate 校验选项
func (o BufferOptions) Validate() error {
	if o.MaxLength < 0 || o.MaxDelta < 0 {
		return coreerrors.New(coreerrors.CodeInvalidParam, "buffer limits must be >= 0")
	}
	switch o.Action {
	case "", ActionAppend, ActionReplace:
		return nil
	}
	return coreerrors.Newf(coreerrors.CodeInvalidParam, "unknown buffer action %q", o.Action)
}

// StreamingFrame 有界的流式数据帧，非并发安全，由单个聚合协程持有
type StreamingFrame struct {
	name   string
	refID  string
	fields []*Field
	opts   BufferOptions
}

// NewStreamingFrame 以首条消息创建流式帧
func NewStreamingFrame(msg *JSON, opts BufferOptions) (*StreamingFrame, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	f := &StreamingFrame{opts: opts.withDefaults()}
	if err := f.Push(msg); err != nil {
		return nil, err
	}
	return f, nil
}

// Options 生效的缓冲选项
func (f *StreamingFrame) Options() BufferOptions {
	return f.opts
}

// Width 字段数
func (f *StreamingFrame) Width() int {
	return len(f.fields)
}

// Length 行数
func (f *StreamingFrame) Length() int {
	if len(f.fields) == 0 {
		return 0
	}
	return len(f.fields[0].Values)
}

// Push 合并一条消息
//
// schema 与当前结构一致时保留已有数据，否则清空。data 按 Action 追加或替换后再按
// MaxLength 与 MaxDelta 裁剪。
func (f *StreamingFrame) Push(msg *JSON) error {
	if msg == nil {
		return nil
	}
	if msg.Schema != nil {
		f.applySchema(msg.Schema)
	}
	if msg.Data == nil || len(msg.Data.Values) == 0 {
		return nil
	}
	if len(f.fields) == 0 {
		f.inferFields(msg.Data.Values)
	}
	if len(msg.Data.Values) != len(f.fields) {
		return coreerrors.Newf(coreerrors.CodeInvalidData,
			"frame has %d fields but message has %d columns", len(f.fields), len(msg.Data.Values))
	}
	rows := len(msg.Data.Values[0])
	for i, col := range msg.Data.Values {
		if len(col) != rows {
			return coreerrors.Newf(coreerrors.CodeInvalidData, "column %d has %d values, expected %d", i, len(col), rows)
		}
	}

	for i, col := range msg.Data.Values {
		if f.opts.Action == ActionReplace {
			f.fields[i].Values = copyValues(col)
		} else {
			f.fields[i].Values = append(f.fields[i].Values, copyValues(col)...)
		}
	}
	f.trim()
	return nil
}

func (f *StreamingFrame) applySchema(schema *Schema) {
	f.name = schema.Name
	f.refID = schema.RefID
	if f.sameStructure(schema) {
		for i, fs := range schema.Fields {
			f.fields[i].Labels = copyLabels(fs.Labels)
			f.fields[i].Config = copyRaw(fs.Config)
		}
		return
	}
	fields := make([]*Field, len(schema.Fields))
	for i, fs := range schema.Fields {
		fields[i] = &Field{
			Name:   fs.Name,
			Type:   fs.Type,
			Labels: copyLabels(fs.Labels),
			Config: copyRaw(fs.Config),
			Values: []any{},
		}
	}
	f.fields = fields
}

func (f *StreamingFrame) sameStructure(schema *Schema) bool {
	if len(schema.Fields) != len(f.fields) {
		return false
	}
	for i, fs := range schema.Fields {
		if fs.Name != f.fields[i].Name || fs.Type != f.fields[i].Type {
			return false
		}
	}
	return true
}

// inferFields 无 schema 的首条数据按值推断字段
func (f *StreamingFrame) inferFields(values [][]any) {
	f.fields = make([]*Field, len(values))
	for i, col := range values {
		f.fields[i] = &Field{Name: fmt.Sprintf("Field %d", i+1), Type: guessType(col), Values: []any{}}
	}
}

func guessType(col []any) FieldType {
	for _, v := range col {
		switch v.(type) {
		case nil:
			continue
		case float64, int, int64:
			return FieldTypeNumber
		case string:
			return FieldTypeString
		case bool:
			return FieldTypeBoolean
		default:
			return FieldTypeOther
		}
	}
	return FieldTypeOther
}

func (f *StreamingFrame) trim() {
	drop := 0
	if n := f.Length(); n > f.opts.MaxLength {
		drop = n - f.opts.MaxLength
	}
	if f.opts.MaxDelta > 0 {
		if d := f.expiredRows(); d > drop {
			drop = d
		}
	}
	if drop == 0 {
		return
	}
	for _, field := range f.fields {
		kept := make([]any, len(field.Values)-drop)
		copy(kept, field.Values[drop:])
		field.Values = kept
	}
}

// expiredRows 时间字段早于 最新值-MaxDelta 的前缀行数，时间值为毫秒时间戳
func (f *StreamingFrame) expiredRows() int {
	var timeField *Field
	for _, field := range f.fields {
		if field.Type == FieldTypeTime {
			timeField = field
			break
		}
	}
	if timeField == nil || len(timeField.Values) == 0 {
		return 0
	}
	last, ok := toMillis(timeField.Values[len(timeField.Values)-1])
	if !ok {
		return 0
	}
	cutoff := last - float64(f.opts.MaxDelta.Milliseconds())
	n := 0
	for _, v := range timeField.Values {
		ts, ok := toMillis(v)
		if !ok || ts >= cutoff {
			break
		}
		n++
	}
	return n
}

func toMillis(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

// FieldIndexes 返回名称在 names 中的字段下标，保持帧内顺序；names 为空时返回全部
func (f *StreamingFrame) FieldIndexes(names []string) []int {
	var wanted map[string]struct{}
	if len(names) > 0 {
		wanted = make(map[string]struct{}, len(names))
		for _, n := range names {
			wanted[n] = struct{}{}
		}
	}
	indexes := make([]int, 0, len(f.fields))
	for i, field := range f.fields {
		if wanted != nil {
			if _, ok := wanted[field.Name]; !ok {
				continue
			}
		}
		indexes = append(indexes, i)
	}
	return indexes
}

// Snapshot 按字段下标深拷贝当前内容
func (f *StreamingFrame) Snapshot(indexes []int) *Frame {
	out := &Frame{Name: f.name, RefID: f.refID, Fields: make([]*Field, 0, len(indexes))}
	for _, i := range indexes {
		if i < 0 || i >= len(f.fields) {
			continue
		}
		out.Fields = append(out.Fields, f.fields[i].clone())
	}
	return out
}

// Schema 当前结构
func (f *StreamingFrame) Schema() *Schema {
	s := &Schema{Name: f.name, RefID: f.refID, Fields: make([]FieldSchema, len(f.fields))}
	for i, field := range f.fields {
		s.Fields[i] = field.schema()
	}
	return s
}
