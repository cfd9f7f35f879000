package frame

import (
	"testing"
	"time"

	coreerrors "live-core/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schemaMsg(rows int, start float64) *JSON {
	ts := make([]any, rows)
	vals := make([]any, rows)
	for i := 0; i < rows; i++ {
		ts[i] = start + float64(i)
		vals[i] = float64(i)
	}
	return &JSON{
		Schema: &Schema{Name: "cpu", Fields: []FieldSchema{
			{Name: "time", Type: FieldTypeTime},
			{Name: "value", Type: FieldTypeNumber},
		}},
		Data: &Data{Values: [][]any{ts, vals}},
	}
}

func dataMsg(rows int, start float64) *JSON {
	msg := schemaMsg(rows, start)
	msg.Schema = nil
	return msg
}

func TestParse(t *testing.T) {
	msg, err := Parse([]byte(`{"schema":{"name":"x","fields":[{"name":"t","type":"time"},{"name":"v","type":"number"}]},"data":{"values":[[1,2],[3,4]]}}`))
	require.NoError(t, err)
	assert.True(t, msg.HasSchema())
	assert.Equal(t, 2, msg.Data.Rows())

	_, err = Parse([]byte(`{"schema":{"fields":[{"name":"t"}]},"data":{"values":[[1],[2]]}}`))
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidData))

	_, err = Parse([]byte(`{"data":{"values":[[1,2],[3]]}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestStreamingFrame_CapacityAcrossPushes(t *testing.T) {
	f, err := NewStreamingFrame(schemaMsg(50, 0), BufferOptions{MaxLength: 100})
	require.NoError(t, err)
	require.NoError(t, f.Push(dataMsg(50, 50)))
	require.NoError(t, f.Push(dataMsg(50, 100)))

	assert.Equal(t, 100, f.Length())
	snap := f.Snapshot(f.FieldIndexes(nil))
	assert.Equal(t, 50.0, snap.Field("time").Values[0])
	assert.Equal(t, 149.0, snap.Field("time").Values[99])
}

func TestStreamingFrame_Replace(t *testing.T) {
	f, err := NewStreamingFrame(schemaMsg(3, 0), BufferOptions{Action: ActionReplace})
	require.NoError(t, err)
	require.NoError(t, f.Push(dataMsg(2, 10)))
	assert.Equal(t, 2, f.Length())
}

func TestStreamingFrame_MaxDelta(t *testing.T) {
	f, err := NewStreamingFrame(schemaMsg(10, 0), BufferOptions{MaxDelta: 5 * time.Millisecond})
	require.NoError(t, err)
	// 最新时间戳 9，保留 >= 4 的行
	assert.Equal(t, 6, f.Length())
}

func TestStreamingFrame_SchemaChange(t *testing.T) {
	f, err := NewStreamingFrame(schemaMsg(5, 0), BufferOptions{})
	require.NoError(t, err)

	// 结构不变的 schema 保留数据
	require.NoError(t, f.Push(schemaMsg(1, 5)))
	assert.Equal(t, 6, f.Length())

	wider := &JSON{Schema: &Schema{Fields: []FieldSchema{
		{Name: "time", Type: FieldTypeTime},
		{Name: "value", Type: FieldTypeNumber},
		{Name: "host", Type: FieldTypeString},
	}}}
	require.NoError(t, f.Push(wider))
	assert.Equal(t, 3, f.Width())
	assert.Equal(t, 0, f.Length())

	err = f.Push(dataMsg(1, 0))
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidData))
}

func TestStreamingFrame_InferFields(t *testing.T) {
	f, err := NewStreamingFrame(&JSON{Data: &Data{Values: [][]any{{1.0}, {"a"}, {true}}}}, BufferOptions{})
	require.NoError(t, err)
	s := f.Schema()
	assert.Equal(t, []FieldType{FieldTypeNumber, FieldTypeString, FieldTypeBoolean},
		[]FieldType{s.Fields[0].Type, s.Fields[1].Type, s.Fields[2].Type})
	assert.Equal(t, "Field 1", s.Fields[0].Name)
}

func TestStreamingFrame_SnapshotDoesNotAlias(t *testing.T) {
	f, err := NewStreamingFrame(schemaMsg(2, 0), BufferOptions{MaxLength: 2})
	require.NoError(t, err)

	snap := f.Snapshot(f.FieldIndexes([]string{"value"}))
	require.Len(t, snap.Fields, 1)
	assert.Equal(t, []any{0.0, 1.0}, snap.Fields[0].Values)

	require.NoError(t, f.Push(dataMsg(2, 2)))
	assert.Equal(t, []any{0.0, 1.0}, snap.Fields[0].Values)

	snap.Fields[0].Values[0] = "mutated"
	again := f.Snapshot(f.FieldIndexes([]string{"value"}))
	assert.Equal(t, 0.0, again.Fields[0].Values[0])
}

func TestStreamingFrame_FieldIndexesKeepsFrameOrder(t *testing.T) {
	f, err := NewStreamingFrame(schemaMsg(1, 0), BufferOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, f.FieldIndexes([]string{"value", "time"}))
	assert.Empty(t, f.FieldIndexes([]string{"missing"}))
}

func TestBufferOptions_Validate(t *testing.T) {
	assert.NoError(t, BufferOptions{}.Validate())
	assert.Error(t, BufferOptions{Action: "merge"}.Validate())
	assert.Error(t, BufferOptions{MaxLength: -1}.Validate())
	_, err := NewStreamingFrame(schemaMsg(1, 0), BufferOptions{Action: "merge"})
	assert.Error(t, err)
}

func TestFrame_ToJSONRoundTrip(t *testing.T) {
	f, err := NewStreamingFrame(schemaMsg(3, 0), BufferOptions{})
	require.NoError(t, err)
	snap := f.Snapshot(f.FieldIndexes(nil))

	seed := snap.ToJSON()
	g, err := NewStreamingFrame(seed, BufferOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Length())
	assert.Equal(t, []string{"time", "value"}, g.Snapshot(g.FieldIndexes(nil)).FieldNames())
}
