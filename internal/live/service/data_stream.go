package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	coreerrors "live-core/internal/core/errors"
	"live-core/internal/core/events"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/core/safe"
	"live-core/internal/live"
	"live-core/internal/live/channel"
	"live-core/internal/live/frame"
	"live-core/internal/live/timer"

	"github.com/filecoin-project/go-clock"
)

// StreamState 数据流状态
type StreamState string

const (
	StateStreaming StreamState = "streaming"
	StateError     StreamState = "error"
	StateDone      StreamState = "done"
)

// 输出原因，用于指标标签
const (
	emitReplay = "replay"
	emitWindow = "window"
	emitTick   = "tick"
	emitTimer  = "timer"
	emitFlush  = "flush"
)

// Filter 字段过滤
type Filter struct {
	// Fields 保留的字段名，为空时保留全部
	Fields []string `json:"fields,omitempty" yaml:"fields"`
}

// DataStreamOptions 数据流选项
type DataStreamOptions struct {
	// Key 响应标识，为空时使用 xstr/<n>
	Key    string
	Addr   live.Address
	Buffer frame.BufferOptions
	Filter *Filter
	// Frame 订阅前先处理的初始帧，优先于通道记录的最近 schema 消息
	Frame *frame.Frame
}

// DataResponse 数据流输出
type DataResponse struct {
	Key           string
	State         StreamState
	Data          *frame.Frame
	Error         error
	SchemaVersion int
}

// DataStream 单个消费者的聚合数据流
type DataStream struct {
	key    string
	out    chan *DataResponse
	cancel context.CancelFunc
	done   chan struct{}
	agg    *aggregator
}

// Key 数据流标识
func (d *DataStream) Key() string {
	return d.key
}

// Responses 输出 channel，只保留最新一次输出，数据流结束时关闭
func (d *DataStream) Responses() <-chan *DataResponse {
	return d.out
}

// Done 数据流结束时关闭
func (d *DataStream) Done() <-chan struct{} {
	return d.done
}

// Close 取消当前消费者，不影响共享通道
func (d *DataStream) Close() {
	d.cancel()
	<-d.done
}

// GetDataStream 订阅通道并把消息合并为有界、限速的数据帧快照
func (s *Service) GetDataStream(ctx context.Context, opts DataStreamOptions, cfg live.ChannelConfig) (*DataStream, error) {
	if err := opts.Buffer.Validate(); err != nil {
		return nil, err
	}
	if s.IsClosed() {
		return nil, coreerrors.ErrServiceClosed
	}
	key := opts.Key
	if key == "" {
		key = fmt.Sprintf("xstr/%d", s.streams.Add(1)-1)
	}

	c := s.GetChannel(opts.Addr, cfg)
	stream, replay := c.SubscribeWithReplay()

	var fields []string
	if opts.Filter != nil {
		fields = opts.Filter.Fields
	}
	runCtx, cancel := context.WithCancel(ctx)
	ds := &DataStream{
		key:    key,
		out:    make(chan *DataResponse, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	ds.agg = &aggregator{
		key:       key,
		channel:   c.ID(),
		buffer:    opts.Buffer,
		fields:    fields,
		clock:     s.clock,
		timer:     s.timer,
		window:    s.window,
		out:       ds.out,
		state:     StateStreaming,
		lastEmit:  s.clock.Now(),
		lastWidth: -1,
	}

	var seed *frame.JSON
	if opts.Frame != nil {
		seed = opts.Frame.ToJSON()
	}
	safe.Go("data-stream", func() {
		defer close(ds.done)
		ds.agg.run(runCtx, stream, seed, replay)
	})
	return ds, nil
}

// aggregator 由单个协程持有全部缓冲状态
type aggregator struct {
	key     string
	channel string
	buffer  frame.BufferOptions
	fields  []string
	clock   clock.Clock
	timer   *timer.LiveTimer
	window  time.Duration
	out     chan *DataResponse

	state         StreamState
	data          *frame.StreamingFrame
	indexes       []int
	lastWidth     int
	lastEmit      time.Time
	schemaVersion int
	pending       bool
	flush         *clock.Timer

	processed atomic.Int64
}

func (a *aggregator) run(ctx context.Context, stream *channel.Stream, seed *frame.JSON, replay json.RawMessage) {
	defer close(a.out)
	defer stream.Close()
	defer a.stopFlush()

	if seed != nil {
		a.process(seed, true)
	} else if replay != nil {
		a.processRaw(replay, true)
	}

	for {
		var flushC <-chan time.Time
		if a.flush != nil {
			flushC = a.flush.C
		}
		select {
		case <-ctx.Done():
			return
		case <-flushC:
			a.flush = nil
			if a.pending {
				a.emit(emitTimer)
			}
		case ev, ok := <-stream.Events():
			if !ok {
				a.complete(stream.Err())
				return
			}
			if a.handle(ev) {
				return
			}
		}
	}
}

// handle 处理通道事件，返回 true 表示数据流结束
func (a *aggregator) handle(ev events.Event) bool {
	switch e := ev.(type) {
	case *events.MessageEvent:
		a.processRaw(e.Message, false)
	case *events.StatusEvent:
		if e.Error != nil {
			corelog.Warnf("DataStream[%s]: channel %s error: %v", a.key, a.channel, e.Error)
			a.fail(coreerrors.Wrap(e.Error, coreerrors.GetCode(e.Error), "Streaming channel error"))
			return true
		}
		if e.State == live.StateConnected || e.State == live.StatePending {
			if len(e.Message) > 0 {
				a.processRaw(e.Message, false)
			}
			return false
		}
		corelog.Debugf("DataStream[%s]: ignoring %s status on %s", a.key, e.State, a.channel)
	}
	return false
}

// complete 通道事件流结束：出错时输出最终错误快照，否则补发积压数据后关闭
func (a *aggregator) complete(err error) {
	if err != nil {
		corelog.Infof("DataStream[%s]: channel %s terminated: %v", a.key, a.channel, err)
		a.fail(err)
		return
	}
	if a.pending {
		a.emit(emitFlush)
	}
	if a.state != StateError {
		a.state = StateDone
	}
	corelog.Debugf("DataStream[%s]: channel %s completed", a.key, a.channel)
}

func (a *aggregator) fail(err error) {
	a.state = StateError
	a.send(&DataResponse{
		Key:           a.key,
		State:         StateError,
		Data:          a.snapshot(),
		Error:         err,
		SchemaVersion: a.schemaVersion,
	})
}

func (a *aggregator) processRaw(raw json.RawMessage, force bool) {
	msg, err := frame.Parse(raw)
	if err != nil {
		corelog.Warnf("DataStream[%s]: dropping malformed message on %s: %v", a.key, a.channel, err)
		return
	}
	a.process(msg, force)
}

func (a *aggregator) process(msg *frame.JSON, force bool) {
	if a.data == nil {
		data, err := frame.NewStreamingFrame(msg, a.buffer)
		if err != nil {
			corelog.Warnf("DataStream[%s]: cannot start frame on %s: %v", a.key, a.channel, err)
			return
		}
		a.data = data
	} else if err := a.data.Push(msg); err != nil {
		corelog.Warnf("DataStream[%s]: dropping message on %s: %v", a.key, a.channel, err)
		return
	}
	a.processed.Add(1)
	a.state = StateStreaming

	width := a.data.Width()
	sameWidth := a.lastWidth == width
	a.lastWidth = width
	if a.indexes == nil || msg.HasSchema() || !sameWidth {
		a.indexes = a.data.FieldIndexes(a.fields)
		a.schemaVersion++
		metrics.IncStreamSchemaChanges()
	}

	now := a.clock.Now()
	switch {
	case force:
		a.emit(emitReplay)
	case now.Sub(a.lastEmit) >= a.window:
		a.emit(emitWindow)
	case a.timer.OK():
		a.emit(emitTick)
	default:
		a.pending = true
		a.armFlush(now)
	}
}

// armFlush 在窗口结束时补发一次积压数据
func (a *aggregator) armFlush(now time.Time) {
	if a.flush != nil {
		return
	}
	d := a.lastEmit.Add(a.window).Sub(now)
	if d < 0 {
		d = 0
	}
	a.flush = a.clock.Timer(d)
}

func (a *aggregator) stopFlush() {
	if a.flush != nil {
		a.flush.Stop()
		a.flush = nil
	}
}

func (a *aggregator) emit(reason string) {
	a.stopFlush()
	a.pending = false
	a.lastEmit = a.clock.Now()
	a.send(&DataResponse{
		Key:           a.key,
		State:         a.state,
		Data:          a.snapshot(),
		SchemaVersion: a.schemaVersion,
	})
	metrics.IncStreamEmissions(reason)
}

func (a *aggregator) snapshot() *frame.Frame {
	if a.data == nil {
		return nil
	}
	return a.data.Snapshot(a.indexes)
}

// send 非阻塞输出，消费者未取走的旧快照被替换
func (a *aggregator) send(resp *DataResponse) {
	for {
		select {
		case a.out <- resp:
			return
		default:
		}
		select {
		case <-a.out:
		default:
		}
	}
}
