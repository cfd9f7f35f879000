package protocol

import (
	"encoding/json"

	coreerrors "live-core/internal/core/errors"
)

// NewCommand 构造命令，params 为 nil 时省略
func NewCommand(id uint64, method Method, params any) (*Command, error) {
	cmd := &Command{ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeProtocolError, "encode %s params", method)
		}
		cmd.Params = raw
	}
	return cmd, nil
}

// DecodeParams 解码命令参数
func (c *Command) DecodeParams(out any) error {
	if len(c.Params) == 0 {
		return coreerrors.Newf(coreerrors.CodeProtocolError, "%s command has no params", c.Method)
	}
	if err := json.Unmarshal(c.Params, out); err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeProtocolError, "decode %s params", c.Method)
	}
	return nil
}

// Validate 校验命令
func (c *Command) Validate() error {
	if c.ID == 0 {
		return coreerrors.New(coreerrors.CodeProtocolError, "command id must be non-zero")
	}
	switch c.Method {
	case MethodConnect, MethodSubscribe, MethodUnsubscribe, MethodPresence, MethodPublish:
		return nil
	}
	return coreerrors.Newf(coreerrors.CodeProtocolError, "unknown method %q", c.Method)
}

// NewResultReply 构造成功应答
func NewResultReply(id uint64, result any) (*Reply, error) {
	reply := &Reply{ID: id}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, coreerrors.Wrap(err, coreerrors.CodeProtocolError, "encode reply result")
		}
		reply.Result = raw
	}
	return reply, nil
}

// NewErrorReply 构造错误应答，错误码取自 err
func NewErrorReply(id uint64, err error) *Reply {
	msg := err.Error()
	var coded *coreerrors.Error
	if coreerrors.As(err, &coded) {
		msg = coded.Message
		if coded.Cause != nil {
			msg += ": " + coded.Cause.Error()
		}
	}
	return &Reply{ID: id, Error: &ReplyError{Code: coreerrors.GetCode(err), Message: msg}}
}

// NewPushReply 包装推送
func NewPushReply(push *Push) *Reply {
	return &Reply{Push: push}
}

// DecodeResult 解码应答结果，错误应答返回对应 error
func (r *Reply) DecodeResult(out any) error {
	if r.Error != nil {
		return r.Error.Err()
	}
	if out == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeProtocolError, "decode reply result")
	}
	return nil
}

// Encode 编码任意协议消息
func Encode(msg any) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeProtocolError, "encode message")
	}
	return raw, nil
}

// DecodeCommand 解码并校验命令
func DecodeCommand(raw []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeProtocolError, "decode command")
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// DecodeReply 解码服务器消息
func DecodeReply(raw []byte) (*Reply, error) {
	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeProtocolError, "decode reply")
	}
	if reply.ID == 0 && reply.Push == nil {
		return nil, coreerrors.New(coreerrors.CodeProtocolError, "message is neither reply nor push")
	}
	return &reply, nil
}
