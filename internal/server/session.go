package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/core/safe"
	"live-core/internal/live"
	"live-core/internal/live/frame"
	"live-core/internal/protocol"
	"live-core/internal/transport"
	"live-core/internal/version"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = maxPushBody
)

// Session 单个 websocket 连接
type Session struct {
	id     string
	conn   *websocket.Conn
	hub    *Hub
	auth   *Authenticator
	remote string

	pingInterval time.Duration
	send         chan []byte
	done         chan struct{}
	drained      chan struct{}
	closeOnce    sync.Once

	// 仅由读协程访问
	identity *Identity
	connInfo json.RawMessage
}

func newSession(id string, conn *websocket.Conn, hub *Hub, auth *Authenticator, cfg Config, remote string) *Session {
	return &Session{
		id:           id,
		conn:         conn,
		hub:          hub,
		auth:         auth,
		remote:       remote,
		pingInterval: cfg.PingInterval,
		send:         make(chan []byte, cfg.SendBuffer),
		done:         make(chan struct{}),
		drained:      make(chan struct{}),
	}
}

// ID 会话 id，即分配给客户端的 client id
func (s *Session) ID() string {
	return s.id
}

// Send 非阻塞排队推送
func (s *Session) Send(push *protocol.Push) bool {
	raw, err := protocol.Encode(protocol.NewPushReply(push))
	if err != nil {
		corelog.Warnf("Session[%s]: encode push failed: %v", s.id, err)
		return false
	}
	return s.enqueue(raw)
}

func (s *Session) enqueue(raw []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- raw:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// Close 关闭连接，可重复调用
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// serve 运行读写循环直到连接断开
func (s *Session) serve(ctx context.Context) {
	corelog.Debugf("Session[%s]: opened from %s", s.id, s.remote)
	safe.Go("session-write", s.writeLoop)
	s.readLoop(ctx)

	s.Close()
	s.hub.RemoveSession(context.Background(), s.id)
	if s.identity != nil {
		metrics.AddServerSessions(-1)
	}
	corelog.Debugf("Session[%s]: closed", s.id)
}

func (s *Session) readLoop(ctx context.Context) {
	pongWait := s.pingInterval * 2
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-s.done:
				default:
					corelog.Debugf("Session[%s]: read failed: %v", s.id, err)
				}
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		cmd, err := protocol.DecodeCommand(raw)
		if err != nil {
			corelog.Warnf("Session[%s]: dropping malformed command: %v", s.id, err)
			continue
		}
		reply := s.handle(ctx, cmd)
		out, err := protocol.Encode(reply)
		if err != nil {
			corelog.Errorf("Session[%s]: encode reply failed: %v", s.id, err)
			continue
		}
		if !s.enqueue(out) {
			corelog.Warnf("Session[%s]: send queue full, closing", s.id)
			return
		}
		if reply.Error != nil && reply.Error.Code == coreerrors.CodeUnauthorized && cmd.Method == protocol.MethodConnect {
			// 认证失败：应答发出后断开
			s.closeAfterFlush()
			return
		}
	}
}

// closeAfterFlush 排入结束标记，等待写协程写完之前的消息
func (s *Session) closeAfterFlush() {
	if !s.enqueue(nil) {
		return
	}
	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case <-s.drained:
	case <-timer.C:
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case raw := <-s.send:
			if raw == nil {
				close(s.drained)
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				corelog.Debugf("Session[%s]: write failed: %v", s.id, err)
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, cmd *protocol.Command) *protocol.Reply {
	result, err := s.dispatch(ctx, cmd)
	if err != nil {
		return protocol.NewErrorReply(cmd.ID, err)
	}
	reply, err := protocol.NewResultReply(cmd.ID, result)
	if err != nil {
		return protocol.NewErrorReply(cmd.ID, err)
	}
	return reply
}

func (s *Session) dispatch(ctx context.Context, cmd *protocol.Command) (any, error) {
	if cmd.Method == protocol.MethodConnect {
		return s.handleConnect(cmd)
	}
	if s.identity == nil {
		return nil, coreerrors.New(coreerrors.CodeUnauthorized, "connect first")
	}

	var params protocol.ChannelParams
	if cmd.Method == protocol.MethodPublish {
		var pub protocol.PublishParams
		if err := cmd.DecodeParams(&pub); err != nil {
			return nil, err
		}
		return nil, s.handlePublish(ctx, &pub)
	}
	if err := cmd.DecodeParams(&params); err != nil {
		return nil, err
	}
	if err := s.authorizeChannel(params.Channel); err != nil {
		return nil, err
	}

	switch cmd.Method {
	case protocol.MethodSubscribe:
		data, err := s.hub.Subscribe(ctx, s, params.Channel, s.clientInfo())
		if err != nil {
			return nil, err
		}
		return &protocol.SubscribeResult{Data: data}, nil
	case protocol.MethodUnsubscribe:
		return nil, s.hub.Unsubscribe(ctx, s, params.Channel)
	case protocol.MethodPresence:
		presence, err := s.hub.Presence(ctx, params.Channel)
		if err != nil {
			return nil, err
		}
		return &protocol.PresenceResult{Presence: presence}, nil
	}
	return nil, coreerrors.Newf(coreerrors.CodeProtocolError, "unsupported method %s", cmd.Method)
}

func (s *Session) handleConnect(cmd *protocol.Command) (any, error) {
	if s.identity != nil {
		return nil, coreerrors.New(coreerrors.CodeProtocolError, "already connected")
	}
	var params protocol.ConnectParams
	if len(cmd.Params) > 0 {
		if err := cmd.DecodeParams(&params); err != nil {
			return nil, err
		}
	}
	var data transport.ConnectData
	if len(params.Data) > 0 {
		if err := json.Unmarshal(params.Data, &data); err != nil {
			return nil, coreerrors.Wrap(err, coreerrors.CodeProtocolError, "decode connect data")
		}
	}

	identity, err := s.auth.Identify(params.Token, data.OrgID)
	if err != nil {
		metrics.IncServerRejections("unauthorized")
		corelog.Warnf("Session[%s]: connect rejected: %v", s.id, err)
		if coreerrors.IsCode(err, coreerrors.CodeForbidden) {
			return nil, coreerrors.Wrap(err, coreerrors.CodeUnauthorized, "connect rejected")
		}
		return nil, err
	}
	s.identity = identity
	s.connInfo = params.Data
	metrics.AddServerSessions(1)
	corelog.Infof("Session[%s]: connected user=%s org=%d role=%s", s.id, identity.User, identity.OrgID, identity.Role)
	return &protocol.ConnectResult{Client: s.id, Version: version.GetShortVersion()}, nil
}

func (s *Session) handlePublish(ctx context.Context, params *protocol.PublishParams) error {
	if err := s.authorizeChannel(params.Channel); err != nil {
		return err
	}
	if !s.identity.CanPublish() {
		metrics.IncServerRejections("forbidden")
		return coreerrors.Newf(coreerrors.CodeForbidden, "role %s cannot publish", s.identity.Role)
	}
	if _, err := frame.Parse(params.Data); err != nil {
		return err
	}
	if err := s.hub.Publish(ctx, params.Channel, params.Data, "client", s.id); err != nil {
		return err
	}
	metrics.IncServerPublications("ws")
	return nil
}

// authorizeChannel 通道必须是合法地址且属于会话的组织
func (s *Session) authorizeChannel(channel string) error {
	orgID, _, err := live.ParseChannelID(channel)
	if err != nil {
		return err
	}
	if orgID != s.identity.OrgID {
		return coreerrors.Newf(coreerrors.CodeForbidden, "channel %s belongs to another org", channel)
	}
	return nil
}

func (s *Session) clientInfo() live.ClientInfo {
	return live.ClientInfo{Client: s.id, User: s.identity.User, ConnInfo: s.connInfo}
}
