package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	coreerrors "live-core/internal/core/errors"
	corelog "live-core/internal/core/log"
	"live-core/internal/core/metrics"
	"live-core/internal/health"
	"live-core/internal/live"
	"live-core/internal/live/frame"

	"github.com/gorilla/mux"
)

// ResponseData 统一响应结构
type ResponseData struct {
	Success bool                 `json:"success"`
	Data    interface{}          `json:"data,omitempty"`
	Error   string               `json:"error,omitempty"`
	Code    coreerrors.ErrorCode `json:"code,omitempty"`
}

// PushResult HTTP 推送结果
type PushResult struct {
	Channel string `json:"channel"`
}

func (s *Server) registerRoutes() {
	s.router.Use(loggingMiddleware)

	s.router.HandleFunc("/api/live/ws", s.handleWebSocket).Methods("GET")
	s.router.HandleFunc("/api/live/push/{scope}/{namespace}/{path:.+}", s.handlePush).Methods("POST")
	s.router.HandleFunc("/api/live/channels", s.handleChannels).Methods("GET")
	s.router.HandleFunc("/api/live/channels/{scope}/{namespace}/{path:.+}", s.handleServerUnsubscribe).Methods("DELETE")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
}

// loggingMiddleware 日志中间件
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		corelog.Debugf("HTTP: %s %s - %s", r.Method, r.RequestURI, time.Since(start))
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.health.IsAcceptingSessions() {
		metrics.IncServerRejections("draining")
		respondError(w, coreerrors.New(coreerrors.CodeServiceClosed, "server is draining"))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		corelog.Warnf("LiveServer: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	sess := newSession(s.ids.Generate(), conn, s.hub, s.auth, s.cfg, r.RemoteAddr)
	if !s.trackSession(sess) {
		sess.Close()
		return
	}
	defer s.untrackSession(sess)
	sess.serve(s.Ctx())
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.ObservePushLatency(time.Since(start).Seconds()) }()

	identity, err := s.auth.IdentifyRequest(r)
	if err != nil {
		metrics.IncServerRejections("unauthorized")
		respondError(w, err)
		return
	}
	addr, err := routeAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if !identity.CanPublish() {
		metrics.IncServerRejections("forbidden")
		respondError(w, coreerrors.Newf(coreerrors.CodeForbidden, "role %s cannot publish", identity.Role))
		return
	}
	channel := addr.ID(identity.OrgID)
	if !s.limiter.Allow(channel) {
		metrics.IncServerRejections("rate_limited")
		respondError(w, coreerrors.Wrapf(coreerrors.ErrRateLimited, coreerrors.CodeRateLimited, "push to %s", channel))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody+1))
	if err != nil {
		respondError(w, coreerrors.Wrap(err, coreerrors.CodeInvalidData, "read body"))
		return
	}
	if len(body) > maxPushBody {
		respondError(w, coreerrors.Newf(coreerrors.CodeInvalidData, "body exceeds %d bytes", maxPushBody))
		return
	}
	if _, err := frame.Parse(body); err != nil {
		respondError(w, err)
		return
	}

	if err := s.hub.Publish(r.Context(), channel, json.RawMessage(body), "push", ""); err != nil {
		corelog.Errorf("LiveServer: push to %s failed: %v", channel, err)
		respondError(w, err)
		return
	}
	metrics.IncServerPublications("http")
	respondJSON(w, http.StatusOK, &ResponseData{Success: true, Data: &PushResult{Channel: channel}})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.IdentifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	channels := s.hub.Channels()
	if s.auth.Enabled() {
		prefix := fmt.Sprintf("%d/", identity.OrgID)
		filtered := channels[:0]
		for _, c := range channels {
			if strings.HasPrefix(c.Channel, prefix) {
				filtered = append(filtered, c)
			}
		}
		channels = filtered
	}
	respondJSON(w, http.StatusOK, &ResponseData{Success: true, Data: channels})
}

func (s *Server) handleServerUnsubscribe(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.IdentifyRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if s.auth.Enabled() && !identity.IsAdmin() {
		respondError(w, coreerrors.New(coreerrors.CodeForbidden, "admin role required"))
		return
	}
	addr, err := routeAddress(r)
	if err != nil {
		respondError(w, err)
		return
	}
	channel := addr.ID(identity.OrgID)
	if err := s.hub.ServerUnsubscribe(r.Context(), channel); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &ResponseData{Success: true, Data: &PushResult{Channel: channel}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.health.GetHealthInfo(r.Context())
	status := http.StatusOK
	if info.Status != health.HealthStatusHealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, info)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metricsHandler == nil {
		respondError(w, coreerrors.New(coreerrors.CodeNotFound, "metrics are not exported"))
		return
	}
	s.metricsHandler.ServeHTTP(w, r)
}

func routeAddress(r *http.Request) (live.Address, error) {
	vars := mux.Vars(r)
	addr := live.NewAddress(live.Scope(vars["scope"]), vars["namespace"], vars["path"])
	if err := addr.Validate(); err != nil {
		return live.Address{}, err
	}
	return addr, nil
}

// statusFor 错误码到 HTTP 状态码
func statusFor(err error) int {
	switch coreerrors.GetCode(err) {
	case coreerrors.CodeInvalidParam, coreerrors.CodeInvalidAddress, coreerrors.CodeInvalidData, coreerrors.CodeProtocolError:
		return http.StatusBadRequest
	case coreerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case coreerrors.CodeForbidden, coreerrors.CodePublishNotAllowed:
		return http.StatusForbidden
	case coreerrors.CodeNotFound:
		return http.StatusNotFound
	case coreerrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case coreerrors.CodeServiceClosed:
		return http.StatusServiceUnavailable
	case coreerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), &ResponseData{Success: false, Error: err.Error(), Code: coreerrors.GetCode(err)})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		corelog.Warnf("HTTP: encode response failed: %v", err)
	}
}
