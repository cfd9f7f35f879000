package websocket

import (
	"net/url"
	"strings"

	coreerrors "live-core/internal/core/errors"
)

// LivePath 推送服务器 websocket 路径
const LivePath = "/api/live/ws"

// NormalizeURL 由应用地址得到 websocket 地址：
//   - http://host:3000        -> ws://host:3000/api/live/ws
//   - https://host/grafana/   -> wss://host/grafana/api/live/ws
//   - ws://host/api/live/ws   -> 原样返回
//   - host:3000               -> ws://host:3000/api/live/ws
func NormalizeURL(address string) (string, error) {
	if address == "" {
		return "", coreerrors.New(coreerrors.CodeInvalidConfig, "empty app url")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeInvalidConfig, "invalid app url")
	}
	if u.Host == "" {
		return "", coreerrors.Newf(coreerrors.CodeInvalidConfig, "app url %q has no host", address)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", coreerrors.Newf(coreerrors.CodeInvalidConfig, "unsupported scheme %q", u.Scheme)
	}

	if !strings.HasSuffix(u.Path, LivePath) {
		u.Path = strings.TrimSuffix(u.Path, "/") + LivePath
	}
	u.Fragment = ""
	return u.String(), nil
}
