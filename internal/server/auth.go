package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	coreerrors "live-core/internal/core/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 组织角色
const (
	RoleViewer = "Viewer"
	RoleEditor = "Editor"
	RoleAdmin  = "Admin"
)

const tokenIssuer = "live-core"

// Claims 连接令牌声明
type Claims struct {
	OrgID int64  `json:"org_id"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Identity 已认证的调用方
type Identity struct {
	User  string
	OrgID int64
	Role  string
}

// CanPublish Viewer 只读
func (i *Identity) CanPublish() bool {
	return i.Role != RoleViewer
}

// IsAdmin 是否管理员
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Authenticator HMAC JWT 认证；未启用时按匿名编辑者放行
type Authenticator struct {
	enabled      bool
	secret       []byte
	defaultOrgID int64
}

// NewAuthenticator 创建认证器
func NewAuthenticator(enabled bool, secret string, defaultOrgID int64) *Authenticator {
	return &Authenticator{enabled: enabled, secret: []byte(secret), defaultOrgID: defaultOrgID}
}

// Enabled 是否启用认证
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Validate 解析并校验令牌
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, coreerrors.New(coreerrors.CodeUnauthorized, "token is required")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, coreerrors.Newf(coreerrors.CodeUnauthorized, "unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeUnauthorized, "parse token failed")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, coreerrors.New(coreerrors.CodeUnauthorized, "invalid token")
	}
	if claims.OrgID <= 0 {
		return nil, coreerrors.New(coreerrors.CodeUnauthorized, "token has no org")
	}
	return claims, nil
}

// Identify 由令牌得到调用方；未启用认证时 orgID 为 0 则使用默认组织
func (a *Authenticator) Identify(tokenString string, orgID int64) (*Identity, error) {
	if !a.enabled {
		if orgID <= 0 {
			orgID = a.defaultOrgID
		}
		return &Identity{User: "anonymous", OrgID: orgID, Role: RoleEditor}, nil
	}
	claims, err := a.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if orgID > 0 && orgID != claims.OrgID {
		return nil, coreerrors.Newf(coreerrors.CodeForbidden, "token is not valid for org %d", orgID)
	}
	role := claims.Role
	if role == "" {
		role = RoleViewer
	}
	return &Identity{User: claims.Subject, OrgID: claims.OrgID, Role: role}, nil
}

// IdentifyRequest 从 Authorization 头与 orgId 查询参数识别 HTTP 调用方
func (a *Authenticator) IdentifyRequest(r *http.Request) (*Identity, error) {
	var orgID int64
	if raw := r.URL.Query().Get("orgId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeInvalidParam, "invalid orgId %q", raw)
		}
		orgID = v
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	return a.Identify(token, orgID)
}

// IssueToken 签发 HS256 连接令牌
func IssueToken(secret, subject string, orgID int64, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", coreerrors.New(coreerrors.CodeInvalidConfig, "jwt secret is required")
	}
	now := time.Now()
	claims := &Claims{
		OrgID: orgID,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", coreerrors.Wrap(err, coreerrors.CodeInternal, "sign token failed")
	}
	return signed, nil
}
