package server

import (
	"net/http/httptest"
	"testing"
	"time"

	coreerrors "live-core/internal/core/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestIssueToken_RoundTrip(t *testing.T) {
	token, err := IssueToken(testSecret, "alice", 2, RoleEditor, time.Hour)
	require.NoError(t, err)

	claims, err := NewAuthenticator(true, testSecret, 1).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, int64(2), claims.OrgID)
	assert.Equal(t, RoleEditor, claims.Role)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	_, err := IssueToken("", "alice", 1, RoleViewer, time.Hour)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidConfig))
}

func TestAuthenticator_Validate(t *testing.T) {
	auth := NewAuthenticator(true, testSecret, 1)
	valid, err := IssueToken(testSecret, "alice", 1, RoleEditor, time.Hour)
	require.NoError(t, err)
	wrongSecret, err := IssueToken("other", "alice", 1, RoleEditor, time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "alice", 1, RoleEditor, -time.Minute)
	require.NoError(t, err)
	noOrg, err := IssueToken(testSecret, "alice", 0, RoleEditor, time.Hour)
	require.NoError(t, err)
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		OrgID:            1,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", Subject: "mallory"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty", "", true},
		{"garbage", "not-a-token", true},
		{"wrong secret", wrongSecret, true},
		{"expired", expired, true},
		{"no org", noOrg, true},
		{"foreign issuer", foreign, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Validate(tt.token)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, coreerrors.IsCode(err, coreerrors.CodeUnauthorized), "got %v", err)
		})
	}
}

func TestAuthenticator_IdentifyDisabled(t *testing.T) {
	auth := NewAuthenticator(false, "", 7)

	id, err := auth.Identify("", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.OrgID)
	assert.Equal(t, RoleEditor, id.Role)
	assert.True(t, id.CanPublish())

	id, err = auth.Identify("ignored", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id.OrgID)
}

func TestAuthenticator_IdentifyEnabled(t *testing.T) {
	auth := NewAuthenticator(true, testSecret, 1)

	token, err := IssueToken(testSecret, "viewer", 2, "", time.Hour)
	require.NoError(t, err)
	id, err := auth.Identify(token, 0)
	require.NoError(t, err)
	assert.Equal(t, "viewer", id.User)
	assert.Equal(t, RoleViewer, id.Role)
	assert.False(t, id.CanPublish())
	assert.False(t, id.IsAdmin())

	_, err = auth.Identify(token, 3)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeForbidden))
}

func TestAuthenticator_IdentifyRequest(t *testing.T) {
	auth := NewAuthenticator(true, testSecret, 1)
	token, err := IssueToken(testSecret, "admin", 4, RoleAdmin, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/live/channels?orgId=4", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	id, err := auth.IdentifyRequest(req)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())
	assert.Equal(t, int64(4), id.OrgID)

	req = httptest.NewRequest("GET", "/api/live/channels?orgId=x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	_, err = auth.IdentifyRequest(req)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeInvalidParam))

	_, err = auth.IdentifyRequest(httptest.NewRequest("GET", "/api/live/channels", nil))
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeUnauthorized))
}
