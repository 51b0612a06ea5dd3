package rest_test

import (
	"net/http"
	"testing"

	"github.com/kasuganosora/kadim/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	s := newServer(t)
	p := s.register(t, "alice")
	assert.NotEmpty(t, p.token)

	var acc model.Account
	require.NoError(t, s.db.First(&acc, p.accountID).Error)
	assert.Equal(t, model.TierNone, acc.PremiumTier)
	assert.NotEqual(t, "secret123", acc.PasswordHash)
}

func TestRegister_Validation(t *testing.T) {
	s := newServer(t)
	cases := []map[string]string{
		{"username": "ab", "email": "ab@example.com", "password": "secret123"},
		{"username": "bad name", "email": "x@example.com", "password": "secret123"},
		{"username": "carol", "email": "not-an-email", "password": "secret123"},
		{"username": "carol", "email": "carol@example.com", "password": "123"},
	}
	for _, body := range cases {
		w := s.do(http.MethodPost, "/api/auth/register", body, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	s := newServer(t)
	s.register(t, "alice")

	w := s.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice2", "email": "ALICE@example.com", "password": "secret123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email already registered", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "secret123",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "username already taken", decode(t, w)["error"])
}

func TestLogin(t *testing.T) {
	s := newServer(t)
	p := s.register(t, "alice")

	w := s.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "secret123",
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])

	var acc model.Account
	require.NoError(t, s.db.First(&acc, p.accountID).Error)
	assert.NotNil(t, acc.LastLoginAt)
	assert.NotEmpty(t, acc.LastLoginIP)
}

func TestLoginWrongPassword(t *testing.T) {
	s := newServer(t)
	s.register(t, "alice")

	w := s.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrongpass",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "secret123",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginBannedAccount(t *testing.T) {
	s := newServer(t)
	p := s.register(t, "alice")
	require.NoError(t, s.db.Model(&model.Account{}).Where("id = ?", p.accountID).
		Updates(map[string]any{"banned": true, "ban_reason": "botting"}).Error)

	w := s.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "secret123",
	}, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "botting", decode(t, w)["reason"])
}

func TestMe(t *testing.T) {
	s := newServer(t)
	p := s.newPlayer(t, "alice")

	w := s.do(http.MethodGet, "/api/auth/me", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["characters"])
	assert.Equal(t, "alice", resp["user"].(map[string]any)["username"])
}

func TestNoTokenReturns401(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodGet, "/api/character", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	p := s.register(t, "alice")

	w := s.do(http.MethodPost, "/api/auth/logout", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/auth/me", nil, p.token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	p := s.register(t, "alice")

	w := s.do(http.MethodPost, "/api/auth/refresh", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)
	fresh := decode(t, w)["token"].(string)
	require.NotEmpty(t, fresh)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", nil, p.token).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/auth/me", nil, fresh).Code)
}
