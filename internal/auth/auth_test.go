package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atelier-garage/garage/internal/auth"
	"github.com/atelier-garage/garage/internal/shared"
)

const (
	adminEmail    = "atelier@garage.test"
	adminPassword = "s3cret-passw0rd"
)

func newService(t *testing.T) *auth.Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := auth.NewService(adminEmail, string(hash))
	require.NoError(t, err)
	return svc
}

func newRouter(t *testing.T, loginRate int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "garage_session", "secret", time.Hour, false)

	r := chi.NewRouter()
	r.Use(auth.SessionMiddleware(sessions, nil))
	r.Route("/auth", auth.NewHandler(nil, newService(t), sessions, loginRate).MountRoutes)
	r.With(auth.RequireAdmin).Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r, mr
}

func login(t *testing.T, h http.Handler, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"email":"` + email + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == "garage_session" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	_, err := auth.NewService("", "$2a$10$abc")
	assert.Error(t, err)
	_, err = auth.NewService(adminEmail, "plaintext")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	admin, err := svc.Authenticate(ctx, "  ATELIER@garage.test ", adminPassword)
	require.NoError(t, err)
	assert.Equal(t, auth.AdminID, admin.ID)
	assert.Equal(t, adminEmail, admin.Email)

	_, err = svc.Authenticate(ctx, adminEmail, "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "other@garage.test", adminPassword)
	assert.Equal(t, shared.KindUnauthorized, shared.KindOf(err))
}

func TestProtectedRouteRequiresSession(t *testing.T) {
	h, _ := newRouter(t, 0)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestLoginGrantsAccessUntilLogout(t *testing.T) {
	h, mr := newRouter(t, 0)

	rr := login(t, h, adminEmail, adminPassword)
	require.Equal(t, http.StatusOK, rr.Code)
	var admin auth.Admin
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &admin))
	assert.Equal(t, adminEmail, admin.Email)
	cookie := sessionCookie(t, rr)
	assert.True(t, cookie.HttpOnly)
	assert.Len(t, mr.Keys(), 1)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), adminEmail)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, mr.Keys())

	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginFailures(t *testing.T) {
	h, mr := newRouter(t, 0)

	rr := login(t, h, adminEmail, "nope")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
	assert.Empty(t, mr.Keys())

	rr = login(t, h, "not-an-email", "x")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email"`)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":1}`))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginRateLimit(t *testing.T) {
	h, _ := newRouter(t, 2)
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, login(t, h, adminEmail, "wrong").Code)
	}
	rr := login(t, h, adminEmail, adminPassword)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}
