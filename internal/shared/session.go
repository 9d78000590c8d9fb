package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager issues cookie sessions whose state lives in Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	keyPrefix  string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID        string
	AdminID   int64
	Email     string
	IssuedAt  time.Time
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	AdminID  int64     `json:"admin_id"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
}

// NewSessionManager constructs a SessionManager. The secret namespaces Redis
// keys so several deployments can share one Redis instance.
func NewSessionManager(client *redis.Client, cookieName, secret string, ttl time.Duration, secure bool) *SessionManager {
	prefix := "garage:session:"
	if secret != "" {
		prefix += uuid.NewSHA1(uuid.NameSpaceOID, []byte(secret)).String()[:8] + ":"
	}
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		keyPrefix:  prefix,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load returns the session referenced by the request cookie, or a fresh
// anonymous session when the cookie is absent or expired.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	raw, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	return &Session{
		ID:       cookie.Value,
		AdminID:  stored.AdminID,
		Email:    stored.Email,
		IssuedAt: stored.IssuedAt,
	}, nil
}

// Commit persists the session and writes the cookie.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}

	if !sess.dirty {
		return nil
	}
	data, err := json.Marshal(sessionPayload{AdminID: sess.AdminID, Email: sess.Email, IssuedAt: sess.IssuedAt})
	if err != nil {
		return err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
		return err
	}
	sess.dirty = false
	sess.isNew = false
	http.SetCookie(w, sm.cookie(sess.ID, int(sm.ttl.Seconds())))
	return nil
}

// Destroy marks the session for deletion on the next Commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.destroyed = true
	}
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Authenticate binds the session to an admin and rotates its id.
func (s *Session) Authenticate(adminID int64, email string, now time.Time) {
	s.ID = uuid.NewString()
	s.AdminID = adminID
	s.Email = email
	s.IssuedAt = now
	s.dirty = true
}

// Authenticated reports whether an admin is bound to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.AdminID != 0 && !s.destroyed
}

// IsNew reports whether the session has never been persisted.
func (s *Session) IsNew() bool {
	return s.isNew
}

func (sm *SessionManager) newSession() *Session {
	return &Session{ID: uuid.NewString(), isNew: true}
}

func (sm *SessionManager) redisKey(id string) string {
	return sm.keyPrefix + id
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
