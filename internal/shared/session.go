package shared

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tilesmart/tiles-admin/internal/backend"
)

const tokenKey = "backend_token"

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	aead       cipher.AEAD
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data. The backend token lives only here;
// report code receives it as explicit credentials.
type Session struct {
	ID        string
	values    map[string]string
	flashes   []FlashMessage
	isNew     bool
	dirty     bool
	destroyed bool
	rotated   string
}

type sessionPayload struct {
	Values  map[string]string `json:"values"`
	Flashes []FlashMessage    `json:"flashes,omitempty"`
}

// NewSessionManager constructs a SessionManager. Payloads are sealed with a
// key derived from secret, so Redis never holds backend tokens in clear.
func NewSessionManager(client *redis.Client, cookieName, secret string, ttl time.Duration, secure bool) *SessionManager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &SessionManager{client: client, aead: aead, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Load loads or creates a new session for request.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return sm.newSession(), nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if errors.Is(err, redis.Nil) {
		return sm.newSession(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("shared: load session: %w", err)
	}

	var stored sessionPayload
	plain, err := sm.open(payload)
	if err != nil {
		return sm.newSession(), nil
	}
	if err := json.Unmarshal(plain, &stored); err != nil {
		return sm.newSession(), nil
	}
	if stored.Values == nil {
		stored.Values = map[string]string{}
	}
	return &Session{ID: cookie.Value, values: stored.Values, flashes: stored.Flashes}, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.rotated != "" {
		if err := sm.client.Del(ctx, sm.redisKey(sess.rotated)).Err(); err != nil {
			return err
		}
		sess.rotated = ""
	}
	if sess.destroyed {
		if err := sm.client.Del(ctx, sm.redisKey(sess.ID)).Err(); err != nil {
			return err
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}
	if !sess.dirty && !sess.isNew {
		return nil
	}
	data, err := json.Marshal(sessionPayload{Values: sess.values, Flashes: sess.flashes})
	if err != nil {
		return err
	}
	sealed, err := sm.seal(data)
	if err != nil {
		return err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), sealed, sm.ttl).Err(); err != nil {
		return fmt.Errorf("shared: save session: %w", err)
	}
	sess.dirty, sess.isNew = false, false
	http.SetCookie(w, sm.cookie(sess.ID, int(sm.ttl.Seconds())))
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// Renew issues a fresh session id, keeping the values. Used on sign-in.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.rotated = sess.ID
	}
	sess.ID = uuid.NewString()
	sess.isNew = true
	sess.dirty = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (sm *SessionManager) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, sm.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("shared: session nonce: %w", err)
	}
	return sm.aead.Seal(nonce, nonce, plain, nil), nil
}

func (sm *SessionManager) open(sealed []byte) ([]byte, error) {
	n := sm.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("shared: session payload too short")
	}
	return sm.aead.Open(nil, sealed[:n], sealed[n:], nil)
}

func (sm *SessionManager) newSession() *Session {
	return &Session{ID: uuid.NewString(), values: map[string]string{}, isNew: true}
}

func (sm *SessionManager) redisKey(id string) string {
	return "tiles:session:" + id
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetCredentials stores the backend token.
func (s *Session) SetCredentials(creds backend.Credentials) {
	s.Set(tokenKey, creds.Token)
}

// Credentials returns the stored backend credentials, empty when signed out.
func (s *Session) Credentials() backend.Credentials {
	if s == nil {
		return backend.Credentials{}
	}
	return backend.ParseToken(s.Get(tokenKey))
}

// ClearCredentials signs the session out of the backend.
func (s *Session) ClearCredentials() {
	s.Delete(tokenKey)
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if s == nil || len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}
