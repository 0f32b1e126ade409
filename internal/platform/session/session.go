package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/platform/config"
	"github.com/futurebuildai/lumber-boss/internal/platform/requestctx"
)

// Data is the payload carried in the signed visitor cookie.
type Data struct {
	VisitorID string    `json:"vid"`
	CreatedAt time.Time `json:"createdAt"`
}

// Manager issues and verifies anonymous visitor cookies. The visitor ID scopes carts and
// preferences in the key-value store.
type Manager struct {
	cookieName string
	signKey    []byte
	secure     bool
	ttl        time.Duration
	now        func() time.Time
}

// NewManager builds a Manager. An empty signing key yields a process-ephemeral key, which
// invalidates every cookie on restart and is only suitable for development.
func NewManager(cfg config.SessionConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	key := []byte(cfg.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			logger.Error("session: failed to generate signing key", zap.Error(err))
		}
		logger.Warn("session: using ephemeral signing key; set STOREFRONT_SESSION_SIGNING_KEY for production")
	}
	name := strings.TrimSpace(cfg.CookieName)
	if name == "" {
		name = "LUMBER_BOSS_SESSION"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{
		cookieName: name,
		signKey:    key,
		secure:     cfg.Secure,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Middleware resolves the visitor from the cookie, issuing a new one when the cookie is
// missing or fails verification, and stores the visitor ID on the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := m.Read(r)
		if !ok {
			now := m.now().UTC()
			data = Data{
				VisitorID: ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
				CreatedAt: now,
			}
			m.Write(w, data)
		}
		ctx := requestctx.WithVisitorID(r.Context(), data.VisitorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Read parses and verifies the session cookie.
func (m *Manager) Read(r *http.Request) (Data, bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil || c.Value == "" {
		return Data{}, false
	}
	payloadPart, sigPart, ok := strings.Cut(c.Value, ".")
	if !ok {
		return Data{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadPart)
	if err != nil {
		return Data{}, false
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return Data{}, false
	}
	if !hmac.Equal(sig, m.sign(payload)) {
		return Data{}, false
	}
	var data Data
	if err := json.Unmarshal(payload, &data); err != nil || data.VisitorID == "" {
		return Data{}, false
	}
	if _, err := ulid.ParseStrict(data.VisitorID); err != nil {
		return Data{}, false
	}
	return data, true
}

// Write sets the signed cookie on the response.
func (m *Manager) Write(w http.ResponseWriter, data Data) {
	payload, _ := json.Marshal(data)
	value := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(m.sign(payload))
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.now().Add(m.ttl),
	})
}

func (m *Manager) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, m.signKey)
	mac.Write(payload)
	return mac.Sum(nil)
}
