package authn

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
)

// DefaultSessionCookieName is the browser session cookie set after an upstream login.
const DefaultSessionCookieName = "lm_mcp_session"

// SessionCookie signs the upstream session id into a cookie so that a browser
// that completed a login can call the service without a bearer token.
type SessionCookie struct {
	Name   string
	Secure bool
	secret []byte
}

func NewSessionCookie(secret string, secure bool) *SessionCookie {
	return &SessionCookie{
		Name:   DefaultSessionCookieName,
		Secure: secure,
		secret: []byte(secret),
	}
}

func (c *SessionCookie) sign(sessionID string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Encode returns the cookie value for sessionID.
func (c *SessionCookie) Encode(sessionID string) string {
	return sessionID + "." + c.sign(sessionID)
}

// Decode verifies value and returns the session id it carries.
func (c *SessionCookie) Decode(value string) (string, bool) {
	idx := strings.LastIndex(value, ".")
	if idx <= 0 {
		return "", false
	}
	sessionID, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(c.sign(sessionID))) {
		return "", false
	}
	return sessionID, true
}

func (c *SessionCookie) Set(w http.ResponseWriter, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    c.Encode(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (c *SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// Read returns the verified session id from r, if any.
func (c *SessionCookie) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return c.Decode(cookie.Value)
}
