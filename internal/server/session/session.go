// Package session maps tokens onto the cookie pair carried by browsers: a
// short-lived access cookie and a long-lived refresh cookie.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
)

// HeaderWriter is the part of a response the manager writes to.
type HeaderWriter interface {
	Header() http.Header
}

// CookieSource is the part of a request the manager reads from;
// *http.Request satisfies it.
type CookieSource interface {
	Cookie(name string) (*http.Cookie, error)
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string, kind auth.TokenKind) (*auth.AccessClaims, error)
}

type Options struct {
	AccessName  string
	RefreshName string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	// Insecure drops the Secure attribute for plain-HTTP development.
	Insecure bool
}

type Manager struct {
	opts     Options
	verifier TokenVerifier
	now      func() time.Time
}

func NewManager(opts Options, verifier TokenVerifier) *Manager {
	return &Manager{opts: opts, verifier: verifier, now: time.Now}
}

// Attach sets the access cookie.
func (m *Manager) Attach(w HeaderWriter, token string) {
	m.write(w, m.opts.AccessName, token, m.opts.AccessTTL)
}

// AttachRefresh sets the refresh cookie.
func (m *Manager) AttachRefresh(w HeaderWriter, token string) {
	m.write(w, m.opts.RefreshName, token, m.opts.RefreshTTL)
}

// Detach expires both cookies. Calling it without a session is harmless.
func (m *Manager) Detach(w HeaderWriter) {
	for _, name := range []string{m.opts.AccessName, m.opts.RefreshName} {
		c := m.cookie(name, "")
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		w.Header().Add("Set-Cookie", c.String())
	}
}

// Resolve returns the caller's claims from the access cookie, or nil when
// the cookie is absent, malformed, forged or expired.
func (m *Manager) Resolve(ctx context.Context, r CookieSource) *auth.AccessClaims {
	return m.resolve(ctx, r, m.opts.AccessName, auth.KindAccess)
}

// ResolveRefresh is Resolve for the refresh cookie.
func (m *Manager) ResolveRefresh(ctx context.Context, r CookieSource) *auth.AccessClaims {
	return m.resolve(ctx, r, m.opts.RefreshName, auth.KindRefresh)
}

func (m *Manager) resolve(ctx context.Context, r CookieSource, name string, kind auth.TokenKind) *auth.AccessClaims {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return nil
	}
	claims, err := m.verifier.Verify(ctx, c.Value, kind)
	if err != nil {
		return nil
	}
	return claims
}

func (m *Manager) write(w HeaderWriter, name, value string, ttl time.Duration) {
	c := m.cookie(name, value)
	c.MaxAge = int(ttl / time.Second)
	c.Expires = m.now().Add(ttl).UTC()
	w.Header().Add("Set-Cookie", c.String())
}

func (m *Manager) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !m.opts.Insecure,
		SameSite: http.SameSiteLaxMode,
	}
}
