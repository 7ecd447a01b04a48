package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/services"
	"github.com/dmitrijs2005/sitekeeper/internal/server/session"
	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	user     services.User
	password string
	totp     string
	deleted  bool
}

// fakeIdentity backs the identity, gate and admin interfaces with a map and
// issues real tokens.
type fakeIdentity struct {
	mu       sync.Mutex
	codec    *auth.TokenCodec
	accounts map[string]*fakeAccount
	failWith error
}

func (f *fakeIdentity) byEmail(email string) *fakeAccount {
	for _, a := range f.accounts {
		if a.user.Email == email {
			return a
		}
	}
	return nil
}

func (f *fakeIdentity) add(id, email, password string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[id] = &fakeAccount{user: services.User{ID: id, Email: email, Locale: "en", Roles: roles}, password: password}
}

func (f *fakeIdentity) Register(_ context.Context, email, password, locale string) (*services.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byEmail(email) != nil {
		return nil, common.ErrConflict
	}
	a := &fakeAccount{user: services.User{ID: "id-" + email, Email: email, Locale: locale, Roles: []string{}}, password: password}
	f.accounts[a.user.ID] = a
	u := a.user
	return &u, nil
}

func (f *fakeIdentity) Login(_ context.Context, email, password, code string) (*services.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	a := f.byEmail(email)
	if a == nil || a.deleted || a.password != password {
		return nil, common.ErrUnauthenticated
	}
	if a.totp != "" {
		if code == "" {
			return nil, common.ErrSecondFactorRequired
		}
		if code != a.totp {
			return nil, common.ErrUnauthenticated
		}
	}
	claims := auth.AccessClaims{Subject: a.user.ID, Email: a.user.Email, Roles: a.user.Roles}
	access, err := f.codec.Issue(auth.KindAccess, claims, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refresh, err := f.codec.Issue(auth.KindRefresh, auth.AccessClaims{Subject: a.user.ID, Email: a.user.Email}, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	u := a.user
	return &services.Tokens{Access: access, Refresh: refresh, User: &u}, nil
}

func (f *fakeIdentity) Refresh(ctx context.Context, claims *auth.AccessClaims) (*services.Tokens, error) {
	user, err := f.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}
	access, err := f.codec.Issue(auth.KindAccess, auth.AccessClaims{Subject: user.ID, Email: user.Email, Roles: user.Roles}, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	return &services.Tokens{Access: access, User: user}, nil
}

func (f *fakeIdentity) ChangePassword(_ context.Context, claims *auth.AccessClaims, current, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[claims.Subject]
	if !ok || a.deleted {
		return common.ErrUnauthenticated
	}
	if a.password != current {
		return common.ErrUnauthenticated
	}
	a.password = next
	return nil
}

func (f *fakeIdentity) Authenticate(_ context.Context, claims *auth.AccessClaims) (*services.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if claims == nil {
		return nil, common.ErrUnauthenticated
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	a, ok := f.accounts[claims.Subject]
	if !ok || a.deleted {
		return nil, common.ErrUnauthenticated
	}
	u := a.user
	return &u, nil
}

func (f *fakeIdentity) Require(ctx context.Context, claims *auth.AccessClaims, role string) error {
	u, err := f.Authenticate(ctx, claims)
	if err != nil {
		return err
	}
	if !slices.Contains(u.Roles, role) {
		return common.ErrForbidden
	}
	return nil
}

func (f *fakeIdentity) GrantRole(_ context.Context, id, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok || a.deleted {
		return common.ErrNotFound
	}
	if !slices.Contains(a.user.Roles, role) {
		a.user.Roles = append(a.user.Roles, role)
	}
	return nil
}

func (f *fakeIdentity) RevokeRole(_ context.Context, id, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		a.user.Roles = slices.DeleteFunc(a.user.Roles, func(r string) bool { return r == role })
	}
	return nil
}

func (f *fakeIdentity) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return common.ErrNotFound
	}
	a.deleted = true
	return nil
}

type fakeReset struct {
	mu        sync.Mutex
	requested []string
	resets    int
	validTok  string
}

func (f *fakeReset) RequestReset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(email) == "" {
		return common.NewValidationError("email", "required")
	}
	f.requested = append(f.requested, email)
	return nil
}

func (f *fakeReset) ResetPassword(_ context.Context, token, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	if token != f.validTok {
		return common.ErrInvalidOrExpired
	}
	f.validTok = ""
	return nil
}

type fakeMFA struct {
	confirmed []string
}

func (f *fakeMFA) Enroll(_ context.Context, claims *auth.AccessClaims) (*auth.Enrollment, error) {
	return &auth.Enrollment{Secret: "JBSWY3DPEHPK3PXP", ProvisioningURI: "otpauth://totp/sitekeeper:" + claims.Email}, nil
}

func (f *fakeMFA) Confirm(_ context.Context, claims *auth.AccessClaims, code string) error {
	if code != "123456" {
		return common.NewValidationError("code", "invalid")
	}
	f.confirmed = append(f.confirmed, claims.Subject)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

var errBoom = errors.New("db error: pq: relation \"accounts\" does not exist")

type testEnv struct {
	identity *fakeIdentity
	reset    *fakeReset
	mfa      *fakeMFA
	codec    *auth.TokenCodec
	sessions *session.Manager
	router   http.Handler
}

func newTestEnv(t *testing.T, opts RouterOptions, health Pinger) *testEnv {
	t.Helper()

	log := logging.NewNop()
	codec := auth.NewTokenCodec([]byte("0123456789abcdef0123456789abcdef"), log)
	sessions := session.NewManager(session.Options{
		AccessName:  "sid",
		RefreshName: "rid",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  24 * time.Hour,
	}, codec)

	identity := &fakeIdentity{codec: codec, accounts: map[string]*fakeAccount{}}
	identity.add("u-1", "ann@example.com", "correct-horse")
	identity.add("u-admin", "root@example.com", "correct-horse", "admin")

	reset := &fakeReset{validTok: "good-token"}
	mfa := &fakeMFA{}

	h := NewHandler(Deps{
		Identity: identity,
		Reset:    reset,
		MFA:      mfa,
		Admin:    identity,
		Gate:     identity,
		Sessions: sessions,
		Health:   health,
	}, log)
	router, err := NewRouter(h, opts)
	require.NoError(t, err)

	return &testEnv{identity: identity, reset: reset, mfa: mfa, codec: codec, sessions: sessions, router: router}
}

func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, email string) (access, refresh *http.Cookie) {
	t.Helper()
	rec := e.do(http.MethodPost, "/login", `{"email":"`+email+`","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return cookieNamed(t, rec, "sid"), cookieNamed(t, rec, "rid")
}

func cookieNamed(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func newRecorder() *httptest.ResponseRecorder { return httptest.NewRecorder() }

func nopLogger() logging.Logger { return logging.NewNop() }
