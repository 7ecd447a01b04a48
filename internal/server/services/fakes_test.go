package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/hashpool"
	"github.com/dmitrijs2005/sitekeeper/internal/server/mail"
	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/totpreplay"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/totpsecrets"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory identity store. Each method holds the mutex for
// its whole body, which gives the same per-statement atomicity as the
// PostgreSQL repositories.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	roles    map[string]map[string]bool
	resets   map[string]*models.ResetToken
	totp     map[string]*models.TotpSecret
	replay   map[string]time.Time
	errs     map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*models.Account{},
		roles:    map[string]map[string]bool{},
		resets:   map[string]*models.ResetToken{},
		totp:     map[string]*models.TotpSecret{},
		replay:   map[string]time.Time{},
		errs:     map[string]error{},
	}
}

func (s *memStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[op] = err
}

func (s *memStore) account(id string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *s.accounts[id]
	return &a
}

type fakeRepoManager struct{ st *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return memAccounts{m.st} }
func (m *fakeRepoManager) Roles(dbx.DBTX) roles.Repository              { return memRoles{m.st} }
func (m *fakeRepoManager) ResetTokens(dbx.DBTX) resettokens.Repository  { return memResets{m.st} }
func (m *fakeRepoManager) TotpSecrets(dbx.DBTX) totpsecrets.Repository  { return memTotp{m.st} }
func (m *fakeRepoManager) TotpReplay(dbx.DBTX) totpreplay.Repository    { return memReplay{m.st} }

type memAccounts struct{ st *memStore }

func (r memAccounts) Create(_ context.Context, a *models.Account) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["Accounts.Create"]; err != nil {
		return err
	}
	for _, other := range r.st.accounts {
		if other.Email == a.Email {
			return common.ErrConflict
		}
	}
	a.CreatedAt = time.Now()
	c := *a
	r.st.accounts[a.ID] = &c
	return nil
}

func (r memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["Accounts.GetByEmail"]; err != nil {
		return nil, err
	}
	for _, a := range r.st.accounts {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["Accounts.GetByID"]; err != nil {
		return nil, err
	}
	a, ok := r.st.accounts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r memAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["Accounts.UpdatePasswordHash"]; err != nil {
		return err
	}
	a, ok := r.st.accounts[id]
	if !ok || a.DeletedAt != nil {
		return common.ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (r memAccounts) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	a, ok := r.st.accounts[id]
	if !ok {
		return common.ErrNotFound
	}
	if a.DeletedAt == nil {
		a.DeletedAt = &at
	}
	return nil
}

type memRoles struct{ st *memStore }

func (r memRoles) List(_ context.Context, accountID string) ([]string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["Roles.List"]; err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for role := range r.st.roles[accountID] {
		out = append(out, role)
	}
	sort.Strings(out)
	return out, nil
}

func (r memRoles) Grant(_ context.Context, accountID, role string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.roles[accountID] == nil {
		r.st.roles[accountID] = map[string]bool{}
	}
	r.st.roles[accountID][role] = true
	return nil
}

func (r memRoles) Revoke(_ context.Context, accountID, role string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	delete(r.st.roles[accountID], role)
	return nil
}

type memResets struct{ st *memStore }

func (r memResets) Upsert(_ context.Context, accountID, tokenHash string, expiresAt, now time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["ResetTokens.Upsert"]; err != nil {
		return err
	}
	r.st.resets[accountID] = &models.ResetToken{AccountID: accountID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: now}
	return nil
}

func (r memResets) Consume(_ context.Context, tokenHash string, now time.Time) (string, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for id, t := range r.st.resets {
		if t.TokenHash == tokenHash && t.UsedAt == nil && t.ExpiresAt.After(now) {
			used := now
			t.UsedAt = &used
			return id, nil
		}
	}
	return "", common.ErrNotFound
}

func (r memResets) CountForAccount(_ context.Context, accountID string) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.resets[accountID]; ok {
		return 1, nil
	}
	return 0, nil
}

type memTotp struct{ st *memStore }

func (r memTotp) Upsert(_ context.Context, accountID, secret string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	cur, ok := r.st.totp[accountID]
	switch {
	case !ok:
		r.st.totp[accountID] = &models.TotpSecret{AccountID: accountID, Secret: secret, Generation: 1, CreatedAt: time.Now()}
	case cur.Verified:
		cur.PendingSecret = secret
		cur.Generation++
	default:
		cur.Secret = secret
		cur.Generation++
		cur.CreatedAt = time.Now()
	}
	return nil
}

func (r memTotp) Get(_ context.Context, accountID string) (*models.TotpSecret, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["TotpSecrets.Get"]; err != nil {
		return nil, err
	}
	s, ok := r.st.totp[accountID]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r memTotp) MarkVerified(_ context.Context, accountID string, generation int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.errs["TotpSecrets.MarkVerified"]; err != nil {
		return err
	}
	s, ok := r.st.totp[accountID]
	if !ok || s.Generation != generation {
		return common.ErrNotFound
	}
	if s.PendingSecret != "" {
		s.Secret, s.PendingSecret = s.PendingSecret, ""
	}
	s.Verified = true
	return nil
}

type memReplay struct{ st *memStore }

func (r memReplay) Consume(_ context.Context, key string, counter int64, expiresAt time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	k := fmt.Sprintf("%s:%d", key, counter)
	if _, ok := r.st.replay[k]; ok {
		return false, nil
	}
	r.st.replay[k] = expiresAt
	return true, nil
}

func (r memReplay) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

type storeGuard struct{ st *memStore }

func (g storeGuard) Consume(ctx context.Context, key string, counter int64, ttl time.Duration) (bool, error) {
	return memReplay(g).Consume(ctx, key, counter, time.Now().Add(ttl))
}

type recordingDispatcher struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (d *recordingDispatcher) Dispatch(msg mail.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
}

func (d *recordingDispatcher) sent() []mail.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]mail.Message(nil), d.msgs...)
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// env wires real hashing, tokens and TOTP over the in-memory store.
type env struct {
	st       *memStore
	db       *sql.DB
	mock     sqlmock.Sqlmock
	rm       *fakeRepoManager
	hasher   *auth.PasswordHasher
	pool     *hashpool.Pool
	codec    *auth.TokenCodec
	totp     *auth.TotpService
	gate     *Gate
	identity *IdentityService
	store    *ResetTokenStore
	reset    *ResetService
	mailbox  *recordingDispatcher
	mfa      *MFAService
	admin    *AdminService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.NewNop()
	st := newMemStore()
	rm := &fakeRepoManager{st: st}
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, MemoryKiB: 1024, Threads: 1})
	pool := hashpool.New(hasher, 4)
	codec := auth.NewTokenCodec(testSecret, log)
	totp := auth.NewTotpService("sitekeeper", storeGuard{st}, log)
	gate := NewGate(db, rm, log)

	identity, err := NewIdentityService(context.Background(), db, rm, pool, codec, totp, gate,
		TokenTTLs{Access: 15 * time.Minute, Refresh: 30 * 24 * time.Hour}, log)
	require.NoError(t, err)

	store := NewResetTokenStore(db, rm, time.Hour)
	mailbox := &recordingDispatcher{}
	reset := NewResetService(db, rm, store, pool, mailbox,
		ResetOptions{MailFrom: "no-reply@site", BaseURL: "https://site.example/reset"}, log)

	return &env{
		st: st, db: db, mock: mock, rm: rm, hasher: hasher, pool: pool, codec: codec, totp: totp,
		gate: gate, identity: identity, store: store, reset: reset, mailbox: mailbox,
		mfa:   NewMFAService(db, rm, totp, gate, log),
		admin: NewAdminService(db, rm, identity, log),
	}
}

func (e *env) register(t *testing.T, email, password string, roles ...string) *User {
	t.Helper()
	u, err := e.admin.CreateAccount(context.Background(), email, password, "en", roles...)
	require.NoError(t, err)
	return u
}

func (e *env) claimsFor(u *User) *auth.AccessClaims {
	return &auth.AccessClaims{Subject: u.ID, Email: u.Email}
}
