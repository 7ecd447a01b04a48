package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMFAService_EnrollAndConfirm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ann@example.com", "correct-horse")
	now := time.Unix(1_800_000_000, 0)
	e.mfa.now = func() time.Time { return now }

	enrollment, err := e.mfa.Enroll(ctx, e.claimsFor(u))
	require.NoError(t, err)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")

	stored, err := e.rm.TotpSecrets(e.db).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Secret, stored.Secret)
	assert.False(t, stored.Verified)

	err = e.mfa.Confirm(ctx, e.claimsFor(u), "123")
	assert.ErrorIs(t, err, common.ErrValidation)

	code, err := totp.GenerateCode(enrollment.Secret, now)
	require.NoError(t, err)
	require.NoError(t, e.mfa.Confirm(ctx, e.claimsFor(u), code))

	stored, err = e.rm.TotpSecrets(e.db).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
}

func TestMFAService_ReenrollKeepsConfirmedFactor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ann@example.com", "correct-horse")
	now := time.Unix(1_800_000_000, 0)
	e.mfa.now = func() time.Time { return now }
	e.identity.now = func() time.Time { return now }

	first, err := e.mfa.Enroll(ctx, e.claimsFor(u))
	require.NoError(t, err)
	code, err := totp.GenerateCode(first.Secret, now)
	require.NoError(t, err)
	require.NoError(t, e.mfa.Confirm(ctx, e.claimsFor(u), code))

	second, err := e.mfa.Enroll(ctx, e.claimsFor(u))
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	_, err = e.identity.Login(ctx, "ann@example.com", "correct-horse", "")
	require.ErrorIs(t, err, common.ErrSecondFactorRequired)

	stored, err := e.rm.TotpSecrets(e.db).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Equal(t, first.Secret, stored.Secret)
	assert.Equal(t, second.Secret, stored.PendingSecret)

	// the unconfirmed secret does not open a login
	now = now.Add(30 * time.Second)
	pendingCode, err := totp.GenerateCode(second.Secret, now)
	require.NoError(t, err)
	_, err = e.identity.Login(ctx, "ann@example.com", "correct-horse", pendingCode)
	require.ErrorIs(t, err, common.ErrUnauthenticated)

	oldCode, err := totp.GenerateCode(first.Secret, now)
	require.NoError(t, err)
	_, err = e.identity.Login(ctx, "ann@example.com", "correct-horse", oldCode)
	require.NoError(t, err)

	// the old secret cannot confirm the pending one
	now = now.Add(30 * time.Second)
	oldCode, err = totp.GenerateCode(first.Secret, now)
	require.NoError(t, err)
	assert.ErrorIs(t, e.mfa.Confirm(ctx, e.claimsFor(u), oldCode), common.ErrValidation)

	require.NoError(t, e.mfa.Confirm(ctx, e.claimsFor(u), pendingCode))

	stored, err = e.rm.TotpSecrets(e.db).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)
	assert.Equal(t, second.Secret, stored.Secret)
	assert.Empty(t, stored.PendingSecret)

	now = now.Add(30 * time.Second)
	newCode, err := totp.GenerateCode(second.Secret, now)
	require.NoError(t, err)
	_, err = e.identity.Login(ctx, "ann@example.com", "correct-horse", newCode)
	require.NoError(t, err)
}

func TestMFAService_ConfirmSupersededEnrollment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ann@example.com", "correct-horse")
	now := time.Unix(1_800_000_000, 0)
	e.mfa.now = func() time.Time { return now }

	first, err := e.mfa.Enroll(ctx, e.claimsFor(u))
	require.NoError(t, err)
	stale, err := e.rm.TotpSecrets(e.db).Get(ctx, u.ID)
	require.NoError(t, err)

	second, err := e.mfa.Enroll(ctx, e.claimsFor(u))
	require.NoError(t, err)
	assert.ErrorIs(t, e.rm.TotpSecrets(e.db).MarkVerified(ctx, u.ID, stale.Generation), common.ErrNotFound)

	// a code for the replaced secret no longer confirms anything
	code, err := totp.GenerateCode(first.Secret, now)
	require.NoError(t, err)
	err = e.mfa.Confirm(ctx, e.claimsFor(u), code)
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid", verr.Fields["code"])

	// an enrollment that moves on between the check and the write
	e.st.fail("TotpSecrets.MarkVerified", common.ErrNotFound)
	code, err = totp.GenerateCode(second.Secret, now)
	require.NoError(t, err)
	err = e.mfa.Confirm(ctx, e.claimsFor(u), code)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "enrollment superseded", verr.Fields["code"])

	stored, err := e.rm.TotpSecrets(e.db).Get(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.Verified)
}

func TestMFAService_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.register(t, "ann@example.com", "correct-horse")

	_, err := e.mfa.Enroll(ctx, nil)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	err = e.mfa.Confirm(ctx, e.claimsFor(u), "")
	assert.ErrorIs(t, err, common.ErrValidation)

	err = e.mfa.Confirm(ctx, e.claimsFor(u), "123456")
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "no pending enrollment", verr.Fields["code"])
}
