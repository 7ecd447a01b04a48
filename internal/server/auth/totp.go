package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
)

// totpReplayTTL outlives the whole acceptance window of a time step.
const totpReplayTTL = (2*totpSkew + 2) * totpPeriod * time.Second

// ReplayGuard remembers accepted (secret, time-step) pairs. Consume returns
// true only for the first caller presenting a pair within ttl.
type ReplayGuard interface {
	Consume(ctx context.Context, key string, counter int64, ttl time.Duration) (bool, error)
}

// Enrollment is handed to the user once; the secret is never shown again.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
}

// TotpService enrolls and checks RFC 6238 codes (SHA1, 6 digits, 30s).
type TotpService struct {
	issuer string
	guard  ReplayGuard
	log    logging.Logger
}

// NewTotpService builds the service. A nil guard disables replay tracking.
func NewTotpService(issuer string, guard ReplayGuard, log logging.Logger) *TotpService {
	return &TotpService{issuer: issuer, guard: guard, log: log.With("module", "totp")}
}

func (s *TotpService) Enroll(label string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: label,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return &Enrollment{Secret: key.Secret(), ProvisioningURI: key.URL()}, nil
}

// Verify accepts code when it matches the time step of now or one step
// either side, and the matched step has not been accepted before for this
// secret. The error is non-nil only when the replay guard fails.
func (s *TotpService) Verify(ctx context.Context, code, secret string, now time.Time) (bool, error) {
	if len(code) != int(otp.DigitsSix) {
		return false, nil
	}

	opts := totp.ValidateOpts{Period: totpPeriod, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}

	matched := int64(-1)
	for step := -totpSkew; step <= totpSkew; step++ {
		at := now.Add(time.Duration(step*totpPeriod) * time.Second)
		expected, err := totp.GenerateCodeCustom(secret, at, opts)
		if err != nil {
			s.log.Debug(ctx, "totp secret unusable", "error", err)
			return false, nil
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 && matched < 0 {
			matched = at.Unix() / totpPeriod
		}
	}
	if matched < 0 {
		return false, nil
	}

	if s.guard == nil {
		return true, nil
	}
	first, err := s.guard.Consume(ctx, common.HashToken(secret), matched, totpReplayTTL)
	if err != nil {
		return false, fmt.Errorf("totp replay guard: %w", err)
	}
	if !first {
		s.log.Debug(ctx, "totp code replayed", "counter", matched)
		return false, nil
	}
	return true, nil
}
