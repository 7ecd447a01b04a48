package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/sitekeeper/internal/cryptox"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/config"
	"github.com/dmitrijs2005/sitekeeper/internal/server/hashpool"
	"github.com/dmitrijs2005/sitekeeper/internal/server/mail"
	"github.com/dmitrijs2005/sitekeeper/internal/server/replay"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sitekeeper/internal/server/services"
	"github.com/dmitrijs2005/sitekeeper/internal/server/session"
	"github.com/redis/go-redis/v9"
)

const totpKeyPurpose = "sitekeeper totp secrets v1"

// NewRepositoryManager returns the PostgreSQL repositories with TOTP secrets
// sealed under a key derived from cfg.SecretKey. Changing the secret makes
// existing enrollments unreadable.
func NewRepositoryManager(cfg *config.Config) (*repomanager.PostgresRepositoryManager, error) {
	key, err := cryptox.DeriveKey([]byte(cfg.SecretKey), totpKeyPurpose)
	if err != nil {
		return nil, err
	}
	sealer, err := cryptox.NewSealer(key)
	if err != nil {
		return nil, err
	}
	return repomanager.NewPostgresRepositoryManager(repomanager.WithSecretSealer(sealer)), nil
}

// Core holds the identity components shared by the server and the admin
// CLI. It owns the database pool.
type Core struct {
	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	Codec    *auth.TokenCodec
	Sessions *session.Manager
	Gate     *services.Gate
	Identity *services.IdentityService
	Reset    *services.ResetService
	MFA      *services.MFAService
	Admin    *services.AdminService

	dispatcher *mail.Dispatcher
	// storeGuard is set when TOTP replay records live in the database and
	// need purging.
	storeGuard *replay.StoreGuard
	redis      *redis.Client
}

// NewCore builds every identity component over db. The mailer is chosen by
// cfg.MailTransport and the TOTP replay guard by cfg.RedisAddr.
func NewCore(ctx context.Context, cfg *config.Config, db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger) (*Core, error) {
	c := &Core{DB: db, Repos: rm}

	var guard auth.ReplayGuard
	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := c.redis.Ping(ctx).Err(); err != nil {
			_ = c.redis.Close()
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
		guard = replay.NewRedisGuard(c.redis)
	} else {
		c.storeGuard = replay.NewStoreGuard(rm.TotpReplay(db), log)
		guard = c.storeGuard
	}

	mailer, err := newMailer(ctx, cfg, log)
	if err != nil {
		c.closeRedis()
		return nil, err
	}
	c.dispatcher = mail.NewDispatcher(mailer, cfg.MailTimeout, log)

	hasher := auth.NewPasswordHasher(auth.Argon2Params{
		Time:      cfg.Argon2Time,
		MemoryKiB: cfg.Argon2MemoryKiB,
		Threads:   cfg.Argon2Threads,
	})
	pool := hashpool.New(hasher, cfg.HashWorkers)

	c.Codec = auth.NewTokenCodec([]byte(cfg.SecretKey), log)
	c.Sessions = session.NewManager(session.Options{
		AccessName:  cfg.AccessCookieName,
		RefreshName: cfg.RefreshCookieName,
		AccessTTL:   cfg.AccessTokenTTL,
		RefreshTTL:  cfg.RefreshTokenTTL,
		Insecure:    cfg.CookieInsecure,
	}, c.Codec)

	totp := auth.NewTotpService(cfg.TOTPIssuer, guard, log)
	c.Gate = services.NewGate(db, rm, log)

	c.Identity, err = services.NewIdentityService(ctx, db, rm, pool, c.Codec, totp, c.Gate,
		services.TokenTTLs{Access: cfg.AccessTokenTTL, Refresh: cfg.RefreshTokenTTL}, log)
	if err != nil {
		c.dispatcher.Close()
		c.closeRedis()
		return nil, err
	}

	store := services.NewResetTokenStore(db, rm, cfg.ResetTokenTTL)
	c.Reset = services.NewResetService(db, rm, store, pool, c.dispatcher,
		services.ResetOptions{MailFrom: cfg.MailFrom, BaseURL: cfg.ResetBaseURL}, log)
	c.MFA = services.NewMFAService(db, rm, totp, c.Gate, log)
	c.Admin = services.NewAdminService(db, rm, c.Identity, log)

	return c, nil
}

func newMailer(ctx context.Context, cfg *config.Config, log logging.Logger) (mail.Mailer, error) {
	switch cfg.MailTransport {
	case "s3":
		outbox, err := mail.NewS3Outbox(ctx, mail.S3Config{
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("mail outbox: %w", err)
		}
		return outbox, nil
	case "dir":
		outbox, err := mail.NewDirOutbox(cfg.MailDir)
		if err != nil {
			return nil, fmt.Errorf("mail outbox: %w", err)
		}
		return outbox, nil
	default:
		return mail.NewLogMailer(log), nil
	}
}

// Close waits for queued mail, then releases redis and the database pool.
func (c *Core) Close() error {
	c.dispatcher.Close()
	c.closeRedis()
	return c.DB.Close()
}

func (c *Core) closeRedis() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
}
