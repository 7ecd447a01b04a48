package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/flagx"
	"github.com/dmitrijs2005/sitekeeper/internal/timex"
)

// JsonConfig mirrors Config for unmarshalling. Durations accept "15m" style
// strings or integer nanoseconds. Fields absent from the file leave the
// current value untouched.
type JsonConfig struct {
	HTTPAddr    string `json:"http_addr"`
	GRPCAddr    string `json:"grpc_addr"`
	DatabaseDSN string `json:"database_dsn"`
	LogLevel    string `json:"log_level"`

	SecretKey       string         `json:"secret_key"`
	AccessTokenTTL  timex.Duration `json:"access_token_ttl"`
	RefreshTokenTTL timex.Duration `json:"refresh_token_ttl"`
	ResetTokenTTL   timex.Duration `json:"reset_token_ttl"`

	AccessCookieName  string `json:"access_cookie_name"`
	RefreshCookieName string `json:"refresh_cookie_name"`
	CookieInsecure    *bool  `json:"cookie_insecure"`

	HashWorkers     int    `json:"hash_workers"`
	Argon2Time      uint32 `json:"argon2_time"`
	Argon2MemoryKiB uint32 `json:"argon2_memory_kib"`
	Argon2Threads   uint8  `json:"argon2_threads"`

	TOTPIssuer string `json:"totp_issuer"`
	RedisAddr  string `json:"redis_addr"`

	MailTransport string         `json:"mail_transport"`
	MailFrom      string         `json:"mail_from"`
	MailTimeout   timex.Duration `json:"mail_timeout"`
	MailDir       string         `json:"mail_dir"`
	ResetBaseURL  string         `json:"reset_base_url"`

	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`

	LoginRate string `json:"login_rate"`
}

// parseJson overlays values from the file named by -c/-config, if any.
// An unreadable or malformed file is fatal.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setDuration(&config.RefreshTokenTTL, c.RefreshTokenTTL)
	setDuration(&config.ResetTokenTTL, c.ResetTokenTTL)
	setString(&config.AccessCookieName, c.AccessCookieName)
	setString(&config.RefreshCookieName, c.RefreshCookieName)
	if c.CookieInsecure != nil {
		config.CookieInsecure = *c.CookieInsecure
	}
	if c.HashWorkers > 0 {
		config.HashWorkers = c.HashWorkers
	}
	if c.Argon2Time > 0 {
		config.Argon2Time = c.Argon2Time
	}
	if c.Argon2MemoryKiB > 0 {
		config.Argon2MemoryKiB = c.Argon2MemoryKiB
	}
	if c.Argon2Threads > 0 {
		config.Argon2Threads = c.Argon2Threads
	}
	setString(&config.TOTPIssuer, c.TOTPIssuer)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.MailTransport, c.MailTransport)
	setString(&config.MailFrom, c.MailFrom)
	setDuration(&config.MailTimeout, c.MailTimeout)
	setString(&config.MailDir, c.MailDir)
	setString(&config.ResetBaseURL, c.ResetBaseURL)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LoginRate, c.LoginRate)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
