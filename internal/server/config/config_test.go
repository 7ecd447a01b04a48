package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := &Config{}
	c.LoadDefaults()
	c.SecretKey = strings.Repeat("k", MinSecretLength)
	return c
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Empty(t, c.SecretKey)
	assert.Equal(t, 15*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, 30*24*time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, common.ResetTokenValidity, c.ResetTokenTTL)
	assert.Equal(t, time.Hour, c.ResetTokenTTL)
	assert.Equal(t, "sid", c.AccessCookieName)
	assert.Equal(t, "rid", c.RefreshCookieName)
	assert.Equal(t, runtime.NumCPU(), c.HashWorkers)
	assert.Equal(t, "log", c.MailTransport)
	assert.Equal(t, "mail", c.MailDir)
	assert.Equal(t, "10-M", c.LoginRate)
}

func TestLoadConfig_EnvSecretWins(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server", "-s", "from-flag"}
	t.Setenv(SecretEnvVar, "from-env-0123456789-0123456789-01")

	c := LoadConfig()

	assert.Equal(t, "from-env-0123456789-0123456789-01", c.SecretKey)
	assert.NoError(t, c.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http_addr":":9000","grpc_addr":":9001","secret_key":"from-file"}`), 0o600))

	noEnv := func(string) (string, bool) { return "", false }
	c := Load([]string{"-c", path, "-g", ":9100"}, noEnv)
	assert.Equal(t, ":9000", c.HTTPAddr)
	assert.Equal(t, ":9100", c.GRPCAddr)
	assert.Equal(t, "from-file", c.SecretKey)

	env := func(name string) (string, bool) {
		if name == SecretEnvVar {
			return "from-env", true
		}
		return "", false
	}
	c = Load([]string{"-c", path, "-s", "from-flag"}, env)
	assert.Equal(t, "from-env", c.SecretKey)
}

func TestParseEnv_EmptyValueIgnored(t *testing.T) {
	c := &Config{SecretKey: "keep"}
	parseEnv(c, func(string) (string, bool) { return "", true })
	assert.Equal(t, "keep", c.SecretKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "empty secret", mutate: func(c *Config) { c.SecretKey = "" }, wantErr: "not set"},
		{name: "short secret", mutate: func(c *Config) { c.SecretKey = "secretKey" }, wantErr: "at least 32 bytes"},
		{name: "zero ttl", mutate: func(c *Config) { c.AccessTokenTTL = 0 }, wantErr: "positive"},
		{name: "no workers", mutate: func(c *Config) { c.HashWorkers = 0 }, wantErr: "hash workers"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.MailTransport = "s3"; c.S3Bucket = "" }, wantErr: "bucket"},
		{name: "dir without path", mutate: func(c *Config) { c.MailTransport = "dir"; c.MailDir = "" }, wantErr: "directory"},
		{name: "dir", mutate: func(c *Config) { c.MailTransport = "dir" }},
		{name: "unknown transport", mutate: func(c *Config) { c.MailTransport = "smtp" }, wantErr: "unknown mail transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
