package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.Dir)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Email.Timeout)
	assert.Equal(t, "", cfg.Email.WebhookURL)
	assert.Equal(t, ".", cfg.Export.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: redis
  redis_addr: cache:6379
  key_prefix: "me:"
email:
  webhook_url: https://hooks.example.com/mail
  timeout: 5s
export:
  s3:
    bucket: invoices
    region: eu-west-1
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "me:", cfg.Storage.KeyPrefix)
	assert.Equal(t, "https://hooks.example.com/mail", cfg.Email.WebhookURL)
	assert.Equal(t, 5*time.Second, cfg.Email.Timeout)
	assert.Equal(t, "invoices", cfg.Export.S3.Bucket)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.EqualValues(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: memory\n")
	t.Setenv("INVOICE_EMAIL_WEBHOOK_URL", "https://env.example.com/hook")
	t.Setenv("INVOICE_SERVER_ADDR", "127.0.0.1:9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "https://env.example.com/hook", cfg.Email.WebhookURL)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"file ok", Config{Storage: StorageConfig{Backend: "file", Dir: "/tmp"}}, false},
		{"file without dir", Config{Storage: StorageConfig{Backend: "file"}}, true},
		{"memory", Config{Storage: StorageConfig{Backend: "memory"}}, false},
		{"postgres without dsn", Config{Storage: StorageConfig{Backend: "postgres"}}, true},
		{"redis without addr", Config{Storage: StorageConfig{Backend: "redis"}}, true},
		{"unknown backend", Config{Storage: StorageConfig{Backend: "floppy"}}, true},
		{"s3 without region", Config{Storage: StorageConfig{Backend: "memory"}, Export: ExportConfig{S3: S3Config{Bucket: "b"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
