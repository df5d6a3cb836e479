// Package config loads the editor configuration from an optional YAML
// file and INVOICE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/invoicing-editor/pkg/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// INVOICE_EMAIL_WEBHOOK_URL.
const EnvPrefix = "INVOICE"

// Config holds all editor configuration.
type Config struct {
	Storage StorageConfig  `mapstructure:"storage"`
	Server  ServerConfig   `mapstructure:"server"`
	Email   EmailConfig    `mapstructure:"email"`
	Export  ExportConfig   `mapstructure:"export"`
	Log     logging.Config `mapstructure:"log"`
}

// StorageConfig selects where the three editor records are kept.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // file, memory, postgres or redis
	Dir       string `mapstructure:"dir"`
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
	RedisPass string `mapstructure:"redis_password"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ServerConfig is the local HTTP surface.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EmailConfig configures the outbound notification webhook. An empty
// WebhookURL means emails go through a mailto link instead.
type EmailConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ExportConfig says where exported PDFs go. When S3.Bucket is set the
// PDF is uploaded instead of written to Dir.
type ExportConfig struct {
	Dir string   `mapstructure:"dir"`
	S3  S3Config `mapstructure:"s3"`
}

// S3Config is the optional S3 export target.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`
	Prefix string `mapstructure:"prefix"`
}

// Load reads the configuration. path may be empty, in which case
// invoice.yaml is looked up in the working directory and the data
// directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("invoice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", defaultDataDir())
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.key_prefix", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("email.webhook_url", "")
	v.SetDefault("email.timeout", "15s")

	v.SetDefault("export.dir", ".")
	v.SetDefault("export.s3.bucket", "")
	v.SetDefault("export.s3.region", "")
	v.SetDefault("export.s3.prefix", "")

	d := logging.DefaultConfig()
	v.SetDefault("log.level", d.Level)
	v.SetDefault("log.format", string(d.Format))
	v.SetDefault("log.outputs", d.Outputs)
	v.SetDefault("log.service", d.Service)
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres backend")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Export.S3.Bucket != "" && c.Export.S3.Region == "" {
		return errors.New("export.s3.region is required when export.s3.bucket is set")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".invoice-editor"
	}
	return filepath.Join(home, ".invoice-editor")
}
