package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

const placeholderKey = "CHANGE_ME_IN_PRODUCTION"

type Config struct {
	AppName    string `json:"app_name" yaml:"app_name" env:"DAYBOOK_APP_NAME"`
	ListenIP   string `json:"listen_ip" yaml:"listen_ip" env:"DAYBOOK_LISTEN_IP"`
	ListenPort int    `json:"listen_port" yaml:"listen_port" env:"DAYBOOK_LISTEN_PORT"`

	SessionKey     string `json:"session_key" yaml:"session_key" env:"DAYBOOK_SESSION_KEY"`
	SessionMaxAge  int    `json:"session_max_age" yaml:"session_max_age" env:"DAYBOOK_SESSION_MAX_AGE"` // seconds
	SecureCookies  bool   `json:"secure_cookies" yaml:"secure_cookies" env:"DAYBOOK_SECURE_COOKIES"`
	PasswordHasher string `json:"password_hasher" yaml:"password_hasher" env:"DAYBOOK_PASSWORD_HASHER"`
	BcryptCost     int    `json:"bcrypt_cost" yaml:"bcrypt_cost" env:"DAYBOOK_BCRYPT_COST"`

	DatabaseDriver string `json:"database_driver" yaml:"database_driver" env:"DAYBOOK_DATABASE_DRIVER"`
	DatabasePath   string `json:"database_path" yaml:"database_path" env:"DAYBOOK_DATABASE_PATH"`

	UploadBackend string `json:"upload_backend" yaml:"upload_backend" env:"DAYBOOK_UPLOAD_BACKEND"`
	UploadDir     string `json:"upload_dir" yaml:"upload_dir" env:"DAYBOOK_UPLOAD_DIR"`
	MaxUploadSize int64  `json:"max_upload_size" yaml:"max_upload_size" env:"DAYBOOK_MAX_UPLOAD_SIZE"`
	ImageMaxWidth int    `json:"image_max_width" yaml:"image_max_width" env:"DAYBOOK_IMAGE_MAX_WIDTH"`

	S3Bucket    string `json:"s3_bucket" yaml:"s3_bucket" env:"DAYBOOK_S3_BUCKET"`
	S3Region    string `json:"s3_region" yaml:"s3_region" env:"DAYBOOK_S3_REGION"`
	S3Endpoint  string `json:"s3_endpoint" yaml:"s3_endpoint" env:"DAYBOOK_S3_ENDPOINT"`
	S3AccessKey string `json:"s3_access_key" yaml:"s3_access_key" env:"DAYBOOK_S3_ACCESS_KEY"`
	S3SecretKey string `json:"s3_secret_key" yaml:"s3_secret_key" env:"DAYBOOK_S3_SECRET_KEY"`

	LogLevel  string `json:"log_level" yaml:"log_level" env:"DAYBOOK_LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" env:"DAYBOOK_LOG_FORMAT"`

	ReadTimeout     time.Duration `json:"-" yaml:"-" env:"DAYBOOK_READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"-" yaml:"-" env:"DAYBOOK_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"-" yaml:"-" env:"DAYBOOK_SHUTDOWN_TIMEOUT"`
}

// Defaults returns a development configuration: local sqlite file, local
// upload directory, bcrypt hashing.
func Defaults() *Config {
	return &Config{
		AppName:         "Daybook",
		ListenIP:        "127.0.0.1",
		ListenPort:      8080,
		SessionMaxAge:   86400 * 7,
		PasswordHasher:  "bcrypt",
		BcryptCost:      12,
		DatabaseDriver:  "sqlite3",
		DatabasePath:    "./daybook.db",
		UploadBackend:   "local",
		UploadDir:       "static/uploads",
		MaxUploadSize:   10 << 20,
		LogLevel:        "info",
		LogFormat:       "text",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load applies defaults, then the file at path (skipped when path is
// empty), then DAYBOOK_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.SessionKey == "" || cfg.SessionKey == placeholderKey {
		slog.Warn("no session key configured, generating a random key; sessions will be invalidated on restart")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return nil, err
		}
		cfg.SessionKey = hex.EncodeToString(randomKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}

	switch c.UploadBackend {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("upload_dir is required for the local backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown upload backend %q", c.UploadBackend)
	}

	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unknown password hasher %q", c.PasswordHasher)
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenIP, c.ListenPort)
}
