// Package config builds the runtime settings of the todo API from defaults,
// an optional .env file and the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the todo API.
//
// DatabaseURL and the S3 credentials are optional. Leaving them empty starts
// the server without the corresponding store, and the affected endpoints
// answer 503.
type Config struct {
	Port     int
	LogLevel string

	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnLifetime  time.Duration
	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration

	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string
	S3Region          string
	S3PublicURL       string
	S3PublicRead      bool

	MaxUploadSize      int64
	CORSAllowedOrigins []string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Port = 8080
	c.LogLevel = "info"
	c.DBMaxOpenConns = 25
	c.DBMaxIdleConns = 10
	c.DBConnLifetime = time.Hour
	c.StoreTimeout = 10 * time.Second
	c.ShutdownTimeout = 5 * time.Second
	c.S3Region = "us-east-1"
	c.S3PublicRead = true
	c.MaxUploadSize = 10 << 20
	c.CORSAllowedOrigins = []string{"https://*", "http://*"}
}

// DatabaseConfigured reports whether a database connection string is set.
func (c *Config) DatabaseConfigured() bool {
	return c.DatabaseURL != ""
}

// StorageConfigured reports whether enough S3 settings are present to build a client.
func (c *Config) StorageConfigured() bool {
	return c.S3Bucket != "" && c.S3AccessKeyID != "" && c.S3SecretAccessKey != ""
}

// Load reads an optional .env file, applies defaults and then overlays the
// environment. Malformed numeric, boolean or duration values are errors.
func Load() (*Config, error) {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.LoadDefaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	var err error
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, v, perr)
			return
		}
		*dst = n
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("invalid %s %q: %w", key, v, perr)
			return
		}
		*dst = d
	}

	integer("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)

	str("DATABASE_URL", &c.DatabaseURL)
	integer("DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns)
	integer("DB_MAX_IDLE_CONNS", &c.DBMaxIdleConns)
	duration("DB_CONN_MAX_LIFETIME", &c.DBConnLifetime)
	duration("STORE_TIMEOUT", &c.StoreTimeout)
	duration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)

	str("S3_ENDPOINT", &c.S3Endpoint)
	str("S3_ACCESS_KEY_ID", &c.S3AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.S3SecretAccessKey)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_REGION", &c.S3Region)
	str("S3_PUBLIC_URL", &c.S3PublicURL)

	if v, ok := lookup("S3_PUBLIC_READ"); ok && v != "" && err == nil {
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			err = fmt.Errorf("invalid S3_PUBLIC_READ %q: %w", v, perr)
		} else {
			c.S3PublicRead = b
		}
	}

	if v, ok := lookup("MAX_UPLOAD_SIZE"); ok && v != "" && err == nil {
		n, perr := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if perr != nil || n <= 0 {
			err = fmt.Errorf("invalid MAX_UPLOAD_SIZE %q", v)
		} else {
			c.MaxUploadSize = n
		}
	}

	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSAllowedOrigins = origins
	}

	if err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}
