package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	// Session governs the per-request snapshot cache.
	Session struct {
		SnapshotTTL string `yaml:"snapshot_ttl"`
	} `yaml:"session"`

	// JWT por realm. Cada realm tiene su propio secret, TTL y cookie.
	JWT struct {
		Admin    RealmTokenConfig `yaml:"admin"`
		Customer RealmTokenConfig `yaml:"customer"`
	} `yaml:"jwt"`

	Auth struct {
		// AdminAPIKey habilita el canal alterno X-Api-Key para el realm admin.
		AdminAPIKey string `yaml:"admin_api_key"`
	} `yaml:"auth"`

	Providers struct {
		Google   ProviderConfig `yaml:"google"`
		Facebook ProviderConfig `yaml:"facebook"`
		Apple    AppleConfig    `yaml:"apple"`
	} `yaml:"providers"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`

	Email struct {
		CodeTTL string `yaml:"code_ttl"`
	} `yaml:"email"`
}

// RealmTokenConfig configura la emisión de tokens para un realm.
// Las duraciones viajan como string en el YAML y se validan en Load.
type RealmTokenConfig struct {
	Secret     string `yaml:"secret"`
	TTL        string `yaml:"ttl"`
	CookieName string `yaml:"cookie_name"`
	Issuer     string `yaml:"issuer"`
}

// TokenTTL retorna el TTL parseado. Load ya validó el formato.
func (r RealmTokenConfig) TokenTTL() time.Duration {
	d, _ := time.ParseDuration(r.TTL)
	return d
}

// ProviderConfig son las credenciales OAuth de un provider.
type ProviderConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// AppleConfig extiende ProviderConfig con los campos propios de Sign in with Apple.
type AppleConfig struct {
	ProviderConfig `yaml:",inline"`
	TeamID         string `yaml:"team_id"`
	KeyID          string `yaml:"key_id"`
	// KeyFile es el path del .p8 con el que se firma el client secret ES256.
	KeyFile string `yaml:"key_file"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Session.SnapshotTTL == "" {
		c.Session.SnapshotTTL = "10s"
	}
	if c.JWT.Admin.TTL == "" {
		c.JWT.Admin.TTL = "8h"
	}
	if c.JWT.Customer.TTL == "" {
		c.JWT.Customer.TTL = "720h" // 30d
	}
	if c.JWT.Admin.CookieName == "" {
		c.JWT.Admin.CookieName = "admin_token"
	}
	if c.JWT.Customer.CookieName == "" {
		c.JWT.Customer.CookieName = "customer_token"
	}
	if c.Email.CodeTTL == "" {
		c.Email.CodeTTL = "10m"
	}

	applyEnvOverrides(&c)

	if c.Storage.DSN == "" {
		return nil, fmt.Errorf("config: storage.dsn is required")
	}
	if c.JWT.Admin.Secret == "" || c.JWT.Customer.Secret == "" {
		return nil, fmt.Errorf("config: jwt secrets are required for both realms")
	}
	for name, raw := range map[string]string{
		"session.snapshot_ttl": c.Session.SnapshotTTL,
		"jwt.admin.ttl":        c.JWT.Admin.TTL,
		"jwt.customer.ttl":     c.JWT.Customer.TTL,
		"email.code_ttl":       c.Email.CodeTTL,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, fmt.Errorf("config: storage.postgres.conn_max_lifetime: %w", err)
		}
	}
	return &c, nil
}

// SnapshotTTL retorna el TTL del snapshot de sesión parseado.
func (c *Config) SnapshotTTL() time.Duration {
	d, _ := time.ParseDuration(c.Session.SnapshotTTL)
	return d
}

// EmailCodeTTL retorna el TTL de los códigos de email parseado.
func (c *Config) EmailCodeTTL() time.Duration {
	d, _ := time.ParseDuration(c.Email.CodeTTL)
	return d
}

// PostgresConnMaxLifetime retorna la vida máxima de conexión, 0 si no se configuró.
func (c *Config) PostgresConnMaxLifetime() time.Duration {
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime)
	return d
}

// applyEnvOverrides permite pisar valores sensibles desde el entorno
// (secrets nunca deberían vivir en el YAML commiteado).
func applyEnvOverrides(c *Config) {
	if v := envOr("AUTHD_DSN", ""); v != "" {
		c.Storage.DSN = v
	}
	if v := envOr("AUTHD_ADMIN_JWT_SECRET", ""); v != "" {
		c.JWT.Admin.Secret = v
	}
	if v := envOr("AUTHD_CUSTOMER_JWT_SECRET", ""); v != "" {
		c.JWT.Customer.Secret = v
	}
	if v := envOr("AUTHD_ADMIN_API_KEY", ""); v != "" {
		c.Auth.AdminAPIKey = v
	}
	if v := envOr("AUTHD_REDIS_ADDR", ""); v != "" {
		c.Cache.Kind = "redis"
		c.Cache.Redis.Addr = v
	}
	if v := envOr("AUTHD_SMTP_PASSWORD", ""); v != "" {
		c.SMTP.Password = v
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
