package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/pkg/httpx"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/spf13/viper"
)

// Store drivers accepted by AUTH_STORE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Config struct {
	Issuer        string        // Issuer claim stamped into and required on every token
	AccessSecret  string        // HMAC secret for access tokens (empty: random per process)
	RefreshSecret string        // HMAC secret for refresh tokens (empty: random per process)
	AccessTTL     time.Duration // Access token lifetime (default: 60s)
	RefreshTTL    time.Duration // Refresh token and cookie lifetime (default: 30m)
	SessionTTL    time.Duration // Hard cap on a session regardless of rotation (default: 24h)

	StoreDriver   string // sqlite or mongo (default: sqlite)
	DatabaseFile  string // SQLite database path (default: auth.db)
	MongoURI      string // MongoDB connection string
	MongoDatabase string // MongoDB database name (default: tabauth)
	PepperFile    string // Password pepper, created on first start (default: /run/secrets/pepper)

	CookieDomain string // Domain attribute of the refresh cookie (default: host only)
	CookiePath   string // Path attribute of the refresh cookie (default: /)

	SeedUsername string   // Optional: user created on an empty credential store
	SeedPassword string   // Optional: generated and logged once when empty
	SeedRoles    []string // Roles for the seed user (default: admin)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired session purge interval (default: 5m)

	RateLimits httpx.RateLimits
}

// LoadConfig reads the environment, and the env-style file named by
// AUTH_CONFIG_FILE when set. Environment variables win over the file.
func LoadConfig() (Config, error) {
	v := viper.New()

	if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	var errs []error
	duration := func(key string) time.Duration {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
		}
		return d
	}

	cfg := Config{
		Issuer:        v.GetString("AUTH_ISSUER"),
		AccessSecret:  v.GetString("AUTH_ACCESS_SECRET"),
		RefreshSecret: v.GetString("AUTH_REFRESH_SECRET"),
		AccessTTL:     duration("AUTH_ACCESS_TTL"),
		RefreshTTL:    duration("AUTH_REFRESH_TTL"),
		SessionTTL:    duration("AUTH_SESSION_TTL"),

		StoreDriver:   strings.ToLower(strings.TrimSpace(v.GetString("AUTH_STORE_DRIVER"))),
		DatabaseFile:  v.GetString("AUTH_DATABASE_FILE"),
		MongoURI:      v.GetString("AUTH_MONGO_URI"),
		MongoDatabase: v.GetString("AUTH_MONGO_DATABASE"),
		PepperFile:    v.GetString("AUTH_PEPPER_FILE"),

		CookieDomain: v.GetString("AUTH_COOKIE_DOMAIN"),
		CookiePath:   v.GetString("AUTH_COOKIE_PATH"),

		SeedUsername: strings.TrimSpace(v.GetString("AUTH_SEED_USERNAME")),
		SeedPassword: v.GetString("AUTH_SEED_PASSWORD"),
		SeedRoles:    splitList(v.GetString("AUTH_SEED_ROLES")),

		Env:                  v.GetString("ENV"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogFormat:            v.GetString("LOG_FORMAT"),
		Port:                 v.GetInt("PORT"),
		ShutdownGracePeriod:  duration("SHUTDOWN_GRACE_PERIOD"),
		HousekeepingInterval: duration("HOUSEKEEPING_INTERVAL"),

		RateLimits: httpx.RateLimits{
			Strict:   rateLimit(v, "STRICT"),
			Moderate: rateLimit(v, "MODERATE"),
			Lenient:  rateLimit(v, "LENIENT"),
		},
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("AUTH_ISSUER", "tabauth")
	v.SetDefault("AUTH_ACCESS_SECRET", "")
	v.SetDefault("AUTH_REFRESH_SECRET", "")
	v.SetDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL.String())
	v.SetDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL.String())
	v.SetDefault("AUTH_SESSION_TTL", service.DefaultSessionTTL.String())

	v.SetDefault("AUTH_STORE_DRIVER", DriverSQLite)
	v.SetDefault("AUTH_DATABASE_FILE", "auth.db")
	v.SetDefault("AUTH_MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("AUTH_MONGO_DATABASE", "tabauth")
	v.SetDefault("AUTH_PEPPER_FILE", "/run/secrets/pepper")

	v.SetDefault("AUTH_COOKIE_DOMAIN", "")
	v.SetDefault("AUTH_COOKIE_PATH", "/")

	v.SetDefault("AUTH_SEED_USERNAME", "")
	v.SetDefault("AUTH_SEED_PASSWORD", "")
	v.SetDefault("AUTH_SEED_ROLES", "admin")

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("PORT", 8080)
	v.SetDefault("SHUTDOWN_GRACE_PERIOD", "10s")
	v.SetDefault("HOUSEKEEPING_INTERVAL", service.DefaultHousekeepingInterval.String())

	for tier, def := range map[string]httpx.RateLimitConfig{
		"STRICT":   httpx.DefaultRateLimits.Strict,
		"MODERATE": httpx.DefaultRateLimits.Moderate,
		"LENIENT":  httpx.DefaultRateLimits.Lenient,
	} {
		v.SetDefault("RATELIMIT_"+tier+"_REQUESTS", def.RequestsPerWindow)
		v.SetDefault("RATELIMIT_"+tier+"_WINDOW_SEC", int(def.Window/time.Second))
		v.SetDefault("RATELIMIT_"+tier+"_BURST", def.Burst)
	}
}

func rateLimit(v *viper.Viper, tier string) httpx.RateLimitConfig {
	return httpx.RateLimitConfig{
		RequestsPerWindow: v.GetInt("RATELIMIT_" + tier + "_REQUESTS"),
		Window:            time.Duration(v.GetInt("RATELIMIT_"+tier+"_WINDOW_SEC")) * time.Second,
		Burst:             v.GetInt("RATELIMIT_" + tier + "_BURST"),
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Issuer == "" {
		errs = append(errs, errors.New("config: AUTH_ISSUER must be set"))
	}
	for name, d := range map[string]time.Duration{
		"AUTH_ACCESS_TTL":  c.AccessTTL,
		"AUTH_REFRESH_TTL": c.RefreshTTL,
		"AUTH_SESSION_TTL": c.SessionTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive", name))
		}
	}
	if c.RefreshTTL > c.SessionTTL {
		errs = append(errs, errors.New("config: AUTH_REFRESH_TTL must not exceed AUTH_SESSION_TTL"))
	}

	for name, s := range map[string]string{
		"AUTH_ACCESS_SECRET":  c.AccessSecret,
		"AUTH_REFRESH_SECRET": c.RefreshSecret,
	} {
		if s != "" && len(s) < jwtx.MinSecretLength {
			errs = append(errs, fmt.Errorf("config: %s must be at least %d bytes", name, jwtx.MinSecretLength))
		}
	}
	if c.AccessSecret != "" && c.AccessSecret == c.RefreshSecret {
		errs = append(errs, errors.New("config: AUTH_ACCESS_SECRET and AUTH_REFRESH_SECRET must differ"))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("config: AUTH_DATABASE_FILE must be set"))
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			errs = append(errs, errors.New("config: AUTH_MONGO_URI and AUTH_MONGO_DATABASE must be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown AUTH_STORE_DRIVER %q", c.StoreDriver))
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}

	return errors.Join(errs...)
}

// parseDuration accepts a Go duration ("90s", "1h") or an integer number of
// minutes.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if minutes, err := strconv.Atoi(s); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}
	return 0, fmt.Errorf("invalid duration %q", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
