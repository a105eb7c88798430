package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MJE43/rps-canvas/internal/benchling"
	"github.com/MJE43/rps-canvas/internal/credentials"
)

// Token sources reported by Config.TokenSource.
const (
	TokenFromEnv     = "env"
	TokenFromKeyring = "keyring"
)

// Config is the resolved service configuration. It is read once at startup
// and passed by value; nothing reads the environment afterwards.
type Config struct {
	BaseURL      string
	Token        string
	TokenAccount string
	TokenSource  string

	KeyringService      string
	KeyringFallbackPath string

	Host string
	Port int

	RemoteTimeout time.Duration
	RateLimit     float64
	RateBurst     int

	JournalPath string

	ServerSeed string
	ClientSeed string
}

// Load reads configuration from the environment, after loading a .env file
// from the working directory when one exists. When BENCHLING_ACCESS_TOKEN is
// unset the token is looked up in the OS keyring.
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []error
	cfg := Config{
		BaseURL:             strings.TrimRight(env("BENCHLING_BASE_URL"), "/"),
		Token:               env("BENCHLING_ACCESS_TOKEN"),
		TokenAccount:        env("BENCHLING_TOKEN_ACCOUNT"),
		KeyringService:      firstNonEmpty(env("KEYRING_SERVICE"), credentials.DefaultService),
		KeyringFallbackPath: env("KEYRING_FALLBACK_PATH"),
		Host:                firstNonEmpty(env("HOST"), "0.0.0.0"),
		JournalPath:         env("JOURNAL_PATH"),
		ServerSeed:          env("RPS_SERVER_SEED"),
		ClientSeed:          env("RPS_CLIENT_SEED"),
	}

	if cfg.BaseURL == "" {
		errs = append(errs, errors.New("BENCHLING_BASE_URL is required"))
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BENCHLING_BASE_URL %q must be an absolute URL", cfg.BaseURL))
	} else if cfg.TokenAccount == "" {
		cfg.TokenAccount = u.Hostname()
	}

	var err error
	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		errs = append(errs, err)
	} else if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", cfg.Port))
	}
	if cfg.RemoteTimeout, err = durationEnv("REMOTE_TIMEOUT", benchling.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimit, err = floatEnv("REMOTE_RATE_LIMIT", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateBurst, err = intEnv("REMOTE_RATE_BURST", 1); err != nil {
		errs = append(errs, err)
	}
	if (cfg.ServerSeed == "") != (cfg.ClientSeed == "") {
		errs = append(errs, errors.New("RPS_SERVER_SEED and RPS_CLIENT_SEED must be set together"))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if cfg.Token != "" {
		cfg.TokenSource = TokenFromEnv
		return cfg, nil
	}
	store := credentials.NewStore(cfg.KeyringService, cfg.KeyringFallbackPath)
	tok, err := store.Get(cfg.TokenAccount)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return Config{}, fmt.Errorf("config: BENCHLING_ACCESS_TOKEN is unset and no token is stored for account %q", cfg.TokenAccount)
		}
		return Config{}, fmt.Errorf("config: read token from keyring: %w", err)
	}
	cfg.Token = tok
	cfg.TokenSource = TokenFromKeyring
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Seeded reports whether the provably-fair seeded source is configured.
func (c Config) Seeded() bool {
	return c.ServerSeed != "" && c.ClientSeed != ""
}

// JournalEnabled reports whether deliveries are recorded.
func (c Config) JournalEnabled() bool {
	return c.JournalPath != ""
}

// TokenFingerprint returns a short, non-reversible identifier for the token
// that is safe to log.
func (c Config) TokenFingerprint() string {
	if c.Token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.Token))
	return hex.EncodeToString(sum[:])[:12]
}

// Client returns the outbound client configuration.
func (c Config) Client() benchling.Config {
	return benchling.Config{
		BaseURL:   c.BaseURL,
		Token:     c.Token,
		Timeout:   c.RemoteTimeout,
		RateLimit: c.RateLimit,
		RateBurst: c.RateBurst,
	}
}

// String renders the config for logs with the secrets redacted.
func (c Config) String() string {
	return fmt.Sprintf("base_url=%s token_source=%s token_fp=%s addr=%s remote_timeout=%s rate_limit=%g rate_burst=%d journal=%t seeded=%t",
		c.BaseURL, c.TokenSource, c.TokenFingerprint(), c.Addr(), c.RemoteTimeout, c.RateLimit, c.RateBurst, c.JournalEnabled(), c.Seeded())
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func intEnv(key string, def int) (int, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return v, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s: invalid rate %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
