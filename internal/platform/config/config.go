package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultSiteName         = "Lumber Boss"
	defaultStorageBackend   = StorageBackendMemory
	defaultStorageDirectory = "data/storage"
	defaultStorageColl      = "storefrontStorage"
	defaultCatalogSource    = "data/products.json"
	defaultCatalogTimeout   = 10 * time.Second
	defaultCartStorageKey   = "lumberBossCart"
	defaultLocationKey      = "lumberboss-location"
	defaultMaxCachedCarts   = 10000
	defaultSearchDebounce   = 300 * time.Millisecond
	defaultPriceDebounce    = 500 * time.Millisecond
	defaultRatePerSecond    = 20
	defaultRateBurst        = 40
	defaultLogLevel         = "info"
	defaultLogMaxSizeMB     = 100
	defaultLogMaxBackups    = 7
	defaultLogMaxAgeDays    = 30
	defaultSessionCookie    = "LUMBER_BOSS_SESSION"
	defaultSessionTTL       = 30 * 24 * time.Hour
	defaultEnvironment      = "local"
)

// Storage backends accepted by STOREFRONT_STORAGE_BACKEND.
const (
	StorageBackendMemory    = "memory"
	StorageBackendFile      = "file"
	StorageBackendRedis     = "redis"
	StorageBackendFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Site        SiteConfig
	Server      ServerConfig
	Storage     StorageConfig
	Firestore   FirestoreConfig
	Catalog     CatalogConfig
	Cart        CartConfig
	Filters     FilterConfig
	Events      EventsConfig
	Session     SessionConfig
	RateLimits  RateLimitConfig
	Logging     LoggingConfig
	Secrets     SecretsConfig
}

// SiteConfig holds storefront branding used in derived page titles.
type SiteConfig struct {
	Name string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StorageConfig selects the durable key-value backend holding carts and preferences.
type StorageConfig struct {
	Backend       string
	Directory     string
	RedisURL      string
	RedisPassword string
	Collection    string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// CatalogConfig locates the product catalog.
type CatalogConfig struct {
	Source          string
	AuthToken       string
	FetchTimeout    time.Duration
	RefreshSchedule string
}

// CartConfig controls cart persistence keys and caching.
type CartConfig struct {
	StorageKey     string
	LocationKey    string
	MaxCachedCarts int
}

// FilterConfig controls debounce delays for live filter sessions.
type FilterConfig struct {
	SearchDebounce time.Duration
	PriceDebounce  time.Duration
}

// EventsConfig configures Pub/Sub publication of cart events. Empty topic disables publishing.
type EventsConfig struct {
	ProjectID string
	TopicID   string
}

// SessionConfig controls the visitor cookie.
type SessionConfig struct {
	CookieName string
	SigningKey string
	Secure     bool
	TTL        time.Duration
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	PerSecond int
	Burst     int
}

// LoggingConfig controls log level and optional rotated file output.
type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns a single raw value using the same precedence as Load. It lets callers
// bootstrap dependencies (logger, secret fetcher) before the full configuration is loaded.
func Lookup(key string, opts ...Option) (string, bool) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}
	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		dotEnvValues = nil
	}
	return newLookup(options, dotEnvValues)(key)
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := newLookup(options, dotEnvValues)

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENV", defaultEnvironment)),
		Site: SiteConfig{
			Name: stringWithDefault(lookup, "STOREFRONT_SITE_NAME", defaultSiteName),
		},
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(stringWithDefault(lookup, "STOREFRONT_STORAGE_BACKEND", defaultStorageBackend)),
			Directory:     stringWithDefault(lookup, "STOREFRONT_STORAGE_DIR", defaultStorageDirectory),
			RedisURL:      stringWithDefault(lookup, "STOREFRONT_REDIS_URL", ""),
			RedisPassword: stringWithDefault(lookup, "STOREFRONT_REDIS_PASSWORD", ""),
			Collection:    stringWithDefault(lookup, "STOREFRONT_STORAGE_COLLECTION", defaultStorageColl),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
		},
		Catalog: CatalogConfig{
			Source:          stringWithDefault(lookup, "STOREFRONT_CATALOG_SOURCE", defaultCatalogSource),
			AuthToken:       stringWithDefault(lookup, "STOREFRONT_CATALOG_AUTH_TOKEN", ""),
			FetchTimeout:    durationWithDefault(lookup, "STOREFRONT_CATALOG_FETCH_TIMEOUT", defaultCatalogTimeout),
			RefreshSchedule: stringWithDefault(lookup, "STOREFRONT_CATALOG_REFRESH_SCHEDULE", ""),
		},
		Cart: CartConfig{
			StorageKey:     stringWithDefault(lookup, "STOREFRONT_CART_STORAGE_KEY", defaultCartStorageKey),
			LocationKey:    stringWithDefault(lookup, "STOREFRONT_LOCATION_STORAGE_KEY", defaultLocationKey),
			MaxCachedCarts: intWithDefault(lookup, "STOREFRONT_CART_MAX_CACHED", defaultMaxCachedCarts),
		},
		Filters: FilterConfig{
			SearchDebounce: durationWithDefault(lookup, "STOREFRONT_FILTER_SEARCH_DEBOUNCE", defaultSearchDebounce),
			PriceDebounce:  durationWithDefault(lookup, "STOREFRONT_FILTER_PRICE_DEBOUNCE", defaultPriceDebounce),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "STOREFRONT_EVENTS_PROJECT_ID", ""),
			TopicID:   stringWithDefault(lookup, "STOREFRONT_EVENTS_TOPIC", ""),
		},
		Session: SessionConfig{
			CookieName: stringWithDefault(lookup, "STOREFRONT_SESSION_COOKIE", defaultSessionCookie),
			SigningKey: stringWithDefault(lookup, "STOREFRONT_SESSION_SIGNING_KEY", ""),
			TTL:        durationWithDefault(lookup, "STOREFRONT_SESSION_TTL", defaultSessionTTL),
		},
		RateLimits: RateLimitConfig{
			PerSecond: intWithDefault(lookup, "STOREFRONT_RATELIMIT_PER_SECOND", defaultRatePerSecond),
			Burst:     intWithDefault(lookup, "STOREFRONT_RATELIMIT_BURST", defaultRateBurst),
		},
		Logging: LoggingConfig{
			Level:      strings.ToLower(stringWithDefault(lookup, "STOREFRONT_LOG_LEVEL", defaultLogLevel)),
			File:       stringWithDefault(lookup, "STOREFRONT_LOG_FILE", ""),
			MaxSizeMB:  intWithDefault(lookup, "STOREFRONT_LOG_MAX_SIZE_MB", defaultLogMaxSizeMB),
			MaxBackups: intWithDefault(lookup, "STOREFRONT_LOG_MAX_BACKUPS", defaultLogMaxBackups),
			MaxAgeDays: intWithDefault(lookup, "STOREFRONT_LOG_MAX_AGE_DAYS", defaultLogMaxAgeDays),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "STOREFRONT_SECRETS_PROJECT_ID", ""),
		},
	}

	cfg.Session.Secure = boolWithDefault(lookup, "STOREFRONT_SESSION_SECURE", cfg.Environment == "prod")

	// Pub/Sub and Secret Manager default to the Firestore project when unspecified.
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Storage.RedisPassword,
		&cfg.Catalog.AuthToken,
		&cfg.Session.SigningKey,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func newLookup(options loaderOptions, dotEnvValues map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !IsSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Catalog.Source) == "" {
		missing = append(missing, "Catalog.Source")
	}
	if strings.TrimSpace(cfg.Cart.StorageKey) == "" {
		missing = append(missing, "Cart.StorageKey")
	}
	if cfg.Cart.MaxCachedCarts <= 0 {
		missing = append(missing, "Cart.MaxCachedCarts")
	}
	if cfg.Filters.SearchDebounce < 0 {
		missing = append(missing, "Filters.SearchDebounce")
	}
	if cfg.Filters.PriceDebounce < 0 {
		missing = append(missing, "Filters.PriceDebounce")
	}
	if cfg.RateLimits.PerSecond < 0 || cfg.RateLimits.Burst < 0 {
		missing = append(missing, "RateLimits")
	}

	switch cfg.Storage.Backend {
	case StorageBackendMemory:
	case StorageBackendFile:
		if strings.TrimSpace(cfg.Storage.Directory) == "" {
			missing = append(missing, "Storage.Directory")
		}
	case StorageBackendRedis:
		if strings.TrimSpace(cfg.Storage.RedisURL) == "" {
			missing = append(missing, "Storage.RedisURL")
		}
	case StorageBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Storage.Collection) == "" {
			missing = append(missing, "Storage.Collection")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}

	if cfg.Events.TopicID != "" && cfg.Events.ProjectID == "" {
		missing = append(missing, "Events.ProjectID")
	}
	if cfg.Environment == "prod" && strings.TrimSpace(cfg.Session.SigningKey) == "" {
		missing = append(missing, "Session.SigningKey")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

// IsSecretReference reports whether value points at Secret Manager.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
