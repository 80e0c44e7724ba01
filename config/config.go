package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIRONMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	return nil
}

// Config is resolved once at startup and passed to every component.
type Config struct {
	GO_ENV       string
	PORT         int
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL       string
	ALLOWED_ORIGINS string
	// Paper storage
	STORAGE_BACKEND string
	STORAGE_TIMEOUT time.Duration
	DATA_DIR        string
	S3_BUCKET       string
	S3_REGION       string
	S3_ENDPOINT     string
	S3_ACCESS_KEY   string
	S3_SECRET_KEY   string
	S3_PREFIX       string
	// Explanations
	LLM_PROVIDER         string
	LLM_TIMEOUT          time.Duration
	OPENAI_API_KEY       string
	OPENAI_MODEL         string
	OPENAI_BASE_URL      string
	MODEL_ACCESS_KEY     string
	INFERENCE_BASE_URL   string
	INFERENCE_MODEL      string
	EXPLAIN_ENHANCED     bool
	EXTRACT_PREFIX_MATCH bool
	// Study sessions
	FREE_SEARCH_LIMIT int
	SESSION_TTL       time.Duration
	// Stripe
	STRIPE_SECRET_KEY      string
	STRIPE_PUBLISHABLE_KEY string
	STRIPE_WEBHOOK_SECRET  string
	BASIC_PRICE_ID         string
	PLUS_PRICE_ID          string
	PRO_PRICE_ID           string
	APP_BASE_URL           string
	// Jobs and content
	CRON_ENABLED                   bool
	CRAWLER_INDEX_URL              string
	ONLY_MODERATED                 bool
	EXPLANATION_LOG_RETENTION_DAYS int
	ADMIN_EMAIL                    string
	ADMIN_PASSWORD                 string
}

const (
	StorageS3    = "s3"
	StorageLocal = "local"

	ProviderOpenAI    = "openai"
	ProviderInference = "inference"
)

// key describes one recognized setting. secretPaths are the dotted paths
// looked up in the secrets file, in order.
type key struct {
	name        string
	def         string
	secretPaths []string
	required    func(values map[string]string) bool
}

func always(map[string]string) bool { return true }

func when(name, value string) func(map[string]string) bool {
	return func(values map[string]string) bool {
		return values[name] == value
	}
}

// keys is the full set of recognized settings.
var keys = []key{
	{name: "GO_ENV", def: "development"},
	{name: "PORT", def: "8080"},
	{name: "DB_USER_NAME", def: "postgres"},
	{name: "DB_PASSWORD"},
	{name: "DB_NAME", def: "pastpapers"},
	{name: "DB_HOST", def: "localhost"},
	{name: "DB_PORT", def: "5432"},
	{name: "DB_SSL_MODE", def: "disable"},
	{name: "JWT_SECRET", required: always},
	{name: "JWT_ISSUER", def: "pastpapers-explainer-api"},
	{name: "REDIS_URL", def: "redis://localhost:6379/0"},
	{name: "ALLOWED_ORIGINS", def: "http://localhost:3000,http://localhost:8501"},

	{name: "STORAGE_BACKEND", def: StorageLocal},
	{name: "STORAGE_TIMEOUT", def: "20s"},
	{name: "DATA_DIR", def: "data"},
	{name: "S3_BUCKET", required: when("STORAGE_BACKEND", StorageS3)},
	{name: "S3_REGION", def: "us-east-1"},
	{name: "S3_ENDPOINT"},
	{name: "S3_ACCESS_KEY", secretPaths: []string{"s3.ACCESS_KEY"}, required: when("STORAGE_BACKEND", StorageS3)},
	{name: "S3_SECRET_KEY", secretPaths: []string{"s3.SECRET_KEY"}, required: when("STORAGE_BACKEND", StorageS3)},
	{name: "S3_PREFIX", def: "papers"},

	{name: "LLM_PROVIDER", def: ProviderOpenAI},
	{name: "LLM_TIMEOUT", def: "60s"},
	{name: "OPENAI_API_KEY", required: when("LLM_PROVIDER", ProviderOpenAI)},
	{name: "OPENAI_MODEL", def: "gpt-4o-mini"},
	{name: "OPENAI_BASE_URL"},
	{name: "MODEL_ACCESS_KEY", required: when("LLM_PROVIDER", ProviderInference)},
	{name: "INFERENCE_BASE_URL", def: "https://inference.do-ai.run"},
	{name: "INFERENCE_MODEL", def: "openai-gpt-4o-mini"},
	{name: "EXPLAIN_ENHANCED", def: "false"},
	{name: "EXTRACT_PREFIX_MATCH", def: "false"},

	{name: "FREE_SEARCH_LIMIT", def: "3"},
	{name: "SESSION_TTL", def: "24h"},

	{name: "STRIPE_SECRET_KEY", secretPaths: []string{"stripe.SECRET_KEY"}},
	{name: "STRIPE_PUBLISHABLE_KEY", secretPaths: []string{"stripe.PUBLISHABLE_KEY"}},
	{name: "STRIPE_WEBHOOK_SECRET", secretPaths: []string{"stripe.WEBHOOK_SECRET"}},
	{name: "BASIC_PRICE_ID", def: "price_basic_monthly", secretPaths: []string{"stripe.BASIC_PRICE_ID"}},
	{name: "PLUS_PRICE_ID", def: "price_plus_monthly", secretPaths: []string{"stripe.PLUS_PRICE_ID"}},
	{name: "PRO_PRICE_ID", def: "price_pro_monthly", secretPaths: []string{"stripe.PRO_PRICE_ID"}},
	{name: "APP_BASE_URL", def: "http://localhost:3000"},

	{name: "CRON_ENABLED", def: "true"},
	{name: "CRAWLER_INDEX_URL"},
	{name: "ONLY_MODERATED", def: "false"},
	{name: "EXPLANATION_LOG_RETENTION_DAYS", def: "90"},
	{name: "ADMIN_EMAIL"},
	{name: "ADMIN_PASSWORD"},
}

// Keys returns the names of every recognized setting.
func Keys() []string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.name
	}
	return names
}

// MissingKeysError lists required settings that no source provided.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Lookup is one configuration source.
type Lookup func(name string, secretPaths []string) (string, bool)

// Overrides returns a source backed by explicit values, e.g. CLI flags.
func Overrides(values map[string]string) Lookup {
	return func(name string, _ []string) (string, bool) {
		v, ok := values[name]
		return v, ok && v != ""
	}
}

// Environment returns a source backed by the process environment.
func Environment() Lookup {
	return func(name string, _ []string) (string, bool) {
		v, ok := os.LookupEnv(name)
		return v, ok && v != ""
	}
}

// Load resolves the configuration with the standard precedence: explicit
// overrides, then the secrets file named by SECRETS_FILE (default
// secrets.yaml, optional), then the environment, then defaults.
func Load(overrides map[string]string) (*Config, error) {
	secretsPath := os.Getenv("SECRETS_FILE")
	if v, ok := overrides["SECRETS_FILE"]; ok && v != "" {
		secretsPath = v
	}
	explicit := secretsPath != ""
	if secretsPath == "" {
		secretsPath = "secrets.yaml"
	}

	secrets, err := LoadSecretsFile(secretsPath)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		secrets = nil
	}

	return Resolve(Overrides(overrides), secrets.Lookup(), Environment())
}

// Resolve builds a Config from sources in precedence order, falling back
// to each key's default.
func Resolve(sources ...Lookup) (*Config, error) {
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		values[k.name] = k.def
		for _, source := range sources {
			if source == nil {
				continue
			}
			if v, ok := source(k.name, k.secretPaths); ok {
				values[k.name] = strings.TrimSpace(v)
				break
			}
		}
	}

	var missing []string
	for _, k := range keys {
		if k.required != nil && k.required(values) && values[k.name] == "" {
			missing = append(missing, k.name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingKeysError{Keys: missing}
	}

	return build(values)
}

func build(values map[string]string) (*Config, error) {
	p := parser{values: values}

	cfg := &Config{
		GO_ENV:       values["GO_ENV"],
		PORT:         p.int("PORT"),
		DB_USER_NAME: values["DB_USER_NAME"],
		DB_PASSWORD:  values["DB_PASSWORD"],
		DB_NAME:      values["DB_NAME"],
		DB_HOST:      values["DB_HOST"],
		DB_PORT:      values["DB_PORT"],
		DB_SSL_MODE:  values["DB_SSL_MODE"],

		JWT_SECRET:      values["JWT_SECRET"],
		JWT_ISSUER:      values["JWT_ISSUER"],
		REDIS_URL:       values["REDIS_URL"],
		ALLOWED_ORIGINS: values["ALLOWED_ORIGINS"],

		STORAGE_BACKEND: strings.ToLower(values["STORAGE_BACKEND"]),
		STORAGE_TIMEOUT: p.duration("STORAGE_TIMEOUT"),
		DATA_DIR:        values["DATA_DIR"],
		S3_BUCKET:       values["S3_BUCKET"],
		S3_REGION:       values["S3_REGION"],
		S3_ENDPOINT:     values["S3_ENDPOINT"],
		S3_ACCESS_KEY:   values["S3_ACCESS_KEY"],
		S3_SECRET_KEY:   values["S3_SECRET_KEY"],
		S3_PREFIX:       values["S3_PREFIX"],

		LLM_PROVIDER:         strings.ToLower(values["LLM_PROVIDER"]),
		LLM_TIMEOUT:          p.duration("LLM_TIMEOUT"),
		OPENAI_API_KEY:       values["OPENAI_API_KEY"],
		OPENAI_MODEL:         values["OPENAI_MODEL"],
		OPENAI_BASE_URL:      values["OPENAI_BASE_URL"],
		MODEL_ACCESS_KEY:     values["MODEL_ACCESS_KEY"],
		INFERENCE_BASE_URL:   values["INFERENCE_BASE_URL"],
		INFERENCE_MODEL:      values["INFERENCE_MODEL"],
		EXPLAIN_ENHANCED:     p.bool("EXPLAIN_ENHANCED"),
		EXTRACT_PREFIX_MATCH: p.bool("EXTRACT_PREFIX_MATCH"),

		FREE_SEARCH_LIMIT: p.int("FREE_SEARCH_LIMIT"),
		SESSION_TTL:       p.duration("SESSION_TTL"),

		STRIPE_SECRET_KEY:      values["STRIPE_SECRET_KEY"],
		STRIPE_PUBLISHABLE_KEY: values["STRIPE_PUBLISHABLE_KEY"],
		STRIPE_WEBHOOK_SECRET:  values["STRIPE_WEBHOOK_SECRET"],
		BASIC_PRICE_ID:         values["BASIC_PRICE_ID"],
		PLUS_PRICE_ID:          values["PLUS_PRICE_ID"],
		PRO_PRICE_ID:           values["PRO_PRICE_ID"],
		APP_BASE_URL:           values["APP_BASE_URL"],

		CRON_ENABLED:                   p.bool("CRON_ENABLED"),
		CRAWLER_INDEX_URL:              values["CRAWLER_INDEX_URL"],
		ONLY_MODERATED:                 p.bool("ONLY_MODERATED"),
		EXPLANATION_LOG_RETENTION_DAYS: p.int("EXPLANATION_LOG_RETENTION_DAYS"),
		ADMIN_EMAIL:                    values["ADMIN_EMAIL"],
		ADMIN_PASSWORD:                 values["ADMIN_PASSWORD"],
	}

	switch cfg.STORAGE_BACKEND {
	case StorageS3, StorageLocal:
	default:
		p.fail("STORAGE_BACKEND", fmt.Errorf("must be %q or %q", StorageS3, StorageLocal))
	}

	switch cfg.LLM_PROVIDER {
	case ProviderOpenAI, ProviderInference:
	default:
		p.fail("LLM_PROVIDER", fmt.Errorf("must be %q or %q", ProviderOpenAI, ProviderInference))
	}

	if cfg.FREE_SEARCH_LIMIT < 0 {
		p.fail("FREE_SEARCH_LIMIT", errors.New("must not be negative"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether GO_ENV is production.
func (c *Config) IsProduction() bool {
	return c.GO_ENV == "production"
}

// BillingEnabled reports whether Stripe checkout can be used.
func (c *Config) BillingEnabled() bool {
	return c.STRIPE_SECRET_KEY != ""
}

type parser struct {
	values map[string]string
	errs   []error
}

func (p *parser) fail(name string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", name, err))
}

func (p *parser) int(name string) int {
	n, err := strconv.Atoi(p.values[name])
	if err != nil {
		p.fail(name, err)
	}
	return n
}

func (p *parser) bool(name string) bool {
	b, err := strconv.ParseBool(p.values[name])
	if err != nil {
		p.fail(name, err)
	}
	return b
}

func (p *parser) duration(name string) time.Duration {
	d, err := time.ParseDuration(p.values[name])
	if err != nil {
		p.fail(name, err)
	}
	return d
}
