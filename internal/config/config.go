package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all the configuration for the application.
type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Redis      `yaml:"redis"`
	Links      `yaml:"links"`
	Policy     `yaml:"policy"`
	Images     `yaml:"images"`
	Events     `yaml:"events"`
	Logging    `yaml:"logging"`
	RateLimit  `yaml:"rate_limit"`
}

// HTTPServer holds HTTP API server configuration.
type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host            string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password        string `yaml:"password" env:"DB_PASSWORD"`
	DBName          string `yaml:"dbname" env:"DB_NAME" env-default:"slink"`
	SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	Timezone        string `yaml:"timezone" env:"DB_TIMEZONE" env-default:"UTC"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"50"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
	AutoMigrate     bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
	SeedData        bool   `yaml:"seed_data" env:"DB_SEED_DATA" env-default:"false"`
}

// Redis holds the projection store connection settings.
type Redis struct {
	URL       string `yaml:"url" env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// PlatformDomain is a short domain operated by the platform itself. When
// AllowedHosts is not empty, destinations must be on one of those hosts.
type PlatformDomain struct {
	Slug         string   `yaml:"slug"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// Links holds link creation settings.
type Links struct {
	// Storage selects the canonical store: "postgres" or "memory".
	Storage          string           `yaml:"storage" env:"LINKS_STORAGE" env-default:"postgres"`
	Projection       string           `yaml:"projection" env:"LINKS_PROJECTION" env-default:"redis"`
	DefaultDomain    string           `yaml:"default_domain" env:"LINKS_DEFAULT_DOMAIN" env-default:"slk.sh"`
	PlatformDomains  []PlatformDomain `yaml:"platform_domains"`
	DefaultRedirects []string         `yaml:"default_redirects" env:"LINKS_DEFAULT_REDIRECTS" env-separator:"," env-default:"home,blog,pricing,changelog,help,docs,login,signin,register,signup,app,dashboard,links,settings,api,stats,welcome,about,contact,terms,privacy,metatags"`
	KeyLength        int              `yaml:"key_length" env:"LINKS_KEY_LENGTH" env-default:"7"`
	MaxKeyAttempts   int              `yaml:"max_key_attempts" env:"LINKS_MAX_KEY_ATTEMPTS" env-default:"10"`
}

// IsPlatformDomain reports whether slug is the default domain or one of the
// configured platform domains.
func (l *Links) IsPlatformDomain(slug string) bool {
	_, ok := l.PlatformDomain(slug)
	return ok
}

// PlatformDomain returns the platform domain entry for slug. The default
// domain is always a platform domain without host restrictions.
func (l *Links) PlatformDomain(slug string) (PlatformDomain, bool) {
	slug = strings.ToLower(slug)
	for _, d := range l.PlatformDomains {
		if strings.ToLower(d.Slug) == slug {
			return d, true
		}
	}
	if slug == strings.ToLower(l.DefaultDomain) {
		return PlatformDomain{Slug: l.DefaultDomain}, true
	}
	return PlatformDomain{}, false
}

// Policy holds reserved and blacklisted name lists.
type Policy struct {
	// Source selects the lookup backend: "static" or "redis".
	Source             string   `yaml:"source" env:"POLICY_SOURCE" env-default:"static"`
	RedisPrefix        string   `yaml:"redis_prefix" env:"POLICY_REDIS_PREFIX" env-default:"policy"`
	ReservedKeys       []string `yaml:"reserved_keys" env:"POLICY_RESERVED_KEYS" env-separator:","`
	BlacklistedKeys    []string `yaml:"blacklisted_keys" env:"POLICY_BLACKLISTED_KEYS" env-separator:","`
	ReservedUsernames  []string `yaml:"reserved_usernames" env:"POLICY_RESERVED_USERNAMES" env-separator:","`
	BlacklistedDomains []string `yaml:"blacklisted_domains" env:"POLICY_BLACKLISTED_DOMAINS" env-separator:","`
	BlacklistedTerms   []string `yaml:"blacklisted_terms" env:"POLICY_BLACKLISTED_TERMS" env-separator:","`
}

// Images holds image hosting credentials. Empty CloudName disables uploads.
type Images struct {
	CloudName string        `yaml:"cloud_name" env:"IMAGES_CLOUD_NAME"`
	APIKey    string        `yaml:"api_key" env:"IMAGES_API_KEY"`
	APISecret string        `yaml:"api_secret" env:"IMAGES_API_SECRET"`
	BaseURL   string        `yaml:"base_url" env:"IMAGES_BASE_URL" env-default:"https://api.cloudinary.com/v1_1"`
	Folder    string        `yaml:"folder" env:"IMAGES_FOLDER"`
	Timeout   time.Duration `yaml:"timeout" env:"IMAGES_TIMEOUT" env-default:"15s"`
}

// Events holds link event sink settings. Empty URL logs events instead.
type Events struct {
	URL             string        `yaml:"url" env:"EVENTS_URL"`
	Token           string        `yaml:"token" env:"EVENTS_TOKEN"`
	Datasource      string        `yaml:"datasource" env:"EVENTS_DATASOURCE" env-default:"links_metadata"`
	Workers         int           `yaml:"workers" env:"EVENTS_WORKERS" env-default:"3"`
	BufferSize      int           `yaml:"buffer_size" env:"EVENTS_BUFFER_SIZE" env-default:"1000"`
	RetryAttempts   int           `yaml:"retry_attempts" env:"EVENTS_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"EVENTS_RETRY_DELAY" env-default:"1s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"EVENTS_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// Logging holds log output settings.
type Logging struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"28"`
}

// RateLimit holds per-client API rate limits. Zero RPS disables limiting.
// TrustXFF makes X-Forwarded-For / X-Real-IP the client key; enable it only
// behind a proxy that sets these headers.
type RateLimit struct {
	RPS          float64       `yaml:"rps" env:"RATE_LIMIT_RPS" env-default:"20"`
	Burst        int           `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"40"`
	TrustXFF     bool          `yaml:"trust_xff" env:"RATE_LIMIT_TRUST_XFF" env-default:"false"`
	IdleTTL      time.Duration `yaml:"idle_ttl" env:"RATE_LIMIT_IDLE_TTL" env-default:"15m"`
	CleanupEvery time.Duration `yaml:"cleanup_every" env:"RATE_LIMIT_CLEANUP_EVERY" env-default:"2m"`
}

// MustLoad loads the application configuration.
func MustLoad() *Config {
	// Try to load .env file (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	var cfg Config

	// Check if config file path is specified
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/local.yml" // default path
	}

	// Try to load config file
	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			log.Fatalf("cannot read config: %s", err)
		}
	} else {
		// If config file doesn't exist, use environment variables only
		log.Println("Config file not found, using environment variables only")
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("cannot read config from environment: %s", err)
		}
	}

	return &cfg
}
