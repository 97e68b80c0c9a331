package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jo-hoe/bannerforge/internal/generation"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultMaxBytes        = 20 << 20
	defaultMaxDimension    = 2048
	defaultSvgFallbackSize = 1024
	defaultCacheTTL        = 5 * time.Minute
	defaultFetchTimeout    = 30 * time.Second
	defaultEndpoint        = "https://api.openai.com/v1/images/edits"
	defaultModel           = "gpt-image-1"
	defaultUploadBucket    = "product-images"
	defaultIdentityHeader  = "X-User-Id"
	defaultIdentityCookie  = "bannerforge_user"
	ObjectsRoute           = "/objects"
)

// Environment variables holding secrets. Secrets never live in the YAML file.
const (
	EnvImageAPIKey        = "OPENAI_API_KEY"
	EnvBackendURL         = "SUPABASE_URL"
	EnvBackendKey         = "SUPABASE_SERVICE_ROLE_KEY"
	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvConfigPath         = "CONFIG_PATH"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type ObjectStore struct {
	Type            string `yaml:"type"`
	Root            string `yaml:"root"`
	PublicBaseURL   string `yaml:"publicBaseURL"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	GeneratedBucket string `yaml:"generatedBucket"`
	UploadBucket    string `yaml:"uploadBucket"`
}

type Cache struct {
	Type         string        `yaml:"type"`
	TTL          time.Duration `yaml:"ttl"`
	RedisAddress string        `yaml:"redisAddress"`
}

type RateLimit struct {
	Interval time.Duration `yaml:"interval"`
	Burst    int           `yaml:"burst"`
}

type Generation struct {
	Endpoint  string    `yaml:"endpoint"`
	Model     string    `yaml:"model"`
	RateLimit RateLimit `yaml:"rateLimit"`
}

type Fetch struct {
	MaxBytes             int64         `yaml:"maxBytes"`
	Timeout              time.Duration `yaml:"timeout"`
	BlockPrivateNetworks bool          `yaml:"blockPrivateNetworks"`
}

type Uploads struct {
	MaxBytes        int64 `yaml:"maxBytes"`
	MaxDimension    int   `yaml:"maxDimension"`
	SvgFallbackSize int   `yaml:"svgFallbackSize"`
}

// Identity names where the upstream auth proxy puts the user id.
type Identity struct {
	Header string `yaml:"header"`
	Cookie string `yaml:"cookie"`
}

// Secrets are read from the environment by LoadSecrets.
type Secrets struct {
	ImageAPIKey        string
	BackendURL         string
	BackendKey         string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
}

func (s Secrets) pipelineSecrets() generation.Secrets {
	return generation.Secrets{
		ImageAPIKey: s.ImageAPIKey,
		BackendURL:  s.BackendURL,
		BackendKey:  s.BackendKey,
	}
}

type ServiceConfig struct {
	Port        int         `yaml:"port"`
	Database    Database    `yaml:"database"`
	ObjectStore ObjectStore `yaml:"objectStore"`
	Cache       Cache       `yaml:"cache"`
	Generation  Generation  `yaml:"generation"`
	Fetch       Fetch       `yaml:"fetch"`
	Uploads     Uploads     `yaml:"uploads"`
	Identity    Identity    `yaml:"identity"`

	Secrets Secrets `yaml:"-"`
}

// ConfigPath resolves the config file: the explicit path if set, then
// CONFIG_PATH, then config.yaml in the working directory.
func ConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if configPath := os.Getenv(EnvConfigPath); configPath != "" {
		return configPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	return filepath.Join(cwd, "config.yaml"), nil
}

// LoadConfig loads configuration from the specified YAML file and the secrets
// from the environment.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	config.Secrets = LoadSecrets()
	return config, nil
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (*ServiceConfig, error) {
	var config ServiceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func LoadSecrets() Secrets {
	return Secrets{
		ImageAPIKey:        os.Getenv(EnvImageAPIKey),
		BackendURL:         os.Getenv(EnvBackendURL),
		BackendKey:         os.Getenv(EnvBackendKey),
		AWSAccessKeyID:     os.Getenv(EnvAWSAccessKeyID),
		AWSSecretAccessKey: os.Getenv(EnvAWSSecretAccessKey),
	}
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.ConnectionString == "" {
		c.Database.ConnectionString = "file:banners.db"
	}

	if c.ObjectStore.Type == "" {
		c.ObjectStore.Type = "filesystem"
	}
	if c.ObjectStore.Type == "filesystem" {
		if c.ObjectStore.Root == "" {
			c.ObjectStore.Root = filepath.Join("data", "objects")
		}
		if c.ObjectStore.PublicBaseURL == "" {
			c.ObjectStore.PublicBaseURL = fmt.Sprintf("http://localhost:%d%s", c.Port, ObjectsRoute)
		}
	}
	if c.ObjectStore.GeneratedBucket == "" {
		c.ObjectStore.GeneratedBucket = generation.GeneratedBucket
	}
	if c.ObjectStore.UploadBucket == "" {
		c.ObjectStore.UploadBucket = defaultUploadBucket
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaultCacheTTL
	}

	if c.Generation.Endpoint == "" {
		c.Generation.Endpoint = defaultEndpoint
	}
	if c.Generation.Model == "" {
		c.Generation.Model = defaultModel
	}
	if c.Generation.RateLimit.Interval > 0 && c.Generation.RateLimit.Burst <= 0 {
		c.Generation.RateLimit.Burst = 1
	}

	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = defaultMaxBytes
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = defaultFetchTimeout
	}
	if c.Uploads.MaxBytes == 0 {
		c.Uploads.MaxBytes = defaultMaxBytes
	}
	if c.Uploads.MaxDimension == 0 {
		c.Uploads.MaxDimension = defaultMaxDimension
	}
	if c.Uploads.SvgFallbackSize == 0 {
		c.Uploads.SvgFallbackSize = defaultSvgFallbackSize
	}

	if c.Identity.Header == "" {
		c.Identity.Header = defaultIdentityHeader
	}
	if c.Identity.Cookie == "" {
		c.Identity.Cookie = defaultIdentityCookie
	}
}

func (c *ServiceConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	switch c.Database.Type {
	case "sqlite", "supabase":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	switch c.ObjectStore.Type {
	case "filesystem", "supabase", "s3":
	default:
		return fmt.Errorf("unsupported object store type: %s", c.ObjectStore.Type)
	}
	if c.ObjectStore.GeneratedBucket == c.ObjectStore.UploadBucket {
		return fmt.Errorf("generated and upload bucket must differ, both are %s", c.ObjectStore.UploadBucket)
	}

	switch c.Cache.Type {
	case "", "none", "memory", "redis":
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
	if c.Cache.Type == "redis" && c.Cache.RedisAddress == "" {
		return fmt.Errorf("redis cache requires redisAddress")
	}

	if c.Generation.RateLimit.Interval < 0 {
		return fmt.Errorf("generation rate limit interval must not be negative")
	}
	if c.Uploads.MaxDimension < 0 || c.Uploads.SvgFallbackSize < 0 {
		return fmt.Errorf("upload dimensions must not be negative")
	}
	return nil
}
