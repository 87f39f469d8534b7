// Package config loads the releasekeeper YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	State        StateConfig   `yaml:"state"`
	Applications []Application `yaml:"applications"`
	Daemon       DaemonConfig  `yaml:"daemon"`
	Events       EventsConfig  `yaml:"events"`
	Retry        RetryConfig   `yaml:"retry"`
}

// StateBackend selects where release history is persisted.
type StateBackend string

const (
	StateBackendFile   StateBackend = "file"
	StateBackendSQLite StateBackend = "sqlite"
	StateBackendRedis  StateBackend = "redis"
	StateBackendNATS   StateBackend = "nats"
)

// StateConfig configures the release history store.
type StateConfig struct {
	Backend    StateBackend `yaml:"backend"`
	Dir        string       `yaml:"dir,omitempty"`
	SQLitePath string       `yaml:"sqlite_path,omitempty"`
	Redis      RedisConfig  `yaml:"redis,omitempty"`
	NATS       NATSConfig   `yaml:"nats,omitempty"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// NATSConfig configures the JetStream key/value backend.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket,omitempty"`
}

// Application describes one revision-deployed application.
type Application struct {
	Name         string       `yaml:"name"`
	DeployTo     string       `yaml:"deploy_to"`
	KeepReleases int          `yaml:"keep_releases,omitempty"`
	PurgeUnknown *bool        `yaml:"purge_unknown,omitempty"`
	Assets       AssetsConfig `yaml:"assets,omitempty"`
}

// ShouldPurgeUnknown reports whether deploy cleanup removes untracked release
// directories. Defaults to true. The daemon additionally requires
// daemon.purge_unknown.
func (a Application) ShouldPurgeUnknown() bool {
	return a.PurgeUnknown == nil || *a.PurgeUnknown
}

// AssetsConfig configures precompiled asset manifest download.
type AssetsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Bucket         string `yaml:"bucket,omitempty"`
	Region         string `yaml:"region,omitempty"`
	Endpoint       string `yaml:"endpoint,omitempty"`
	AccessKey      string `yaml:"access_key,omitempty"`
	SecretKey      string `yaml:"secret_key,omitempty"`
	LocalDir       string `yaml:"local_dir,omitempty"`
	RevisionLength int    `yaml:"revision_length,omitempty"`
}

// DaemonConfig configures the reconcile daemon. PurgeUnknown lets scheduled
// reconciles delete untracked release directories; it is off by default
// because a deploy's checkout stays untracked until it is recorded.
type DaemonConfig struct {
	Interval     time.Duration `yaml:"interval,omitempty"`
	Watch        bool          `yaml:"watch"`
	Debounce     time.Duration `yaml:"debounce,omitempty"`
	MetricsAddr  string        `yaml:"metrics_addr,omitempty"`
	PurgeUnknown bool          `yaml:"purge_unknown"`
}

// EventsConfig configures release lifecycle event publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// RetryConfig configures retries of transient object store fetches.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode,omitempty"`
	Initial    time.Duration    `yaml:"initial,omitempty"`
	Max        time.Duration    `yaml:"max,omitempty"`
	MaxRetries int              `yaml:"max_retries,omitempty"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").WithContext("path", configPath).Build()
		}
		return nil, errors.ConfigError("failed to read config file").WithCause(err).WithContext("path", configPath).Build()
	}

	return Parse(data)
}

// Parse decodes configuration from YAML, expanding environment variables first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.ConfigError("failed to unmarshal config").WithCause(err).Build()
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Application returns the configured application with the given name.
func (c *Config) Application(name string) (*Application, error) {
	for i := range c.Applications {
		if c.Applications[i].Name == name {
			return &c.Applications[i], nil
		}
	}
	return nil, errors.NotFoundError("application not configured").WithContext("app", name).Build()
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}

	purge := true
	example := Config{
		State: StateConfig{Backend: StateBackendFile, Dir: DefaultStateDir},
		Applications: []Application{
			{
				Name:         "shop",
				DeployTo:     "/srv/www/shop",
				KeepReleases: DefaultKeepReleases,
				PurgeUnknown: &purge,
				Assets: AssetsConfig{
					Enabled:   true,
					Bucket:    "shop-assets",
					Region:    "us-east-1",
					AccessKey: "${S3_KEY}",
					SecretKey: "${S3_SECRET}",
				},
			},
		},
		Daemon: DaemonConfig{Interval: DefaultDaemonInterval, Watch: true},
		Retry:  RetryConfig{Mode: RetryBackoffLinear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return errors.InternalError("failed to marshal config").WithCause(err).Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.FileSystemError("failed to write config file").WithCause(err).WithContext("path", configPath).Build()
	}
	return nil
}
