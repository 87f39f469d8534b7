package config

import "time"

const (
	DefaultStateDir       = "/var/cache/releasekeeper"
	DefaultKeepReleases   = 5
	DefaultDaemonInterval = 10 * time.Minute
	DefaultDebounce       = 2 * time.Second
	DefaultRedisPrefix    = "revision-deploys"
	DefaultNATSBucket     = "revision-deploys"
	DefaultEventSubject   = "releasekeeper.releases"
	DefaultRevisionLength = 10
)

func applyDefaults(cfg *Config) {
	if cfg.State.Backend == "" {
		cfg.State.Backend = StateBackendFile
	}
	if cfg.State.Backend == StateBackendFile && cfg.State.Dir == "" {
		cfg.State.Dir = DefaultStateDir
	}
	if cfg.State.Redis.Prefix == "" {
		cfg.State.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.State.NATS.Bucket == "" {
		cfg.State.NATS.Bucket = DefaultNATSBucket
	}

	for i := range cfg.Applications {
		app := &cfg.Applications[i]
		if app.KeepReleases == 0 {
			app.KeepReleases = DefaultKeepReleases
		}
		if app.Assets.RevisionLength == 0 {
			app.Assets.RevisionLength = DefaultRevisionLength
		}
	}

	if cfg.Daemon.Interval == 0 {
		cfg.Daemon.Interval = DefaultDaemonInterval
	}
	if cfg.Daemon.Debounce == 0 {
		cfg.Daemon.Debounce = DefaultDebounce
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = DefaultEventSubject
	}
	if mode := NormalizeRetryBackoff(string(cfg.Retry.Mode)); mode != "" {
		cfg.Retry.Mode = mode
	}
}
