package config

import (
	"path/filepath"

	"git.home.luguber.info/inful/releasekeeper/internal/foundation/errors"
	"git.home.luguber.info/inful/releasekeeper/internal/history"
)

// Validate checks the configuration for values the tool cannot work with.
func Validate(cfg *Config) error {
	if err := validateState(cfg.State); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Applications))
	for _, app := range cfg.Applications {
		if err := history.ValidateKey(app.Name); err != nil {
			return errors.ConfigError("invalid application name").WithCause(err).WithContext("app", app.Name).Build()
		}
		if _, dup := seen[app.Name]; dup {
			return errors.ConfigError("duplicate application name").WithContext("app", app.Name).Build()
		}
		seen[app.Name] = struct{}{}

		if !filepath.IsAbs(app.DeployTo) {
			return errors.ConfigError("deploy_to must be an absolute path").WithContext("app", app.Name).Build()
		}
		if app.KeepReleases < 1 {
			return errors.ConfigError("keep_releases must be at least 1").WithContext("app", app.Name).Build()
		}
		if app.Assets.Enabled && app.Assets.Bucket == "" && app.Assets.LocalDir == "" {
			return errors.ConfigError("assets require a bucket or local_dir").WithContext("app", app.Name).Build()
		}
	}

	if err := validateRetry(cfg.Retry); err != nil {
		return err
	}
	if cfg.Daemon.Interval < 0 {
		return errors.ConfigError("daemon interval must be positive").Build()
	}
	return nil
}

func validateState(state StateConfig) error {
	switch state.Backend {
	case StateBackendFile:
		if state.Dir == "" {
			return errors.ConfigError("state.dir is required for the file backend").Build()
		}
	case StateBackendSQLite:
		if state.SQLitePath == "" {
			return errors.ConfigError("state.sqlite_path is required for the sqlite backend").Build()
		}
	case StateBackendRedis:
		if state.Redis.Addr == "" {
			return errors.ConfigError("state.redis.addr is required for the redis backend").Build()
		}
	case StateBackendNATS:
		if state.NATS.URL == "" {
			return errors.ConfigError("state.nats.url is required for the nats backend").Build()
		}
	default:
		return errors.ConfigError("unknown state backend").WithContext("backend", string(state.Backend)).Build()
	}
	return nil
}

// validateRetry rejects retry settings no backoff policy can apply. Zero
// values are allowed and fall back to the policy defaults.
func validateRetry(r RetryConfig) error {
	switch {
	case r.Mode != "" && NormalizeRetryBackoff(string(r.Mode)) == "":
		return errors.ConfigError("unknown retry mode").WithContext("mode", string(r.Mode)).Build()
	case r.Initial < 0:
		return errors.ConfigError("retry initial delay must not be negative").WithContext("initial", r.Initial).Build()
	case r.Max < 0:
		return errors.ConfigError("retry max delay must not be negative").WithContext("max", r.Max).Build()
	case r.MaxRetries < 0:
		return errors.ConfigError("retry max_retries must not be negative").WithContext("max_retries", r.MaxRetries).Build()
	}
	return nil
}
