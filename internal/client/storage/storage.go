package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/dmitrijs2005/consentkeeper/internal/client/codec"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/metrics"
)

type Storage struct {
	cookie  Channel
	local   Channel
	cfg     Config
	logger  logging.Logger
	metrics *metrics.Metrics
}

// New returns a Storage over the given channels; either may be nil.
func New(cookie, local Channel, cfg Config, logger logging.Logger, m *metrics.Metrics) *Storage {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Storage{
		cookie:  cookie,
		local:   local,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "storage"),
		metrics: m,
	}
}

// Config returns the effective default configuration.
func (s *Storage) Config() Config {
	return s.cfg
}

type Option func(*Config)

// WithDomain overrides the cookie domain for one call.
func WithDomain(domain string) Option {
	return func(c *Config) {
		if domain != "" {
			c.Domain = domain
		}
	}
}

// WithConfig replaces the configuration for one call; zero fields keep
// their defaults.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg.withDefaults()
	}
}

func (s *Storage) resolve(opts []Option) Config {
	cfg := s.cfg
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// Save writes rec to every channel. It returns an error only when every
// configured channel failed.
func (s *Storage) Save(ctx context.Context, rec *models.ConsentRecord, opts ...Option) error {
	if rec == nil {
		return nil
	}
	cfg := s.resolve(opts)

	rec = rec.Clone()
	rec.Consents = rec.Consents.Normalize()
	scope := cfg.scope()

	cookieFailed, err := s.write(ctx, cfg.StorageKey, scope, rec, s.cookie, s.local)
	if cookieFailed {
		// an older cookie would win over the newer local copy on the next read
		if derr := s.cookie.Delete(ctx, cfg.StorageKey, scope); derr != nil {
			s.warn(ctx, s.cookie, "delete", cfg.StorageKey, derr)
		}
	}
	return err
}

// write stores rec in channels. It reports whether the cookie channel was
// among the channels that failed.
func (s *Storage) write(ctx context.Context, key string, scope Scope, rec *models.ConsentRecord, channels ...Channel) (bool, error) {
	var (
		errs         []error
		attempts     int
		cookieFailed bool
	)
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		attempts++

		value, err := s.encodeFor(ch, rec)
		if err == nil {
			err = ch.Set(ctx, key, value, scope)
		}
		if err != nil {
			s.warn(ctx, ch, "set", key, err)
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			if ch == s.cookie {
				cookieFailed = true
			}
		}
	}

	if attempts > 0 && len(errs) == attempts {
		return cookieFailed, fmt.Errorf("%w: %w", ErrAllChannelsFailed, errors.Join(errs...))
	}
	return cookieFailed, nil
}

func (s *Storage) encodeFor(ch Channel, rec *models.ConsentRecord) (string, error) {
	if ch == s.cookie {
		return codec.Encode(rec), nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Read returns the stored record or nil, applying legacy migration and
// channel precedence.
func (s *Storage) Read(ctx context.Context, opts ...Option) *models.ConsentRecord {
	cfg := s.resolve(opts)
	scope := cfg.scope()

	fromCookie := s.read(ctx, s.cookie, cfg.StorageKey, scope)
	fromLocal := s.read(ctx, s.local, cfg.StorageKey, scope)

	if fromCookie == nil && fromLocal == nil {
		return s.migrateLegacy(ctx, cfg, scope)
	}

	switch {
	case fromCookie != nil && fromLocal != nil:
		restoreOmittedCustom(fromCookie, fromLocal)
		if !reflect.DeepEqual(fromCookie, fromLocal) {
			s.logger.Debug(ctx, "resyncing local storage from cookie", "key", cfg.StorageKey)
			_, _ = s.write(ctx, cfg.StorageKey, scope, fromCookie, s.local)
		}
		return fromCookie

	case fromCookie != nil:
		s.logger.Debug(ctx, "restoring local storage from cookie", "key", cfg.StorageKey)
		_, _ = s.write(ctx, cfg.StorageKey, scope, fromCookie, s.local)
		return fromCookie

	default:
		s.logger.Debug(ctx, "restoring cookie from local storage", "key", cfg.StorageKey)
		_, _ = s.write(ctx, cfg.StorageKey, scope, fromLocal, s.cookie)
		return fromLocal
	}
}

// restoreOmittedCustom copies custom categories that the cookie form drops
// (false values) from the local copy of the same decision.
func restoreOmittedCustom(cookie, local *models.ConsentRecord) {
	if cookie.ConsentInfo.Time != local.ConsentInfo.Time ||
		cookie.ConsentInfo.SubjectID != local.ConsentInfo.SubjectID {
		return
	}
	for name, granted := range local.Consents {
		if granted || models.IsStandardCategory(name) {
			continue
		}
		if _, ok := cookie.Consents[name]; !ok {
			cookie.Consents[name] = false
		}
	}
}

func (s *Storage) migrateLegacy(ctx context.Context, cfg Config, scope Scope) *models.ConsentRecord {
	legacy := cfg.LegacyStorageKey
	if legacy == "" || legacy == cfg.StorageKey {
		return nil
	}

	rec := s.read(ctx, s.cookie, legacy, scope)
	if rec == nil {
		rec = s.read(ctx, s.local, legacy, scope)
	}
	if rec == nil {
		return nil
	}

	if _, err := s.write(ctx, cfg.StorageKey, scope, rec, s.cookie, s.local); err != nil {
		// keep the legacy copy so the next read can try again
		return rec
	}
	s.remove(ctx, legacy, scope)

	s.logger.Info(ctx, "migrated consent record from legacy key",
		"from", legacy, "to", cfg.StorageKey)
	return rec
}

func (s *Storage) read(ctx context.Context, ch Channel, key string, scope Scope) *models.ConsentRecord {
	if ch == nil {
		return nil
	}
	raw, ok, err := ch.Get(ctx, key, scope)
	if err != nil {
		s.warn(ctx, ch, "get", key, err)
		return nil
	}
	if !ok {
		return nil
	}
	// Decode understands both the compact and the JSON form.
	rec := codec.Decode(raw)
	if rec == nil {
		s.logger.Warn(ctx, "ignoring unreadable consent record", "channel", ch.Name(), "key", key)
	}
	return rec
}

// Delete removes the record under the current and the legacy key from
// every channel.
func (s *Storage) Delete(ctx context.Context, opts ...Option) error {
	cfg := s.resolve(opts)
	scope := cfg.scope()

	failed := s.remove(ctx, cfg.StorageKey, scope)
	if cfg.LegacyStorageKey != "" && cfg.LegacyStorageKey != cfg.StorageKey {
		failed = append(failed, s.remove(ctx, cfg.LegacyStorageKey, scope)...)
	}

	var attempts int
	for _, ch := range []Channel{s.cookie, s.local} {
		if ch != nil {
			attempts++
		}
	}
	failedChannels := map[string]bool{}
	for _, err := range failed {
		failedChannels[err.channel] = true
	}
	if attempts > 0 && len(failedChannels) == attempts {
		errs := make([]error, len(failed))
		for i, f := range failed {
			errs[i] = f.err
		}
		return fmt.Errorf("%w: %w", ErrAllChannelsFailed, errors.Join(errs...))
	}
	return nil
}

type channelError struct {
	channel string
	err     error
}

func (s *Storage) remove(ctx context.Context, key string, scope Scope) []channelError {
	var failed []channelError
	for _, ch := range []Channel{s.cookie, s.local} {
		if ch == nil {
			continue
		}
		if err := ch.Delete(ctx, key, scope); err != nil {
			s.warn(ctx, ch, "delete", key, err)
			failed = append(failed, channelError{channel: ch.Name(), err: err})
		}
	}
	return failed
}

func (s *Storage) warn(ctx context.Context, ch Channel, op, key string, err error) {
	s.metrics.StorageFailure(ch.Name(), op)
	s.logger.Warn(ctx, "storage channel "+op+" failed", "channel", ch.Name(), "key", key, "err", err)
}
