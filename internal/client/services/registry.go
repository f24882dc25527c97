package services

import (
	"context"
	"errors"
	"sync"
)

// Registry hands out one service per configuration fingerprint, so the
// pending queue of a configuration is inspected once no matter how many
// call sites ask for it. Applications that want sharing hold a Registry;
// NewConsentService alone never caches.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	services map[string]ConsentService
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, services: map[string]ConsentService{}}
}

// Get returns the service for cfg, building it on first use.
func (r *Registry) Get(ctx context.Context, cfg Config) (ConsentService, error) {
	key := Fingerprint(cfg)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.services[key]; ok {
		return s, nil
	}
	s, err := NewConsentService(ctx, cfg, r.deps)
	if err != nil {
		return nil, err
	}
	r.services[key] = s
	return s, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.services)
}

// Close closes every service and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, s := range r.services {
		errs = append(errs, s.Close())
		delete(r.services, key)
	}
	return errors.Join(errs...)
}
