package storage

import (
	"context"

	"github.com/dmitrijs2005/consentkeeper/internal/client/repositories/localstore"
)

// LocalChannel stores values in the local_storage table. Scope is ignored.
type LocalChannel struct {
	repo localstore.Repository
}

func NewLocalChannel(repo localstore.Repository) *LocalChannel {
	return &LocalChannel{repo: repo}
}

func (c *LocalChannel) Name() string { return "local" }

func (c *LocalChannel) Get(ctx context.Context, key string, _ Scope) (string, bool, error) {
	return c.repo.Get(ctx, key)
}

func (c *LocalChannel) Set(ctx context.Context, key, value string, _ Scope) error {
	return c.repo.Set(ctx, key, value)
}

func (c *LocalChannel) Delete(ctx context.Context, key string, _ Scope) error {
	return c.repo.Delete(ctx, key)
}
