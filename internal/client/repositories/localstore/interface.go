package localstore

import (
	"context"
)

// UpdateFunc receives the current value (ok is false when the key is absent)
// and returns the new value. Returning keep=false deletes the key.
type UpdateFunc func(current string, ok bool) (next string, keep bool, err error)

type Repository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string]string, error)
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Clear(ctx context.Context) error
}
