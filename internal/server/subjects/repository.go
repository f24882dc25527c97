package subjects

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, id string) (*Subject, error)
	// Save creates or replaces the subject.
	Save(ctx context.Context, s *Subject) error
	Count(ctx context.Context) (int, error)
}
