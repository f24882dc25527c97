// Package subjects implements the backend side of consent recording:
// subjects, their consent history and identity links.
package subjects

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/common"
)

type Service struct {
	repo Repository
	now  func() time.Time

	// mu serialises read-modify-write of a subject.
	mu sync.Mutex
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// RecordConsent stores a decision. Submissions without a subject id get a
// new subject; unknown ids are created as given, so a client-generated id
// survives its first delivery. Replaying the same submission records it
// once.
func (s *Service) RecordConsent(ctx context.Context, sub models.ConsentSubmission) (*models.ConsentResult, error) {
	if len(sub.Preferences) == 0 {
		return nil, fmt.Errorf("%w: preferences are required", common.ErrorValidation)
	}
	if sub.Domain == "" {
		return nil, fmt.Errorf("%w: domain is required", common.ErrorValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.load(ctx, sub.SubjectID)
	if err != nil {
		return nil, err
	}
	if sub.ExternalID != "" {
		if subject.ExternalID != "" && subject.ExternalID != sub.ExternalID {
			return nil, fmt.Errorf("%w: subject is linked to another external id", common.ErrorConflict)
		}
		subject.ExternalID = sub.ExternalID
		subject.IdentityProvider = sub.IdentityProvider
	}

	givenAt := s.now()
	if sub.GivenAt > 0 {
		givenAt = time.UnixMilli(sub.GivenAt)
	}

	consent := Consent{
		ID:           "cns_" + uuid.NewString(),
		Domain:       sub.Domain,
		Type:         sub.Type,
		Preferences:  sub.Preferences.Clone(),
		GivenAt:      givenAt,
		Jurisdiction: sub.Jurisdiction,
		Metadata:     sub.Metadata,
	}
	if existing, ok := findDuplicate(subject.Consents, consent); ok {
		consent = existing
	} else {
		subject.Consents = append(subject.Consents, consent)
	}

	if err := s.repo.Save(ctx, subject); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	return &models.ConsentResult{
		ID:         consent.ID,
		SubjectID:  subject.ID,
		ExternalID: subject.ExternalID,
		Identified: subject.Identified(),
		GivenAt:    consent.GivenAt,
	}, nil
}

// Identify links a subject to an external id.
func (s *Service) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentifyResult, error) {
	if req.SubjectID == "" || req.ExternalID == "" {
		return nil, fmt.Errorf("%w: subject id and external id are required", common.ErrorValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject, err := s.repo.Get(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if subject.ExternalID != "" && subject.ExternalID != req.ExternalID {
		return nil, fmt.Errorf("%w: subject is linked to another external id", common.ErrorConflict)
	}

	subject.ExternalID = req.ExternalID
	subject.IdentityProvider = req.IdentityProvider
	if err := s.repo.Save(ctx, subject); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	return &models.IdentifyResult{SubjectID: subject.ID, ExternalID: subject.ExternalID, Identified: true}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Subject, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*Subject, error) {
	if id == "" {
		return &Subject{ID: "sub_" + uuid.NewString(), CreatedAt: s.now()}, nil
	}
	subject, err := s.repo.Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return &Subject{ID: id, CreatedAt: s.now()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}
	return subject, nil
}

// findDuplicate looks for an already recorded copy of c, which happens when
// a client replays a submission the backend had accepted.
func findDuplicate(list []Consent, c Consent) (Consent, bool) {
	for _, existing := range list {
		if existing.Domain == c.Domain && existing.Type == c.Type &&
			existing.GivenAt.Equal(c.GivenAt) && maps.Equal(existing.Preferences, c.Preferences) {
			return existing, true
		}
	}
	return Consent{}, false
}
