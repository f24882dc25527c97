// Package services contains the consent service the CLI and embedding
// applications talk to. It composes storage, the HTTP client and the
// pending queue into the write recipe: validate, save locally, send,
// reconcile, or queue for later delivery.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/consentkeeper/internal/client/client"
	"github.com/dmitrijs2005/consentkeeper/internal/client/fetcher"
	"github.com/dmitrijs2005/consentkeeper/internal/client/jurisdiction"
	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
	"github.com/dmitrijs2005/consentkeeper/internal/client/pending"
	"github.com/dmitrijs2005/consentkeeper/internal/client/repositories/cookies"
	"github.com/dmitrijs2005/consentkeeper/internal/client/repositories/localstore"
	"github.com/dmitrijs2005/consentkeeper/internal/client/storage"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
)

var (
	ErrOfflineMode  = errors.New("service runs in offline mode")
	ErrNoDatabase   = errors.New("database is required")
	ErrNoBackendURL = errors.New("backend URL is required in hosted mode")
	ErrNoCustomAPI  = errors.New("API is required in custom mode")
	ErrUnknownMode  = errors.New("unknown mode")
)

// ConsentService records consent decisions and keeps them in sync with the
// backend.
//
// Contract:
//   - Init: resolve jurisdiction and banner visibility; falls back to a
//     local answer when the backend cannot be reached.
//   - SetConsent: store the decision locally and deliver it; delivery
//     failures queue the request and still succeed.
//   - IdentifyUser: link the stored subject to an external id.
//   - Consent / ClearConsent: read or remove the stored record.
//   - Pending / ReplayPending: inspect or deliver queued requests.
//   - Close: stop background work and release the client.
type ConsentService interface {
	Init(ctx context.Context, headers http.Header) (*models.InitResponse, error)
	SetConsent(ctx context.Context, in SetConsentInput) (*Result, error)
	IdentifyUser(ctx context.Context, in IdentifyInput) (*Result, error)
	Consent(ctx context.Context) *models.ConsentRecord
	ClearConsent(ctx context.Context) error
	Pending(ctx context.Context) ([]models.PendingOperation, error)
	ReplayPending(ctx context.Context) ([]models.PendingOperation, error)
	Ping(ctx context.Context) error
	Close() error
}

// SetConsentInput is a consent decision. Consents is merged over the stored
// decisions, so callers may send only the categories that changed.
type SetConsentInput struct {
	Consents         models.ConsentState
	Type             string
	Domain           string
	ExternalID       string
	IdentityProvider string
	Jurisdiction     string
	Metadata         map[string]string
}

type IdentifyInput struct {
	ExternalID       string
	IdentityProvider string
}

type consentService struct {
	cfg     Config
	api     client.API
	store   *storage.Storage
	queue   *pending.Queue
	logger  logging.Logger
	obs     Observer
	now     func() time.Time
	notifyW sync.WaitGroup

	closeOnce sync.Once
}

// NewConsentService builds a service from cfg and deps. Outside offline mode
// it inspects the pending queue and schedules a replay when anything is
// queued.
func NewConsentService(ctx context.Context, cfg Config, deps Deps) (ConsentService, error) {
	cfg = cfg.withDefaults()
	if deps.DB == nil {
		return nil, ErrNoDatabase
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	cookieRepo := cookies.NewSQLiteRepository(deps.DB)
	if n, err := cookieRepo.PurgeExpired(ctx, now()); err != nil {
		logger.Warn(ctx, "failed to purge expired cookies", "err", err)
	} else if n > 0 {
		logger.Debug(ctx, "purged expired cookies", "count", n)
	}
	cookieCh := storage.NewCookieChannel(cookieRepo, logger)
	local := localstore.NewSQLiteRepository(deps.DB)

	storageCfg := cfg.effectiveStorage()

	s := &consentService{
		cfg:    cfg,
		store:  storage.New(cookieCh, storage.NewLocalChannel(local), storageCfg, logger, deps.Metrics),
		logger: logger.With("component", "consent", "mode", cfg.Mode),
		obs:    deps.Observer,
		now:    now,
	}

	switch cfg.Mode {
	case ModeHosted:
		if cfg.BackendURL == "" {
			return nil, ErrNoBackendURL
		}
		s.api = client.NewHTTPClient(newFetcher(cfg, deps, cookieCh, logger), cfg.APIVersion)
	case ModeCustom:
		if deps.API == nil {
			return nil, ErrNoCustomAPI
		}
		s.api = deps.API
	case ModeOffline:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}

	pendingCfg := cfg.Pending
	pendingCfg.Prefix = cfg.pendingPrefix()
	s.queue = pending.New(local, pending.SenderFunc(s.deliver), pendingCfg, logger, deps.Metrics)

	if s.api != nil {
		s.queue.Check(ctx)
	}
	return s, nil
}

func newFetcher(cfg Config, deps Deps, jar http.CookieJar, logger logging.Logger) *fetcher.Fetcher {
	opts := []fetcher.Option{
		fetcher.WithOrigin(cfg.Origin),
		fetcher.WithCookieJar(jar),
		fetcher.WithLogger(logger),
		fetcher.WithMetrics(deps.Metrics),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, fetcher.WithHeader(k, v))
	}
	if cfg.Retry != nil {
		opts = append(opts, fetcher.WithRetryPolicy(*cfg.Retry))
	}
	if deps.Transport != nil {
		opts = append(opts, fetcher.WithTransport(deps.Transport))
	}
	for _, i := range deps.Interceptors {
		opts = append(opts, fetcher.WithInterceptor(i))
	}
	if deps.TracerProvider != nil {
		opts = append(opts, fetcher.WithTracerProvider(deps.TracerProvider))
	}
	return fetcher.New(cfg.BackendURL, opts...)
}

// Init asks the backend which jurisdiction applies. Any failure falls back
// to resolving it from the headers, so Init only fails on a nil receiver
// state.
func (s *consentService) Init(ctx context.Context, headers http.Header) (*models.InitResponse, error) {
	if s.api != nil {
		resp, err := s.api.Init(ctx, headers)
		if err == nil {
			s.notify(ctx, Event{Op: OpInit, OK: true})
			return resp, nil
		}
		s.logger.Warn(ctx, "init failed, resolving jurisdiction locally", "err", err)
	}

	resp := jurisdiction.Resolve(headers)
	s.notify(ctx, Event{Op: OpInit, OK: true})
	return resp, nil
}

func (s *consentService) SetConsent(ctx context.Context, in SetConsentInput) (*Result, error) {
	if err := s.validateConsent(&in); err != nil {
		return s.fail(ctx, OpSetConsent, err)
	}

	existing := s.store.Read(ctx)
	record := &models.ConsentRecord{
		Consents: in.Consents.Normalize(),
		ConsentInfo: models.ConsentInfo{
			Time:             s.now().UnixMilli(),
			ExternalID:       in.ExternalID,
			IdentityProvider: in.IdentityProvider,
			Type:             in.Type,
		},
	}
	if existing != nil {
		record.Consents = existing.Consents.Merge(in.Consents).Normalize()
		info := existing.ConsentInfo
		record.ConsentInfo.SubjectID = info.SubjectID
		if record.ConsentInfo.ExternalID == "" {
			record.ConsentInfo.ExternalID = info.ExternalID
			record.ConsentInfo.IdentityProvider = info.IdentityProvider
		}
		record.ConsentInfo.Identified = info.Identified && record.ConsentInfo.ExternalID == info.ExternalID
	}
	if record.ConsentInfo.SubjectID == "" {
		record.ConsentInfo.SubjectID = uuid.NewString()
	}

	s.save(ctx, record)

	if s.api == nil {
		return s.succeed(ctx, OpSetConsent, record, false)
	}

	body, err := json.Marshal(models.ConsentSubmission{
		SubjectID:        record.ConsentInfo.SubjectID,
		Type:             in.Type,
		Domain:           in.Domain,
		Preferences:      record.Consents,
		ExternalID:       record.ConsentInfo.ExternalID,
		IdentityProvider: record.ConsentInfo.IdentityProvider,
		GivenAt:          record.ConsentInfo.Time,
		Jurisdiction:     in.Jurisdiction,
		Metadata:         in.Metadata,
	})
	if err != nil {
		return s.fail(ctx, OpSetConsent, fetcher.ValidationError("failed to encode consent: %v", err))
	}

	res, err := s.api.SetConsent(ctx, body)
	if err != nil {
		return s.fallback(ctx, OpSetConsent, record, models.OperationConsentSubmission, body, err)
	}

	s.reconcileConsent(ctx, record, res)
	return s.succeed(ctx, OpSetConsent, record, false)
}

func (s *consentService) validateConsent(in *SetConsentInput) error {
	if len(in.Consents) == 0 {
		return fetcher.ValidationError("at least one consent decision is required")
	}
	for name := range in.Consents {
		if name == "" {
			return fetcher.ValidationError("consent category name is empty")
		}
	}
	if in.Domain == "" {
		in.Domain = s.cfg.Domain
	}
	if in.Domain == "" {
		return fetcher.ValidationError("domain is required")
	}
	if in.Type == "" {
		in.Type = s.cfg.ConsentType
	}
	return nil
}

// reconcileConsent copies the server-confirmed fields into the stored
// record unless a newer decision replaced it meanwhile.
func (s *consentService) reconcileConsent(ctx context.Context, record *models.ConsentRecord, res *models.ConsentResult) {
	if res == nil {
		return
	}
	record.ConsentInfo.ID = res.ID
	if res.SubjectID != "" {
		record.ConsentInfo.SubjectID = res.SubjectID
	}
	if res.ExternalID != "" && res.ExternalID == record.ConsentInfo.ExternalID {
		record.ConsentInfo.Identified = record.ConsentInfo.Identified || res.Identified
	}
	s.save(ctx, record)
}

func (s *consentService) IdentifyUser(ctx context.Context, in IdentifyInput) (*Result, error) {
	if in.ExternalID == "" {
		return s.fail(ctx, OpIdentifyUser, fetcher.ValidationError("external id is required"))
	}
	record := s.store.Read(ctx)
	if record == nil || record.ConsentInfo.SubjectID == "" {
		return s.fail(ctx, OpIdentifyUser, fetcher.ValidationError("no subject id stored; set consent first"))
	}

	info := record.ConsentInfo
	if info.Identified && info.ExternalID == in.ExternalID {
		res := &Result{OK: true, Record: record, Skipped: true}
		s.notify(ctx, Event{Op: OpIdentifyUser, OK: true, Record: record.Clone()})
		return res, nil
	}

	record.ConsentInfo.ExternalID = in.ExternalID
	record.ConsentInfo.IdentityProvider = in.IdentityProvider
	record.ConsentInfo.Identified = false
	s.save(ctx, record)

	if s.api == nil {
		return s.succeed(ctx, OpIdentifyUser, record, false)
	}

	body, err := json.Marshal(models.IdentifyRequest{
		SubjectID:        info.SubjectID,
		ExternalID:       in.ExternalID,
		IdentityProvider: in.IdentityProvider,
	})
	if err != nil {
		return s.fail(ctx, OpIdentifyUser, fetcher.ValidationError("failed to encode identify request: %v", err))
	}

	res, err := s.api.Identify(ctx, info.SubjectID, body)
	if err != nil {
		return s.fallback(ctx, OpIdentifyUser, record, models.OperationIdentifyUser, body, err)
	}

	s.reconcileIdentify(ctx, res)
	return s.succeed(ctx, OpIdentifyUser, s.store.Read(ctx), false)
}

func (s *consentService) reconcileIdentify(ctx context.Context, res *models.IdentifyResult) {
	record := s.store.Read(ctx)
	if res == nil || record == nil {
		return
	}
	if record.ConsentInfo.SubjectID != res.SubjectID && res.SubjectID != "" {
		return
	}
	if record.ConsentInfo.ExternalID != res.ExternalID {
		return
	}
	record.ConsentInfo.Identified = res.Identified
	s.save(ctx, record)
}

// fallback decides what a failed delivery means for the caller. Local
// failures surface; everything else is queued and reported as success.
func (s *consentService) fallback(ctx context.Context, op string, record *models.ConsentRecord, kind models.OperationKind, body json.RawMessage, err error) (*Result, error) {
	fe := asFetchError(err)
	switch fe.Kind {
	case fetcher.KindValidation, fetcher.KindParse:
		return s.fail(ctx, op, fe)
	}

	s.logger.Warn(ctx, "delivery failed, queueing", "op", op, "err", err)
	_, qerr := s.queue.Enqueue(ctx, models.PendingOperation{Kind: kind, Body: body})
	if qerr != nil {
		s.logger.Error(ctx, "failed to queue operation", "op", op, "err", qerr)
	}
	return s.succeed(ctx, op, record, qerr == nil)
}

// deliver sends one queued operation and reconciles storage on success.
func (s *consentService) deliver(ctx context.Context, op models.PendingOperation) error {
	switch op.Kind {
	case models.OperationConsentSubmission:
		res, err := s.api.SetConsent(ctx, op.Body)
		if err != nil {
			return err
		}
		var sub models.ConsentSubmission
		if json.Unmarshal(op.Body, &sub) == nil {
			if record := s.store.Read(ctx); record != nil && record.ConsentInfo.SubjectID == sub.SubjectID && record.ConsentInfo.Time == sub.GivenAt {
				s.reconcileConsent(ctx, record, res)
			}
		}
		s.notify(ctx, Event{Op: OpReplay, OK: true})
		return nil
	case models.OperationIdentifyUser:
		var req models.IdentifyRequest
		if err := json.Unmarshal(op.Body, &req); err != nil {
			return fmt.Errorf("failed to decode queued identify request: %w", err)
		}
		res, err := s.api.Identify(ctx, req.SubjectID, op.Body)
		if err != nil {
			return err
		}
		s.reconcileIdentify(ctx, res)
		s.notify(ctx, Event{Op: OpReplay, OK: true})
		return nil
	default:
		return fmt.Errorf("%w: %q", pending.ErrUnknownKind, op.Kind)
	}
}

func (s *consentService) save(ctx context.Context, record *models.ConsentRecord) {
	if err := s.store.Save(ctx, record); err != nil {
		s.logger.Error(ctx, "failed to store consent", "err", err)
	}
}

func (s *consentService) succeed(ctx context.Context, op string, record *models.ConsentRecord, queued bool) (*Result, error) {
	res := &Result{OK: true, Record: record, Queued: queued}
	s.notify(ctx, Event{Op: op, OK: true, Queued: queued, Record: record.Clone()})
	return res, nil
}

func (s *consentService) fail(ctx context.Context, op string, err error) (*Result, error) {
	fe := asFetchError(err)
	res := &Result{Error: fe}
	s.notify(ctx, Event{Op: op, Err: fe})
	if s.cfg.ThrowOnError {
		return res, fe
	}
	return res, nil
}

// asFetchError digs the *fetcher.Error out of err. Errors from custom API
// implementations without one count as network failures.
func asFetchError(err error) *fetcher.Error {
	var fe *fetcher.Error
	if errors.As(err, &fe) {
		return fe
	}
	return &fetcher.Error{Kind: fetcher.KindNetwork, Code: string(fetcher.KindNetwork), Message: err.Error(), Cause: err}
}

func (s *consentService) Consent(ctx context.Context) *models.ConsentRecord {
	return s.store.Read(ctx)
}

func (s *consentService) ClearConsent(ctx context.Context) error {
	return s.store.Delete(ctx)
}

func (s *consentService) Pending(ctx context.Context) ([]models.PendingOperation, error) {
	return s.queue.Pending(ctx)
}

// ReplayPending delivers the queued operations now and returns the ones
// that are still undelivered.
func (s *consentService) ReplayPending(ctx context.Context) ([]models.PendingOperation, error) {
	if s.api == nil {
		return nil, ErrOfflineMode
	}
	return s.queue.ReplayStored(ctx)
}

func (s *consentService) Ping(ctx context.Context) error {
	if s.api == nil {
		return ErrOfflineMode
	}
	return s.api.Ping(ctx)
}

// Close stops the scheduled replay, waits for observers and closes the
// client. The database belongs to the caller.
func (s *consentService) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.queue.Close()
		s.queue.Wait()
		s.notifyW.Wait()
		if s.api != nil {
			err = s.api.Close()
		}
	})
	return err
}

func (s *consentService) notify(ctx context.Context, e Event) {
	if s.obs == nil {
		return
	}
	s.notifyW.Add(1)
	go func() {
		defer s.notifyW.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(ctx, "observer panicked", "op", e.Op, "panic", r)
			}
		}()
		s.obs.OnEvent(context.WithoutCancel(ctx), e)
	}()
}
