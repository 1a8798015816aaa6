// Package service contains the application service that hosts the contract core.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/events"
	"github.com/and161185/econtract/internal/limiter"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository"
	"github.com/and161185/econtract/internal/storage"
)

// ContractService defines the hosted contract operations. The actor is the
// authenticated user id performing the call.
type ContractService interface {
	// Create assigns missing ids, validates and stores a new contract.
	Create(ctx context.Context, actor string, rec model.Record) (*model.Contract, error)
	// Get returns one contract.
	Get(ctx context.Context, id string) (*model.Contract, error)
	// List returns contracts matching the filter, newest first.
	List(ctx context.Context, f repository.Filter) ([]*model.Contract, error)
	// UpdateStatus changes the lifecycle status.
	UpdateStatus(ctx context.Context, actor, id string, s model.Status) (*model.Contract, error)
	// AddParty appends a party, assigning an id when empty.
	AddParty(ctx context.Context, actor, id string, p model.Party) (*model.Contract, error)
	// AddFile records an already stored file.
	AddFile(ctx context.Context, actor, id string, f model.File) (*model.Contract, error)
	// AttachUpload stores the upload in object storage and records it as a file.
	AttachUpload(ctx context.Context, actor, id string, up Upload) (*model.Contract, error)
	// FileLink returns a download URL for one file of the contract.
	FileLink(ctx context.Context, id, fileID string) (string, error)
	// Sign records the signature of a party on behalf of the actor.
	Sign(ctx context.Context, actor, id string, req SignRequest) (*model.Contract, error)
	// ReconcileExpired moves contracts past their end time to expired.
	ReconcileExpired(ctx context.Context, now time.Time) (int, error)
	// FullySigned evaluates completeness under the configured signing rule.
	FullySigned(c *model.Contract) bool
}

// ObjectStore keeps uploaded file bodies.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Ref is the stable address kept in the file record.
	Ref(key string) string
	// Presign returns a short-lived download URL.
	Presign(ctx context.Context, key string) (string, error)
}

// SignRequest is the signature payload of one party.
type SignRequest struct {
	PartyID        string
	SignatureImage string
	SignatureData  string
	IPAddress      string
	DeviceInfo     string
}

// Upload is a file body to attach.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
	Primary     bool
}

// Config holds the lifecycle rules of the service.
type Config struct {
	SigningRule       model.SigningRule
	StrictTransitions bool
	AutoActivate      bool
	MaxList           int
}

type ContractServiceImpl struct {
	repo   repository.ContractRepository
	cfg    Config
	pub    events.Publisher
	store  ObjectStore
	lim    limiter.Limiter
	log    *zap.Logger
	tracer trace.Tracer
	clock  model.Clock
}

var _ ContractService = (*ContractServiceImpl)(nil)

// Option configures optional collaborators.
type Option func(*ContractServiceImpl)

func WithPublisher(p events.Publisher) Option { return func(s *ContractServiceImpl) { s.pub = p } }
func WithObjectStore(o ObjectStore) Option   { return func(s *ContractServiceImpl) { s.store = o } }
func WithLimiter(l limiter.Limiter) Option    { return func(s *ContractServiceImpl) { s.lim = l } }
func WithLogger(l *zap.Logger) Option         { return func(s *ContractServiceImpl) { s.log = l } }
func WithTracer(t trace.Tracer) Option        { return func(s *ContractServiceImpl) { s.tracer = t } }
func WithClock(c model.Clock) Option          { return func(s *ContractServiceImpl) { s.clock = c } }

// NewContractService constructs ContractService with the given repository and rules.
func NewContractService(repo repository.ContractRepository, cfg Config, opts ...Option) *ContractServiceImpl {
	if cfg.MaxList <= 0 {
		cfg.MaxList = 100
	}
	if cfg.SigningRule == "" {
		cfg.SigningRule = model.SignatoriesOnly
	}
	s := &ContractServiceImpl{
		repo:   repo,
		cfg:    cfg,
		pub:    events.Nop{},
		log:    zap.NewNop(),
		tracer: otel.Tracer("github.com/and161185/econtract/internal/service"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("component", "service.contracts"))
	return s
}

func (s *ContractServiceImpl) now() time.Time { return s.clock().UTC() }

func (s *ContractServiceImpl) start(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ContractService."+op, trace.WithAttributes(attribute.String("contract.id", id)))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func newID() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Create validates the record and stores it.
// Missing contract, party and file ids are generated.
func (s *ContractServiceImpl) Create(ctx context.Context, actor string, rec model.Record) (c *model.Contract, err error) {
	ctx, span := s.start(ctx, "Create", rec.ID)
	defer func() { finish(span, err) }()

	if rec.ID == "" {
		if rec.ID, err = newID(); err != nil {
			return nil, err
		}
	}
	rec.Parties = append([]model.Party(nil), rec.Parties...)
	for i := range rec.Parties {
		if rec.Parties[i].ID == "" {
			if rec.Parties[i].ID, err = newID(); err != nil {
				return nil, err
			}
		}
	}
	rec.Files = append([]model.File(nil), rec.Files...)
	for i := range rec.Files {
		if rec.Files[i].ID == "" {
			if rec.Files[i].ID, err = newID(); err != nil {
				return nil, err
			}
		}
	}

	c = model.New(rec, model.WithClock(s.clock))
	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}
	if err = s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info("contract created", zap.String("id", c.ID()), zap.String("actor", actor))
	s.publish(ctx, events.Event{Kind: events.KindCreated, ContractID: c.ID(), Actor: actor, Status: c.Status()})
	return c, nil
}

// Get returns one contract.
func (s *ContractServiceImpl) Get(ctx context.Context, id string) (c *model.Contract, err error) {
	ctx, span := s.start(ctx, "Get", id)
	defer func() { finish(span, err) }()
	if id == "" {
		return nil, fmt.Errorf("validation: empty id: %w", errs.ErrInvalidInput)
	}
	return s.repo.Get(ctx, id)
}

// List validates the filter and caps the page size.
func (s *ContractServiceImpl) List(ctx context.Context, f repository.Filter) (out []*model.Contract, err error) {
	ctx, span := s.start(ctx, "List", "")
	defer func() { finish(span, err) }()

	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("validation: filter status %q: %w", f.Status, errs.ErrInvalidStatus)
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, fmt.Errorf("validation: filter type %q: %w", f.Type, errs.ErrInvalidInput)
	}
	if f.Offset < 0 {
		return nil, fmt.Errorf("validation: negative offset: %w", errs.ErrInvalidInput)
	}
	if f.Limit <= 0 || f.Limit > s.cfg.MaxList {
		f.Limit = s.cfg.MaxList
	}
	return s.repo.List(ctx, f)
}

// UpdateStatus applies the status change, honoring the strict table when enabled.
func (s *ContractServiceImpl) UpdateStatus(
	ctx context.Context, actor, id string, status model.Status,
) (c *model.Contract, err error) {
	ctx, span := s.start(ctx, "UpdateStatus", id)
	defer func() { finish(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("validation: status %q: %w", status, errs.ErrInvalidStatus)
	}
	var prev model.Status
	c, err = s.repo.Update(ctx, id, func(c *model.Contract) error {
		prev = c.Status()
		if s.cfg.StrictTransitions && !model.CanTransition(prev, status) {
			return fmt.Errorf("%s -> %s: %w", prev, status, errs.ErrTransitionDenied)
		}
		return c.UpdateStatus(status)
	})
	if err != nil {
		return nil, err
	}
	if prev != status {
		s.statusChanged(ctx, actor, c, prev)
	}
	return c, nil
}

// AddParty appends a party.
func (s *ContractServiceImpl) AddParty(ctx context.Context, actor, id string, p model.Party) (c *model.Contract, err error) {
	ctx, span := s.start(ctx, "AddParty", id)
	defer func() { finish(span, err) }()

	if p.ID == "" {
		if p.ID, err = newID(); err != nil {
			return nil, err
		}
	}
	c, err = s.repo.Update(ctx, id, func(c *model.Contract) error { return c.AddParty(p) })
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Kind: events.KindPartyAdded, ContractID: id, Actor: actor, PartyID: p.ID, Status: c.Status()})
	return c, nil
}

// AddFile records a file whose body is stored elsewhere.
func (s *ContractServiceImpl) AddFile(ctx context.Context, actor, id string, f model.File) (c *model.Contract, err error) {
	ctx, span := s.start(ctx, "AddFile", id)
	defer func() { finish(span, err) }()

	if f.ID == "" {
		if f.ID, err = newID(); err != nil {
			return nil, err
		}
	}
	if f.FileSize < 0 {
		return nil, fmt.Errorf("validation: negative file size: %w", errs.ErrInvalidInput)
	}
	c, err = s.repo.Update(ctx, id, func(c *model.Contract) error { return c.AddFile(f) })
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{Kind: events.KindFileAdded, ContractID: id, Actor: actor, FileID: f.ID, Status: c.Status()})
	return c, nil
}

// AttachUpload streams the body to object storage and records the file with
// the stable object address. Download URLs are minted by FileLink.
func (s *ContractServiceImpl) AttachUpload(ctx context.Context, actor, id string, up Upload) (c *model.Contract, err error) {
	ctx, span := s.start(ctx, "AttachUpload", id)
	defer func() { finish(span, err) }()

	if s.store == nil {
		return nil, fmt.Errorf("object storage: %w", errs.ErrUnavailable)
	}
	if up.Body == nil || up.Name == "" {
		return nil, fmt.Errorf("validation: empty upload: %w", errs.ErrInvalidInput)
	}
	if _, err = s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	fileID, err := newID()
	if err != nil {
		return nil, err
	}
	key := storage.ObjectKey(id, fileID, up.Name)
	if err = s.store.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, err
	}
	s.log.Debug("upload stored", zap.String("id", id), zap.String("key", key), zap.Int64("size", up.Size))

	f := model.File{
		ID:        fileID,
		FileName:  up.Name,
		FileType:  up.ContentType,
		FileSize:  up.Size,
		FileURL:   s.store.Ref(key),
		IsPrimary: up.Primary,
	}
	c, err = s.AddFile(ctx, actor, id, f)
	if err != nil {
		s.discard(ctx, key)
		return nil, err
	}
	return c, nil
}

// FileLink presigns files kept in object storage. Files recorded with an
// external URL are returned as stored.
func (s *ContractServiceImpl) FileLink(ctx context.Context, id, fileID string) (link string, err error) {
	ctx, span := s.start(ctx, "FileLink", id)
	defer func() { finish(span, err) }()

	c, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	for _, f := range c.Files() {
		if f.ID != fileID {
			continue
		}
		if s.store == nil {
			return f.FileURL, nil
		}
		key := storage.ObjectKey(id, f.ID, f.FileName)
		if f.FileURL != s.store.Ref(key) {
			return f.FileURL, nil
		}
		return s.store.Presign(ctx, key)
	}
	return "", fmt.Errorf("file %q: %w", fileID, errs.ErrNotFound)
}

// discard removes an object whose file record could not be saved, when the
// store supports deletion.
func (s *ContractServiceImpl) discard(ctx context.Context, key string) {
	d, ok := s.store.(interface {
		Delete(ctx context.Context, key string) error
	})
	if !ok {
		return
	}
	if err := d.Delete(ctx, key); err != nil {
		s.log.Warn("orphan upload not removed", zap.String("key", key), zap.Error(err))
	}
}

// Sign records a party signature. A party bound to a user may only be signed
// by that user; closed and expired contracts cannot be signed. With
// AutoActivate a pending contract becomes active once fully signed.
func (s *ContractServiceImpl) Sign(ctx context.Context, actor, id string, req SignRequest) (c *model.Contract, err error) {
	ctx, span := s.start(ctx, "Sign", id)
	defer func() { finish(span, err) }()

	if req.PartyID == "" {
		return nil, fmt.Errorf("validation: empty party id: %w", errs.ErrInvalidInput)
	}
	ipHash := limiter.HashIP(req.IPAddress)
	if s.lim != nil {
		allowed, retry, lerr := s.lim.Allow(ctx, actor, ipHash)
		if lerr != nil {
			return nil, lerr
		}
		if !allowed {
			return nil, fmt.Errorf("retry in %s: %w", retry.Round(time.Second), errs.ErrRateLimited)
		}
	}

	var (
		prev      model.Status
		activated bool
	)
	c, err = s.repo.Update(ctx, id, func(c *model.Contract) error {
		p, ok := c.Party(req.PartyID)
		if !ok {
			return fmt.Errorf("party %q: %w", req.PartyID, errs.ErrPartyNotFound)
		}
		if p.UserID != "" && p.UserID != actor {
			return fmt.Errorf("party %q belongs to another user: %w", p.ID, errs.ErrForbidden)
		}
		prev = c.Status()
		if prev.Closed() || c.ExpiredAt(s.now()) {
			return fmt.Errorf("sign %s contract: %w", prev, errs.ErrTransitionDenied)
		}
		if err := c.AddSignature(p.ID, model.Signature{
			SignatureImage: req.SignatureImage,
			SignatureData:  req.SignatureData,
			IPAddress:      req.IPAddress,
			DeviceInfo:     req.DeviceInfo,
		}); err != nil {
			return err
		}
		if s.cfg.AutoActivate && prev == model.StatusPending && c.FullySignedUnder(s.cfg.SigningRule) {
			activated = true
			return c.UpdateStatus(model.StatusActive)
		}
		return nil
	})
	if err != nil {
		s.recordRejection(ctx, actor, ipHash, err)
		return nil, err
	}
	if s.lim != nil {
		if lerr := s.lim.Success(ctx, actor, ipHash); lerr != nil {
			s.log.Warn("limiter reset failed", zap.Error(lerr))
		}
	}

	sig, _ := c.Signature(req.PartyID)
	s.log.Info("contract signed",
		zap.String("id", id), zap.String("party", req.PartyID), zap.Bool("fully_signed", s.FullySigned(c)))
	s.publish(ctx, events.Event{
		Kind:       events.KindSigned,
		ContractID: id,
		Actor:      actor,
		PartyID:    req.PartyID,
		Status:     c.Status(),
		Digest:     events.SignatureDigest(id, sig),
	})
	if activated {
		s.statusChanged(ctx, actor, c, prev)
	}
	return c, nil
}

func (s *ContractServiceImpl) recordRejection(ctx context.Context, actor string, ipHash []byte, err error) {
	if s.lim == nil || !(errors.Is(err, errs.ErrForbidden) || errors.Is(err, errs.ErrPartyNotFound)) {
		return
	}
	blocked, _, lerr := s.lim.Failure(ctx, actor, ipHash)
	if lerr != nil {
		s.log.Warn("limiter failure record failed", zap.Error(lerr))
		return
	}
	if blocked {
		s.log.Warn("signing blocked", zap.String("actor", actor))
	}
}

var errNotDue = errors.New("not due")

// ReconcileExpired transitions contracts whose end time passed before now to
// expired and returns how many changed. Failures of single contracts are
// logged and joined into the returned error.
func (s *ContractServiceImpl) ReconcileExpired(ctx context.Context, now time.Time) (n int, err error) {
	ctx, span := s.start(ctx, "ReconcileExpired", "")
	defer func() { finish(span, err) }()

	ids, err := s.repo.ListExpiring(ctx, now)
	if err != nil {
		return 0, err
	}
	var failures []error
	for _, id := range ids {
		var prev model.Status
		c, uerr := s.repo.Update(ctx, id, func(c *model.Contract) error {
			prev = c.Status()
			if prev == model.StatusExpired || prev.Closed() || !c.ExpiredAt(now) {
				return errNotDue
			}
			return c.UpdateStatus(model.StatusExpired)
		})
		switch {
		case uerr == nil:
			n++
			s.statusChanged(ctx, "", c, prev)
		case errors.Is(uerr, errNotDue), errors.Is(uerr, errs.ErrNotFound):
		default:
			s.log.Warn("expire contract failed", zap.String("id", id), zap.Error(uerr))
			failures = append(failures, fmt.Errorf("contract %q: %w", id, uerr))
		}
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}
	}
	return n, errors.Join(failures...)
}

// FullySigned evaluates completeness under the configured signing rule.
func (s *ContractServiceImpl) FullySigned(c *model.Contract) bool {
	return c.FullySignedUnder(s.cfg.SigningRule)
}

func (s *ContractServiceImpl) statusChanged(ctx context.Context, actor string, c *model.Contract, prev model.Status) {
	s.log.Info("contract status changed",
		zap.String("id", c.ID()), zap.String("from", string(prev)), zap.String("to", string(c.Status())))
	s.publish(ctx, events.Event{
		Kind:       events.KindStatusChanged,
		ContractID: c.ID(),
		Actor:      actor,
		Status:     c.Status(),
		PrevStatus: prev,
	})
}

func (s *ContractServiceImpl) publish(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
