// Package domain is the service boundary in front of the storage engine,
// the aggregation engine and the migration subsystem.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/migration"
	"example.com/healthconnect/internal/observability"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/pkg/auth"
)

var (
	// ErrAPIBlocked rejects data calls while a migration is in progress.
	ErrAPIBlocked = errs.New(errs.CodeUnavailable, "api is blocked while migration is in progress")
	// ErrNoCaller is returned when a call carries no package identity.
	ErrNoCaller = errs.New(errs.CodeUnauthenticated, "calling package is unknown")
)

// Caller is the package on whose behalf a call runs.
type Caller struct {
	Package     string
	Permissions []string
}

// CallerFromClaims maps token claims onto a caller.
func CallerFromClaims(c *auth.Claims) Caller {
	if c == nil {
		return Caller{}
	}
	return Caller{Package: c.Package, Permissions: c.Permissions}
}

func (c Caller) visibility() filter.Visibility {
	return filter.ForCaller(c.Package, c.Permissions)
}

func (c Caller) has(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Service orchestrates record, aggregation and migration calls.
type Service struct {
	eng      *storage.Engine
	migrator *migration.Migrator
	log      *zerolog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the base logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs a Service.
func NewService(eng *storage.Engine, migrator *migration.Migrator, opts ...Option) *Service {
	s := &Service{
		eng:      eng,
		migrator: migrator,
		log:      logger.Named("domain"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// observe records the outcome of one call and logs failures.
func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	code := errs.CodeOf(err)
	observability.ObserveCall(op, code.String(), s.now().Sub(start))
	if err == nil {
		return
	}
	l := logger.From(ctx, s.log)
	ev := l.Warn()
	if code == errs.CodeInternal || code == errs.CodeUnknown {
		ev = l.Error()
	}
	ev.Err(err).Str("op", op).Str("code", code.String()).Msg("call failed")
}

func requireCaller(c Caller) error {
	if c.Package == "" {
		return ErrNoCaller
	}
	return nil
}

// guard fails with ErrAPIBlocked when a migration holds the gate.
func (s *Service) guard(ctx context.Context) error {
	blocked, err := s.migrator.Gate().Blocked(ctx)
	if err != nil {
		return err
	}
	if blocked {
		return ErrAPIBlocked
	}
	return nil
}

// mutate runs fn in one transaction after checking the gate inside it.
func (s *Service) mutate(ctx context.Context, fn func(storage.Tx) error) error {
	return s.eng.Transact(ctx, func(tx storage.Tx) error {
		blocked, err := migration.BlockedTx(ctx, tx)
		if err != nil {
			return err
		}
		if blocked {
			return ErrAPIBlocked
		}
		return fn(tx)
	})
}

// stamp checks write access for every record and sets its data origin to
// the caller.
func stamp(c Caller, recs []record.Record) ([]record.Record, error) {
	vis := c.visibility()
	out := make([]record.Record, 0, len(recs))
	for i, r := range recs {
		if !r.Kind().Valid() {
			return nil, errs.InvalidArgument("record %d: unsupported record kind %q", i, r.Kind())
		}
		if !vis.CanWrite(r.Kind()) {
			return nil, errs.Newf(errs.CodeForbidden, "record %d: caller may not write %s", i, r.Kind())
		}
		if o := r.Origin(); o != "" && o != c.Package {
			return nil, errs.InvalidArgument("record %d: data origin %q does not match calling package %q", i, o, c.Package)
		}
		r = r.Clone()
		r.Metadata.DataOrigin.PackageName = c.Package
		out = append(out, r)
	}
	return out, nil
}

func validateAll(recs []record.Record) error {
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return errs.Wrap(err, errs.CodeInvalidArgument, fmt.Sprintf("record %d", i))
		}
	}
	return nil
}

// Insert stores recs atomically and returns their ids in input order.
func (s *Service) Insert(ctx context.Context, c Caller, recs []record.Record) (ids []string, err error) {
	defer func(start time.Time) { s.observe(ctx, "insert", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return nil, err
	}
	stamped, err := stamp(c, recs)
	if err != nil {
		return nil, err
	}
	if err := validateAll(stamped); err != nil {
		return nil, err
	}
	err = s.mutate(ctx, func(tx storage.Tx) error {
		var err error
		ids, err = s.eng.InsertTx(ctx, tx, stamped)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.written(stamped)
	return ids, nil
}

// Update replaces stored records. Either every record is applied or none.
func (s *Service) Update(ctx context.Context, c Caller, recs []record.Record) (err error) {
	defer func(start time.Time) { s.observe(ctx, "update", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return err
	}
	stamped, err := stamp(c, recs)
	if err != nil {
		return err
	}
	if err := validateAll(stamped); err != nil {
		return err
	}
	err = s.mutate(ctx, func(tx storage.Tx) error {
		return s.eng.UpdateTx(ctx, tx, stamped)
	})
	if err != nil {
		return err
	}
	s.written(stamped)
	return nil
}

func (s *Service) written(recs []record.Record) {
	at := s.now()
	for _, r := range recs {
		observability.RecordWritten(string(r.Kind()), at)
	}
}

// DeleteByFilter removes the caller's records, or any records for a
// privileged caller, that match spec.
func (s *Service) DeleteByFilter(ctx context.Context, c Caller, spec filter.Spec) (n int, err error) {
	defer func(start time.Time) { s.observe(ctx, "delete_by_filter", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return 0, err
	}
	if err := checkKinds(spec.Kinds); err != nil {
		return 0, err
	}
	vis := c.visibility()
	err = s.mutate(ctx, func(tx storage.Tx) error {
		var err error
		n, err = s.eng.DeleteByFilterTx(ctx, tx, vis, spec)
		return err
	})
	if err != nil {
		return 0, err
	}
	observability.RecordsDeleted(n)
	return n, nil
}

// DeleteByIDs removes the referenced records. References that do not
// resolve are ignored.
func (s *Service) DeleteByIDs(ctx context.Context, c Caller, refs []storage.RecordRef) (n int, err error) {
	defer func(start time.Time) { s.observe(ctx, "delete_by_ids", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return 0, err
	}
	if err := checkRefs(refs); err != nil {
		return 0, err
	}
	vis := c.visibility()
	err = s.mutate(ctx, func(tx storage.Tx) error {
		var err error
		n, err = s.eng.DeleteByIDsTx(ctx, tx, vis, refs)
		return err
	})
	if err != nil {
		return 0, err
	}
	observability.RecordsDeleted(n)
	return n, nil
}

// ReadByIDs returns the visible referenced records.
func (s *Service) ReadByIDs(ctx context.Context, c Caller, refs []storage.RecordRef) (out []record.Record, err error) {
	defer func(start time.Time) { s.observe(ctx, "read_by_ids", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return nil, err
	}
	if err := checkRefs(refs); err != nil {
		return nil, err
	}
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	return s.eng.ReadByIDs(ctx, c.visibility(), refs)
}

// ReadByFilter returns one page of visible records matching req.
func (s *Service) ReadByFilter(ctx context.Context, c Caller, req storage.ReadRequest) (page storage.Page, err error) {
	defer func(start time.Time) { s.observe(ctx, "read_by_filter", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return storage.Page{}, err
	}
	if err := checkKinds(req.Spec.Kinds); err != nil {
		return storage.Page{}, err
	}
	vis := c.visibility()
	for _, k := range req.Spec.Kinds {
		if !vis.CanReadAny(k) {
			return storage.Page{}, errs.Newf(errs.CodeForbidden, "caller may not read %s", k)
		}
	}
	if err := s.guard(ctx); err != nil {
		return storage.Page{}, err
	}
	return s.eng.ReadByFilter(ctx, vis, req)
}

// ChangesToken returns a change feed token positioned at the current end of
// the change log.
func (s *Service) ChangesToken(ctx context.Context, c Caller, kinds []record.Kind, origins []string) (tok string, err error) {
	defer func(start time.Time) { s.observe(ctx, "changes_token", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return "", err
	}
	vis := c.visibility()
	for _, k := range kinds {
		if k.Valid() && !vis.CanReadAny(k) {
			return "", errs.Newf(errs.CodeForbidden, "caller may not read %s", k)
		}
	}
	return s.eng.ChangesToken(ctx, kinds, origins)
}

// Changes returns the visible changes after token.
func (s *Service) Changes(ctx context.Context, c Caller, token string) (resp storage.ChangesResponse, err error) {
	defer func(start time.Time) { s.observe(ctx, "changes", start, err) }(s.now())
	if err := requireCaller(c); err != nil {
		return storage.ChangesResponse{}, err
	}
	if err := s.guard(ctx); err != nil {
		return storage.ChangesResponse{}, err
	}
	return s.eng.Changes(ctx, c.visibility(), token)
}

func checkKinds(kinds []record.Kind) error {
	for _, k := range kinds {
		if !k.Valid() {
			return errs.InvalidArgument("unsupported record kind %q", k)
		}
	}
	return nil
}

func checkRefs(refs []storage.RecordRef) error {
	for i, ref := range refs {
		if ref.ID == "" && ref.ClientRecordID == "" {
			return errs.InvalidArgument("reference %d: id or client record id is required", i)
		}
		if ref.Kind != "" && !ref.Kind.Valid() {
			return errs.InvalidArgument("reference %d: unsupported record kind %q", i, ref.Kind)
		}
		if ref.ID == "" && ref.Kind == "" {
			return errs.InvalidArgument("reference %d: client record id lookups need a kind", i)
		}
	}
	return nil
}
