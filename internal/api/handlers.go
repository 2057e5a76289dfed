// Package api exposes HTTP handlers for the health record service.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"example.com/healthconnect/internal/aggregate"
	"example.com/healthconnect/internal/domain"
	"example.com/healthconnect/internal/errs"
	"example.com/healthconnect/internal/filter"
	"example.com/healthconnect/internal/logger"
	"example.com/healthconnect/internal/migration"
	"example.com/healthconnect/internal/record"
	"example.com/healthconnect/internal/storage"
	"example.com/healthconnect/pkg/auth"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	offsets record.OffsetProvider
	log     *zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithOffsets sets the provider used for zone offsets missing from
// submitted records.
func WithOffsets(p record.OffsetProvider) Option {
	return func(h *Handler) {
		if p != nil {
			h.offsets = p
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{service: service, offsets: record.SystemOffsets{}, log: logger.Named("api")}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RouterConfig holds the cross-cutting HTTP settings.
type RouterConfig struct {
	Auth           auth.Config
	AllowedOrigins []string
}

// Router mounts every endpoint behind request ids, panic recovery, CORS and
// bearer authentication.
func (h *Handler) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(auth.Middleware(cfg.Auth, auth.SkipProbes), h.requestContext)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/records", h.insertRecords)
		r.Put("/records", h.updateRecords)
		r.Post("/records/read", h.readRecords)
		r.Post("/records/read-by-ids", h.readRecordsByIDs)
		r.Post("/records/delete", h.deleteRecords)
		r.Post("/records/delete-by-ids", h.deleteRecordsByIDs)
		r.Post("/aggregate", h.aggregate)
		r.Post("/changes/token", h.changesToken)
		r.Get("/changes", h.changes)

		r.Post("/migration/start", h.startMigration)
		r.Post("/migration/data", h.writeMigrationData)
		r.Post("/migration/finish", h.finishMigration)
		r.Get("/migration/state", h.migrationState)
		r.Delete("/migration/staged", h.deleteStagedData)

		r.Get("/contributors", h.contributors)
		r.Get("/priority/{category}", h.getPriority)
		r.Put("/priority/{category}", h.updatePriority)
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestContext tags the request context with its id and calling package
// and logs the outcome.
func (h *Handler) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pkg string
		if claims, ok := auth.FromContext(r.Context()); ok {
			pkg = claims.Package
		}
		ctx := logger.WithRequest(r.Context(), middleware.GetReqID(r.Context()), pkg)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logger.From(ctx, h.log).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request served")
	})
}

func callerFrom(r *http.Request) domain.Caller {
	claims, _ := auth.FromContext(r.Context())
	return domain.CallerFromClaims(claims)
}

// RecordsRequest carries records for insert and update.
type RecordsRequest struct {
	Records []record.Record `json:"records" validate:"required,min=1"`
}

// InsertResponse lists assigned ids in request order.
type InsertResponse struct {
	IDs []string `json:"ids"`
}

// normalize resolves unset zone offsets and validates every record.
func (h *Handler) normalize(in []record.Record) ([]record.Record, error) {
	out := make([]record.Record, 0, len(in))
	for i, r := range in {
		built, err := record.FromRecord(r).WithOffsetProvider(h.offsets).Build()
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeInvalidArgument, fmt.Sprintf("record %d", i))
		}
		out = append(out, built)
	}
	return out, nil
}

func (h *Handler) insertRecords(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[RecordsRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := h.normalize(req.Records)
	if err != nil {
		writeError(w, err)
		return
	}
	ids, err := h.service.Insert(r.Context(), callerFrom(r), recs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, InsertResponse{IDs: ids})
}

func (h *Handler) updateRecords(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[RecordsRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := h.normalize(req.Records)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.Update(r.Context(), callerFrom(r), recs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReadRequest is a paged filtered read.
type ReadRequest struct {
	Filter     filter.Spec `json:"filter"`
	PageSize   int         `json:"page_size" validate:"gte=0,lte=5000"`
	PageToken  string      `json:"page_token"`
	Descending bool        `json:"descending"`
}

// RecordsResponse is a page of records.
type RecordsResponse struct {
	Records       []record.Record `json:"records"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

func (h *Handler) readRecords(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[ReadRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.service.ReadByFilter(r.Context(), callerFrom(r), storage.ReadRequest{
		Spec:       req.Filter,
		PageSize:   req.PageSize,
		PageToken:  req.PageToken,
		Descending: req.Descending,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordsResponse{Records: nonNil(page.Records), NextPageToken: page.NextPageToken})
}

// RefsRequest addresses records by id or client record id.
type RefsRequest struct {
	Refs []storage.RecordRef `json:"refs" validate:"required,min=1"`
}

func (h *Handler) readRecordsByIDs(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[RefsRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := h.service.ReadByIDs(r.Context(), callerFrom(r), req.Refs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordsResponse{Records: nonNil(recs)})
}

// DeleteRequest removes records matching a filter.
type DeleteRequest struct {
	Filter filter.Spec `json:"filter"`
}

// DeleteResponse reports how many records were removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

func (h *Handler) deleteRecords(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[DeleteRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.service.DeleteByFilter(r.Context(), callerFrom(r), req.Filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

func (h *Handler) deleteRecordsByIDs(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[RefsRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.service.DeleteByIDs(r.Context(), callerFrom(r), req.Refs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Deleted: n})
}

// AggregateRequest asks for metrics over a range, optionally bucketed.
type AggregateRequest struct {
	Metrics     []string         `json:"metrics" validate:"required,min=1,dive,required"`
	TimeRange   filter.TimeRange `json:"time_range"`
	DataOrigins []string         `json:"data_origins,omitempty"`
	GroupBy     *GroupBy         `json:"group_by,omitempty"`
}

// GroupBy selects fixed-duration or calendar buckets. Exactly one of
// Duration and the period fields is used.
type GroupBy struct {
	Duration string `json:"duration,omitempty"`
	Days     int    `json:"days,omitempty" validate:"gte=0"`
	Months   int    `json:"months,omitempty" validate:"gte=0"`
	Zone     string `json:"zone,omitempty"`
}

// MetricResult is one aggregated value in canonical units.
type MetricResult struct {
	Metric      string   `json:"metric"`
	Value       *float64 `json:"value"`
	DataOrigins []string `json:"data_origins"`
}

// AggregateResult is the outcome for one range.
type AggregateResult struct {
	TimeRange  filter.TimeRange  `json:"time_range"`
	ZoneOffset record.ZoneOffset `json:"zone_offset"`
	Metrics    []MetricResult    `json:"metrics"`
}

// AggregateResponse holds either a single result or buckets.
type AggregateResponse struct {
	Result  *AggregateResult  `json:"result,omitempty"`
	Buckets []AggregateResult `json:"buckets,omitempty"`
}

func toAggregateResult(names []string, res aggregate.Result) AggregateResult {
	out := AggregateResult{TimeRange: res.Range, ZoneOffset: res.ZoneOffset(), Metrics: make([]MetricResult, 0, len(names))}
	for _, name := range names {
		mr := MetricResult{Metric: name, DataOrigins: []string{}}
		if v, ok := res.Raw(name); ok {
			mr.Value = &v
		}
		if m, ok := aggregate.Lookup(name); ok {
			mr.DataOrigins = nonNil(res.DataOrigins(m))
		}
		out.Metrics = append(out.Metrics, mr)
	}
	return out
}

func (h *Handler) aggregate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[AggregateRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r)
	dreq := domain.AggregateRequest{Metrics: req.Metrics, TimeRange: req.TimeRange, DataOrigins: req.DataOrigins}

	if req.GroupBy == nil {
		res, err := h.service.Aggregate(r.Context(), caller, dreq)
		if err != nil {
			writeError(w, err)
			return
		}
		out := toAggregateResult(req.Metrics, res)
		writeJSON(w, http.StatusOK, AggregateResponse{Result: &out})
		return
	}

	var buckets []aggregate.Bucket
	if g := req.GroupBy; g.Duration != "" {
		slice, perr := time.ParseDuration(g.Duration)
		if perr != nil {
			writeError(w, errs.InvalidArgument("invalid group_by.duration %q", g.Duration))
			return
		}
		buckets, err = h.service.AggregateGroupByDuration(r.Context(), caller, dreq, slice)
	} else {
		loc := time.UTC
		if g.Zone != "" {
			l, lerr := time.LoadLocation(g.Zone)
			if lerr != nil {
				writeError(w, errs.InvalidArgument("unknown group_by.zone %q", g.Zone))
				return
			}
			loc = l
		}
		buckets, err = h.service.AggregateGroupByPeriod(r.Context(), caller, dreq, aggregate.Period{Months: g.Months, Days: g.Days}, loc)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	resp := AggregateResponse{Buckets: make([]AggregateResult, 0, len(buckets))}
	for _, b := range buckets {
		resp.Buckets = append(resp.Buckets, toAggregateResult(req.Metrics, b.Result))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChangesTokenRequest scopes a change feed.
type ChangesTokenRequest struct {
	Kinds       []record.Kind `json:"kinds,omitempty"`
	DataOrigins []string      `json:"data_origins,omitempty"`
}

// ChangesTokenResponse carries a fresh change feed token.
type ChangesTokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) changesToken(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[ChangesTokenRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	tok, err := h.service.ChangesToken(r.Context(), callerFrom(r), req.Kinds, req.DataOrigins)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesTokenResponse{Token: tok})
}

// ChangesResponse is one page of the change feed.
type ChangesResponse struct {
	Upserts   []record.Record `json:"upserts"`
	Deletions []string        `json:"deletions"`
	NextToken string          `json:"next_token"`
	HasMore   bool            `json:"has_more"`
}

func (h *Handler) changes(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, errs.InvalidArgument("missing token parameter"))
		return
	}
	resp, err := h.service.Changes(r.Context(), callerFrom(r), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{
		Upserts:   nonNil(resp.Upserts),
		Deletions: nonNil(resp.Deletions),
		NextToken: resp.NextToken,
		HasMore:   resp.HasMore,
	})
}

func (h *Handler) startMigration(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartMigration(r.Context(), callerFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MigrationDataRequest carries migration entities.
type MigrationDataRequest struct {
	Entities []migration.Entity `json:"entities" validate:"required,min=1"`
}

func (h *Handler) writeMigrationData(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[MigrationDataRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	for i, e := range req.Entities {
		if e.Record == nil {
			continue
		}
		built, err := record.FromRecord(e.Record.Record).WithOffsetProvider(h.offsets).Build()
		if err != nil {
			writeError(w, errs.Wrap(err, errs.CodeInvalidArgument, "entity "+e.ID))
			return
		}
		p := *e.Record
		p.Record = built
		req.Entities[i].Record = &p
	}
	if err := h.service.WriteMigrationData(r.Context(), callerFrom(r), req.Entities); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) finishMigration(w http.ResponseWriter, r *http.Request) {
	if err := h.service.FinishMigration(r.Context(), callerFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) migrationState(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.MigrationState(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) deleteStagedData(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAllStagedData(r.Context(), callerFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContributorsResponse lists contributing applications.
type ContributorsResponse struct {
	Applications []migration.ContributorApp `json:"applications"`
}

func (h *Handler) contributors(w http.ResponseWriter, r *http.Request) {
	apps, err := h.service.ContributorApplications(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ContributorsResponse{Applications: nonNil(apps)})
}

// PriorityBody is the ordered origin list of a category.
type PriorityBody struct {
	DataOrigins []string `json:"data_origins" validate:"dive,required"`
}

func (h *Handler) getPriority(w http.ResponseWriter, r *http.Request) {
	cat := record.Category(strings.ToUpper(chi.URLParam(r, "category")))
	origins, err := h.service.Priority(r.Context(), callerFrom(r), cat)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriorityBody{DataOrigins: nonNil(origins)})
}

func (h *Handler) updatePriority(w http.ResponseWriter, r *http.Request) {
	req, err := decodeJSON[PriorityBody](r)
	if err != nil {
		writeError(w, err)
		return
	}
	cat := record.Category(strings.ToUpper(chi.URLParam(r, "category")))
	if err := h.service.UpdatePriority(r.Context(), callerFrom(r), cat, req.DataOrigins); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), errs.ToWire(err))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
