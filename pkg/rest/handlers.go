package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/edgeflare/pgapi/pkg/httputil"
	"github.com/edgeflare/pgapi/pkg/httputil/middleware"
	"github.com/edgeflare/pgapi/pkg/metrics"
	"github.com/edgeflare/pgapi/pkg/query"
	"github.com/edgeflare/pgapi/pkg/store"
	"go.uber.org/zap"
)

// ListResponse is the body of a list request.
type ListResponse struct {
	Data []store.Row `json:"data"`
	Meta Meta        `json:"meta"`
}

type Meta struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	PageCount int   `json:"pageCount"`
	Total     int64 `json:"total"`
}

var (
	errInvalidQuery = errors.New("invalid query")
	errInvalidBody  = errors.New("invalid request body")
)

var operations = map[Method]string{
	MethodList:   "api get entities",
	MethodGet:    "api get entity",
	MethodCreate: "api post entity",
	MethodUpdate: "api put entity",
	MethodDelete: "api delete entity",
}

// route is the controller of one method of one entity.
type route struct {
	api    *API
	entity string
	method Method
	opts   *Options
}

func (rt *route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	res, err := rt.serve(r)
	status := res.Status
	if err != nil {
		status = rt.fail(w, r, err)
	} else {
		httputil.JSON(w, status, res.Data)
	}

	metrics.Requests.WithLabelValues(rt.entity, string(rt.method), strconv.Itoa(status)).Inc()
	metrics.RequestDuration.WithLabelValues(rt.entity, string(rt.method)).Observe(time.Since(start).Seconds())

	if err != nil || len(rt.opts.After[rt.method]) == 0 {
		return
	}
	// the client has its answer before any continuation runs
	_ = http.NewResponseController(w).Flush()
	for _, hook := range rt.opts.After[rt.method] {
		hook(r, res)
	}
}

func (rt *route) serve(r *http.Request) (Result, error) {
	switch rt.method {
	case MethodList:
		return rt.list(r)
	case MethodGet:
		return rt.get(r)
	case MethodCreate:
		return rt.create(r)
	case MethodUpdate:
		return rt.update(r)
	case MethodDelete:
		return rt.delete(r)
	}
	return Result{}, fmt.Errorf("unsupported method %q", rt.method)
}

// fail writes the error response and returns its status. Only storage and
// query errors are logged; their details never reach the client.
func (rt *route) fail(w http.ResponseWriter, r *http.Request, err error) int {
	switch {
	case errors.Is(err, errInvalidBody):
		httputil.Error(w, http.StatusBadRequest, errInvalidBody.Error())
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		return http.StatusNotFound
	case errors.Is(err, errInvalidQuery):
		metrics.QueryErrors.WithLabelValues(rt.entity, string(rt.method)).Inc()
	default:
		metrics.StorageErrors.WithLabelValues(rt.entity, string(rt.method)).Inc()
	}

	middleware.RequestLogger(r.Context(), rt.api.logger).WithOptions(zap.AddCallerSkip(1)).Error(operations[rt.method],
		zap.String("entity", rt.entity),
		zap.String("req_id", httputil.RequestID(r)),
		zap.Error(err),
	)
	httputil.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	return http.StatusInternalServerError
}

// compile turns the request parameters into a Descriptor. Single entity
// lookups only honor the projection and relation parameters.
func (rt *route) compile(r *http.Request, single bool) (query.Descriptor, query.Page, error) {
	p, err := ParseParams(r.URL.RawQuery)
	if err != nil {
		return query.Descriptor{}, query.Page{}, fmt.Errorf("%w: %w", errInvalidQuery, err)
	}

	in := query.Input{
		Filters:  p.Filters,
		Sort:     p.Sort,
		Page:     p.Page,
		PageSize: p.PageSize,
		Fields:   p.Fields,
		Relations: query.RelationSpec{
			Relations: p.Relations,
			Fields:    p.RelationFields,
			Filters:   p.RelationFilters,
			Sort:      p.RelationSort,
		},
		WithoutPages: single,
	}
	if in.Fields == nil {
		in.Fields = rt.opts.DefaultFields[rt.method]
	}
	if in.Relations.Fields == nil && rt.opts.DefaultRelationFields != nil {
		in.Relations.Fields = rt.opts.DefaultRelationFields
	}
	if single {
		in.Filters, in.Sort = nil, ""
	}

	d, page, err := rt.api.compiler.Compile(rt.entity, in)
	if err != nil {
		return query.Descriptor{}, query.Page{}, fmt.Errorf("%w: %w", errInvalidQuery, err)
	}
	return d, page, nil
}

func (rt *route) list(r *http.Request) (Result, error) {
	d, page, err := rt.compile(r, false)
	if err != nil {
		return Result{}, err
	}
	rows, total, err := rt.api.store.FindAndCountAll(r.Context(), rt.entity, d)
	if err != nil {
		return Result{}, err
	}
	if rows == nil {
		rows = []store.Row{}
	}
	return rt.result(http.StatusOK, "", ListResponse{
		Data: rows,
		Meta: Meta{
			Page:      page.Page,
			PageSize:  page.PageSize,
			PageCount: query.PageCount(total, page.PageSize),
			Total:     total,
		},
	}), nil
}

func (rt *route) get(r *http.Request) (Result, error) {
	id := r.PathValue("id")
	d, _, err := rt.compile(r, true)
	if err != nil {
		return Result{}, err
	}
	d.Where = query.Eq(rt.primaryKey(), id)
	row, err := rt.api.store.FindOne(r.Context(), rt.entity, d)
	if err != nil {
		return Result{}, err
	}
	return rt.result(http.StatusOK, id, row), nil
}

func (rt *route) create(r *http.Request) (Result, error) {
	payload, err := decodePayload(r)
	if err != nil {
		return Result{}, err
	}
	d, _, err := rt.compile(r, true)
	if err != nil {
		return Result{}, err
	}
	row, err := rt.api.store.Create(r.Context(), rt.entity, payload)
	if err != nil {
		return Result{}, err
	}
	if row, err = rt.refetch(r, d, row, payload); err != nil {
		return Result{}, err
	}
	return rt.result(http.StatusCreated, rt.idOf(row), row), nil
}

func (rt *route) update(r *http.Request) (Result, error) {
	id := r.PathValue("id")
	payload, err := decodePayload(r)
	if err != nil {
		return Result{}, err
	}
	d, _, err := rt.compile(r, true)
	if err != nil {
		return Result{}, err
	}

	where := query.Eq(rt.primaryKey(), id)
	if _, err := rt.api.store.FindOne(r.Context(), rt.entity, query.Descriptor{Where: where}); err != nil {
		return Result{}, err
	}
	row, err := rt.api.store.Update(r.Context(), rt.entity, where, payload)
	if err != nil {
		return Result{}, err
	}
	if row, err = rt.refetch(r, d, row, payload); err != nil {
		return Result{}, err
	}
	return rt.result(http.StatusOK, id, row), nil
}

func (rt *route) delete(r *http.Request) (Result, error) {
	id := r.PathValue("id")
	d, _, err := rt.compile(r, true)
	if err != nil {
		return Result{}, err
	}
	d.Where = query.Eq(rt.primaryKey(), id)
	row, err := rt.api.store.FindOne(r.Context(), rt.entity, d)
	if err != nil {
		return Result{}, err
	}
	if _, err := rt.api.store.Destroy(r.Context(), rt.entity, query.Descriptor{Where: d.Where}); err != nil {
		return Result{}, err
	}
	return rt.result(http.StatusOK, id, row), nil
}

// refetch reads row back through d when the request asked for a projection or
// relations. The lookup uses the primary key of row, or the payload when row
// has none.
func (rt *route) refetch(r *http.Request, d query.Descriptor, row, payload store.Row) (store.Row, error) {
	if len(d.Attributes) == 0 && len(d.Include) == 0 {
		return row, nil
	}
	d.Where = rt.lookup(row, payload)
	if d.Where == nil {
		return row, nil
	}
	return rt.api.store.FindOne(r.Context(), rt.entity, d)
}

func (rt *route) lookup(row, payload store.Row) query.Predicate {
	pk := rt.primaryKey()
	if v, ok := row[pk]; ok && v != nil {
		return query.Eq(pk, v)
	}

	strip := rt.opts.StripKeys
	if strip == nil {
		strip = defaultStripKeys
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if !slices.Contains(strip, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	preds := make([]query.Predicate, 0, len(keys))
	for _, k := range keys {
		preds = append(preds, query.Eq(k, payload[k]))
	}
	return query.AllOf(preds...)
}

func (rt *route) primaryKey() string {
	if rt.api.catalog == nil {
		return "id"
	}
	return rt.api.catalog.PrimaryKey(rt.entity)
}

func (rt *route) idOf(row store.Row) string {
	v, ok := row[rt.primaryKey()]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (rt *route) result(status int, id string, data any) Result {
	return Result{Entity: rt.entity, Method: rt.method, ID: id, Status: status, Data: data}
}

// decodePayload reads a JSON object from the request body.
func decodePayload(r *http.Request) (store.Row, error) {
	var payload store.Row
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidBody, err)
	}
	if payload == nil {
		payload = store.Row{}
	}
	return payload, nil
}
