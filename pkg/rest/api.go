package rest

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/edgeflare/pgapi/pkg/httputil"
	"github.com/edgeflare/pgapi/pkg/httputil/middleware"
	"github.com/edgeflare/pgapi/pkg/query"
	"github.com/edgeflare/pgapi/pkg/store"
	"go.uber.org/zap"
)

// Method names one of the five CRUD operations of an entity.
type Method string

const (
	MethodList   Method = "gets"
	MethodGet    Method = "get"
	MethodCreate Method = "post"
	MethodUpdate Method = "put"
	MethodDelete Method = "delete"
)

// Methods lists every method in registration order.
var Methods = []Method{MethodList, MethodGet, MethodCreate, MethodUpdate, MethodDelete}

func (m Method) valid() bool {
	return slices.Contains(Methods, m)
}

// Catalog resolves relations and primary keys of entities.
type Catalog interface {
	query.Catalog
	PrimaryKey(entity string) string
}

// ValidationRules is an opaque rule set handed to Hooks.Validation.
type ValidationRules map[string]any

// Hooks are the middleware factories behind Options.Auth, Options.Admin and
// Options.Validation. The package does not implement any of them.
type Hooks struct {
	Auth       httputil.Middleware
	Admin      httputil.Middleware
	Validation func(m Method, rules ValidationRules) httputil.Middleware
}

// Result describes a successful response, passed to the After hooks.
type Result struct {
	Entity string
	Method Method
	ID     string // primary key of the affected entity, empty for lists
	Status int
	Data   any
}

// AfterHook runs once the response has been written and flushed. Its outcome
// never changes the response.
type AfterHook func(r *http.Request, res Result)

// Options configure the endpoints of one entity. A nil *Options registers all
// five methods without any extra middleware.
type Options struct {
	Methods     []Method                         `mapstructure:"methods"` // default: all
	Auth        []Method                         `mapstructure:"auth"`
	Admin       []Method                         `mapstructure:"admin"`
	Validation  map[Method]ValidationRules       `mapstructure:"validation"`
	Middlewares map[Method][]httputil.Middleware `mapstructure:"-"`
	After       map[Method][]AfterHook           `mapstructure:"-"`
	// DefaultFields is the projection used when a request has no fields
	// parameter.
	DefaultFields map[Method][]string `mapstructure:"defaultFields"`
	// DefaultRelationFields replaces a missing relationFields parameter as a
	// whole.
	DefaultRelationFields map[string][]string `mapstructure:"defaultRelationFields"`
	// StripKeys are removed from a create payload before it is used to look
	// the created entity up again. Defaults to _userId and _role.
	StripKeys []string `mapstructure:"stripKeys"`
}

var defaultStripKeys = []string{"_userId", "_role"}

// API serves the CRUD endpoints of any number of entities.
type API struct {
	store    store.Store
	catalog  Catalog
	compiler query.Compiler
	hooks    Hooks
	logger   *zap.Logger
}

// Option configures an API.
type Option func(*API)

func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithCompiler replaces the default query compiler. A compiler without a
// Catalog gets the API's catalog.
func WithCompiler(c query.Compiler) Option {
	return func(a *API) {
		a.compiler = c
	}
}

func WithHooks(h Hooks) Option {
	return func(a *API) {
		a.hooks = h
	}
}

// New returns an API running queries against s.
func New(s store.Store, catalog Catalog, opts ...Option) *API {
	a := &API{
		store:   s,
		catalog: catalog,
		logger:  zap.L(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.compiler.Catalog == nil {
		a.compiler.Catalog = catalog
	}
	return a
}

// Register mounts the endpoints of entity on router under /<entity>. Per
// route the request passes through auth, admin, validation and the additional
// middleware before the controller; After hooks run last.
func (a *API) Register(router *httputil.Router, entity string, opts *Options) error {
	if entity == "" {
		return fmt.Errorf("rest: empty entity name")
	}
	if opts == nil {
		opts = &Options{}
	}
	if err := a.check(entity, opts); err != nil {
		return err
	}

	methods := opts.Methods
	if len(methods) == 0 {
		methods = Methods
	}

	g := router.Group("/" + entity)
	for _, m := range Methods {
		if !slices.Contains(methods, m) {
			continue
		}
		h := &route{api: a, entity: entity, method: m, opts: opts}
		handler := middleware.Chain(h, a.chain(entity, m, opts)...)
		for _, pattern := range patterns(m) {
			g.Handle(pattern, handler)
		}
		a.logger.Debug("registered route", zap.String("entity", entity), zap.String("method", string(m)))
	}
	return nil
}

func (a *API) check(entity string, opts *Options) error {
	for _, set := range [][]Method{opts.Methods, opts.Auth, opts.Admin} {
		for _, m := range set {
			if !m.valid() {
				return fmt.Errorf("rest: %s: unknown method %q", entity, m)
			}
		}
	}
	if len(opts.Auth) > 0 && a.hooks.Auth == nil {
		return fmt.Errorf("rest: %s: auth requested but no auth hook configured", entity)
	}
	if len(opts.Admin) > 0 && a.hooks.Admin == nil {
		return fmt.Errorf("rest: %s: admin requested but no admin hook configured", entity)
	}
	if len(opts.Validation) > 0 && a.hooks.Validation == nil {
		return fmt.Errorf("rest: %s: validation rules given but no validation hook configured", entity)
	}
	for m := range opts.Validation {
		if !m.valid() {
			return fmt.Errorf("rest: %s: unknown method %q", entity, m)
		}
	}
	return nil
}

func (a *API) chain(entity string, m Method, opts *Options) []httputil.Middleware {
	mws := []httputil.Middleware{withEntity(entity)}
	if slices.Contains(opts.Auth, m) {
		mws = append(mws, a.hooks.Auth)
	}
	if slices.Contains(opts.Admin, m) {
		mws = append(mws, a.hooks.Admin)
	}
	if rules, ok := opts.Validation[m]; ok {
		mws = append(mws, a.hooks.Validation(m, rules))
	}
	return append(mws, opts.Middlewares[m]...)
}

func patterns(m Method) []string {
	switch m {
	case MethodList:
		return []string{"GET ", "GET /{$}"}
	case MethodGet:
		return []string{"GET /{id}"}
	case MethodCreate:
		return []string{"POST ", "POST /{$}"}
	case MethodUpdate:
		return []string{"PUT /{id}"}
	case MethodDelete:
		return []string{"DELETE /{id}"}
	}
	return nil
}

func withEntity(entity string) httputil.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middleware.SetEntity(r.Context(), entity)
			ctx := context.WithValue(r.Context(), httputil.EntityCtxKey, entity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
