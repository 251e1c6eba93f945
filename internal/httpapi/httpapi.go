package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"posledger/backend/internal/domain"
	"posledger/backend/internal/realtime"
	"posledger/backend/internal/service"
	"posledger/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin  string
	RequestTimeout time.Duration
	// LoginLimit caps login attempts per client IP per minute.
	LoginLimit int
	Production bool
}

type API struct {
	service *service.Service
	auth    *AuthManager
	events  realtime.Subscriber
	logger  *slog.Logger
	opts    Options
}

func New(svc *service.Service, auth *AuthManager, events realtime.Subscriber, logger *slog.Logger, opts Options) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.LoginLimit <= 0 {
		opts.LoginLimit = 5
	}
	return &API{
		service: svc,
		auth:    auth,
		events:  events,
		logger:  logger,
		opts:    opts,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.RequestID,
		a.accessLog,
		middleware.Recoverer,
		a.secureHeaders(),
		a.cors,
		limitBody,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(httprate.Limit(a.opts.LoginLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
			}),
		)).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			// The event stream outlives the request timeout.
			r.Get("/events", a.handleEvents)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(a.opts.RequestTimeout))
				a.routes(r)
			})
		})
	})
	return r
}

func (a *API) routes(r chi.Router) {
	r.With(requireRole(domain.RoleAdmin)).Get("/users", a.handleListUsers)
	r.With(requireRole(domain.RoleAdmin)).Post("/users", a.handleCreateUser)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.handleListProducts)
		r.With(requireRole(domain.RoleAdmin)).Post("/", a.handleCreateProduct)
		r.Get("/low-stock", a.handleLowStock)
		r.Patch("/decrement-stock", a.handleDecrementStock)
		r.Patch("/increment-stock", a.handleIncrementStock)
		r.Get("/{id}", a.handleGetProduct)
		r.With(requireRole(domain.RoleAdmin)).Patch("/{id}", a.handleUpdateProduct)
		r.With(requireRole(domain.RoleAdmin)).Delete("/{id}", a.handleDeleteProduct)
	})
	r.Get("/product-change-logs", a.handleListChangeLogs)

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", a.handleListOrders)
		r.Post("/", a.handleCreateOrder)
		r.With(requireRole(domain.RoleAdmin)).Post("/reorder", a.handleReorder)
		r.Get("/{id}", a.handleGetOrder)
		r.Delete("/{id}", a.handleCancelOrder)
		r.Post("/{id}/receive", a.handleReceiveOrder)
	})

	r.Route("/sales", func(r chi.Router) {
		r.Get("/", a.handleListSales)
		r.Post("/", a.handleCreateSale)
		r.Get("/{id}", a.handleGetSale)
	})

	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", a.handleListInvoices)
		r.Post("/", a.handleCreateInvoice)
		r.Get("/{id}", a.handleGetInvoice)
		r.Post("/{id}/pay", a.handlePayInvoice)
	})

	r.Route("/billing", func(r chi.Router) {
		r.Get("/", a.handleListBilling)
		r.Post("/", a.handleCreateBilling)
		r.Get("/{id}", a.handleGetBilling)
		r.Post("/{id}/pay", a.handlePayBilling)
	})

	r.Route("/estimates", func(r chi.Router) {
		r.Get("/", a.handleListEstimates)
		r.Post("/", a.handleCreateEstimate)
		r.Get("/{id}", a.handleGetEstimate)
		r.Post("/{id}/approve", a.handleApproveEstimate)
		r.Post("/{id}/invoice", a.handleInvoiceEstimate)
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) secureHeaders() func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        a.opts.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := secureMiddleware.Process(w, r); err != nil {
				a.logger.WarnContext(r.Context(), "secure headers blocked request", slog.Any("error", err))
				return
			}
			w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.opts.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut:
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		a.logger.Log(r.Context(), level, "http request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(startedAt)),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func parsePositiveInt(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

// pageParams reads page and limit; the service layer clamps them.
func pageParams(r *http.Request) (int, int) {
	query := r.URL.Query()
	return parsePositiveInt(query.Get("page"), 1), parsePositiveInt(query.Get("limit"), domain.DefaultPageLimit)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Stock shortages carry
// the offending sku and any items applied before the failure.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, status, err)
		return
	}

	body := map[string]any{"error": err.Error()}
	var batchErr *service.StockBatchError
	if errors.As(err, &batchErr) {
		body["applied"] = batchErr.Applied
	}
	var shortage *store.StockShortageError
	if errors.As(err, &shortage) {
		body["sku"] = shortage.Identifier
		body["available"] = shortage.Available
		body["requested"] = shortage.Requested
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
