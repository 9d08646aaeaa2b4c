// Package httpapi exposes route search sessions and hazard reports as a JSON
// HTTP API.
package httpapi

import (
	"net/http"
	"runtime/debug"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"
	"github.com/rs/cors"

	"github.com/dpup/saferoute/server/internal/observability"
	"github.com/dpup/saferoute/server/internal/services"
)

// API serves the planner and report endpoints
type API struct {
	planner     *services.Planner
	reports     *services.ReportService
	metrics     *observability.Collector
	corsOrigins []string

	validate *validator.Validate
	trans    ut.Translator
}

// New creates the API. metrics may be nil.
func New(planner *services.Planner, reports *services.ReportService, metrics *observability.Collector, corsOrigins []string) *API {
	validate := services.NewValidator()
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)

	return &API{
		planner:     planner,
		reports:     reports,
		metrics:     metrics,
		corsOrigins: corsOrigins,
		validate:    validate,
		trans:       trans,
	}
}

// Handler returns the routed handler wrapped in the middleware chain
func (a *API) Handler() http.Handler {
	router := httprouter.New()

	a.handle(router, http.MethodPost, "/v1/sessions", a.createSession)
	a.handle(router, http.MethodGet, "/v1/sessions/:id", a.getSession)
	a.handle(router, http.MethodDelete, "/v1/sessions/:id", a.deleteSession)
	a.handle(router, http.MethodPut, "/v1/sessions/:id/location", a.updateLocation)
	a.handle(router, http.MethodPut, "/v1/sessions/:id/endpoints/:field", a.setText)
	a.handle(router, http.MethodGet, "/v1/sessions/:id/endpoints/:field/suggestions", a.suggestions)
	a.handle(router, http.MethodPost, "/v1/sessions/:id/endpoints/:field/select", a.selectSuggestion)
	a.handle(router, http.MethodPost, "/v1/sessions/:id/search", a.search)
	a.handle(router, http.MethodPost, "/v1/sessions/:id/routes/select", a.selectRoute)
	a.handle(router, http.MethodPost, "/v1/sessions/:id/close", a.closeSession)
	a.handle(router, http.MethodGet, "/v1/sessions/:id/kml", a.exportKML)
	a.handle(router, http.MethodGet, "/v1/reports", a.listReports)
	a.handle(router, http.MethodPost, "/v1/reports", a.submitReport)
	a.handle(router, http.MethodGet, "/v1/categories", a.listCategories)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: a.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})

	return alice.New(corsHandler.Handler, a.recoverPanic).Then(router)
}

// handle registers a route with request metrics labeled by its pattern
func (a *API) handle(router *httprouter.Router, method, path string, fn http.HandlerFunc) {
	router.Handler(method, path, alice.New(a.metrics.Middleware(method+" "+path)).ThenFunc(fn))
}

func (a *API) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err, _ := errors.ParseStack(debug.Stack())
				logging.Errorw(r.Context(), "HTTP handler panic recovered", "path", r.URL.Path, "error", rec, "error.stack_trace", err.MinimalStack(3, 5))
				w.Header().Set("Connection", "close")
				writeJSON(w, http.StatusInternalServerError, envelope{"error": errorBody{Kind: "internal", Message: "internal server error"}})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
