package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dpup/prefab/logging"
	"github.com/go-playground/validator/v10"

	"github.com/dpup/saferoute/server/internal/lib/routing"
	"github.com/dpup/saferoute/server/internal/services"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

var errNoRoutes = errors.New("no routes to export")

type envelope map[string]interface{}

type errorBody struct {
	Kind     string           `json:"kind"`
	Endpoint routing.Endpoint `json:"endpoint,omitempty"`
	Message  string           `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{"data": data})
}

// writeError maps err onto a status code and a display message
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Kind: routing.Kind(err), Message: err.Error()}

	var endpointErr *routing.EndpointError
	if errors.As(err, &endpointErr) {
		body.Endpoint = endpointErr.Endpoint
	}

	switch {
	case body.Kind != "internal":
		body.Message = routing.UserMessage(err)
		if body.Kind == "out_of_range" || body.Kind == "search_in_progress" {
			body.Message = err.Error()
		}
	case status == http.StatusInternalServerError:
		logging.Errorw(r.Context(), "HTTP request failed", "path", r.URL.Path, "error", err)
		body.Message = "internal server error"
	default:
		body.Kind = kindFor(err)
	}

	writeJSON(w, status, envelope{"error": body})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionNotFound), errors.Is(err, services.ErrSuggestionNotFound), errors.Is(err, errNoRoutes):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, routing.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, routing.ErrSearchInProgress), errors.Is(err, services.ErrSearchCanceled):
		return http.StatusConflict
	case errors.Is(err, routing.ErrEndpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, routing.ErrNoRouteFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, routing.ErrProviderTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, routing.ErrProviderError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, services.ErrSuggestionNotFound):
		return "suggestion_not_found"
	case errors.Is(err, errNoRoutes):
		return "no_routes"
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, services.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, services.ErrSearchCanceled):
		return "search_canceled"
	default:
		return "internal"
	}
}

// decode reads a JSON body into dst and validates it
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", services.ErrInvalidInput, err)
	}
	return a.check(dst)
}

// check validates dst and translates the failures into one readable error
func (a *API) check(dst interface{}) error {
	err := a.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, e.Translate(a.trans))
	}
	return fmt.Errorf("%w: %s", services.ErrInvalidInput, strings.Join(msgs, "; "))
}
