package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dpup/prefab/logging"
	"github.com/julienschmidt/httprouter"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
	"github.com/dpup/saferoute/server/internal/lib/routing"
	"github.com/dpup/saferoute/server/internal/services"
)

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
	Error     string   `json:"error" validate:"omitempty,oneof=permission_denied unavailable"`
}

type textRequest struct {
	Text string `json:"text" validate:"max=256"`
}

type selectSuggestionRequest struct {
	ID string `json:"id" validate:"required"`
}

type selectRouteRequest struct {
	Index *int `json:"index" validate:"required"`
}

type categoryView struct {
	Name string `json:"name"`
	hazard.Style
}

func (a *API) session(r *http.Request) (*services.Session, error) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	return a.planner.Get(id)
}

func endpointParam(r *http.Request) (routing.Endpoint, error) {
	field, err := routing.ParseEndpoint(httprouter.ParamsFromContext(r.Context()).ByName("field"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
	}
	return field, nil
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	s := a.planner.Create(r.Context())
	writeData(w, http.StatusCreated, s.View())
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.View())
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	if err := a.planner.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) updateLocation(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req locationRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	switch {
	case req.Error == "permission_denied":
		err = s.SetLocationError(routing.ErrPermissionDenied)
	case req.Error == "unavailable":
		err = s.SetLocationError(routing.ErrLocationUnavailable)
	case req.Latitude != nil && req.Longitude != nil:
		err = s.UpdateLocation(r.Context(), geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude})
	default:
		err = fmt.Errorf("%w: latitude and longitude, or error, are required", services.ErrInvalidInput)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.View())
}

func (a *API) setText(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	field, err := endpointParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req textRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.SetText(field, req.Text); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.View())
}

func (a *API) suggestions(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	field, err := endpointParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	got, err := s.Suggestions(field)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, got)
}

func (a *API) selectSuggestion(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	field, err := endpointParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req selectSuggestionRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.SelectSuggestion(field, req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.View())
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Searches outlive the request; the session context bounds them
	if err := s.Submit(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.View())
}

func (a *API) selectRoute(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req selectRouteRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.SelectRoute(*req.Index); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s.View())
}

func (a *API) closeSession(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Close()
	writeData(w, http.StatusOK, s.View())
}

func (a *API) exportKML(w http.ResponseWriter, r *http.Request) {
	s, err := a.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	set := s.Routes()
	if set.Empty() {
		writeError(w, r, errNoRoutes)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "routes-"+s.ID()+".kml"))
	if err := RoutesKML(set).WriteIndent(w, "", "  "); err != nil {
		logging.Warnw(r.Context(), "KML export write failed", "session", s.ID(), "error", err)
	}
}

func (a *API) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := a.reports.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, reports)
}

func (a *API) submitReport(w http.ResponseWriter, r *http.Request) {
	var req services.ReportInput
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	report, err := a.reports.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, report)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryView, 0, len(hazard.Categories))
	for _, c := range hazard.Categories {
		out = append(out, categoryView{Name: c.String(), Style: c.Style()})
	}
	writeData(w, http.StatusOK, out)
}
