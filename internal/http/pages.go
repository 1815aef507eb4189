package http

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// SessionCookie names the cookie carrying the dashboard session id.
const SessionCookie = "dashboard_session"

//go:embed templates/dashboard.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))

// session resolves the caller's session from the cookie, creating one when the cookie
// is missing or expired. When init is set, a session that has never run a fetch cycle
// is initialised with the default city, whether it was created now or by an earlier
// request that did not fetch.
func (h *Handler) session(w http.ResponseWriter, r *http.Request, init bool) *dashboard.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	s, created := h.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    s.ID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		logger := observability.LoggerFromContext(r.Context(), h.logger)
		logger.Debug("session created", zap.String("session_id", s.ID()))
	}
	if init && s.View().Phase == dashboard.PhaseIdle {
		h.logCycle(r, s.Init(r.Context()))
	}
	return s
}

// logCycle records a fetch cycle failure on the request logger. The session already
// shows the error state, so handlers still answer with the view.
func (h *Handler) logCycle(r *http.Request, err error) {
	if err == nil || errors.Is(err, dashboard.ErrStaleCycle) {
		return
	}
	observability.LoggerFromContext(r.Context(), h.logger).Debug("fetch cycle failed", zap.Error(err))
}

// GetPage handles GET /.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, true)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, s.View()); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("render page", zap.Error(err))
	}
}

// PostSearch handles POST /search with form field city.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, false)
	_, err := s.Search(r.Context(), r.FormValue("city"))
	h.logCycle(r, err)
	redirectHome(w, r)
}

// PostUnit handles POST /unit/{unit}. Form routes answer bad input with plain text.
func (h *Handler) PostUnit(w http.ResponseWriter, r *http.Request) {
	unit, err := models.ParseUnit(mux.Vars(r)["unit"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s := h.session(w, r, true)
	if err := s.SetUnit(unit); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	redirectHome(w, r)
}

// PostSection handles POST /section/{section} with optional form field vw, the
// viewport width in pixels.
func (h *Handler) PostSection(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, true)
	if err := s.ShowSection(mux.Vars(r)["section"], viewportWidth(r)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	redirectHome(w, r)
}

// PostSidebarToggle handles POST /sidebar/toggle.
func (h *Handler) PostSidebarToggle(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, true)
	s.ToggleSidebar()
	redirectHome(w, r)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func viewportWidth(r *http.Request) int {
	vw, err := strconv.Atoi(r.FormValue("vw"))
	if err != nil || vw < 0 {
		return 0
	}
	return vw
}

// GetDashboard handles GET /api/dashboard.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, true)
	writeJSON(w, http.StatusOK, s.View())
}

type searchRequest struct {
	City string `json:"city"`
}

type searchResponse struct {
	Submitted bool           `json:"submitted"`
	View      dashboard.View `json:"view"`
}

// PostSearchAPI handles POST /api/search with body {"city": "..."}. A blank city is
// not submitted and leaves the view unchanged.
func (h *Handler) PostSearchAPI(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON with a city field")
		return
	}
	s := h.session(w, r, false)
	submitted, err := s.Search(r.Context(), body.City)
	h.logCycle(r, err)
	writeJSON(w, http.StatusOK, searchResponse{Submitted: submitted, View: s.View()})
}

// PostUnitAPI handles POST /api/unit/{unit}.
func (h *Handler) PostUnitAPI(w http.ResponseWriter, r *http.Request) {
	unit, err := models.ParseUnit(mux.Vars(r)["unit"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_UNIT", err.Error())
		return
	}
	s := h.session(w, r, true)
	if err := s.SetUnit(unit); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_UNIT", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// PostSectionAPI handles POST /api/section/{section}?vw=<width>.
func (h *Handler) PostSectionAPI(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, true)
	if err := s.ShowSection(mux.Vars(r)["section"], viewportWidth(r)); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_SECTION", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// PostSidebarToggleAPI handles POST /api/sidebar/toggle.
func (h *Handler) PostSidebarToggleAPI(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r, true)
	s.ToggleSidebar()
	writeJSON(w, http.StatusOK, s.View())
}
