// Package api exposes the bridge workflows over HTTP to the host shim.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
	"github.com/corolair/moodle-bridge/internal/core/services"
)

// APIHandler handles HTTP requests for the bridge workflows.
type APIHandler struct {
	store        ports.HostStore
	registration ports.RegistrationService
	session      ports.SessionService
	auth         ports.AuthService
	privacy      ports.PrivacyService
	nav          *services.NavigationService
	settings     *services.SettingsService
	upgrade      *services.UpgradeService
	remote       ports.RemoteGateway
	siteURL      string
	siteName     string
	logger       *zap.Logger
}

// Deps bundles everything the handler needs.
type Deps struct {
	Store        ports.HostStore
	Registration ports.RegistrationService
	Session      ports.SessionService
	Auth         ports.AuthService
	Privacy      ports.PrivacyService
	Nav          *services.NavigationService
	Settings     *services.SettingsService
	Upgrade      *services.UpgradeService
	Remote       ports.RemoteGateway
	SiteURL      string
	SiteName     string
	Logger       *zap.Logger
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(d Deps) *APIHandler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &APIHandler{
		store:        d.Store,
		registration: d.Registration,
		session:      d.Session,
		auth:         d.Auth,
		privacy:      d.Privacy,
		nav:          d.Nav,
		settings:     d.Settings,
		upgrade:      d.Upgrade,
		remote:       d.Remote,
		siteURL:      d.SiteURL,
		siteName:     d.SiteName,
		logger:       d.Logger,
	}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)
	mux.HandleFunc("GET /settings/css", h.InjectedCSS)

	// Middleware
	user := UserMiddleware(h.store, h.logger)
	admin := RequireCapability(h.store, domain.CapabilitySiteConfig)
	tutor := RequireCapability(h.store, domain.CapabilityCreateTutor)

	// Admin lifecycle routes
	mux.Handle("POST /install", user(admin(http.HandlerFunc(h.Install))))
	mux.Handle("POST /uninstall", user(admin(http.HandlerFunc(h.Uninstall))))
	mux.Handle("POST /upgrade", user(admin(http.HandlerFunc(h.Upgrade))))
	mux.Handle("POST /tokens", user(admin(http.HandlerFunc(h.MintToken))))
	mux.Handle("GET /settings", user(admin(http.HandlerFunc(h.GetSettings))))
	mux.Handle("PUT /settings", user(admin(http.HandlerFunc(h.UpdateSettings))))
	mux.Handle("POST /settings/css/reset", user(admin(http.HandlerFunc(h.ResetCSS))))

	// Page routes
	mux.Handle("GET /trainer", user(tutor(http.HandlerFunc(h.Trainer))))
	mux.Handle("GET /quiz", user(http.HandlerFunc(h.Quiz)))
	mux.Handle("GET /nav/course/{id}", user(http.HandlerFunc(h.CourseNavigation)))
	mux.Handle("POST /courses/{id}/tutor", user(tutor(http.HandlerFunc(h.CreateTutor))))

	// Privacy routes, called by the host privacy subsystem, not end users.
	mux.HandleFunc("GET /privacy/metadata", h.PrivacyMetadata)
	mux.HandleFunc("GET /privacy/users/{id}/contexts", h.PrivacyContexts)
	mux.HandleFunc("GET /privacy/users/{id}/export", h.PrivacyExport)
	mux.HandleFunc("GET /privacy/contexts/{level}/users", h.PrivacyUsers)
	mux.HandleFunc("DELETE /privacy/contexts/{level}", h.PrivacyDeleteContext)
	mux.HandleFunc("POST /privacy/users/delete", h.PrivacyDeleteUsers)
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck reports database reachability.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := map[string]string{"database": "OK"}
	if err := h.store.Ping(r.Context()); err != nil {
		status = "DEGRADED"
		details["database"] = err.Error()
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]any{"status": status, "details": details})
}

// Install runs the registration workflow for the acting admin.
func (h *APIHandler) Install(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	err := h.registration.RegisterOrRepair(r.Context(), *user, h.siteURL, h.siteName)
	switch {
	case errors.Is(err, domain.ErrLocalhostNotSupported):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrRemoteUnreachable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		h.writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
	}
}

// Uninstall tears down the scaffold and notifies the remote side.
func (h *APIHandler) Uninstall(w http.ResponseWriter, r *http.Request) {
	if err := h.registration.Uninstall(r.Context(), h.siteURL); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "uninstalled"})
}

// Upgrade applies pending migrations from the recorded version.
func (h *APIHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	from := h.upgrade.CurrentVersion(r.Context())
	if err := h.upgrade.Apply(r.Context(), from); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"from_version": from,
		"version":      h.upgrade.CurrentVersion(r.Context()),
	})
}

// MintToken creates a fresh web-service token for the acting admin.
func (h *APIHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	token, err := h.registration.MintToken(r.Context(), user.ID)
	if errors.Is(err, domain.ErrScaffoldMissing) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, token)
}

// GetSettings returns the current plugin settings.
func (h *APIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings persists the submitted settings.
func (h *APIHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var in domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.settings.Update(r.Context(), in); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// ResetCSS restores the default trainer stylesheet.
func (h *APIHandler) ResetCSS(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.ResetCSS(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// InjectedCSS serves the sanitized custom stylesheet, empty when disabled.
func (h *APIHandler) InjectedCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Write([]byte(h.settings.InjectedCSS(r.Context())))
}

// Trainer bootstraps the credential and performs the auth handshake for the
// trainer page. A stale key is repaired in place; when that fails the
// troubleshoot report comes back instead of a session.
func (h *APIHandler) Trainer(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	courseID, _ := strconv.ParseInt(r.URL.Query().Get("corolairsourcecourse"), 10, 64)

	res, err := h.session.EnsureSession(r.Context(), *user, h.siteURL, h.siteName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if res.Troubleshoot != nil {
		h.writeJSON(w, http.StatusConflict, map[string]any{"troubleshoot": res.Troubleshoot})
		return
	}
	if res.ReloadRequired {
		h.writeJSON(w, http.StatusOK, map[string]any{"reload_required": true})
		return
	}

	session, err := h.auth.Authenticate(r.Context(), *user, res.APIKey, ports.AuthOptions{CourseID: courseID})
	if errors.Is(err, domain.ErrRemoteUnreachable) {
		// Indistinguishable from a failed bootstrap for the user: both mean
		// the remote side cannot be reached.
		report, rerr := h.session.Troubleshoot(r.Context(), *user, h.siteURL, h.siteName)
		if rerr != nil {
			http.Error(w, rerr.Error(), http.StatusInternalServerError)
			return
		}
		h.writeJSON(w, http.StatusConflict, map[string]any{"troubleshoot": report})
		return
	}
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// Quiz performs the auth handshake for the student quiz page. No capability
// is required, but a usable key must already be stored.
func (h *APIHandler) Quiz(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	courseID, _ := strconv.ParseInt(r.URL.Query().Get("courseid"), 10, 64)

	key, err := h.store.GetPluginConfig(r.Context(), domain.ConfigKeyAPIKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if domain.KeyAbsent(key) {
		http.Error(w, domain.ErrNoAPIKey.Error(), http.StatusServiceUnavailable)
		return
	}

	session, err := h.auth.Authenticate(r.Context(), *user, key, ports.AuthOptions{CourseID: courseID, Plugin: "quiz"})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// CourseNavigation computes the navigation node and embed decision for the
// acting user on the given course page.
func (h *APIHandler) CourseNavigation(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	courseID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course id", http.StatusBadRequest)
		return
	}

	inj, err := h.nav.CourseNavigation(r.Context(), user.ID, courseID, r.URL.Query().Get("page"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, inj)
}

// CreateTutor provisions a course-scoped tutor instance on the remote side.
func (h *APIHandler) CreateTutor(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	courseID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid course id", http.StatusBadRequest)
		return
	}

	key, err := h.store.GetPluginConfig(r.Context(), domain.ConfigKeyAPIKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if domain.KeyAbsent(key) {
		http.Error(w, domain.ErrNoAPIKey.Error(), http.StatusServiceUnavailable)
		return
	}

	role, err := h.store.UserRoleInCourse(r.Context(), user.ID, courseID)
	if err != nil {
		role = ""
	}

	tutor, err := h.remote.CreateTutor(r.Context(), domain.TutorInstanceRequest{
		CourseID:  courseID,
		URL:       h.siteURL,
		MoodleID:  user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      role,
		APIKey:    key,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusCreated, tutor)
}

// PrivacyMetadata declares which personal fields leave the host for the
// remote service. Static data, served without touching the store or the key.
func (h *APIHandler) PrivacyMetadata(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"external_fields": domain.ExternalFields()})
}

// PrivacyContexts lists the local context ids holding remote data for a user.
func (h *APIHandler) PrivacyContexts(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	ids, err := h.privacy.ContextsForUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"context_ids": emptyInt64s(ids)})
}

// PrivacyExport streams the remote export for a user as collected items.
func (h *APIHandler) PrivacyExport(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	collector := &exportCollector{}
	if err := h.privacy.ExportUserData(r.Context(), userID, collector); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": collector.items()})
}

// PrivacyUsers lists remote user ids holding data at a context level.
func (h *APIHandler) PrivacyUsers(w http.ResponseWriter, r *http.Request) {
	level, ok := parseLevel(r.PathValue("level"))
	if !ok {
		http.Error(w, "unknown context level", http.StatusBadRequest)
		return
	}
	ids, err := h.privacy.UsersInContext(r.Context(), level)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"user_ids": emptyInt64s(ids)})
}

// PrivacyDeleteContext wipes remote data for a whole context level.
func (h *APIHandler) PrivacyDeleteContext(w http.ResponseWriter, r *http.Request) {
	level, ok := parseLevel(r.PathValue("level"))
	if !ok {
		http.Error(w, "unknown context level", http.StatusBadRequest)
		return
	}
	if err := h.privacy.DeleteForContext(r.Context(), level); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PrivacyDeleteUsers wipes remote data for a list of users.
func (h *APIHandler) PrivacyDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserIDs []int64 `json:"user_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.privacy.DeleteForUsers(r.Context(), body.UserIDs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *APIHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTokenResponse):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, domain.ErrRemoteUnreachable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func requestUser(r *http.Request) *domain.Account {
	user, _ := r.Context().Value(CtxUser).(*domain.Account)
	return user
}

func parseLevel(name string) (domain.ContextLevel, bool) {
	switch name {
	case "course":
		return domain.ContextCourse, true
	case "system":
		return domain.ContextSystem, true
	}
	return 0, false
}

// emptyInt64s keeps JSON output as [] rather than null.
func emptyInt64s(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

// exportCollector gathers privacy export writes for the JSON reply.
type exportCollector struct {
	collected []exportEntry
}

type exportEntry struct {
	ContextID  int64          `json:"context_id"`
	Subcontext []string       `json:"subcontext"`
	Payload    map[string]any `json:"payload"`
}

func (c *exportCollector) Write(_ context.Context, contextID int64, subcontext []string, payload map[string]any) error {
	c.collected = append(c.collected, exportEntry{ContextID: contextID, Subcontext: subcontext, Payload: payload})
	return nil
}

func (c *exportCollector) items() []exportEntry {
	if c.collected == nil {
		return []exportEntry{}
	}
	return c.collected
}
