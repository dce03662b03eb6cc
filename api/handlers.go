package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"vialactivo/api/middleware"
	"vialactivo/api/services"
	"vialactivo/pkg/auth"
	"vialactivo/pkg/photos"
	"vialactivo/pkg/shared"
)

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP layer needs. Photos and
// UploadDir are optional.
type Dependencies struct {
	Reports    *services.ReportService
	Admins     *services.AdminService
	Statistics *services.StatisticsService
	Issuer     *auth.Issuer
	Photos     photos.Store
	UploadDir  string

	// StoreCheck failing makes /health return 503; Checks only degrade it.
	StoreCheck HealthCheck
	Checks     map[string]HealthCheck

	Logger *zap.Logger
}

type Handlers struct {
	reports    *services.ReportService
	admins     *services.AdminService
	statistics *services.StatisticsService
	issuer     *auth.Issuer
	photos     photos.Store
	uploadDir  string
	storeCheck HealthCheck
	checks     map[string]HealthCheck
	logger     *zap.Logger
	started    time.Time
}

func NewHandlers(deps Dependencies) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		reports:    deps.Reports,
		admins:     deps.Admins,
		statistics: deps.Statistics,
		issuer:     deps.Issuer,
		photos:     deps.Photos,
		uploadDir:  deps.UploadDir,
		storeCheck: deps.StoreCheck,
		checks:     deps.Checks,
		logger:     logger.Named("api"),
		started:    time.Now(),
	}
}

// Router builds the route table with the middleware chain applied.
func (h *Handlers) Router() http.Handler {
	r := mux.NewRouter()
	h.RegisterRoutes(r)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusNotFound, shared.CodeNotFound, "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return middleware.CORS(middleware.Recover(h.logger)(middleware.RequestLogger(h.logger)(r)))
}

// RegisterRoutes sets up all API routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	// Health check (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	if h.uploadDir != "" {
		r.PathPrefix(photos.UploadsRoute).Handler(
			http.StripPrefix(photos.UploadsRoute, http.FileServer(http.Dir(h.uploadDir))))
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	admin := middleware.AdminAuth(h.issuer)

	// Specific report routes go before /reportes/{id}
	v1.HandleFunc("/reportes", h.CreateReport).Methods(http.MethodPost)
	v1.HandleFunc("/reportes", h.ListReports).Methods(http.MethodGet)
	v1.HandleFunc("/reportes/cercanos", h.NearReports).Methods(http.MethodPost)
	v1.HandleFunc("/reportes/en-area", h.ReportsInArea).Methods(http.MethodGet)
	v1.HandleFunc("/reportes/usuario/{userId}", h.ListUserReports).Methods(http.MethodGet)
	v1.Handle("/reportes/export", admin(http.HandlerFunc(h.ExportReports))).Methods(http.MethodGet)
	v1.HandleFunc("/reportes/{id}", h.GetReport).Methods(http.MethodGet)
	v1.Handle("/reportes/{id}", admin(http.HandlerFunc(h.UpdateReport))).Methods(http.MethodPut)
	v1.Handle("/reportes/{id}", admin(http.HandlerFunc(h.DeleteReport))).Methods(http.MethodDelete)

	v1.HandleFunc("/estadisticas", h.GetStatistics).Methods(http.MethodGet)

	v1.Handle("/admin/register", admin(http.HandlerFunc(h.RegisterAdmin))).Methods(http.MethodPost)
	v1.HandleFunc("/admin/userByEmail", h.LoginAdmin).Methods(http.MethodGet)
}

// HealthCheck answers 503 only when the store is down.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	health := shared.HealthStatus{
		Status:    shared.HealthStatusHealthy,
		Service:   shared.ServiceName,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Details:   make(map[string]string),
	}

	statusCode := http.StatusOK
	if h.storeCheck != nil {
		if err := h.storeCheck(ctx); err != nil {
			health.Status = shared.HealthStatusDegraded
			health.Details["store"] = "unhealthy: " + err.Error()
			statusCode = http.StatusServiceUnavailable
		} else {
			health.Details["store"] = "healthy"
		}
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			health.Status = shared.HealthStatusDegraded
			health.Details[name] = "unhealthy: " + err.Error()
		} else {
			health.Details[name] = "healthy"
		}
	}

	sendSuccess(w, statusCode, health)
}

// Helper functions
func sendSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, shared.Response{
		Success: true,
		Data:    data,
	})
}

func sendList(w http.ResponseWriter, data interface{}, count int) {
	writeJSON(w, http.StatusOK, shared.Response{
		Success: true,
		Count:   &count,
		Data:    data,
	})
}

func sendError(w http.ResponseWriter, statusCode int, code, message string, details interface{}) {
	writeJSON(w, statusCode, shared.Response{
		Success: false,
		Error: &shared.Error{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, response shared.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// sendServiceError maps the error taxonomy onto status codes.
func (h *Handlers) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		sendError(w, http.StatusBadRequest, shared.CodeValidation, "Validation failed", verr.Fields)
	case errors.Is(err, shared.ErrInvalidID):
		sendError(w, http.StatusBadRequest, shared.CodeInvalidID, "Invalid report id", nil)
	case errors.Is(err, shared.ErrNotFound):
		sendError(w, http.StatusNotFound, shared.CodeNotFound, "Resource not found", nil)
	case errors.Is(err, shared.ErrConflict):
		sendError(w, http.StatusConflict, shared.CodeConflict, "Resource already exists", nil)
	case errors.Is(err, shared.ErrStorage):
		h.logger.Error("Storage failure",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		sendError(w, http.StatusServiceUnavailable, shared.CodeStorageUnavailable, "Storage unavailable", nil)
	default:
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		sendError(w, http.StatusInternalServerError, shared.CodeInternal, "Internal server error", nil)
	}
}
