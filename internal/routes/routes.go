package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ferryline/ferryline-api/internal/handlers"
)

// NewRouter sets up the API routes.
func NewRouter(
	auth *handlers.AuthHandler,
	jobs *handlers.JobHandler,
	history *handlers.HistoryHandler,
	preferences *handlers.PreferenceHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Authenticated API
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.HandleFunc("/jobs", jobs.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobID}/deliveries", jobs.StartDelivery).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{jobID}", jobs.UpdateJob).Methods(http.MethodPatch)
	api.HandleFunc("/jobs/{jobID}", jobs.DeleteJob).Methods(http.MethodDelete)

	api.HandleFunc("/history", history.ListHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{jobID}", history.DeleteHistory).Methods(http.MethodDelete)

	api.HandleFunc("/preferences", preferences.GetPreference).Methods(http.MethodGet)
	api.HandleFunc("/preferences", preferences.SavePreference).Methods(http.MethodPut)
	api.HandleFunc("/preferences/{jobID}", preferences.GetPreference).Methods(http.MethodGet)
	api.HandleFunc("/preferences/{jobID}", preferences.SavePreference).Methods(http.MethodPut)

	return router
}
