package api

import (
	"github.com/gorilla/mux"

	"github.com/garnizeh/interviewer/internal/config"
	"github.com/garnizeh/interviewer/internal/evaluation"
	"github.com/garnizeh/interviewer/internal/reconcile"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// Deps are the stores and services the routes are wired to.
type Deps struct {
	Interviews repository.InterviewRepo
	Results    repository.ResultRepo
	Operators  repository.OperatorRepo
	Tasks      repository.PollTaskRepo
	Events     repository.WebhookEventRepo
	Schemas    repository.EvaluationSchemaRepo
	Service    *reconcile.Service
	Loader     *evaluation.Loader
}

func SetupRoutes(cfg *config.Config, version, buildTime string, d Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := NewSystemHandler(d.Tasks, cfg)
	authHandler := NewAuthHandler(d.Operators, cfg.JWTSecret, cfg.TokenDuration)
	webhookHandler := NewWebhookHandler(d.Service, cfg.Provider.WebhookSecret)
	interviewsHandler := NewInterviewsHandler(d.Interviews, d.Results, d.Service)
	reconciliationsHandler := NewReconciliationsHandler(d.Tasks, d.Service)
	eventsHandler := NewWebhookEventsHandler(d.Events)
	schemasHandler := NewEvaluationSchemasHandler(d.Loader, d.Schemas)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/signin", authHandler.Signin).Methods("POST")
	r.HandleFunc("/api/webhooks/vapi", webhookHandler.Vapi).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	// Auth endpoints
	authV1 := apiV1.PathPrefix("/auth").Subrouter()
	authV1.HandleFunc("/signout", authHandler.Signout).Methods("POST")

	// Interviews endpoints
	apiV1.HandleFunc("/interviews", interviewsHandler.CreateInterview).Methods("POST")
	apiV1.HandleFunc("/interviews", interviewsHandler.ListInterviews).Methods("GET")
	apiV1.HandleFunc("/interviews/{id:[0-9]+}", interviewsHandler.GetInterview).Methods("GET")
	apiV1.HandleFunc("/interviews/{id:[0-9]+}", interviewsHandler.DeleteInterview).Methods("DELETE")
	apiV1.HandleFunc("/interviews/{id:[0-9]+}/fetch-results", interviewsHandler.FetchResults).Methods("POST")
	apiV1.HandleFunc("/interviews/{id:[0-9]+}/complete", interviewsHandler.Complete).Methods("POST")
	apiV1.HandleFunc("/interviews/{id:[0-9]+}/link-call", interviewsHandler.LinkCall).Methods("POST")

	// Reconciliation endpoints
	apiV1.HandleFunc("/reconciliations/unresolved", reconciliationsHandler.ListUnresolved).Methods("GET")
	apiV1.HandleFunc("/reconciliations/unresolved/fetch", reconciliationsHandler.RetryUnresolved).Methods("POST")
	apiV1.HandleFunc("/reconciliations/tasks", reconciliationsHandler.ListTasks).Methods("GET")
	apiV1.HandleFunc("/webhook-events", eventsHandler.ListWebhookEvents).Methods("GET")

	// Evaluation schema endpoints
	apiV1.HandleFunc("/evaluation-schemas", schemasHandler.ListSchemasHandler).Methods("GET")
	apiV1.HandleFunc("/evaluation-schemas", schemasHandler.CreateOrUpdateSchemaHandler).Methods("POST")
	apiV1.HandleFunc("/evaluation-schemas/reload", schemasHandler.ReloadHandler).Methods("POST")
	apiV1.HandleFunc("/evaluation-schemas/{name}", schemasHandler.GetSchemaHandler).Methods("GET")
	apiV1.HandleFunc("/evaluation-schemas/{name}", schemasHandler.DeleteSchemaHandler).Methods("DELETE")

	return r
}
