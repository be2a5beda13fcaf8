package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"aireadiness/internal/config"
	"aireadiness/internal/repository"
	"aireadiness/internal/service"
	"aireadiness/internal/transport/rest/handler"
	"aireadiness/internal/transport/rest/middleware"
	"aireadiness/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	SessionService *service.SessionService
	TokenService   *service.TokenService
	SessionRepo    repository.SessionRepo
	CopyDeck       *config.CopyDeck
	WSHub          *ws.Hub
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	sessionHandler := handler.NewSessionHandler(c.SessionService, c.CopyDeck)
	resultHandler := handler.NewResultHandler(c.SessionRepo, c.TokenService)
	wsHandler := ws.NewHandler(c.WSHub, c.SessionService)

	r.Use(corsMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	// Session controller routes; the identity resolver runs first so no
	// handler executes without a session id.
	sessionRoutes := v1.PathPrefix("/session").Subrouter()
	sessionRoutes.Use(middleware.ResolveSession)

	sessionRoutes.HandleFunc("", sessionHandler.Mount).Methods("GET", "OPTIONS")
	sessionRoutes.HandleFunc("/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/resume", sessionHandler.Resume).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/answers", sessionHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/skip", sessionHandler.Skip).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/speak", sessionHandler.Speak).Methods("POST", "OPTIONS")
	sessionRoutes.HandleFunc("/speech/ended", sessionHandler.SpeechEnded).Methods("POST", "OPTIONS")

	// Live channel (session id resolved from query param)
	wsRoutes := v1.PathPrefix("/ws").Subrouter()
	wsRoutes.Use(middleware.ResolveSession)
	wsRoutes.HandleFunc("/session", wsHandler.SessionWS).Methods("GET")

	// Results (token-gated, no identity cookie involved)
	v1.HandleFunc("/results/{sessionId}", resultHandler.Get).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
