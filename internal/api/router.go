package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/practice-server/internal/api/handlers"
	"github.com/isdelr/practice-server/internal/jsonstore"
	"github.com/isdelr/practice-server/internal/monitoring"
	"github.com/isdelr/practice-server/internal/services"
	"github.com/isdelr/practice-server/internal/websocket"
)

// Dependencies are the collaborators the router dispatches to.
type Dependencies struct {
	Sessions  Authenticator
	Data      services.DataServiceProvider
	Users     services.UserServiceProvider
	Events    services.EventServiceProvider
	Util      services.UtilServiceProvider
	JSONStore *jsonstore.Tree
	Hub       *websocket.Hub
	Metrics   *monitoring.Collector
}

// NewRouter creates and configures a new Chi router.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	// Open CORS: any origin, no credentials.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"X-Requested-With", "X-HTTP-Method-Override", "Content-Type", "Accept", HeaderAuthorization, HeaderAdmin},
		AllowCredentials: false,
		MaxAge:           86400,
	}))
	r.Use(answerOptions)
	r.Use(throttle(deps.Util))
	r.Use(authenticate(deps.Sessions))

	// Initialize handlers
	dataHandler := handlers.NewDataHandler(deps.Data)
	userHandler := handlers.NewUserHandler(deps.Users)
	eventHandler := handlers.NewEventHandler(deps.Events)
	utilHandler := handlers.NewUtilHandler(deps.Util)
	jsonHandler := handlers.NewJSONStoreHandler(deps.JSONStore)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Data, deps.Sessions)

	r.Route("/data", func(r chi.Router) {
		r.Get("/", dataHandler.Collections)
		r.HandleFunc("/{collection}", dataHandler.Handle)
		r.HandleFunc("/{collection}/*", dataHandler.Handle)
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)
		r.Get("/logout", userHandler.Logout)
		r.Get("/me", userHandler.Me)
		r.NotFound(noContent)
		r.MethodNotAllowed(noContent)
	})

	r.HandleFunc("/jsonstore", jsonHandler.Handle)
	r.HandleFunc("/jsonstore/*", jsonHandler.Handle)

	r.Route("/util", func(r chi.Router) {
		r.Post("/", utilHandler.Set)
		r.Post("/*", utilHandler.Set)
		r.Get("/{setting}", utilHandler.Get)
		r.NotFound(noContent)
		r.MethodNotAllowed(noContent)
	})

	r.Get("/audit", eventHandler.GetRecent)

	// WebSocket connection endpoints
	r.Get("/ws", wsHandler.Serve)
	r.Get("/ws/{collection}", wsHandler.Serve)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.NotFound(unsupportedService)
	r.MethodNotAllowed(unsupportedService)

	return r
}

// unsupportedService answers requests to a service the server does not have.
func unsupportedService(w http.ResponseWriter, r *http.Request) {
	name := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)[0]
	handlers.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Service %q is not supported", name))
}

// noContent mirrors a service that has no action for the request.
func noContent(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
