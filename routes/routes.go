package routes

import (
	"net/http"

	"github.com/farbook/far-chat/app"
	"github.com/farbook/far-chat/handlers"
	"github.com/farbook/far-chat/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the router: probe endpoints, metrics, and the
// versioned API, with the shared middleware chain in front.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(deps.Config.Server.RequestTimeout))
	r.Use(middleware.Metrics(deps.Metrics))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	conversationHandler := handlers.NewConversationHandler(deps.ConversationService, deps.Logger)
	chatHandler := handlers.NewChatHandler(deps.ChatService, deps.Logger)

	// A typed nil *postgres.DB must not become a non-nil Checker
	var dbChecker handlers.Checker
	if deps.DB != nil {
		dbChecker = deps.DB
	}
	healthHandler := handlers.NewHealthHandler(dbChecker, deps.VectorStore, deps.Logger)

	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Conversation lifecycle
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.HandleCreateConversation)
			r.Get("/{conversationID}", conversationHandler.HandleGetConversation)
			r.Get("/{conversationID}/messages", conversationHandler.HandleListMessages)
		})

		// Question answering
		r.Route("/chat", func(r chi.Router) {
			r.Post("/{conversationID}/messages", chatHandler.HandleSendMessage)
			r.Post("/{conversationID}/messages/{messageID}/regenerate", chatHandler.HandleRegenerate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
