package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/handler/answer"
	"github.com/zhouzirui/magic-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/handler/live"
	"github.com/zhouzirui/magic-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/magic-chat/backend/internal/handler/webhook"
	"github.com/zhouzirui/magic-chat/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/magic-chat/backend/internal/middleware"
	"github.com/zhouzirui/magic-chat/backend/internal/render"
	chatService "github.com/zhouzirui/magic-chat/backend/internal/service/chat"
)

// Deps holds what the router wires into handlers. Answerer is optional.
type Deps struct {
	Chat     *chatService.Service
	Renderer *render.Renderer
	Sessions chat.SessionOptions
	Metrics  *metrics.Collector
	Answerer answer.Answerer
	Logger   *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(deps.Chat, deps.Renderer, deps.Sessions, logger.Named("chat"))
	webhookHandler := webhook.New(deps.Chat, logger.Named("webhook"))
	streamHandler := stream.New(deps.Chat.Broker(), deps.Renderer, logger.Named("stream"), 0)
	liveHandler := live.NewWebSocketHandler(deps.Chat, deps.Renderer, deps.Sessions.QueryParam, logger.Named("live"))

	chatHandler.RegisterPageRoutes(r)
	liveHandler.RegisterRoutes(r)
	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		webhookHandler.RegisterRoutes(api)

		if deps.Chat.Broker() != nil {
			streamHandler.RegisterRoutes(api)
		}

		// Reference answerer, only when a model is configured.
		if deps.Answerer != nil {
			answer.New(deps.Answerer, logger.Named("answer")).RegisterRoutes(api)
		}
	})

	return r
}
