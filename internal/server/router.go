package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"sisi-realtime/internal/auth"
	"sisi-realtime/internal/handler"
	"sisi-realtime/internal/hub"
	"sisi-realtime/internal/middleware"
	"sisi-realtime/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	// Hub holds this process's websocket connections. Created when nil.
	Hub *hub.Hub
	// Fanout delivers pushes; defaults to Hub. Set it to a broker.Relay to
	// reach users connected to other instances.
	Fanout hub.Fanout
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	wsHub := deps.Hub
	if wsHub == nil {
		wsHub = hub.New()
	}
	fanout := deps.Fanout
	if fanout == nil {
		fanout = wsHub
	}

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	authHandler := &handler.AuthHandler{Store: deps.Store, TokenConfig: deps.TokenConfig}
	r.POST("/api/auth/register", middleware.RateLimit(authLimiter), authHandler.Register)
	r.POST("/api/auth/login", middleware.RateLimit(authLimiter), authHandler.Login)

	protected := r.Group("/api")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	userHandler := &handler.UserHandler{Store: deps.Store}
	protected.GET("/users/me", userHandler.Me)
	protected.GET("/users/search", userHandler.Search)

	chatHandler := &handler.ChatHandler{Store: deps.Store}
	protected.GET("/chats", chatHandler.List)
	protected.POST("/chats", chatHandler.Create)
	protected.GET("/chats/:id/messages", chatHandler.Messages)

	friendsHandler := &handler.FriendsHandler{Store: deps.Store, Fanout: fanout}
	protected.GET("/friends", friendsHandler.List)
	protected.POST("/friends/add", friendsHandler.Add)
	protected.POST("/friends/accept", friendsHandler.Accept)
	protected.POST("/friends/decline", friendsHandler.Decline)

	notificationHandler := &handler.NotificationHandler{Store: deps.Store, Fanout: fanout}
	protected.GET("/notifications", notificationHandler.List)
	protected.POST("/notifications/refresh", notificationHandler.Refresh)
	protected.POST("/notifications/:id/read", notificationHandler.MarkRead)

	aiHandler := &handler.AIHandler{}
	protected.POST("/ai/suggestions", aiHandler.Suggestions)
	protected.POST("/ai/translate", aiHandler.Translate)

	paymentHandler := &handler.PaymentHandler{Store: deps.Store, Fanout: fanout}
	protected.GET("/payments", paymentHandler.List)
	protected.POST("/payments/request", paymentHandler.Request)

	wsHandler := &handler.WebSocketHandler{
		Hub:            wsHub,
		Fanout:         fanout,
		Store:          deps.Store,
		TokenConfig:    deps.TokenConfig,
		MessageLimiter: middleware.NewRateLimiter(30, 10*time.Second),
	}
	r.GET("/ws/:user_id", wsHandler.Serve)

	return r
}
