package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"whytrade-api/internal/auth"
	"whytrade-api/internal/database"
	"whytrade-api/internal/events"
	"whytrade-api/internal/logging"
	"whytrade-api/internal/market"
	"whytrade-api/internal/position"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string
}

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	repo      *database.Repository
	eventBus  *events.EventBus
	authSvc   *auth.Service
	positions *position.Service
	market    *market.Service // may be nil when the feed is disabled
	wsHub     *WSHub
	log       *logging.Logger
}

// NewServer creates the API server and wires all routes
func NewServer(
	cfg ServerConfig,
	repo *database.Repository,
	eventBus *events.EventBus,
	authSvc *auth.Service,
	positions *position.Service,
	marketSvc *market.Service,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:    router,
		config:    cfg,
		repo:      repo,
		eventBus:  eventBus,
		authSvc:   authSvc,
		positions: positions,
		market:    marketSvc,
		log:       logging.WithComponent("api"),
	}

	server.wsHub = NewWSHub()
	go server.wsHub.Run()
	if eventBus != nil {
		eventBus.SubscribeAll(server.wsHub.DeliverEvent)
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.GET("/me", auth.Middleware(s.authSvc), s.handleMe)
	}

	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authSvc))
	{
		trades := protected.Group("/trades")
		{
			trades.GET("", s.handleListTrades)
			trades.POST("", s.handleCreateTrade)
			trades.GET("/positions", s.handleGetPositions)
			trades.GET("/:id", s.handleGetTrade)
			trades.PUT("/:id", s.handleUpdateTrade)
			trades.DELETE("/:id", s.handleDeleteTrade)
			trades.POST("/:id/close", s.handleCloseTrade)
			trades.POST("/:id/reflection", s.handleCreateReflection)
			trades.GET("/:id/reflection", s.handleGetReflection)
			trades.PUT("/:id/reflection", s.handleUpdateReflection)
		}

		stock := protected.Group("/stock")
		{
			stock.GET("/price/:symbol", s.handleStockPrice)
			stock.GET("/analysis/:symbol", s.handleStockAnalysis)
		}

		protected.GET("/ws", s.handleWebSocket)
	}
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting HTTP server on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "whytrade-api",
		"message": "trade journaling API",
		"docs":    "/api/v1",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.repo.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
	})
}

// respondError translates domain errors into stable status codes and
// machine-readable reasons. Unknown errors become opaque 500s.
func (s *Server) respondError(c *gin.Context, err error) {
	var domainErr position.Error
	if errors.As(err, &domainErr) {
		status := http.StatusInternalServerError
		switch domainErr.Code {
		case position.CodeNotFound:
			status = http.StatusNotFound
		case position.CodeInvalidState, position.CodeValidation:
			status = http.StatusBadRequest
		case position.CodeConflict:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": domainErr.Code, "message": domainErr.Message})
		return
	}

	var authErr auth.AuthError
	if errors.As(err, &authErr) {
		status := http.StatusUnauthorized
		if authErr.Code == auth.ErrEmailExists.Code {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": authErr.Code, "message": authErr.Message})
		return
	}

	if errors.Is(err, market.ErrNoData) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND", "message": err.Error()})
		return
	}
	if errors.Is(err, market.ErrUpstream) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "UPSTREAM_FAILURE", "message": err.Error()})
		return
	}

	s.log.WithError(err).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL", "message": "internal server error"})
}

func validationResponse(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
}
