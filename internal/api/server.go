package api

import (
	"log/slog"
	"net/http"

	"maitred/internal/auth"
	"maitred/internal/logging"
	"maitred/internal/monitoring"
	"maitred/internal/realtime"
	"maitred/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

type Options struct {
	Service        *service.Service
	Auth           *auth.Authenticator
	Hub            *realtime.Hub
	Monitor        *monitoring.Monitor
	Logger         *slog.Logger
	AllowedOrigins []string
}

// Server is the HTTP boundary in front of the services and the websocket hub.
type Server struct {
	router  *gin.Engine
	svc     *service.Service
	auth    *auth.Authenticator
	hub     *realtime.Hub
	monitor *monitoring.Monitor
	logger  *slog.Logger
	cors    *cors.Cors
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Monitor == nil {
		opts.Monitor = monitoring.NewMonitor()
	}

	router := gin.New()
	server := &Server{
		router:  router,
		svc:     opts.Service,
		auth:    opts.Auth,
		hub:     opts.Hub,
		monitor: opts.Monitor,
		logger:  opts.Logger.With("component", "api"),
		cors: cors.New(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
		}),
	}

	router.Use(server.recovery(), server.requestLogger())
	server.setupRoutes()
	return server
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.auth.Optional(), s.handleWebSocket)

	api := s.router.Group("/api")
	api.GET("/metrics", s.handleMetrics)

	bookings := api.Group("/bookings", s.auth.Required())
	{
		bookings.POST("", s.handleCreateBooking)
		bookings.GET("", s.handleListBookings)
		bookings.DELETE("/:id", s.handleCancelBooking)
	}

	orders := api.Group("/orders")
	{
		orders.POST("", s.auth.Optional(), s.handlePlaceOrder)
		orders.GET("", s.auth.Required(), s.handleListOrders)
		orders.GET("/:id", s.auth.Optional(), s.handleGetOrder)
		orders.PUT("/:id/status", s.auth.Required(), s.handleAdvanceStatus)
		orders.PUT("/table/:tableId/pay", s.auth.Required(), s.handleMarkTablePaid)
		orders.POST("/free-table", s.auth.Required(), s.handleFreeTable)
	}

	tables := api.Group("/tables/:tableId")
	{
		tables.PUT("/service", s.auth.Optional(), s.handleServiceRequest)
		tables.PUT("/bill", s.auth.Optional(), s.handleBillRequest)
		tables.PUT("/waiter", s.auth.Required(), s.handleAssignWaiter)
	}

	api.PUT("/menu/:itemId/stock", s.auth.Required(), s.handleMenuStock)

	restaurants := api.Group("/restaurants/:id")
	{
		restaurants.GET("", s.handleGetRestaurant)
		restaurants.GET("/tables", s.handleListTables)
		restaurants.PUT("/status", s.auth.Required(), s.handleRestaurantStatus)
		restaurants.PUT("/staff/:userId", s.auth.Required(), s.handleUpdateMembership)
		restaurants.GET("/staff/online", s.auth.Required(), s.handleOnlineStaff)
		restaurants.POST("/reviews", s.auth.Required(), s.handleAddReview)
	}
}

// Router returns the Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler is the router wrapped with CORS for the browser front end.
func (s *Server) Handler() http.Handler {
	return s.cors.Handler(s.router)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "maitred is running"})
}

// handleMetrics returns the JSON metrics snapshot
func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.GetMetrics())
}

// handleWebSocket hands the connection to the hub. Anonymous clients may
// still follow public and table rooms.
func (s *Server) handleWebSocket(c *gin.Context) {
	if err := s.hub.Serve(c.Writer, c.Request, auth.CurrentUser(c)); err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
	}
}
