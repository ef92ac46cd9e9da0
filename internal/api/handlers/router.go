package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/evtrip/internal/api/middleware"
	"github.com/langchou/evtrip/internal/models"
	"github.com/langchou/evtrip/internal/service"
	"github.com/langchou/evtrip/pkg/ws"
)

// TripService 行程服务
type TripService interface {
	CreateTrip(ctx context.Context, req service.CreateTripRequest) (*service.CreateTripResult, error)
	ListTrips(ctx context.Context, userID string) ([]*models.Trip, error)
	SearchTrips(ctx context.Context, userID string, filter models.TripFilter) ([]*models.Trip, error)
	GetTrip(ctx context.Context, userID, tripID string) (*service.TripDetail, error)
	Stats(ctx context.Context, userID string) (*models.TripStats, error)
	ActivePipelines() map[string]string
}

// AuthService 认证服务
type AuthService interface {
	middleware.TokenValidator
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*service.TokenPair, error)
}

// StationService 充电站查询
type StationService interface {
	FindNear(ctx context.Context, lat, lng, radiusKm float64) ([]models.Station, error)
	Search(ctx context.Context, lat, lng, radiusKm float64, q service.StationQuery) ([]models.Station, error)
	DefaultRadiusKm() float64
}

// Pinger 数据库连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler HTTP 处理器
type Handler struct {
	logger   *zap.Logger
	trips    TripService
	auth     AuthService
	stations StationService
	db       Pinger
	wsHub    *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(
	logger *zap.Logger,
	trips TripService,
	auth AuthService,
	stations StationService,
	db Pinger,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:   logger,
		trips:    trips,
		auth:     auth,
		stations: stations,
		db:       db,
		wsHub:    wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 开发环境允许所有来源
			},
		},
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 认证
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)

		authed := api.Group("", middleware.JWTAuth(h.auth))

		// 行程
		authed.POST("/trips/create", h.CreateTrip)
		authed.GET("/trips/list", h.ListTrips)
		authed.POST("/trips/search", h.SearchTrips)
		authed.GET("/trips/stats", h.GetTripStats)
		authed.GET("/trips/:id", h.GetTrip)

		// 充电站
		authed.GET("/stations/nearby", h.NearbyStations)
		authed.GET("/stations/search", h.SearchStations)
	}

	// WebSocket
	r.GET("/ws", middleware.JWTAuth(h.auth), h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn, middleware.CurrentUserID(c))
	client.Register()

	go client.ReadPump()
	go client.WritePump()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":          "unavailable",
			"ws_clients":      h.wsHub.ClientCount(),
			"trips_in_flight": h.trips.ActivePipelines(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"ws_clients":      h.wsHub.ClientCount(),
		"trips_in_flight": h.trips.ActivePipelines(),
	})
}
