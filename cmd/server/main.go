package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/evtrip/internal/api/handlers"
	"github.com/langchou/evtrip/internal/api/middleware"
	"github.com/langchou/evtrip/internal/api/ocm"
	"github.com/langchou/evtrip/internal/api/osrm"
	"github.com/langchou/evtrip/internal/config"
	"github.com/langchou/evtrip/internal/energy"
	"github.com/langchou/evtrip/internal/repository"
	"github.com/langchou/evtrip/internal/service"
	"github.com/langchou/evtrip/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting EVTrip", zap.String("port", cfg.ServerPort))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 执行数据库迁移
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database migrated successfully")

	// 创建 Repository
	tripRepo := repository.NewTripRepository(db)
	tripStationRepo := repository.NewTripStationRepository(db, logger)
	vehicleRepo := repository.NewVehicleRepository(db)
	userRepo := repository.NewUserRepository(db)

	if names, err := vehicleRepo.ListNames(ctx); err == nil {
		logger.Info("Vehicle profiles loaded", zap.Strings("vehicles", names))
	}

	// 外部服务客户端
	routeClient := osrm.NewClient(cfg.OSRMBaseURL, cfg.HTTPClientTimeout, logger)
	ocmClient := ocm.NewClient(cfg.OCMBaseURL, cfg.OCMAPIKey, cfg.HTTPClientTimeout, logger)
	if cfg.OCMAPIKey == "" {
		logger.Warn("OCM_API_KEY not set, charging station lookups may be rate limited")
	}

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 创建服务
	stationFinder := service.NewStationFinder(ocmClient, service.StationFinderOptions{
		SampleStride: cfg.StationSampleStride,
		RadiusKm:     cfg.StationRadiusKm,
		MaxResults:   cfg.StationMaxResults,
		CacheTTL:     cfg.StationCacheTTL,
	}, logger)

	tripService := service.NewTripService(
		logger,
		routeClient,
		energy.NewModel(vehicleRepo),
		stationFinder,
		tripRepo,
		tripStationRepo,
		wsHub,
		cfg.StationRadiusKm,
	)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiry, logger)

	// 新连接推送当前用户的行程统计
	wsHub.SetInitDataProvider(func(userID string) interface{} {
		statsCtx, statsCancel := context.WithTimeout(ctx, 2*time.Second)
		defer statsCancel()
		stats, err := tripService.Stats(statsCtx, userID)
		if err != nil {
			logger.Warn("Failed to load init stats", zap.String("user_id", userID), zap.Error(err))
			return nil
		}
		return gin.H{"stats": stats}
	})

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		tripService,
		authService,
		stationFinder,
		db,
		wsHub,
	)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.Timeout(cfg.RequestTimeout))

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if active := tripService.ActivePipelines(); len(active) > 0 {
		logger.Warn("Shutting down with trip creations in flight", zap.Any("pipelines", active))
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
