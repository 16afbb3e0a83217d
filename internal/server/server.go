package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"mint/internal/config"
	"mint/internal/handler"
	"mint/internal/pkg/jwt"
	"mint/internal/server/middleware"
)

const shutdownTimeout = 15 * time.Second

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
	app    *App
}

// New 创建服务器实例
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	app, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithApp(cfg, app), nil
}

// NewWithApp 使用已组装的依赖创建服务器（测试 / 嵌入）
func NewWithApp(cfg *config.Config, app *App) *Server {
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &Server{
		cfg:    cfg,
		engine: gin.New(),
		app:    app,
	}
	srv.setupRoutes()
	return srv
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	deps := map[string]handler.Pinger{}
	if s.app.Mongo != nil {
		deps["mongo"] = s.app.Mongo
	}
	if s.app.Redis != nil {
		deps["redis"] = s.app.Redis
	}
	healthHandler := handler.NewHealthHandler(s.app.Orchestrator, deps)
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	chatHandler := handler.NewChatHandler(s.app.Orchestrator)
	analyticsHandler := handler.NewAnalyticsHandler(s.app.Orchestrator)

	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/chat", chatHandler.Chat)
		v1.GET("/analytics", analyticsHandler.Analytics)

		// 运维接口需要 operator 令牌
		secret := s.cfg.Auth.JWTSecret
		if secret == "" {
			log.Warn().Msg("JWT secret not configured, analytics export/reset disabled")
			return
		}
		ops := v1.Group("/analytics")
		ops.Use(middleware.Auth(jwt.NewJWT(secret, s.cfg.Auth.TokenExpiry)))
		{
			ops.GET("/export", analyticsHandler.Export)
			ops.POST("/reset", analyticsHandler.Reset)
		}
	}
}

// Run 启动服务器，ctx 取消后优雅退出并关闭外部连接
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 先停止接收请求，处理中的轮次结束后再关闭连接
		err := srv.Shutdown(shutdownCtx)
		if cerr := s.app.Close(shutdownCtx); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close connections")
		}
		return err
	case err := <-errCh:
		_ = s.app.Close(context.Background())
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
