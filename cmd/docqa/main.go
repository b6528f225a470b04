package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashwinyue/docqa/internal/config"
	"github.com/ashwinyue/docqa/internal/database"
	"github.com/ashwinyue/docqa/internal/handler"
	"github.com/ashwinyue/docqa/internal/logger"
	"github.com/ashwinyue/docqa/internal/repository"
	"github.com/ashwinyue/docqa/internal/router"
	"github.com/ashwinyue/docqa/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env 可选
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	// 加载配置，CONFIG_PATH 未设置时只用默认值与环境变量
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer appLog.Sync()

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := database.New(cfg)
	if err != nil {
		appLog.Fatal("Failed to init database", "error", err)
	}
	defer db.Close()
	appLog.Info("Database connected", "driver", cfg.Database.Driver)

	// Redis 只服务于摄取队列
	var redisClient redis.UniversalClient
	if cfg.Ingest.Queue == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化各层
	repos := repository.NewRepositories(db.DB)
	services, err := service.NewServices(ctx, cfg, repos, redisClient, appLog)
	if err != nil {
		appLog.Fatal("Failed to init services", "error", err)
	}
	// 队列不跟随信号取消，Stop 时排空后退出
	services.Start(context.Background())
	handlers := handler.NewHandlers(services, db)

	// 初始化路由
	r := router.SetupRouter(handlers, cfg, appLog)

	// 创建 HTTP 服务器
	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 启动服务器
	go func() {
		appLog.Info("Server starting", "addr", srv.Addr, "vector_backend", cfg.Vector.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Server error", "error", err)
		}
	}()

	// 等待中断信号
	<-ctx.Done()
	appLog.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", "error", err)
	}
	services.Stop()

	appLog.Info("Server exited")
}
