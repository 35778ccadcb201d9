// Package main 是应用程序的入口点。
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

	"askmynotes-go/internal/config"
	"askmynotes-go/internal/handler"
	"askmynotes-go/internal/middleware"
	"askmynotes-go/internal/model"
	"askmynotes-go/internal/repository"
	"askmynotes-go/internal/service"
	"askmynotes-go/pkg/database"
	"askmynotes-go/pkg/embedding"
	"askmynotes-go/pkg/kafka"
	"askmynotes-go/pkg/llm"
	"askmynotes-go/pkg/log"
	"askmynotes-go/pkg/storage"
	"askmynotes-go/pkg/tika"
	"askmynotes-go/pkg/token"
	"askmynotes-go/pkg/vector"
)

func main() {
	// 1. 加载配置。配置不合法属于致命错误，直接退出。
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	// 3. 初始化数据库、Redis 与对象存储
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Profile{}, &model.Document{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	rdb, err := database.NewRedis(startupCtx, cfg.Database.Redis)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}

	minioClient, err := storage.NewClient(startupCtx, cfg.MinIO)
	if err != nil {
		log.Fatal("MinIO 初始化失败", err)
	}

	// 4. 初始化嵌入提供方与向量库网关。
	// 提供方与驱动在启动期解析一次，之后以显式依赖传入各服务。
	provider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		log.Fatal("嵌入提供方初始化失败", err)
	}
	vectorStore, err := vector.NewStore(cfg.Vector, provider.Dimension())
	if err != nil {
		log.Fatal("向量库网关初始化失败", err)
	}
	// 集合创建是幂等的。后端暂时不可达属于 infrastructure 级故障，
	// 不在启动期退出，首次写入或检索时由网关重试。
	if err := vectorStore.EnsureCollection(startupCtx); err != nil {
		log.Errorf("启动期集合创建失败，将在首次使用时重试: %v", err)
	}

	// 5. 初始化其余外部客户端
	tikaClient := tika.NewClient(cfg.Tika)
	llmClient := llm.NewClient(cfg.LLM)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)

	// Kafka 未配置时 producer 为 nil，事件发布被禁用
	var publisher service.EventPublisher
	if producer := kafka.NewProducer(cfg.Kafka); producer != nil {
		publisher = producer
		defer producer.Close()
	}

	// 6. 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	historyRepo := repository.NewHistoryRepository(rdb)

	// 7. 初始化 Service (依赖注入)
	userService := service.NewUserService(userRepo, jwtManager, rdb)
	profileService := service.NewProfileService(profileRepo)
	documentService := service.NewDocumentService(profileService, docRepo, minioClient, tikaClient, provider, vectorStore, publisher, cfg.Ingestion)
	queryService := service.NewQueryService(profileService, provider, vectorStore, llmClient, historyRepo, cfg.Query, cfg.LLM)
	chatService := service.NewChatService(queryService, llmClient, cfg.LLM)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "AskMyNotes API is running",
			"version": "1.0.0",
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	userHandler := handler.NewUserHandler(userService)
	profileHandler := handler.NewProfileHandler(profileService)
	documentHandler := handler.NewDocumentHandler(documentService)
	qaHandler := handler.NewQAHandler(queryService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.Me)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Profile 路由组，需要认证
		profile := apiV1.Group("/profile")
		profile.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			profile.PUT("", profileHandler.Upsert)
			profile.GET("", profileHandler.Get)
		}

		// Document 路由组，需要认证
		documents := apiV1.Group("/documents")
		documents.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
		}

		// QA 路由组，需要认证
		qa := apiV1.Group("/qa")
		qa.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			qa.POST("/query", qaHandler.Query)
			qa.GET("/history", qaHandler.History)
			qa.GET("/stream-token", chatHandler.GetWebsocketStopToken)
		}
	}
	// 流式问答 (WebSocket)，token 在路径中携带
	r.GET("/qa/stream/:token", chatHandler.Handle)

	// 10. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
