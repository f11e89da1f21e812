// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tzappu-go/internal/config"
	"tzappu-go/internal/handler"
	"tzappu-go/internal/middleware"
	"tzappu-go/internal/pipeline"
	"tzappu-go/internal/repository"
	"tzappu-go/internal/service"
	"tzappu-go/internal/session"
	"tzappu-go/pkg/database"
	"tzappu-go/pkg/es"
	"tzappu-go/pkg/kafka"
	"tzappu-go/pkg/llm"
	"tzappu-go/pkg/log"
	"tzappu-go/pkg/storage"
	"tzappu-go/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")
	if cfg.LLM.APIKey == "" {
		log.Warnf("未配置 llm.api_key，请通过环境变量 TZAPPU_LLM_API_KEY 注入")
	}

	// 3. 初始化 OpenTelemetry
	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.Telemetry)
	if err != nil {
		log.Fatal("初始化 OpenTelemetry 失败", err)
	}

	// 4. 初始化数据库、Redis 与可选的外部组件
	database.InitDB(cfg.Database)
	rdb := database.InitRedis(cfg.Database.Redis)

	// 5. 初始化 Repository
	savedChatRepo := repository.NewSavedChatRepository(database.DB)
	var chatCache repository.ChatCacheRepository
	if rdb != nil {
		chatCache = repository.NewChatCacheRepository(rdb, cfg.Database.Redis.CacheTTL())
	}

	var chatIndex *es.ChatIndex
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Fatal("es 初始化失败", err)
		}
		chatIndex = es.NewChatIndex(es.ESClient, cfg.Elasticsearch.IndexName)
	}

	var exporter service.ChatExporter
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
		exporter = storage.NewExporter(storage.MinioClient, cfg.MinIO)
	}

	// 6. 初始化索引管道：启用 Kafka 时异步消费，否则同步处理
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	var (
		publisher service.ChatEventPublisher
		producer  *kafka.Producer
		searcher  service.ChatSearcher
	)
	if chatIndex != nil {
		searcher = chatIndex
		indexer := pipeline.NewIndexer(savedChatRepo, chatIndex)
		if cfg.Kafka.Enabled {
			producer = kafka.NewProducer(cfg.Kafka)
			publisher = producer
			go kafka.StartConsumer(consumerCtx, cfg.Kafka, indexer)
		} else {
			publisher = pipeline.NewInlinePublisher(indexer)
		}
	}

	// 7. 初始化会话注册表和 Service (依赖注入)
	llmClient := llm.NewClient(cfg.LLM)
	sessions := session.NewManager(
		service.NewReplyGenerator(llmClient, cfg.LLM),
		session.WithIdleTimeout(cfg.Session.IdleTimeout()),
		session.WithGenerationTimeout(cfg.LLM.Timeout()),
	)
	janitor := session.NewJanitor(sessions, cfg.Session.CleanupInterval())
	janitor.Start(context.Background())

	conversationService := service.NewConversationService(sessions)
	savedChatService := service.NewSavedChatService(savedChatRepo, chatCache, sessions, publisher, exporter)
	searchService := service.NewSearchService(searcher)
	plannerService := service.NewPlannerService(loadWeather(cfg.Planner))

	chatHandler := handler.NewChatHandler(conversationService, cfg.Server.AllowedOrigins)
	savedChatHandler := handler.NewSavedChatHandler(savedChatService)
	searchHandler := handler.NewSearchHandler(searchService)
	plannerHandler := handler.NewPlannerHandler(plannerService)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(cfg.Server.AllowedOrigins))

	// 9. 注册路由
	r.GET("/health", handler.NewHealthHandler(sessions, plannerService).Health)
	r.POST("/plan-event", plannerHandler.PlanEvent)
	r.GET("/available-options", plannerHandler.AvailableOptions)
	r.GET("/event-criteria/:event", plannerHandler.EventCriteria)
	apiV1 := r.Group("/api/v1")
	{
		chat := apiV1.Group("/chat")
		{
			chat.POST("", chatHandler.Send)
			chat.POST("/clear", chatHandler.Clear)
			chat.GET("/history", chatHandler.History)

			chat.POST("/save", savedChatHandler.Save)
			chat.GET("/load/:chatId", savedChatHandler.Load)
			chat.GET("/list", savedChatHandler.List)
			chat.PUT("/update/:chatId", savedChatHandler.Update)
			chat.DELETE("/delete/:chatId", savedChatHandler.Delete)
			chat.GET("/export/:chatId", savedChatHandler.Export)

			chat.GET("/search", searchHandler.Search)
		}
	}
	r.GET("/chat/ws/:sessionId", chatHandler.Stream)

	// 启动 HTTP 服务器并实现优雅停机
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	janitor.Stop()
	sessions.Close()

	stopConsumer()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Errorf("关闭 OpenTelemetry 失败: %v", err)
	}
	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("服务已优雅关闭")
}

// loadWeather 读取天气数据文件。文件缺失或格式错误时只记录警告，规划接口返回不可用。
func loadWeather(cfg config.PlannerConfig) repository.WeatherRepository {
	if cfg.WeatherCSVPath == "" {
		log.Info("未配置天气数据文件，活动规划已禁用")
		return nil
	}
	weather, err := repository.NewCSVWeatherRepository(cfg.WeatherCSVPath)
	if err != nil {
		log.Warnf("加载天气数据失败，活动规划不可用: %v", err)
		return nil
	}
	log.Infof("天气数据已加载: %s, 共 %d 条记录", cfg.WeatherCSVPath, weather.Count())
	return weather
}
