package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hlog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"job-matcher-go/internal/api/handler"
	"job-matcher-go/internal/api/router"
	"job-matcher-go/internal/config"
	"job-matcher-go/internal/explainer"
	"job-matcher-go/internal/ingestion"
	"job-matcher-go/internal/logger"
	"job-matcher-go/internal/matcher"
	"job-matcher-go/internal/processor"
	"job-matcher-go/internal/storage"
	"job-matcher-go/internal/tracing"
)

var (
	version     = "1.0.0"          //nolint:gochecknoglobals
	serviceName = "job-matcher-go" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	hlog.SetLogger(hertzadapter.From(logger.Logger))
	logger.Info().Str("version", version).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracerProvider(ctx, serviceName, version, cfg.Tracing.OTLPEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			logger.Fatal().Err(err).Msg("初始化链路追踪失败")
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("关闭链路追踪失败")
			}
		}()
		logger.Info().Str("endpoint", cfg.Tracing.OTLPEndpoint).Msg("链路追踪初始化成功")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	if storageManager.MySQL == nil {
		logger.Fatal().Msg("MySQL是必需依赖，初始化失败后无法继续")
	}
	logger.Info().Msg("存储服务初始化成功")

	embedder, err := matcher.NewQwenEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化Embedder失败")
	}

	var engineOpts []matcher.EngineOption
	var vectorCache matcher.VectorCache
	if storageManager.Redis != nil {
		vectorCache = storageManager.Redis
		engineOpts = append(engineOpts, matcher.WithVectorCache(vectorCache))
	}
	engine, err := matcher.NewEngine(embedder, cfg.Matcher, engineOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化匹配引擎失败")
	}
	logger.Info().
		Float64("w_semantic", cfg.Matcher.Weights.Semantic).
		Float64("w_keyword", cfg.Matcher.Weights.Keyword).
		Int("top_n", cfg.Matcher.TopN).
		Msg("匹配引擎初始化成功")

	var files storage.ObjectStorage
	if storageManager.MinIO != nil {
		files = storageManager.MinIO
	}
	resumeProcessor := processor.NewResumeProcessor(embedder, storageManager.MySQL, files, vectorCache, cfg.Matcher)
	logger.Info().Msg("简历处理器初始化成功")

	var matchExplainer *explainer.Explainer
	chatModel, err := explainer.NewQwenChatModel(cfg.Aliyun.APIKey, cfg.Explainer.ModelName, cfg.Aliyun.APIURL,
		explainer.WithTemperature(cfg.Explainer.Temperature),
		explainer.WithMaxTokens(cfg.Explainer.MaxTokens),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化LLM聊天客户端失败，解释接口不可用")
	} else {
		matchExplainer = explainer.NewExplainer(chatModel)
		logger.Info().Str("model", cfg.Explainer.ModelName).Msg("解释生成器初始化成功")
	}

	var consumer *ingestion.Consumer
	if storageManager.RabbitMQ != nil {
		consumer = ingestion.NewConsumer(storageManager.RabbitMQ, storageManager.MySQL, &cfg.RabbitMQ)
		if err := consumer.Start(logger.WithContext(ctx)); err != nil {
			logger.Fatal().Err(err).Msg("启动岗位摄取消费者失败")
		}
		logger.Info().
			Str("queue", cfg.RabbitMQ.JobIngestQueue).
			Int("prefetch", cfg.RabbitMQ.PrefetchCount).
			Msg("岗位摄取消费者已启动")
	} else {
		logger.Warn().Msg("RabbitMQ未配置，岗位摄取功能不可用")
	}

	matchHandler := handler.NewMatchHandler(cfg, storageManager, engine, resumeProcessor, matchExplainer)
	resumeHandler := handler.NewResumeHandler(resumeProcessor)
	jobHandler := handler.NewJobHandler(cfg, storageManager, resumeProcessor)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, matchHandler, resumeHandler, jobHandler)
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器启动中")

	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	if consumer != nil {
		consumer.Stop()
		logger.Info().Msg("岗位摄取消费者已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	logger.Info().Msg("优雅退出完成")
}
