package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/lexchat/internal/ai"
	"github.com/suPer8Hu/lexchat/internal/anon"
	"github.com/suPer8Hu/lexchat/internal/attachment"
	"github.com/suPer8Hu/lexchat/internal/chat"
	"github.com/suPer8Hu/lexchat/internal/config"
	"github.com/suPer8Hu/lexchat/internal/db"
	"github.com/suPer8Hu/lexchat/internal/httpapi"
	"github.com/suPer8Hu/lexchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/lexchat/internal/logger"
	"github.com/suPer8Hu/lexchat/internal/rag"
	"github.com/suPer8Hu/lexchat/internal/store/memstore"
	"github.com/suPer8Hu/lexchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/lexchat/internal/store/redisstore"
	"github.com/suPer8Hu/lexchat/internal/tokens"
	"github.com/suPer8Hu/lexchat/internal/tracing"
	"github.com/suPer8Hu/lexchat/internal/usage"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, log, cfg)

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", "err", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate", "err", err)
	}

	var store anon.Store
	switch cfg.EphemeralBackend {
	case "memory":
		store = memstore.New(cfg.AnonymousTTL)
	default:
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.AnonymousTTL)
		if err := rds.Ping(ctx); err != nil {
			log.Fatal("redis ping", "addr", cfg.RedisAddr, "err", err)
		}
		defer rds.Close()
		store = rds
	}

	counter, err := tokens.New(cfg.TokenizerModel)
	if err != nil {
		log.Warn("tokenizer unavailable, estimating token counts", "model", cfg.TokenizerModel, "err", err)
	}

	reg := ai.NewRegistry()
	reg.Register("openai", ai.NewOpenAIFactory(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Temperature))
	reg.Register("ollama", ai.NewOllamaFactory(cfg.OllamaBaseURL))
	modelName := cfg.OpenAIModel
	if cfg.AIProvider == "ollama" {
		modelName = cfg.OllamaModel
	}
	chatModel, err := reg.Get(ctx, cfg.AIProvider, modelName)
	if err != nil {
		log.Fatal("chat model", "provider", cfg.AIProvider, "model", modelName, "err", err)
	}
	gen := ai.NewGenerator(chatModel)

	var ret retriever.Retriever
	if cfg.ElasticURL != "" {
		ret, err = rag.NewElasticRetriever(ctx, rag.ElasticConfig{
			URL:             cfg.ElasticURL,
			Username:        cfg.ElasticUsername,
			Password:        cfg.ElasticPassword,
			Index:           cfg.ElasticIndex,
			VectorField:     cfg.ElasticVectorField,
			TopK:            cfg.RetrieverTopK,
			EmbeddingAPIKey: cfg.EmbeddingAPIKey,
			EmbeddingModel:  cfg.EmbeddingModel,
		})
		if err != nil {
			log.Fatal("elastic retriever", "err", err)
		}
	} else {
		log.Warn("ELASTIC_URL not set, answering without retrieval")
	}

	var files attachment.Storage
	switch cfg.StorageBackend {
	case "gcs":
		gcs, err := attachment.NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			log.Fatal("gcs storage", "err", err)
		}
		defer gcs.Close()
		files = gcs
	default:
		local, err := attachment.NewLocalStorage(cfg.UploadDir)
		if err != nil {
			log.Fatal("local storage", "dir", cfg.UploadDir, "err", err)
		}
		files = local
	}

	extractor, err := attachment.NewExtractor(ctx)
	if err != nil {
		log.Fatal("text extractor", "err", err)
	}
	procOpts := []attachment.ProcessorOption{attachment.WithWorkers(cfg.AttachmentWorkers)}
	if cfg.DescribeAttachments {
		procOpts = append(procOpts, attachment.WithDescriber(gen))
	}
	processor := attachment.NewProcessor(attachment.NewRepo(gdb), files, extractor, log, procOpts...)

	var sink chat.UsageSink = usage.NewDBSink(usage.NewRepo(gdb))
	if cfg.UsageAsync {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatal("rabbit publisher", "err", err)
		}
		defer pub.Close()
		sink = pub
	}

	repo := chat.NewRepo(gdb)
	chatSvc := chat.NewService(chat.Deps{
		Repo:        repo,
		Store:       store,
		Resolver:    chat.NewResolver(repo, store, gen, cfg.AnonymousMessageLimit, log),
		Budget:      chat.NewBudget(counter, cfg.HistoryTokenLimit, gen),
		Answerer:    rag.NewService(chatModel, ret, log),
		Attachments: processor,
		Usage:       sink,
		Log:         log,
	})

	h := handlers.NewHandler(gdb, cfg, log, chatSvc, files)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", "addr", cfg.HTTPAddr, "provider", cfg.AIProvider, "ephemeral", cfg.EphemeralBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", "err", err)
	}
}
