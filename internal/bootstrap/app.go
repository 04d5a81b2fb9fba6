package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"vendorsec-backend/internal/analyses"
	"vendorsec-backend/internal/chat"
	"vendorsec-backend/internal/events"
	"vendorsec-backend/internal/export"
	"vendorsec-backend/internal/extract"
	"vendorsec-backend/internal/frameworks"
	"vendorsec-backend/internal/llm"
	ollama "vendorsec-backend/internal/llm/ollama"
	openai "vendorsec-backend/internal/llm/openai"
	"vendorsec-backend/internal/services/health"
	"vendorsec-backend/internal/sessions"
	"vendorsec-backend/internal/shared/config"
	"vendorsec-backend/internal/shared/server"
	"vendorsec-backend/internal/shared/server/middleware"
	"vendorsec-backend/internal/shared/storage/db"
	"vendorsec-backend/internal/shared/storage/object"
	localstore "vendorsec-backend/internal/shared/storage/object/local"
	miniostore "vendorsec-backend/internal/shared/storage/object/minio"
	s3store "vendorsec-backend/internal/shared/storage/object/s3"
	"vendorsec-backend/internal/shared/telemetry"
)

const redisOutbox = 256

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore
	Bus    *events.Bus
	Relay  *events.RedisRelay

	// Inference is the raw provider client, used by the connection probe.
	Inference llm.Client

	Sessions *sessions.Registry
	Analyses *analyses.Service
	Chat     *chat.Service
	Health   *health.Service

	SessionHandler  *sessions.Handler
	AnalysisHandler *analyses.Handler
	ChatHandler     *chat.Handler
	ExportHandler   *export.Handler
	LLMHandler      *llm.Handler

	bg sync.WaitGroup
}

// Build prepares dependencies and routes. Background work is started
// separately with StartBackground.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	inference, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        sqlDB,
		Store:     store,
		Bus:       events.NewBus(cfg.EventBufferSize),
		Inference: inference,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		relay, err := events.NewRedisRelay(cfg.RedisURL, redisOutbox)
		if err != nil {
			return nil, fmt.Errorf("redis relay: %w", err)
		}
		if err := relay.Ping(ctx); err != nil {
			if !isDevLike(cfg.Env) {
				return nil, fmt.Errorf("redis relay: %w", err)
			}
			log.Printf("bootstrap: redis unreachable; events stay in-process: %v", err)
		} else {
			app.Relay = relay
			app.Bus.SetForwarder(relay)
		}
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Health = health.NewService()
	if app.DB != nil {
		app.Health.Register("database", app.DB.PingContext)
	}
	if app.Relay != nil {
		app.Health.Register("redis", app.Relay.Ping)
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		SessionHandler:  app.SessionHandler,
		AnalysisHandler: app.AnalysisHandler,
		ChatHandler:     app.ChatHandler,
		ExportHandler:   app.ExportHandler,
		LLMHandler:      app.LLMHandler,
		Health:          app.Health,
		RateLimiter:     middleware.NewRateLimiter(nil),
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, cfg.MinioEndpoint, cfg.AWSRegion, cfg.MinioBucket, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLLM(cfg config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: OPENAI_API_KEY empty; using placeholder inference client")
				return llm.PlaceholderClient{}, nil
			}
			return nil, fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY")
		}
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel)
	case "ollama":
		return ollama.NewClient(cfg.OllamaHost, cfg.LLMModel)
	default:
		if cfg.LLMProvider != "placeholder" {
			log.Printf("bootstrap: LLM_PROVIDER %q not recognized; using placeholder inference client", cfg.LLMProvider)
		}
		return llm.PlaceholderClient{}, nil
	}
}

func retryPolicy(cfg config.Config) llm.RetryPolicy {
	p := llm.DefaultRetryPolicy()
	if cfg.LLMMaxAttempts > 0 {
		p.MaxAttempts = cfg.LLMMaxAttempts
	}
	if cfg.LLMRetryBaseDelay > 0 {
		p.BaseDelay = cfg.LLMRetryBaseDelay
	}
	if cfg.LLMRetryMaxDelay > 0 {
		p.MaxDelay = cfg.LLMRetryMaxDelay
	}
	return p
}

func buildServices(ctx context.Context, app *App) error {
	cfg := app.Config

	var (
		sessionRepo  sessions.SessionsRepo
		analysisRepo analyses.Repo
		chatRepo     chat.Repo
	)
	if app.DB != nil {
		sessionRepo = &sessions.PGRepo{DB: app.DB}
		analysisRepo = &analyses.PGRepo{DB: app.DB}
		chatRepo = &chat.PGRepo{DB: app.DB}
	} else {
		sessionRepo = sessions.NewMemoryRepo()
		analysisRepo = analyses.NewMemoryRepo()
		chatRepo = chat.NewMemoryRepo()
	}

	weights, err := frameworks.ParseWeights(cfg.FrameworkWeights)
	if err != nil {
		return fmt.Errorf("FRAMEWORK_WEIGHTS: %w", err)
	}

	limit := rate.Inf
	if cfg.LLMRatePerSecond > 0 {
		limit = rate.Limit(cfg.LLMRatePerSecond)
	}
	throttled := llm.NewThrottled(app.Inference, rate.NewLimiter(limit, cfg.LLMBurst))
	policy := retryPolicy(cfg)

	reg := sessions.NewRegistry(sessionRepo, app.Store, sessions.Limits{
		MaxFileBytes:    cfg.MaxFileSizeBytes,
		MaxSessionBytes: cfg.MaxSessionBytes,
		TTL:             cfg.SessionTTL,
	})

	// The analysis pipeline retries each stage itself, so it gets the
	// throttled client without the retrying wrapper.
	analysisSvc := &analyses.Service{
		Repo:                  analysisRepo,
		Sessions:              reg,
		Extractor:             &extract.Extractor{Store: app.Store},
		LLM:                   throttled,
		Bus:                   app.Bus,
		Store:                 app.Store,
		FrameworkConcurrency:  cfg.FrameworkConcurrency,
		ExtractionConcurrency: cfg.ExtractionConcurrency,
		Weights:               weights,
		MaxTokens:             cfg.LLMMaxTokens,
		Temperature:           cfg.LLMTemperature,
		Retry:                 policy,
		BaseContext:           ctx,
	}

	chatSvc := &chat.Service{
		Repo:          chatRepo,
		Analyses:      analysisSvc,
		Sessions:      reg,
		LLM:           llm.NewRetrying(throttled, policy),
		Bus:           app.Bus,
		HistoryWindow: cfg.ChatHistoryWindow,
		MaxTokens:     cfg.LLMMaxTokens,
		Temperature:   cfg.LLMTemperature,
		BaseContext:   ctx,
	}

	// Hooks run in order under the session lock: a running analysis
	// refuses the reset before chat history is touched.
	reg.OnReset(analysisSvc.ResetSession)
	reg.OnReset(chatSvc.ResetSession)

	app.Sessions = reg
	app.Analyses = analysisSvc
	app.Chat = chatSvc
	app.SessionHandler = sessions.NewHandler(reg)
	app.AnalysisHandler = analyses.NewHandler(analysisSvc, app.Bus)
	app.ChatHandler = chat.NewHandler(chatSvc, app.Bus)
	app.ExportHandler = export.NewHandler(analysisSvc)
	app.LLMHandler = llm.NewHandler(app.Inference)

	if app.SessionHandler == nil || app.AnalysisHandler == nil || app.ChatHandler == nil {
		return errors.New("failed to initialize handlers")
	}

	return nil
}

// StartBackground launches the session janitor and, when configured, the
// redis relay. Both stop when ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		a.Sessions.RunJanitor(ctx, a.Config.SessionSweepInterval)
	}()

	if a.Relay != nil {
		a.bg.Add(1)
		go func() {
			defer a.bg.Done()
			if err := a.Relay.Run(ctx, a.Bus); err != nil && !errors.Is(err, context.Canceled) {
				telemetry.Error("events.relay_stopped", map[string]any{"err": err})
			}
		}()
	}
}

// Shutdown waits for background loops and in-flight jobs, then releases
// the database. Cancel the context given to Build and StartBackground first.
func (a *App) Shutdown() {
	a.bg.Wait()
	a.Analyses.Wait()
	a.Chat.Wait()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Printf("bootstrap: close database: %v", err)
		}
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
