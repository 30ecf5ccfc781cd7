// Package container provides dependency injection and lifecycle management
// for the expense validator following Clean Architecture principles.
package container

import (
	"fmt"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/application/prompt"
	"github.com/garyjia/expense-validator/internal/application/service"
	"github.com/garyjia/expense-validator/internal/config"
	"github.com/garyjia/expense-validator/internal/infrastructure/document"
	"github.com/garyjia/expense-validator/internal/infrastructure/external/openai"
	"github.com/garyjia/expense-validator/internal/infrastructure/metrics"
	"github.com/garyjia/expense-validator/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-validator/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-validator/internal/infrastructure/report"
	"github.com/garyjia/expense-validator/internal/infrastructure/storage"
	httpiface "github.com/garyjia/expense-validator/internal/interfaces/http"
	"github.com/garyjia/expense-validator/pkg/database"
	"github.com/garyjia/expense-validator/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage port.FileStorage
	UploadStore port.UploadStore
}

// PipelineBundle holds the validation pipeline and the stages it runs.
type PipelineBundle struct {
	Parser    service.ExpenseParser
	Extractor service.PolicyExtractor
	Validator service.ExpenseValidator
	Pipeline  service.ValidationPipeline
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	LLM        port.LLMClient
	Prompts    *prompt.Catalog
	Uploads    port.UploadStore
	Reader     port.DocumentReader
	Observer   port.PipelineObserver
	Validation *config.ValidationConfig
	Storage    *config.StorageConfig
	Logger     *zap.Logger
}

// ProvideDatabase opens the database and applies the bundled migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		StoredFile: repository.NewStoredFileRepository(db.DB, logger),
	}, nil
}

// ProvideLLMClient creates the OpenAI chat completion client.
func ProvideLLMClient(cfg *config.OpenAIConfig, logger *zap.Logger) (*openai.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("OpenAI config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	breaker := openai.DefaultBreakerConfig()
	breaker.MaxRequests = cfg.Breaker.MaxRequests
	breaker.Interval = cfg.Breaker.Interval
	breaker.Timeout = cfg.Breaker.Timeout
	breaker.MinRequests = cfg.Breaker.MinRequests
	breaker.FailureRatio = cfg.Breaker.FailureRatio

	return openai.NewClient(openai.Config{
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		Model:             cfg.Model,
		Temperature:       cfg.Temperature,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Breaker:           breaker,
	}, logger), nil
}

// ProvidePrompts loads the prompt catalog, falling back to the built-in one.
func ProvidePrompts(cfg *config.ValidationConfig) (*prompt.Catalog, error) {
	if cfg == nil {
		return prompt.Default(), nil
	}
	catalog, err := prompt.Load(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	return catalog, nil
}

// ProvideStorage creates the upload directory store and its catalog.
func ProvideStorage(cfg *config.StorageConfig, repos *RepositoryBundle, tx port.TransactionManager, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if repos == nil || repos.StoredFile == nil {
		return nil, fmt.Errorf("stored file repository is required")
	}

	files := storage.NewLocalFileStorage(cfg.UploadDir, logger)
	return &StorageBundle{
		FileStorage: files,
		UploadStore: storage.NewUploadStore(files, repos.StoredFile, tx, logger),
	}, nil
}

// ProvideDocumentReader creates the text extractor for uploaded documents.
func ProvideDocumentReader(cfg *config.StorageConfig, logger *zap.Logger) port.DocumentReader {
	maxPages := document.DefaultMaxPages
	if cfg != nil && cfg.MaxPDFPages > 0 {
		maxPages = cfg.MaxPDFPages
	}
	return document.NewReader(maxPages, logger)
}

// ProvideReportRenderer creates the XLSX report renderer.
func ProvideReportRenderer(logger *zap.Logger) port.ReportRenderer {
	return report.NewXLSXRenderer(logger)
}

// ProvidePipelineObserver registers the collectors and returns the
// Prometheus-backed stage observer.
func ProvidePipelineObserver() port.PipelineObserver {
	metrics.Register()
	return metrics.NewPipelineObserver()
}

// ProvidePipeline wires the parser, policy extractor and batched validator
// into a validation pipeline. A nil observer records nothing.
func ProvidePipeline(cfg *config.ValidationConfig, llm port.LLMClient, prompts *prompt.Catalog, observer port.PipelineObserver, logger *zap.Logger) (*PipelineBundle, error) {
	if llm == nil {
		return nil, fmt.Errorf("LLM client is required")
	}

	kv := utils.NewKeyValueLogger(logger)

	validatorCfg := service.DefaultValidatorConfig()
	if cfg != nil {
		validatorCfg.BatchSize = cfg.BatchSize
		validatorCfg.Concurrency = cfg.Concurrency
	}

	parser := service.NewExpenseParser()
	extractor := service.NewPolicyExtractor(llm, prompts, kv)
	validator := service.NewExpenseValidator(llm, prompts, validatorCfg, kv)

	return &PipelineBundle{
		Parser:    parser,
		Extractor: extractor,
		Validator: validator,
		Pipeline:  service.NewValidationPipeline(parser, extractor, validator, observer, kv),
	}, nil
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Uploads == nil {
		return nil, fmt.Errorf("upload store is required")
	}

	pipeline, err := ProvidePipeline(deps.Validation, deps.LLM, deps.Prompts, deps.Observer, deps.Logger)
	if err != nil {
		return nil, err
	}

	var maxBytes int64
	if deps.Storage != nil {
		maxBytes = deps.Storage.MaxUploadBytes
	}

	return &ServiceBundle{
		Upload:    service.NewUploadService(deps.Uploads, deps.Reader, maxBytes, utils.NewKeyValueLogger(deps.Logger)),
		Parser:    pipeline.Parser,
		Extractor: pipeline.Extractor,
		Validator: pipeline.Validator,
		Pipeline:  pipeline.Pipeline,
	}, nil
}

// ProvideHTTPServer creates the HTTP adapter over the application services.
func ProvideHTTPServer(cfg *config.Config, services *ServiceBundle, renderer port.ReportRenderer, logger *zap.Logger) (*httpiface.Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if services == nil {
		return nil, fmt.Errorf("services are required")
	}

	rl := cfg.Server.RateLimit
	serverCfg := httpiface.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxUploadBytes:  cfg.Storage.MaxUploadBytes,
		RateLimit: httpiface.RateLimitConfig{
			Enabled:         rl.Enabled,
			RPS:             rl.RequestsPerSecond,
			Burst:           rl.Burst,
			CleanupInterval: rl.CleanupInterval,
			MaxAge:          rl.MaxAge,
		},
	}

	return httpiface.NewServer(serverCfg, services.Upload, services.Pipeline, renderer, utils.NewKeyValueLogger(logger)), nil
}
