package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/expense-validator/internal/application/port"
	"github.com/garyjia/expense-validator/internal/application/service"
	"github.com/garyjia/expense-validator/internal/config"
	"github.com/garyjia/expense-validator/internal/infrastructure/persistence/sqlite"
	httpiface "github.com/garyjia/expense-validator/internal/interfaces/http"
	"github.com/garyjia/expense-validator/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	llm port.LLMClient

	// Infrastructure - Storage and documents
	fileStorage port.FileStorage
	uploadStore port.UploadStore
	reader      port.DocumentReader
	renderer    port.ReportRenderer

	// Application
	services *ServiceBundle

	// Interfaces
	httpServer *httpiface.Server

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	StoredFile port.StoredFileRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Upload    service.UploadService
	Parser    service.ExpenseParser
	Extractor service.PolicyExtractor
	Validator service.ExpenseValidator
	Pipeline  service.ValidationPipeline
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database and repositories
// 2. External clients (OpenAI)
// 3. Storage, document reader and report renderer
// 4. Application services
// 5. HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	if err := c.initStorage(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.logger.Info("Storage initialized")

	if err := c.initServices(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	server, err := ProvideHTTPServer(c.config, c.services, c.renderer, c.logger)
	if err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	c.httpServer = server

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.httpServer != nil {
		if err := c.httpServer.Stop(); err != nil {
			c.logger.Error("Failed to stop HTTP server", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop HTTP server: %w", err))
		}
	}

	if err := c.closeDatabase(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) closeDatabase() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	if err != nil {
		c.logger.Error("Failed to close database", zap.Error(err))
	} else {
		c.logger.Info("Database closed")
	}
	c.db = nil
	return err
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db != nil {
		if err := c.db.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.llm != nil {
		status.Components["llm"] = ComponentHealth{Healthy: true, Message: c.config.OpenAI.Model}
	} else {
		status.Components["llm"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.services != nil {
		status.Components["services"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["services"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.db = dbBundle.DB
	c.txManager = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}

	c.repositories = repos
	return nil
}

// initExternalClients initializes the LLM client. A client set through
// SetLLMClient before Start is kept.
func (c *Container) initExternalClients() error {
	if c.llm != nil {
		return nil
	}

	client, err := ProvideLLMClient(&c.config.OpenAI, c.logger)
	if err != nil {
		return err
	}
	c.llm = client
	return nil
}

// initStorage initializes upload storage, the document reader and the report renderer.
func (c *Container) initStorage() error {
	storageBundle, err := ProvideStorage(&c.config.Storage, c.repositories, c.txManager, c.logger)
	if err != nil {
		return err
	}

	c.fileStorage = storageBundle.FileStorage
	c.uploadStore = storageBundle.UploadStore
	c.reader = ProvideDocumentReader(&c.config.Storage, c.logger)
	c.renderer = ProvideReportRenderer(c.logger)
	return nil
}

// initServices initializes all application services using providers.
func (c *Container) initServices() error {
	prompts, err := ProvidePrompts(&c.config.Validation)
	if err != nil {
		return err
	}

	services, err := ProvideServices(&ServiceDeps{
		LLM:        c.llm,
		Prompts:    prompts,
		Uploads:    c.uploadStore,
		Reader:     c.reader,
		Observer:   ProvidePipelineObserver(),
		Validation: &c.config.Validation,
		Storage:    &c.config.Storage,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// SetLLMClient replaces the LLM client used by the services. It must be
// called before Start.
func (c *Container) SetLLMClient(llm port.LLMClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.llm = llm
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.txManager
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// LLMClient returns the LLM client.
func (c *Container) LLMClient() port.LLMClient {
	return c.llm
}

// FileStorage returns the file storage.
func (c *Container) FileStorage() port.FileStorage {
	return c.fileStorage
}

// UploadStore returns the upload slot store.
func (c *Container) UploadStore() port.UploadStore {
	return c.uploadStore
}

// ReportRenderer returns the report renderer.
func (c *Container) ReportRenderer() port.ReportRenderer {
	return c.renderer
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// HTTPServer returns the HTTP server adapter.
func (c *Container) HTTPServer() *httpiface.Server {
	return c.httpServer
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
