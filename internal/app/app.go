// Package app wires C1–C10 into a single runnable pipeline: storage, LLM
// gateway, the six stage handlers, and the Stage 6 lesson graph. Config is
// resolved first, then API keys, then storage, then the services wired
// against storage and clients.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/coursegen/internal/clients/docparser"
	"github.com/bobmcallan/coursegen/internal/clients/llmgateway"
	"github.com/bobmcallan/coursegen/internal/clients/mdlint"
	"github.com/bobmcallan/coursegen/internal/clients/vectorstore"
	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/metrics"
	"github.com/bobmcallan/coursegen/internal/services/batcher"
	"github.com/bobmcallan/coursegen/internal/services/executors"
	"github.com/bobmcallan/coursegen/internal/services/fsm"
	"github.com/bobmcallan/coursegen/internal/services/jobqueue"
	"github.com/bobmcallan/coursegen/internal/services/judge"
	"github.com/bobmcallan/coursegen/internal/services/lessongraph"
	"github.com/bobmcallan/coursegen/internal/services/rag"
	"github.com/bobmcallan/coursegen/internal/services/stages"
	"github.com/bobmcallan/coursegen/internal/storage"
)

// App holds every initialized service, client, and piece of configuration
// for the pipeline, shared by cmd/coursegen-server.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Storage interfaces.StorageManager

	VectorStore interfaces.VectorStoreClient
	DocParser   interfaces.DocParserClient
	MarkdownLint interfaces.MarkdownLintClient

	FSM         interfaces.CourseFSM
	RAGBuilder  interfaces.RAGContextBuilder
	LessonGraph interfaces.LessonGraphRunner
	Metrics     *metrics.Ledger

	Queue *jobqueue.Manager

	StartupTime time.Time
}

func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes all services, clients, and storage. configPath may be
// empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("COURSEGEN_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "coursegen-service.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/coursegen-service.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Storage.Badger.Path != "" && !filepath.IsAbs(config.Storage.Badger.Path) {
		config.Storage.Badger.Path = filepath.Join(binDir, config.Storage.Badger.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ctx := context.Background()
	llmAPIKey, err := common.ResolveAPIKey(ctx, storageManager.InternalKVStore(), "llm_api_key", config.Clients.LLMGateway.APIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("LLM gateway API key not configured — generation will be unavailable")
	}
	config.Clients.LLMGateway.APIKey = llmAPIKey

	// Two independent llmgateway.Client instances, matching a resolved Open
	// Question (DESIGN.md): the Stage 6 graph's own collaborators record
	// cost per named node via the graph's own NodeCost bookkeeping, so they
	// must not also be double-counted by the gateway client's generic
	// "llm_gateway_call" RecordNode. S3/S4/S5 have no other aggregator, so
	// their client keeps metrics wired directly.
	ledger := metrics.NewLedger()
	stageLLM, err := llmgateway.NewClient(ctx, config.Clients.LLMGateway, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize stage llm gateway client: %w", err)
	}
	graphLLM, err := llmgateway.NewClient(ctx, config.Clients.LLMGateway, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize graph llm gateway client: %w", err)
	}

	vectorClient := vectorstore.NewInMemoryClient()
	docParserClient := docparser.NewClient(logger)
	linter := mdlint.NewFallbackLinter()

	courseFSM := fsm.NewCourseFSM(storageManager.CourseStore(), logger)
	ragBuilder := rag.NewBuilder(vectorClient, logger)

	judgeSvc := judge.NewJudge(graphLLM, config.Refinement.AcceptanceThreshold, logger)
	router := judge.NewRouter()
	batch := batcher.NewBatcher()
	patcher := executors.NewPatcher(graphLLM, logger)
	sectionExpander := executors.NewSectionExpander(graphLLM, logger)
	planner := executors.NewPlanner(graphLLM, logger)

	graphCfg := lessongraph.Config{
		MaxIterations:         config.Refinement.MaxIterations,
		MaxConcurrentPatchers: config.Refinement.MaxConcurrentPatchers,
		AdjacentSectionGap:    config.Refinement.AdjacentSectionGap,
		AcceptanceThreshold:   config.Refinement.AcceptanceThreshold,
		TokenCosts: interfaces.TokenCosts{
			Patcher:         interfaces.CostBand(config.Refinement.TokenCosts.Patcher),
			SectionExpander: interfaces.CostBand(config.Refinement.TokenCosts.SectionExpander),
			FullRegenerate:  interfaces.CostBand(config.Refinement.TokenCosts.FullRegenerate),
		},
		GenerateModel:     config.Clients.LLMGateway.PrimaryModel,
		DeepReviewEnabled: true,
	}
	graph := lessongraph.NewGraph(graphLLM, linter, judgeSvc, router, batch, patcher, sectionExpander, planner, nil, logger, graphCfg)

	queue := jobqueue.NewManager(storageManager, nil, config.Queue, courseFSM, logger)

	s1 := stages.NewDocumentUploadHandler(storageManager.FileCatalogStore(), storageManager.CourseStore(), courseFSM, queue, logger)
	s2 := stages.NewDocumentProcessingHandler(storageManager.FileCatalogStore(), storageManager.CourseStore(), courseFSM, docParserClient, vectorClient, queue, logger)
	s3 := stages.NewSummarizationHandler(storageManager.FileCatalogStore(), storageManager.CourseStore(), courseFSM, stageLLM, queue, logger)
	s4 := stages.NewStructureAnalysisHandler(storageManager.FileCatalogStore(), storageManager.CourseStore(), courseFSM, stageLLM, queue, logger)
	s5 := stages.NewStructureGenerationHandler(storageManager.CourseStore(), storageManager.SectionStore(), storageManager.LessonStore(), courseFSM, stageLLM, queue, logger)
	s6 := stages.NewLessonContentHandler(storageManager.CourseStore(), storageManager.SectionStore(), storageManager.LessonStore(), storageManager.LessonContentStore(), ragBuilder, graph, courseFSM, logger)
	queue.RegisterHandlers(s1, s2, s3, s4, s5, s6)

	a := &App{
		Config:       config,
		Logger:       logger,
		Storage:      storageManager,
		VectorStore:  vectorClient,
		DocParser:    docParserClient,
		MarkdownLint: linter,
		FSM:          courseFSM,
		RAGBuilder:   ragBuilder,
		LessonGraph:  graph,
		Metrics:      ledger,
		Queue:        queue,
		StartupTime:  startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")
	return a, nil
}

// Close releases all resources held by the App. Shutdown order: stop the
// job queue worker pool, then close storage.
func (a *App) Close() {
	if a.Queue != nil {
		a.Queue.Stop()
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// Start launches the job queue worker pool.
func (a *App) Start() {
	a.Queue.Start()
}
