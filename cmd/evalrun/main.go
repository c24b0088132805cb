// Command evalrun runs the judge evaluation service: HTTP API, view
// projection, run execution, and metrics.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/getpup/evalrun/entity"
	"github.com/getpup/evalrun/es"
	esmemory "github.com/getpup/evalrun/es/memory"
	espostgres "github.com/getpup/evalrun/es/postgres"
	"github.com/getpup/evalrun/evaluator"
	"github.com/getpup/evalrun/internal/api"
	"github.com/getpup/evalrun/internal/config"
	"github.com/getpup/evalrun/metrics"
	"github.com/getpup/evalrun/runner"
	"github.com/getpup/evalrun/views"
	viewmemory "github.com/getpup/evalrun/views/memory"
	viewpostgres "github.com/getpup/evalrun/views/postgres"
)

func main() {
	logger := es.NewStdLogger(log.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var (
		eventStore  es.Store
		viewStore   views.Store
		checkpoints runner.CheckpointStore
	)
	switch cfg.DatabaseDriver {
	case "memory":
		log.Println("Running with in-memory storage; state is lost on restart")
		eventStore = esmemory.New()
		viewStore = viewmemory.New()
		checkpoints = runner.NewMemoryCheckpointStore()
	default:
		db, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}

		eventStore = espostgres.New(db)
		viewStore = viewpostgres.New(db)
		checkpoints, err = runner.NewSQLCheckpointStore(runner.SQLCheckpointConfig{DB: db})
		if err != nil {
			log.Fatalf("Failed to create checkpoint store: %v", err)
		}
	}

	judges := entity.NewJudgeService(eventStore)
	submissions := entity.NewSubmissionService(eventStore)
	assignments := entity.NewAssignmentService(eventStore)
	runs := entity.NewRunService(eventStore)
	evals := entity.NewEvaluationService(eventStore)

	collector := metrics.NewCollector()
	dispatcher, err := es.NewDispatcher(es.DispatcherConfig{
		Store:   eventStore,
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}
	views.NewProjector(viewStore).Register(dispatcher)
	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			log.Printf("Dispatcher stopped: %v", err)
		}
	}()

	var client evaluator.Client
	if cfg.OpenAIAPIKey != "" {
		client, err = evaluator.NewOpenAIClient(evaluator.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		})
		if err != nil {
			log.Fatalf("Failed to create evaluator: %v", err)
		}
	} else {
		log.Println("OPENAI_API_KEY not set; using the mock evaluator")
		client = &evaluator.MockClient{}
	}

	run, err := runner.New(runner.Config{
		Views:       viewStore,
		Checkpoints: checkpoints,
		Evaluator:   client,
		Runs:        runs,
		Judges:      judges,
		Submissions: submissions,
		Evaluations: evals,
		StepTimeout: cfg.StepTimeout,
		Logger:      logger,
		Collector:   collector,
	})
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	// Pick up runs interrupted by the previous shutdown.
	go func() {
		if err := run.Resume(ctx); err != nil {
			log.Printf("Resume finished with errors: %v", err)
		}
	}()

	metricsServer := metrics.NewServer(cfg.MetricsAddr)
	metricsServer.Start()

	apiServer := api.NewServer(cfg.APIAddr, &api.Server{
		Judges:      judges,
		Submissions: submissions,
		Assignments: assignments,
		Views:       viewStore,
		Runner:      run,
		Logger:      logger,
		DriveCtx:    ctx,
	})
	go func() {
		log.Printf("API listening on %s", cfg.APIAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, stopping...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics shutdown error: %v", err)
	}
}
