package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"profile-analyzer/internal/adapter/repository"
	"profile-analyzer/internal/config"
	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/model"
	"profile-analyzer/internal/usecase"
	"profile-analyzer/pkg/ai"
	"profile-analyzer/pkg/ai/backends"
	"profile-analyzer/pkg/log"
)

// The mock gateway answers the way the real one often does: a fenced block
// instead of bare JSON.
const mockOutput = "```json\n" + `{
  "name": "Test User",
  "title": "Backend Engineer",
  "yearsOfExperience": 5,
  "skills": ["Go", {"name": "PostgreSQL", "category": "technical", "proficiencyLevel": "advanced"}],
  "assessment": {
    "competitiveAnalysis": {"overallScore": 62, "roleRequirements": {"satisfied": ["Go"], "missing": ["Kubernetes operations"]}},
    "strengths": ["API design"]
  },
  "roadmap": [
    {"id": "step-1", "title": "Learn Kubernetes fundamentals", "category": "learning"},
    {"id": "step-2", "title": "Ship an operator", "category": "project"}
  ]
}` + "\n```"

func startMockAI() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["input"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"agent": req["agent"], "output": mockOutput})
	})
	return httptest.NewServer(mux)
}

func main() {
	logger := log.InitLog(log.ParseLevel(os.Getenv("ANALYZER_LOG_LEVEL")))
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(); err != nil {
		zap.S().Errorw("smoke run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	srv := startMockAI()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	ledger := repository.NewMemoryJobsRepo()
	subjects := repository.NewMemorySubjectsRepo()

	owner := uuid.New()
	subject := domain.Subject{ID: uuid.New(), OwnerID: &owner, Text: "Backend engineer, five years of Go and PostgreSQL."}
	if err := subjects.SaveSubject(ctx, subject); err != nil {
		return err
	}
	completed := time.Now()
	if err := subjects.SaveRequirement(ctx, domain.Requirement{
		ID: uuid.New(), OwnerID: owner, Title: "Platform Engineer",
		Skills: []string{"Go", "Kubernetes"}, CompletedAt: &completed,
	}); err != nil {
		return err
	}

	registry, err := ai.NewRegistry(ai.DefaultBackends(), "")
	if err != nil {
		return err
	}
	validator, err := model.NewSchemaValidator()
	if err != nil {
		return err
	}
	client := ai.NewClient(registry, backends.NewTransports(backends.Config{GatewayURL: srv.URL}))
	generator := ai.NewStructuredClient(client, ai.WithValidator(validator))
	processor := usecase.NewProcessor(usecase.NewContextResolver(subjects, config.PolicyLatestForOwner), generator, subjects)

	jobs := usecase.NewJobService(ledger, subjects)
	job, err := jobs.Enqueue(ctx, domain.NewJob{SubjectID: subject.ID})
	if err != nil {
		return err
	}

	worker := usecase.NewWorker(ledger, processor, config.WorkerConfig{BatchSize: 1, PollInterval: time.Second, JobTimeout: 10 * time.Second})
	if n := worker.Tick(ctx); n != 1 {
		return fmt.Errorf("expected one processed job, got %d", n)
	}

	job, err = jobs.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusSuccess {
		msg, _ := job.Error()
		return fmt.Errorf("job finished as %s: %s", job.Status, msg)
	}
	if err := printJSON("job", job); err != nil {
		return err
	}

	snap, err := usecase.NewProgressService(ledger, subjects).SyncProgress(ctx, subject.ID, "step-1", true, nil)
	if err != nil {
		return err
	}
	return printJSON("progress after step-1", snap)
}

func printJSON(label string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s:\n%s\n", label, b)
	return nil
}
