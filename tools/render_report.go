package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/model"
	"profile-analyzer/internal/report"
)

// Renders an analysis to HTML without a ledger. The input is either a bare
// analysis object or a job as returned by GET /jobs/:id.
func main() {
	in := flag.String("in", "analysis.json", "analysis or job JSON file")
	out := flag.String("out", filepath.Join("data", "reports", "analysis.html"), "output HTML file")
	flag.Parse()

	b, err := os.ReadFile(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(2)
	}

	job := domain.Job{ID: uuid.Nil, Status: domain.StatusSuccess}
	var envelope struct {
		ID     uuid.UUID       `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(b, &envelope); err == nil && len(envelope.Result) > 0 && string(envelope.Result) != "null" {
		job.ID = envelope.ID
		b = envelope.Result
	}
	job.Outcome = domain.Success{Result: b}

	analysis, err := model.ParseAnalysis(b)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse analysis: %v\n", err)
		os.Exit(2)
	}
	html, err := report.Render(report.NewData(job, analysis, nil, time.Now()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(2)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create out dir: %v\n", err)
		os.Exit(2)
	}
	if err := os.WriteFile(*out, []byte(html), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write out: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("wrote %s\n", *out)
}
