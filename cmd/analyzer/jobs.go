package main

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/usecase"
)

var (
	backendKey    string
	requirementID string
)

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Re-queue a failed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "invalid job id")
		}
		return withJobService(func(ctx context.Context, svc *usecase.JobService) (domain.Job, error) {
			return svc.Retry(ctx, id)
		}, cmd)
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <subject-id>",
	Short: "Queue an analysis of a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subjectID, err := uuid.Parse(args[0])
		if err != nil {
			return errors.Wrap(err, "invalid subject id")
		}
		nj := domain.NewJob{SubjectID: subjectID, BackendKey: backendKey}
		if requirementID != "" {
			rid, err := uuid.Parse(requirementID)
			if err != nil {
				return errors.Wrap(err, "invalid requirement id")
			}
			nj.RequirementID = &rid
		}
		return withJobService(func(ctx context.Context, svc *usecase.JobService) (domain.Job, error) {
			return svc.Enqueue(ctx, nj)
		}, cmd)
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&backendKey, "backend", "", "Backend key; the default backend when empty")
	enqueueCmd.Flags().StringVar(&requirementID, "requirement", "", "Requirement to analyze the subject against")
}

// withJobService runs fn against the configured ledger and prints the
// resulting job as JSON.
func withJobService(fn func(context.Context, *usecase.JobService) (domain.Job, error), cmd *cobra.Command) error {
	cfg, done, err := setup()
	defer done()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	job, err := fn(ctx, usecase.NewJobService(s.ledger, s.subjects))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}
