package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"profile-analyzer/internal/domain"
)

// JobsRepo is the postgres ledger.
type JobsRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewJobsRepo(pool *pgxpool.Pool) *JobsRepo {
	return &JobsRepo{pool: pool, now: time.Now}
}

const pgJobColumns = `id::text, subject_id::text, requirement_id::text, backend, status, result, error, attempts,
	created_at, updated_at, started_at, finished_at`

func (r *JobsRepo) Create(ctx context.Context, nj domain.NewJob) (domain.Job, error) {
	now := r.now().UTC().Truncate(time.Microsecond)
	j := domain.Job{
		ID:            uuid.New(),
		SubjectID:     nj.SubjectID,
		RequirementID: nj.RequirementID,
		BackendKey:    nj.BackendKey,
		Status:        domain.StatusQueued,
		Outcome:       domain.Pending{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO analysis_jobs (id, subject_id, requirement_id, backend, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)`,
		j.ID.String(), j.SubjectID.String(), nullableUUID(j.RequirementID), j.BackendKey, string(j.Status), now)
	if err != nil {
		return domain.Job{}, errors.Wrap(err, "creating job")
	}
	return j, nil
}

// ClaimBatch locks up to n queued rows with SKIP LOCKED so concurrent
// claimers never see the same row, then flips them to running.
func (r *JobsRepo) ClaimBatch(ctx context.Context, n int) ([]domain.Job, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `WITH picked AS (
			SELECT id FROM analysis_jobs
			WHERE status = 'queued'
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE analysis_jobs j
		SET status = 'running', attempts = j.attempts + 1, started_at = $2, updated_at = $2
		FROM picked
		WHERE j.id = picked.id AND j.status = 'queued'
		RETURNING `+prefixColumns("j", pgJobColumns), n, r.now().UTC())
	if err != nil {
		return nil, errors.Wrap(err, "claiming jobs")
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning claimed job")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "claiming jobs")
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (r *JobsRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, domain.StatusQueued, domain.StatusRunning,
		`attempts = attempts + 1, started_at = $1`, r.now().UTC())
}

func (r *JobsRepo) MarkSuccess(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	if len(result) == 0 {
		return fmt.Errorf("job %s: success requires a result", id)
	}
	return r.transition(ctx, id, domain.StatusRunning, domain.StatusSuccess,
		`result = $1, error = NULL, finished_at = $2`, []byte(result), r.now().UTC())
}

func (r *JobsRepo) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	return r.transition(ctx, id, domain.StatusRunning, domain.StatusFailed,
		`error = $1, result = NULL, finished_at = $2`, msg, r.now().UTC())
}

func (r *JobsRepo) Retry(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, domain.StatusFailed, domain.StatusQueued,
		`error = NULL, result = NULL, started_at = NULL, finished_at = NULL`)
}

func (r *JobsRepo) FailStale(ctx context.Context, startedBefore time.Time, msg string) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `UPDATE analysis_jobs
		SET status = 'failed', error = $1, result = NULL, finished_at = $2, updated_at = $2
		WHERE status = 'running' AND started_at < $3
		RETURNING id::text`, msg, r.now().UTC(), startedBefore.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failing stale jobs")
	}
	defer rows.Close()
	return scanIDs(rows)
}

// transition numbers the set clause's own args from $1; status, updated_at,
// id and the expected status follow them.
func (r *JobsRepo) transition(ctx context.Context, id uuid.UUID, from, to domain.Status, set string, args ...any) error {
	n := len(args)
	q := fmt.Sprintf(`UPDATE analysis_jobs SET %s, status = $%d, updated_at = $%d WHERE id = $%d AND status = $%d`,
		set, n+1, n+2, n+3, n+4)
	all := append(args, string(to), r.now().UTC(), id.String(), string(from))

	tag, err := r.pool.Exec(ctx, q, all...)
	if err != nil {
		return errors.Wrapf(err, "moving job %s to %s", id, to)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, id.String()).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NewJobNotFoundError(id)
	}
	if err != nil {
		return errors.Wrapf(err, "reading job %s", id)
	}
	return domain.NewInvalidTransitionError(id, domain.Status(current), to)
}

func (r *JobsRepo) Get(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM analysis_jobs WHERE id = $1`, id.String())
	j, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, domain.NewJobNotFoundError(id)
	}
	if err != nil {
		return domain.Job{}, errors.Wrapf(err, "reading job %s", id)
	}
	return j, nil
}

func (r *JobsRepo) List(ctx context.Context, f domain.JobFilter) ([]domain.Job, error) {
	var where []string
	var args []any
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.SubjectID != nil {
		args = append(args, f.SubjectID.String())
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	q := `SELECT ` + pgJobColumns + ` FROM analysis_jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, normalizeLimit(f.Limit))
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing jobs")
	}
	defer rows.Close()

	out := []domain.Job{}
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning job")
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "listing jobs")
}

func (r *JobsRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "counting jobs")
	}
	defer rows.Close()

	counts := emptyCounts()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "counting jobs")
		}
		counts[domain.Status(status)] = int(n)
	}
	return counts, errors.Wrap(rows.Err(), "counting jobs")
}

func (r *JobsRepo) LatestSuccess(ctx context.Context, subjectID uuid.UUID) (domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM analysis_jobs
		WHERE subject_id = $1 AND status = 'success'
		ORDER BY finished_at DESC, created_at DESC LIMIT 1`, subjectID.String())
	j, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, domain.NewNoAnalysisError(subjectID)
	}
	if err != nil {
		return domain.Job{}, errors.Wrapf(err, "reading latest analysis of %s", subjectID)
	}
	return j, nil
}

func scanPgJob(s rowScanner) (domain.Job, error) {
	var (
		id, subjectID, backend, status string
		requirementID, errMsg          *string
		result                         []byte
		attempts                       int32
		createdAt, updatedAt           time.Time
		startedAt, finishedAt          *time.Time
	)
	if err := s.Scan(&id, &subjectID, &requirementID, &backend, &status, &result, &errMsg, &attempts,
		&createdAt, &updatedAt, &startedAt, &finishedAt); err != nil {
		return domain.Job{}, err
	}

	j := domain.Job{
		BackendKey: backend,
		Status:     domain.Status(status),
		Attempts:   int(attempts),
		CreatedAt:  createdAt.UTC(),
		UpdatedAt:  updatedAt.UTC(),
		StartedAt:  utcPtr(startedAt),
		FinishedAt: utcPtr(finishedAt),
	}
	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return domain.Job{}, err
	}
	if j.SubjectID, err = uuid.Parse(subjectID); err != nil {
		return domain.Job{}, err
	}
	if requirementID != nil {
		rid, err := uuid.Parse(*requirementID)
		if err != nil {
			return domain.Job{}, err
		}
		j.RequirementID = &rid
	}
	j.Outcome = domain.OutcomeFor(j.Status, result, errMsg)
	return j, nil
}

// prefixColumns qualifies a column list with a table alias.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
