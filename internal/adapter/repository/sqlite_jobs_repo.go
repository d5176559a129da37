package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"profile-analyzer/internal/domain"
)

// SQLiteJobsRepo is the embedded ledger. Timestamps are stored as unix
// milliseconds; ties on created_at are broken by rowid.
type SQLiteJobsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteJobsRepo(db *sql.DB) *SQLiteJobsRepo {
	return &SQLiteJobsRepo{db: db, now: time.Now}
}

const sqliteJobColumns = `id, subject_id, requirement_id, backend, status, result, error, attempts,
	created_at, updated_at, started_at, finished_at`

func (r *SQLiteJobsRepo) Create(ctx context.Context, nj domain.NewJob) (domain.Job, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
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
	_, err := r.db.ExecContext(ctx, `INSERT INTO analysis_jobs (id, subject_id, requirement_id, backend, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		j.ID.String(), j.SubjectID.String(), nullableUUID(j.RequirementID), j.BackendKey, string(j.Status),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return domain.Job{}, errors.Wrap(err, "creating job")
	}
	return j, nil
}

func (r *SQLiteJobsRepo) ClaimBatch(ctx context.Context, n int) ([]domain.Job, error) {
	if n <= 0 {
		return nil, nil
	}
	now := r.now().UnixMilli()
	rows, err := r.db.QueryContext(ctx, `UPDATE analysis_jobs
		SET status = 'running', attempts = attempts + 1, started_at = ?, updated_at = ?
		WHERE status = 'queued' AND id IN (
			SELECT id FROM analysis_jobs WHERE status = 'queued' ORDER BY created_at, rowid LIMIT ?
		)
		RETURNING rowid, `+sqliteJobColumns, now, now, n)
	if err != nil {
		return nil, errors.Wrap(err, "claiming jobs")
	}
	defer rows.Close()

	type claimed struct {
		rowid int64
		job   domain.Job
	}
	var out []claimed
	for rows.Next() {
		var c claimed
		j, err := scanSQLiteJob(rows, &c.rowid)
		if err != nil {
			return nil, errors.Wrap(err, "scanning claimed job")
		}
		c.job = j
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "claiming jobs")
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].job.CreatedAt.Equal(out[j].job.CreatedAt) {
			return out[i].job.CreatedAt.Before(out[j].job.CreatedAt)
		}
		return out[i].rowid < out[j].rowid
	})
	jobs := make([]domain.Job, 0, len(out))
	for _, c := range out {
		jobs = append(jobs, c.job)
	}
	return jobs, nil
}

func (r *SQLiteJobsRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	now := r.now().UnixMilli()
	return r.transition(ctx, id, domain.StatusQueued, domain.StatusRunning,
		`attempts = attempts + 1, started_at = ?`, now)
}

func (r *SQLiteJobsRepo) MarkSuccess(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	if len(result) == 0 {
		return fmt.Errorf("job %s: success requires a result", id)
	}
	now := r.now().UnixMilli()
	return r.transition(ctx, id, domain.StatusRunning, domain.StatusSuccess,
		`result = ?, error = NULL, finished_at = ?`, string(result), now)
}

func (r *SQLiteJobsRepo) MarkFailed(ctx context.Context, id uuid.UUID, msg string) error {
	now := r.now().UnixMilli()
	return r.transition(ctx, id, domain.StatusRunning, domain.StatusFailed,
		`error = ?, result = NULL, finished_at = ?`, msg, now)
}

func (r *SQLiteJobsRepo) Retry(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, domain.StatusFailed, domain.StatusQueued,
		`error = NULL, result = NULL, started_at = NULL, finished_at = NULL`)
}

func (r *SQLiteJobsRepo) FailStale(ctx context.Context, startedBefore time.Time, msg string) ([]uuid.UUID, error) {
	now := r.now().UnixMilli()
	rows, err := r.db.QueryContext(ctx, `UPDATE analysis_jobs
		SET status = 'failed', error = ?, result = NULL, finished_at = ?, updated_at = ?
		WHERE status = 'running' AND started_at < ?
		RETURNING id`, msg, now, now, startedBefore.UnixMilli())
	if err != nil {
		return nil, errors.Wrap(err, "failing stale jobs")
	}
	defer rows.Close()
	return scanIDs(rows)
}

// transition is a compare-and-set on status. When no row changes it reads
// the row back to tell a missing job from a lost race.
func (r *SQLiteJobsRepo) transition(ctx context.Context, id uuid.UUID, from, to domain.Status, set string, args ...any) error {
	q := `UPDATE analysis_jobs SET status = ?, updated_at = ?, ` + set + ` WHERE id = ? AND status = ?`
	all := append([]any{string(to), r.now().UnixMilli()}, args...)
	all = append(all, id.String(), string(from))

	res, err := r.db.ExecContext(ctx, q, all...)
	if err != nil {
		return errors.Wrapf(err, "moving job %s to %s", id, to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "moving job %s to %s", id, to)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM analysis_jobs WHERE id = ?`, id.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewJobNotFoundError(id)
	}
	if err != nil {
		return errors.Wrapf(err, "reading job %s", id)
	}
	return domain.NewInvalidTransitionError(id, domain.Status(current), to)
}

func (r *SQLiteJobsRepo) Get(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM analysis_jobs WHERE id = ?`, id.String())
	j, err := scanSQLiteJob(row, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, domain.NewJobNotFoundError(id)
	}
	if err != nil {
		return domain.Job{}, errors.Wrapf(err, "reading job %s", id)
	}
	return j, nil
}

func (r *SQLiteJobsRepo) List(ctx context.Context, f domain.JobFilter) ([]domain.Job, error) {
	var where []string
	var args []any
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.SubjectID != nil {
		where = append(where, "subject_id = ?")
		args = append(args, f.SubjectID.String())
	}
	q := `SELECT ` + sqliteJobColumns + ` FROM analysis_jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, normalizeLimit(f.Limit))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing jobs")
	}
	defer rows.Close()

	out := []domain.Job{}
	for rows.Next() {
		j, err := scanSQLiteJob(rows, nil)
		if err != nil {
			return nil, errors.Wrap(err, "scanning job")
		}
		out = append(out, j)
	}
	return out, errors.Wrap(rows.Err(), "listing jobs")
}

func (r *SQLiteJobsRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "counting jobs")
	}
	defer rows.Close()

	counts := emptyCounts()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "counting jobs")
		}
		counts[domain.Status(status)] = n
	}
	return counts, errors.Wrap(rows.Err(), "counting jobs")
}

func (r *SQLiteJobsRepo) LatestSuccess(ctx context.Context, subjectID uuid.UUID) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM analysis_jobs
		WHERE subject_id = ? AND status = 'success'
		ORDER BY finished_at DESC, rowid DESC LIMIT 1`, subjectID.String())
	j, err := scanSQLiteJob(row, nil)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, domain.NewNoAnalysisError(subjectID)
	}
	if err != nil {
		return domain.Job{}, errors.Wrapf(err, "reading latest analysis of %s", subjectID)
	}
	return j, nil
}

type idRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanIDs(rows idRows) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scanning job id")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing job id %q", raw)
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "reading job ids")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSQLiteJob reads sqliteJobColumns, preceded by rowid when rowid is
// not nil.
func scanSQLiteJob(s rowScanner, rowid *int64) (domain.Job, error) {
	var (
		id, subjectID, backend, status string
		requirementID, result, errMsg  sql.NullString
		attempts                       int
		createdAt, updatedAt           int64
		startedAt, finishedAt          sql.NullInt64
	)
	dest := []any{&id, &subjectID, &requirementID, &backend, &status, &result, &errMsg, &attempts,
		&createdAt, &updatedAt, &startedAt, &finishedAt}
	if rowid != nil {
		dest = append([]any{rowid}, dest...)
	}
	if err := s.Scan(dest...); err != nil {
		return domain.Job{}, err
	}

	j := domain.Job{
		BackendKey: backend,
		Status:     domain.Status(status),
		Attempts:   attempts,
		CreatedAt:  time.UnixMilli(createdAt).UTC(),
		UpdatedAt:  time.UnixMilli(updatedAt).UTC(),
		StartedAt:  millisPtr(startedAt),
		FinishedAt: millisPtr(finishedAt),
	}
	var err error
	if j.ID, err = uuid.Parse(id); err != nil {
		return domain.Job{}, err
	}
	if j.SubjectID, err = uuid.Parse(subjectID); err != nil {
		return domain.Job{}, err
	}
	if requirementID.Valid {
		rid, err := uuid.Parse(requirementID.String)
		if err != nil {
			return domain.Job{}, err
		}
		j.RequirementID = &rid
	}
	var resultBytes []byte
	if result.Valid {
		resultBytes = []byte(result.String)
	}
	var msg *string
	if errMsg.Valid {
		msg = &errMsg.String
	}
	j.Outcome = domain.OutcomeFor(j.Status, resultBytes, msg)
	return j, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
