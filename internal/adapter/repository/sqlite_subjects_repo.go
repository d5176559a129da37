package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"profile-analyzer/internal/domain"
)

type SQLiteSubjectsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteSubjectsRepo(db *sql.DB) *SQLiteSubjectsRepo {
	return &SQLiteSubjectsRepo{db: db, now: time.Now}
}

func (r *SQLiteSubjectsRepo) GetSubject(ctx context.Context, id uuid.UUID) (domain.Subject, error) {
	var (
		ownerID                     sql.NullString
		text, classJSON, assessJSON string
		updatedAt                   int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT owner_id, profile_text, classification, assessment, updated_at
		FROM subjects WHERE id = ?`, id.String()).Scan(&ownerID, &text, &classJSON, &assessJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subject{}, domain.NewSubjectNotFoundError(id)
	}
	if err != nil {
		return domain.Subject{}, errors.Wrapf(err, "reading subject %s", id)
	}

	s := domain.Subject{ID: id, Text: text, UpdatedAt: time.UnixMilli(updatedAt).UTC()}
	if ownerID.Valid {
		oid, err := uuid.Parse(ownerID.String)
		if err != nil {
			return domain.Subject{}, errors.Wrapf(err, "subject %s owner", id)
		}
		s.OwnerID = &oid
	}
	if err := decodeSnapshot([]byte(classJSON), []byte(assessJSON), &s); err != nil {
		return domain.Subject{}, errors.Wrapf(err, "decoding subject %s", id)
	}
	return s, nil
}

func (r *SQLiteSubjectsRepo) SaveSubject(ctx context.Context, s domain.Subject) error {
	classJSON, assessJSON, err := encodeSnapshot(s.Classification, s.Assessment)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO subjects (id, owner_id, profile_text, classification, assessment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner_id = excluded.owner_id, profile_text = excluded.profile_text,
			classification = excluded.classification, assessment = excluded.assessment, updated_at = excluded.updated_at`,
		s.ID.String(), nullableUUID(s.OwnerID), s.Text, string(classJSON), string(assessJSON), r.now().UnixMilli())
	return errors.Wrapf(err, "saving subject %s", s.ID)
}

func (r *SQLiteSubjectsRepo) SaveSnapshot(ctx context.Context, id uuid.UUID, c domain.Classification, a domain.Assessment) error {
	classJSON, assessJSON, err := encodeSnapshot(c, a)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE subjects SET classification = ?, assessment = ?, updated_at = ? WHERE id = ?`,
		string(classJSON), string(assessJSON), r.now().UnixMilli(), id.String())
	if err != nil {
		return errors.Wrapf(err, "saving snapshot of %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewSubjectNotFoundError(id)
	}
	return nil
}

func (r *SQLiteSubjectsRepo) GetRequirement(ctx context.Context, id uuid.UUID) (domain.Requirement, error) {
	req, err := r.scanRequirement(r.db.QueryRowContext(ctx, `SELECT id, owner_id, title, description, skills, completed_at
		FROM requirements WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Requirement{}, domain.NewRequirementNotFoundError(id)
	}
	if err != nil {
		return domain.Requirement{}, errors.Wrapf(err, "reading requirement %s", id)
	}
	return req, nil
}

func (r *SQLiteSubjectsRepo) LatestCompletedRequirement(ctx context.Context, ownerID uuid.UUID) (*domain.Requirement, error) {
	req, err := r.scanRequirement(r.db.QueryRowContext(ctx, `SELECT id, owner_id, title, description, skills, completed_at
		FROM requirements WHERE owner_id = ? AND completed_at IS NOT NULL
		ORDER BY completed_at DESC, id DESC LIMIT 1`, ownerID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading requirements of %s", ownerID)
	}
	return &req, nil
}

func (r *SQLiteSubjectsRepo) SaveRequirement(ctx context.Context, req domain.Requirement) error {
	skills, err := json.Marshal(nonNilStrings(req.Skills))
	if err != nil {
		return err
	}
	var completed any
	if req.CompletedAt != nil {
		completed = req.CompletedAt.UnixMilli()
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO requirements (id, owner_id, title, description, skills, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner_id = excluded.owner_id, title = excluded.title,
			description = excluded.description, skills = excluded.skills, completed_at = excluded.completed_at`,
		req.ID.String(), req.OwnerID.String(), req.Title, req.Description, string(skills), completed)
	return errors.Wrapf(err, "saving requirement %s", req.ID)
}

func (r *SQLiteSubjectsRepo) scanRequirement(row rowScanner) (domain.Requirement, error) {
	var (
		id, ownerID, title, description, skills string
		completedAt                             sql.NullInt64
	)
	if err := row.Scan(&id, &ownerID, &title, &description, &skills, &completedAt); err != nil {
		return domain.Requirement{}, err
	}
	req := domain.Requirement{Title: title, Description: description, CompletedAt: millisPtr(completedAt)}
	var err error
	if req.ID, err = uuid.Parse(id); err != nil {
		return domain.Requirement{}, err
	}
	if req.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return domain.Requirement{}, err
	}
	if err := json.Unmarshal([]byte(skills), &req.Skills); err != nil {
		return domain.Requirement{}, err
	}
	return req, nil
}

func encodeSnapshot(c domain.Classification, a domain.Assessment) ([]byte, []byte, error) {
	classJSON, err := json.Marshal(c)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encoding classification")
	}
	assessJSON, err := json.Marshal(a)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encoding assessment")
	}
	return classJSON, assessJSON, nil
}

func decodeSnapshot(classJSON, assessJSON []byte, s *domain.Subject) error {
	if len(classJSON) > 0 {
		if err := json.Unmarshal(classJSON, &s.Classification); err != nil {
			return err
		}
	}
	if len(assessJSON) > 0 {
		if err := json.Unmarshal(assessJSON, &s.Assessment); err != nil {
			return err
		}
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
