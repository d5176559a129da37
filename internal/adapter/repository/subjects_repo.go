package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"profile-analyzer/internal/domain"
)

// SubjectsRepo stores subjects and requirements in postgres. The derived
// sections live in JSONB columns and round-trip unknown keys.
type SubjectsRepo struct {
	pool *pgxpool.Pool
}

func NewSubjectsRepo(pool *pgxpool.Pool) *SubjectsRepo {
	return &SubjectsRepo{pool: pool}
}

func (r *SubjectsRepo) GetSubject(ctx context.Context, id uuid.UUID) (domain.Subject, error) {
	var (
		ownerID               *string
		text                  string
		classJSON, assessJSON []byte
		updatedAt             time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT owner_id::text, profile_text, classification, assessment, updated_at
		FROM subjects WHERE id = $1`, id.String()).Scan(&ownerID, &text, &classJSON, &assessJSON, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subject{}, domain.NewSubjectNotFoundError(id)
	}
	if err != nil {
		return domain.Subject{}, errors.Wrapf(err, "reading subject %s", id)
	}

	s := domain.Subject{ID: id, Text: text, UpdatedAt: updatedAt.UTC()}
	if ownerID != nil {
		oid, err := uuid.Parse(*ownerID)
		if err != nil {
			return domain.Subject{}, errors.Wrapf(err, "subject %s owner", id)
		}
		s.OwnerID = &oid
	}
	if err := decodeSnapshot(classJSON, assessJSON, &s); err != nil {
		return domain.Subject{}, errors.Wrapf(err, "decoding subject %s", id)
	}
	return s, nil
}

func (r *SubjectsRepo) SaveSubject(ctx context.Context, s domain.Subject) error {
	classJSON, assessJSON, err := encodeSnapshot(s.Classification, s.Assessment)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO subjects (id, owner_id, profile_text, classification, assessment, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, profile_text = EXCLUDED.profile_text,
			classification = EXCLUDED.classification, assessment = EXCLUDED.assessment, updated_at = EXCLUDED.updated_at`,
		s.ID.String(), nullableUUID(s.OwnerID), s.Text, classJSON, assessJSON)
	return errors.Wrapf(err, "saving subject %s", s.ID)
}

func (r *SubjectsRepo) SaveSnapshot(ctx context.Context, id uuid.UUID, c domain.Classification, a domain.Assessment) error {
	classJSON, assessJSON, err := encodeSnapshot(c, a)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE subjects SET classification = $1, assessment = $2, updated_at = now() WHERE id = $3`,
		classJSON, assessJSON, id.String())
	if err != nil {
		return errors.Wrapf(err, "saving snapshot of %s", id)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewSubjectNotFoundError(id)
	}
	return nil
}

func (r *SubjectsRepo) GetRequirement(ctx context.Context, id uuid.UUID) (domain.Requirement, error) {
	req, err := scanPgRequirement(r.pool.QueryRow(ctx, `SELECT id::text, owner_id::text, title, description, skills, completed_at
		FROM requirements WHERE id = $1`, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Requirement{}, domain.NewRequirementNotFoundError(id)
	}
	if err != nil {
		return domain.Requirement{}, errors.Wrapf(err, "reading requirement %s", id)
	}
	return req, nil
}

func (r *SubjectsRepo) LatestCompletedRequirement(ctx context.Context, ownerID uuid.UUID) (*domain.Requirement, error) {
	req, err := scanPgRequirement(r.pool.QueryRow(ctx, `SELECT id::text, owner_id::text, title, description, skills, completed_at
		FROM requirements WHERE owner_id = $1 AND completed_at IS NOT NULL
		ORDER BY completed_at DESC, id DESC LIMIT 1`, ownerID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading requirements of %s", ownerID)
	}
	return &req, nil
}

func (r *SubjectsRepo) SaveRequirement(ctx context.Context, req domain.Requirement) error {
	skills, err := json.Marshal(nonNilStrings(req.Skills))
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO requirements (id, owner_id, title, description, skills, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, title = EXCLUDED.title,
			description = EXCLUDED.description, skills = EXCLUDED.skills, completed_at = EXCLUDED.completed_at`,
		req.ID.String(), req.OwnerID.String(), req.Title, req.Description, skills, req.CompletedAt)
	return errors.Wrapf(err, "saving requirement %s", req.ID)
}

func scanPgRequirement(row pgx.Row) (domain.Requirement, error) {
	var (
		id, ownerID, title, description string
		skills                          []byte
		completedAt                     *time.Time
	)
	if err := row.Scan(&id, &ownerID, &title, &description, &skills, &completedAt); err != nil {
		return domain.Requirement{}, err
	}
	req := domain.Requirement{Title: title, Description: description, CompletedAt: utcPtr(completedAt)}
	var err error
	if req.ID, err = uuid.Parse(id); err != nil {
		return domain.Requirement{}, err
	}
	if req.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return domain.Requirement{}, err
	}
	if err := json.Unmarshal(skills, &req.Skills); err != nil {
		return domain.Requirement{}, err
	}
	return req, nil
}
