package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Statuses lists every ledger state in lifecycle order.
var Statuses = []Status{StatusQueued, StatusRunning, StatusSuccess, StatusFailed}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransition reports whether s -> to is one of the ledger edges:
// queued->running (claim), running->success, running->failed, failed->queued (retry).
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusQueued:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusSuccess || to == StatusFailed
	case StatusFailed:
		return to == StatusQueued
	}
	return false
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Valid()
}

// Outcome is what a job produced. Exactly one of Pending, Success or
// Failure applies, and which one is fixed by the job status.
type Outcome interface {
	isOutcome()
}

type Pending struct{}

type Success struct {
	Result json.RawMessage
}

type Failure struct {
	Message string
}

func (Pending) isOutcome() {}
func (Success) isOutcome() {}
func (Failure) isOutcome() {}

type Job struct {
	ID            uuid.UUID
	SubjectID     uuid.UUID
	RequirementID *uuid.UUID
	BackendKey    string
	Status        Status
	Outcome       Outcome
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}

// NewJob is what a producer hands to the ledger.
type NewJob struct {
	SubjectID     uuid.UUID
	RequirementID *uuid.UUID
	BackendKey    string
}

type JobFilter struct {
	Status    *Status
	SubjectID *uuid.UUID
	Limit     int
}

func (j *Job) Result() (json.RawMessage, bool) {
	if s, ok := j.Outcome.(Success); ok {
		return s.Result, true
	}
	return nil, false
}

func (j *Job) Error() (string, bool) {
	if f, ok := j.Outcome.(Failure); ok {
		return f.Message, true
	}
	return "", false
}

// OutcomeFor rebuilds the outcome of a stored row. Stores keep result and
// error in nullable columns; the status decides which one is meaningful.
func OutcomeFor(status Status, result []byte, errMsg *string) Outcome {
	switch status {
	case StatusSuccess:
		return Success{Result: json.RawMessage(result)}
	case StatusFailed:
		msg := ""
		if errMsg != nil {
			msg = *errMsg
		}
		return Failure{Message: msg}
	default:
		return Pending{}
	}
}

type jobJSON struct {
	ID            uuid.UUID       `json:"id"`
	SubjectID     uuid.UUID       `json:"subject_id"`
	RequirementID *uuid.UUID      `json:"requirement_id,omitempty"`
	BackendKey    string          `json:"backend,omitempty"`
	Status        Status          `json:"status"`
	Result        json.RawMessage `json:"result"`
	Error         *string         `json:"error"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	out := jobJSON{
		ID:            j.ID,
		SubjectID:     j.SubjectID,
		RequirementID: j.RequirementID,
		BackendKey:    j.BackendKey,
		Status:        j.Status,
		Attempts:      j.Attempts,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		FinishedAt:    j.FinishedAt,
	}
	switch o := j.Outcome.(type) {
	case Success:
		out.Result = o.Result
	case Failure:
		msg := o.Message
		out.Error = &msg
	}
	if out.Result == nil {
		out.Result = json.RawMessage("null")
	}
	return json.Marshal(out)
}
