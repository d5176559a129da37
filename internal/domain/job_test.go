package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusQueued, StatusRunning}:  true,
		{StatusRunning, StatusSuccess}: true,
		{StatusRunning, StatusFailed}:  true,
		{StatusFailed, StatusQueued}:   true,
	}
	for _, from := range Statuses {
		for _, to := range Statuses {
			assert.Equal(t, allowed[[2]Status{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestStatusValid(t *testing.T) {
	st, ok := ParseStatus("failed")
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, st)

	_, ok = ParseStatus("done")
	assert.False(t, ok)
	assert.True(t, StatusSuccess.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestOutcomeFor(t *testing.T) {
	msg := "boom"

	assert.Equal(t, Pending{}, OutcomeFor(StatusQueued, []byte(`{"a":1}`), &msg))
	assert.Equal(t, Pending{}, OutcomeFor(StatusRunning, nil, nil))
	assert.Equal(t, Success{Result: json.RawMessage(`{"a":1}`)}, OutcomeFor(StatusSuccess, []byte(`{"a":1}`), nil))
	assert.Equal(t, Failure{Message: "boom"}, OutcomeFor(StatusFailed, nil, &msg))
}

func TestJobMarshalJSON(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := Job{
		ID:        uuid.New(),
		SubjectID: uuid.New(),
		Status:    StatusSuccess,
		Outcome:   Success{Result: json.RawMessage(`{"skills":["Go"]}`)},
		CreatedAt: now,
		UpdatedAt: now,
	}

	b, err := json.Marshal(job)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "success", out["status"])
	assert.Nil(t, out["error"])
	assert.Equal(t, map[string]any{"skills": []any{"Go"}}, out["result"])

	job.Status = StatusFailed
	job.Outcome = Failure{Message: "max retries exceeded"}
	b, err = json.Marshal(job)
	require.NoError(t, err)
	out = map[string]any{}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Nil(t, out["result"])
	assert.Equal(t, "max retries exceeded", out["error"])

	res, ok := job.Result()
	assert.False(t, ok)
	assert.Nil(t, res)
	e, ok := job.Error()
	assert.True(t, ok)
	assert.Equal(t, "max retries exceeded", e)
}

func TestErrorKinds(t *testing.T) {
	id := uuid.New()
	err := error(NewInvalidTransitionError(id, StatusSuccess, StatusQueued))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidTransition, kind)
	assert.Contains(t, err.Error(), "success to queued")

	cause := assert.AnError
	perr := NewProviderError(cause, "backend %s unreachable", "gpt")
	assert.ErrorIs(t, perr, cause)
	assert.Equal(t, "backend gpt unreachable", perr.Error())
	assert.False(t, IsKind(cause, KindProvider))
}
