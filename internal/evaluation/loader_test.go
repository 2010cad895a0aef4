package evaluation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/interviewer/internal/evaluation"
	"github.com/garnizeh/interviewer/pkg/repository/mock"
)

const scoreSchema = `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","required":["overall_score"],"properties":{"overall_score":{"type":"number","minimum":0,"maximum":10}}}`

func TestLoader_ReloadAndValidate(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	_, err := store.UpsertEvaluationSchema(ctx, "Interview_Evaluation", "", scoreSchema)
	require.NoError(t, err)

	l, err := evaluation.NewLoader(ctx, store, nil)
	require.NoError(t, err)

	s, ok := l.GetSchema("Interview_Evaluation")
	require.True(t, ok)
	require.NotNil(t, s)
	assert.Equal(t, []string{"Interview_Evaluation"}, l.Names())

	violations, err := l.Validate(ctx, "Interview_Evaluation", json.RawMessage(`{"overall_score":8}`))
	require.NoError(t, err)
	assert.Empty(t, violations)

	violations, err = l.Validate(ctx, "Interview_Evaluation", json.RawMessage(`{"overall_score":42}`))
	require.NoError(t, err)
	assert.NotEmpty(t, violations)

	violations, err = l.Validate(ctx, "Interview_Evaluation", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, violations)
}

func TestLoader_UnknownNameIsNotValidated(t *testing.T) {
	l, err := evaluation.NewLoader(context.Background(), mock.NewStore(), nil)
	require.NoError(t, err)

	violations, err := l.Validate(context.Background(), "Nope", json.RawMessage(`{"anything":true}`))
	require.NoError(t, err)
	assert.Nil(t, violations)
}

func TestLoader_ReloadPicksUpChanges(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	l, err := evaluation.NewLoader(ctx, store, nil)
	require.NoError(t, err)
	_, ok := l.GetSchema("Backend_Interview_Evaluation")
	assert.False(t, ok)

	_, err = store.UpsertEvaluationSchema(ctx, "Backend_Interview_Evaluation", "", scoreSchema)
	require.NoError(t, err)
	require.NoError(t, l.Reload(ctx))

	_, ok = l.GetSchema("Backend_Interview_Evaluation")
	assert.True(t, ok)
}

func TestLoader_BadSchemaKeepsPreviousCache(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	_, err := store.UpsertEvaluationSchema(ctx, "Interview_Evaluation", "", scoreSchema)
	require.NoError(t, err)
	l, err := evaluation.NewLoader(ctx, store, nil)
	require.NoError(t, err)

	_, err = store.UpsertEvaluationSchema(ctx, "Broken", "", `{not json`)
	require.NoError(t, err)
	assert.Error(t, l.Reload(ctx))

	_, ok := l.GetSchema("Interview_Evaluation")
	assert.True(t, ok)
}

func TestLoader_CheckLogsViolations(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	_, err := store.UpsertEvaluationSchema(ctx, "Interview_Evaluation", "", scoreSchema)
	require.NoError(t, err)

	var buf bytes.Buffer
	l, err := evaluation.NewLoader(ctx, store, slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)

	l.Check(ctx, "Interview_Evaluation", json.RawMessage(`{"overall_score":8}`))
	assert.Zero(t, buf.Len())

	l.Check(ctx, "Interview_Evaluation", json.RawMessage(`{"overall_score":"high"}`))
	assert.Contains(t, buf.String(), "evaluation does not match schema")
}
