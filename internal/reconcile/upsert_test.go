package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garnizeh/interviewer/internal/normalize"
	"github.com/garnizeh/interviewer/internal/reconcile"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository/mock"
)

func getInterview(t *testing.T, store *mock.Store, id int64) *models.Interview {
	t.Helper()
	iv, err := store.GetInterview(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, iv)
	return iv
}

func TestUpserter_ApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1", Status: models.StatusInProgress})
	u := reconcile.NewUpserter(store, nil)

	ev := &normalize.Event{
		Kind:       normalize.KindCallEnd,
		CallID:     "c1",
		Turns:      []normalize.Turn{{Speaker: "user", Text: "Hello"}},
		Evaluation: json.RawMessage(`{"score":9,"summary":"good"}`),
		Summary:    "good",
	}

	first, err := u.Apply(ctx, id, ev)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, models.StatusCompleted, first.Status)
	stored := store.Result(id)
	require.NotNil(t, stored)

	second, err := u.Apply(ctx, id, ev)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.False(t, second.Changed)
	assert.Equal(t, *stored, *store.Result(id))
	assert.Equal(t, 1, store.ResultCount())
	assert.Equal(t, models.StatusCompleted, getInterview(t, store, id).Status)
}

func TestUpserter_LaterEventWithoutEvaluationKeepsIt(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1", Status: models.StatusInProgress})
	u := reconcile.NewUpserter(store, nil)

	_, err := u.Apply(ctx, id, &normalize.Event{
		Kind: normalize.KindCallEnd, CallID: "c1",
		Turns:      []normalize.Turn{{Speaker: "user", Text: "Hello"}},
		Evaluation: json.RawMessage(`{"score":9}`),
	})
	require.NoError(t, err)

	res, err := u.Apply(ctx, id, &normalize.Event{Kind: normalize.KindCallStart, CallID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)

	stored := store.Result(id)
	assert.JSONEq(t, `{"score":9}`, string(stored.Evaluation))
	assert.Equal(t, "USER: Hello", stored.Transcript)
	assert.Equal(t, models.StatusCompleted, getInterview(t, store, id).Status)
}

func TestUpserter_CallStartMovesPendingToInProgress(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1"})
	u := reconcile.NewUpserter(store, nil)

	res, err := u.Apply(ctx, id, &normalize.Event{Kind: normalize.KindCallStart, CallID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, res.Status)
	assert.Equal(t, models.StatusInProgress, getInterview(t, store, id).Status)
	assert.Nil(t, store.Result(id).Completed)
}

func TestUpserter_ConflictingCallIDIgnored(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1", Status: models.StatusInProgress})
	u := reconcile.NewUpserter(store, nil)

	_, err := u.Apply(ctx, id, &normalize.Event{Kind: normalize.KindCallStart, CallID: "c1"})
	require.NoError(t, err)
	res, err := u.Apply(ctx, id, &normalize.Event{Kind: normalize.KindCallEnd, CallID: "c2"})
	require.NoError(t, err)
	assert.True(t, res.CallIDConflict)
	assert.Equal(t, "c1", *store.Result(id).CallID)
}

func TestUpserter_UnknownInterview(t *testing.T) {
	u := reconcile.NewUpserter(mock.NewStore(), nil)
	_, err := u.Apply(context.Background(), 99, &normalize.Event{Kind: normalize.KindCallEnd})
	assert.ErrorIs(t, err, reconcile.ErrInterviewNotFound)
}

func TestUpserter_TxFailureLeavesNothing(t *testing.T) {
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1", Status: models.StatusInProgress})
	store.TxErr = errors.New("database is locked")
	u := reconcile.NewUpserter(store, nil)

	_, err := u.Apply(context.Background(), id, &normalize.Event{Kind: normalize.KindCallEnd, Evaluation: json.RawMessage(`{"a":1}`)})
	require.Error(t, err)
	assert.Nil(t, store.Result(id))
	assert.Equal(t, models.StatusInProgress, getInterview(t, store, id).Status)
}

func TestUpserter_CompleteOverwritesEvaluation(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1", Status: models.StatusInProgress})
	u := reconcile.NewUpserter(store, nil)

	_, err := u.Apply(ctx, id, &normalize.Event{Kind: normalize.KindCallEnd, CallID: "c1", Evaluation: json.RawMessage(`{"score":1}`)})
	require.NoError(t, err)

	res, err := u.Complete(ctx, id, json.RawMessage(`{"score":7,"summary":"manual"}`))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Status)

	stored := store.Result(id)
	assert.JSONEq(t, `{"score":7,"summary":"manual"}`, string(stored.Evaluation))
	assert.Equal(t, "manual", stored.Summary)
	assert.Equal(t, "c1", *stored.CallID)
	assert.NotNil(t, stored.Completed)
}

func TestUpserter_LinkCallReplacesCallID(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1", Status: models.StatusInProgress})
	u := reconcile.NewUpserter(store, nil)

	res, err := u.LinkCall(ctx, id, "c1")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Empty(t, res.ReplacedCallID)

	res, err = u.LinkCall(ctx, id, "c2")
	require.NoError(t, err)
	assert.Equal(t, "c1", res.ReplacedCallID)
	assert.Equal(t, "c2", *store.Result(id).CallID)
	assert.Equal(t, models.StatusInProgress, getInterview(t, store, id).Status)

	_, err = u.LinkCall(ctx, 99, "c3")
	assert.ErrorIs(t, err, reconcile.ErrInterviewNotFound)
}

func TestUpserter_ApplyCallRejectsOtherCall(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	id := store.AddInterview(models.Interview{Token: "tok-1", Status: models.StatusInProgress})
	u := reconcile.NewUpserter(store, nil)

	_, err := u.LinkCall(ctx, id, "c2")
	require.NoError(t, err)
	before := *store.Result(id)

	_, err = u.ApplyCall(ctx, id, &normalize.Event{
		Kind: normalize.KindCallEnd, CallID: "c1",
		Turns:      []normalize.Turn{{Speaker: "assistant", Text: "Hi"}},
		Evaluation: json.RawMessage(`{"from":"c1"}`),
	})
	assert.ErrorIs(t, err, reconcile.ErrCallSuperseded)
	assert.Equal(t, before, *store.Result(id))
	assert.Equal(t, models.StatusInProgress, getInterview(t, store, id).Status)

	applied, err := u.ApplyCall(ctx, id, &normalize.Event{
		Kind: normalize.KindCallEnd, CallID: "c2",
		Evaluation: json.RawMessage(`{"from":"c2"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"c2"}`, string(applied.Result.Evaluation))
	assert.Equal(t, models.StatusCompleted, getInterview(t, store, id).Status)
}
