package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

type fakeActionStore struct {
	due         []domain.Action
	listErr     error
	lost        map[string]bool
	transitions []string
	expired     []string
}

func (f *fakeActionStore) ListDueScheduled(ctx context.Context, now time.Time) ([]domain.Action, error) {
	return f.due, f.listErr
}

func (f *fakeActionStore) TransitionStatus(ctx context.Context, actionID, to string) (bool, error) {
	if f.lost[actionID] {
		return false, nil
	}
	f.transitions = append(f.transitions, actionID+"->"+to)
	return true, nil
}

func (f *fakeActionStore) ExpireRateBuckets(ctx context.Context, cutoff string) (int64, error) {
	f.expired = append(f.expired, cutoff)
	return 0, nil
}

type fakeEnqueuer struct {
	enqueued []string
	failFor  map[string]error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, action *domain.Action) error {
	if err := f.failFor[action.ActionID]; err != nil {
		return err
	}
	f.enqueued = append(f.enqueued, action.ActionID)
	return nil
}

func newTestSweep(store *fakeActionStore, enq *fakeEnqueuer) *Sweep {
	return New(store, enq, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dueAction(id string) domain.Action {
	return domain.Action{ActionID: id, Status: domain.StatusScheduled}
}

func TestSweep_PromotesAndEnqueuesDueActions(t *testing.T) {
	store := &fakeActionStore{due: []domain.Action{dueAction("a1"), dueAction("a2")}}
	enq := &fakeEnqueuer{}
	s := newTestSweep(store, enq)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a1->QUEUED", "a2->QUEUED"}, store.transitions)
	assert.Equal(t, []string{"a1", "a2"}, enq.enqueued)
}

func TestSweep_LostRaceSkipsEnqueue(t *testing.T) {
	store := &fakeActionStore{
		due:  []domain.Action{dueAction("a1"), dueAction("a2")},
		lost: map[string]bool{"a1": true},
	}
	enq := &fakeEnqueuer{}
	s := newTestSweep(store, enq)

	require.NoError(t, s.Run(context.Background()))
	// a1 was promoted by a concurrent sweep; only a2 is enqueued here.
	assert.Equal(t, []string{"a2"}, enq.enqueued)
}

func TestSweep_EnqueueFailureDoesNotAbortSweep(t *testing.T) {
	store := &fakeActionStore{due: []domain.Action{dueAction("a1"), dueAction("a2")}}
	enq := &fakeEnqueuer{failFor: map[string]error{"a1": errors.New("broker down")}}
	s := newTestSweep(store, enq)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a2"}, enq.enqueued)
	// a1 keeps its QUEUED promotion so a later sweep or operator can retry.
	assert.Contains(t, store.transitions, "a1->QUEUED")
}

func TestSweep_ListFailure(t *testing.T) {
	store := &fakeActionStore{listErr: errors.New("db unavailable")}
	s := newTestSweep(store, &fakeEnqueuer{})

	assert.Error(t, s.Run(context.Background()))
}

func TestSweep_ExpireRateBuckets(t *testing.T) {
	store := &fakeActionStore{}
	s := newTestSweep(store, &fakeEnqueuer{})
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, s.ExpireRateBuckets(context.Background(), 2*time.Hour))
	require.Len(t, store.expired, 1)
	assert.Equal(t, "2025-06-01-10-00", store.expired[0])
}
