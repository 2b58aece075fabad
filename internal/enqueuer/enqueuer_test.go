package enqueuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

type fakeSource struct {
	records []domain.Record
	err     error
}

func (f *fakeSource) ReadRecords(ctx context.Context, locator string) ([]domain.Record, error) {
	return f.records, f.err
}

type fakePublisher struct {
	published [][]byte
	failAfter int
	err       error
}

func (f *fakePublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if f.err != nil && len(f.published) >= f.failAfter {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

type fakeActionStore struct {
	transitions []string
	err         error
}

func (f *fakeActionStore) TransitionStatus(ctx context.Context, actionID, to string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.transitions = append(f.transitions, to)
	return true, nil
}

func makeRecords(n int) []domain.Record {
	records := make([]domain.Record, n)
	for i := range records {
		records[i] = domain.Record{"email": fmt.Sprintf("u%d@example.com", i), "name": "n"}
	}
	return records
}

func newTestEnqueuer(source *fakeSource, queue *fakePublisher, store *fakeActionStore, batchSize int) *Enqueuer {
	return New(&Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Source:    source,
		Queue:     queue,
		Store:     store,
		BatchSize: batchSize,
	})
}

func testAction() *domain.Action {
	return &domain.Action{
		ActionID:       "4f8d1c2a-9b3e-4d5f-a6b7-c8d9e0f1a2b3",
		FileURL:        "file:///tmp/records.csv",
		EntityType:     domain.EntityContacts,
		ActionType:     domain.ActionTypeUpdate,
		FieldsToUpdate: []string{"name"},
		Status:         domain.StatusQueued,
	}
}

func TestEnqueuer_SplitsIntoBatches(t *testing.T) {
	source := &fakeSource{records: makeRecords(250)}
	queue := &fakePublisher{}
	store := &fakeActionStore{}
	e := newTestEnqueuer(source, queue, store, 100)

	err := e.Enqueue(context.Background(), testAction())
	require.NoError(t, err)

	require.Len(t, queue.published, 3)

	sizes := make([]int, 0, 3)
	var firstEmails []string
	for i, body := range queue.published {
		var msg domain.BatchMessage
		require.NoError(t, json.Unmarshal(body, &msg))
		sizes = append(sizes, len(msg.Records))
		assert.Equal(t, "4f8d1c2a-9b3e-4d5f-a6b7-c8d9e0f1a2b3", msg.ActionID)
		assert.Equal(t, domain.EntityContacts, msg.EntityType)
		assert.Equal(t, []string{"name"}, msg.FieldsToUpdate)
		if i == 0 {
			for _, r := range msg.Records {
				firstEmails = append(firstEmails, r.Email())
			}
		}
	}
	assert.Equal(t, []int{100, 100, 50}, sizes)

	// File order is preserved within and across batches.
	assert.Equal(t, "u0@example.com", firstEmails[0])
	assert.Equal(t, "u99@example.com", firstEmails[99])

	assert.Equal(t, []string{domain.StatusInProgress}, store.transitions)
}

func TestEnqueuer_DefaultBatchSize(t *testing.T) {
	source := &fakeSource{records: makeRecords(101)}
	queue := &fakePublisher{}
	store := &fakeActionStore{}
	e := newTestEnqueuer(source, queue, store, 0)

	require.NoError(t, e.Enqueue(context.Background(), testAction()))
	assert.Len(t, queue.published, 2)
}

func TestEnqueuer_EmptySourceResolvesSkipped(t *testing.T) {
	source := &fakeSource{}
	queue := &fakePublisher{}
	store := &fakeActionStore{}
	e := newTestEnqueuer(source, queue, store, 100)

	require.NoError(t, e.Enqueue(context.Background(), testAction()))
	assert.Empty(t, queue.published)
	assert.Equal(t, []string{domain.StatusSkipped}, store.transitions)
}

func TestEnqueuer_SourceFailureAbortsBeforePublishing(t *testing.T) {
	source := &fakeSource{err: errors.New("fetch failed")}
	queue := &fakePublisher{}
	store := &fakeActionStore{}
	e := newTestEnqueuer(source, queue, store, 100)

	err := e.Enqueue(context.Background(), testAction())
	require.Error(t, err)
	assert.Empty(t, queue.published)
	assert.Empty(t, store.transitions)
}

func TestEnqueuer_PublishFailureLeavesActionQueued(t *testing.T) {
	source := &fakeSource{records: makeRecords(250)}
	queue := &fakePublisher{failAfter: 1, err: errors.New("broker down")}
	store := &fakeActionStore{}
	e := newTestEnqueuer(source, queue, store, 100)

	err := e.Enqueue(context.Background(), testAction())
	require.Error(t, err)
	assert.Len(t, queue.published, 1)
	// No status write: the action stays QUEUED for a later retry.
	assert.Empty(t, store.transitions)
}
