package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tickets-tracker/internal/common"
	"github.com/joseph-ayodele/tickets-tracker/internal/pipeline"
)

type recorder struct {
	mu    sync.Mutex
	seen  []uuid.UUID
	users []string
	fail  uuid.UUID
}

func (r *recorder) Process(ctx context.Context, id uuid.UUID) (*pipeline.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, id)
	r.users = append(r.users, common.IdentityFromContext(ctx).UserID)
	if id == r.fail {
		return nil, errors.New("boom")
	}
	return &pipeline.Result{}, nil
}

func TestQueueProcessesEveryJob(t *testing.T) {
	rec := &recorder{fail: uuid.New()}
	q := NewBatchQueue(rec, nil, WithWorkers(3), WithQueueSize(2), WithProcessTimeout(time.Second))

	ids := []uuid.UUID{uuid.New(), rec.fail, uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), Job{BatchID: id, Identity: common.NewIdentity("op1", "")}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.ElementsMatch(t, ids, rec.seen)
	for _, u := range rec.users {
		assert.Equal(t, "op1", u)
	}
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := NewBatchQueue(&recorder{}, nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	err := q.Enqueue(context.Background(), Job{BatchID: uuid.New()})
	assert.ErrorIs(t, err, ErrClosed)
}
