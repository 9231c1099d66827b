package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoWorker answers every popped item with the query text as its error
// message, in reverse pop order within each pair to exercise reordering.
func echoWorker(ctx context.Context, t *testing.T, client Client, keys Keys, n int) {
	t.Helper()
	go func() {
		var pending []WorkItem
		for len(pending) < n {
			item, err := client.Pop(ctx, keys.Queue(), 100*time.Millisecond)
			if err != nil {
				return
			}
			if item != nil {
				pending = append(pending, *item)
			}
		}
		for i := len(pending) - 1; i >= 0; i-- {
			item := pending[i]
			now := time.Now().UnixMilli()
			_ = client.Publish(ctx, keys.Results(item.JobID), Result{
				JobID:       item.JobID,
				Index:       item.Index,
				Error:       item.Query,
				WorkerID:    "echo",
				StartedAt:   now,
				CompletedAt: now,
			})
		}
	}()
}

func TestRunBatch(t *testing.T) {
	client, _ := setupTestClient(t)
	keys := NewKeys("test")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	queries := []string{"q0", "q1", "q2", "q3"}
	echoWorker(ctx, t, client, keys, len(queries))

	results, err := RunBatch(ctx, client, keys, Batch{
		Snapshot: "snap",
		Context:  "firewall/vsys/vsys1@10.1",
		Queries:  queries,
	})
	require.NoError(t, err)
	require.Len(t, results, len(queries))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("q%d", i), r.Error)
		assert.Equal(t, results[0].JobID, r.JobID)
	}
}

func TestRunBatch_Empty(t *testing.T) {
	client, _ := setupTestClient(t)
	results, err := RunBatch(context.Background(), client, NewKeys(""), Batch{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunBatch_Timeout(t *testing.T) {
	client, mr := setupTestClient(t)
	keys := NewKeys("")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := RunBatch(ctx, client, keys, Batch{
		Snapshot: "snap",
		Context:  "ctx",
		Queries:  []string{"q0", "q1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	items, lerr := mr.List(keys.Queue())
	require.NoError(t, lerr)
	assert.Len(t, items, 2, "items stay queued for a later worker")
}

func TestSubmit_RejectsInvalidItem(t *testing.T) {
	client, _ := setupTestClient(t)
	err := Submit(context.Background(), client, NewKeys(""), "job", Batch{Snapshot: "s", Context: "c", Queries: []string{""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}
