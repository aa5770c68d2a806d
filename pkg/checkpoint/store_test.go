package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/kadirpekel/wikiforge/pkg/kvstore"
	"github.com/kadirpekel/wikiforge/pkg/workflow"
	"github.com/stretchr/testify/require"
)

func newTestStore() *KVStore {
	return NewKVStore(kvstore.NewMemoryStore(), &Config{})
}

func TestSaveAndLoadLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	now := time.Now().UTC()
	state := workflow.New("wf-1", "trace-0001", "kw", now)
	rec := NewRecord(KindInitial, state, now, nil)

	_, err := store.Save(ctx, rec, 0)
	require.NoError(t, err)

	later := now.Add(time.Second)
	state2 := state.Clone()
	state2.UpdatedAt = later
	rec2 := NewRecord(KindStageCompletion, state2, later, map[string]any{"agent": "research"})
	_, err = store.Save(ctx, rec2, 0)
	require.NoError(t, err)

	latest, err := store.LoadLatest(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, KindStageCompletion, latest.Kind)
}

func TestLoadLatestFallsBackWhenPointerDangles(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemoryStore()
	store := NewKVStore(kv, &Config{})

	now := time.Now().UTC()
	state := workflow.New("wf-1", "trace-0001", "kw", now)
	rec := NewRecord(KindInitial, state, now, nil)
	_, err := store.Save(ctx, rec, 0)
	require.NoError(t, err)

	// Simulate a dangling latest pointer by pointing it at a key that
	// was never written.
	require.NoError(t, kv.Put(ctx, store.latestKey("wf-1"), []byte("ckpt:rec:wf-1:nonexistent"), 0))

	latest, err := store.LoadLatest(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, rec.CheckpointID, latest.CheckpointID)
}

func TestListByWorkflowDescendingAndFiltered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	state := workflow.New("wf-1", "trace-0001", "kw", now)

	for i, k := range []Kind{KindInitial, KindStageCompletion, KindStageCompletion, KindFinal} {
		ts := now.Add(time.Duration(i) * time.Second)
		rec := NewRecord(k, state, ts, nil)
		_, err := store.Save(ctx, rec, 0)
		require.NoError(t, err)
	}

	all, err := store.ListByWorkflow(ctx, "wf-1", nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.True(t, all[0].Timestamp.After(all[len(all)-1].Timestamp) || all[0].Timestamp.Equal(all[1].Timestamp))

	kind := KindStageCompletion
	stageOnly, err := store.ListByWorkflow(ctx, "wf-1", &kind, 0)
	require.NoError(t, err)
	require.Len(t, stageOnly, 2)
}

func TestDeleteRemovesRecordsAndLatestPointer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	state := workflow.New("wf-1", "trace-0001", "kw", now)
	rec := NewRecord(KindInitial, state, now, nil)
	_, err := store.Save(ctx, rec, 0)
	require.NoError(t, err)

	n, err := store.Delete(ctx, "wf-1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	latest, err := store.LoadLatest(ctx, "wf-1")
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestListAllPaginates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		state := workflow.New("wf-page", "trace-0001", "kw", now)
		rec := NewRecord(KindPeriodic, state, now.Add(time.Duration(i)*time.Second), nil)
		_, err := store.Save(ctx, rec, 0)
		require.NoError(t, err)
	}

	page0, total, err := store.ListAll(ctx, 0, 2, nil)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Len(t, page0, 2)

	page2, _, err := store.ListAll(ctx, 2, 2, nil)
	require.NoError(t, err)
	require.Len(t, page2, 1)
}

func TestReapRemovesExpiredRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	now := time.Now().UTC()
	state := workflow.New("wf-1", "trace-0001", "kw", now)

	past := now.Add(-time.Hour)
	rec := NewRecord(KindPeriodic, state, now, nil)
	rec.RetainUntil = &past
	_, err := store.Save(ctx, rec, time.Hour) // ttl long enough the kv backend itself won't expire it
	require.NoError(t, err)

	removed, err := store.Reap(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
