package recovery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/storage"
	"github.com/poiesic/thinkdocs/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testNow    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

func setup(t *testing.T) (*badger.DB, storage.Store, *Sweeper) {
	t.Helper()
	db, err := badger.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := db.Open(context.Background())
	require.NoError(t, err)

	sweeper, err := NewSweeper(db, WithClock(func() time.Time { return testNow }), WithLogger(testLogger))
	require.NoError(t, err)
	return db, store, sweeper
}

func createDoc(t *testing.T, store storage.Store, id string, age time.Duration, status core.DocumentStatus) {
	t.Helper()
	_, err := store.CreateDocument(context.Background(), &core.Document{
		ID:         id,
		Filename:   id + ".pdf",
		Status:     status,
		UploadedAt: testNow.Add(-age),
	})
	require.NoError(t, err)
}

func TestNewSweeper_RequiresStore(t *testing.T) {
	_, err := NewSweeper(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestSweep_FailsOnlyStaleProcessingDocuments(t *testing.T) {
	_, store, sweeper := setup(t)
	ctx := context.Background()

	createDoc(t, store, "old", 45*time.Minute, core.DocumentProcessing)
	createDoc(t, store, "recent", 5*time.Minute, core.DocumentProcessing)
	createDoc(t, store, "done", 45*time.Minute, core.DocumentCompleted)

	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-DefaultStaleAfter), report.Cutoff)
	assert.Equal(t, []string{"old"}, report.DocumentIDs())
	assert.Equal(t, "old.pdf", report.Documents[0].Filename)

	old, err := store.GetDocument(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, core.DocumentFailed, old.Status)
	require.NotNil(t, old.ProcessedAt)
	assert.True(t, old.ProcessedAt.Equal(testNow))

	recent, err := store.GetDocument(ctx, "recent")
	require.NoError(t, err)
	assert.Equal(t, core.DocumentProcessing, recent.Status)

	done, err := store.GetDocument(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, core.DocumentCompleted, done.Status)
}

func TestSweep_IsIdempotent(t *testing.T) {
	_, store, sweeper := setup(t)
	createDoc(t, store, "old", time.Hour, core.DocumentProcessing)

	first, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Documents, 1)

	second, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Documents)
	assert.Empty(t, second.Jobs)
}

func TestSweep_FailsStaleRunningJobs(t *testing.T) {
	_, store, sweeper := setup(t)
	ctx := context.Background()

	_, err := store.StartJob(ctx, "stuck", "doc-1", testNow.Add(-45*time.Minute))
	require.NoError(t, err)
	_, err = store.StartJob(ctx, "active", "doc-2", testNow.Add(-5*time.Minute))
	require.NoError(t, err)

	report, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stuck"}, report.Jobs)

	stuck, err := store.GetJob(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, stuck.Status)
	assert.Equal(t, core.ErrStaleJobRecovered.Error(), stuck.ErrorMessage)

	active, err := store.GetJob(ctx, "active")
	require.NoError(t, err)
	assert.Equal(t, core.JobRunning, active.Status)
}

func TestSweep_CustomStaleAge(t *testing.T) {
	db, store, _ := setup(t)
	createDoc(t, store, "recent", 5*time.Minute, core.DocumentProcessing)

	sweeper, err := NewSweeper(db,
		WithStaleAfter(time.Minute),
		WithClock(func() time.Time { return testNow }),
		WithLogger(testLogger))
	require.NoError(t, err)

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, report.DocumentIDs())
}

func TestSweep_ClosedStore(t *testing.T) {
	db, _, sweeper := setup(t)
	require.NoError(t, db.Close())

	_, err := sweeper.Sweep(context.Background())
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestRun_SweepsUntilCanceled(t *testing.T) {
	_, store, sweeper := setup(t)
	createDoc(t, store, "old", time.Hour, core.DocumentProcessing)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.NoError(t, sweeper.Run(ctx, 5*time.Millisecond))

	doc, err := store.GetDocument(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, core.DocumentFailed, doc.Status)
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	_, _, sweeper := setup(t)
	assert.Error(t, sweeper.Run(context.Background(), 0))
}
