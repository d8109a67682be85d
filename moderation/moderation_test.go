package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/events"
	"github.com/whisperwall/whisperwall/models"
	"github.com/whisperwall/whisperwall/util/cliutil"
)

type testEnv struct {
	db     *gorm.DB
	svc    *Service
	evtman *events.EventManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := cliutil.SetupDatabase("sqlite://"+filepath.Join(t.TempDir(), "test.sqlite"), 1)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Publication{}))

	evtman := events.NewEventManager(slog.Default())
	go evtman.Run()
	t.Cleanup(evtman.Shutdown)

	svc, err := NewService(db, evtman, slog.Default())
	require.NoError(t, err)

	return &testEnv{db: db, svc: svc, evtman: evtman}
}

func (te *testEnv) createPublication(t *testing.T, uid string) {
	t.Helper()
	require.NoError(t, te.db.Create(&models.Publication{
		Uuid:    uid,
		Content: "ciphertext",
		Status:  models.PublicationActive,
	}).Error)
}

func (te *testEnv) status(t *testing.T, uid string) string {
	t.Helper()
	var pub models.Publication
	require.NoError(t, te.db.Take(&pub, "uuid = ?", uid).Error)
	return pub.Status
}

func TestDuplicateReport(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.createPublication(t, "pub-1")

	receipt, err := te.svc.ReportPublication(ctx, "pub-1", "reporter-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.ReportCount)
	assert.False(t, receipt.Flagged)

	_, err = te.svc.ReportPublication(ctx, "pub-1", "reporter-1")
	assert.ErrorIs(t, err, ErrAlreadyReported)

	count, err := te.svc.Ledger().CountReports(ctx, "pub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReportUnknownPublication(t *testing.T) {
	te := newTestEnv(t)

	_, err := te.svc.ReportPublication(context.Background(), "ghost", "reporter-1")
	assert.ErrorIs(t, err, ErrNoSuchPublication)
}

func TestThresholdFlagsExactlyOnce(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.createPublication(t, "pub-1")

	sub := te.evtman.Subscribe(nil)

	for i := 1; i < ReportThreshold; i++ {
		receipt, err := te.svc.ReportPublication(ctx, "pub-1", fmt.Sprintf("reporter-%d", i))
		require.NoError(t, err)
		assert.False(t, receipt.Flagged)
	}
	assert.Equal(t, models.PublicationActive, te.status(t, "pub-1"))

	// The twentieth distinct reporter trips the flag.
	receipt, err := te.svc.ReportPublication(ctx, "pub-1", "reporter-20")
	require.NoError(t, err)
	assert.True(t, receipt.Flagged)
	assert.Equal(t, int64(ReportThreshold), receipt.ReportCount)
	assert.Equal(t, models.PublicationFlagged, te.status(t, "pub-1"))

	select {
	case evt := <-sub.Events():
		assert.Equal(t, "pub-1", evt.Publication)
		assert.Equal(t, models.PublicationFlagged, evt.Status)
		assert.Equal(t, int64(ReportThreshold), evt.ReportCount)
	case <-time.After(time.Second):
		t.Fatal("no flagged event emitted")
	}

	// A twenty-first report does not re-trigger anything.
	receipt, err = te.svc.ReportPublication(ctx, "pub-1", "reporter-21")
	require.NoError(t, err)
	assert.False(t, receipt.Flagged)
	assert.Equal(t, models.PublicationFlagged, te.status(t, "pub-1"))

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected second event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentReportersSingleTransition(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.createPublication(t, "pub-1")

	const reporters = 25
	flags := make(chan bool, reporters)

	var wg sync.WaitGroup
	for i := 0; i < reporters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			receipt, err := te.svc.ReportPublication(ctx, "pub-1", fmt.Sprintf("reporter-%d", n))
			assert.NoError(t, err)
			if err == nil {
				flags <- receipt.Flagged
			}
		}(i)
	}
	wg.Wait()
	close(flags)

	transitions := 0
	for flagged := range flags {
		if flagged {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions, "exactly one reporter should observe the transition")

	count, err := te.svc.Ledger().CountReports(ctx, "pub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(reporters), count)
	assert.Equal(t, models.PublicationFlagged, te.status(t, "pub-1"))
}

func flagPublication(t *testing.T, te *testEnv, uid string) {
	t.Helper()
	te.createPublication(t, uid)
	ctx := context.Background()
	for i := 0; i < ReportThreshold; i++ {
		_, err := te.svc.ReportPublication(ctx, uid, fmt.Sprintf("flagger-%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, models.PublicationFlagged, te.status(t, uid))
}

func TestDismiss(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	flagPublication(t, te, "pub-1")

	require.NoError(t, te.svc.Moderate(ctx, "pub-1", DecisionDismiss))
	assert.Equal(t, models.PublicationActive, te.status(t, "pub-1"))

	// Dismiss clears the ledger: the next report starts over from one.
	count, err := te.svc.Ledger().CountReports(ctx, "pub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	receipt, err := te.svc.ReportPublication(ctx, "pub-1", "late-reporter")
	require.NoError(t, err)
	assert.False(t, receipt.Flagged)
	assert.Equal(t, int64(1), receipt.ReportCount)
	assert.Equal(t, models.PublicationActive, te.status(t, "pub-1"))

	// Retrying the decision now that the publication is active fails the
	// guard without corrupting state.
	err = te.svc.Moderate(ctx, "pub-1", DecisionDismiss)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, models.PublicationActive, te.status(t, "pub-1"))
}

func TestConfirmIsTerminal(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	flagPublication(t, te, "pub-1")

	require.NoError(t, te.svc.Moderate(ctx, "pub-1", DecisionConfirm))
	assert.Equal(t, models.PublicationRemoved, te.status(t, "pub-1"))

	assert.ErrorIs(t, te.svc.Moderate(ctx, "pub-1", DecisionDismiss), ErrInvalidStateTransition)
	assert.ErrorIs(t, te.svc.Moderate(ctx, "pub-1", DecisionConfirm), ErrInvalidStateTransition)

	// Explicit delete of a removed publication is a no-op success.
	require.NoError(t, te.svc.Remove(ctx, "pub-1"))
	assert.Equal(t, models.PublicationRemoved, te.status(t, "pub-1"))
}

func TestModerateGuards(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.createPublication(t, "pub-1")

	assert.ErrorIs(t, te.svc.Moderate(ctx, "pub-1", DecisionDismiss), ErrInvalidStateTransition)
	assert.ErrorIs(t, te.svc.Moderate(ctx, "ghost", DecisionConfirm), ErrNoSuchPublication)

	err := te.svc.Moderate(ctx, "pub-1", Decision("obliterate"))
	assert.Error(t, err)
}

func TestRemoveIdempotent(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.createPublication(t, "pub-1")

	require.NoError(t, te.svc.Remove(ctx, "pub-1"))
	assert.Equal(t, models.PublicationRemoved, te.status(t, "pub-1"))

	require.NoError(t, te.svc.Remove(ctx, "pub-1"))
	assert.Equal(t, models.PublicationRemoved, te.status(t, "pub-1"))

	assert.ErrorIs(t, te.svc.Remove(ctx, "ghost"), ErrNoSuchPublication)
}

func TestListReportsNewestFirst(t *testing.T) {
	te := newTestEnv(t)
	ctx := context.Background()
	te.createPublication(t, "pub-1")
	te.createPublication(t, "pub-2")

	for i := 0; i < 5; i++ {
		_, err := te.svc.ReportPublication(ctx, "pub-1", fmt.Sprintf("reporter-%d", i))
		require.NoError(t, err)
	}
	_, err := te.svc.ReportPublication(ctx, "pub-2", "reporter-0")
	require.NoError(t, err)

	reps, total, err := te.svc.Ledger().ListReports(ctx, "pub-1", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, reps, 3)
	for i := 1; i < len(reps); i++ {
		assert.GreaterOrEqual(t, reps[i-1].ID, reps[i].ID)
	}

	reps, total, err = te.svc.Ledger().ListReports(ctx, "pub-1", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, reps, 2)

	_, total, err = te.svc.Ledger().ListAllReports(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
}
