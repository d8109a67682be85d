package identity

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperwall/whisperwall/models"
	"github.com/whisperwall/whisperwall/util/cliutil"
	"gorm.io/gorm"
)

func testDirectory(t *testing.T) (*Directory, *gorm.DB) {
	t.Helper()
	db, err := cliutil.SetupDatabase("sqlite://"+filepath.Join(t.TempDir(), "test.sqlite"), 1)
	require.NoError(t, err)

	dir, err := NewDirectory(db, slog.Default())
	require.NoError(t, err)
	return dir, db
}

func TestAllocateAnonymousSequence(t *testing.T) {
	dir, _ := testDirectory(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ident, err := dir.AllocateAnonymous(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("Anonymous %d", i), ident.Name)
		assert.Equal(t, models.IdentityActive, ident.Status)
		assert.NotEmpty(t, ident.Uuid)
	}
}

func TestAllocateAnonymousSeedsFromExisting(t *testing.T) {
	db, err := cliutil.SetupDatabase("sqlite://"+filepath.Join(t.TempDir(), "test.sqlite"), 1)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Identity{}))

	// Pre-existing rows from an earlier deployment, including a name that
	// only looks anonymous.
	for _, name := range []string{"Anonymous 7", "Anonymous 41", "Anonymous forty"} {
		require.NoError(t, db.Create(&models.Identity{
			Uuid:   name,
			Name:   name,
			Status: models.IdentityActive,
		}).Error)
	}

	dir, err := NewDirectory(db, slog.Default())
	require.NoError(t, err)

	ident, err := dir.AllocateAnonymous(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Anonymous 42", ident.Name)
}

func TestAllocateAnonymousNeverReusesNumbers(t *testing.T) {
	dir, _ := testDirectory(t)
	ctx := context.Background()

	first, err := dir.AllocateAnonymous(ctx)
	require.NoError(t, err)
	require.NoError(t, dir.Delete(ctx, first.Uuid))

	second, err := dir.AllocateAnonymous(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Name, second.Name)
	assert.Equal(t, "Anonymous 2", second.Name)
}

func TestAllocateAnonymousConcurrent(t *testing.T) {
	dir, _ := testDirectory(t)
	ctx := context.Background()

	const n = 16
	names := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ident, err := dir.AllocateAnonymous(ctx)
			assert.NoError(t, err)
			if err == nil {
				names <- ident.Name
			}
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool)
	for name := range names {
		assert.False(t, seen[name], "duplicate anonymous name %q", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)
}

func TestStatusTransitions(t *testing.T) {
	dir, _ := testDirectory(t)
	ctx := context.Background()

	ident, err := dir.Register(ctx, "carla")
	require.NoError(t, err)

	require.NoError(t, dir.UpdateStatus(ctx, ident.Uuid, models.IdentityBanned))
	got, err := dir.GetByUuid(ctx, ident.Uuid)
	require.NoError(t, err)
	assert.Equal(t, models.IdentityBanned, got.Status)

	assert.ErrorIs(t, dir.UpdateStatus(ctx, ident.Uuid, "vaporized"), ErrInvalidStatus)
	assert.ErrorIs(t, dir.UpdateStatus(ctx, "nope", models.IdentityActive), ErrNoSuchIdentity)

	// Soft delete keeps the row.
	require.NoError(t, dir.Delete(ctx, ident.Uuid))
	got, err = dir.GetByUuid(ctx, ident.Uuid)
	require.NoError(t, err)
	assert.Equal(t, models.IdentityDeleted, got.Status)
}

func TestListPagination(t *testing.T) {
	dir, _ := testDirectory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := dir.Register(ctx, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
	}
	banned, err := dir.Register(ctx, "troll")
	require.NoError(t, err)
	require.NoError(t, dir.UpdateStatus(ctx, banned.Uuid, models.IdentityBanned))

	idents, total, err := dir.List(ctx, 1, 4, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Len(t, idents, 4)

	idents, total, err = dir.List(ctx, 2, 4, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Len(t, idents, 2)

	idents, total, err = dir.List(ctx, 1, 10, models.IdentityBanned)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, idents, 1)
	assert.Equal(t, "troll", idents[0].Name)
}
