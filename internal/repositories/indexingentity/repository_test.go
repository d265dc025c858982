package indexingentity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klevu/module-m2-indexing-sub002/pkg/database"
	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// newTestRepository connects to TEST_DATABASE_URL and applies the
// migrations. Tests are skipped when it is not set.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set or -short passed")
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	sqlDB, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := database.NewDatabaseInstance(sqlDB, logger)
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../../db/pg"})
	require.NoError(t, migrations.MigratePostgres(db.SQLDB(), "indexing_test"))

	return NewRepository(db, logger)
}

func testAPIKey() string {
	return "t-" + uuid.NewString()[:8]
}

func TestRepository_InsertListGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	apiKey := testAPIKey()

	parent := int64(5)
	require.NoError(t, repo.Insert(ctx, []models.IndexingEntity{
		{TargetEntityType: "KLEVU_PRODUCT", TargetID: 1, APIKey: apiKey, NextAction: models.ActionAdd, LastAction: models.ActionNoAction, IsIndexable: true},
		{TargetEntityType: "KLEVU_PRODUCT", TargetID: 2, TargetParentID: &parent, APIKey: apiKey, NextAction: models.ActionNoAction, LastAction: models.ActionAdd, IsIndexable: true},
	}))

	rows, err := repo.List(ctx, models.IndexingEntityQuery{APIKeys: []string{apiKey}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Less(t, rows[0].ID, rows[1].ID)

	rows, err = repo.List(ctx, models.IndexingEntityQuery{APIKeys: []string{apiKey}, NextActions: []models.Action{models.ActionAdd}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].TargetID)

	got, err := repo.Get(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, apiKey, got.APIKey)

	_, err = repo.Get(ctx, -1)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRepository_InsertDuplicate(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	row := models.IndexingEntity{TargetEntityType: "KLEVU_CMS", TargetID: 9, APIKey: testAPIKey(), NextAction: models.ActionAdd, LastAction: models.ActionNoAction}

	require.NoError(t, repo.Insert(ctx, []models.IndexingEntity{row}))
	err := repo.Insert(ctx, []models.IndexingEntity{row})
	assert.True(t, apperrors.IsAlreadyExists(err))
}

func TestRepository_LockUpdateDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	apiKey := testAPIKey()

	require.NoError(t, repo.Insert(ctx, []models.IndexingEntity{
		{TargetEntityType: "KLEVU_PRODUCT", TargetID: 1, APIKey: apiKey, NextAction: models.ActionAdd, LastAction: models.ActionNoAction, IsIndexable: true},
	}))
	rows, err := repo.List(ctx, models.IndexingEntityQuery{APIKeys: []string{apiKey}})
	require.NoError(t, err)
	ids := []int64{rows[0].ID}

	now := time.Now().UTC()
	locked, err := repo.Lock(ctx, ids, now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ids, locked)

	locked, err = repo.Lock(ctx, ids, now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, locked, "a fresh lock is not taken over")

	next, last := models.ActionNoAction, models.ActionAdd
	require.NoError(t, repo.Update(ctx, ids, models.MirrorRowChanges{
		NextAction:          &next,
		LastAction:          &last,
		LastActionTimestamp: &now,
		ClearLock:           true,
		OnlyNextActions:     []models.Action{models.ActionAdd},
	}))

	got, err := repo.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.ActionNoAction, got.NextAction)
	assert.Equal(t, models.ActionAdd, got.LastAction)
	assert.Nil(t, got.LockTimestamp)

	require.NoError(t, repo.Delete(ctx, ids))
	_, err = repo.Get(ctx, ids[0])
	assert.True(t, apperrors.IsNotFound(err))
}
