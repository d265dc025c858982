package store

import (
	"context"
	"time"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// EntityStore is the indexing_entity mirror table.
type EntityStore interface {
	List(ctx context.Context, q models.IndexingEntityQuery) ([]models.IndexingEntity, error)
	Insert(ctx context.Context, entities []models.IndexingEntity) error
	Update(ctx context.Context, ids []int64, changes models.MirrorRowChanges) error
	// Lock stamps now on rows that are unlocked or locked before staleBefore
	// and returns the ids it stamped.
	Lock(ctx context.Context, ids []int64, now, staleBefore time.Time) ([]int64, error)
	Unlock(ctx context.Context, ids []int64) error
	Delete(ctx context.Context, ids []int64) error
}

// AttributeStore is the indexing_attribute mirror table.
type AttributeStore interface {
	List(ctx context.Context, q models.IndexingAttributeQuery) ([]models.IndexingAttribute, error)
	Insert(ctx context.Context, attributes []models.IndexingAttribute) error
	Update(ctx context.Context, ids []int64, changes models.MirrorRowChanges) error
	Lock(ctx context.Context, ids []int64, now, staleBefore time.Time) ([]int64, error)
	Unlock(ctx context.Context, ids []int64) error
	Delete(ctx context.Context, ids []int64) error
}

// HistoryStore holds sync history rows and their consolidated form.
type HistoryStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertHistory(ctx context.Context, records []models.SyncHistoryEntityRecord) error
	ListHistoryGroups(ctx context.Context, before time.Time) ([]models.SyncHistoryGroup, error)
	ListHistoryForGroup(ctx context.Context, group models.SyncHistoryGroup) ([]models.SyncHistoryEntityRecord, error)
	DeleteHistory(ctx context.Context, ids []int64) error
	SaveConsolidation(ctx context.Context, record *models.SyncHistoryEntityConsolidationRecord) error
	ListConsolidations(ctx context.Context, apiKey string, targetIDs []int64) ([]*models.SyncHistoryEntityConsolidationRecord, error)
	ListConsolidationIDsOnOrBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
	DeleteConsolidation(ctx context.Context, id int64) error
}
