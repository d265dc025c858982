package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klevu/module-m2-indexing-sub002/internal/memstore"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

const attributeType = "KLEVU_ATTRIBUTE"

func mirrorAttribute(id, targetID int64, code string, indexable bool, last models.Action) models.IndexingAttribute {
	return models.IndexingAttribute{
		ID:                  id,
		TargetAttributeType: attributeType,
		TargetID:            targetID,
		TargetCode:          code,
		APIKey:              "K",
		NextAction:          models.ActionNoAction,
		LastAction:          last,
		IsIndexable:         indexable,
	}
}

func sourceAttribute(id int64, code string, indexable bool) models.MagentoAttribute {
	return models.MagentoAttribute{AttributeID: id, AttributeCode: code, APIKey: "K", IsIndexable: indexable, KlevuAttributeName: code}
}

func newAttributeFilters(t *testing.T, s *memstore.Attributes, batchSize int) *AttributeFilters {
	t.Helper()
	f, err := NewAttributeFilters(s, batchSize, []string{"name", "sku"}, testLogger())
	require.NoError(t, err)
	return f
}

func TestNewAttributeFilters_InvalidBatchSize(t *testing.T) {
	f, err := NewAttributeFilters(memstore.NewAttributes(), 10_000_000, nil, testLogger())
	assert.Error(t, err)
	assert.Nil(t, f)
}

func TestAttributeFilters_FilterToAdd_SkipsStandardAttributes(t *testing.T) {
	s := memstore.NewAttributes(mirrorAttribute(1, 10, "color", true, models.ActionAdd))
	f := newAttributeFilters(t, s, 0)

	got, err := f.FilterToAdd(context.Background(), attributeType, models.AttributeSnapshot{
		"K": {
			sourceAttribute(10, "color", true),
			sourceAttribute(11, "size", true),
			sourceAttribute(12, "name", true),
			sourceAttribute(13, "material", false),
		},
	})
	require.NoError(t, err)
	codes := []string{}
	for _, a := range got["K"] {
		codes = append(codes, a.AttributeCode)
	}
	assert.Equal(t, []string{"size", "material"}, codes)
}

func TestAttributeFilters_DeleteAndSetNotIndexablePartition(t *testing.T) {
	s := memstore.NewAttributes(
		mirrorAttribute(1, 10, "color", true, models.ActionAdd),
		mirrorAttribute(2, 11, "size", true, models.ActionUpdate),
		mirrorAttribute(3, 12, "material", true, models.ActionNoAction),
		mirrorAttribute(4, 13, "pattern", true, models.ActionDelete),
		mirrorAttribute(5, 14, "sku", true, models.ActionAdd),
		mirrorAttribute(6, 15, "weight", true, models.ActionAdd),
		mirrorAttribute(7, 16, "brand", false, models.ActionDelete),
	)
	f := newAttributeFilters(t, s, 2)
	snapshot := models.AttributeSnapshot{
		"K": {
			sourceAttribute(11, "size", false),
			sourceAttribute(15, "weight", true),
		},
	}

	toDelete, err := f.FilterToDelete(context.Background(), attributeType, snapshot, Scope{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, toDelete)

	toSetNotIndexable, err := f.FilterToSetNotIndexable(context.Background(), attributeType, snapshot, Scope{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{3, 4}, toSetNotIndexable)
}

func TestAttributeFilters_EmptyAccountIsEvaluated(t *testing.T) {
	other := mirrorAttribute(2, 11, "size", true, models.ActionAdd)
	other.APIKey = "L"
	s := memstore.NewAttributes(mirrorAttribute(1, 10, "color", true, models.ActionAdd), other)
	f := newAttributeFilters(t, s, 0)

	snapshot := models.AttributeSnapshot{
		"K": {},
		"L": {{AttributeID: 11, AttributeCode: "size", APIKey: "L", IsIndexable: true, KlevuAttributeName: "size"}},
	}
	ids, err := f.FilterToDelete(context.Background(), attributeType, snapshot, Scope{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	ids, err = f.FilterToDelete(context.Background(), attributeType, models.AttributeSnapshot{}, Scope{})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAttributeFilters_FilterToSetIndexable(t *testing.T) {
	s := memstore.NewAttributes(
		mirrorAttribute(1, 10, "color", false, models.ActionDelete),
		mirrorAttribute(2, 11, "size", false, models.ActionNoAction),
	)
	f := newAttributeFilters(t, s, 0)

	ids, err := f.FilterToSetIndexable(context.Background(), attributeType, models.AttributeSnapshot{
		"K": {sourceAttribute(10, "color", true), sourceAttribute(11, "size", false)},
	}, Scope{TargetIDs: []int64{10, 11}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestAttributeFilters_FilterToUpdate(t *testing.T) {
	s := memstore.NewAttributes(
		mirrorAttribute(1, 10, "color", true, models.ActionAdd),
		mirrorAttribute(2, 11, "name", true, models.ActionAdd),
		mirrorAttribute(3, 12, "size", true, models.ActionAdd),
		mirrorAttribute(4, 13, "weight", false, models.ActionAdd),
	)

	for _, batchSize := range []int{1, 3, 4} {
		f := newAttributeFilters(t, s, batchSize)
		_, all := drain(t, f.FilterToUpdate(context.Background(), attributeType, Scope{}))
		assert.Equal(t, []int64{1, 3}, all)
	}
}
