package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

func TestSnapshotEntityProvider_GetData(t *testing.T) {
	simple, variant := "simple", "configurable_variants"
	snapshot := models.EntitySnapshot{
		"K1": {
			{EntityID: 1, APIKey: "K1", EntitySubtype: &simple, IsIndexable: true},
			{EntityID: 2, APIKey: "K1", EntitySubtype: &variant, EntityParentID: models.Ptr(int64(9)), IsIndexable: true},
			{EntityID: 3, APIKey: "K1"},
		},
		"K2": {
			{EntityID: 1, APIKey: "K2", EntitySubtype: &simple},
		},
	}
	p := NewSnapshotEntityProvider(productType, snapshot)
	assert.Equal(t, productType, p.EntityType())

	tests := []struct {
		name      string
		apiKeys   []string
		targetIDs []int64
		subtypes  []string
		expected  map[string][]int64
	}{
		{
			name:     "no filters",
			expected: map[string][]int64{"K1": {1, 2, 3}, "K2": {1}},
		},
		{
			name:     "by account",
			apiKeys:  []string{"K2"},
			expected: map[string][]int64{"K2": {1}},
		},
		{
			name:      "by target id",
			targetIDs: []int64{2, 3},
			expected:  map[string][]int64{"K1": {2, 3}, "K2": {}},
		},
		{
			name:     "by subtype skips entities without one",
			subtypes: []string{simple},
			expected: map[string][]int64{"K1": {1}, "K2": {1}},
		},
		{
			name:     "unknown account",
			apiKeys:  []string{"K3"},
			expected: map[string][]int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.GetData(context.Background(), tt.apiKeys, tt.targetIDs, tt.subtypes)
			require.NoError(t, err)

			got := map[string][]int64{}
			for apiKey, entities := range out {
				ids := []int64{}
				for _, e := range entities {
					ids = append(ids, e.EntityID)
				}
				got[apiKey] = ids
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSnapshotAttributeProvider_GetData(t *testing.T) {
	p := NewSnapshotAttributeProvider("KLEVU_ATTRIBUTE", models.AttributeSnapshot{
		"K1": {{AttributeID: 5, AttributeCode: "color", APIKey: "K1"}, {AttributeID: 6, AttributeCode: "size", APIKey: "K1"}},
		"K2": {{AttributeID: 5, AttributeCode: "color", APIKey: "K2"}},
	})
	assert.Equal(t, "KLEVU_ATTRIBUTE", p.AttributeType())

	out, err := p.GetData(context.Background(), []string{"K1"}, []int64{6})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out["K1"], 1)
	assert.Equal(t, "size", out["K1"][0].AttributeCode)

	out, err = p.GetData(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, out["K1"], 2)
	assert.Len(t, out["K2"], 1)
}
