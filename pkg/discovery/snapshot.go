package discovery

import (
	"context"
	"slices"

	"github.com/Gobusters/ectolinq"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// SnapshotEntityProvider serves a snapshot pushed by the caller, e.g. in
// the body of a discovery request.
type SnapshotEntityProvider struct {
	entityType string
	snapshot   models.EntitySnapshot
}

func NewSnapshotEntityProvider(entityType string, snapshot models.EntitySnapshot) *SnapshotEntityProvider {
	return &SnapshotEntityProvider{entityType: entityType, snapshot: snapshot}
}

func (p *SnapshotEntityProvider) EntityType() string {
	return p.entityType
}

// GetData narrows the snapshot to the requested accounts, ids and subtypes.
// Empty arguments do not filter.
func (p *SnapshotEntityProvider) GetData(_ context.Context, apiKeys []string, targetIDs []int64, subtypes []string) (models.EntitySnapshot, error) {
	out := models.EntitySnapshot{}
	for apiKey, entities := range p.snapshot {
		if len(apiKeys) > 0 && !ectolinq.Contains(apiKeys, apiKey) {
			continue
		}
		kept := ectolinq.Filter(entities, func(e models.MagentoEntity) bool {
			if len(targetIDs) > 0 && !slices.Contains(targetIDs, e.EntityID) {
				return false
			}
			if len(subtypes) > 0 && (e.EntitySubtype == nil || !ectolinq.Contains(subtypes, *e.EntitySubtype)) {
				return false
			}
			return true
		})
		out[apiKey] = kept
	}
	return out, nil
}

// SnapshotAttributeProvider is the attribute counterpart of
// SnapshotEntityProvider.
type SnapshotAttributeProvider struct {
	attributeType string
	snapshot      models.AttributeSnapshot
}

func NewSnapshotAttributeProvider(attributeType string, snapshot models.AttributeSnapshot) *SnapshotAttributeProvider {
	return &SnapshotAttributeProvider{attributeType: attributeType, snapshot: snapshot}
}

func (p *SnapshotAttributeProvider) AttributeType() string {
	return p.attributeType
}

func (p *SnapshotAttributeProvider) GetData(_ context.Context, apiKeys []string, attributeIDs []int64) (models.AttributeSnapshot, error) {
	out := models.AttributeSnapshot{}
	for apiKey, attributes := range p.snapshot {
		if len(apiKeys) > 0 && !ectolinq.Contains(apiKeys, apiKey) {
			continue
		}
		out[apiKey] = ectolinq.Filter(attributes, func(a models.MagentoAttribute) bool {
			return len(attributeIDs) == 0 || slices.Contains(attributeIDs, a.AttributeID)
		})
	}
	return out, nil
}
