package models

// MagentoEntity is a snapshot of one source entity as seen by a discovery
// provider. It is only used as comparison input within one discovery pass.
type MagentoEntity struct {
	EntityID       int64   `json:"entity_id"`
	EntityParentID *int64  `json:"entity_parent_id,omitempty"`
	EntitySubtype  *string `json:"entity_subtype,omitempty"`
	APIKey         string  `json:"api_key"`
	IsIndexable    bool    `json:"is_indexable"`
	// RequiresUpdate is set by upstream change detection when the entity
	// changed since it was last sent.
	RequiresUpdate bool `json:"requires_update,omitempty"`
}

func (m MagentoEntity) ParentID() int64 {
	if m.EntityParentID == nil {
		return 0
	}
	return *m.EntityParentID
}

func (m MagentoEntity) Key(entityType string) string {
	return EntityKey(m.EntityID, m.ParentID(), m.APIKey, entityType)
}

// MagentoAttribute is a snapshot of one source attribute and its mapping to
// a remote attribute name.
type MagentoAttribute struct {
	AttributeID        int64  `json:"attribute_id"`
	AttributeCode      string `json:"attribute_code"`
	APIKey             string `json:"api_key"`
	IsIndexable        bool   `json:"is_indexable"`
	KlevuAttributeName string `json:"klevu_attribute_name"`
	KlevuAttributeType string `json:"klevu_attribute_type,omitempty"`
	IsGlobal           bool   `json:"is_global"`
	UsesSourceOptions  bool   `json:"uses_source_options"`
	IsMultiValue       bool   `json:"is_multi_value"`
}

func (m MagentoAttribute) Key(attributeType string) string {
	return AttributeKey(m.AttributeID, m.APIKey, attributeType)
}

// EntitySnapshot is a provider result grouped by account key.
type EntitySnapshot map[string][]MagentoEntity

// AttributeSnapshot is a provider result grouped by account key.
type AttributeSnapshot map[string][]MagentoAttribute
