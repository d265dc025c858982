package models

import "time"

// MirrorRowChanges is a bulk update applied to mirror rows by id. Nil
// fields are left untouched.
type MirrorRowChanges struct {
	NextAction          *Action
	LastAction          *Action
	LastActionTimestamp *time.Time
	IsIndexable         *bool
	RequiresUpdate      *bool
	ClearLock           bool
	// OnlyNextActions restricts the update to rows whose next action is
	// one of these.
	OnlyNextActions []Action
}

func (c MirrorRowChanges) IsEmpty() bool {
	return c.NextAction == nil && c.LastAction == nil && c.LastActionTimestamp == nil &&
		c.IsIndexable == nil && c.RequiresUpdate == nil && !c.ClearLock
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
