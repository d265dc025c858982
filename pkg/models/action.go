package models

import "fmt"

// Action is a sync transition queued for, or last completed on, a mirror row.
type Action string

const (
	ActionNoAction Action = "NoAction"
	ActionAdd      Action = "Add"
	ActionUpdate   Action = "Update"
	ActionDelete   Action = "Delete"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionNoAction, ActionAdd, ActionUpdate, ActionDelete}
}

func (a Action) String() string {
	return string(a)
}

func (a Action) IsValid() bool {
	switch a {
	case ActionNoAction, ActionAdd, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ParseAction accepts the canonical names and their lower-case forms.
func ParseAction(s string) (Action, error) {
	switch s {
	case "NoAction", "noaction", "no_action", "none":
		return ActionNoAction, nil
	case "Add", "add":
		return ActionAdd, nil
	case "Update", "update":
		return ActionUpdate, nil
	case "Delete", "delete":
		return ActionDelete, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}
