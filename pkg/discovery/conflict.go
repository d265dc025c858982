package discovery

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

const conflictNotificationPrefix = "klevu_indexing_attribute_conflict_"

// Notifier raises and clears account notifications.
type Notifier interface {
	Upsert(ctx context.Context, notification models.Notification) error
	Delete(ctx context.Context, notificationType, apiKey string) error
}

// ConflictNotificationType is the notification tag of attribute mapping
// conflicts for one account.
func ConflictNotificationType(apiKey string) string {
	return conflictNotificationPrefix + apiKey
}

// AttributeConflictHandler reports accounts whose indexable attributes map
// ambiguously onto remote attribute names.
type AttributeConflictHandler struct {
	notifier Notifier
	logger   ectologger.Logger
	now      func() time.Time
}

func NewAttributeConflictHandler(notifier Notifier, logger ectologger.Logger) *AttributeConflictHandler {
	return &AttributeConflictHandler{
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle takes the snapshots of one discovery pass keyed by attribute type.
// Each account gets one Upsert listing every conflicting type:code, or one
// Delete when it has no conflict.
func (h *AttributeConflictHandler) Handle(ctx context.Context, snapshots map[string]models.AttributeSnapshot) error {
	ctx, span := tracing.StartSpan(ctx, "AttributeConflictHandler.Handle")
	defer span.End()

	var failed []string
	for _, apiKey := range snapshotAPIKeys(snapshots) {
		conflicted := FindConflicts(snapshots, apiKey)
		notificationType := ConflictNotificationType(apiKey)

		var err error
		if len(conflicted) == 0 {
			err = h.notifier.Delete(ctx, notificationType, apiKey)
		} else {
			h.logger.WithContext(ctx).WithFields(map[string]any{
				"api_key":    apiKey,
				"conflicted": conflicted,
			}).Warn("Attribute mapping conflicts found")
			err = h.notifier.Upsert(ctx, models.Notification{
				Type:     notificationType,
				APIKey:   apiKey,
				Severity: models.NotificationSeverityWarning,
				Status:   models.NotificationStatusWarning,
				Message:  fmt.Sprintf("Conflicting Klevu attribute mappings found for API key %s.", apiKey),
				Details: "Several attributes are mapped to the same Klevu attribute name, or one attribute is mapped to several names: " +
					strings.Join(conflicted, ", "),
				Timestamp:  h.now().UTC(),
				Conflicted: conflicted,
			})
		}
		if err != nil {
			h.logger.WithContext(ctx).WithError(err).WithField("api_key", apiKey).Error("Failed to update attribute conflict notification")
			failed = append(failed, apiKey)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to update attribute conflict notifications for api keys: %s", strings.Join(failed, ", "))
	}
	return nil
}

// FindConflicts returns the sorted type:code list of indexable attributes
// of apiKey that share a remote name with another attribute or are mapped
// to more than one remote name.
func FindConflicts(snapshots map[string]models.AttributeSnapshot, apiKey string) []string {
	byName := map[string]map[string]struct{}{}
	byAttribute := map[string]map[string]struct{}{}

	for attributeType, snapshot := range snapshots {
		for _, a := range snapshot[apiKey] {
			if !a.IsIndexable || a.KlevuAttributeName == "" {
				continue
			}
			id := attributeType + ":" + a.AttributeCode
			if byName[a.KlevuAttributeName] == nil {
				byName[a.KlevuAttributeName] = map[string]struct{}{}
			}
			byName[a.KlevuAttributeName][id] = struct{}{}
			if byAttribute[id] == nil {
				byAttribute[id] = map[string]struct{}{}
			}
			byAttribute[id][a.KlevuAttributeName] = struct{}{}
		}
	}

	conflicted := map[string]struct{}{}
	for _, ids := range byName {
		if len(ids) < 2 {
			continue
		}
		for id := range ids {
			conflicted[id] = struct{}{}
		}
	}
	for id, names := range byAttribute {
		if len(names) > 1 {
			conflicted[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(conflicted))
	for id := range conflicted {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func snapshotAPIKeys(snapshots map[string]models.AttributeSnapshot) []string {
	seen := map[string]struct{}{}
	for _, snapshot := range snapshots {
		for apiKey := range snapshot {
			seen[apiKey] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for apiKey := range seen {
		out = append(out, apiKey)
	}
	slices.Sort(out)
	return out
}
