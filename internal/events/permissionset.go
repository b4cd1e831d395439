package events

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/grantd-io/grantd/internal/models"
)

// HandlePermissionSetEvent routes a permission set store change to the
// reconciler. The current definition is read back from the store; update
// events additionally carry the pre-change snapshot for diffing.
func (n *Normalizer) HandlePermissionSetEvent(ctx context.Context, event models.PermissionSetEvent) error {
	correlationID := ensureCorrelationID(event.CorrelationID)
	log := logrus.WithFields(logrus.Fields{
		"action":            event.Action,
		"permissionSetName": event.Name,
		"correlationId":     correlationID,
	})

	switch event.Action {
	case models.PermissionSetInsert:
		definition, err := n.currentDefinition(ctx, event.Name)
		if err != nil {
			return n.surface(ctx, "Error processing permission set event", event.Name, correlationID, err)
		}
		if _, err := n.reconciler.Create(ctx, definition, correlationID); err != nil {
			// The reconciler already notified; nothing to add here.
			return err
		}

	case models.PermissionSetModify:
		if event.OldDefinition == nil {
			return n.surface(ctx, "Error processing permission set event", event.Name, correlationID,
				&models.ValidationError{
					Component:   component,
					RelatedData: event.Name,
					Reason:      "update event without a pre-change snapshot",
				})
		}
		definition, err := n.currentDefinition(ctx, event.Name)
		if err != nil {
			return n.surface(ctx, "Error processing permission set event", event.Name, correlationID, err)
		}
		if err := n.reconciler.Update(ctx, event.OldDefinition, definition, correlationID); err != nil {
			return err
		}

	case models.PermissionSetRemove:
		if err := n.reconciler.Delete(ctx, event.Name, correlationID); err != nil {
			return err
		}

	default:
		log.Warn("Unknown permission set event action, dropping")
	}
	return nil
}

func (n *Normalizer) currentDefinition(ctx context.Context, name string) (*models.PermissionSetDefinition, error) {
	definition, err := n.permissionSets.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read permission set definition: %w", err)
	}
	if definition == nil {
		return nil, &models.ValidationError{
			Component:   component,
			RelatedData: name,
			Reason:      "permission set definition not found in store",
		}
	}
	return definition, nil
}
