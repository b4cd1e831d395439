// Package events normalizes upstream change notifications into engine
// work: principal lifecycle, organization topology, permission set store
// changes, and sync fan-outs. Handlers are invoked from the bus; they
// classify failures, post them to the notifier, and swallow, since an
// event has no caller to return to.
package events

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grantd-io/grantd/internal/models"
	"github.com/grantd-io/grantd/internal/notify"
	"github.com/grantd-io/grantd/internal/reconciler"
	"github.com/grantd-io/grantd/internal/resolver"
	"github.com/grantd-io/grantd/internal/store"
)

const component = "events"

// RootEntityData is the entityData value of root-scoped links.
const RootEntityData = "all"

type Normalizer struct {
	links          store.LinkStore
	permissionSets store.PermissionSetStore
	arns           store.ArnStore
	scopes         *resolver.Resolver
	principals     *resolver.PrincipalResolver
	reconciler     *reconciler.Reconciler
	submitter      resolver.Submitter
	notifier       notify.Notifier

	instanceArn     string
	identityStoreID string
}

func NewNormalizer(
	links store.LinkStore,
	permissionSets store.PermissionSetStore,
	arns store.ArnStore,
	scopes *resolver.Resolver,
	principals *resolver.PrincipalResolver,
	rec *reconciler.Reconciler,
	submitter resolver.Submitter,
	notifier notify.Notifier,
	instanceArn, identityStoreID string,
) *Normalizer {
	return &Normalizer{
		links:           links,
		permissionSets:  permissionSets,
		arns:            arns,
		scopes:          scopes,
		principals:      principals,
		reconciler:      rec,
		submitter:       submitter,
		notifier:        notifier,
		instanceArn:     instanceArn,
		identityStoreID: identityStoreID,
	}
}

// HandlePrincipalEvent reacts to user/group lifecycle. Creation routes
// every link naming the new principal through scope resolution; deletion
// is a no-op because the provider drops the principal's assignments with
// the principal itself.
func (n *Normalizer) HandlePrincipalEvent(ctx context.Context, event models.PrincipalEvent) error {
	correlationID := ensureCorrelationID(event.CorrelationID)
	log := logrus.WithFields(logrus.Fields{
		"kind":          event.Kind,
		"principalId":   event.PrincipalID,
		"principalType": event.PrincipalType,
		"correlationId": correlationID,
	})

	if event.Kind == models.PrincipalDeleted {
		log.Debug("Principal deleted, provider cleans up its assignments")
		return nil
	}

	name, err := n.principals.DisplayName(ctx, n.identityStoreID, event.PrincipalType, event.PrincipalID)
	if err != nil {
		return n.surface(ctx, "Error processing principal event", event.PrincipalID, correlationID, err)
	}
	if len(name) == 0 {
		log.Warn("Principal no longer present in the identity store, dropping event")
		return nil
	}

	links, err := n.links.QueryByPrincipalName(ctx, name)
	if err != nil {
		return n.surface(ctx, "Error processing principal event", event.PrincipalID, correlationID,
			fmt.Errorf("failed to query links for principal %s: %w", name, err))
	}

	routed := 0
	for i := range links {
		if links[i].PrincipalType != event.PrincipalType {
			continue
		}
		if err := n.routeLink(ctx, &links[i], event.PrincipalID, models.OperationCreate, correlationID); err != nil {
			return n.surface(ctx, "Error processing principal event", event.PrincipalID, correlationID, err)
		}
		routed++
	}
	log.WithField("links", routed).Info("Principal links routed")
	return nil
}

// HandleOrgEvent reacts to organization topology changes.
func (n *Normalizer) HandleOrgEvent(ctx context.Context, event models.OrgEvent) error {
	correlationID := ensureCorrelationID(event.CorrelationID)
	log := logrus.WithFields(logrus.Fields{
		"kind":          event.Kind,
		"accountId":     event.AccountID,
		"correlationId": correlationID,
	})

	var err error
	switch event.Kind {
	case models.OrgAccountCreated:
		err = n.accountCreated(ctx, &event, correlationID)
	case models.OrgAccountMoved:
		err = n.accountMoved(ctx, &event, correlationID)
	case models.OrgTagChanged:
		err = n.tagChanged(ctx, &event, correlationID)
	default:
		log.Warn("Unknown org event kind, dropping")
		return nil
	}
	if err != nil {
		return n.surface(ctx, "Error processing org event", event.AccountID, correlationID, err)
	}
	return nil
}

// accountCreated grants every root-scoped link onto the new account.
func (n *Normalizer) accountCreated(ctx context.Context, event *models.OrgEvent, correlationID string) error {
	links, err := n.links.QueryByEntityData(ctx, RootEntityData)
	if err != nil {
		return fmt.Errorf("failed to query root scoped links: %w", err)
	}
	return n.emitForAccount(ctx, links, models.OperationCreate, event.AccountID, correlationID)
}

// accountMoved revokes grants justified only by the old ancestor chain
// and creates those justified only by the new one. Revokes go first so a
// principal never briefly holds both sides of a move.
func (n *Normalizer) accountMoved(ctx context.Context, event *models.OrgEvent, correlationID string) error {
	toRemove, toAdd, err := n.scopes.MoveDelta(ctx, event.OldParentID, event.NewParentID)
	if err != nil {
		return err
	}

	for _, ouID := range toRemove {
		links, err := n.links.QueryByEntityData(ctx, ouID)
		if err != nil {
			return fmt.Errorf("failed to query links for unit %s: %w", ouID, err)
		}
		if err := n.emitForAccount(ctx, links, models.OperationDelete, event.AccountID, correlationID); err != nil {
			return err
		}
	}
	for _, ouID := range toAdd {
		links, err := n.links.QueryByEntityData(ctx, ouID)
		if err != nil {
			return fmt.Errorf("failed to query links for unit %s: %w", ouID, err)
		}
		if err := n.emitForAccount(ctx, links, models.OperationCreate, event.AccountID, correlationID); err != nil {
			return err
		}
	}
	return nil
}

// tagChanged first revokes grants recorded under the key for this
// account, covering both key removal and value change, then grants every
// link matching the new key^value pair. Per-account ordering guarantees
// the revokes land first.
func (n *Normalizer) tagChanged(ctx context.Context, event *models.OrgEvent, correlationID string) error {
	if err := n.scopes.DeprovisionTag(ctx, event.TagKey, event.AccountID, correlationID); err != nil {
		return err
	}
	if event.Removed {
		return nil
	}

	entityData := event.TagKey + "^" + event.TagValue
	links, err := n.links.QueryByEntityData(ctx, entityData)
	if err != nil {
		return fmt.Errorf("failed to query links for tag %s: %w", entityData, err)
	}
	lookup := models.TagLookupValue(event.TagKey, event.AccountID)
	return n.emitForAccountWithLookup(ctx, links, models.OperationCreate, event.AccountID, lookup, correlationID)
}

// HandleSyncEvent re-resolves every link referencing a permission set
// after the set was reconciled. Links declared before the set existed
// become effective here. Principals that still cannot be resolved are
// logged and skipped rather than failing the whole fan-out.
func (n *Normalizer) HandleSyncEvent(ctx context.Context, event models.SyncEvent) error {
	correlationID := ensureCorrelationID(event.CorrelationID)
	log := logrus.WithFields(logrus.Fields{
		"permissionSetName": event.PermissionSetName,
		"correlationId":     correlationID,
	})

	arn, err := n.arns.Get(ctx, event.PermissionSetName)
	if err != nil {
		return n.surface(ctx, "Error processing sync trigger", event.PermissionSetName, correlationID,
			fmt.Errorf("failed to look up permission set arn: %w", err))
	}
	if len(arn) == 0 {
		log.Info("Permission set has no provider arn, nothing to sync")
		return nil
	}

	links, err := n.links.QueryByPermissionSetName(ctx, event.PermissionSetName)
	if err != nil {
		return n.surface(ctx, "Error processing sync trigger", event.PermissionSetName, correlationID,
			fmt.Errorf("failed to query links for permission set: %w", err))
	}

	// Links expand independently; per-account ordering is the queue's
	// job, so expansion itself can run concurrently.
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for i := range links {
		link := &links[i]
		group.Go(func() error {
			principalID, err := n.principals.ResolveID(groupCtx, n.identityStoreID, link.PrincipalType, link.PrincipalName)
			if err != nil {
				return err
			}
			if len(principalID) == 0 {
				log.WithField("principalName", link.PrincipalName).
					Warn("Link principal not found in the identity store, skipping")
				return nil
			}
			return n.scopes.Resolve(groupCtx, resolver.ScopeRequest{
				Action:           models.OperationCreate,
				EntityType:       link.EntityType,
				EntityData:       link.EntityData,
				InstanceArn:      n.instanceArn,
				PrincipalID:      principalID,
				PrincipalType:    link.PrincipalType,
				PermissionSetArn: arn,
				CorrelationID:    correlationID,
			})
		})
	}
	if err := group.Wait(); err != nil {
		return n.surface(ctx, "Error processing sync trigger", event.PermissionSetName, correlationID, err)
	}
	log.WithField("links", len(links)).Info("Sync fan-out resolved")
	return nil
}

// routeLink feeds one link into scope resolution on behalf of an already
// resolved principal. A link whose permission set has no provider arn
// yet is skipped; the sync fan-out picks it up once the set exists.
func (n *Normalizer) routeLink(ctx context.Context, link *models.Link, principalID string, action models.OperationAction, correlationID string) error {
	arn, err := n.arns.Get(ctx, link.PermissionSetName)
	if err != nil {
		return fmt.Errorf("failed to look up permission set arn: %w", err)
	}
	if len(arn) == 0 {
		logrus.WithFields(logrus.Fields{
			"permissionSetName": link.PermissionSetName,
			"entityId":          link.EntityID,
		}).Info("Permission set not yet created, link deferred to sync")
		return nil
	}
	return n.scopes.Resolve(ctx, resolver.ScopeRequest{
		Action:           action,
		EntityType:       link.EntityType,
		EntityData:       link.EntityData,
		InstanceArn:      n.instanceArn,
		PrincipalID:      principalID,
		PrincipalType:    link.PrincipalType,
		PermissionSetArn: arn,
		CorrelationID:    correlationID,
	})
}

func (n *Normalizer) emitForAccount(ctx context.Context, links []models.Link, action models.OperationAction, accountID, correlationID string) error {
	return n.emitForAccountWithLookup(ctx, links, action, accountID, models.NoTagLookup, correlationID)
}

// emitForAccountWithLookup submits one operation per link, targeting a
// single known account. Scope expansion is skipped on purpose; topology
// events already name the affected account.
func (n *Normalizer) emitForAccountWithLookup(ctx context.Context, links []models.Link, action models.OperationAction, accountID, tagKeyLookup, correlationID string) error {
	for i := range links {
		link := &links[i]
		arn, err := n.arns.Get(ctx, link.PermissionSetName)
		if err != nil {
			return fmt.Errorf("failed to look up permission set arn: %w", err)
		}
		if len(arn) == 0 {
			logrus.WithField("permissionSetName", link.PermissionSetName).
				Info("Permission set not yet created, link deferred to sync")
			continue
		}
		principalID, err := n.principals.ResolveID(ctx, n.identityStoreID, link.PrincipalType, link.PrincipalName)
		if err != nil {
			return err
		}
		if len(principalID) == 0 {
			logrus.WithField("principalName", link.PrincipalName).
				Warn("Link principal not found in the identity store, skipping")
			continue
		}
		if err := n.submitter.Submit(models.Operation{
			Action:           action,
			InstanceArn:      n.instanceArn,
			PrincipalID:      principalID,
			PrincipalType:    link.PrincipalType,
			PermissionSetArn: arn,
			TargetAccountID:  accountID,
			EntityType:       link.EntityType,
			TagKeyLookup:     tagKeyLookup,
			CorrelationID:    correlationID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (n *Normalizer) surface(ctx context.Context, subject, relatedData, correlationID string, err error) error {
	n.notifier.NotifyError(ctx, notify.ErrorNotification{
		Subject:       subject,
		Component:     component,
		CorrelationID: correlationID,
		RelatedData:   relatedData,
		Err:           err,
	})
	return err
}

func ensureCorrelationID(id string) string {
	if len(id) > 0 {
		return id
	}
	return uuid.NewString()
}
