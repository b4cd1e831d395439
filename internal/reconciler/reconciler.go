// Package reconciler applies permission set definition changes to the
// admin API: create, structural diff-and-apply update, delete. Whether a
// change forces reprovisioning is threaded through as a return value so
// each call stays pure.
package reconciler

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/sirupsen/logrus"

	"github.com/grantd-io/grantd/internal/awsapi"
	"github.com/grantd-io/grantd/internal/config"
	"github.com/grantd-io/grantd/internal/models"
	"github.com/grantd-io/grantd/internal/notify"
	"github.com/grantd-io/grantd/internal/provisioner"
	"github.com/grantd-io/grantd/internal/store"
)

const component = "reconciler"

// SyncPublisher receives the fan-out trigger after a reconciliation that
// did not reprovision existing assignments.
type SyncPublisher interface {
	PublishSync(event models.SyncEvent)
}

type Reconciler struct {
	admin       awsapi.SSOAdminAPI
	arns        store.ArnStore
	sync        SyncPublisher
	notifier    notify.Notifier
	waiter      config.WaiterConfig
	instanceArn string
}

func New(admin awsapi.SSOAdminAPI, arns store.ArnStore, sync SyncPublisher, notifier notify.Notifier, waiterConfig config.WaiterConfig, instanceArn string) *Reconciler {
	return &Reconciler{
		admin:       admin,
		arns:        arns,
		sync:        sync,
		notifier:    notifier,
		waiter:      waiterConfig,
		instanceArn: instanceArn,
	}
}

// Create provisions a new permission set and all of its attachments,
// then records the name to ARN mapping and triggers a Sync fan-out.
// Attachments apply in a fixed order; the first failure aborts the rest.
func (r *Reconciler) Create(ctx context.Context, definition *models.PermissionSetDefinition, correlationID string) (string, error) {
	log := logrus.WithFields(logrus.Fields{
		"permissionSetName": definition.Name,
		"correlationId":     correlationID,
	})

	input := &ssoadmin.CreatePermissionSetInput{
		InstanceArn: aws.String(r.instanceArn),
		Name:        aws.String(definition.Name),
	}
	if len(definition.Description) > 0 {
		input.Description = aws.String(definition.Description)
	}
	if len(definition.SessionDuration) > 0 {
		input.SessionDuration = aws.String(definition.SessionDuration)
	}
	if len(definition.RelayState) > 0 {
		input.RelayState = aws.String(definition.RelayState)
	}

	created, err := r.admin.CreatePermissionSet(ctx, input)
	if err != nil {
		return "", r.surface(ctx, definition.Name, correlationID, fmt.Errorf("failed to create permission set: %w", err))
	}
	arn := aws.ToString(created.PermissionSet.PermissionSetArn)
	log = log.WithField("permissionSetArn", arn)

	if err := r.arns.Put(ctx, definition.Name, arn); err != nil {
		return "", r.surface(ctx, definition.Name, correlationID, fmt.Errorf("failed to record permission set arn: %w", err))
	}

	if len(definition.Tags) > 0 {
		if _, err := r.admin.TagResource(ctx, &ssoadmin.TagResourceInput{
			InstanceArn: aws.String(r.instanceArn),
			ResourceArn: aws.String(arn),
			Tags:        toProviderTags(definition.Tags),
		}); err != nil {
			return "", r.surface(ctx, definition.Name, correlationID, fmt.Errorf("failed to tag permission set: %w", err))
		}
	}

	for _, policyArn := range definition.ManagedPolicyArns {
		if err := r.attachManagedPolicy(ctx, arn, policyArn); err != nil {
			return "", r.surface(ctx, definition.Name, correlationID, err)
		}
	}
	for i := range definition.CustomerManagedPolicies {
		if err := r.attachCustomerManagedPolicy(ctx, arn, &definition.CustomerManagedPolicies[i]); err != nil {
			return "", r.surface(ctx, definition.Name, correlationID, err)
		}
	}
	if len(definition.InlinePolicy) > 0 {
		if err := r.putInlinePolicy(ctx, arn, definition.InlinePolicy); err != nil {
			return "", r.surface(ctx, definition.Name, correlationID, err)
		}
	}
	if definition.PermissionsBoundary != nil {
		if err := r.putBoundary(ctx, arn, definition.PermissionsBoundary); err != nil {
			return "", r.surface(ctx, definition.Name, correlationID, err)
		}
	}

	log.Info("Permission set created")
	r.sync.PublishSync(models.SyncEvent{
		PermissionSetName: definition.Name,
		PermissionSetArn:  arn,
		CorrelationID:     correlationID,
	})
	return arn, nil
}

// Update diffs old against updated and applies only the difference. When
// a change alters effective permissions and the set is assigned to at
// least one account, the provider reprovisions every assigned account
// and the call blocks until that finishes; otherwise a Sync fan-out is
// triggered.
func (r *Reconciler) Update(ctx context.Context, old, updated *models.PermissionSetDefinition, correlationID string) error {
	log := logrus.WithFields(logrus.Fields{
		"permissionSetName": updated.Name,
		"correlationId":     correlationID,
	})

	arn, err := r.arns.Get(ctx, updated.Name)
	if err != nil {
		return r.surface(ctx, updated.Name, correlationID, fmt.Errorf("failed to look up permission set arn: %w", err))
	}
	if len(arn) == 0 {
		return r.surface(ctx, updated.Name, correlationID, &models.ValidationError{
			Component:   component,
			RelatedData: updated.Name,
			Reason:      "no provider arn recorded for permission set",
		})
	}

	changes := Diff(old, updated)
	if len(changes) == 0 {
		log.Debug("Permission set unchanged, nothing to apply")
		return nil
	}

	reprovision, err := r.apply(ctx, arn, old, updated, changes)
	if err != nil {
		return r.surface(ctx, updated.Name, correlationID, err)
	}

	if reprovision {
		assigned, err := r.hasAssignedAccounts(ctx, arn)
		if err != nil {
			return r.surface(ctx, updated.Name, correlationID, err)
		}
		if assigned {
			if err := r.reprovisionAll(ctx, arn, updated.Name); err != nil {
				return r.surface(ctx, updated.Name, correlationID, err)
			}
			log.WithField("changes", len(changes)).Info("Permission set updated and reprovisioned")
			return nil
		}
	}

	log.WithField("changes", len(changes)).Info("Permission set updated")
	r.sync.PublishSync(models.SyncEvent{
		PermissionSetName: updated.Name,
		PermissionSetArn:  arn,
		CorrelationID:     correlationID,
	})
	return nil
}

// Delete removes the set at the provider and drops the ARN mapping. A
// missing mapping means the set was never created or is already gone;
// that is treated as success.
func (r *Reconciler) Delete(ctx context.Context, name, correlationID string) error {
	log := logrus.WithFields(logrus.Fields{
		"permissionSetName": name,
		"correlationId":     correlationID,
	})

	arn, err := r.arns.Get(ctx, name)
	if err != nil {
		return r.surface(ctx, name, correlationID, fmt.Errorf("failed to look up permission set arn: %w", err))
	}
	if len(arn) == 0 {
		log.Info("No provider arn recorded, permission set treated as already deleted")
		return nil
	}

	if _, err := r.admin.DeletePermissionSet(ctx, &ssoadmin.DeletePermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
	}); err != nil {
		return r.surface(ctx, name, correlationID, fmt.Errorf("failed to delete permission set: %w", err))
	}
	if err := r.arns.Delete(ctx, name); err != nil {
		return r.surface(ctx, name, correlationID, fmt.Errorf("failed to drop permission set arn mapping: %w", err))
	}

	log.Info("Permission set deleted")
	r.sync.PublishSync(models.SyncEvent{
		PermissionSetName: name,
		PermissionSetArn:  arn,
		CorrelationID:     correlationID,
	})
	return nil
}

// apply dispatches each change to the matching admin call. The returned
// flag reports whether any change alters effective permissions in target
// accounts. Application stops at the first error; no rollback.
func (r *Reconciler) apply(ctx context.Context, arn string, old, updated *models.PermissionSetDefinition, changes []Change) (bool, error) {
	reprovision := false
	attributesDirty := false

	for _, change := range changes {
		switch change.Field {
		case FieldDescription, FieldSessionDuration, FieldRelayState:
			// Attribute edits apply instance-wide through the update
			// call; they never require reprovisioning assigned accounts.
			attributesDirty = true

		case FieldManagedPolicy:
			reprovision = true
			var err error
			if change.Kind == ChangeRemove {
				err = r.detachManagedPolicy(ctx, arn, change.ManagedPolicyArn)
			} else {
				err = r.attachManagedPolicy(ctx, arn, change.ManagedPolicyArn)
			}
			if err != nil {
				return false, err
			}

		case FieldCustomerManagedPolicy:
			reprovision = true
			var err error
			if change.Kind == ChangeRemove {
				err = r.detachCustomerManagedPolicy(ctx, arn, change.CustomerManagedPolicy)
			} else {
				err = r.attachCustomerManagedPolicy(ctx, arn, change.CustomerManagedPolicy)
			}
			if err != nil {
				return false, err
			}

		case FieldInlinePolicy:
			reprovision = true
			var err error
			if change.Kind == ChangeRemove {
				_, err = r.admin.DeleteInlinePolicyFromPermissionSet(ctx, &ssoadmin.DeleteInlinePolicyFromPermissionSetInput{
					InstanceArn:      aws.String(r.instanceArn),
					PermissionSetArn: aws.String(arn),
				})
			} else {
				err = r.putInlinePolicy(ctx, arn, updated.InlinePolicy)
			}
			if err != nil {
				return false, fmt.Errorf("failed to apply inline policy change: %w", err)
			}

		case FieldPermissionsBoundary:
			reprovision = true
			var err error
			if change.Kind == ChangeRemove {
				_, err = r.admin.DeletePermissionsBoundaryFromPermissionSet(ctx, &ssoadmin.DeletePermissionsBoundaryFromPermissionSetInput{
					InstanceArn:      aws.String(r.instanceArn),
					PermissionSetArn: aws.String(arn),
				})
			} else {
				err = r.putBoundary(ctx, arn, updated.PermissionsBoundary)
			}
			if err != nil {
				return false, fmt.Errorf("failed to apply permissions boundary change: %w", err)
			}

		case FieldTags:
			// Tags never change effective permissions; reprovision is
			// left as-is.
			if err := r.replaceTags(ctx, arn, old.TagKeys(), updated.Tags); err != nil {
				return false, err
			}

		default:
			return false, &models.ValidationError{
				Component:   component,
				RelatedData: updated.Name,
				Reason:      fmt.Sprintf("unknown diff field %q", change.Field),
			}
		}
	}

	if attributesDirty {
		input := &ssoadmin.UpdatePermissionSetInput{
			InstanceArn:      aws.String(r.instanceArn),
			PermissionSetArn: aws.String(arn),
			Description:      aws.String(updated.Description),
		}
		if len(updated.SessionDuration) > 0 {
			input.SessionDuration = aws.String(updated.SessionDuration)
		}
		if len(updated.RelayState) > 0 {
			input.RelayState = aws.String(updated.RelayState)
		}
		if _, err := r.admin.UpdatePermissionSet(ctx, input); err != nil {
			return false, fmt.Errorf("failed to update permission set attributes: %w", err)
		}
	}

	return reprovision, nil
}

// replaceTags drops every previous key and reapplies the new set. Tag
// counts are bounded by the provider at 50 per resource.
func (r *Reconciler) replaceTags(ctx context.Context, arn string, oldKeys []string, tags []models.Tag) error {
	if len(oldKeys) > 0 {
		if _, err := r.admin.UntagResource(ctx, &ssoadmin.UntagResourceInput{
			InstanceArn: aws.String(r.instanceArn),
			ResourceArn: aws.String(arn),
			TagKeys:     oldKeys,
		}); err != nil {
			return fmt.Errorf("failed to untag permission set: %w", err)
		}
	}
	if len(tags) > 0 {
		if _, err := r.admin.TagResource(ctx, &ssoadmin.TagResourceInput{
			InstanceArn: aws.String(r.instanceArn),
			ResourceArn: aws.String(arn),
			Tags:        toProviderTags(tags),
		}); err != nil {
			return fmt.Errorf("failed to tag permission set: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) attachManagedPolicy(ctx context.Context, arn, policyArn string) error {
	if _, err := r.admin.AttachManagedPolicyToPermissionSet(ctx, &ssoadmin.AttachManagedPolicyToPermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
		ManagedPolicyArn: aws.String(policyArn),
	}); err != nil {
		return fmt.Errorf("failed to attach managed policy %s: %w", policyArn, err)
	}
	return nil
}

func (r *Reconciler) detachManagedPolicy(ctx context.Context, arn, policyArn string) error {
	if _, err := r.admin.DetachManagedPolicyFromPermissionSet(ctx, &ssoadmin.DetachManagedPolicyFromPermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
		ManagedPolicyArn: aws.String(policyArn),
	}); err != nil {
		return fmt.Errorf("failed to detach managed policy %s: %w", policyArn, err)
	}
	return nil
}

func (r *Reconciler) attachCustomerManagedPolicy(ctx context.Context, arn string, policy *models.CustomerManagedPolicy) error {
	if _, err := r.admin.AttachCustomerManagedPolicyReferenceToPermissionSet(ctx, &ssoadmin.AttachCustomerManagedPolicyReferenceToPermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
		CustomerManagedPolicyReference: &types.CustomerManagedPolicyReference{
			Name: aws.String(policy.Name),
			Path: optionalString(policy.Path),
		},
	}); err != nil {
		return fmt.Errorf("failed to attach customer managed policy %s: %w", policy.Name, err)
	}
	return nil
}

func (r *Reconciler) detachCustomerManagedPolicy(ctx context.Context, arn string, policy *models.CustomerManagedPolicy) error {
	if _, err := r.admin.DetachCustomerManagedPolicyReferenceFromPermissionSet(ctx, &ssoadmin.DetachCustomerManagedPolicyReferenceFromPermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
		CustomerManagedPolicyReference: &types.CustomerManagedPolicyReference{
			Name: aws.String(policy.Name),
			Path: optionalString(policy.Path),
		},
	}); err != nil {
		return fmt.Errorf("failed to detach customer managed policy %s: %w", policy.Name, err)
	}
	return nil
}

func (r *Reconciler) putInlinePolicy(ctx context.Context, arn, document string) error {
	if _, err := r.admin.PutInlinePolicyToPermissionSet(ctx, &ssoadmin.PutInlinePolicyToPermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
		InlinePolicy:     aws.String(document),
	}); err != nil {
		return fmt.Errorf("failed to put inline policy: %w", err)
	}
	return nil
}

func (r *Reconciler) putBoundary(ctx context.Context, arn string, boundary *models.PermissionsBoundary) error {
	providerBoundary := &types.PermissionsBoundary{}
	if len(boundary.ManagedPolicyArn) > 0 {
		providerBoundary.ManagedPolicyArn = aws.String(boundary.ManagedPolicyArn)
	} else if boundary.CustomerManagedPolicy != nil {
		providerBoundary.CustomerManagedPolicyReference = &types.CustomerManagedPolicyReference{
			Name: aws.String(boundary.CustomerManagedPolicy.Name),
			Path: optionalString(boundary.CustomerManagedPolicy.Path),
		}
	}
	if _, err := r.admin.PutPermissionsBoundaryToPermissionSet(ctx, &ssoadmin.PutPermissionsBoundaryToPermissionSetInput{
		InstanceArn:         aws.String(r.instanceArn),
		PermissionSetArn:    aws.String(arn),
		PermissionsBoundary: providerBoundary,
	}); err != nil {
		return fmt.Errorf("failed to put permissions boundary: %w", err)
	}
	return nil
}

func (r *Reconciler) hasAssignedAccounts(ctx context.Context, arn string) (bool, error) {
	out, err := r.admin.ListAccountsForProvisionedPermissionSet(ctx, &ssoadmin.ListAccountsForProvisionedPermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
		MaxResults:       aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list assigned accounts: %w", err)
	}
	return len(out.AccountIds) > 0, nil
}

func (r *Reconciler) reprovisionAll(ctx context.Context, arn, name string) error {
	dispatch, err := r.admin.ProvisionPermissionSet(ctx, &ssoadmin.ProvisionPermissionSetInput{
		InstanceArn:      aws.String(r.instanceArn),
		PermissionSetArn: aws.String(arn),
		TargetType:       types.ProvisionTargetTypeAllProvisionedAccounts,
	})
	if err != nil {
		return fmt.Errorf("failed to start reprovisioning: %w", err)
	}
	requestID := aws.ToString(dispatch.PermissionSetProvisioningStatus.RequestId)

	waiter := &provisioner.Waiter{
		InitialDelay:       r.waiter.InitialDelay,
		Interval:           r.waiter.CreateInterval,
		MaxWait:            r.waiter.MaxWait,
		TransportRetries:   r.waiter.TransportRetries,
		TransportBaseDelay: r.waiter.TransportBaseDelay,
	}
	outcome, reason, err := waiter.Wait(ctx, func(ctx context.Context) (provisioner.PollResult, error) {
		status, err := r.admin.DescribePermissionSetProvisioningStatus(ctx, &ssoadmin.DescribePermissionSetProvisioningStatusInput{
			InstanceArn:                     aws.String(r.instanceArn),
			ProvisionPermissionSetRequestId: aws.String(requestID),
		})
		if err != nil {
			return provisioner.PollResult{}, err
		}
		return provisioner.PollResult{
			Status: string(status.PermissionSetProvisioningStatus.Status),
			Reason: aws.ToString(status.PermissionSetProvisioningStatus.FailureReason),
		}, nil
	})
	if err != nil {
		return fmt.Errorf("reprovisioning waiter for request %s failed closed: %w", requestID, err)
	}

	switch outcome {
	case provisioner.OutcomeSucceeded:
		return nil
	case provisioner.OutcomeTimedOut:
		return &models.AsyncOperationTimeout{
			Component:   component,
			RequestID:   requestID,
			RelatedData: name,
		}
	default:
		return &models.AsyncOperationError{
			Component:   component,
			RequestID:   requestID,
			RelatedData: name,
			Reason:      reason,
		}
	}
}

func (r *Reconciler) surface(ctx context.Context, name, correlationID string, err error) error {
	r.notifier.NotifyError(ctx, notify.ErrorNotification{
		Subject:       "Error reconciling permission set",
		Component:     component,
		CorrelationID: correlationID,
		RelatedData:   name,
		Err:           err,
	})
	return err
}

func toProviderTags(tags []models.Tag) []types.Tag {
	result := make([]types.Tag, 0, len(tags))
	for _, tag := range tags {
		result = append(result, types.Tag{
			Key:   aws.String(tag.Key),
			Value: aws.String(tag.Value),
		})
	}
	return result
}

func optionalString(s string) *string {
	if len(s) == 0 {
		return nil
	}
	return aws.String(s)
}
