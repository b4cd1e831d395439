// Package provisioner issues account assignment creates and revokes
// against the admin API, drives the waiter to completion, and updates
// the ledger. It is the only writer of ledger entries.
package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/sirupsen/logrus"

	"github.com/grantd-io/grantd/internal/awsapi"
	"github.com/grantd-io/grantd/internal/config"
	"github.com/grantd-io/grantd/internal/ledger"
	"github.com/grantd-io/grantd/internal/models"
	"github.com/grantd-io/grantd/internal/notify"
)

const component = "provisioner"

type Provisioner struct {
	admin    awsapi.SSOAdminAPI
	guard    *ledger.Guard
	ledger   *ledger.Ledger
	notifier notify.Notifier
	waiter   config.WaiterConfig
}

func New(admin awsapi.SSOAdminAPI, guard *ledger.Guard, grantLedger *ledger.Ledger, notifier notify.Notifier, waiterConfig config.WaiterConfig) *Provisioner {
	return &Provisioner{
		admin:    admin,
		guard:    guard,
		ledger:   grantLedger,
		notifier: notifier,
		waiter:   waiterConfig,
	}
}

// Process consumes one operation from the queue. Redelivery is safe:
// the guard re-checks the ledger on every invocation.
func (p *Provisioner) Process(ctx context.Context, op models.Operation) error {
	key := models.LedgerKeyFromOperation(&op)
	log := logrus.WithFields(logrus.Fields{
		"ledgerKey":     key.String(),
		"action":        op.Action,
		"correlationId": op.CorrelationID,
	})
	log.Info("Operation received")

	decision, err := p.guard.Check(ctx, &op)
	if err != nil {
		return p.surface(ctx, &op, fmt.Errorf("ledger check failed: %w", err))
	}
	if decision != ledger.Proceed {
		log.WithField("decision", decision.String()).Info("Operation skipped as a no-op")
		return nil
	}

	switch op.Action {
	case models.OperationCreate:
		err = p.create(ctx, &op, key)
	case models.OperationDelete:
		err = p.delete(ctx, &op, key)
	default:
		err = &models.ValidationError{
			Component:   component,
			RelatedData: key.String(),
			Reason:      fmt.Sprintf("unknown action %q", op.Action),
		}
	}
	if err != nil {
		return p.surface(ctx, &op, err)
	}

	log.Info("Operation completed")
	return nil
}

func (p *Provisioner) create(ctx context.Context, op *models.Operation, key models.LedgerKey) error {
	dispatch, err := p.admin.CreateAccountAssignment(ctx, &ssoadmin.CreateAccountAssignmentInput{
		InstanceArn:      aws.String(op.InstanceArn),
		PermissionSetArn: aws.String(op.PermissionSetArn),
		PrincipalId:      aws.String(op.PrincipalID),
		PrincipalType:    types.PrincipalType(op.PrincipalType),
		TargetId:         aws.String(op.TargetAccountID),
		TargetType:       types.TargetTypeAwsAccount,
	})
	if err != nil {
		return fmt.Errorf("failed to create account assignment: %w", err)
	}

	requestID := aws.ToString(dispatch.AccountAssignmentCreationStatus.RequestId)
	waiter := p.newWaiter(p.waiter.CreateInterval)
	outcome, reason, err := waiter.Wait(ctx, func(ctx context.Context) (PollResult, error) {
		status, err := p.admin.DescribeAccountAssignmentCreationStatus(ctx, &ssoadmin.DescribeAccountAssignmentCreationStatusInput{
			InstanceArn:                        aws.String(op.InstanceArn),
			AccountAssignmentCreationRequestId: aws.String(requestID),
		})
		if err != nil {
			return PollResult{}, err
		}
		return PollResult{
			Status: string(status.AccountAssignmentCreationStatus.Status),
			Reason: aws.ToString(status.AccountAssignmentCreationStatus.FailureReason),
		}, nil
	})
	if err := p.outcomeError(outcome, reason, requestID, key, err); err != nil {
		return err
	}

	if err := p.ledger.RecordCreated(ctx, key, op.PrincipalType, op.TagKeyLookup); err != nil {
		return fmt.Errorf("grant applied but ledger update failed: %w", err)
	}
	return nil
}

func (p *Provisioner) delete(ctx context.Context, op *models.Operation, key models.LedgerKey) error {
	dispatch, err := p.admin.DeleteAccountAssignment(ctx, &ssoadmin.DeleteAccountAssignmentInput{
		InstanceArn:      aws.String(op.InstanceArn),
		PermissionSetArn: aws.String(op.PermissionSetArn),
		PrincipalId:      aws.String(op.PrincipalID),
		PrincipalType:    types.PrincipalType(op.PrincipalType),
		TargetId:         aws.String(op.TargetAccountID),
		TargetType:       types.TargetTypeAwsAccount,
	})
	if err != nil {
		return fmt.Errorf("failed to delete account assignment: %w", err)
	}

	requestID := aws.ToString(dispatch.AccountAssignmentDeletionStatus.RequestId)
	waiter := p.newWaiter(p.waiter.DeleteInterval)
	outcome, reason, err := waiter.Wait(ctx, func(ctx context.Context) (PollResult, error) {
		status, err := p.admin.DescribeAccountAssignmentDeletionStatus(ctx, &ssoadmin.DescribeAccountAssignmentDeletionStatusInput{
			InstanceArn:                        aws.String(op.InstanceArn),
			AccountAssignmentDeletionRequestId: aws.String(requestID),
		})
		if err != nil {
			return PollResult{}, err
		}
		return PollResult{
			Status: string(status.AccountAssignmentDeletionStatus.Status),
			Reason: aws.ToString(status.AccountAssignmentDeletionStatus.FailureReason),
		}, nil
	})
	if err := p.outcomeError(outcome, reason, requestID, key, err); err != nil {
		return err
	}

	if err := p.ledger.RecordRemoved(ctx, key); err != nil {
		return fmt.Errorf("grant revoked but ledger update failed: %w", err)
	}
	return nil
}

func (p *Provisioner) newWaiter(interval time.Duration) *Waiter {
	return &Waiter{
		InitialDelay:       p.waiter.InitialDelay,
		Interval:           interval,
		MaxWait:            p.waiter.MaxWait,
		TransportRetries:   p.waiter.TransportRetries,
		TransportBaseDelay: p.waiter.TransportBaseDelay,
	}
}

// outcomeError maps a waiter result onto the error taxonomy. The ledger
// is deliberately left untouched on failure and timeout so a later pass
// can re-attempt.
func (p *Provisioner) outcomeError(outcome Outcome, reason, requestID string, key models.LedgerKey, waitErr error) error {
	if waitErr != nil {
		return fmt.Errorf("waiter for request %s failed closed: %w", requestID, waitErr)
	}
	switch outcome {
	case OutcomeSucceeded:
		return nil
	case OutcomeTimedOut:
		return &models.AsyncOperationTimeout{
			Component:   component,
			RequestID:   requestID,
			RelatedData: key.String(),
		}
	default:
		return &models.AsyncOperationError{
			Component:   component,
			RequestID:   requestID,
			RelatedData: key.String(),
			Reason:      reason,
		}
	}
}

// surface classifies a failure and posts it to the error channel before
// handing it back to the queue worker.
func (p *Provisioner) surface(ctx context.Context, op *models.Operation, err error) error {
	p.notifier.NotifyError(ctx, notify.ErrorNotification{
		Subject:       "Error processing link provisioning operation",
		Component:     component,
		CorrelationID: op.CorrelationID,
		RelatedData:   models.LedgerKeyFromOperation(op).String(),
		Err:           err,
	})
	return err
}
