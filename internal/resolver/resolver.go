// Package resolver expands scope descriptors into concrete per-account
// operations. Organization-wide enumerations stream page by page; the
// full account list is never materialized.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	taggingtypes "github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"
	"github.com/sirupsen/logrus"

	"github.com/grantd-io/grantd/internal/awsapi"
	"github.com/grantd-io/grantd/internal/ledger"
	"github.com/grantd-io/grantd/internal/models"
)

// Submitter accepts resolved operations, ordered per target account.
type Submitter interface {
	Submit(op models.Operation) error
}

// ScopeRequest describes one link-level action to expand. The principal
// is resolved before expansion; every emitted operation shares it.
type ScopeRequest struct {
	Action           models.OperationAction
	EntityType       models.EntityType
	EntityData       string
	InstanceArn      string
	PrincipalID      string
	PrincipalType    models.PrincipalType
	PermissionSetArn string
	CorrelationID    string
}

type Resolver struct {
	orgs            awsapi.OrganizationsAPI
	tagging         awsapi.TaggingAPI
	ledger          *ledger.Ledger
	submitter       Submitter
	pageSize        int32
	supportNestedOU bool
}

func New(orgs awsapi.OrganizationsAPI, tagging awsapi.TaggingAPI, grantLedger *ledger.Ledger, submitter Submitter, pageSize int32, supportNestedOU bool) *Resolver {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Resolver{
		orgs:            orgs,
		tagging:         tagging,
		ledger:          grantLedger,
		submitter:       submitter,
		pageSize:        pageSize,
		supportNestedOU: supportNestedOU,
	}
}

// Resolve expands the request into one operation per concrete account
// and submits each to the ordered queue.
func (r *Resolver) Resolve(ctx context.Context, req ScopeRequest) error {
	switch req.EntityType {
	case models.EntityAccount:
		return r.emit(req, req.EntityData, models.NoTagLookup)
	case models.EntityRoot:
		return r.resolveRoot(ctx, req)
	case models.EntityOrgUnit:
		return r.resolveOrgUnit(ctx, req, req.EntityData)
	case models.EntityAccountTag:
		return r.resolveTag(ctx, req)
	default:
		return &models.ValidationError{
			Component:   "resolver",
			RelatedData: req.EntityData,
			Reason:      fmt.Sprintf("unknown entity type %q", req.EntityType),
		}
	}
}

func (r *Resolver) resolveRoot(ctx context.Context, req ScopeRequest) error {
	paginator := organizations.NewListAccountsPaginator(r.orgs, &organizations.ListAccountsInput{
		MaxResults: aws.Int32(r.pageSize),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list organization accounts: %w", err)
		}
		for _, account := range page.Accounts {
			if err := r.emit(req, aws.ToString(account.Id), models.NoTagLookup); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveOrgUnit emits one operation per account under the unit. With
// nested-OU support on, child units are walked depth first; each level
// stays paginated.
func (r *Resolver) resolveOrgUnit(ctx context.Context, req ScopeRequest, ouID string) error {
	pending := []string{ouID}
	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		accounts := organizations.NewListAccountsForParentPaginator(r.orgs, &organizations.ListAccountsForParentInput{
			ParentId:   aws.String(current),
			MaxResults: aws.Int32(r.pageSize),
		})
		for accounts.HasMorePages() {
			page, err := accounts.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("failed to list accounts for parent %s: %w", current, err)
			}
			for _, account := range page.Accounts {
				if err := r.emit(req, aws.ToString(account.Id), models.NoTagLookup); err != nil {
					return err
				}
			}
		}

		if !r.supportNestedOU {
			continue
		}
		children := organizations.NewListOrganizationalUnitsForParentPaginator(r.orgs, &organizations.ListOrganizationalUnitsForParentInput{
			ParentId:   aws.String(current),
			MaxResults: aws.Int32(r.pageSize),
		})
		for children.HasMorePages() {
			page, err := children.NextPage(ctx)
			if err != nil {
				return fmt.Errorf("failed to list child units for %s: %w", current, err)
			}
			for _, unit := range page.OrganizationalUnits {
				pending = append(pending, aws.ToString(unit.Id))
			}
		}
	}
	return nil
}

func (r *Resolver) resolveTag(ctx context.Context, req ScopeRequest) error {
	tagKey, tagValue, ok := strings.Cut(req.EntityData, "^")
	if !ok {
		return &models.ValidationError{
			Component:   "resolver",
			RelatedData: req.EntityData,
			Reason:      "account_tag entityData must be key^value",
		}
	}

	paginator := resourcegroupstaggingapi.NewGetResourcesPaginator(r.tagging, &resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: []string{"organizations:account"},
		ResourcesPerPage:    aws.Int32(r.pageSize),
		TagFilters: []taggingtypes.TagFilter{
			{Key: aws.String(tagKey), Values: []string{tagValue}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to search accounts by tag %s: %w", req.EntityData, err)
		}
		for _, resource := range page.ResourceTagMappingList {
			accountID := accountIDFromResourceArn(aws.ToString(resource.ResourceARN))
			if len(accountID) == 0 {
				continue
			}
			if err := r.emit(req, accountID, models.TagLookupValue(tagKey, accountID)); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeprovisionTag revokes every applied grant that was justified only by
// the removed tag. This is the one path that synthesizes deletes without
// a matching link; the desired-state record no longer justifies the
// grant.
func (r *Resolver) DeprovisionTag(ctx context.Context, tagKey, accountID, correlationID string) error {
	lookup := models.TagLookupValue(tagKey, accountID)
	entries, err := r.ledger.FindByTagLookup(ctx, lookup)
	if err != nil {
		return fmt.Errorf("failed ledger lookup for %s: %w", lookup, err)
	}
	if len(entries) == 0 {
		logrus.WithField("tagKeyLookup", lookup).
			Debug("No provisioned grants for removed tag, nothing to deprovision")
		return nil
	}

	for _, entry := range entries {
		key, err := models.ParseLedgerKey(entry.Key)
		if err != nil {
			return &models.ValidationError{
				Component:   "resolver",
				RelatedData: entry.Key,
				Reason:      err.Error(),
			}
		}
		op := models.Operation{
			Action:           models.OperationDelete,
			InstanceArn:      fmt.Sprintf("arn:aws:sso:::instance/%s", key.InstanceID),
			PrincipalID:      key.PrincipalID,
			PrincipalType:    entry.PrincipalType,
			PermissionSetArn: key.PermissionSetArn(),
			TargetAccountID:  accountID,
			EntityType:       models.EntityAccountTag,
			TagKeyLookup:     lookup,
			CorrelationID:    correlationID,
		}
		if err := r.submitter.Submit(op); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) emit(req ScopeRequest, targetAccountID, tagKeyLookup string) error {
	if req.Action != models.OperationCreate {
		// Deletes through a tag scope keep their reverse-lookup key so a
		// redelivered revoke still matches the ledger entry.
		if req.EntityType != models.EntityAccountTag {
			tagKeyLookup = models.NoTagLookup
		}
	}
	return r.submitter.Submit(models.Operation{
		Action:           req.Action,
		InstanceArn:      req.InstanceArn,
		PrincipalID:      req.PrincipalID,
		PrincipalType:    req.PrincipalType,
		PermissionSetArn: req.PermissionSetArn,
		TargetAccountID:  targetAccountID,
		EntityType:       req.EntityType,
		TagKeyLookup:     tagKeyLookup,
		CorrelationID:    req.CorrelationID,
	})
}

func accountIDFromResourceArn(arn string) string {
	// arn:aws:organizations::111:account/o-xxxx/222222222222
	idx := strings.LastIndex(arn, "/")
	if idx < 0 || idx == len(arn)-1 {
		return ""
	}
	return arn[idx+1:]
}
