// Package store defines the desired/actual-state stores behind the
// reconciliation engine. Get operations return (nil, nil) on a miss so
// callers can distinguish absence from failure.
package store

import (
	"context"

	"github.com/grantd-io/grantd/internal/models"
)

// LinkStore holds desired-state links, with the secondary lookups the
// normalizers depend on.
type LinkStore interface {
	Put(ctx context.Context, link models.Link) error
	Delete(ctx context.Context, entityID string) error
	QueryByPrincipalName(ctx context.Context, principalName string) ([]models.Link, error)
	QueryByEntityData(ctx context.Context, entityData string) ([]models.Link, error)
	QueryByPermissionSetName(ctx context.Context, permissionSetName string) ([]models.Link, error)
}

// PermissionSetStore holds permission set definitions keyed by name.
type PermissionSetStore interface {
	Get(ctx context.Context, name string) (*models.PermissionSetDefinition, error)
	Put(ctx context.Context, definition models.PermissionSetDefinition) error
	Delete(ctx context.Context, name string) error
}

// ArnStore maps a permission set name to its provider-assigned ARN. The
// mapping is written once, when the set is first created.
type ArnStore interface {
	Get(ctx context.Context, name string) (string, error)
	Put(ctx context.Context, name, arn string) error
	Delete(ctx context.Context, name string) error
}

// LedgerStore persists applied grants, with the tagKeyLookup secondary
// index used by tag-removal deprovisioning.
type LedgerStore interface {
	Get(ctx context.Context, key string) (*models.LedgerEntry, error)
	Put(ctx context.Context, entry models.LedgerEntry) error
	Delete(ctx context.Context, key string) error
	QueryByTagLookup(ctx context.Context, tagKeyLookup string) ([]models.LedgerEntry, error)
}
