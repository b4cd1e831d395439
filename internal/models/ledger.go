package models

import (
	"fmt"
	"strings"
)

// LedgerKey identifies one applied grant. Its string form
// principalId@accountId@instanceId@permissionSetId carries enough to
// rebuild the permission set ARN during tag-based deprovisioning.
type LedgerKey struct {
	PrincipalID     string
	TargetAccountID string
	InstanceID      string
	PermissionSetID string
}

const ledgerDelimiter = "@"

// LedgerKeyFromOperation derives the ledger key for an operation.
func LedgerKeyFromOperation(op *Operation) LedgerKey {
	instanceID, permissionSetID := splitPermissionSetArn(op.PermissionSetArn)
	return LedgerKey{
		PrincipalID:     op.PrincipalID,
		TargetAccountID: op.TargetAccountID,
		InstanceID:      instanceID,
		PermissionSetID: permissionSetID,
	}
}

// ParseLedgerKey is the inverse of LedgerKey.String.
func ParseLedgerKey(s string) (LedgerKey, error) {
	parts := strings.Split(s, ledgerDelimiter)
	if len(parts) != 4 {
		return LedgerKey{}, fmt.Errorf("malformed ledger key: %s", s)
	}
	return LedgerKey{
		PrincipalID:     parts[0],
		TargetAccountID: parts[1],
		InstanceID:      parts[2],
		PermissionSetID: parts[3],
	}, nil
}

func (k LedgerKey) String() string {
	return strings.Join([]string{
		k.PrincipalID, k.TargetAccountID, k.InstanceID, k.PermissionSetID,
	}, ledgerDelimiter)
}

// PermissionSetArn rebuilds the provider ARN recorded in the key.
func (k LedgerKey) PermissionSetArn() string {
	return fmt.Sprintf("arn:aws:sso:::permissionSet/%s/%s", k.InstanceID, k.PermissionSetID)
}

// LedgerEntry records a grant confirmed applied at the provider. It is
// created only after a successful create and removed only after a
// successful revoke; its existence is the idempotency check.
type LedgerEntry struct {
	Key           string        `json:"parentLink" gorm:"primaryKey;column:parent_link"`
	PrincipalType PrincipalType `json:"principalType" gorm:"column:principal_type"`
	// TagKeyLookup is "tagKey^accountId" when the grant originated from a
	// tag-scoped link; used only for reverse lookup on tag removal.
	TagKeyLookup string `json:"tagKeyLookUp" gorm:"column:tag_key_lookup;index"`
}

// TagLookupValue renders the reverse-lookup key for a tag on an account.
func TagLookupValue(tagKey, accountID string) string {
	return tagKey + "^" + accountID
}

// PermissionSetIDFromArn extracts the trailing ps- identifier of a
// permission set ARN.
func PermissionSetIDFromArn(arn string) string {
	_, id := splitPermissionSetArn(arn)
	return id
}

func splitPermissionSetArn(arn string) (instanceID, permissionSetID string) {
	parts := strings.Split(arn, "/")
	if len(parts) >= 3 {
		return parts[1], parts[2]
	}
	return "", arn
}
