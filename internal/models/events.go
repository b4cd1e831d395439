package models

// PrincipalEventKind distinguishes principal lifecycle notifications.
type PrincipalEventKind string

const (
	PrincipalCreated PrincipalEventKind = "created"
	PrincipalDeleted PrincipalEventKind = "deleted"
)

// PrincipalEvent is a normalized user/group lifecycle notification from
// the identity store's event stream.
type PrincipalEvent struct {
	Kind          PrincipalEventKind `json:"kind"`
	PrincipalType PrincipalType      `json:"principalType"`
	PrincipalID   string             `json:"principalId"`
	CorrelationID string             `json:"correlationId"`
}

// OrgEventKind distinguishes organization topology notifications.
type OrgEventKind string

const (
	OrgAccountCreated OrgEventKind = "account_created"
	OrgAccountMoved   OrgEventKind = "account_moved"
	OrgTagChanged     OrgEventKind = "tag_changed"
)

// OrgEvent is a normalized organization topology notification.
type OrgEvent struct {
	Kind      OrgEventKind `json:"kind"`
	AccountID string       `json:"accountId"`

	// Account move.
	OldParentID string `json:"oldParentId,omitempty"`
	NewParentID string `json:"newParentId,omitempty"`

	// Tag change. Removed reports the key no longer being present on the
	// account, regardless of its previous value.
	TagKey   string `json:"tagKey,omitempty"`
	TagValue string `json:"tagValue,omitempty"`
	Removed  bool   `json:"removed,omitempty"`

	CorrelationID string `json:"correlationId"`
}

// PermissionSetAction distinguishes permission set store changes.
type PermissionSetAction string

const (
	PermissionSetInsert PermissionSetAction = "create"
	PermissionSetModify PermissionSetAction = "update"
	PermissionSetRemove PermissionSetAction = "delete"
)

// PermissionSetEvent is a normalized permission set store change. For
// updates OldDefinition snapshots the record before the change.
type PermissionSetEvent struct {
	Action        PermissionSetAction      `json:"action"`
	Name          string                   `json:"permissionSetName"`
	OldDefinition *PermissionSetDefinition `json:"oldPermissionSetData,omitempty"`
	CorrelationID string                   `json:"correlationId"`
}

// SyncEvent is emitted after a permission set create or a
// non-reprovisioning update, so links referencing the set are
// re-resolved. This covers links declared before their permission set
// existed.
type SyncEvent struct {
	PermissionSetName string `json:"permission_set_name"`
	PermissionSetArn  string `json:"permission_set_arn"`
	CorrelationID     string `json:"correlationId"`
}
