package models

// OperationAction is the direction of an account assignment operation.
type OperationAction string

const (
	OperationCreate OperationAction = "create"
	OperationDelete OperationAction = "delete"
)

// PrincipalType mirrors the Identity Center principal types.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "USER"
	PrincipalGroup PrincipalType = "GROUP"
)

// EntityType is the breadth of a link's target.
type EntityType string

const (
	EntityAccount    EntityType = "account"
	EntityOrgUnit    EntityType = "ou_id"
	EntityRoot       EntityType = "root"
	EntityAccountTag EntityType = "account_tag"
)

// NoTagLookup marks an operation that did not originate from a tag scope.
const NoTagLookup = "none"

// Operation is the ephemeral unit of work consumed by the grant
// provisioner. It is never persisted; handlers must tolerate redelivery.
type Operation struct {
	Action           OperationAction `json:"action"`
	InstanceArn      string          `json:"instanceArn"`
	PrincipalID      string          `json:"principalId"`
	PrincipalType    PrincipalType   `json:"principalType"`
	PermissionSetArn string          `json:"permissionSetArn"`
	TargetAccountID  string          `json:"targetAccountId"`
	EntityType       EntityType      `json:"entityType"`
	// TagKeyLookup is "tagKey^accountId" for tag-scoped operations,
	// NoTagLookup otherwise.
	TagKeyLookup  string `json:"tagKeyLookUp"`
	CorrelationID string `json:"correlationId"`
}

// OrderingKey identifies the per-account ordering domain. Operations
// sharing an ordering key must be processed in submission order.
func (o *Operation) OrderingKey() string {
	return o.TargetAccountID
}

// DeduplicationID matches the FIFO dedup scheme of the source queue:
// one in-flight operation per action/account/permission-set/principal.
func (o *Operation) DeduplicationID() string {
	return string(o.Action) + "-" + o.TargetAccountID + "-" +
		PermissionSetIDFromArn(o.PermissionSetArn) + "-" + o.PrincipalID
}
