package models

import "strings"

// Link is the desired-state record binding a principal to a permission
// set over a scope. Links are owned by the ingestion layer; the engine
// only reads them.
type Link struct {
	// EntityID is the unique link key, rendered as
	// entityType%entityData%permissionSetName%principalName%principalType.
	EntityID          string        `json:"awsEntityId" gorm:"primaryKey;column:entity_id"`
	EntityType        EntityType    `json:"awsEntityType" gorm:"column:entity_type"`
	EntityData        string        `json:"awsEntityData" gorm:"column:entity_data;index"`
	PermissionSetName string        `json:"permissionSetName" gorm:"column:permission_set_name;index"`
	PrincipalName     string        `json:"principalName" gorm:"column:principal_name;index"`
	PrincipalType     PrincipalType `json:"principalType" gorm:"column:principal_type"`
}

const linkDelimiter = "%"

// NewLink builds a link with its derived entity id.
func NewLink(entityType EntityType, entityData, permissionSetName, principalName string, principalType PrincipalType) Link {
	return Link{
		EntityID: strings.Join([]string{
			string(entityType), entityData, permissionSetName, principalName, string(principalType),
		}, linkDelimiter),
		EntityType:        entityType,
		EntityData:        entityData,
		PermissionSetName: permissionSetName,
		PrincipalName:     principalName,
		PrincipalType:     principalType,
	}
}

// TagKeyValue splits an account_tag link's entityData ("key^value").
func (l *Link) TagKeyValue() (key, value string) {
	parts := strings.SplitN(l.EntityData, "^", 2)
	if len(parts) != 2 {
		return l.EntityData, ""
	}
	return parts[0], parts[1]
}

func (l *Link) IsValid() bool {
	switch l.EntityType {
	case EntityAccount, EntityOrgUnit, EntityRoot, EntityAccountTag:
	default:
		return false
	}
	return len(l.EntityData) > 0 && len(l.PermissionSetName) > 0 && len(l.PrincipalName) > 0
}
