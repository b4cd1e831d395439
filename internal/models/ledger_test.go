package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerKeyRoundTrip(t *testing.T) {
	op := Operation{
		Action:           OperationCreate,
		PrincipalID:      "user-42",
		PrincipalType:    PrincipalUser,
		PermissionSetArn: "arn:aws:sso:::permissionSet/ssoins-1111/ps-abcd",
		TargetAccountID:  "123456789012",
	}

	key := LedgerKeyFromOperation(&op)
	assert.Equal(t, "user-42@123456789012@ssoins-1111@ps-abcd", key.String())

	parsed, err := ParseLedgerKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)
	assert.Equal(t, op.PermissionSetArn, parsed.PermissionSetArn(),
		"permission set ARN must be reconstructible from the key")
}

func TestParseLedgerKeyMalformed(t *testing.T) {
	_, err := ParseLedgerKey("user@account")
	assert.Error(t, err)
}

func TestOperationDeduplicationID(t *testing.T) {
	op := Operation{
		Action:           OperationDelete,
		PrincipalID:      "group-7",
		PermissionSetArn: "arn:aws:sso:::permissionSet/ssoins-1111/ps-abcd",
		TargetAccountID:  "123456789012",
	}
	assert.Equal(t, "delete-123456789012-ps-abcd-group-7", op.DeduplicationID())
	assert.Equal(t, "123456789012", op.OrderingKey())
}

func TestNewLinkEntityID(t *testing.T) {
	link := NewLink(EntityOrgUnit, "ou-ab12-cdef", "Admins", "platform-team", PrincipalGroup)
	assert.Equal(t, "ou_id%ou-ab12-cdef%Admins%platform-team%GROUP", link.EntityID)
	assert.True(t, link.IsValid())
}

func TestLinkTagKeyValue(t *testing.T) {
	link := NewLink(EntityAccountTag, "env^prod", "Admins", "ops", PrincipalUser)
	key, value := link.TagKeyValue()
	assert.Equal(t, "env", key)
	assert.Equal(t, "prod", value)
}
