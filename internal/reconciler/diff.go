package reconciler

import (
	"github.com/grantd-io/grantd/internal/models"
)

// Field names the part of a permission set definition a change touches.
type Field string

const (
	FieldDescription           Field = "description"
	FieldSessionDuration       Field = "sessionDuration"
	FieldRelayState            Field = "relayState"
	FieldManagedPolicy         Field = "managedPolicy"
	FieldCustomerManagedPolicy Field = "customerManagedPolicy"
	FieldInlinePolicy          Field = "inlinePolicy"
	FieldPermissionsBoundary   Field = "permissionsBoundary"
	FieldTags                  Field = "tags"
)

// ChangeKind is the direction of a change.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeRemove ChangeKind = "remove"
	ChangeUpdate ChangeKind = "update"
)

// Change is one element of a structural diff between two permission set
// definitions. Policy changes carry their payload; attribute and tag
// changes are applied from the new definition wholesale.
type Change struct {
	Field Field
	Kind  ChangeKind

	ManagedPolicyArn      string
	CustomerManagedPolicy *models.CustomerManagedPolicy
}

// Diff computes the minimal change list turning old into updated. Policy
// lists compare as sets; ordering differences produce no changes.
func Diff(old, updated *models.PermissionSetDefinition) []Change {
	oldCopy, newCopy := *old, *updated
	oldCopy.Normalize()
	newCopy.Normalize()

	var changes []Change

	if oldCopy.Description != newCopy.Description {
		changes = append(changes, Change{Field: FieldDescription, Kind: ChangeUpdate})
	}
	if oldCopy.SessionDuration != newCopy.SessionDuration {
		changes = append(changes, Change{Field: FieldSessionDuration, Kind: ChangeUpdate})
	}
	if oldCopy.RelayState != newCopy.RelayState {
		changes = append(changes, Change{Field: FieldRelayState, Kind: ChangeUpdate})
	}

	changes = append(changes, diffManagedPolicies(oldCopy.ManagedPolicyArns, newCopy.ManagedPolicyArns)...)
	changes = append(changes, diffCustomerManagedPolicies(oldCopy.CustomerManagedPolicies, newCopy.CustomerManagedPolicies)...)

	changes = append(changes, diffInlinePolicy(oldCopy.InlinePolicy, newCopy.InlinePolicy)...)
	changes = append(changes, diffBoundary(oldCopy.PermissionsBoundary, newCopy.PermissionsBoundary)...)

	if !tagsEqual(oldCopy.Tags, newCopy.Tags) {
		changes = append(changes, Change{Field: FieldTags, Kind: ChangeUpdate})
	}

	return changes
}

func diffManagedPolicies(old, updated []string) []Change {
	oldSet := make(map[string]struct{}, len(old))
	for _, arn := range old {
		oldSet[arn] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(updated))
	for _, arn := range updated {
		newSet[arn] = struct{}{}
	}

	var changes []Change
	for _, arn := range old {
		if _, ok := newSet[arn]; !ok {
			changes = append(changes, Change{Field: FieldManagedPolicy, Kind: ChangeRemove, ManagedPolicyArn: arn})
		}
	}
	for _, arn := range updated {
		if _, ok := oldSet[arn]; !ok {
			changes = append(changes, Change{Field: FieldManagedPolicy, Kind: ChangeAdd, ManagedPolicyArn: arn})
		}
	}
	return changes
}

func diffCustomerManagedPolicies(old, updated []models.CustomerManagedPolicy) []Change {
	key := func(p models.CustomerManagedPolicy) string { return p.Path + "|" + p.Name }
	oldSet := make(map[string]struct{}, len(old))
	for _, p := range old {
		oldSet[key(p)] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(updated))
	for _, p := range updated {
		newSet[key(p)] = struct{}{}
	}

	var changes []Change
	for i := range old {
		if _, ok := newSet[key(old[i])]; !ok {
			policy := old[i]
			changes = append(changes, Change{Field: FieldCustomerManagedPolicy, Kind: ChangeRemove, CustomerManagedPolicy: &policy})
		}
	}
	for i := range updated {
		if _, ok := oldSet[key(updated[i])]; !ok {
			policy := updated[i]
			changes = append(changes, Change{Field: FieldCustomerManagedPolicy, Kind: ChangeAdd, CustomerManagedPolicy: &policy})
		}
	}
	return changes
}

func diffInlinePolicy(old, updated string) []Change {
	switch {
	case len(old) == 0 && len(updated) > 0:
		return []Change{{Field: FieldInlinePolicy, Kind: ChangeAdd}}
	case len(old) > 0 && len(updated) == 0:
		return []Change{{Field: FieldInlinePolicy, Kind: ChangeRemove}}
	case old != updated:
		return []Change{{Field: FieldInlinePolicy, Kind: ChangeUpdate}}
	}
	return nil
}

func diffBoundary(old, updated *models.PermissionsBoundary) []Change {
	switch {
	case old == nil && updated != nil:
		return []Change{{Field: FieldPermissionsBoundary, Kind: ChangeAdd}}
	case old != nil && updated == nil:
		return []Change{{Field: FieldPermissionsBoundary, Kind: ChangeRemove}}
	case old != nil && updated != nil && !boundaryEqual(old, updated):
		return []Change{{Field: FieldPermissionsBoundary, Kind: ChangeUpdate}}
	}
	return nil
}

func boundaryEqual(a, b *models.PermissionsBoundary) bool {
	if a.ManagedPolicyArn != b.ManagedPolicyArn {
		return false
	}
	switch {
	case a.CustomerManagedPolicy == nil && b.CustomerManagedPolicy == nil:
		return true
	case a.CustomerManagedPolicy == nil || b.CustomerManagedPolicy == nil:
		return false
	}
	return *a.CustomerManagedPolicy == *b.CustomerManagedPolicy
}

func tagsEqual(a, b []models.Tag) bool {
	if len(a) != len(b) {
		return false
	}
	byKey := make(map[string]string, len(a))
	for _, tag := range a {
		byKey[tag.Key] = tag.Value
	}
	for _, tag := range b {
		value, ok := byKey[tag.Key]
		if !ok || value != tag.Value {
			return false
		}
	}
	return true
}
