package models

import (
	"sort"
)

// Tag is a permission set resource tag.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// CustomerManagedPolicy references an IAM policy that must exist in every
// target account.
type CustomerManagedPolicy struct {
	Name string `json:"Name"`
	Path string `json:"Path,omitempty"`
}

// PermissionsBoundary caps the effective permissions of a permission set.
// Exactly one of ManagedPolicyArn or CustomerManagedPolicy is set.
type PermissionsBoundary struct {
	ManagedPolicyArn      string                 `json:"ManagedPolicyArn,omitempty"`
	CustomerManagedPolicy *CustomerManagedPolicy `json:"CustomerManagedPolicyReference,omitempty"`
}

// PermissionSetDefinition is the desired state of a permission set. Name
// is the stable key; the provider ARN is assigned once on first creation
// and tracked separately in the ARN store.
type PermissionSetDefinition struct {
	Name                    string                  `json:"permissionSetName"`
	Description             string                  `json:"description,omitempty"`
	SessionDuration         string                  `json:"sessionDuration,omitempty"`
	RelayState              string                  `json:"relayState,omitempty"`
	Tags                    []Tag                   `json:"tags,omitempty"`
	ManagedPolicyArns       []string                `json:"managedPoliciesArnList,omitempty"`
	CustomerManagedPolicies []CustomerManagedPolicy `json:"customerManagedPoliciesList,omitempty"`
	InlinePolicy            string                  `json:"inlinePolicyDocument,omitempty"`
	PermissionsBoundary     *PermissionsBoundary    `json:"permissionsBoundary,omitempty"`
}

// Normalize sorts the policy lists so definitions compare as sets. List
// ordering coming from ingestion is not meaningful and must not produce
// spurious deltas.
func (d *PermissionSetDefinition) Normalize() {
	sort.Strings(d.ManagedPolicyArns)
	sort.Slice(d.CustomerManagedPolicies, func(i, j int) bool {
		a, b := d.CustomerManagedPolicies[i], d.CustomerManagedPolicies[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Path < b.Path
	})
}

// TagKeys returns the keys of all tags, for bulk untag calls.
func (d *PermissionSetDefinition) TagKeys() []string {
	keys := make([]string, 0, len(d.Tags))
	for _, tag := range d.Tags {
		keys = append(keys, tag.Key)
	}
	return keys
}

func (d *PermissionSetDefinition) IsValid() bool {
	return len(d.Name) > 0
}
