package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
)

// AncestorChain walks upward from parentID through ListParents until the
// organization root, returning the OU ids from nearest to farthest. The
// root itself is excluded; root-scoped links already cover every account.
// Without nested-OU support the chain is just the direct parent.
func (r *Resolver) AncestorChain(ctx context.Context, parentID string) ([]string, error) {
	if isRootID(parentID) {
		return nil, nil
	}
	if !r.supportNestedOU {
		return []string{parentID}, nil
	}

	chain := []string{parentID}
	current := parentID
	for {
		out, err := r.orgs.ListParents(ctx, &organizations.ListParentsInput{
			ChildId: aws.String(current),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list parents of %s: %w", current, err)
		}
		if len(out.Parents) == 0 {
			return chain, nil
		}
		parent := aws.ToString(out.Parents[0].Id)
		if isRootID(parent) {
			return chain, nil
		}
		chain = append(chain, parent)
		current = parent
	}
}

// MoveDelta computes the grant scope change for an account move. The
// returned slices preserve chain order; OUs present in both chains keep
// their grants untouched.
func (r *Resolver) MoveDelta(ctx context.Context, oldParentID, newParentID string) (toRemove, toAdd []string, err error) {
	oldChain, err := r.AncestorChain(ctx, oldParentID)
	if err != nil {
		return nil, nil, err
	}
	newChain, err := r.AncestorChain(ctx, newParentID)
	if err != nil {
		return nil, nil, err
	}

	newSet := make(map[string]struct{}, len(newChain))
	for _, id := range newChain {
		newSet[id] = struct{}{}
	}
	oldSet := make(map[string]struct{}, len(oldChain))
	for _, id := range oldChain {
		oldSet[id] = struct{}{}
	}

	for _, id := range oldChain {
		if _, ok := newSet[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range newChain {
		if _, ok := oldSet[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	return toRemove, toAdd, nil
}

func isRootID(id string) bool {
	return strings.HasPrefix(id, "r-")
}
