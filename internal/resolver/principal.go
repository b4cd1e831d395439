package resolver

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitytypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/grantd-io/grantd/internal/awsapi"
	"github.com/grantd-io/grantd/internal/models"
)

const principalCacheSize = 1024

// PrincipalResolver maps directory names to principal ids. Lookups are
// cached; directory contents churn slowly relative to link traffic.
type PrincipalResolver struct {
	identity        awsapi.IdentityStoreAPI
	cache           *lru.Cache[string, string]
	domainSuffixing bool
	directoryDomain string
}

func NewPrincipalResolver(identity awsapi.IdentityStoreAPI, domainSuffixing bool, directoryDomain string) (*PrincipalResolver, error) {
	cache, err := lru.New[string, string](principalCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create principal cache: %w", err)
	}
	return &PrincipalResolver{
		identity:        identity,
		cache:           cache,
		domainSuffixing: domainSuffixing,
		directoryDomain: directoryDomain,
	}, nil
}

// ResolveID returns the principal id for a directory name, or empty when
// the directory has no such principal. AD-backed stores register group
// names with a domain suffix; when suffixing is enabled a miss on the
// bare name retries with name@domain.
func (p *PrincipalResolver) ResolveID(ctx context.Context, identityStoreID string, principalType models.PrincipalType, name string) (string, error) {
	cacheKey := string(principalType) + "/" + identityStoreID + "/" + name
	if id, ok := p.cache.Get(cacheKey); ok {
		return id, nil
	}

	id, err := p.lookup(ctx, identityStoreID, principalType, name)
	if err != nil {
		return "", err
	}
	if len(id) == 0 && p.domainSuffixing && len(p.directoryDomain) > 0 {
		id, err = p.lookup(ctx, identityStoreID, principalType, name+"@"+p.directoryDomain)
		if err != nil {
			return "", err
		}
	}
	if len(id) > 0 {
		p.cache.Add(cacheKey, id)
	}
	return id, nil
}

func (p *PrincipalResolver) lookup(ctx context.Context, identityStoreID string, principalType models.PrincipalType, name string) (string, error) {
	filterAttribute := "DisplayName"
	if principalType == models.PrincipalUser {
		filterAttribute = "UserName"
	}
	filters := []identitytypes.Filter{{
		AttributePath:  aws.String(filterAttribute),
		AttributeValue: aws.String(name),
	}}

	if principalType == models.PrincipalUser {
		out, err := p.identity.ListUsers(ctx, &identitystore.ListUsersInput{
			IdentityStoreId: aws.String(identityStoreID),
			Filters:         filters,
		})
		if err != nil {
			return "", fmt.Errorf("failed to look up user %s: %w", name, err)
		}
		if len(out.Users) == 0 {
			return "", nil
		}
		return aws.ToString(out.Users[0].UserId), nil
	}

	out, err := p.identity.ListGroups(ctx, &identitystore.ListGroupsInput{
		IdentityStoreId: aws.String(identityStoreID),
		Filters:         filters,
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up group %s: %w", name, err)
	}
	if len(out.Groups) == 0 {
		return "", nil
	}
	return aws.ToString(out.Groups[0].GroupId), nil
}

// DisplayName returns the directory name for a principal id, or empty
// when the principal no longer exists.
func (p *PrincipalResolver) DisplayName(ctx context.Context, identityStoreID string, principalType models.PrincipalType, principalID string) (string, error) {
	if principalType == models.PrincipalUser {
		out, err := p.identity.DescribeUser(ctx, &identitystore.DescribeUserInput{
			IdentityStoreId: aws.String(identityStoreID),
			UserId:          aws.String(principalID),
		})
		if err != nil {
			return "", fmt.Errorf("failed to describe user %s: %w", principalID, err)
		}
		return aws.ToString(out.UserName), nil
	}

	out, err := p.identity.DescribeGroup(ctx, &identitystore.DescribeGroupInput{
		IdentityStoreId: aws.String(identityStoreID),
		GroupId:         aws.String(principalID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe group %s: %w", principalID, err)
	}
	return aws.ToString(out.DisplayName), nil
}
