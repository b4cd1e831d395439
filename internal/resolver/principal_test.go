package resolver

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitytypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantd-io/grantd/internal/awsapi"
	"github.com/grantd-io/grantd/internal/models"
)

type fakeIdentityStore struct {
	awsapi.IdentityStoreAPI

	users       map[string]string // user name -> id
	groups      map[string]string // group display name -> id
	userLookups int
}

func (f *fakeIdentityStore) ListUsers(_ context.Context, params *identitystore.ListUsersInput, _ ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error) {
	f.userLookups++
	name := aws.ToString(params.Filters[0].AttributeValue)
	id, ok := f.users[name]
	if !ok {
		return &identitystore.ListUsersOutput{}, nil
	}
	return &identitystore.ListUsersOutput{
		Users: []identitytypes.User{{UserId: aws.String(id), UserName: aws.String(name)}},
	}, nil
}

func (f *fakeIdentityStore) ListGroups(_ context.Context, params *identitystore.ListGroupsInput, _ ...func(*identitystore.Options)) (*identitystore.ListGroupsOutput, error) {
	name := aws.ToString(params.Filters[0].AttributeValue)
	id, ok := f.groups[name]
	if !ok {
		return &identitystore.ListGroupsOutput{}, nil
	}
	return &identitystore.ListGroupsOutput{
		Groups: []identitytypes.Group{{GroupId: aws.String(id), DisplayName: aws.String(name)}},
	}, nil
}

func (f *fakeIdentityStore) DescribeUser(_ context.Context, params *identitystore.DescribeUserInput, _ ...func(*identitystore.Options)) (*identitystore.DescribeUserOutput, error) {
	for name, id := range f.users {
		if id == aws.ToString(params.UserId) {
			return &identitystore.DescribeUserOutput{
				UserId:   params.UserId,
				UserName: aws.String(name),
			}, nil
		}
	}
	return &identitystore.DescribeUserOutput{UserId: params.UserId}, nil
}

func (f *fakeIdentityStore) DescribeGroup(_ context.Context, params *identitystore.DescribeGroupInput, _ ...func(*identitystore.Options)) (*identitystore.DescribeGroupOutput, error) {
	for name, id := range f.groups {
		if id == aws.ToString(params.GroupId) {
			return &identitystore.DescribeGroupOutput{
				GroupId:     params.GroupId,
				DisplayName: aws.String(name),
			}, nil
		}
	}
	return &identitystore.DescribeGroupOutput{GroupId: params.GroupId}, nil
}

const testStoreID = "d-1234567890"

func TestResolveIDCachesLookups(t *testing.T) {
	identity := &fakeIdentityStore{users: map[string]string{"alice": "user-1"}}
	p, err := NewPrincipalResolver(identity, false, "")
	require.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		id, err := p.ResolveID(ctx, testStoreID, models.PrincipalUser, "alice")
		require.NoError(t, err)
		assert.Equal(t, "user-1", id)
	}
	assert.Equal(t, 1, identity.userLookups, "repeat resolutions must hit the cache")
}

func TestResolveIDMissReturnsEmpty(t *testing.T) {
	p, err := NewPrincipalResolver(&fakeIdentityStore{}, false, "")
	require.NoError(t, err)

	id, err := p.ResolveID(context.Background(), testStoreID, models.PrincipalGroup, "ghosts")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestResolveIDRetriesWithDomainSuffix(t *testing.T) {
	identity := &fakeIdentityStore{groups: map[string]string{"platform-team@corp.example.com": "group-5"}}
	p, err := NewPrincipalResolver(identity, true, "corp.example.com")
	require.NoError(t, err)

	id, err := p.ResolveID(context.Background(), testStoreID, models.PrincipalGroup, "platform-team")
	require.NoError(t, err)
	assert.Equal(t, "group-5", id, "a bare-name miss retries with the directory domain appended")
}

func TestDisplayName(t *testing.T) {
	identity := &fakeIdentityStore{
		users:  map[string]string{"alice": "user-1"},
		groups: map[string]string{"platform-team": "group-5"},
	}
	p, err := NewPrincipalResolver(identity, false, "")
	require.NoError(t, err)

	ctx := context.Background()
	name, err := p.DisplayName(ctx, testStoreID, models.PrincipalUser, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	name, err = p.DisplayName(ctx, testStoreID, models.PrincipalGroup, "group-5")
	require.NoError(t, err)
	assert.Equal(t, "platform-team", name)

	name, err = p.DisplayName(ctx, testStoreID, models.PrincipalUser, "user-unknown")
	require.NoError(t, err)
	assert.Empty(t, name, "a vanished principal resolves to an empty name")
}
