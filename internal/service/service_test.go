package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	identitytypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantd-io/grantd/internal/awsapi"
	"github.com/grantd-io/grantd/internal/config"
	"github.com/grantd-io/grantd/internal/ledger"
	"github.com/grantd-io/grantd/internal/models"
	"github.com/grantd-io/grantd/internal/notify"
	"github.com/grantd-io/grantd/internal/store"
)

const (
	testInstanceArn = "arn:aws:sso:::instance/ssoins-1111"
	testStoreID     = "d-1234567890"
	testSetArn      = "arn:aws:sso:::permissionSet/ssoins-1111/ps-aaaa"
)

// fakeAdmin covers the admin calls the end-to-end path exercises. It is
// hit concurrently by the reconciler and the queue workers.
type fakeAdmin struct {
	awsapi.SSOAdminAPI

	mu    sync.Mutex
	calls map[string]int
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{calls: make(map[string]int)}
}

func (f *fakeAdmin) record(call string) {
	f.mu.Lock()
	f.calls[call]++
	f.mu.Unlock()
}

func (f *fakeAdmin) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeAdmin) CreatePermissionSet(_ context.Context, params *ssoadmin.CreatePermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.CreatePermissionSetOutput, error) {
	f.record("CreatePermissionSet")
	return &ssoadmin.CreatePermissionSetOutput{
		PermissionSet: &types.PermissionSet{
			Name:             params.Name,
			PermissionSetArn: aws.String(testSetArn),
		},
	}, nil
}

func (f *fakeAdmin) AttachManagedPolicyToPermissionSet(_ context.Context, _ *ssoadmin.AttachManagedPolicyToPermissionSetInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.AttachManagedPolicyToPermissionSetOutput, error) {
	f.record("AttachManagedPolicy")
	return &ssoadmin.AttachManagedPolicyToPermissionSetOutput{}, nil
}

func (f *fakeAdmin) CreateAccountAssignment(_ context.Context, _ *ssoadmin.CreateAccountAssignmentInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.CreateAccountAssignmentOutput, error) {
	f.record("CreateAccountAssignment")
	return &ssoadmin.CreateAccountAssignmentOutput{
		AccountAssignmentCreationStatus: &types.AccountAssignmentOperationStatus{
			RequestId: aws.String("req-1"),
			Status:    types.StatusValuesInProgress,
		},
	}, nil
}

func (f *fakeAdmin) DescribeAccountAssignmentCreationStatus(_ context.Context, _ *ssoadmin.DescribeAccountAssignmentCreationStatusInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.DescribeAccountAssignmentCreationStatusOutput, error) {
	return &ssoadmin.DescribeAccountAssignmentCreationStatusOutput{
		AccountAssignmentCreationStatus: &types.AccountAssignmentOperationStatus{
			RequestId: aws.String("req-1"),
			Status:    types.StatusValuesSucceeded,
		},
	}, nil
}

type fakeIdentityStore struct {
	awsapi.IdentityStoreAPI
	users map[string]string
}

func (f *fakeIdentityStore) ListUsers(_ context.Context, params *identitystore.ListUsersInput, _ ...func(*identitystore.Options)) (*identitystore.ListUsersOutput, error) {
	name := aws.ToString(params.Filters[0].AttributeValue)
	id, ok := f.users[name]
	if !ok {
		return &identitystore.ListUsersOutput{}, nil
	}
	return &identitystore.ListUsersOutput{
		Users: []identitytypes.User{{UserId: aws.String(id), UserName: aws.String(name)}},
	}, nil
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Queue.Partitions = 2
	cfg.Waiter = config.WaiterConfig{
		CreateInterval:     time.Millisecond,
		DeleteInterval:     time.Millisecond,
		MaxWait:            time.Second,
		TransportRetries:   1,
		TransportBaseDelay: time.Millisecond,
	}
	return cfg
}

func TestPermissionSetCreateFlowsThroughToLedger(t *testing.T) {
	ctx := context.Background()
	admin := newFakeAdmin()
	links := store.NewMemoryLinkStore()
	permissionSets := store.NewMemoryPermissionSetStore()
	arns := store.NewMemoryArnStore()
	ledgerStore := store.NewMemoryLedgerStore()

	// A link declared before its permission set exists; the sync fan-out
	// after creation must make it effective.
	require.NoError(t, links.Put(ctx, models.NewLink(models.EntityAccount, "111111111111", "Admins", "alice", models.PrincipalUser)))
	require.NoError(t, permissionSets.Put(ctx, models.PermissionSetDefinition{
		Name:              "Admins",
		Description:       "Full administrative access",
		ManagedPolicyArns: []string{"arn:aws:iam::aws:policy/AdministratorAccess"},
	}))

	engine, err := New(testConfig(), Collaborators{
		Admin:          admin,
		IdentityStore:  &fakeIdentityStore{users: map[string]string{"alice": "user-1"}},
		Instance:       awsapi.Instance{Arn: testInstanceArn, IdentityStoreID: testStoreID},
		Links:          links,
		PermissionSets: permissionSets,
		Arns:           arns,
		Ledger:         ledgerStore,
		Notifier:       &notify.CollectingNotifier{},
	})
	require.NoError(t, err)

	engine.Start(ctx)
	engine.PublishPermissionSetEvent(ctx, models.PermissionSetEvent{
		Action: models.PermissionSetInsert,
		Name:   "Admins",
	})
	engine.Stop()

	assert.Equal(t, 1, admin.count("CreatePermissionSet"))
	assert.Equal(t, 1, admin.count("AttachManagedPolicy"))
	assert.Equal(t, 1, admin.count("CreateAccountAssignment"),
		"the sync fan-out must carry the pre-declared link to the provider")

	arn, err := arns.Get(ctx, "Admins")
	require.NoError(t, err)
	assert.Equal(t, testSetArn, arn)

	exists, err := ledger.New(ledgerStore).Exists(ctx, models.LedgerKey{
		PrincipalID:     "user-1",
		TargetAccountID: "111111111111",
		InstanceID:      "ssoins-1111",
		PermissionSetID: "ps-aaaa",
	})
	require.NoError(t, err)
	assert.True(t, exists, "the applied grant must be recorded in the ledger")
}

func TestPublishSyncDuringStartIsSafe(t *testing.T) {
	engine, err := New(testConfig(), Collaborators{
		Admin:          newFakeAdmin(),
		IdentityStore:  &fakeIdentityStore{},
		Instance:       awsapi.Instance{Arn: testInstanceArn, IdentityStoreID: testStoreID},
		Links:          store.NewMemoryLinkStore(),
		PermissionSets: store.NewMemoryPermissionSetStore(),
		Arns:           store.NewMemoryArnStore(),
		Ledger:         store.NewMemoryLedgerStore(),
		Notifier:       &notify.CollectingNotifier{},
	})
	require.NoError(t, err)

	// The reconciler publishes sync events from handler goroutines that
	// may overlap Start; the race detector verifies the handoff.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		engine.Start(context.Background())
	}()
	go func() {
		defer wg.Done()
		engine.PublishSync(models.SyncEvent{PermissionSetName: "Admins"})
	}()
	wg.Wait()
	engine.Stop()
}

func TestNewRequiresInstanceArn(t *testing.T) {
	_, err := New(testConfig(), Collaborators{
		Links:          store.NewMemoryLinkStore(),
		PermissionSets: store.NewMemoryPermissionSetStore(),
		Arns:           store.NewMemoryArnStore(),
		Ledger:         store.NewMemoryLedgerStore(),
	})
	assert.Error(t, err)
}
