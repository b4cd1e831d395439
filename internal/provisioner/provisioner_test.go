package provisioner

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
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

// fakeAdmin implements the assignment slice of the admin API. Methods
// not overridden panic through the embedded nil interface.
type fakeAdmin struct {
	awsapi.SSOAdminAPI

	createCalls  int
	deleteCalls  int
	createStatus types.StatusValues
	deleteStatus types.StatusValues
	failureText  string
}

func (f *fakeAdmin) CreateAccountAssignment(_ context.Context, _ *ssoadmin.CreateAccountAssignmentInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.CreateAccountAssignmentOutput, error) {
	f.createCalls++
	return &ssoadmin.CreateAccountAssignmentOutput{
		AccountAssignmentCreationStatus: &types.AccountAssignmentOperationStatus{
			RequestId: aws.String("req-create-1"),
			Status:    types.StatusValuesInProgress,
		},
	}, nil
}

func (f *fakeAdmin) DescribeAccountAssignmentCreationStatus(_ context.Context, _ *ssoadmin.DescribeAccountAssignmentCreationStatusInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.DescribeAccountAssignmentCreationStatusOutput, error) {
	return &ssoadmin.DescribeAccountAssignmentCreationStatusOutput{
		AccountAssignmentCreationStatus: &types.AccountAssignmentOperationStatus{
			RequestId:     aws.String("req-create-1"),
			Status:        f.createStatus,
			FailureReason: aws.String(f.failureText),
		},
	}, nil
}

func (f *fakeAdmin) DeleteAccountAssignment(_ context.Context, _ *ssoadmin.DeleteAccountAssignmentInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.DeleteAccountAssignmentOutput, error) {
	f.deleteCalls++
	return &ssoadmin.DeleteAccountAssignmentOutput{
		AccountAssignmentDeletionStatus: &types.AccountAssignmentOperationStatus{
			RequestId: aws.String("req-delete-1"),
			Status:    types.StatusValuesInProgress,
		},
	}, nil
}

func (f *fakeAdmin) DescribeAccountAssignmentDeletionStatus(_ context.Context, _ *ssoadmin.DescribeAccountAssignmentDeletionStatusInput, _ ...func(*ssoadmin.Options)) (*ssoadmin.DescribeAccountAssignmentDeletionStatusOutput, error) {
	return &ssoadmin.DescribeAccountAssignmentDeletionStatusOutput{
		AccountAssignmentDeletionStatus: &types.AccountAssignmentOperationStatus{
			RequestId: aws.String("req-delete-1"),
			Status:    f.deleteStatus,
		},
	}, nil
}

func fastWaiterConfig() config.WaiterConfig {
	return config.WaiterConfig{
		CreateInterval:     time.Millisecond,
		DeleteInterval:     time.Millisecond,
		MaxWait:            time.Second,
		TransportRetries:   1,
		TransportBaseDelay: time.Millisecond,
	}
}

func newTestProvisioner(admin *fakeAdmin, payerAccountID string) (*Provisioner, *ledger.Ledger, *notify.CollectingNotifier) {
	grantLedger := ledger.New(store.NewMemoryLedgerStore())
	guard := ledger.NewGuard(grantLedger, payerAccountID)
	notifier := &notify.CollectingNotifier{}
	return New(admin, guard, grantLedger, notifier, fastWaiterConfig()), grantLedger, notifier
}

func assignmentOp(action models.OperationAction) models.Operation {
	return models.Operation{
		Action:           action,
		InstanceArn:      "arn:aws:sso:::instance/ssoins-1111",
		PrincipalID:      "user-1",
		PrincipalType:    models.PrincipalUser,
		PermissionSetArn: "arn:aws:sso:::permissionSet/ssoins-1111/ps-aaaa",
		TargetAccountID:  "111111111111",
		EntityType:       models.EntityAccount,
		TagKeyLookup:     models.NoTagLookup,
	}
}

func TestProcessCreateRecordsLedgerEntry(t *testing.T) {
	ctx := context.Background()
	admin := &fakeAdmin{createStatus: types.StatusValuesSucceeded}
	p, grantLedger, _ := newTestProvisioner(admin, "")

	op := assignmentOp(models.OperationCreate)
	require.NoError(t, p.Process(ctx, op))
	assert.Equal(t, 1, admin.createCalls)

	exists, err := grantLedger.Exists(ctx, models.LedgerKeyFromOperation(&op))
	require.NoError(t, err)
	assert.True(t, exists, "successful create must be recorded")
}

func TestProcessCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	admin := &fakeAdmin{createStatus: types.StatusValuesSucceeded}
	p, _, _ := newTestProvisioner(admin, "")

	op := assignmentOp(models.OperationCreate)
	require.NoError(t, p.Process(ctx, op))
	require.NoError(t, p.Process(ctx, op))

	assert.Equal(t, 1, admin.createCalls, "replayed create must not reach the provider")
}

func TestProcessDeleteOnAbsentGrantIsNoOp(t *testing.T) {
	admin := &fakeAdmin{deleteStatus: types.StatusValuesSucceeded}
	p, _, _ := newTestProvisioner(admin, "")

	require.NoError(t, p.Process(context.Background(), assignmentOp(models.OperationDelete)))
	assert.Zero(t, admin.deleteCalls, "delete of an unrecorded grant must not reach the provider")
}

func TestProcessDeleteRemovesLedgerEntry(t *testing.T) {
	ctx := context.Background()
	admin := &fakeAdmin{createStatus: types.StatusValuesSucceeded, deleteStatus: types.StatusValuesSucceeded}
	p, grantLedger, _ := newTestProvisioner(admin, "")

	createOp := assignmentOp(models.OperationCreate)
	require.NoError(t, p.Process(ctx, createOp))
	require.NoError(t, p.Process(ctx, assignmentOp(models.OperationDelete)))

	assert.Equal(t, 1, admin.deleteCalls)
	exists, err := grantLedger.Exists(ctx, models.LedgerKeyFromOperation(&createOp))
	require.NoError(t, err)
	assert.False(t, exists, "successful revoke must clear the ledger entry")
}

func TestProcessSkipsPayerAccount(t *testing.T) {
	admin := &fakeAdmin{createStatus: types.StatusValuesSucceeded}
	p, _, _ := newTestProvisioner(admin, "111111111111")

	require.NoError(t, p.Process(context.Background(), assignmentOp(models.OperationCreate)))
	assert.Zero(t, admin.createCalls, "payer account operations never reach the provider")
}

func TestProcessSurfacesTerminalFailure(t *testing.T) {
	ctx := context.Background()
	admin := &fakeAdmin{createStatus: types.StatusValuesFailed, failureText: "principal does not exist"}
	p, grantLedger, notifier := newTestProvisioner(admin, "")

	op := assignmentOp(models.OperationCreate)
	err := p.Process(ctx, op)
	require.Error(t, err)

	var opErr *models.AsyncOperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "principal does not exist", opErr.Reason)

	exists, lookupErr := grantLedger.Exists(ctx, models.LedgerKeyFromOperation(&op))
	require.NoError(t, lookupErr)
	assert.False(t, exists, "failed create must leave the ledger untouched")
	assert.Len(t, notifier.Notifications(), 1, "failures must reach the error channel")
}
