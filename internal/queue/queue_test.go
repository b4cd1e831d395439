package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantd-io/grantd/internal/models"
)

func op(action models.OperationAction, accountID, principalID string) models.Operation {
	return models.Operation{
		Action:           action,
		PrincipalID:      principalID,
		PrincipalType:    models.PrincipalUser,
		PermissionSetArn: "arn:aws:sso:::permissionSet/ssoins-1111/ps-aaaa",
		TargetAccountID:  accountID,
	}
}

func TestQueuePreservesPerAccountOrder(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	q := NewOperationQueue(Config{Partitions: 4}, func(_ context.Context, op models.Operation) error {
		mu.Lock()
		seen = append(seen, string(op.Action)+":"+op.PrincipalID)
		mu.Unlock()
		return nil
	})
	q.Start(context.Background())

	for i, action := range []models.OperationAction{
		models.OperationCreate, models.OperationDelete, models.OperationCreate,
	} {
		require.NoError(t, q.Submit(op(action, "111111111111", string(rune('a'+i)))))
	}
	q.Close()

	assert.Equal(t, []string{"create:a", "delete:b", "create:c"}, seen,
		"operations on one account must run in submission order")
}

func TestQueueDeduplicatesInflightOperations(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0

	q := NewOperationQueue(Config{Partitions: 1}, func(_ context.Context, _ models.Operation) error {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return nil
	})
	q.Start(context.Background())

	duplicate := op(models.OperationCreate, "222222222222", "user-1")
	require.NoError(t, q.Submit(duplicate))
	require.NoError(t, q.Submit(duplicate))
	close(release)
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "an in-flight duplicate must be dropped")
}

func TestQueueRedeliversTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	q := NewOperationQueue(Config{
		Partitions:    1,
		Redeliveries:  3,
		RedeliveryMin: time.Millisecond,
	}, func(_ context.Context, _ models.Operation) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return &models.TransientProviderError{Err: errors.New("throttled")}
		}
		return nil
	})
	q.Start(context.Background())

	require.NoError(t, q.Submit(op(models.OperationCreate, "333333333333", "user-1")))
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts, "transient failures redeliver in place")
}

func TestQueueDoesNotRetryTerminalFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	q := NewOperationQueue(Config{Partitions: 1, RedeliveryMin: time.Millisecond}, func(_ context.Context, _ models.Operation) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return &models.ValidationError{Component: "test", Reason: "bad"}
	})
	q.Start(context.Background())

	require.NoError(t, q.Submit(op(models.OperationCreate, "444444444444", "user-1")))
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts, "terminal failures must not redeliver")
}

func TestTrailingCharPartition(t *testing.T) {
	partition := TrailingCharPartition(10)
	assert.Equal(t, partition("111111111110"), partition("222222222220"),
		"accounts sharing a suffix digit share a partition")
	assert.Equal(t, 0, partition(""), "empty key maps to partition zero")
}
