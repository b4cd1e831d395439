// Package queue provides the in-process messaging transport: an ordered,
// per-account-partitioned operation queue and a fan-out bus for
// normalized events. Operations sharing an ordering key are processed in
// submission order; distinct keys run fully in parallel.
package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/grantd-io/grantd/internal/models"
)

// PartitionFn maps an ordering key to a partition index. Collisions are
// tolerated; they only serialize unrelated accounts.
type PartitionFn func(orderingKey string) int

// TrailingCharPartition partitions on the ordering key's last character,
// matching the source system's account-suffix scheme. With account ids
// this caps effective parallelism at ten partitions.
func TrailingCharPartition(partitions int) PartitionFn {
	return func(orderingKey string) int {
		if partitions <= 1 || len(orderingKey) == 0 {
			return 0
		}
		return int(orderingKey[len(orderingKey)-1]) % partitions
	}
}

// Handler consumes one operation. It is invoked at least once per
// submitted operation and must be idempotent.
type Handler func(ctx context.Context, op models.Operation) error

// Config tunes the operation queue.
type Config struct {
	Partitions  int
	BufferSize  int
	PartitionFn PartitionFn
	// Redeliveries bounds in-partition retries of transiently failing
	// operations before the operation is dropped to the error log.
	Redeliveries  int
	RedeliveryMin time.Duration
}

// OperationQueue fans operations out to one worker goroutine per
// partition.
type OperationQueue struct {
	config     Config
	handler    Handler
	partitions []chan models.Operation

	mu       sync.Mutex
	inflight map[string]struct{}

	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewOperationQueue builds a queue; Start must be called before Submit.
func NewOperationQueue(config Config, handler Handler) *OperationQueue {
	if config.Partitions <= 0 {
		config.Partitions = 10
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 128
	}
	if config.PartitionFn == nil {
		config.PartitionFn = TrailingCharPartition(config.Partitions)
	}
	if config.Redeliveries <= 0 {
		config.Redeliveries = 3
	}
	if config.RedeliveryMin <= 0 {
		config.RedeliveryMin = 500 * time.Millisecond
	}

	partitions := make([]chan models.Operation, config.Partitions)
	for i := range partitions {
		partitions[i] = make(chan models.Operation, config.BufferSize)
	}
	return &OperationQueue{
		config:     config,
		handler:    handler,
		partitions: partitions,
		inflight:   make(map[string]struct{}),
	}
}

// Start launches the partition workers.
func (q *OperationQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	for i, partition := range q.partitions {
		q.wg.Add(1)
		go q.worker(ctx, i, partition)
	}
}

// Submit enqueues an operation on its account's partition. Duplicate
// submissions of an operation already queued or running are dropped,
// mirroring FIFO queue deduplication.
func (q *OperationQueue) Submit(op models.Operation) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("operation queue is closed")
	}
	dedupID := op.DeduplicationID()
	if _, duplicate := q.inflight[dedupID]; duplicate {
		q.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"dedupId":       dedupID,
			"correlationId": op.CorrelationID,
		}).Debug("Dropping duplicate operation")
		return nil
	}
	q.inflight[dedupID] = struct{}{}
	q.mu.Unlock()

	q.partitions[q.config.PartitionFn(op.OrderingKey())] <- op
	return nil
}

// Close stops accepting operations and waits for every partition to
// drain.
func (q *OperationQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	for _, partition := range q.partitions {
		close(partition)
	}
	q.wg.Wait()
}

func (q *OperationQueue) worker(ctx context.Context, index int, partition <-chan models.Operation) {
	defer q.wg.Done()
	for op := range partition {
		q.process(ctx, index, op)
		q.mu.Lock()
		delete(q.inflight, op.DeduplicationID())
		q.mu.Unlock()
	}
}

func (q *OperationQueue) process(ctx context.Context, index int, op models.Operation) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"partition":     index,
				"correlationId": op.CorrelationID,
				"panic":         r,
			}).Errorf("Operation handler panicked: %s", debug.Stack())
		}
	}()

	// Transient failures are redelivered in place; the ledger check makes
	// replays safe.
	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(q.config.RedeliveryMin)),
		uint64(q.config.Redeliveries),
	)
	err := backoff.Retry(func() error {
		err := q.handler(ctx, op)
		if err == nil {
			return nil
		}
		if models.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"partition":     index,
			"account":       op.TargetAccountID,
			"correlationId": op.CorrelationID,
		}).WithError(err).Error("Operation abandoned")
	}
}
