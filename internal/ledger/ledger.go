// Package ledger records grants confirmed applied at the provider and
// guards the provisioner against re-applying or re-revoking them. The
// ledger provides no locking; correctness under concurrent delivery
// comes from the per-account ordering key upstream.
package ledger

import (
	"context"

	"github.com/grantd-io/grantd/internal/models"
	"github.com/grantd-io/grantd/internal/store"
)

type Ledger struct {
	store store.LedgerStore
}

func New(ledgerStore store.LedgerStore) *Ledger {
	return &Ledger{store: ledgerStore}
}

// Exists reports whether the grant identified by key is applied.
func (l *Ledger) Exists(ctx context.Context, key models.LedgerKey) (bool, error) {
	entry, err := l.store.Get(ctx, key.String())
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// RecordCreated persists a confirmed grant. tagKeyLookup is
// models.NoTagLookup unless the grant originated from a tag scope.
func (l *Ledger) RecordCreated(ctx context.Context, key models.LedgerKey, principalType models.PrincipalType, tagKeyLookup string) error {
	return l.store.Put(ctx, models.LedgerEntry{
		Key:           key.String(),
		PrincipalType: principalType,
		TagKeyLookup:  tagKeyLookup,
	})
}

// RecordRemoved drops a confirmed revoke.
func (l *Ledger) RecordRemoved(ctx context.Context, key models.LedgerKey) error {
	return l.store.Delete(ctx, key.String())
}

// FindByTagLookup returns every applied grant that originated from the
// given tagKey^accountId scope.
func (l *Ledger) FindByTagLookup(ctx context.Context, tagKeyLookup string) ([]models.LedgerEntry, error) {
	return l.store.QueryByTagLookup(ctx, tagKeyLookup)
}

// Decision is the guard's verdict on an operation.
type Decision int

const (
	// Proceed means the operation should be dispatched to the provider.
	Proceed Decision = iota
	// SkipAlreadyApplied means a create found an existing ledger entry.
	SkipAlreadyApplied
	// SkipNotApplied means a delete found no ledger entry.
	SkipNotApplied
	// SkipPayerAccount means the target is the management account, which
	// the admin API rejects.
	SkipPayerAccount
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case SkipAlreadyApplied:
		return "skip_already_applied"
	case SkipNotApplied:
		return "skip_not_applied"
	case SkipPayerAccount:
		return "skip_payer_account"
	}
	return "unknown"
}

// Guard wraps the ledger's idempotency check and the payer-account
// no-op rule.
type Guard struct {
	ledger         *Ledger
	payerAccountID string
}

func NewGuard(l *Ledger, payerAccountID string) *Guard {
	return &Guard{ledger: l, payerAccountID: payerAccountID}
}

// Check classifies an operation before dispatch. Skips are successes;
// the desired state already holds.
func (g *Guard) Check(ctx context.Context, op *models.Operation) (Decision, error) {
	if len(g.payerAccountID) > 0 && op.TargetAccountID == g.payerAccountID {
		return SkipPayerAccount, nil
	}

	exists, err := g.ledger.Exists(ctx, models.LedgerKeyFromOperation(op))
	if err != nil {
		return Proceed, err
	}

	switch op.Action {
	case models.OperationCreate:
		if exists {
			return SkipAlreadyApplied, nil
		}
	case models.OperationDelete:
		if !exists {
			return SkipNotApplied, nil
		}
	}
	return Proceed, nil
}
