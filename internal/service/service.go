// Package service wires the reconciliation engine together: stores,
// AWS collaborators, the ordered operation queue, the event bus, and
// the normalizers feeding it.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grantd-io/grantd/internal/awsapi"
	"github.com/grantd-io/grantd/internal/config"
	"github.com/grantd-io/grantd/internal/events"
	"github.com/grantd-io/grantd/internal/ledger"
	"github.com/grantd-io/grantd/internal/models"
	"github.com/grantd-io/grantd/internal/notify"
	"github.com/grantd-io/grantd/internal/provisioner"
	"github.com/grantd-io/grantd/internal/queue"
	"github.com/grantd-io/grantd/internal/reconciler"
	"github.com/grantd-io/grantd/internal/resolver"
	"github.com/grantd-io/grantd/internal/store"
)

// Bus topics carrying normalized events.
const (
	TopicPrincipals     = "principals"
	TopicOrg            = "org"
	TopicPermissionSets = "permission_sets"
	TopicSync           = "sync"
)

// Collaborators bundles every external dependency of the engine so tests
// can substitute fakes wholesale.
type Collaborators struct {
	Admin         awsapi.SSOAdminAPI
	Organizations awsapi.OrganizationsAPI
	IdentityStore awsapi.IdentityStoreAPI
	Tagging       awsapi.TaggingAPI
	Instance      awsapi.Instance

	Links          store.LinkStore
	PermissionSets store.PermissionSetStore
	Arns           store.ArnStore
	Ledger         store.LedgerStore

	Notifier notify.Notifier
}

type Service struct {
	config     *config.Config
	bus        *queue.Bus
	operations *queue.OperationQueue
	normalizer *events.Normalizer

	// runCtx is written by Start and read by PublishSync, which the
	// reconciler may call from a handler goroutine.
	mu     sync.Mutex
	runCtx context.Context
}

// New assembles the engine from explicit collaborators. Connect builds
// the production set; tests pass fakes.
func New(cfg *config.Config, c Collaborators) (*Service, error) {
	if len(c.Instance.Arn) == 0 {
		return nil, fmt.Errorf("identity center instance arn is required")
	}
	notifier := c.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier()
	}

	s := &Service{
		config: cfg,
		bus:    queue.NewBus(),
		runCtx: context.Background(),
	}

	grantLedger := ledger.New(c.Ledger)
	guard := ledger.NewGuard(grantLedger, cfg.SSO.PayerAccountID)
	grants := provisioner.New(c.Admin, guard, grantLedger, notifier, cfg.Waiter)

	s.operations = queue.NewOperationQueue(queue.Config{
		Partitions: cfg.Queue.Partitions,
		BufferSize: cfg.Queue.BufferSize,
	}, grants.Process)

	scopes := resolver.New(c.Organizations, c.Tagging, grantLedger, s.operations, cfg.SSO.PageSize, cfg.SSO.SupportNestedOU)
	principals, err := resolver.NewPrincipalResolver(c.IdentityStore, cfg.SSO.DomainSuffixing, cfg.SSO.DirectoryDomain)
	if err != nil {
		return nil, err
	}

	rec := reconciler.New(c.Admin, c.Arns, s, notifier, cfg.Waiter, c.Instance.Arn)
	s.normalizer = events.NewNormalizer(
		c.Links, c.PermissionSets, c.Arns,
		scopes, principals, rec, s.operations, notifier,
		c.Instance.Arn, c.Instance.IdentityStoreID,
	)

	s.subscribe()
	return s, nil
}

// Connect builds the production collaborators from configuration and
// assembles the engine around them.
func Connect(ctx context.Context, cfg *config.Config) (*Service, error) {
	clients, err := awsapi.NewClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	instance, err := awsapi.NewInstanceResolver(clients.Admin).Resolve(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.SSO.PayerAccountID == "" {
		payer, err := clients.CallerAccountID(ctx)
		if err != nil {
			return nil, err
		}
		logrus.WithField("accountId", payer).Info("Using caller account as payer account")
		cfg.SSO.PayerAccountID = payer
	}

	stores, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	return New(cfg, Collaborators{
		Admin:          clients.Admin,
		Organizations:  clients.Organizations,
		IdentityStore:  clients.IdentityStore,
		Tagging:        clients.Tagging,
		Instance:       instance,
		Links:          stores,
		PermissionSets: stores.PermissionSets(),
		Arns:           stores.Arns(),
		Ledger:         stores.Ledger(),
	})
}

func (s *Service) subscribe() {
	s.bus.Subscribe(TopicPrincipals, func(ctx context.Context, message any) {
		if event, ok := message.(models.PrincipalEvent); ok {
			_ = s.normalizer.HandlePrincipalEvent(ctx, event)
		}
	})
	s.bus.Subscribe(TopicOrg, func(ctx context.Context, message any) {
		if event, ok := message.(models.OrgEvent); ok {
			_ = s.normalizer.HandleOrgEvent(ctx, event)
		}
	})
	s.bus.Subscribe(TopicPermissionSets, func(ctx context.Context, message any) {
		if event, ok := message.(models.PermissionSetEvent); ok {
			_ = s.normalizer.HandlePermissionSetEvent(ctx, event)
		}
	})
	s.bus.Subscribe(TopicSync, func(ctx context.Context, message any) {
		if event, ok := message.(models.SyncEvent); ok {
			_ = s.normalizer.HandleSyncEvent(ctx, event)
		}
	})
}

// Start launches the operation queue workers. Events published before
// Start are accepted but their operations only begin draining after it.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()
	s.operations.Start(ctx)
	logrus.WithFields(logrus.Fields{
		"partitions": s.config.Queue.Partitions,
	}).Info("Reconciliation engine started")
}

// Stop drains in-flight event deliveries and queued operations.
func (s *Service) Stop() {
	s.bus.Drain()
	s.operations.Close()
	logrus.Info("Reconciliation engine stopped")
}

// PublishPrincipalEvent hands a normalized principal lifecycle event to
// the engine.
func (s *Service) PublishPrincipalEvent(ctx context.Context, event models.PrincipalEvent) {
	s.bus.Publish(ctx, TopicPrincipals, event)
}

// PublishOrgEvent hands a normalized organization topology event to the
// engine.
func (s *Service) PublishOrgEvent(ctx context.Context, event models.OrgEvent) {
	s.bus.Publish(ctx, TopicOrg, event)
}

// PublishPermissionSetEvent hands a permission set store change to the
// engine.
func (s *Service) PublishPermissionSetEvent(ctx context.Context, event models.PermissionSetEvent) {
	s.bus.Publish(ctx, TopicPermissionSets, event)
}

// PublishSync satisfies the reconciler's fan-out hook.
func (s *Service) PublishSync(event models.SyncEvent) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	s.bus.Publish(ctx, TopicSync, event)
}

// Drain blocks until every published event has been handled. Queued
// operations may still be in flight; tests pair this with Stop.
func (s *Service) Drain() {
	s.bus.Drain()
}
