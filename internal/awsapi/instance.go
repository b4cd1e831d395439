package awsapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
)

// Instance carries the Identity Center instance identifiers every admin
// call needs.
type Instance struct {
	Arn             string
	IdentityStoreID string
}

// InstanceResolver resolves and caches the Identity Center instance.
// There is one instance per organization; resolving it on every event
// would waste a ListInstances call.
type InstanceResolver struct {
	api SSOAdminAPI

	mu       sync.Mutex
	resolved *Instance
}

func NewInstanceResolver(api SSOAdminAPI) *InstanceResolver {
	return &InstanceResolver{api: api}
}

func (r *InstanceResolver) Resolve(ctx context.Context) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved != nil {
		return *r.resolved, nil
	}

	resp, err := r.api.ListInstances(ctx, &ssoadmin.ListInstancesInput{})
	if err != nil {
		return Instance{}, fmt.Errorf("failed to list Identity Center instances: %w", err)
	}
	if len(resp.Instances) == 0 {
		return Instance{}, fmt.Errorf("no Identity Center instances found")
	}

	instance := Instance{}
	if arn := resp.Instances[0].InstanceArn; arn != nil {
		instance.Arn = *arn
	}
	if id := resp.Instances[0].IdentityStoreId; id != nil {
		instance.IdentityStoreID = *id
	}
	r.resolved = &instance
	return instance, nil
}
