package awsapi

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/sirupsen/logrus"

	appconfig "github.com/grantd-io/grantd/internal/config"
)

// Clients bundles every AWS collaborator the engine talks to. The Admin
// client carries a higher retry budget than the rest; the provisioner's
// call path sees the highest volume.
type Clients struct {
	Admin         SSOAdminAPI
	Organizations OrganizationsAPI
	IdentityStore IdentityStoreAPI
	Tagging       TaggingAPI
	STS           *sts.Client
}

// NewClients builds all SDK clients from the application configuration.
func NewClients(ctx context.Context, cfg *appconfig.Config) (*Clients, error) {
	sdkConfig, err := LoadSDKConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	adminAttempts := cfg.AWS.AdminMaxAttempts
	ssoRegion := cfg.SSO.Region

	return &Clients{
		Admin: ssoadmin.NewFromConfig(sdkConfig, func(o *ssoadmin.Options) {
			o.Region = ssoRegion
			o.RetryMaxAttempts = adminAttempts
		}),
		Organizations: organizations.NewFromConfig(sdkConfig),
		IdentityStore: identitystore.NewFromConfig(sdkConfig, func(o *identitystore.Options) {
			o.Region = ssoRegion
		}),
		Tagging: resourcegroupstaggingapi.NewFromConfig(sdkConfig),
		STS:     sts.NewFromConfig(sdkConfig),
	}, nil
}

// CallerAccountID returns the account the resolved credentials belong
// to. The engine runs in the organization's management account, so this
// doubles as the payer account when none is configured.
func (c *Clients) CallerAccountID(ctx context.Context) (string, error) {
	identity, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	return aws.ToString(identity.Account), nil
}

// LoadSDKConfig resolves credentials the way the agent expects: a shared
// profile wins, then static keys, then the default chain.
func LoadSDKConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	awsOptions := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWS.Region),
		config.WithRetryMaxAttempts(cfg.AWS.MaxAttempts),
	}

	if len(cfg.AWS.Profile) > 0 {
		logrus.Info("Using shared AWS config profile")
		awsOptions = append(awsOptions, config.WithSharedConfigProfile(cfg.AWS.Profile))
	} else if len(cfg.AWS.AccessKeyID) > 0 && len(cfg.AWS.SecretAccessKey) > 0 {
		logrus.Info("Using static AWS credentials")
		awsOptions = append(awsOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	} else {
		logrus.Info("No AWS credentials provided, using IAM role or default profile")
	}

	// Support custom endpoint for testing (e.g., LocalStack)
	if len(cfg.AWS.Endpoint) > 0 {
		logrus.WithField("endpoint", cfg.AWS.Endpoint).Info("Using custom AWS endpoint")
		awsOptions = append(awsOptions, config.WithBaseEndpoint(cfg.AWS.Endpoint))
	}

	return config.LoadDefaultConfig(ctx, awsOptions...)
}
