package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/config"
	"github.com/helixdata/onboard-engine/pkg/repositories"
)

// AppCredentials is the provisioned identity for an application.
type AppCredentials struct {
	APIKey   string
	APIKeyID string
	AppID    string
}

// GatewayAPI is the subset of the API Gateway client used for key
// provisioning.
type GatewayAPI interface {
	CreateApiKey(ctx context.Context, params *apigateway.CreateApiKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateApiKeyOutput, error)
	GetUsagePlan(ctx context.Context, params *apigateway.GetUsagePlanInput, optFns ...func(*apigateway.Options)) (*apigateway.GetUsagePlanOutput, error)
	GetUsagePlanKeys(ctx context.Context, params *apigateway.GetUsagePlanKeysInput, optFns ...func(*apigateway.Options)) (*apigateway.GetUsagePlanKeysOutput, error)
	CreateUsagePlanKey(ctx context.Context, params *apigateway.CreateUsagePlanKeyInput, optFns ...func(*apigateway.Options)) (*apigateway.CreateUsagePlanKeyOutput, error)
}

// CredentialService provisions API keys and application ids, and keeps
// keys associated with the configured usage plan.
type CredentialService interface {
	// Provision returns the credentials for the application: freshly
	// created for a first-time onboarding, the stored ones for an
	// update. In both cases the key ends up associated with the usage
	// plan; association is idempotent.
	Provision(ctx context.Context, appName string, isUpdate bool) (*AppCredentials, error)
}

type credentialService struct {
	gateway GatewayAPI
	apps    repositories.AppRepository
	cfg     *config.Config
	logger  *zap.Logger
}

// NewCredentialService creates a credential provisioning service.
func NewCredentialService(gateway GatewayAPI, apps repositories.AppRepository, cfg *config.Config, logger *zap.Logger) CredentialService {
	return &credentialService{
		gateway: gateway,
		apps:    apps,
		cfg:     cfg,
		logger:  logger.Named("credentials"),
	}
}

func (s *credentialService) Provision(ctx context.Context, appName string, isUpdate bool) (*AppCredentials, error) {
	creds, err := s.resolve(ctx, appName, isUpdate)
	if err != nil {
		return nil, err
	}

	if err := s.associateWithUsagePlan(ctx, creds.APIKeyID); err != nil {
		return nil, err
	}
	return creds, nil
}

func (s *credentialService) resolve(ctx context.Context, appName string, isUpdate bool) (*AppCredentials, error) {
	if isUpdate {
		app, err := s.apps.Get(ctx, appName)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials for %q: %w", appName, err)
		}
		if app.APIKey == "" || app.APIKeyID == "" {
			return nil, fmt.Errorf("application %q has no stored API key", appName)
		}
		return &AppCredentials{APIKey: app.APIKey, APIKeyID: app.APIKeyID, AppID: app.AppID}, nil
	}

	keyName := fmt.Sprintf("%s-%s-%s", s.cfg.ProductName, s.cfg.EnvIdentifier, appName)
	out, err := s.gateway.CreateApiKey(ctx, &apigateway.CreateApiKeyInput{
		Name:    aws.String(keyName),
		Enabled: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API key %q: %w", keyName, err)
	}

	s.logger.Info("created API key", zap.String("app_name", appName), zap.String("key_name", keyName))
	return &AppCredentials{
		APIKey:   aws.ToString(out.Value),
		APIKeyID: aws.ToString(out.Id),
		AppID:    uuid.New().String(),
	}, nil
}

// associateWithUsagePlan attaches the key to the configured usage plan.
// Already-associated keys are left alone so repeated updates never fail
// on a conflict.
func (s *credentialService) associateWithUsagePlan(ctx context.Context, keyID string) error {
	planID := s.cfg.AWS.UsagePlanID
	if planID == "" {
		return nil
	}

	if _, err := s.gateway.GetUsagePlan(ctx, &apigateway.GetUsagePlanInput{UsagePlanId: aws.String(planID)}); err != nil {
		return fmt.Errorf("usage plan %q is not accessible: %w", planID, err)
	}

	associated, err := s.keyAssociated(ctx, planID, keyID)
	if err != nil {
		return err
	}
	if associated {
		return nil
	}

	_, err = s.gateway.CreateUsagePlanKey(ctx, &apigateway.CreateUsagePlanKeyInput{
		UsagePlanId: aws.String(planID),
		KeyId:       aws.String(keyID),
		KeyType:     aws.String(s.cfg.AWS.UsagePlanKeyType),
	})
	if err != nil {
		return fmt.Errorf("failed to associate key with usage plan %q: %w", planID, err)
	}

	s.logger.Info("associated API key with usage plan",
		zap.String("usage_plan_id", planID),
		zap.String("key_id", keyID))
	return nil
}

func (s *credentialService) keyAssociated(ctx context.Context, planID, keyID string) (bool, error) {
	var position *string
	for {
		out, err := s.gateway.GetUsagePlanKeys(ctx, &apigateway.GetUsagePlanKeysInput{
			UsagePlanId: aws.String(planID),
			Position:    position,
		})
		if err != nil {
			return false, fmt.Errorf("failed to list usage plan keys for %q: %w", planID, err)
		}
		for _, key := range out.Items {
			if aws.ToString(key.Id) == keyID {
				return true, nil
			}
		}
		if out.Position == nil || aws.ToString(out.Position) == "" {
			return false, nil
		}
		position = out.Position
	}
}
