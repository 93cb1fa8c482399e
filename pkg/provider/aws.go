package provider

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"
)

var ErrNoCredentials = errors.New("AWS credentials not found")

// Identity describes the caller behind the configured credentials.
type Identity struct {
	Account string
	Arn     string
	Source  string
}

// Access reports what the model service returned for the configured region.
type Access struct {
	Region       string
	ModelCount   int
	ModelOffered bool
}

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type BedrockAPI interface {
	ListFoundationModels(ctx context.Context, params *bedrock.ListFoundationModelsInput, optFns ...func(*bedrock.Options)) (*bedrock.ListFoundationModelsOutput, error)
}

// AWSVerifier checks credentials and Bedrock access before any workflow runs.
type AWSVerifier struct {
	cfg     aws.Config
	sts     STSAPI
	bedrock BedrockAPI
}

// LoadAWSConfig resolves the default credential chain for a region.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "load AWS config")
	}
	return cfg, nil
}

func NewAWSVerifier(cfg aws.Config) *AWSVerifier {
	return &AWSVerifier{
		cfg:     cfg,
		sts:     sts.NewFromConfig(cfg),
		bedrock: bedrock.NewFromConfig(cfg),
	}
}

// NewAWSVerifierWithClients is used when the API clients are supplied by the caller.
func NewAWSVerifierWithClients(cfg aws.Config, stsClient STSAPI, bedrockClient BedrockAPI) *AWSVerifier {
	return &AWSVerifier{cfg: cfg, sts: stsClient, bedrock: bedrockClient}
}

// VerifyCredentials retrieves credentials from the chain and confirms them with STS.
func (v *AWSVerifier) VerifyCredentials(ctx context.Context) (Identity, error) {
	if v.cfg.Credentials == nil {
		return Identity{}, ErrNoCredentials
	}
	creds, err := v.cfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return Identity{}, errors.Wrap(ErrNoCredentials, errMessage(err))
	}
	out, err := v.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, errors.Wrap(err, "get caller identity")
	}
	return Identity{
		Account: aws.ToString(out.Account),
		Arn:     aws.ToString(out.Arn),
		Source:  creds.Source,
	}, nil
}

// CheckAccess lists foundation models and reports whether modelID is among them.
// Cross-region inference profile ids ("us.anthropic...") are matched on the base model id.
func (v *AWSVerifier) CheckAccess(ctx context.Context, modelID string) (Access, error) {
	out, err := v.bedrock.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return Access{}, errors.Wrap(err, "list foundation models")
	}
	base := BaseModelID(modelID)
	access := Access{Region: v.cfg.Region, ModelCount: len(out.ModelSummaries)}
	for _, m := range out.ModelSummaries {
		if aws.ToString(m.ModelId) == base {
			access.ModelOffered = true
			break
		}
	}
	return access, nil
}

// BaseModelID strips a geographic inference profile prefix from a model id.
func BaseModelID(modelID string) string {
	for _, prefix := range []string{"us.", "eu.", "apac.", "us-gov."} {
		if strings.HasPrefix(modelID, prefix) {
			return strings.TrimPrefix(modelID, prefix)
		}
	}
	return modelID
}

func errMessage(err error) string {
	if err == nil {
		return "empty credentials"
	}
	return err.Error()
}
