// Package lambdaboot wires the optional AWS collaborators: the image bucket,
// the session archive table and the SSM-held Gemini key.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/gemini-image-orchestrator/internal/auth"
	"github.com/fpang/gemini-image-orchestrator/internal/s3util"
	"github.com/fpang/gemini-image-orchestrator/internal/store"
)

// DefaultAPIKeyParam is the SSM parameter read when SSM_API_KEY_PARAM is unset.
const DefaultAPIKeyParam = "/imagegen/prod/gemini-api-key"

// ParameterGetter is the subset of *ssm.Client used by LoadGeminiKey.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadAWSConfig loads the default AWS config.
func LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// NewSink creates an S3 image sink for bucket. It returns nil when bucket
// is empty.
func NewSink(cfg aws.Config, bucket string) *s3util.Sink {
	if bucket == "" {
		return nil
	}
	client := s3.NewFromConfig(cfg)
	return s3util.NewSink(client, s3.NewPresignClient(client), bucket)
}

// NewArchive creates the DynamoDB session archive for table. It returns nil
// when table is empty.
func NewArchive(cfg aws.Config, table string) (*store.DynamoArchive, error) {
	if table == "" {
		log.Debug().Msg("Sessions table not set, archive disabled")
		return nil, nil
	}
	return store.NewDynamoArchive(dynamodb.NewFromConfig(cfg), table)
}

// NewSSM creates an SSM client.
func NewSSM(cfg aws.Config) *ssm.Client {
	return ssm.NewFromConfig(cfg)
}

// LoadGeminiKey fetches the Gemini API key from SSM Parameter Store unless
// GEMINI_API_KEY is already set, and exports it for auth.GetAPIKey.
func LoadGeminiKey(ctx context.Context, client ParameterGetter) error {
	if os.Getenv(auth.APIKeyEnv) != "" {
		return nil
	}
	paramName := os.Getenv("SSM_API_KEY_PARAM")
	if paramName == "" {
		paramName = DefaultAPIKeyParam
	}

	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("read API key from SSM %s: %w", paramName, err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil || *result.Parameter.Value == "" {
		return fmt.Errorf("SSM parameter %s is empty", paramName)
	}
	if err := os.Setenv(auth.APIKeyEnv, *result.Parameter.Value); err != nil {
		return fmt.Errorf("export API key: %w", err)
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return nil
}
