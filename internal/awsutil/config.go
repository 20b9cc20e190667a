// Package awsutil builds the AWS clients shared by the API server and the
// lambdas.
package awsutil

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Clients bundles the service clients built from one aws.Config.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	Presign  *s3.PresignClient
	// Endpoint is non-empty when AWS_ENDPOINT_URL overrides the AWS endpoints.
	Endpoint string
}

// Load loads the AWS configuration and builds the clients, honouring
// AWS_ENDPOINT_URL (e.g. http://localstack:4566) for local runs.
func Load(ctx context.Context, region string) (Clients, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return Clients{}, err
	}
	endpoint := os.Getenv("AWS_ENDPOINT_URL")

	ddb := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // localstack
		}
	})
	return Clients{
		DynamoDB: ddb,
		S3:       s3c,
		Presign:  s3.NewPresignClient(s3c),
		Endpoint: endpoint,
	}, nil
}
