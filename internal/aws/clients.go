package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// AWSClients bundles all service clients for convenience.
type AWSClients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// NewAWSClients loads AWS config and returns concrete service clients that implement our interfaces.
func NewAWSClients(ctx context.Context, region, endpoint string) (*AWSClients, error) {
	cfg, err := LoadAWSConfig(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}

	return &AWSClients{
		DynamoDB:   dynamodb.NewFromConfig(cfg),
		SQS:        sqs.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}, nil
}

// ObjectStoreOptions point an S3 client at a MinIO (or any S3-compatible) server.
type ObjectStoreOptions struct {
	Host      string
	Port      int
	Secure    bool
	AccessKey string
	SecretKey string
	Region    string
}

// Endpoint returns the scheme://host:port the object store is reached on.
func (o ObjectStoreOptions) Endpoint() string {
	scheme := "http"
	if o.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port)
}

// NewPresignClient builds a path-style S3 presigner with static credentials.
// MinIO does not serve virtual-hosted bucket addressing by default.
func NewPresignClient(o ObjectStoreOptions) *s3.PresignClient {
	region := o.Region
	if region == "" {
		region = defaultRegion
	}
	client := s3.New(s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, ""),
		BaseEndpoint: sdkaws.String(o.Endpoint()),
		UsePathStyle: true,
	})
	return s3.NewPresignClient(client)
}
