// Package mainconfig holds AWS wiring shared by the binaries that fan
// notifications out to SQS and SES.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
)

// LoadAWSConfig builds the SDK config. Static keys win over the default
// chain, and AWS_ENDPOINT_OVERRIDE points SQS and SES at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.EndpointResolverWithOptions = localEndpoint(endpoint, cfg.AWSRegion)
	}
	return awsCfg, nil
}

func localEndpoint(url, region string) aws.EndpointResolverWithOptions {
	return aws.EndpointResolverWithOptionsFunc(func(service, _ string, _ ...interface{}) (aws.Endpoint, error) {
		switch service {
		case sqs.ServiceID, sesv2.ServiceID:
			return aws.Endpoint{URL: url, PartitionID: "aws", SigningRegion: region}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})
}

// NotifyClients are the AWS clients the notification dispatcher needs. A nil
// field means that transport is not configured.
type NotifyClients struct {
	SQS *sqs.Client
	SES *sesv2.Client
}

// BuildNotifyClients creates only the clients the configuration asks for:
// SQS when NOTIFICATION_QUEUE_URL is set, SES when EMAIL_PROVIDER is ses.
func BuildNotifyClients(ctx context.Context, cfg *appconfig.Config) (NotifyClients, error) {
	var clients NotifyClients
	wantSQS := strings.TrimSpace(cfg.NotificationQueueURL) != ""
	wantSES := strings.EqualFold(strings.TrimSpace(cfg.EmailProvider), "ses")
	if !wantSQS && !wantSES {
		return clients, nil
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return clients, err
	}
	if wantSQS {
		clients.SQS = sqs.NewFromConfig(awsCfg)
	}
	if wantSES {
		clients.SES = sesv2.NewFromConfig(awsCfg)
	}
	return clients, nil
}
