package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/mosajjal/logrelay/pkg/hec"
	"github.com/mosajjal/logrelay/pkg/sink"
	"github.com/mosajjal/logrelay/pkg/sink/stdout"
	"github.com/mosajjal/logrelay/pkg/storage"
	s3storage "github.com/mosajjal/logrelay/pkg/storage/s3"
	log "github.com/sirupsen/logrus"
)

const secretARNPrefix = "arn:aws:secretsmanager:"

type secretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSConfig loads the SDK config. Static S3 credentials are used when both
// halves are set, the default chain otherwise.
func (c *Config) AWSConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.S3AccessKeyID != "" && c.S3AccessKeySecret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.S3AccessKeyID, c.S3AccessKeySecret, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// ResolveToken returns the HEC token, fetching it from Secrets Manager when
// Token is a secret ARN
func (c *Config) ResolveToken(ctx context.Context, awsCfg aws.Config) (string, error) {
	if !strings.HasPrefix(c.Token, secretARNPrefix) {
		return c.Token, nil
	}
	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		o.Region = c.Region
	})
	return resolveToken(ctx, c.Token, client)
}

func resolveToken(ctx context.Context, token string, client secretGetter) (string, error) {
	if !strings.HasPrefix(token, secretARNPrefix) {
		return token, nil
	}
	log.Info("Getting token from AWS Secrets Manager")
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", token, err)
	}
	if out.SecretString == nil {
		return "", errors.New("secret has no string value")
	}
	return *out.SecretString, nil
}

// Storages sets up the failure and cold storage buckets. A bucket that is not
// configured, or cannot be set up, comes back nil.
func (c *Config) Storages(awsCfg aws.Config) (failure, cold storage.Backend) {
	open := func(kind, url string) storage.Backend {
		if url == "" {
			log.Infof("No %s storage URL provided", kind)
			return nil
		}
		s, err := s3storage.NewStorage(storage.StorageConfig{
			Provider:        "s3",
			URL:             url,
			Region:          c.Region,
			CompressionType: c.S3ColdStorageCompressionType,
		}, awsCfg)
		if err != nil {
			log.WithError(err).Errorf("Failed to set up %s storage", kind)
			return nil
		}
		return s
	}
	return open("failure", c.S3URL), open("cold", c.S3ColdStorageURL)
}

// NewSink builds the sink the configuration asks for: the stdout writer when
// redirected, otherwise an HEC client backed by the S3 buckets
func (c *Config) NewSink(ctx context.Context) (sink.Sink, error) {
	if c.RedirectToStdout {
		return stdout.New(nil), nil
	}

	awsCfg, err := c.AWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	token, err := c.ResolveToken(ctx, awsCfg)
	if err != nil {
		return nil, err
	}
	failure, cold := c.Storages(awsCfg)
	client, err := hec.NewClient(c.HECConfig(token), failure, cold)
	if err != nil {
		return nil, err
	}
	return client, nil
}
