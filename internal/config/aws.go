package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// LoadAwsConfig resolves AWS credentials and region through the SDK's default
// chain, honoring the tool-level region override when present.
func LoadAwsConfig(ctx context.Context, c *Configuration) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.AWS.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	return cfg, nil
}
