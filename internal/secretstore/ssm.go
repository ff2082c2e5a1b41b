package secretstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/cockroachdb/errors"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/logger"
)

// SSMAPI is the slice of the Parameter Store client this adapter uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMStore persists webhook secrets as SecureString parameters.
type SSMStore struct {
	client SSMAPI
	logger *logger.Logger
}

// NewSSMStore builds a store on the given AWS configuration.
func NewSSMStore(cfg aws.Config, log *logger.Logger) *SSMStore {
	return &SSMStore{
		client: ssm.NewFromConfig(cfg),
		logger: log,
	}
}

// NewSSMStoreWithClient builds a store on a caller-supplied client.
func NewSSMStoreWithClient(client SSMAPI, log *logger.Logger) *SSMStore {
	return &SSMStore{
		client: client,
		logger: log,
	}
}

func (s *SSMStore) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", ierr.WithError(err).
				WithHintf("No secret stored under %s", name).
				Mark(ierr.ErrNotFound)
		}
		return "", ierr.WithError(err).
			WithHintf("Could not read secret %s from the parameter store", name).
			Mark(ierr.ErrSecretStore)
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", nil
	}
	return aws.ToString(out.Parameter.Value), nil
}

func (s *SSMStore) Put(ctx context.Context, name, value, description string, overwrite bool) error {
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(name),
		Value:       aws.String(value),
		Description: aws.String(description),
		Type:        ssmtypes.ParameterTypeSecureString,
		Overwrite:   aws.Bool(overwrite),
	})
	if err != nil {
		return ierr.WithError(err).
			WithHintf("Could not write secret %s to the parameter store", name).
			Mark(ierr.ErrSecretStore)
	}

	s.logger.Debugw("stored secret parameter", "name", name)
	return nil
}
