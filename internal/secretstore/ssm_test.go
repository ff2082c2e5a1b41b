package secretstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/cockroachdb/errors"
	"github.com/flexprice/stripesync/internal/config"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	getFn func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
	putFn func(*ssm.PutParameterInput) (*ssm.PutParameterOutput, error)

	lastPut *ssm.PutParameterInput
}

func (f *fakeSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getFn(params)
}

func (f *fakeSSM) PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.lastPut = params
	if f.putFn != nil {
		return f.putFn(params)
	}
	return &ssm.PutParameterOutput{}, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(config.GetDefaultConfig())
	require.NoError(t, err)
	return log
}

func TestSSMGetReturnsDecryptedValue(t *testing.T) {
	fake := &fakeSSM{
		getFn: func(in *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			require.Equal(t, "some-key", aws.ToString(in.Name))
			require.True(t, aws.ToBool(in.WithDecryption))
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Value: aws.String("whsec_123")},
			}, nil
		},
	}
	store := NewSSMStoreWithClient(fake, testLogger(t))

	value, err := store.Get(context.Background(), "some-key")
	require.NoError(t, err)
	require.Equal(t, "whsec_123", value)
}

func TestSSMGetMapsParameterNotFound(t *testing.T) {
	fake := &fakeSSM{
		getFn: func(in *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, &ssmtypes.ParameterNotFound{}
		},
	}
	store := NewSSMStoreWithClient(fake, testLogger(t))

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, ierr.IsNotFound(err))
}

func TestSSMGetWrapsOtherFailures(t *testing.T) {
	fake := &fakeSSM{
		getFn: func(in *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	store := NewSSMStoreWithClient(fake, testLogger(t))

	_, err := store.Get(context.Background(), "some-key")
	require.Error(t, err)
	require.False(t, ierr.IsNotFound(err))
	require.True(t, ierr.IsSecretStore(err))
}

func TestSSMPutWritesSecureStringWithOverwrite(t *testing.T) {
	fake := &fakeSSM{}
	store := NewSSMStoreWithClient(fake, testLogger(t))

	err := store.Put(context.Background(), "some-key", "whsec_123", "signing secret", true)
	require.NoError(t, err)

	require.NotNil(t, fake.lastPut)
	require.Equal(t, "some-key", aws.ToString(fake.lastPut.Name))
	require.Equal(t, "whsec_123", aws.ToString(fake.lastPut.Value))
	require.Equal(t, "signing secret", aws.ToString(fake.lastPut.Description))
	require.Equal(t, ssmtypes.ParameterTypeSecureString, fake.lastPut.Type)
	require.True(t, aws.ToBool(fake.lastPut.Overwrite))
}

func TestSSMPutWrapsFailures(t *testing.T) {
	fake := &fakeSSM{
		putFn: func(in *ssm.PutParameterInput) (*ssm.PutParameterOutput, error) {
			return nil, errors.New("access denied")
		},
	}
	store := NewSSMStoreWithClient(fake, testLogger(t))

	err := store.Put(context.Background(), "some-key", "v", "d", true)
	require.Error(t, err)
	require.True(t, ierr.IsSecretStore(err))
}
