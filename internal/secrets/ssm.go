package secrets

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

// ParameterGetter is the subset of the SSM API used here.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSM reads a SecureString parameter.
type SSM struct {
	client ParameterGetter
	name   string
}

func NewSSM(client ParameterGetter, name string) *SSM {
	return &SSM{client: client, name: name}
}

func (s *SSM) Fetch(ctx context.Context) (string, error) {
	if s.client == nil {
		return "", xerrors.New("ssm client is not configured")
	}
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", s.name)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", s.name)
	}

	v := *out.Parameter.Value
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", s.name)
	}
	return v, nil
}
