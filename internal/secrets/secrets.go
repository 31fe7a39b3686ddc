// Package secrets resolves the database password from AWS when it is not
// supplied directly through DB_PASS.
package secrets

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

// Source yields a single secret value.
type Source interface {
	Fetch(ctx context.Context) (string, error)
}

// Options selects where the password comes from. At most one of
// SSMParam and KMSCiphertext may be set.
type Options struct {
	SSMParam string
	// base64 ciphertext produced by kms encrypt
	KMSCiphertext string

	// AWS config (uses default if nil)
	AWSConfig *aws.Config
}

// Enabled reports whether any remote source is configured.
func (o Options) Enabled() bool {
	return o.SSMParam != "" || o.KMSCiphertext != ""
}

// New builds the configured Source. It returns (nil, nil) when nothing is
// configured.
func New(ctx context.Context, opts Options) (Source, error) {
	if !opts.Enabled() {
		return nil, nil
	}
	if opts.SSMParam != "" && opts.KMSCiphertext != "" {
		return nil, xerrors.New("only one of SSM parameter and KMS ciphertext may be set")
	}

	var awsCfg aws.Config
	if opts.AWSConfig != nil {
		awsCfg = *opts.AWSConfig
	} else {
		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}

	if opts.SSMParam != "" {
		return NewSSM(ssm.NewFromConfig(awsCfg), opts.SSMParam), nil
	}
	k, err := NewKMS(kms.NewFromConfig(awsCfg), opts.KMSCiphertext)
	if err != nil {
		return nil, err
	}
	return k, nil
}
