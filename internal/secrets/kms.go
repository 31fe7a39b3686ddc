package secrets

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/keithlinneman/dbprobe/internal/xerrors"
)

// Decrypter is the subset of the KMS API used here.
type Decrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// KMS decrypts a symmetric ciphertext blob. The key is identified by the
// blob itself. The plaintext is cached after the first successful call.
type KMS struct {
	client Decrypter
	blob   []byte

	mu        sync.RWMutex
	plaintext string
}

// NewKMS decodes ciphertext (standard base64) and returns a KMS source.
func NewKMS(client Decrypter, ciphertext string) (*KMS, error) {
	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, xerrors.Wrap(err, "decode kms ciphertext")
	}
	if len(blob) == 0 {
		return nil, xerrors.New("kms ciphertext is empty")
	}
	return &KMS{client: client, blob: blob}, nil
}

func (k *KMS) Fetch(ctx context.Context) (string, error) {
	k.mu.RLock()
	if k.plaintext != "" {
		defer k.mu.RUnlock()
		return k.plaintext, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.plaintext != "" {
		return k.plaintext, nil
	}

	if k.client == nil {
		return "", xerrors.New("kms client is not configured")
	}
	out, err := k.client.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: k.blob})
	if err != nil {
		return "", xerrors.Wrap(err, "kms decrypt")
	}
	if out == nil || len(out.Plaintext) == 0 {
		return "", xerrors.New("kms decrypt returned no plaintext")
	}

	v := string(out.Plaintext)
	k.plaintext = v
	return v, nil
}
