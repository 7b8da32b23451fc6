// Package secrets persists app registration results so follow-up commands
// (send-email, operator scripts) can retrieve app IDs and certificate
// thumbprints without re-publishing. Two backends exist: a local file
// vault and HashiCorp Vault KVv2. Payloads are JSON blobs keyed by a
// secret name of the form CN=<AppName>.
package secrets

import (
	"context"
	"errors"
)

// ErrSecretExists is returned by Put when the name is taken and overwrite
// was not requested.
var ErrSecretExists = errors.New("secret already exists")

// ErrSecretNotFound is returned by Get and Delete for unknown names.
var ErrSecretNotFound = errors.New("secret not found")

// Store is a named vault of JSON secrets.
type Store interface {
	// Name identifies the vault in logs and splat output.
	Name() string
	// Exists reports whether a secret with this name is present.
	Exists(ctx context.Context, name string) (bool, error)
	// Put stores payload under name. An existing name fails with
	// ErrSecretExists unless overwrite is set.
	Put(ctx context.Context, name string, payload []byte, overwrite bool) error
	// Get retrieves a stored payload.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes a secret.
	Delete(ctx context.Context, name string) error
}
