package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// HashiVault stores secrets in a HashiCorp Vault KVv2 mount. Each secret
// is written as a single "payload" field holding the JSON blob, so the
// stored shape matches the file vault byte for byte.
type HashiVault struct {
	name   string
	mount  string
	client *vault.Client
}

// NewHashiVault connects to the Vault server at addr using token auth and
// stores secrets under the given KVv2 mount (default "secret").
func NewHashiVault(addr, token, mount, name string) (*HashiVault, error) {
	if mount == "" {
		mount = "secret"
	}
	if name == "" {
		name = "GraphToolKit"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = addr
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("could not create vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &HashiVault{name: name, mount: mount, client: client}, nil
}

func (v *HashiVault) Name() string {
	return v.name
}

func (v *HashiVault) secretPath(name string) string {
	return v.name + "/" + sanitize(name)
}

func (v *HashiVault) Exists(ctx context.Context, name string) (bool, error) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, v.secretPath(name))
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("could not check secret %s: %w", name, err)
	}
	return secret != nil, nil
}

func (v *HashiVault) Put(ctx context.Context, name string, payload []byte, overwrite bool) error {
	exists, err := v.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists && !overwrite {
		return fmt.Errorf("secret %s in vault %s: %w", name, v.name, ErrSecretExists)
	}

	compact, err := compactJSON(payload)
	if err != nil {
		return fmt.Errorf("secret %s payload is not valid JSON: %w", name, err)
	}

	_, err = v.client.KVv2(v.mount).Put(ctx, v.secretPath(name), map[string]any{
		"payload": string(compact),
	})
	if err != nil {
		return fmt.Errorf("could not write secret %s: %w", name, err)
	}
	return nil
}

func (v *HashiVault) Get(ctx context.Context, name string) ([]byte, error) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, v.secretPath(name))
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, fmt.Errorf("secret %s in vault %s: %w", name, v.name, ErrSecretNotFound)
		}
		return nil, fmt.Errorf("could not read secret %s: %w", name, err)
	}

	raw, ok := secret.Data["payload"].(string)
	if !ok {
		// Tolerate secrets written by other tools: re-encode the data map.
		encoded, err := json.Marshal(secret.Data)
		if err != nil {
			return nil, fmt.Errorf("secret %s has no payload field: %w", name, err)
		}
		return encoded, nil
	}
	return []byte(raw), nil
}

func (v *HashiVault) Delete(ctx context.Context, name string) error {
	exists, err := v.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("secret %s in vault %s: %w", name, v.name, ErrSecretNotFound)
	}
	if err := v.client.KVv2(v.mount).Delete(ctx, v.secretPath(name)); err != nil {
		return fmt.Errorf("could not delete secret %s: %w", name, err)
	}
	return nil
}
