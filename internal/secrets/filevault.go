package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileVault stores one JSON file per secret under a vault directory.
// The directory is created on first use, mirroring vault auto-registration.
type FileVault struct {
	name string
	dir  string
}

// NewFileVault opens (creating if needed) the file vault named name under
// baseDir.
func NewFileVault(baseDir, name string) (*FileVault, error) {
	if name == "" {
		name = "GraphToolKit"
	}
	dir := filepath.Join(baseDir, sanitize(name))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("could not create vault directory %s: %w", dir, err)
	}
	return &FileVault{name: name, dir: dir}, nil
}

func (v *FileVault) Name() string {
	return v.name
}

func (v *FileVault) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(v.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("could not check secret %s: %w", name, err)
}

func (v *FileVault) Put(ctx context.Context, name string, payload []byte, overwrite bool) error {
	exists, err := v.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists && !overwrite {
		return fmt.Errorf("secret %s in vault %s: %w", name, v.name, ErrSecretExists)
	}

	// Stored compact regardless of how the caller formatted it.
	compact, err := compactJSON(payload)
	if err != nil {
		return fmt.Errorf("secret %s payload is not valid JSON: %w", name, err)
	}

	if err := os.WriteFile(v.path(name), compact, 0600); err != nil {
		return fmt.Errorf("could not write secret %s: %w", name, err)
	}
	return nil
}

func (v *FileVault) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(v.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("secret %s in vault %s: %w", name, v.name, ErrSecretNotFound)
		}
		return nil, fmt.Errorf("could not read secret %s: %w", name, err)
	}
	return data, nil
}

func (v *FileVault) Delete(_ context.Context, name string) error {
	err := os.Remove(v.path(name))
	if os.IsNotExist(err) {
		return fmt.Errorf("secret %s in vault %s: %w", name, v.name, ErrSecretNotFound)
	}
	return err
}

func (v *FileVault) path(name string) string {
	return filepath.Join(v.dir, sanitize(name)+".json")
}

// sanitize maps a secret name to a safe file name. CN=App-Name stays
// readable; path separators and spaces are replaced.
func sanitize(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	return replacer.Replace(name)
}

func compactJSON(payload []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
