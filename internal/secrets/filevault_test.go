package secrets

import (
	"context"
	"errors"
	"testing"
)

func newTestVault(t *testing.T) *FileVault {
	t.Helper()
	v, err := NewFileVault(t.TempDir(), "GraphToolKit")
	if err != nil {
		t.Fatalf("NewFileVault() error: %v", err)
	}
	return v
}

func TestPutGetRoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	payload := []byte(`{"appId":"11111111-1111-1111-1111-111111111111","thumbprint":"AABB"}`)
	if err := v.Put(ctx, "CN=GraphToolKit-MSN-MyDomain", payload, false); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := v.Get(ctx, "CN=GraphToolKit-MSN-MyDomain")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get() = %s, want %s", got, payload)
	}
}

func TestPutConflictAndOverwrite(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	first := []byte(`{"version":1}`)
	second := []byte(`{"version":2}`)

	if err := v.Put(ctx, "CN=App", first, false); err != nil {
		t.Fatalf("first Put() error: %v", err)
	}

	err := v.Put(ctx, "CN=App", second, false)
	if err == nil {
		t.Fatal("expected conflict on second Put without overwrite")
	}
	if !errors.Is(err, ErrSecretExists) {
		t.Errorf("error = %v, want ErrSecretExists", err)
	}

	if err := v.Put(ctx, "CN=App", second, true); err != nil {
		t.Fatalf("Put() with overwrite error: %v", err)
	}
	got, err := v.Get(ctx, "CN=App")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != `{"version":2}` {
		t.Errorf("stored payload = %s, want overwritten value", got)
	}
}

func TestPutCompactsJSON(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	pretty := []byte("{\n  \"name\": \"value\"\n}")
	if err := v.Put(ctx, "CN=Pretty", pretty, false); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	got, err := v.Get(ctx, "CN=Pretty")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != `{"name":"value"}` {
		t.Errorf("payload not compacted: %s", got)
	}
}

func TestPutRejectsInvalidJSON(t *testing.T) {
	v := newTestVault(t)
	if err := v.Put(context.Background(), "CN=Bad", []byte("not json"), false); err == nil {
		t.Fatal("expected error for invalid JSON payload")
	}
}

func TestExists(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	exists, err := v.Exists(ctx, "CN=Missing")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if exists {
		t.Error("Exists() = true for missing secret")
	}

	if err := v.Put(ctx, "CN=Present", []byte(`{}`), false); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	exists, err = v.Exists(ctx, "CN=Present")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if !exists {
		t.Error("Exists() = false for stored secret")
	}
}

func TestGetAndDeleteMissing(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if _, err := v.Get(ctx, "CN=Nope"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Get() error = %v, want ErrSecretNotFound", err)
	}
	if err := v.Delete(ctx, "CN=Nope"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Delete() error = %v, want ErrSecretNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if err := v.Put(ctx, "CN=Temp", []byte(`{}`), false); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if err := v.Delete(ctx, "CN=Temp"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	exists, err := v.Exists(ctx, "CN=Temp")
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if exists {
		t.Error("secret still present after Delete")
	}
}

func TestSanitizedNames(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	name := `CN=App With/Odd:Chars`
	if err := v.Put(ctx, name, []byte(`{"ok":true}`), false); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	got, err := v.Get(ctx, name)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("round trip failed for sanitized name: %s", got)
	}
}
