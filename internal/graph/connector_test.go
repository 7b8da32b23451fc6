package graph

import (
	"reflect"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return token
}

func TestTokenRoles(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{
		"roles": []any{"Mail.Send", "Application.ReadWrite.All"},
	})

	roles, err := tokenRoles(token)
	if err != nil {
		t.Fatalf("tokenRoles() error: %v", err)
	}
	want := []string{"Mail.Send", "Application.ReadWrite.All"}
	if !reflect.DeepEqual(roles, want) {
		t.Errorf("tokenRoles() = %v, want %v", roles, want)
	}
}

func TestTokenRolesAbsentClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"aud": "https://graph.microsoft.com"})

	roles, err := tokenRoles(token)
	if err != nil {
		t.Fatalf("tokenRoles() error: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("tokenRoles() = %v, want empty", roles)
	}
}

func TestTokenRolesMalformed(t *testing.T) {
	if _, err := tokenRoles("not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}

func TestMissingRoles(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required []string
		want     []string
	}{
		{
			name:     "all present",
			granted:  []string{"Mail.Send", "Sites.Read.All"},
			required: []string{"Mail.Send"},
			want:     nil,
		},
		{
			name:     "one missing",
			granted:  []string{"Mail.Send"},
			required: []string{"Mail.Send", "Exchange.ManageAsApp"},
			want:     []string{"Exchange.ManageAsApp"},
		},
		{
			name:     "nothing granted",
			granted:  nil,
			required: []string{"Mail.Send"},
			want:     []string{"Mail.Send"},
		},
		{
			name:     "nothing required",
			granted:  nil,
			required: nil,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := missingRoles(tt.granted, tt.required)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("missingRoles(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestCredentialsValidate(t *testing.T) {
	const (
		tenant = "11111111-1111-1111-1111-111111111111"
		client = "22222222-2222-2222-2222-222222222222"
	)

	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{
			name:  "secret auth",
			creds: Credentials{TenantID: tenant, ClientID: client, Secret: "s3cret"},
		},
		{
			name:  "pfx auth",
			creds: Credentials{TenantID: tenant, ClientID: client, PfxPath: "/tmp/app.pfx", PfxPass: "pw"},
		},
		{
			name:  "thumbprint auth",
			creds: Credentials{TenantID: tenant, ClientID: client, Thumbprint: "AABBCCDDEEFF00112233445566778899AABBCCDD"},
		},
		{
			name:    "no auth method",
			creds:   Credentials{TenantID: tenant, ClientID: client},
			wantErr: true,
		},
		{
			name:    "two auth methods",
			creds:   Credentials{TenantID: tenant, ClientID: client, Secret: "s", PfxPath: "/tmp/a.pfx"},
			wantErr: true,
		},
		{
			name:    "bad tenant id",
			creds:   Credentials{TenantID: "nope", ClientID: client, Secret: "s"},
			wantErr: true,
		},
		{
			name:    "bad thumbprint",
			creds:   Credentials{TenantID: tenant, ClientID: client, Thumbprint: "short"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
